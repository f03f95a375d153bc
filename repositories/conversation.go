package repositories

import (
	"bourracho/domain"
	"bourracho/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const (
	conversationPrefix = "conv:"
	memberPrefix       = "member:"
)

// IConversationRepository exposes atomic operations on conversation documents.
// Every method is a single badger transaction.
type IConversationRepository interface {
	Insert(conv domain.Conversation) error
	Find(conversationID string) (domain.Conversation, error)
	FindAllContainingUser(userID string) ([]domain.Conversation, error)
	AddMember(conversationID, userID string, profile domain.ConversationUser) (domain.Conversation, bool, error)
	RemoveMember(conversationID, userID string) (domain.Conversation, *string, error)
	UpsertMember(conversationID, userID string, update domain.MemberUpdate) (domain.Conversation, domain.ConversationUser, error)
	SetAdmin(conversationID, adminID string) (domain.Conversation, error)
	UpdateFields(conversationID string, update domain.MetadataUpdate) (domain.Conversation, []domain.FieldChange, error)
	Delete(conversationID string) error
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

// Insert stores a new conversation. It fails with Conflict when the id is taken.
// A reverse index entry "member:{user}:{conv}" is written for every member.
func (r ConversationRepository) Insert(conv domain.Conversation) error {
	if err := conv.Validate(); err != nil {
		return err
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(conversationKey(conv.ID)); err == nil {
			return fmt.Errorf("%w: conversation %s already exists", errors.ErrConflict, conv.ID)
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		for _, userID := range conv.UserIDs() {
			if err := txn.Set(memberKey(userID, conv.ID), nil); err != nil {
				return err
			}
		}
		return putConversation(txn, conv)
	})
	return storageError("conversation "+conv.ID, err)
}

func (r ConversationRepository) Find(conversationID string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) (err error) {
		conv, err = getConversation(txn, conversationID)
		return err
	})
	if err != nil {
		return domain.Conversation{}, storageError("conversation "+conversationID, err)
	}
	return conv, nil
}

// FindAllContainingUser scans the reverse member index of userID.
func (r ConversationRepository) FindAllContainingUser(userID string) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(memberPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			conversationID := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			conv, err := getConversation(txn, conversationID)
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				r.log.Warn("Dangling member index entry", "user_id", userID, "conversation_id", conversationID)
				continue
			}
			if err != nil {
				return err
			}
			conversations = append(conversations, conv)
		}
		return nil
	})
	if err != nil {
		return nil, storageError("conversations of "+userID, err)
	}
	return conversations, nil
}

// AddMember appends userID when absent and reports whether it was inserted.
func (r ConversationRepository) AddMember(conversationID, userID string, profile domain.ConversationUser) (domain.Conversation, bool, error) {
	var added bool
	conv, err := r.mutate(conversationID, func(txn *badger.Txn, conv *domain.Conversation) error {
		if added = conv.AddMember(userID, profile); !added {
			return nil
		}
		return txn.Set(memberKey(userID, conversationID), nil)
	})
	return conv, added, err
}

// RemoveMember drops userID and returns the promoted admin, if any.
func (r ConversationRepository) RemoveMember(conversationID, userID string) (domain.Conversation, *string, error) {
	var newAdmin *string
	conv, err := r.mutate(conversationID, func(txn *badger.Txn, conv *domain.Conversation) (err error) {
		if newAdmin, err = conv.RemoveMember(userID); err != nil {
			return err
		}
		return txn.Delete(memberKey(userID, conversationID))
	})
	return conv, newAdmin, err
}

func (r ConversationRepository) UpsertMember(conversationID, userID string, update domain.MemberUpdate) (domain.Conversation, domain.ConversationUser, error) {
	var profile domain.ConversationUser
	conv, err := r.mutate(conversationID, func(_ *badger.Txn, conv *domain.Conversation) (err error) {
		profile, err = conv.UpsertMember(userID, update)
		return err
	})
	return conv, profile, err
}

func (r ConversationRepository) SetAdmin(conversationID, adminID string) (domain.Conversation, error) {
	conv, _, err := r.UpdateFields(conversationID, domain.MetadataUpdate{AdminID: &adminID})
	return conv, err
}

// UpdateFields applies the supplied metadata and returns the fields that actually changed.
func (r ConversationRepository) UpdateFields(conversationID string, update domain.MetadataUpdate) (domain.Conversation, []domain.FieldChange, error) {
	var changes []domain.FieldChange
	conv, err := r.mutate(conversationID, func(_ *badger.Txn, conv *domain.Conversation) (err error) {
		changes, err = conv.ApplyMetadata(update)
		return err
	})
	return conv, changes, err
}

// Delete removes the conversation and its member index entries.
// Messages are left in place.
func (r ConversationRepository) Delete(conversationID string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		conv, err := getConversation(txn, conversationID)
		if err != nil {
			return err
		}
		for _, userID := range conv.UserIDs() {
			if err := txn.Delete(memberKey(userID, conversationID)); err != nil {
				return err
			}
		}
		return txn.Delete(conversationKey(conversationID))
	})
	return storageError("conversation "+conversationID, err)
}

// mutate loads, changes and stores a conversation in one transaction.
// Nothing is written when fn fails or breaks the conversation invariants.
func (r ConversationRepository) mutate(conversationID string, fn func(txn *badger.Txn, conv *domain.Conversation) error) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.Update(func(txn *badger.Txn) (err error) {
		if conv, err = getConversation(txn, conversationID); err != nil {
			return err
		}
		if err = fn(txn, &conv); err != nil {
			return err
		}
		if err = conv.Validate(); err != nil {
			return err
		}
		return putConversation(txn, conv)
	})
	if err != nil {
		return domain.Conversation{}, storageError("conversation "+conversationID, err)
	}
	return conv, nil
}

func getConversation(txn *badger.Txn, conversationID string) (domain.Conversation, error) {
	var conv domain.Conversation
	item, err := txn.Get(conversationKey(conversationID))
	if err != nil {
		return conv, err
	}
	err = item.Value(func(val []byte) error {
		return unmarshal(val, &conv)
	})
	return conv, err
}

func putConversation(txn *badger.Txn, conv domain.Conversation) error {
	data, err := marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(conversationKey(conv.ID), data)
}

func conversationKey(conversationID string) []byte {
	return []byte(conversationPrefix + conversationID)
}

func memberKey(userID, conversationID string) []byte {
	return []byte(memberPrefix + userID + ":" + conversationID)
}
