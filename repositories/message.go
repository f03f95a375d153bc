package repositories

import (
	"bourracho/domain"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	messagePrefix   = "msg:"
	messageIDPrefix = "msgid:"
	mediaPrefix     = "media:"
)

type IMessageRepository interface {
	Add(message domain.Message) error
	Get(messageID string) (domain.Message, error)
	ListByConversation(conversationID string, limit *int) ([]domain.Message, error)
	ApplyReaction(messageID string, react domain.React) (domain.Message, error)
	ApplyVotes(messageID string, votes map[string]string) (domain.Message, error)
	UpdateContent(messageID, content string, editedAt time.Time) (domain.Message, error)
	FindByMediaID(mediaID string) (domain.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// Add persists a message in BadgerDB.
// The key is formatted as "msg:{conversation_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using the UUID as a tie breaker when two messages
//     share the same nanosecond.
//
// Secondary entries "msgid:{uuid}" and "media:{id}" point back to the primary key.
func (m MessageRepository) Add(message domain.Message) error {
	key := messageKey(message)
	data, err := marshal(message)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set([]byte(messageIDPrefix+message.ID), key); err != nil {
			return err
		}
		for _, media := range message.MediaMetadatas {
			if err := txn.Set([]byte(mediaPrefix+media.ID), []byte(message.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	return storageError("message "+message.ID, err)
}

func (m MessageRepository) Get(messageID string) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) (err error) {
		message, _, err = getMessage(txn, messageID)
		return err
	})
	if err != nil {
		return domain.Message{}, storageError("message "+messageID, err)
	}
	return message, nil
}

// ListByConversation returns the most recent messages of a conversation,
// oldest first. The iteration walks backwards from the newest key and stops
// once the limit (argument first, configured default otherwise) is reached.
func (m MessageRepository) ListByConversation(conversationID string, limit *int) ([]domain.Message, error) {
	if limit == nil {
		limit = m.limitMessages
	}
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix + conversationID + ":")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(slices.Clone(prefix), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if limit != nil && len(messages) == *limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *limit))
				break
			}
			var message domain.Message
			if err := it.Item().Value(func(val []byte) error {
				return unmarshal(val, &message)
			}); err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, storageError("messages of "+conversationID, err)
	}
	slices.Reverse(messages)
	return messages, nil
}

// ApplyReaction appends react to the message reacts.
func (m MessageRepository) ApplyReaction(messageID string, react domain.React) (domain.Message, error) {
	return m.mutate(messageID, func(message *domain.Message) {
		message.AddReact(react)
	})
}

// ApplyVotes merges votes into the message votes, last write wins per voter.
func (m MessageRepository) ApplyVotes(messageID string, votes map[string]string) (domain.Message, error) {
	return m.mutate(messageID, func(message *domain.Message) {
		message.MergeVotes(votes)
	})
}

func (m MessageRepository) UpdateContent(messageID, content string, editedAt time.Time) (domain.Message, error) {
	return m.mutate(messageID, func(message *domain.Message) {
		message.Content = content
		message.EditedAt = &editedAt
	})
}

func (m MessageRepository) FindByMediaID(mediaID string) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(mediaPrefix + mediaID))
		if err != nil {
			return err
		}
		messageID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		message, _, err = getMessage(txn, string(messageID))
		return err
	})
	if err != nil {
		return domain.Message{}, storageError("media "+mediaID, err)
	}
	return message, nil
}

func (m MessageRepository) mutate(messageID string, fn func(message *domain.Message)) (domain.Message, error) {
	var message domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		current, key, err := getMessage(txn, messageID)
		if err != nil {
			return err
		}
		fn(&current)
		data, err := marshal(current)
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		message = current
		return txn.Set(key, data)
	})
	if err != nil {
		return domain.Message{}, storageError("message "+messageID, err)
	}
	return message, nil
}

func getMessage(txn *badger.Txn, messageID string) (domain.Message, []byte, error) {
	var message domain.Message
	item, err := txn.Get([]byte(messageIDPrefix + messageID))
	if err != nil {
		return message, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return message, nil, err
	}
	item, err = txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return message, nil, fmt.Errorf("dangling message index %s: %w", messageID, err)
	}
	if err != nil {
		return message, nil, err
	}
	err = item.Value(func(val []byte) error {
		return unmarshal(val, &message)
	})
	return message, key, err
}

func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		messagePrefix,
		message.ConversationID,
		message.Timestamp.UnixNano(),
		message.ID,
	))
}
