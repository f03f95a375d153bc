package services

import (
	"bourracho/contract"
	"bourracho/domain"
	"bourracho/domain/event"
	"bourracho/errors"
	"bourracho/repositories"
	"bourracho/runtime"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

const maxIDAttempts = 5

type IMembershipService interface {
	Create(ctx context.Context, creatorID, name string, isLocked, isVisible bool) (domain.Conversation, error)
	Join(ctx context.Context, conversationID, userID string) (domain.Conversation, error)
	Leave(ctx context.Context, conversationID, userID string) (domain.Conversation, error)
	Delete(ctx context.Context, requesterID, conversationID string) error
	UpdateMember(ctx context.Context, conversationID, userID string, update domain.MemberUpdate) (domain.ConversationUser, error)
	UpdateMetadata(ctx context.Context, conversationID string, update domain.MetadataUpdate, changedBy string) (domain.Conversation, error)
	Get(conversationID string) (domain.Conversation, error)
	ListForUser(userID string) ([]domain.Conversation, error)
}

// ConnectionRegistry is the part of the live registry membership changes drive.
type ConnectionRegistry interface {
	contract.IRegistry
	Attach(conversationID string, conn *runtime.Connection) error
}

// MembershipService is the only writer of conversation membership.
// Every mutation of a conversation runs under its lock, and the resulting
// events are dispatched before the lock is released so their order matches
// the commit order.
type MembershipService struct {
	log           *slog.Logger
	conversations repositories.IConversationRepository
	locker        *runtime.KeyedLocker
	dispatcher    contract.IDispatcher
	registry      ConnectionRegistry
	now           func() time.Time
	newID         func() (string, error)
}

func NewMembershipService(log *slog.Logger, conversations repositories.IConversationRepository,
	locker *runtime.KeyedLocker, dispatcher contract.IDispatcher, registry ConnectionRegistry) *MembershipService {
	return &MembershipService{
		log:           log,
		conversations: conversations,
		locker:        locker,
		dispatcher:    dispatcher,
		registry:      registry,
		now:           time.Now,
		newID:         domain.NewConversationID,
	}
}

// Create stores a conversation whose only member and admin is the creator.
// Identifiers are random, a collision is retried a few times.
func (s *MembershipService) Create(_ context.Context, creatorID, name string, isLocked, isVisible bool) (domain.Conversation, error) {
	if creatorID == "" {
		return domain.Conversation{}, fmt.Errorf("%w: creator id is required", errors.ErrInvalidArgument)
	}

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return domain.Conversation{}, errors.Unavailable("draw conversation id", err)
		}
		conv := domain.NewConversation(id, name, creatorID, isLocked, isVisible, domain.RandomSmiley(), s.now().UTC())
		err = s.conversations.Insert(conv)
		if err == nil {
			s.log.Info("Conversation created", "conversation_id", id, "user_id", creatorID)
			return conv, nil
		}
		if !stderrors.Is(err, errors.ErrConflict) {
			return domain.Conversation{}, err
		}
		s.log.Warn("Conversation id collision", "conversation_id", id, "attempt", attempt)
	}
	return domain.Conversation{}, fmt.Errorf("%w: no free conversation id after %d attempts", errors.ErrUnavailable, maxIDAttempts)
}

// Join is idempotent: joining twice returns the conversation unchanged and
// emits nothing the second time.
func (s *MembershipService) Join(ctx context.Context, conversationID, userID string) (domain.Conversation, error) {
	if conversationID == "" || userID == "" {
		return domain.Conversation{}, fmt.Errorf("%w: conversation id and user id are required", errors.ErrInvalidArgument)
	}
	unlock := s.locker.Lock(conversationID)
	defer unlock()

	smiley := domain.RandomSmiley()
	conv, added, err := s.conversations.AddMember(conversationID, userID, domain.ConversationUser{Smiley: &smiley})
	if err != nil {
		return domain.Conversation{}, err
	}
	if added {
		s.log.Info("Member joined", "conversation_id", conversationID, "user_id", userID)
		s.dispatch(ctx, event.NewMemberJoined(conversationID, userID, &smiley))
	}
	return conv.Clone(), nil
}

// Leave removes a member. The admin role moves to the next member in join
// order, and the live connections of the leaving member are closed.
func (s *MembershipService) Leave(ctx context.Context, conversationID, userID string) (domain.Conversation, error) {
	if conversationID == "" || userID == "" {
		return domain.Conversation{}, fmt.Errorf("%w: conversation id and user id are required", errors.ErrInvalidArgument)
	}
	unlock := s.locker.Lock(conversationID)
	defer unlock()

	conv, newAdmin, err := s.conversations.RemoveMember(conversationID, userID)
	if err != nil {
		return domain.Conversation{}, err
	}
	s.log.Info("Member left", "conversation_id", conversationID, "user_id", userID, "new_admin", lo.FromPtr(newAdmin))
	s.dispatch(ctx, event.NewMemberLeft(conversationID, userID, newAdmin))
	if n := s.registry.DetachUser(conversationID, userID); n > 0 {
		s.log.Debug("Connections of leaving member detached", "conversation_id", conversationID, "count", n)
	}
	return conv.Clone(), nil
}

// Delete is reserved to the admin. Messages are kept.
func (s *MembershipService) Delete(_ context.Context, requesterID, conversationID string) error {
	unlock := s.locker.Lock(conversationID)
	defer unlock()

	conv, err := s.conversations.Find(conversationID)
	if err != nil {
		return err
	}
	if conv.AdminID != requesterID {
		return fmt.Errorf("%w: only the admin can delete %s", errors.ErrPermissionDenied, conversationID)
	}
	if err := s.conversations.Delete(conversationID); err != nil {
		return err
	}
	n := s.registry.DetachAll(conversationID)
	s.log.Info("Conversation deleted", "conversation_id", conversationID, "detached", n)
	return nil
}

func (s *MembershipService) UpdateMember(ctx context.Context, conversationID, userID string, update domain.MemberUpdate) (domain.ConversationUser, error) {
	if update.Smiley != nil && *update.Smiley != "" {
		if err := domain.ValidateEmoji(*update.Smiley); err != nil {
			return domain.ConversationUser{}, err
		}
	}
	unlock := s.locker.Lock(conversationID)
	defer unlock()

	_, profile, err := s.conversations.UpsertMember(conversationID, userID, update)
	if err != nil {
		return domain.ConversationUser{}, err
	}
	s.dispatch(ctx, event.NewMemberProfileChanged(conversationID, userID, profile, userID))
	return profile, nil
}

// UpdateMetadata applies the supplied fields and emits one event per changed field.
// Any member may rename or toggle flags, only the admin hands over the admin role.
func (s *MembershipService) UpdateMetadata(ctx context.Context, conversationID string, update domain.MetadataUpdate, changedBy string) (domain.Conversation, error) {
	unlock := s.locker.Lock(conversationID)
	defer unlock()

	conv, err := s.conversations.Find(conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conv.IsMember(changedBy) {
		return domain.Conversation{}, fmt.Errorf("%w: user %s is not a member of %s", errors.ErrPermissionDenied, changedBy, conversationID)
	}
	if update.AdminID != nil && *update.AdminID != conv.AdminID && conv.AdminID != changedBy {
		return domain.Conversation{}, fmt.Errorf("%w: only the admin can transfer the admin role", errors.ErrPermissionDenied)
	}
	if update.IsEmpty() {
		return conv.Clone(), nil
	}

	conv, changes, err := s.conversations.UpdateFields(conversationID, update)
	if err != nil {
		return domain.Conversation{}, err
	}
	for _, change := range changes {
		s.dispatch(ctx, event.NewMetadataChanged(conversationID, change, changedBy))
	}
	return conv.Clone(), nil
}

func (s *MembershipService) Get(conversationID string) (domain.Conversation, error) {
	return s.conversations.Find(conversationID)
}

func (s *MembershipService) ListForUser(userID string) ([]domain.Conversation, error) {
	return s.conversations.FindAllContainingUser(userID)
}

// dispatch never fails the caller: the change is already committed.
// Attach registers a live connection of userID while they are a member.
// It holds the conversation lock so a concurrent Leave or Delete either runs
// before and rejects the connection, or after and detaches it.
func (s *MembershipService) Attach(_ context.Context, conversationID, userID string, conn *runtime.Connection) error {
	if conversationID == "" || userID == "" {
		return fmt.Errorf("%w: conversation id and user id are required", errors.ErrInvalidArgument)
	}
	unlock := s.locker.Lock(conversationID)
	defer unlock()

	conv, err := s.conversations.Find(conversationID)
	if err != nil {
		return err
	}
	if !conv.IsMember(userID) {
		return fmt.Errorf("%w: user %s is not a member of %s", errors.ErrPermissionDenied, userID, conversationID)
	}
	return s.registry.Attach(conversationID, conn)
}

func (s *MembershipService) dispatch(ctx context.Context, e event.DomainEvent) {
	if err := s.dispatcher.Dispatch(ctx, e); err != nil {
		s.log.Error("Event dispatch failed", "conversation_id", e.ConversationID(), "kind", e.Kind(), "error", err)
	}
}
