package services

import (
	"bourracho/contract"
	"bourracho/domain"
	"bourracho/domain/event"
	"bourracho/domain/search"
	"bourracho/errors"
	"bourracho/medias"
	"bourracho/moderation"
	"bourracho/repositories"
	"bourracho/runtime"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChatService interface {
	Post(ctx context.Context, conversationID, issuerID, content string, uploads []medias.Upload) (domain.Message, error)
	React(ctx context.Context, messageID, emoji, issuerID string) (domain.Message, error)
	Vote(ctx context.Context, messageID, voterID string, votes map[string]string) (domain.Message, error)
	Edit(ctx context.Context, messageID, content, editorID string) (domain.Message, error)
	List(ctx context.Context, conversationID, requesterID string, limit *int) ([]domain.Message, error)
	Get(ctx context.Context, messageID string) (domain.Message, error)
	Search(ctx context.Context, conversationID, requesterID, query string, limit int) ([]domain.Message, error)
	MediaContent(ctx context.Context, mediaID, requesterID string) (io.ReadCloser, domain.MediaMetadata, error)
}

type IMediaStore interface {
	UploadAll(ctx context.Context, uploads []medias.Upload, conversationID, issuerID string) ([]domain.MediaMetadata, error)
	WithURLs(ctx context.Context, messages ...*domain.Message)
	Download(ctx context.Context, media domain.MediaMetadata) (io.ReadCloser, error)
}

type ChatService struct {
	log              *slog.Logger
	conversations    repositories.IConversationRepository
	messages         repositories.IMessageRepository
	index            repositories.IMessageIndex
	mediaStore       IMediaStore
	moderator        moderation.Moderator
	locker           *runtime.KeyedLocker
	dispatcher       contract.IDispatcher
	maxContentLength int
	now              func() time.Time
}

func NewChatService(log *slog.Logger,
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	index repositories.IMessageIndex,
	mediaStore IMediaStore,
	moderator moderation.Moderator,
	locker *runtime.KeyedLocker,
	dispatcher contract.IDispatcher,
	maxContentLength int) *ChatService {
	return &ChatService{
		log:              log,
		conversations:    conversations,
		messages:         messages,
		index:            index,
		mediaStore:       mediaStore,
		moderator:        moderator,
		locker:           locker,
		dispatcher:       dispatcher,
		maxContentLength: maxContentLength,
		now:              time.Now,
	}
}

// Post stores a moderated message with its medias and broadcasts it.
// Medias are uploaded before taking the conversation lock, membership is
// checked again under the lock.
func (s *ChatService) Post(ctx context.Context, conversationID, issuerID, content string, uploads []medias.Upload) (domain.Message, error) {
	if strings.TrimSpace(content) == "" && len(uploads) == 0 {
		return domain.Message{}, fmt.Errorf("%w: a message needs content or medias", errors.ErrInvalidArgument)
	}
	if err := s.checkLength(content); err != nil {
		return domain.Message{}, err
	}
	if err := s.requireMember(conversationID, issuerID, errors.ErrPreconditionFailed); err != nil {
		return domain.Message{}, err
	}

	var mediaMetadatas []domain.MediaMetadata
	if len(uploads) > 0 {
		var err error
		if mediaMetadatas, err = s.mediaStore.UploadAll(ctx, uploads, conversationID, issuerID); err != nil {
			return domain.Message{}, err
		}
	}

	review := s.moderator.Review(content)
	message := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		IssuerID:       issuerID,
		Content:        review.Content,
		Language:       review.Language,
		Timestamp:      s.now().UTC(),
		Reacts:         []domain.React{},
		Votes:          map[string]string{},
		MediaMetadatas: mediaMetadatas,
	}

	unlock := s.locker.Lock(conversationID)
	defer unlock()

	if err := s.requireMember(conversationID, issuerID, errors.ErrPreconditionFailed); err != nil {
		return domain.Message{}, err
	}
	if err := s.messages.Add(message); err != nil {
		return domain.Message{}, err
	}
	s.indexMessage(message)
	s.dispatch(ctx, event.NewMessagePosted(message))
	return message, nil
}

// React appends a reaction, earlier reactions of the same user are kept.
func (s *ChatService) React(ctx context.Context, messageID, emoji, issuerID string) (domain.Message, error) {
	if err := domain.ValidateEmoji(emoji); err != nil {
		return domain.Message{}, err
	}
	return s.mutate(ctx, messageID, issuerID, func(message domain.Message) (domain.Message, event.DomainEvent, error) {
		updated, err := s.messages.ApplyReaction(messageID, domain.React{Emoji: emoji, IssuerID: issuerID})
		if err != nil {
			return domain.Message{}, nil, err
		}
		return updated, event.NewMessageReactionUpdated(updated), nil
	})
}

// Vote merges the votes of voterID, voting again overwrites the previous vote.
// A member only votes in their own name.
func (s *ChatService) Vote(ctx context.Context, messageID, voterID string, votes map[string]string) (domain.Message, error) {
	if voterID == "" {
		return domain.Message{}, fmt.Errorf("%w: voter id is required", errors.ErrInvalidArgument)
	}
	if len(votes) == 0 {
		return domain.Message{}, fmt.Errorf("%w: no vote", errors.ErrInvalidArgument)
	}
	for voter := range votes {
		if voter != voterID {
			return domain.Message{}, fmt.Errorf("%w: %s cannot vote as %s", errors.ErrPermissionDenied, voterID, voter)
		}
	}
	return s.mutate(ctx, messageID, voterID, func(message domain.Message) (domain.Message, event.DomainEvent, error) {
		updated, err := s.messages.ApplyVotes(messageID, votes)
		if err != nil {
			return domain.Message{}, nil, err
		}
		return updated, event.NewMessageVoteUpdated(updated), nil
	})
}

// Edit replaces the content of a message. Only its issuer may edit it.
func (s *ChatService) Edit(ctx context.Context, messageID, content, editorID string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, fmt.Errorf("%w: content is required", errors.ErrInvalidArgument)
	}
	if err := s.checkLength(content); err != nil {
		return domain.Message{}, err
	}
	return s.mutate(ctx, messageID, "", func(message domain.Message) (domain.Message, event.DomainEvent, error) {
		if message.IssuerID != editorID {
			return domain.Message{}, nil, fmt.Errorf("%w: only the issuer can edit message %s", errors.ErrPermissionDenied, messageID)
		}
		review := s.moderator.Review(content)
		updated, err := s.messages.UpdateContent(messageID, review.Content, s.now().UTC())
		if err != nil {
			return domain.Message{}, nil, err
		}
		s.indexMessage(updated)
		return updated, event.NewMessageEdited(updated), nil
	})
}

// List returns the latest messages of a conversation, oldest first.
func (s *ChatService) List(ctx context.Context, conversationID, requesterID string, limit *int) ([]domain.Message, error) {
	if err := s.requireMember(conversationID, requesterID, errors.ErrPermissionDenied); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByConversation(conversationID, limit)
	if err != nil {
		return nil, err
	}
	s.withURLs(ctx, messages)
	return messages, nil
}

func (s *ChatService) Get(ctx context.Context, messageID string) (domain.Message, error) {
	message, err := s.messages.Get(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	s.mediaStore.WithURLs(ctx, &message)
	return message, nil
}

// Search runs a full-text query on the messages of one conversation, best match first.
// The raw query accepts "--from <userId>" and "--limit <n>" flags.
func (s *ChatService) Search(ctx context.Context, conversationID, requesterID, rawQuery string, limit int) ([]domain.Message, error) {
	query := search.NewSearchQuery(rawQuery, limit)
	if query.IsEmpty() || query.Limit <= 0 {
		return nil, fmt.Errorf("%w: query and positive limit are required", errors.ErrInvalidArgument)
	}
	if err := s.requireMember(conversationID, requesterID, errors.ErrPermissionDenied); err != nil {
		return nil, err
	}
	ids, err := s.index.Search(ctx, conversationID, query)
	if err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		message, err := s.messages.Get(id)
		if err != nil {
			s.log.Warn("Indexed message not found", "message_id", id, "error", err)
			continue
		}
		messages = append(messages, message)
	}
	s.withURLs(ctx, messages)
	return messages, nil
}

// MediaContent streams a media to a member of the conversation it was posted in.
func (s *ChatService) MediaContent(ctx context.Context, mediaID, requesterID string) (io.ReadCloser, domain.MediaMetadata, error) {
	message, err := s.messages.FindByMediaID(mediaID)
	if err != nil {
		return nil, domain.MediaMetadata{}, err
	}
	if err := s.requireMember(message.ConversationID, requesterID, errors.ErrPermissionDenied); err != nil {
		return nil, domain.MediaMetadata{}, err
	}
	media, ok := lo.Find(message.MediaMetadatas, func(m domain.MediaMetadata) bool { return m.ID == mediaID })
	if !ok {
		return nil, domain.MediaMetadata{}, fmt.Errorf("%w: media %s", errors.ErrNotFound, mediaID)
	}
	content, err := s.mediaStore.Download(ctx, media)
	if err != nil {
		return nil, domain.MediaMetadata{}, err
	}
	return content, media, nil
}

// mutate runs fn under the lock of the message conversation and dispatches
// the returned event. A non empty memberID must belong to the conversation.
func (s *ChatService) mutate(ctx context.Context, messageID, memberID string,
	fn func(message domain.Message) (domain.Message, event.DomainEvent, error)) (domain.Message, error) {
	message, err := s.messages.Get(messageID)
	if err != nil {
		return domain.Message{}, err
	}

	unlock := s.locker.Lock(message.ConversationID)
	defer unlock()

	if memberID != "" {
		if err := s.requireMember(message.ConversationID, memberID, errors.ErrPreconditionFailed); err != nil {
			return domain.Message{}, err
		}
	}
	updated, e, err := fn(message)
	if err != nil {
		return domain.Message{}, err
	}
	s.mediaStore.WithURLs(ctx, &updated)
	s.dispatch(ctx, e)
	return updated, nil
}

func (s *ChatService) requireMember(conversationID, userID string, kind error) error {
	conv, err := s.conversations.Find(conversationID)
	if err != nil {
		return err
	}
	if !conv.IsMember(userID) {
		return fmt.Errorf("%w: user %s is not a member of %s", kind, userID, conversationID)
	}
	return nil
}

func (s *ChatService) checkLength(content string) error {
	if s.maxContentLength > 0 && utf8.RuneCountInString(content) > s.maxContentLength {
		return fmt.Errorf("%w: content longer than %d characters", errors.ErrInvalidArgument, s.maxContentLength)
	}
	return nil
}

// The message is committed, a failed indexation only hides it from search.
func (s *ChatService) indexMessage(message domain.Message) {
	if err := s.index.Index(message); err != nil {
		s.log.Error("Message indexation failed", "message_id", message.ID, "error", err)
	}
}

func (s *ChatService) withURLs(ctx context.Context, messages []domain.Message) {
	for i := range messages {
		s.mediaStore.WithURLs(ctx, &messages[i])
	}
}

func (s *ChatService) dispatch(ctx context.Context, e event.DomainEvent) {
	if err := s.dispatcher.Dispatch(ctx, e); err != nil {
		s.log.Error("Event dispatch failed", "conversation_id", e.ConversationID(), "kind", e.Kind(), "error", err)
	}
}
