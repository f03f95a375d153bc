package repositories

import (
	"bourracho/domain"
	"bourracho/domain/search"
	"bourracho/errors"
	"context"
	"log/slog"

	"github.com/blugelabs/bluge"
)

const (
	fieldID             = "_id"
	fieldConversationID = "conversation_id"
	fieldIssuerID       = "issuer_id"
	fieldContent        = "content"
	fieldTimestamp      = "timestamp"
)

// IMessageIndex is the full-text view of messages.
type IMessageIndex interface {
	Index(message domain.Message) error
	Search(ctx context.Context, conversationID string, query search.Query) ([]string, error)
}

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) MessageIndex {
	return MessageIndex{writer: writer, log: log}
}

// Index adds or replaces the document of message. The content is analyzed,
// the conversation id is kept as an exact keyword to scope searches.
func (i MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID).
		AddField(bluge.NewKeywordField(fieldConversationID, message.ConversationID)).
		AddField(bluge.NewKeywordField(fieldIssuerID, message.IssuerID).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, message.Content)).
		AddField(bluge.NewDateTimeField(fieldTimestamp, message.Timestamp).StoreValue())

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return errors.Unavailable("index message "+message.ID, err)
	}
	return nil
}

// Search returns the ids of the best matching messages of a conversation.
// Without terms, the messages of the issuer are returned.
func (i MessageIndex) Search(ctx context.Context, conversationID string, query search.Query) ([]string, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, errors.Unavailable("open index reader", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(conversationID).SetField(fieldConversationID))
	if query.Terms != "" {
		q.AddMust(bluge.NewMatchQuery(query.Terms).SetField(fieldContent))
	}
	if query.IssuerID != "" {
		q.AddMust(bluge.NewTermQuery(query.IssuerID).SetField(fieldIssuerID))
	}

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(query.Limit, q))
	if err != nil {
		return nil, errors.Unavailable("search messages", err)
	}

	var ids []string
	match, err := matches.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == fieldID {
				ids = append(ids, string(value))
			}
			return true
		})
		if err == nil {
			match, err = matches.Next()
		}
	}
	if err != nil {
		return nil, errors.Unavailable("iterate search results", err)
	}
	return ids, nil
}
