package event

import (
	"bourracho/domain"
	"encoding/json"
	"time"
)

type Kind string

const (
	MemberJoinedKind           Kind = "member_joined"
	MemberLeftKind             Kind = "member_left"
	MetadataChangedKind        Kind = "metadata_changed"
	MessagePostedKind          Kind = "message_posted"
	MessageReactionUpdatedKind Kind = "message_reaction_updated"
	MessageVoteUpdatedKind     Kind = "message_vote_updated"
	MemberProfileChangedKind   Kind = "member_profile_changed"
	MessageEditedKind          Kind = "message_edited"
)

// DomainEvent is the closed set of changes broadcast to a conversation.
// Only types of this package can implement it.
type DomainEvent interface {
	ConversationID() string
	Kind() Kind
	OccurredAt() time.Time
	sealed()
}

type header struct {
	Conversation string    `json:"conversation_id"`
	At           time.Time `json:"at"`
}

func newHeader(conversationID string) header {
	return header{Conversation: conversationID, At: time.Now().UTC()}
}

func (h header) ConversationID() string { return h.Conversation }
func (h header) OccurredAt() time.Time  { return h.At }
func (header) sealed()                  {}

type MemberJoined struct {
	header
	UserID        string  `json:"user_id"`
	AssignedEmoji *string `json:"assigned_emoji,omitempty"`
}

func NewMemberJoined(conversationID, userID string, assignedEmoji *string) MemberJoined {
	return MemberJoined{header: newHeader(conversationID), UserID: userID, AssignedEmoji: assignedEmoji}
}

func (MemberJoined) Kind() Kind { return MemberJoinedKind }

type MemberLeft struct {
	header
	UserID     string  `json:"user_id"`
	NewAdminID *string `json:"new_admin_id,omitempty"`
}

func NewMemberLeft(conversationID, userID string, newAdminID *string) MemberLeft {
	return MemberLeft{header: newHeader(conversationID), UserID: userID, NewAdminID: newAdminID}
}

func (MemberLeft) Kind() Kind { return MemberLeftKind }

type MetadataChanged struct {
	header
	Field     domain.MetadataField `json:"field"`
	NewValue  any                  `json:"new_value"`
	ChangedBy string               `json:"changed_by"`
}

func NewMetadataChanged(conversationID string, change domain.FieldChange, changedBy string) MetadataChanged {
	return MetadataChanged{
		header:    newHeader(conversationID),
		Field:     change.Field,
		NewValue:  change.NewValue,
		ChangedBy: changedBy,
	}
}

func (MetadataChanged) Kind() Kind { return MetadataChangedKind }

type MessagePosted struct {
	header
	Message domain.Message `json:"message"`
}

func NewMessagePosted(message domain.Message) MessagePosted {
	return MessagePosted{header: newHeader(message.ConversationID), Message: message}
}

func (MessagePosted) Kind() Kind { return MessagePostedKind }

type MessageReactionUpdated struct {
	header
	MessageID string         `json:"message_id"`
	Message   domain.Message `json:"message"`
}

func NewMessageReactionUpdated(message domain.Message) MessageReactionUpdated {
	return MessageReactionUpdated{header: newHeader(message.ConversationID), MessageID: message.ID, Message: message}
}

func (MessageReactionUpdated) Kind() Kind { return MessageReactionUpdatedKind }

type MessageVoteUpdated struct {
	header
	MessageID string         `json:"message_id"`
	Message   domain.Message `json:"message"`
}

func NewMessageVoteUpdated(message domain.Message) MessageVoteUpdated {
	return MessageVoteUpdated{header: newHeader(message.ConversationID), MessageID: message.ID, Message: message}
}

func (MessageVoteUpdated) Kind() Kind { return MessageVoteUpdatedKind }

type MessageEdited struct {
	header
	MessageID string         `json:"message_id"`
	Message   domain.Message `json:"message"`
}

func NewMessageEdited(message domain.Message) MessageEdited {
	return MessageEdited{header: newHeader(message.ConversationID), MessageID: message.ID, Message: message}
}

func (MessageEdited) Kind() Kind { return MessageEditedKind }

type MemberProfileChanged struct {
	header
	UserID    string  `json:"user_id"`
	Pseudo    *string `json:"pseudo,omitempty"`
	Smiley    *string `json:"smiley,omitempty"`
	ChangedBy string  `json:"changed_by"`
}

func NewMemberProfileChanged(conversationID, userID string, profile domain.ConversationUser, changedBy string) MemberProfileChanged {
	return MemberProfileChanged{
		header:    newHeader(conversationID),
		UserID:    userID,
		Pseudo:    profile.Pseudo,
		Smiley:    profile.Smiley,
		ChangedBy: changedBy,
	}
}

func (MemberProfileChanged) Kind() Kind { return MemberProfileChangedKind }

// MarshalFrame encodes e as the JSON object sent on live connections,
// with its kind under "type".
func MarshalFrame(e DomainEvent) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err = json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(e.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = kind
	return json.Marshal(fields)
}
