package domain

import (
	"bourracho/errors"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/samber/lo"
)

const (
	ConversationIDLength    = 6
	conversationIDAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultConversationName = "Name me 😘"
)

type MetadataField string

const (
	FieldName      MetadataField = "name"
	FieldIsLocked  MetadataField = "is_locked"
	FieldIsVisible MetadataField = "is_visible"
	FieldAdminID   MetadataField = "admin_id"
)

// ConversationUser is the per-conversation profile of a member.
type ConversationUser struct {
	Pseudo *string `json:"pseudo,omitempty"`
	Smiley *string `json:"smiley,omitempty"`
}

type Member struct {
	UserID string           `json:"user_id"`
	Member ConversationUser `json:"member"`
}

// Conversation keeps its members in insertion order.
// The admin is always a member while the conversation exists,
// and a stored conversation always has at least one member.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsLocked  bool      `json:"is_locked"`
	IsVisible bool      `json:"is_visible"`
	AdminID   string    `json:"admin_id"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// MetadataUpdate carries the fields to change. Nil means unchanged.
type MetadataUpdate struct {
	Name      *string
	IsLocked  *bool
	IsVisible *bool
	AdminID   *string
}

// MemberUpdate carries profile changes. Nil leaves the field as is,
// an empty string clears it.
type MemberUpdate struct {
	Pseudo *string
	Smiley *string
}

// FieldChange describes one applied metadata change.
type FieldChange struct {
	Field    MetadataField
	NewValue any
}

// NewConversationID draws a fresh identifier of ConversationIDLength characters in [A-Z0-9].
func NewConversationID() (string, error) {
	id := make([]byte, ConversationIDLength)
	alphabetLen := big.NewInt(int64(len(conversationIDAlphabet)))
	for i := range id {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		id[i] = conversationIDAlphabet[n.Int64()]
	}
	return string(id), nil
}

func NewConversation(id, name, creatorID string, isLocked, isVisible bool, smiley string, at time.Time) Conversation {
	if name == "" {
		name = DefaultConversationName
	}
	return Conversation{
		ID:        id,
		Name:      name,
		IsLocked:  isLocked,
		IsVisible: isVisible,
		AdminID:   creatorID,
		Members:   []Member{{UserID: creatorID, Member: ConversationUser{Smiley: lo.ToPtr(smiley)}}},
		CreatedAt: at,
	}
}

func (c Conversation) IsMember(userID string) bool {
	_, ok := c.Member(userID)
	return ok
}

func (c Conversation) Member(userID string) (ConversationUser, bool) {
	for _, m := range c.Members {
		if m.UserID == userID {
			return m.Member, true
		}
	}
	return ConversationUser{}, false
}

// UserIDs returns member ids in insertion order.
func (c Conversation) UserIDs() []string {
	return lo.Map(c.Members, func(m Member, _ int) string { return m.UserID })
}

// Clone returns a deep copy safe to hand out to other goroutines.
func (c Conversation) Clone() Conversation {
	out := c
	out.Members = lo.Map(c.Members, func(m Member, _ int) Member {
		return Member{UserID: m.UserID, Member: ConversationUser{
			Pseudo: clonePtr(m.Member.Pseudo),
			Smiley: clonePtr(m.Member.Smiley),
		}}
	})
	return out
}

// AddMember appends userID unless already present. It reports whether
// the member was actually inserted.
func (c *Conversation) AddMember(userID string, profile ConversationUser) bool {
	if c.IsMember(userID) {
		return false
	}
	c.Members = append(c.Members, Member{UserID: userID, Member: profile})
	return true
}

// RemoveMember drops userID. When the admin leaves, the first remaining
// member in insertion order becomes admin and is returned.
func (c *Conversation) RemoveMember(userID string) (*string, error) {
	if !c.IsMember(userID) {
		return nil, fmt.Errorf("%w: user %s is not a member of %s", errors.ErrPreconditionFailed, userID, c.ID)
	}
	if len(c.Members) == 1 {
		return nil, fmt.Errorf("%w: user %s is the last member of %s", errors.ErrPreconditionFailed, userID, c.ID)
	}
	c.Members = lo.Reject(c.Members, func(m Member, _ int) bool { return m.UserID == userID })
	if c.AdminID != userID {
		return nil, nil
	}
	c.AdminID = c.Members[0].UserID
	return lo.ToPtr(c.AdminID), nil
}

// UpsertMember applies update to the profile of an existing member.
func (c *Conversation) UpsertMember(userID string, update MemberUpdate) (ConversationUser, error) {
	for i := range c.Members {
		if c.Members[i].UserID != userID {
			continue
		}
		profile := &c.Members[i].Member
		if update.Pseudo != nil {
			profile.Pseudo = emptyAsNil(*update.Pseudo)
		}
		if update.Smiley != nil {
			profile.Smiley = emptyAsNil(*update.Smiley)
		}
		return *profile, nil
	}
	return ConversationUser{}, fmt.Errorf("%w: user %s is not a member of %s", errors.ErrPreconditionFailed, userID, c.ID)
}

// ApplyMetadata sets the supplied fields and returns the ones whose value changed.
func (c *Conversation) ApplyMetadata(update MetadataUpdate) ([]FieldChange, error) {
	if update.AdminID != nil && !c.IsMember(*update.AdminID) {
		return nil, fmt.Errorf("%w: admin %s must be a member of %s", errors.ErrPreconditionFailed, *update.AdminID, c.ID)
	}
	var changes []FieldChange
	if update.Name != nil && *update.Name != c.Name {
		c.Name = *update.Name
		changes = append(changes, FieldChange{Field: FieldName, NewValue: c.Name})
	}
	if update.IsLocked != nil && *update.IsLocked != c.IsLocked {
		c.IsLocked = *update.IsLocked
		changes = append(changes, FieldChange{Field: FieldIsLocked, NewValue: c.IsLocked})
	}
	if update.IsVisible != nil && *update.IsVisible != c.IsVisible {
		c.IsVisible = *update.IsVisible
		changes = append(changes, FieldChange{Field: FieldIsVisible, NewValue: c.IsVisible})
	}
	if update.AdminID != nil && *update.AdminID != c.AdminID {
		c.AdminID = *update.AdminID
		changes = append(changes, FieldChange{Field: FieldAdminID, NewValue: c.AdminID})
	}
	return changes, nil
}

// Validate checks the structural invariants of a conversation about to be stored.
func (c Conversation) Validate() error {
	if len(c.Members) == 0 {
		return fmt.Errorf("%w: conversation %s has no member", errors.ErrPreconditionFailed, c.ID)
	}
	if !c.IsMember(c.AdminID) {
		return fmt.Errorf("%w: admin %s is not a member of %s", errors.ErrPreconditionFailed, c.AdminID, c.ID)
	}
	if len(lo.Uniq(c.UserIDs())) != len(c.Members) {
		return fmt.Errorf("%w: duplicated member in %s", errors.ErrPreconditionFailed, c.ID)
	}
	return nil
}

func (u MetadataUpdate) IsEmpty() bool {
	return u.Name == nil && u.IsLocked == nil && u.IsVisible == nil && u.AdminID == nil
}

func emptyAsNil(s string) *string {
	if s == "" {
		return nil
	}
	return lo.ToPtr(s)
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	return lo.ToPtr(*s)
}
