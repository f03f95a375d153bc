package domain

import (
	"bourracho/errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newTestConversation(members ...string) Conversation {
	conv := NewConversation("ABC123", "", members[0], false, true, "😀", time.Now().UTC())
	for _, m := range members[1:] {
		conv.AddMember(m, ConversationUser{})
	}
	return conv
}

func TestNewConversationID_Alphabet(t *testing.T) {
	req := require.New(t)
	for range 100 {
		id, err := NewConversationID()
		req.NoError(err)
		req.Regexp(`^[A-Z0-9]{6}$`, id)
	}
}

func TestNewConversation_CreatorIsSoleMemberAndAdmin(t *testing.T) {
	req := require.New(t)

	conv := NewConversation("ABC123", "", "alice", false, true, "😀", time.Now().UTC())

	req.Equal(DefaultConversationName, conv.Name)
	req.Equal("alice", conv.AdminID)
	req.Equal([]string{"alice"}, conv.UserIDs())
	req.NoError(conv.Validate())
}

func TestConversation_AddMember_Idempotent(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation("alice")

	// When bob joins twice
	first := conv.AddMember("bob", ConversationUser{})
	second := conv.AddMember("bob", ConversationUser{})

	// Then he is inserted once
	req.True(first)
	req.False(second)
	req.Equal([]string{"alice", "bob"}, conv.UserIDs())
}

func TestConversation_RemoveMember_PromotesNextInInsertionOrder(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation("alice", "bob", "carol")

	// When the admin leaves
	newAdmin, err := conv.RemoveMember("alice")

	// Then the first remaining member is promoted
	req.NoError(err)
	req.Equal(lo.ToPtr("bob"), newAdmin)
	req.Equal("bob", conv.AdminID)
	req.Equal([]string{"bob", "carol"}, conv.UserIDs())
	req.NoError(conv.Validate())
}

func TestConversation_RemoveMember_NonAdminKeepsAdmin(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation("alice", "bob", "carol")

	newAdmin, err := conv.RemoveMember("bob")

	req.NoError(err)
	req.Nil(newAdmin)
	req.Equal("alice", conv.AdminID)
}

func TestConversation_RemoveMember_Rejections(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation("alice")

	// Sole member cannot leave
	_, err := conv.RemoveMember("alice")
	req.ErrorIs(err, errors.ErrPreconditionFailed)
	req.Equal([]string{"alice"}, conv.UserIDs())

	// Non member cannot leave
	_, err = conv.RemoveMember("mallory")
	req.ErrorIs(err, errors.ErrPreconditionFailed)
}

func TestConversation_UpsertMember(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation("alice", "bob")

	// Given bob sets a pseudo and a smiley
	profile, err := conv.UpsertMember("bob", MemberUpdate{Pseudo: lo.ToPtr("Bobby"), Smiley: lo.ToPtr("🐸")})
	req.NoError(err)
	req.Equal(lo.ToPtr("Bobby"), profile.Pseudo)

	// When only the pseudo is cleared
	profile, err = conv.UpsertMember("bob", MemberUpdate{Pseudo: lo.ToPtr("")})

	// Then the smiley is untouched
	req.NoError(err)
	req.Nil(profile.Pseudo)
	req.Equal(lo.ToPtr("🐸"), profile.Smiley)

	_, err = conv.UpsertMember("mallory", MemberUpdate{Pseudo: lo.ToPtr("x")})
	req.ErrorIs(err, errors.ErrPreconditionFailed)
}

func TestConversation_ApplyMetadata_ReportsChangedFieldsOnly(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation("alice", "bob")

	changes, err := conv.ApplyMetadata(MetadataUpdate{
		Name:      lo.ToPtr("Road trip"),
		IsVisible: lo.ToPtr(true),
		AdminID:   lo.ToPtr("bob"),
	})

	req.NoError(err)
	req.Equal([]FieldChange{
		{Field: FieldName, NewValue: "Road trip"},
		{Field: FieldAdminID, NewValue: "bob"},
	}, changes)
	req.Equal("bob", conv.AdminID)
}

func TestConversation_ApplyMetadata_AdminMustBeMember(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation("alice")

	_, err := conv.ApplyMetadata(MetadataUpdate{Name: lo.ToPtr("x"), AdminID: lo.ToPtr("mallory")})

	req.ErrorIs(err, errors.ErrPreconditionFailed)
	req.Equal("alice", conv.AdminID)
	req.Equal(DefaultConversationName, conv.Name)
}

func TestConversation_Clone_IsDeep(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation("alice")

	clone := conv.Clone()
	*clone.Members[0].Member.Smiley = "🤖"
	clone.AddMember("bob", ConversationUser{})

	req.Equal("😀", *conv.Members[0].Member.Smiley)
	req.Len(conv.Members, 1)
}

func TestMessage_ReactsAppendAndVotesOverwrite(t *testing.T) {
	req := require.New(t)
	msg := Message{ID: "m1"}

	msg.AddReact(React{Emoji: "👍", IssuerID: "u1"})
	msg.AddReact(React{Emoji: "❤️", IssuerID: "u1"})
	msg.MergeVotes(map[string]string{"u1": "u2"})
	msg.MergeVotes(map[string]string{"u1": "u3", "u2": "u1"})

	req.Equal([]React{{"👍", "u1"}, {"❤️", "u1"}}, msg.Reacts)
	req.Equal(map[string]string{"u1": "u3", "u2": "u1"}, msg.Votes)

	// Empty value retracts
	msg.MergeVotes(map[string]string{"u2": ""})
	req.Equal(map[string]string{"u1": "u3"}, msg.Votes)
}

func TestValidateEmoji(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"Single emoji", "👍", false},
		{"Face", "😀", false},
		{"Empty", "", true},
		{"Plain text", "ok", true},
		{"Two emojis", "👍👍", true},
		{"Emoji with text", "👍 nice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmoji(tt.value)
			if tt.wantErr {
				require.ErrorIs(t, err, errors.ErrInvalidArgument)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRandomSmiley_IsValidEmoji(t *testing.T) {
	req := require.New(t)
	for range 50 {
		req.NoError(ValidateEmoji(RandomSmiley()))
	}
}
