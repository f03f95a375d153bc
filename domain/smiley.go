package domain

import (
	"bourracho/errors"
	"crypto/rand"
	"math/big"

	"github.com/forPelevin/gomoji"
)

var smileys = []string{
	"😀", "😃", "😄", "😁", "😆", "😅", "😂", "🙂", "🙃", "😉",
	"😊", "😇", "🥰", "😍", "🤩", "😘", "😋", "😛", "😜", "🤪",
	"😝", "🤗", "🤭", "🤫", "🤔", "🤐", "🤨", "😐", "😏", "😌",
	"😴", "🤠", "🥳", "😎", "🤓", "🧐", "🤡", "👻", "👽", "🤖",
	"🐶", "🐱", "🦊", "🐻", "🐼", "🐨", "🐯", "🦁", "🐸", "🐵",
}

// RandomSmiley picks the smiley assigned to a new member.
func RandomSmiley() string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(smileys))))
	if err != nil {
		return smileys[0]
	}
	return smileys[n.Int64()]
}

// ValidateEmoji checks that value holds exactly one emoji and nothing else.
func ValidateEmoji(value string) error {
	found := gomoji.CollectAll(value)
	if len(found) != 1 || found[0].Character != value {
		return errors.ErrInvalidEmoji
	}
	return nil
}
