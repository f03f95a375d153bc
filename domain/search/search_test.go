package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSearchQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Query
	}{
		{"words only", "pizza friday", Query{Terms: "pizza friday", Limit: 20}},
		{"issuer filter", "pizza --from alice", Query{Terms: "pizza", IssuerID: "alice", Limit: 20}},
		{"limit", "--limit 5 pizza", Query{Terms: "pizza", Limit: 5}},
		{"invalid limit kept default", "pizza --limit -3", Query{Terms: "pizza", Limit: 20}},
		{"unknown flag skipped", "pizza --mood happy", Query{Terms: "pizza", Limit: 20}},
		{"dangling flag", "pizza --from", Query{Terms: "pizza", Limit: 20}},
		{"blank", "   ", Query{Limit: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NewSearchQuery(tt.input, 20))
		})
	}
}

func TestQuery_IsEmpty(t *testing.T) {
	req := require.New(t)
	req.True(Query{Limit: 10}.IsEmpty())
	req.False(Query{IssuerID: "alice"}.IsEmpty())
}
