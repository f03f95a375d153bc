// Package domain contains core concepts of the chat system.
// This file defines messages and the rules applied to reactions and votes.
package domain

import (
	"maps"
	"slices"
	"time"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

type React struct {
	Emoji    string `json:"emoji"`
	IssuerID string `json:"issuer_id"`
}

// MediaMetadata describes a stored attachment. URL is never persisted,
// it is computed on read.
type MediaMetadata struct {
	ID        string    `json:"id"`
	URI       string    `json:"uri"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Type      MediaType `json:"type"`
	IssuerID  string    `json:"issuer_id"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url,omitempty" cbor:"-"`
}

type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	IssuerID       string            `json:"issuer_id"`
	Content        string            `json:"content"`
	Language       string            `json:"language,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	EditedAt       *time.Time        `json:"edited_at,omitempty"`
	Reacts         []React           `json:"reacts"`
	Votes          map[string]string `json:"votes"`
	MediaMetadatas []MediaMetadata   `json:"medias_metadatas"`
}

// AddReact appends r, earlier reacts are never replaced.
func (m *Message) AddReact(r React) {
	m.Reacts = append(m.Reacts, r)
}

// MergeVotes overwrites the vote of every voter present in votes.
// An empty voted-for value retracts the vote.
func (m *Message) MergeVotes(votes map[string]string) {
	if m.Votes == nil {
		m.Votes = make(map[string]string, len(votes))
	}
	for voter, votedFor := range votes {
		if votedFor == "" {
			delete(m.Votes, voter)
			continue
		}
		m.Votes[voter] = votedFor
	}
}

func (m Message) Clone() Message {
	out := m
	out.Reacts = slices.Clone(m.Reacts)
	out.Votes = maps.Clone(m.Votes)
	out.MediaMetadatas = slices.Clone(m.MediaMetadatas)
	return out
}

func (m Message) MediaByID(mediaID string) (MediaMetadata, bool) {
	for _, media := range m.MediaMetadatas {
		if media.ID == mediaID {
			return media, true
		}
	}
	return MediaMetadata{}, false
}
