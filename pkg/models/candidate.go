// Package models contains domain models for xfeed.
package models

import (
	"strings"
	"time"
)

// Engagement holds the platform counters attached to a post.
// They are informational; only the deduplicator uses them, to pick a representative.
type Engagement struct {
	Likes   int `json:"likes"`
	Reposts int `json:"reposts"`
	Replies int `json:"replies"`
}

// Total returns the combined engagement count.
func (e Engagement) Total() int {
	return e.Likes + e.Reposts + e.Replies
}

// Candidate is one post under consideration for the curated feed.
// Field order optimized for memory alignment (fieldalignment).
type Candidate struct {
	Timestamp  time.Time  `json:"timestamp"`
	ID         string     `json:"id"`
	Author     string     `json:"author"`
	AuthorName string     `json:"author_name,omitempty"`
	Text       string     `json:"text"`
	URL        string     `json:"url,omitempty"`
	QuotedID   string     `json:"quoted_id,omitempty"`
	Links      []string   `json:"links,omitempty"`
	Engagement Engagement `json:"engagement"`
	HasMedia   bool       `json:"has_media,omitempty"`
}

// NormalizeHandle canonicalizes an author handle: trimmed, lowercase, no leading "@".
// Reputation records are keyed by the normalized handle.
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(h)
}

// AuthorKey returns the normalized author handle of the candidate.
func (c *Candidate) AuthorKey() string {
	return NormalizeHandle(c.Author)
}

// NewerThan reports whether c sorts before other in recency order:
// newer timestamp first, ties broken by the smaller ID.
func (c *Candidate) NewerThan(other *Candidate) bool {
	if !c.Timestamp.Equal(other.Timestamp) {
		return c.Timestamp.After(other.Timestamp)
	}
	return c.ID < other.ID
}
