// Package models contains domain models for xfeed.
package models

import (
	"fmt"
	"time"
)

// AuthorStatus is the reputation tier of an author.
type AuthorStatus string

const (
	StatusUnknown AuthorStatus = "unknown"
	StatusRising  AuthorStatus = "rising"
	StatusTrusted AuthorStatus = "trusted"
)

// ParseAuthorStatus validates a stored status string. An empty string means unknown.
func ParseAuthorStatus(s string) (AuthorStatus, error) {
	switch AuthorStatus(s) {
	case "", StatusUnknown:
		return StatusUnknown, nil
	case StatusRising:
		return StatusRising, nil
	case StatusTrusted:
		return StatusTrusted, nil
	}
	return "", fmt.Errorf("invalid author status %q", s)
}

// ReputationRecord is the persisted reputation state of one author.
type ReputationRecord struct {
	FirstSeen         time.Time    `json:"first_seen"`
	LastSeen          time.Time    `json:"last_seen"`
	LastExplorationAt *time.Time   `json:"last_exploration_at,omitempty"`
	Author            string       `json:"author"`
	Status            AuthorStatus `json:"status"`
	Observations      int          `json:"observations"`
}

// StatusOf returns the record's status, treating a nil record as unknown.
func StatusOf(rec *ReputationRecord) AuthorStatus {
	if rec == nil || rec.Status == "" {
		return StatusUnknown
	}
	return rec.Status
}

// InCooldown reports whether the author was surfaced via exploration less than
// cooldown ago. A nil record or a record never explored is never in cooldown.
func (r *ReputationRecord) InCooldown(now time.Time, cooldown time.Duration) bool {
	if r == nil || r.LastExplorationAt == nil {
		return false
	}
	return now.Sub(*r.LastExplorationAt) < cooldown
}

// ScoreObservation is one scored post in an author's rolling history.
type ScoreObservation struct {
	ObservedAt time.Time `json:"observed_at"`
	Author     string    `json:"author"`
	PostID     string    `json:"post_id"`
	Score      float64   `json:"score"`
}
