// Package reputation persists author reputation, exploration cooldowns and score history.
package reputation

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/thebtf/xfeed/pkg/models"
)

// ErrCorruptRecord is returned when one author's stored record cannot be decoded.
// Callers degrade that author to unknown status instead of failing the cycle.
var ErrCorruptRecord = errors.New("corrupt reputation record")

// DefaultHistoryLimit is the number of score observations kept per author.
const DefaultHistoryLimit = 200

// Reader is the read side used during a curation cycle.
type Reader interface {
	// Get returns the record for an author, or (nil, nil) when none exists.
	Get(ctx context.Context, author string) (*models.ReputationRecord, error)
}

// Store is a durable reputation backend.
type Store interface {
	Reader
	// Commit applies every change buffered in the batch atomically.
	Commit(ctx context.Context, batch *Batch) error
	// History returns up to limit observations for an author, newest first.
	History(ctx context.Context, author string, limit int) ([]models.ScoreObservation, error)
	// Authors returns every known author handle in ascending order.
	Authors(ctx context.Context) ([]string, error)
	Close() error
}

// StatusChange is one status assignment buffered in a Batch.
type StatusChange struct {
	Author string
	Status models.AuthorStatus
}

// Exploration is one cooldown stamp buffered in a Batch.
type Exploration struct {
	At     time.Time
	Author string
}

// Batch buffers the reputation updates of one cycle so they can be committed together.
// A Batch is not safe for concurrent use.
type Batch struct {
	explorations map[string]time.Time
	statuses     map[string]models.AuthorStatus
	observations []models.ScoreObservation
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{
		explorations: make(map[string]time.Time),
		statuses:     make(map[string]models.AuthorStatus),
	}
}

// RecordExploration stamps the author's exploration cooldown. The latest stamp wins.
func (b *Batch) RecordExploration(author string, at time.Time) {
	author = models.NormalizeHandle(author)
	if author == "" {
		return
	}
	if prev, ok := b.explorations[author]; !ok || at.After(prev) {
		b.explorations[author] = at
	}
}

// RecordObservation appends one scored post to the author's history.
func (b *Batch) RecordObservation(author, postID string, score float64, at time.Time) {
	author = models.NormalizeHandle(author)
	if author == "" {
		return
	}
	b.observations = append(b.observations, models.ScoreObservation{
		Author:     author,
		PostID:     postID,
		Score:      score,
		ObservedAt: at,
	})
}

// SetStatus assigns a derived status to the author.
func (b *Batch) SetStatus(author string, status models.AuthorStatus) {
	author = models.NormalizeHandle(author)
	if author == "" {
		return
	}
	b.statuses[author] = status
}

// Len returns the number of buffered changes.
func (b *Batch) Len() int {
	return len(b.explorations) + len(b.statuses) + len(b.observations)
}

// Empty reports whether the batch holds no changes.
func (b *Batch) Empty() bool {
	return b.Len() == 0
}

// Explorations returns the buffered cooldown stamps ordered by author.
func (b *Batch) Explorations() []Exploration {
	out := make([]Exploration, 0, len(b.explorations))
	for author, at := range b.explorations {
		out = append(out, Exploration{Author: author, At: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Author < out[j].Author })
	return out
}

// Statuses returns the buffered status changes ordered by author.
func (b *Batch) Statuses() []StatusChange {
	out := make([]StatusChange, 0, len(b.statuses))
	for author, status := range b.statuses {
		out = append(out, StatusChange{Author: author, Status: status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Author < out[j].Author })
	return out
}

// Observations returns the buffered observations in recording order.
func (b *Batch) Observations() []models.ScoreObservation {
	return append([]models.ScoreObservation(nil), b.observations...)
}

// Touched returns every author the batch changes, ordered.
func (b *Batch) Touched() []string {
	seen := make(map[string]bool)
	for a := range b.explorations {
		seen[a] = true
	}
	for a := range b.statuses {
		seen[a] = true
	}
	for _, o := range b.observations {
		seen[o.Author] = true
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Apply folds the batch's changes for one author into rec, creating it when nil.
// Backends share it so every store derives FirstSeen, LastSeen and counters the same way.
func (b *Batch) Apply(author string, rec *models.ReputationRecord) *models.ReputationRecord {
	if rec == nil {
		rec = &models.ReputationRecord{Author: author, Status: models.StatusUnknown}
	}
	touch := func(at time.Time) {
		if rec.FirstSeen.IsZero() || at.Before(rec.FirstSeen) {
			rec.FirstSeen = at
		}
		if at.After(rec.LastSeen) {
			rec.LastSeen = at
		}
	}

	for _, o := range b.observations {
		if o.Author != author {
			continue
		}
		rec.Observations++
		touch(o.ObservedAt)
	}
	if at, ok := b.explorations[author]; ok {
		if rec.LastExplorationAt == nil || at.After(*rec.LastExplorationAt) {
			stamp := at
			rec.LastExplorationAt = &stamp
		}
		touch(at)
	}
	if status, ok := b.statuses[author]; ok {
		rec.Status = status
	}
	return rec
}
