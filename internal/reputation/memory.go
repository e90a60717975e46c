package reputation

import (
	"context"
	"sort"
	"sync"

	"github.com/thebtf/xfeed/pkg/models"
)

// MemoryStore is an in-process Store. It backs tests and the "memory" storage driver.
type MemoryStore struct {
	records      map[string]*models.ReputationRecord
	history      map[string][]models.ScoreObservation
	historyLimit int
	mu           sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store. historyLimit <= 0 uses DefaultHistoryLimit.
func NewMemoryStore(historyLimit int) *MemoryStore {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &MemoryStore{
		records:      make(map[string]*models.ReputationRecord),
		history:      make(map[string][]models.ScoreObservation),
		historyLimit: historyLimit,
	}
}

// Get returns a copy of the author's record, or nil when absent.
func (s *MemoryStore) Get(ctx context.Context, author string) (*models.ReputationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[models.NormalizeHandle(author)]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// Commit applies the batch under one write lock so readers never see half of it.
func (s *MemoryStore) Commit(ctx context.Context, batch *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if batch == nil || batch.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, author := range batch.Touched() {
		var current *models.ReputationRecord
		if rec, ok := s.records[author]; ok {
			current = copyRecord(rec)
		}
		s.records[author] = batch.Apply(author, current)
	}

	for _, o := range batch.Observations() {
		s.history[o.Author] = append(s.history[o.Author], o)
	}
	for _, author := range batch.Touched() {
		h := s.history[author]
		sort.SliceStable(h, func(i, j int) bool { return h[i].ObservedAt.Before(h[j].ObservedAt) })
		if len(h) > s.historyLimit {
			h = append([]models.ScoreObservation(nil), h[len(h)-s.historyLimit:]...)
		}
		s.history[author] = h
	}
	return nil
}

// History returns up to limit observations for the author, newest first.
func (s *MemoryStore) History(ctx context.Context, author string, limit int) ([]models.ScoreObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history[models.NormalizeHandle(author)]
	out := make([]models.ScoreObservation, 0, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out = append(out, h[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Authors returns every known author in ascending order.
func (s *MemoryStore) Authors(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.records))
	for a := range s.records {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func copyRecord(rec *models.ReputationRecord) *models.ReputationRecord {
	cp := *rec
	if rec.LastExplorationAt != nil {
		at := *rec.LastExplorationAt
		cp.LastExplorationAt = &at
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
