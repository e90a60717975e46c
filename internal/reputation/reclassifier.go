package reputation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebtf/xfeed/pkg/models"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Guard runs a reclassification pass. It lets the caller exclude passes from
// running while a curation cycle reads the store.
type Guard func(pass func() error) error

func unguarded(pass func() error) error { return pass() }

// loopRun is one Start..Stop lifetime of the background loop.
type loopRun struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Report summarizes one reclassification pass.
type Report struct {
	Changes  map[string]models.AuthorStatus `json:"changes,omitempty"`
	Authors  int                            `json:"authors"`
	Corrupt  int                            `json:"corrupt"`
	Duration time.Duration                  `json:"duration"`
}

// Reclassifier periodically derives author statuses from score history.
type Reclassifier struct {
	log          zerolog.Logger
	store        Store
	classifier   *Classifier
	clock        Clock
	guard        Guard
	loop         *loopRun
	interval     time.Duration
	historyLimit int
	runMu        sync.Mutex
	mu           sync.Mutex
}

// NewReclassifier creates a new background reclassifier.
func NewReclassifier(store Store, classifier *Classifier, log zerolog.Logger) *Reclassifier {
	return &Reclassifier{
		store:        store,
		classifier:   classifier,
		clock:        time.Now,
		guard:        unguarded,
		log:          log.With().Str("component", "reclassifier").Logger(),
		interval:     1 * time.Hour,
		historyLimit: DefaultHistoryLimit,
	}
}

// SetInterval changes the pass interval. It only takes effect before Start.
func (r *Reclassifier) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.interval = d
	r.mu.Unlock()
}

// SetHistoryLimit changes how many observations each pass reads per author.
func (r *Reclassifier) SetHistoryLimit(n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.historyLimit = n
	r.mu.Unlock()
}

// SetClock replaces the time source.
func (r *Reclassifier) SetClock(clock Clock) {
	if clock == nil {
		return
	}
	r.mu.Lock()
	r.clock = clock
	r.mu.Unlock()
}

// SetGuard wraps every pass, including its commit, in guard.
func (r *Reclassifier) SetGuard(guard Guard) {
	if guard == nil {
		guard = unguarded
	}
	r.mu.Lock()
	r.guard = guard
	r.mu.Unlock()
}

// Start begins the background reclassification loop.
// This should be called in a goroutine. It may be called again after Stop.
func (r *Reclassifier) Start(ctx context.Context) {
	r.mu.Lock()
	if r.loop != nil {
		r.mu.Unlock()
		return
	}
	run := &loopRun{stop: make(chan struct{}), done: make(chan struct{})}
	r.loop = run
	interval := r.interval
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.loop == run {
			r.loop = nil
		}
		r.mu.Unlock()
		close(run.done)
	}()

	if _, err := r.RunNow(ctx); err != nil {
		r.log.Error().Err(err).Msg("reclassification failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reclassifier shutting down due to context cancellation")
			return
		case <-run.stop:
			r.log.Info().Msg("reclassifier stopping")
			return
		case <-ticker.C:
			if _, err := r.RunNow(ctx); err != nil {
				r.log.Error().Err(err).Msg("reclassification failed")
			}
		}
	}
}

// Stop stops the background loop and waits for it to exit. It is safe to call
// concurrently and more than once.
func (r *Reclassifier) Stop() {
	r.mu.Lock()
	run := r.loop
	r.mu.Unlock()
	if run == nil {
		return
	}

	run.stopOnce.Do(func() { close(run.stop) })
	<-run.done
}

// RunNow performs one reclassification pass and commits every status change in one batch.
func (r *Reclassifier) RunNow(ctx context.Context) (*Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.mu.Lock()
	clock := r.clock
	limit := r.historyLimit
	guard := r.guard
	r.mu.Unlock()

	var report *Report
	err := guard(func() error {
		var err error
		report, err = r.pass(ctx, clock(), limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (r *Reclassifier) pass(ctx context.Context, now time.Time, limit int) (*Report, error) {
	start := time.Now()

	authors, err := r.store.Authors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}

	report := &Report{Authors: len(authors), Changes: make(map[string]models.AuthorStatus)}
	batch := NewBatch()
	for _, author := range authors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := r.store.Get(ctx, author)
		if err != nil {
			if !errors.Is(err, ErrCorruptRecord) {
				return nil, fmt.Errorf("get %s: %w", author, err)
			}
			// A rewritten status repairs the record.
			report.Corrupt++
			r.log.Warn().Err(err).Str("author", author).Msg("corrupt reputation record")
			rec = nil
		}

		history, err := r.store.History(ctx, author, limit)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", author, err)
		}

		assessment := r.classifier.Classify(history, now)
		if rec == nil || models.StatusOf(rec) != assessment.Status {
			batch.SetStatus(author, assessment.Status)
			report.Changes[author] = assessment.Status
		}
	}

	if err := r.store.Commit(ctx, batch); err != nil {
		return nil, fmt.Errorf("commit statuses: %w", err)
	}

	report.Duration = time.Since(start)
	r.log.Info().
		Int("authors", report.Authors).
		Int("changed", len(report.Changes)).
		Int("corrupt", report.Corrupt).
		Dur("elapsed", report.Duration).
		Msg("reclassified authors")
	return report, nil
}

// Stats describes the reclassifier state.
type Stats struct {
	Running      bool          `json:"running"`
	Interval     time.Duration `json:"interval"`
	HistoryLimit int           `json:"history_limit"`
}

// GetStats returns current reclassifier statistics.
func (r *Reclassifier) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Running: r.loop != nil, Interval: r.interval, HistoryLimit: r.historyLimit}
}
