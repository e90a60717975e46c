// Package curation runs curation cycles: dedupe, score, explore, merge and persist.
package curation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thebtf/xfeed/internal/dedup"
	"github.com/thebtf/xfeed/internal/exploration"
	"github.com/thebtf/xfeed/internal/reputation"
	"github.com/thebtf/xfeed/internal/scoring"
	"github.com/thebtf/xfeed/pkg/models"
)

// Request is the input of one curation cycle.
type Request struct {
	// Now is the cycle time. Zero means time.Now().
	Now time.Time
	// Scores maps candidate id to its oracle score. Missing ids are excluded.
	Scores map[string]models.OracleScore
	// Candidates is the raw batch from the fetcher.
	Candidates []models.Candidate
	// MalformedScores lists ids whose oracle entry could not be used.
	MalformedScores []string
	// FeedSize overrides the configured feed size when positive.
	FeedSize int
	// Seed drives the exploration draw. Zero derives it from Now.
	Seed int64
}

// Engine orchestrates curation cycles over one reputation store.
// Cycles on the same engine never overlap.
type Engine struct {
	store reputation.Store
	log   zerolog.Logger
	newID func() string
	mu    sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithIDGenerator replaces the cycle id generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine creates an engine that reads and writes author state through store.
func NewEngine(store reputation.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   zerolog.Nop(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "curation").Logger()
	return e
}

// Exclusive runs fn while no cycle is in progress. Other writers of the
// reputation store use it so that a cycle sees one consistent store state.
func (e *Engine) Exclusive(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

// Curate runs one cycle.
//
// A configuration that violates its invariants fails the cycle before any work
// with an error wrapping models.ErrInvalidConfig. Input and reputation defects are
// counted in the result, never returned. If ctx is cancelled the cycle is
// abandoned and nothing is written to the reputation store.
func (e *Engine) Curate(ctx context.Context, req Request, cfg *models.CurationConfig) (*models.CurationResult, error) {
	if cfg == nil {
		cfg = models.DefaultCurationConfig()
	}
	effective := *cfg
	if req.FeedSize != 0 {
		effective.FeedSize = req.FeedSize
	}
	if err := effective.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	result, err := e.run(ctx, req, &effective)
	outcome := "ok"
	if err != nil {
		outcome = "abandoned"
	}
	recordCycle(ctx, time.Since(start), result, outcome)
	return result, err
}

func (e *Engine) run(ctx context.Context, req Request, cfg *models.CurationConfig) (*models.CurationResult, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	seed := req.Seed
	if seed == 0 {
		seed = now.UnixNano()
	}
	cycleID := e.newID()
	log := e.log.With().Str("cycle", cycleID).Logger()

	groups, defects := dedup.New(dedup.Config{SimilarityThreshold: cfg.DedupSimilarityThreshold}, log).
		Dedupe(req.Candidates)

	entries, scoreDefects := e.score(groups, req, &cfg.Scoring, log)
	defects.Add(scoreDefects)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("curation abandoned: %w", err)
	}

	pool := make([]exploration.Entry, len(entries))
	for i := range entries {
		pool[i] = exploration.Entry{Candidate: entries[i].Candidate, Score: entries[i].Score}
	}
	sel, err := exploration.NewSampler(e.store, log).Sample(ctx, pool, cfg.Exploration, cfg.FeedSize, seed, now)
	if err != nil {
		return nil, fmt.Errorf("curation abandoned: %w", err)
	}
	defects.ReputationUnavailable += sel.ReputationDefects

	feed := merge(entries, sel.Selected, cfg.RelevanceThreshold, cfg.FeedSize)

	batch := reputation.NewBatch()
	for author, at := range sel.Cooldowns {
		batch.RecordExploration(author, at)
	}
	for i := range entries {
		c := &entries[i].Candidate
		batch.RecordObservation(c.Author, c.ID, entries[i].Score.Final, now)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("curation abandoned: %w", err)
	}

	result := &models.CurationResult{
		GeneratedAt:         now,
		CycleID:             cycleID,
		Entries:             feed,
		Defects:             defects,
		Considered:          len(groups),
		ExplorationQuota:    sel.Quota,
		ExplorationSelected: len(sel.Order),
	}

	if err := e.store.Commit(ctx, batch); err != nil {
		log.Error().Err(err).Int("changes", batch.Len()).Msg("Reputation commit failed")
	} else {
		result.ReputationCommitted = true
	}

	if defects.Total() > 0 {
		log.Warn().
			Int("missing_identity", defects.MissingIdentity).
			Int("missing_author", defects.MissingAuthor).
			Int("duplicate_identity", defects.DuplicateIdentity).
			Int("missing_score", defects.MissingScore).
			Int("malformed_score", defects.MalformedScore).
			Int("excluded_by_oracle", defects.ExcludedByOracle).
			Int("reputation_unavailable", defects.ReputationUnavailable).
			Msg("Cycle completed with defects")
	}
	log.Info().
		Int("candidates", len(req.Candidates)).
		Int("groups", len(groups)).
		Int("scored", len(entries)).
		Int("entries", len(feed)).
		Int("exploration", len(sel.Order)).
		Msg("Curation cycle complete")

	return result, nil
}

// score adjusts every representative that has a usable, non-excluded oracle score.
func (e *Engine) score(groups []models.DuplicateGroup, req Request, cfg *models.ScoringConfig, log zerolog.Logger) ([]models.CurationEntry, models.DefectSummary) {
	var defects models.DefectSummary
	malformed := make(map[string]bool, len(req.MalformedScores))
	for _, id := range req.MalformedScores {
		malformed[id] = true
	}

	adjuster := scoring.NewAdjuster(cfg)
	entries := make([]models.CurationEntry, 0, len(groups))
	for _, g := range groups {
		rep := g.Representative
		if malformed[rep.ID] {
			defects.MalformedScore++
			continue
		}
		score, ok := req.Scores[rep.ID]
		if !ok {
			defects.MissingScore++
			continue
		}
		if err := score.Validate(); err != nil {
			defects.MalformedScore++
			log.Warn().Err(err).Str("id", rep.ID).Msg("Malformed oracle score")
			continue
		}
		if score.Excluded {
			defects.ExcludedByOracle++
			continue
		}

		entries = append(entries, models.CurationEntry{
			Candidate:      rep,
			CollapseReason: g.Reason,
			CollapsedCount: g.CollapsedCount,
			Score:          adjuster.Adjust(score),
			Superdunk:      score.Superdunk,
		})
	}
	return entries, defects
}

// merge keeps every general entry at or above the display threshold plus the
// exploration selection, orders them and truncates to feedSize.
func merge(entries []models.CurationEntry, selected map[string]bool, threshold float64, feedSize int) []models.CurationEntry {
	feed := make([]models.CurationEntry, 0, len(entries))
	for _, entry := range entries {
		if selected[entry.Candidate.ID] {
			entry.IsExploration = true
			entry.Score.Explanation.Mark(models.MarkerExplore)
			feed = append(feed, entry)
			continue
		}
		if entry.Score.Final >= threshold {
			feed = append(feed, entry)
		}
	}

	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].Less(&feed[j])
	})
	if len(feed) > feedSize {
		feed = feed[:feedSize]
	}
	return feed
}
