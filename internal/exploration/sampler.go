// Package exploration injects a bounded, seeded sample of unknown-author posts into the feed.
package exploration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebtf/xfeed/internal/reputation"
	"github.com/thebtf/xfeed/pkg/models"
)

// Entry is one scored representative offered to the sampler.
type Entry struct {
	Candidate models.Candidate
	Score     models.AdjustedScore
}

// Selection is the outcome of one sampling pass.
type Selection struct {
	// Selected holds the ids of the chosen entries.
	Selected map[string]bool `json:"-"`
	// Cooldowns maps each selected author to the cycle time.
	Cooldowns map[string]time.Time `json:"cooldowns"`
	// Order lists the chosen ids in draw order.
	Order             []string `json:"order"`
	Quota             int      `json:"quota"`
	Eligible          int      `json:"eligible"`
	Considered        int      `json:"considered"`
	ReputationDefects int      `json:"reputation_defects"`
}

// Sampler selects exploration candidates.
type Sampler struct {
	reader reputation.Reader
	log    zerolog.Logger
}

// NewSampler creates a sampler reading author state from reader.
func NewSampler(reader reputation.Reader, log zerolog.Logger) *Sampler {
	return &Sampler{
		reader: reader,
		log:    log.With().Str("component", "exploration").Logger(),
	}
}

// Sample picks at most cfg.Quota(feedSize) entries from pool.
//
// An entry is eligible when it has an author whose status is unknown, its final
// score reaches cfg.MinQuality, and its author is out of cooldown. Only the
// cfg.DiversityWindow most recent eligible entries are considered, and at most
// one per author. The draw is weighted by final score and fully determined by
// seed and the eligible set. Fewer eligible entries than the quota is not an error.
//
// A failed reputation read degrades that author to unknown with no cooldown.
// Only context cancellation is returned as an error.
func (s *Sampler) Sample(ctx context.Context, pool []Entry, cfg models.ExplorationConfig, feedSize int, seed int64, now time.Time) (*Selection, error) {
	sel := &Selection{
		Selected:  make(map[string]bool),
		Cooldowns: make(map[string]time.Time),
		Quota:     cfg.Quota(feedSize),
	}

	eligible, defects, err := s.eligible(ctx, pool, cfg, now)
	if err != nil {
		return nil, err
	}
	sel.Eligible = len(eligible)
	sel.ReputationDefects = defects

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Candidate.NewerThan(&eligible[j].Candidate)
	})
	if len(eligible) > cfg.DiversityWindow {
		eligible = eligible[:cfg.DiversityWindow]
	}
	diverse := onePerAuthor(eligible)
	sel.Considered = len(diverse)

	byID := make(map[string]*Entry, len(diverse))
	for i := range diverse {
		byID[diverse[i].Candidate.ID] = &diverse[i]
	}
	for _, id := range Draw(diverse, sel.Quota, uint64(seed)) {
		e := byID[id]
		sel.Selected[id] = true
		sel.Order = append(sel.Order, id)
		sel.Cooldowns[e.Candidate.AuthorKey()] = now
	}

	s.log.Debug().
		Int("pool", len(pool)).
		Int("eligible", sel.Eligible).
		Int("considered", sel.Considered).
		Int("quota", sel.Quota).
		Int("selected", len(sel.Order)).
		Msg("Sampled exploration candidates")

	return sel, nil
}

// eligible filters the pool, reading each author's record once.
func (s *Sampler) eligible(ctx context.Context, pool []Entry, cfg models.ExplorationConfig, now time.Time) ([]Entry, int, error) {
	records := make(map[string]*models.ReputationRecord)
	defects := 0
	cooldown := cfg.Cooldown()

	var out []Entry
	for _, e := range pool {
		if e.Score.Final < cfg.MinQuality {
			continue
		}
		author := e.Candidate.AuthorKey()
		if author == "" {
			continue
		}
		rec, ok := records[author]
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, 0, fmt.Errorf("exploration: %w", err)
			}
			var err error
			rec, err = s.reader.Get(ctx, author)
			if err != nil {
				if ctx.Err() != nil {
					return nil, 0, fmt.Errorf("exploration: %w", ctx.Err())
				}
				defects++
				s.log.Warn().Err(err).Str("author", author).Msg("Reputation unavailable, treating author as unknown")
				rec = nil
			}
			records[author] = rec
		}

		if models.StatusOf(rec) != models.StatusUnknown {
			continue
		}
		if rec.InCooldown(now, cooldown) {
			continue
		}
		out = append(out, e)
	}
	return out, defects, nil
}

// onePerAuthor keeps each author's best entry: highest final score, then newest.
// Input must be in recency order; output keeps that order.
func onePerAuthor(entries []Entry) []Entry {
	best := make(map[string]int)
	var out []Entry
	for _, e := range entries {
		author := e.Candidate.AuthorKey()
		i, ok := best[author]
		if !ok {
			best[author] = len(out)
			out = append(out, e)
			continue
		}
		if e.Score.Final > out[i].Score.Final {
			out[i] = e
		}
	}
	return out
}
