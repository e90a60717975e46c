// Package models contains domain models for xfeed.
package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// CollapseReason explains why candidates were folded into one duplicate group.
type CollapseReason string

const (
	// CollapseNone marks a singleton group.
	CollapseNone              CollapseReason = "none"
	CollapseSameLink          CollapseReason = "same-link"
	CollapseQuoteChain        CollapseReason = "quote-chain"
	CollapseNearDuplicateText CollapseReason = "near-duplicate-text"
)

// Precedence orders collapse reasons; lower values win.
func (r CollapseReason) Precedence() int {
	switch r {
	case CollapseSameLink:
		return 0
	case CollapseQuoteChain:
		return 1
	case CollapseNearDuplicateText:
		return 2
	}
	return 3
}

// DuplicateGroup is a set of candidates collapsed to one displayed representative.
type DuplicateGroup struct {
	Representative Candidate      `json:"representative"`
	Reason         CollapseReason `json:"collapse_reason"`
	Members        []string       `json:"members"`
	CollapsedCount int            `json:"collapsed_count"`
}

// DefectSummary counts recoverable input and state defects of one cycle.
type DefectSummary struct {
	MissingIdentity       int `json:"missing_identity"`
	MissingAuthor         int `json:"missing_author"`
	DuplicateIdentity     int `json:"duplicate_identity"`
	MissingScore          int `json:"missing_score"`
	MalformedScore        int `json:"malformed_score"`
	ExcludedByOracle      int `json:"excluded_by_oracle"`
	ReputationUnavailable int `json:"reputation_unavailable"`
}

// Total returns the number of defects across all categories.
func (d DefectSummary) Total() int {
	return d.MissingIdentity + d.MissingAuthor + d.DuplicateIdentity + d.MissingScore +
		d.MalformedScore + d.ExcludedByOracle + d.ReputationUnavailable
}

// Add accumulates other into d.
func (d *DefectSummary) Add(other DefectSummary) {
	d.MissingIdentity += other.MissingIdentity
	d.MissingAuthor += other.MissingAuthor
	d.DuplicateIdentity += other.DuplicateIdentity
	d.MissingScore += other.MissingScore
	d.MalformedScore += other.MalformedScore
	d.ExcludedByOracle += other.ExcludedByOracle
	d.ReputationUnavailable += other.ReputationUnavailable
}

// CurationEntry is one item of the curated feed.
type CurationEntry struct {
	Candidate      Candidate      `json:"candidate"`
	CollapseReason CollapseReason `json:"collapse_reason"`
	Score          AdjustedScore  `json:"score"`
	CollapsedCount int            `json:"collapsed_count"`
	IsExploration  bool           `json:"is_exploration"`
	Superdunk      bool           `json:"superdunk,omitempty"`
}

// Less reports whether e sorts before other in feed order:
// final score desc, then timestamp desc, then ID asc.
func (e *CurationEntry) Less(other *CurationEntry) bool {
	if e.Score.Final != other.Score.Final {
		return e.Score.Final > other.Score.Final
	}
	return e.Candidate.NewerThan(&other.Candidate)
}

// CurationResult is the output of one curation cycle.
type CurationResult struct {
	GeneratedAt         time.Time       `json:"generated_at"`
	CycleID             string          `json:"cycle_id"`
	Entries             []CurationEntry `json:"entries"`
	Defects             DefectSummary   `json:"defects"`
	Considered          int             `json:"considered"`
	ExplorationQuota    int             `json:"exploration_quota"`
	ExplorationSelected int             `json:"exploration_selected"`
	ReputationCommitted bool            `json:"reputation_committed"`
}

// ErrInvalidConfig is returned when a curation configuration violates its invariants.
var ErrInvalidConfig = errors.New("invalid curation config")

// ExplorationConfig controls the exploration sampler.
type ExplorationConfig struct {
	Rate            float64 `json:"exploration_rate" yaml:"exploration_rate"`
	MinQuality      float64 `json:"exploration_min_quality" yaml:"exploration_min_quality"`
	CooldownHours   float64 `json:"exploration_cooldown_hours" yaml:"exploration_cooldown_hours"`
	DiversityWindow int     `json:"exploration_diversity_window" yaml:"exploration_diversity_window"`
}

// Cooldown returns the cooldown as a duration.
func (c ExplorationConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownHours * float64(time.Hour))
}

// quotaEpsilon absorbs binary rounding so that e.g. 0.29 × 100 floors to 29.
const quotaEpsilon = 1e-9

// Quota returns floor(rate × feedSize), never negative.
func (c ExplorationConfig) Quota(feedSize int) int {
	q := int(math.Floor(c.Rate*float64(feedSize) + quotaEpsilon))
	if q < 0 {
		return 0
	}
	return q
}

// CurationConfig is everything one curation cycle consumes.
type CurationConfig struct {
	Scoring                  ScoringConfig     `json:"scoring"`
	Exploration              ExplorationConfig `json:"exploration"`
	RelevanceThreshold       float64           `json:"relevance_threshold"`
	DedupSimilarityThreshold float64           `json:"dedup_similarity_threshold"`
	FeedSize                 int               `json:"feed_size"`
}

// DefaultCurationConfig returns the defaults of the original xfeed settings.
func DefaultCurationConfig() *CurationConfig {
	return &CurationConfig{
		Scoring: *DefaultScoringConfig(),
		Exploration: ExplorationConfig{
			Rate:            0.1,
			MinQuality:      7,
			DiversityWindow: 50,
			CooldownHours:   24,
		},
		RelevanceThreshold:       7,
		DedupSimilarityThreshold: 0.8,
		FeedSize:                 50,
	}
}

// Validate checks every invariant of the configuration. Violations are fatal
// for the cycle; values are never clamped silently.
func (c *CurationConfig) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.RelevanceThreshold >= 0 && c.RelevanceThreshold <= MaxScore,
		"relevance_threshold %v outside [0,%d]", c.RelevanceThreshold, MaxScore)
	check(c.FeedSize >= 1, "feed size %d must be at least 1", c.FeedSize)
	check(c.DedupSimilarityThreshold > 0 && c.DedupSimilarityThreshold <= 1,
		"dedup_similarity_threshold %v outside (0,1]", c.DedupSimilarityThreshold)

	e := c.Exploration
	check(e.Rate >= 0 && e.Rate <= 1, "exploration_rate %v outside [0,1]", e.Rate)
	check(e.MinQuality >= 0 && e.MinQuality <= MaxScore,
		"exploration_min_quality %v outside [0,%d]", e.MinQuality, MaxScore)
	check(e.DiversityWindow >= 1, "exploration_diversity_window %d must be at least 1", e.DiversityWindow)
	check(e.CooldownHours >= 0, "exploration_cooldown_hours %v is negative", e.CooldownHours)

	s := c.Scoring
	check(s.ReasoningBoostMax >= 0, "reasoning_boost_max %v is negative", s.ReasoningBoostMax)
	check(s.ReasoningPenaltyMax >= 0, "reasoning_penalty_max %v is negative", s.ReasoningPenaltyMax)
	check(s.DissentMinRigor >= 0 && s.DissentMinRigor <= MaxScore,
		"dissent_min_rigor %d outside [0,%d]", s.DissentMinRigor, MaxScore)
	check(s.DissentBonusCap >= 0, "dissent_bonus_cap %v is negative", s.DissentBonusCap)
	for f, w := range s.FactorWeights {
		check(f.Valid(), "factor_weights: unknown factor %q", f)
		check(w >= 0, "factor_weights[%s] %v is negative", f, w)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
