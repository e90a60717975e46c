package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurationConfig_DefaultIsValid(t *testing.T) {
	require.NoError(t, DefaultCurationConfig().Validate())
}

func TestCurationConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CurationConfig)
	}{
		{"threshold above ten", func(c *CurationConfig) { c.RelevanceThreshold = 10.5 }},
		{"negative threshold", func(c *CurationConfig) { c.RelevanceThreshold = -1 }},
		{"zero feed size", func(c *CurationConfig) { c.FeedSize = 0 }},
		{"similarity zero", func(c *CurationConfig) { c.DedupSimilarityThreshold = 0 }},
		{"similarity above one", func(c *CurationConfig) { c.DedupSimilarityThreshold = 1.2 }},
		{"rate above one", func(c *CurationConfig) { c.Exploration.Rate = 1.01 }},
		{"negative rate", func(c *CurationConfig) { c.Exploration.Rate = -0.1 }},
		{"min quality above ten", func(c *CurationConfig) { c.Exploration.MinQuality = 11 }},
		{"zero window", func(c *CurationConfig) { c.Exploration.DiversityWindow = 0 }},
		{"negative cooldown", func(c *CurationConfig) { c.Exploration.CooldownHours = -1 }},
		{"negative boost cap", func(c *CurationConfig) { c.Scoring.ReasoningBoostMax = -1 }},
		{"negative penalty cap", func(c *CurationConfig) { c.Scoring.ReasoningPenaltyMax = -1 }},
		{"rigor floor above ten", func(c *CurationConfig) { c.Scoring.DissentMinRigor = 11 }},
		{"negative dissent cap", func(c *CurationConfig) { c.Scoring.DissentBonusCap = -0.5 }},
		{"negative weight", func(c *CurationConfig) { c.Scoring.FactorWeights[FactorVague] = -1 }},
		{"unknown weight", func(c *CurationConfig) { c.Scoring.FactorWeights["shiny"] = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCurationConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestCurationConfig_BoundaryValuesAccepted(t *testing.T) {
	cfg := DefaultCurationConfig()
	cfg.Exploration.Rate = 1
	cfg.Exploration.CooldownHours = 0
	cfg.Exploration.DiversityWindow = 1
	cfg.RelevanceThreshold = 0
	cfg.DedupSimilarityThreshold = 1
	cfg.Scoring.ReasoningBoostMax = 0
	assert.NoError(t, cfg.Validate())
}

func TestExplorationConfig_Quota(t *testing.T) {
	tests := []struct {
		rate     float64
		feedSize int
		want     int
	}{
		{0.1, 50, 5},
		{0.1, 9, 0},
		{0.15, 10, 1},
		{0, 100, 0},
		{1, 7, 7},
		{0.29, 100, 29},
		{0.57, 100, 57},
		{0.7, 10, 7},
		{0.1, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExplorationConfig{Rate: tt.rate}.Quota(tt.feedSize), "rate %v size %d", tt.rate, tt.feedSize)
	}
}

func TestExplorationConfig_Cooldown(t *testing.T) {
	assert.Equal(t, 90*time.Minute, ExplorationConfig{CooldownHours: 1.5}.Cooldown())
}

func TestDefectSummary(t *testing.T) {
	d := DefectSummary{MissingIdentity: 1, MissingScore: 2}
	d.Add(DefectSummary{MissingScore: 1, MissingAuthor: 2, ReputationUnavailable: 4})

	assert.Equal(t, 3, d.MissingScore)
	assert.Equal(t, 2, d.MissingAuthor)
	assert.Equal(t, 10, d.Total())
}

func TestCollapseReason_Precedence(t *testing.T) {
	assert.Less(t, CollapseSameLink.Precedence(), CollapseQuoteChain.Precedence())
	assert.Less(t, CollapseQuoteChain.Precedence(), CollapseNearDuplicateText.Precedence())
	assert.Less(t, CollapseNearDuplicateText.Precedence(), CollapseNone.Precedence())
}

func TestCurationEntry_Less(t *testing.T) {
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	entry := func(id string, final float64, age time.Duration) *CurationEntry {
		return &CurationEntry{
			Candidate: Candidate{ID: id, Timestamp: at.Add(-age)},
			Score:     AdjustedScore{Final: final},
		}
	}

	assert.True(t, entry("a", 9, time.Hour).Less(entry("b", 8, 0)), "higher score first")
	assert.True(t, entry("a", 8, 0).Less(entry("b", 8, time.Hour)), "newer first on equal score")
	assert.True(t, entry("a", 8, 0).Less(entry("b", 8, 0)), "smaller id on full tie")
	assert.False(t, entry("b", 8, 0).Less(entry("a", 8, 0)))
}
