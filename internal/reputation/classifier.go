package reputation

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/thebtf/xfeed/pkg/models"
)

// Trend directions reported by the classifier.
const (
	TrendRising    = "rising"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// ClassifierConfig controls how score history maps to an author status.
type ClassifierConfig struct {
	// MinimumSamples is the history size needed before an author can be trusted.
	MinimumSamples int `json:"minimum_samples" yaml:"minimum_samples"`
	// TrustedThreshold is the forgiving average an author needs to be trusted.
	TrustedThreshold float64 `json:"trusted_threshold" yaml:"trusted_threshold"`
	// RisingMinSamples is the history size needed before a trend counts.
	RisingMinSamples int `json:"rising_min_samples" yaml:"rising_min_samples"`
	// RisingDelta is how far the last window's mean must exceed the previous one.
	RisingDelta float64 `json:"rising_delta" yaml:"rising_delta"`
	// TrendWindow is the width of each trend window (default 7 days).
	TrendWindow time.Duration `json:"trend_window" yaml:"trend_window"`
	// RecentWindow bounds the recent forgiving average (default 30 days).
	RecentWindow time.Duration `json:"recent_window" yaml:"recent_window"`
	// KeepShare is the share of best scores kept by the forgiving average.
	KeepShare float64 `json:"keep_share" yaml:"keep_share"`
}

// DefaultClassifierConfig returns the default classifier configuration.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MinimumSamples:   5,
		TrustedThreshold: 7.5,
		RisingMinSamples: 3,
		RisingDelta:      0.5,
		TrendWindow:      7 * 24 * time.Hour,
		RecentWindow:     30 * 24 * time.Hour,
		KeepShare:        0.8,
	}
}

// Assessment is the classifier's view of one author.
type Assessment struct {
	Status        models.AuthorStatus `json:"status"`
	Trend         string              `json:"trend"`
	Average       float64             `json:"average"`
	RecentAverage float64             `json:"recent_average"`
	Samples       int                 `json:"samples"`
}

// Classifier derives author status from score history.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier creates a classifier. Zero fields fall back to the defaults.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	def := DefaultClassifierConfig()
	if cfg.MinimumSamples <= 0 {
		cfg.MinimumSamples = def.MinimumSamples
	}
	if cfg.TrustedThreshold <= 0 {
		cfg.TrustedThreshold = def.TrustedThreshold
	}
	if cfg.RisingMinSamples <= 0 {
		cfg.RisingMinSamples = def.RisingMinSamples
	}
	if cfg.RisingDelta <= 0 {
		cfg.RisingDelta = def.RisingDelta
	}
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = def.TrendWindow
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = def.RecentWindow
	}
	if cfg.KeepShare <= 0 || cfg.KeepShare > 1 {
		cfg.KeepShare = def.KeepShare
	}
	return &Classifier{cfg: cfg}
}

// Classify assesses an author from their history as seen at now.
//
// The average is forgiving: only the best KeepShare of scores count, so one bad
// post in five does not cost a trusted author their status.
func (c *Classifier) Classify(history []models.ScoreObservation, now time.Time) Assessment {
	a := Assessment{Status: models.StatusUnknown, Trend: TrendStable, Samples: len(history)}
	if len(history) == 0 {
		return a
	}

	all := make([]float64, len(history))
	var recent, lastWindow, prevWindow []float64
	for i, o := range history {
		all[i] = o.Score
		age := now.Sub(o.ObservedAt)
		if age < c.cfg.RecentWindow {
			recent = append(recent, o.Score)
		}
		switch {
		case age < c.cfg.TrendWindow:
			lastWindow = append(lastWindow, o.Score)
		case age < 2*c.cfg.TrendWindow:
			prevWindow = append(prevWindow, o.Score)
		}
	}

	a.Average = c.forgivingAverage(all)
	a.RecentAverage = a.Average
	if len(recent) > 0 {
		a.RecentAverage = c.forgivingAverage(recent)
	}

	if len(lastWindow) > 0 && len(prevWindow) > 0 {
		last, _ := stats.Mean(lastWindow)
		prev, _ := stats.Mean(prevWindow)
		switch diff := last - prev; {
		case diff > c.cfg.RisingDelta:
			a.Trend = TrendRising
		case diff < -c.cfg.RisingDelta:
			a.Trend = TrendDeclining
		}
	}

	switch {
	case a.Samples >= c.cfg.MinimumSamples && a.Average >= c.cfg.TrustedThreshold:
		a.Status = models.StatusTrusted
	case a.Samples >= c.cfg.RisingMinSamples && a.Trend == TrendRising:
		a.Status = models.StatusRising
	}
	return a
}

func (c *Classifier) forgivingAverage(scores []float64) float64 {
	sorted := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	keep := int(float64(len(sorted)) * c.cfg.KeepShare)
	if keep < 1 {
		keep = 1
	}
	mean, err := stats.Mean(sorted[:keep])
	if err != nil {
		return 0
	}
	return mean
}
