// Package scoring adjusts oracle relevance scores by the reasoning quality factors.
package scoring

import (
	"math"

	"github.com/thebtf/xfeed/pkg/models"
)

// Adjuster turns oracle scores into final scores with an explanation.
type Adjuster struct {
	config *models.ScoringConfig
}

// NewAdjuster creates a new score adjuster.
// If config is nil, uses the default configuration.
func NewAdjuster(config *models.ScoringConfig) *Adjuster {
	if config == nil {
		config = models.DefaultScoringConfig()
	}
	return &Adjuster{config: config}
}

// Adjust computes the final score for one oracle score.
//
// The scoring formula:
//
//	Final = clamp(Base + BoostTotal - PenaltyTotal + DissentBonus, 0, 10)
//
// Where:
//   - BoostTotal = sum of boost factor weights, capped at ReasoningBoostMax
//   - PenaltyTotal = sum of penalty factor weights, capped at ReasoningPenaltyMax
//   - DissentBonus = min(DissentBonusCap, Rigor - DissentMinRigor + 1) when the
//     dissent factor is present and Rigor >= DissentMinRigor, otherwise 0
func (a *Adjuster) Adjust(score models.OracleScore) models.AdjustedScore {
	c := a.Components(score)
	return models.AdjustedScore{
		Final:        c.Final,
		Base:         score.Base,
		Rigor:        score.Rigor,
		BoostTotal:   c.BoostTotal,
		PenaltyTotal: c.PenaltyTotal,
		DissentBonus: c.DissentBonus,
		Explanation: models.Explanation{
			Reason:        score.Reason,
			Contributions: c.Contributions,
		},
	}
}

// Components returns the individual parts of the adjusted score.
// This is the core calculation method - Adjust() delegates to this.
func (a *Adjuster) Components(score models.OracleScore) ScoreComponents {
	comp := ScoreComponents{Base: float64(score.Base)}

	present := make(map[models.Factor]bool, len(score.Factors))
	for _, f := range score.Factors {
		present[f] = true
	}

	// Factors are walked in canonical order so cap truncation never depends on
	// the order the oracle listed them in.
	for _, f := range models.AllFactors {
		if !present[f] {
			continue
		}
		switch f.Polarity() {
		case models.PolarityBoost:
			comp.BoostRaw += a.config.Weight(f)
			mag := capped(a.config.Weight(f), a.config.ReasoningBoostMax-comp.BoostTotal)
			if mag > 0 {
				comp.BoostTotal += mag
				comp.Contributions = append(comp.Contributions, models.Contribution{Factor: f, Sign: 1, Magnitude: mag})
			}
		case models.PolarityPenalty:
			comp.PenaltyRaw += a.config.Weight(f)
			mag := capped(a.config.Weight(f), a.config.ReasoningPenaltyMax-comp.PenaltyTotal)
			if mag > 0 {
				comp.PenaltyTotal += mag
				comp.Contributions = append(comp.Contributions, models.Contribution{Factor: f, Sign: -1, Magnitude: mag})
			}
		case models.PolarityDissent:
			comp.DissentBonus = a.dissentBonus(score.Rigor)
			if comp.DissentBonus > 0 {
				comp.Contributions = append(comp.Contributions, models.Contribution{Factor: f, Sign: 1, Magnitude: comp.DissentBonus})
			}
		}
	}

	comp.Unclamped = comp.Base + comp.BoostTotal - comp.PenaltyTotal + comp.DissentBonus
	comp.Final = math.Max(0, math.Min(models.MaxScore, comp.Unclamped))
	return comp
}

// dissentBonus rewards a contrarian take by how far its rigor clears the floor.
func (a *Adjuster) dissentBonus(rigor int) float64 {
	if rigor < a.config.DissentMinRigor {
		return 0
	}
	return math.Min(a.config.DissentBonusCap, float64(rigor-a.config.DissentMinRigor+1))
}

// capped limits a weight to the room left under a cap.
func capped(weight, room float64) float64 {
	if weight <= 0 || room <= 0 {
		return 0
	}
	return math.Min(weight, room)
}

// ScoreComponents contains the breakdown of an adjusted score.
type ScoreComponents struct {
	Contributions []models.Contribution `json:"contributions,omitempty"`
	Base          float64               `json:"base"`
	BoostRaw      float64               `json:"boost_raw"`
	BoostTotal    float64               `json:"boost_total"`
	PenaltyRaw    float64               `json:"penalty_raw"`
	PenaltyTotal  float64               `json:"penalty_total"`
	DissentBonus  float64               `json:"dissent_bonus"`
	Unclamped     float64               `json:"unclamped"`
	Final         float64               `json:"final"`
}

// UpdateConfig updates the adjuster's scoring configuration.
// This allows runtime tuning of weights and caps.
func (a *Adjuster) UpdateConfig(config *models.ScoringConfig) {
	if config != nil {
		a.config = config
	}
}

// GetConfig returns the current scoring configuration.
func (a *Adjuster) GetConfig() *models.ScoringConfig {
	return a.config
}
