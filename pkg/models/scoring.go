// Package models contains domain models for xfeed.
package models

import (
	"fmt"
	"strings"
)

// Factor is a named reasoning-quality tag reported by the scoring oracle.
type Factor string

const (
	// Boosts
	FactorMechanism   Factor = "mechanism"
	FactorTradeoffs   Factor = "tradeoffs"
	FactorEvidence    Factor = "evidence"
	FactorUncertainty Factor = "uncertainty"
	FactorAssumptions Factor = "assumptions"

	// Penalties
	FactorVague         Factor = "vague"
	FactorUnsourced     Factor = "unsourced"
	FactorRhetorical    Factor = "rhetorical"
	FactorOverconfident Factor = "overconfident"

	// FactorDissentRigorous marks a contrarian take. It only ever contributes
	// through the dissent bonus, which is gated on the rigor score.
	FactorDissentRigorous Factor = "dissent_rigorous"
)

// Polarity is the fixed direction of a factor.
type Polarity int

const (
	PolarityBoost   Polarity = 1
	PolarityPenalty Polarity = -1
	PolarityDissent Polarity = 0
)

// AllFactors lists every known factor in canonical order.
// Score adjustment walks factors in this order, so cap truncation is deterministic.
var AllFactors = []Factor{
	FactorMechanism,
	FactorTradeoffs,
	FactorEvidence,
	FactorUncertainty,
	FactorAssumptions,
	FactorVague,
	FactorUnsourced,
	FactorRhetorical,
	FactorOverconfident,
	FactorDissentRigorous,
}

var factorPolarity = map[Factor]Polarity{
	FactorMechanism:       PolarityBoost,
	FactorTradeoffs:       PolarityBoost,
	FactorEvidence:        PolarityBoost,
	FactorUncertainty:     PolarityBoost,
	FactorAssumptions:     PolarityBoost,
	FactorVague:           PolarityPenalty,
	FactorUnsourced:       PolarityPenalty,
	FactorRhetorical:      PolarityPenalty,
	FactorOverconfident:   PolarityPenalty,
	FactorDissentRigorous: PolarityDissent,
}

// Polarity returns the fixed polarity of the factor.
func (f Factor) Polarity() Polarity {
	return factorPolarity[f]
}

// Valid reports whether f is a known factor.
func (f Factor) Valid() bool {
	_, ok := factorPolarity[f]
	return ok
}

// ParseFactor resolves a factor name case-insensitively.
func ParseFactor(name string) (Factor, error) {
	f := Factor(strings.ToLower(strings.TrimSpace(name)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown factor %q", name)
	}
	return f, nil
}

// DefaultFactorWeights contains the per-factor contribution before caps are applied.
// Penalty weights are magnitudes; the adjuster subtracts them.
var DefaultFactorWeights = map[Factor]float64{
	FactorMechanism:     1.0, // Causal reasoning, explains why/how
	FactorTradeoffs:     1.0,
	FactorEvidence:      1.0, // Links to papers, data, primary sources
	FactorUncertainty:   1.0,
	FactorAssumptions:   1.0,
	FactorVague:         1.0,
	FactorUnsourced:     1.0,
	FactorRhetorical:    1.0, // Emotional framing designed to provoke
	FactorOverconfident: 1.0,
}

// ScoringConfig contains the reasoning adjustment weights and caps.
type ScoringConfig struct {
	// FactorWeights maps boost and penalty factors to their per-factor weight.
	FactorWeights map[Factor]float64 `json:"factor_weights" yaml:"factor_weights"`

	// ReasoningBoostMax caps the summed contribution of all boost factors.
	ReasoningBoostMax float64 `json:"reasoning_boost_max" yaml:"reasoning_boost_max"`

	// ReasoningPenaltyMax caps the summed magnitude of all penalty factors.
	ReasoningPenaltyMax float64 `json:"reasoning_penalty_max" yaml:"reasoning_penalty_max"`

	// DissentMinRigor is the rigor score a contrarian take needs to earn any bonus.
	DissentMinRigor int `json:"dissent_min_rigor" yaml:"dissent_min_rigor"`

	// DissentBonusCap caps the dissent bonus.
	DissentBonusCap float64 `json:"dissent_bonus_cap" yaml:"dissent_bonus_cap"`
}

// DefaultScoringConfig returns the default scoring configuration.
func DefaultScoringConfig() *ScoringConfig {
	weights := make(map[Factor]float64, len(DefaultFactorWeights))
	for k, v := range DefaultFactorWeights {
		weights[k] = v
	}

	return &ScoringConfig{
		FactorWeights:       weights,
		ReasoningBoostMax:   2,
		ReasoningPenaltyMax: 2,
		DissentMinRigor:     6,
		DissentBonusCap:     2,
	}
}

// Weight returns the configured weight for a factor, falling back to the default table.
func (c *ScoringConfig) Weight(f Factor) float64 {
	if w, ok := c.FactorWeights[f]; ok {
		return w
	}
	return DefaultFactorWeights[f]
}

// OracleScore is the output of the external scoring oracle for one candidate.
type OracleScore struct {
	Reason    string   `json:"reason"`
	Factors   []Factor `json:"factors"`
	Base      int      `json:"score"`
	Rigor     int      `json:"rigor"`
	Superdunk bool     `json:"superdunk"`
	Excluded  bool     `json:"excluded"`
}

// HasFactor reports whether the factor is present.
func (o *OracleScore) HasFactor(f Factor) bool {
	for _, have := range o.Factors {
		if have == f {
			return true
		}
	}
	return false
}

// Validate checks the oracle-supplied ranges. A failing score is a malformed input defect.
func (o *OracleScore) Validate() error {
	if o.Base < 0 || o.Base > MaxScore {
		return fmt.Errorf("base score %d out of range [0,%d]", o.Base, MaxScore)
	}
	if o.Rigor < 0 || o.Rigor > MaxScore {
		return fmt.Errorf("rigor score %d out of range [0,%d]", o.Rigor, MaxScore)
	}
	seen := make(map[Factor]bool, len(o.Factors))
	for _, f := range o.Factors {
		if !f.Valid() {
			return fmt.Errorf("unknown factor %q", f)
		}
		if seen[f] {
			return fmt.Errorf("factor %q repeated", f)
		}
		seen[f] = true
	}
	return nil
}

// MaxScore is the upper bound of every score axis.
const MaxScore = 10

// Contribution is one factor's effect on the final score.
type Contribution struct {
	Factor    Factor  `json:"factor"`
	Sign      int     `json:"sign"`
	Magnitude float64 `json:"magnitude"`
}

// String renders the contribution as "+mechanism" or "-vague".
func (c Contribution) String() string {
	if c.Sign < 0 {
		return "-" + string(c.Factor)
	}
	return "+" + string(c.Factor)
}

// MarkerExplore tags entries injected by exploration.
const MarkerExplore = "[EXPLORE]"

// Explanation is the human-readable account of an adjusted score.
type Explanation struct {
	Reason        string         `json:"reason"`
	Contributions []Contribution `json:"contributions,omitempty"`
	Markers       []string       `json:"markers,omitempty"`
}

// HasFactor reports whether the factor contributed to the score.
func (e *Explanation) HasFactor(f Factor) bool {
	for _, c := range e.Contributions {
		if c.Factor == f {
			return true
		}
	}
	return false
}

// Mark adds a marker once.
func (e *Explanation) Mark(marker string) {
	for _, m := range e.Markers {
		if m == marker {
			return
		}
	}
	e.Markers = append(e.Markers, marker)
}

// String renders "[EXPLORE] reason [+mechanism, -vague]".
func (e Explanation) String() string {
	var b strings.Builder
	for _, m := range e.Markers {
		b.WriteString(m)
		b.WriteByte(' ')
	}
	b.WriteString(e.Reason)
	if len(e.Contributions) > 0 {
		parts := make([]string, len(e.Contributions))
		for i, c := range e.Contributions {
			parts[i] = c.String()
		}
		if e.Reason != "" {
			b.WriteByte(' ')
		}
		b.WriteString("[" + strings.Join(parts, ", ") + "]")
	}
	return strings.TrimSpace(b.String())
}

// AdjustedScore is the engine-owned score derived from an OracleScore.
type AdjustedScore struct {
	Explanation  Explanation `json:"explanation"`
	Final        float64     `json:"final_score"`
	BoostTotal   float64     `json:"boost_total"`
	PenaltyTotal float64     `json:"penalty_total"`
	DissentBonus float64     `json:"dissent_bonus"`
	Base         int         `json:"base_score"`
	Rigor        int         `json:"rigor_score"`
}
