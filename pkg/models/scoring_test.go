package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFactor(t *testing.T) {
	tests := []struct {
		in      string
		want    Factor
		wantErr bool
	}{
		{in: "mechanism", want: FactorMechanism},
		{in: "  Evidence ", want: FactorEvidence},
		{in: "DISSENT_RIGOROUS", want: FactorDissentRigorous},
		{in: "galaxy_brain", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFactor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFactorPolarity(t *testing.T) {
	for _, f := range AllFactors {
		assert.True(t, f.Valid(), f)
	}
	assert.Equal(t, PolarityBoost, FactorTradeoffs.Polarity())
	assert.Equal(t, PolarityPenalty, FactorRhetorical.Polarity())
	assert.Equal(t, PolarityDissent, FactorDissentRigorous.Polarity())
	assert.False(t, Factor("nope").Valid())
}

func TestOracleScore_Validate(t *testing.T) {
	tests := []struct {
		name    string
		score   OracleScore
		wantErr bool
	}{
		{name: "valid", score: OracleScore{Base: 7, Rigor: 5, Factors: []Factor{FactorEvidence, FactorVague}}},
		{name: "bounds inclusive", score: OracleScore{Base: 0, Rigor: 10}},
		{name: "base above range", score: OracleScore{Base: 11}, wantErr: true},
		{name: "negative rigor", score: OracleScore{Base: 5, Rigor: -1}, wantErr: true},
		{name: "repeated factor", score: OracleScore{Base: 5, Factors: []Factor{FactorVague, FactorVague}}, wantErr: true},
		{name: "unknown factor", score: OracleScore{Base: 5, Factors: []Factor{"shiny"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.score.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScoringConfig_WeightFallsBack(t *testing.T) {
	cfg := &ScoringConfig{FactorWeights: map[Factor]float64{FactorEvidence: 3}}
	assert.Equal(t, 3.0, cfg.Weight(FactorEvidence))
	assert.Equal(t, DefaultFactorWeights[FactorMechanism], cfg.Weight(FactorMechanism))
}

func TestDefaultScoringConfig_CopiesWeights(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.FactorWeights[FactorEvidence] = 42
	assert.NotEqual(t, 42.0, DefaultFactorWeights[FactorEvidence])
}

func TestExplanation_String(t *testing.T) {
	tests := []struct {
		name string
		exp  Explanation
		want string
	}{
		{name: "empty", exp: Explanation{}, want: ""},
		{name: "reason only", exp: Explanation{Reason: "solid"}, want: "solid"},
		{
			name: "contributions",
			exp: Explanation{Reason: "solid", Contributions: []Contribution{
				{Factor: FactorMechanism, Sign: 1, Magnitude: 1},
				{Factor: FactorVague, Sign: -1, Magnitude: 1},
			}},
			want: "solid [+mechanism, -vague]",
		},
		{
			name: "marker without reason",
			exp: Explanation{Markers: []string{MarkerExplore}, Contributions: []Contribution{
				{Factor: FactorDissentRigorous, Sign: 1, Magnitude: 2},
			}},
			want: "[EXPLORE] [+dissent_rigorous]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.exp.String())
		})
	}
}

func TestExplanation_MarkOnce(t *testing.T) {
	var e Explanation
	e.Mark(MarkerExplore)
	e.Mark(MarkerExplore)
	assert.Equal(t, []string{MarkerExplore}, e.Markers)
	assert.Equal(t, "[EXPLORE]", e.String())
}
