package oracle

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/xfeed/pkg/models"
)

func decode(t *testing.T, text string) *Result {
	t.Helper()
	res, err := NewDecoder(zerolog.Nop()).Decode([]byte(text))
	require.NoError(t, err)
	return res
}

func TestDecode_WrappedInProse(t *testing.T) {
	text := "Here are the scores:\n```json\n" + `[
  {"id": "1", "score": 8, "rigor": 7, "reason": "Explains the mechanism", "superdunk": false, "factors": ["mechanism", "Evidence"]},
  {"id": 2, "score": 3, "rigor": 2, "reason": "Vague", "factors": ["vague", "overconfident"]}
]` + "\n```\nLet me know if you need more."

	res := decode(t, text)

	require.Len(t, res.Scores, 2)
	assert.Equal(t, models.OracleScore{
		Base:    8,
		Rigor:   7,
		Reason:  "Explains the mechanism",
		Factors: []models.Factor{models.FactorMechanism, models.FactorEvidence},
	}, res.Scores["1"])
	assert.Equal(t, 3, res.Scores["2"].Base)
	assert.Empty(t, res.Malformed)
}

func TestDecode_MissingRigorIsMalformed(t *testing.T) {
	res := decode(t, `[{"id": "1", "score": 7, "factors": ["dissent_rigorous", "mechanism", "evidence", "tradeoffs"]}]`)

	assert.Equal(t, []string{"1"}, res.Malformed)
	assert.NotContains(t, res.Scores, "1")
}

func TestDecode_EntryProblems(t *testing.T) {
	text := `[
  {"id": "ok", "score": 6, "rigor": 5},
  {"id": "range", "score": 11, "rigor": 5},
  {"id": "frac", "score": 6.5, "rigor": 5},
  {"id": "text", "score": "high", "rigor": 5},
  {"id": "quoted", "score": "7", "rigor": "4"},
  {"id": "rigor", "score": 5, "rigor": -1},
  {"id": "norigor", "score": 5},
  {"id": "nobase", "rigor": 5, "reason": "forgot the score"},
  {"id": "badfactors", "score": 5, "rigor": 5, "factors": "mechanism"},
  {"id": "unknownfactor", "score": 5, "rigor": 5, "factors": ["galaxy_brain", "evidence", "evidence"]},
  {"score": 9, "rigor": 5},
  "not an object"
]`
	res := decode(t, text)

	assert.ElementsMatch(t, []string{"range", "frac", "text", "rigor", "norigor", "nobase", "badfactors"}, res.Malformed)
	assert.Equal(t, 2, res.Anonymous)
	assert.Contains(t, res.Scores, "ok")
	assert.Equal(t, 7, res.Scores["quoted"].Base)
	assert.Equal(t, []models.Factor{models.FactorEvidence}, res.Scores["unknownfactor"].Factors)
	for _, id := range res.Malformed {
		assert.NotContains(t, res.Scores, id)
	}
}

func TestDecode_DuplicateIDKeepsFirst(t *testing.T) {
	res := decode(t, `[{"id": "1", "score": 4, "rigor": 3}, {"id": "1", "score": 9, "rigor": 3}]`)
	assert.Equal(t, 4, res.Scores["1"].Base)
}

func TestDecode_Excluded(t *testing.T) {
	res := decode(t, `[{"id": "1", "score": 9, "rigor": 6, "excluded": true, "superdunk": true}]`)
	assert.True(t, res.Scores["1"].Excluded)
	assert.True(t, res.Scores["1"].Superdunk)
}

func TestDecode_MultipleResponses(t *testing.T) {
	res, err := NewDecoder(zerolog.Nop()).Decode(
		[]byte(`[{"id": "1", "score": 4, "rigor": 2}]`),
		[]byte(`garbage`),
		[]byte(`[{"id": "2", "score": 5, "rigor": 2}]`),
	)
	require.NoError(t, err)
	assert.Len(t, res.Scores, 2)
}

func TestDecode_NoArray(t *testing.T) {
	_, err := NewDecoder(zerolog.Nop()).Decode([]byte("I could not score these posts."))
	assert.ErrorIs(t, err, ErrNoScores)
}

func TestDecode_EmptyArray(t *testing.T) {
	res := decode(t, "[]")
	assert.Empty(t, res.Scores)
}
