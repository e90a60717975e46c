// Package oracle decodes scoring oracle responses into OracleScore records.
package oracle

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/thebtf/xfeed/pkg/models"
)

// ErrNoScores is returned when a response holds no decodable JSON array.
var ErrNoScores = errors.New("oracle response holds no score array")

// Result is a decoded oracle response.
type Result struct {
	// Scores maps post id to its validated oracle score.
	Scores map[string]models.OracleScore
	// Malformed lists ids whose entry was present but unusable.
	Malformed []string
	// Anonymous counts entries without an id; they cannot be attributed to any post.
	Anonymous int
}

// Decoder turns oracle text into scores. The oracle is an LLM, so the JSON array
// may be wrapped in prose or code fences.
type Decoder struct {
	log zerolog.Logger
}

// NewDecoder creates a decoder.
func NewDecoder(log zerolog.Logger) *Decoder {
	return &Decoder{log: log.With().Str("component", "oracle").Logger()}
}

// Decode parses one or more oracle responses. Entry-level problems are reported in
// the result; only a response with no usable array at all is an error.
func (d *Decoder) Decode(responses ...[]byte) (*Result, error) {
	res := &Result{Scores: make(map[string]models.OracleScore)}
	malformed := make(map[string]bool)

	decoded := 0
	for _, resp := range responses {
		entries, err := extractArray(resp)
		if err != nil {
			d.log.Warn().Err(err).Msg("Skipping undecodable oracle response")
			continue
		}
		decoded++
		for _, raw := range entries {
			d.decodeEntry(raw, res, malformed)
		}
	}
	if decoded == 0 {
		return nil, ErrNoScores
	}
	return res, nil
}

func (d *Decoder) decodeEntry(raw json.RawMessage, res *Result, malformed map[string]bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		res.Anonymous++
		d.log.Warn().Err(err).Msg("Oracle entry is not an object")
		return
	}

	id, err := decodeID(fields["id"])
	if err != nil || id == "" {
		res.Anonymous++
		d.log.Warn().Msg("Oracle entry without id")
		return
	}

	markMalformed := func(err error) {
		d.log.Warn().Err(err).Str("id", id).Msg("Malformed oracle score")
		delete(res.Scores, id)
		if !malformed[id] {
			malformed[id] = true
			res.Malformed = append(res.Malformed, id)
		}
	}

	if malformed[id] {
		return
	}
	if _, dup := res.Scores[id]; dup {
		d.log.Warn().Str("id", id).Msg("Duplicate oracle entry ignored")
		return
	}

	score, err := d.decodeScore(id, fields)
	if err != nil {
		markMalformed(err)
		return
	}
	res.Scores[id] = score
}

func (d *Decoder) decodeScore(id string, fields map[string]json.RawMessage) (models.OracleScore, error) {
	var score models.OracleScore

	base, ok, err := decodeAxis(fields["score"])
	if err != nil {
		return score, fmt.Errorf("score: %w", err)
	}
	if !ok {
		return score, errors.New("score: missing")
	}
	score.Base = base

	if raw, present := fields["reason"]; present && !isNull(raw) {
		if err := json.Unmarshal(raw, &score.Reason); err != nil {
			return score, fmt.Errorf("reason: %w", err)
		}
	}
	for name, dst := range map[string]*bool{"superdunk": &score.Superdunk, "excluded": &score.Excluded} {
		if raw, present := fields[name]; present && !isNull(raw) {
			if err := json.Unmarshal(raw, dst); err != nil {
				return score, fmt.Errorf("%s: %w", name, err)
			}
		}
	}

	var names []string
	if raw, present := fields["factors"]; present && !isNull(raw) {
		if err := json.Unmarshal(raw, &names); err != nil {
			return score, fmt.Errorf("factors: %w", err)
		}
	}
	seen := make(map[models.Factor]bool, len(names))
	for _, name := range names {
		f, err := models.ParseFactor(name)
		if err != nil {
			d.log.Warn().Str("id", id).Str("factor", name).Msg("Dropping unknown factor")
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		score.Factors = append(score.Factors, f)
	}

	rigor, ok, err := decodeAxis(fields["rigor"])
	if err != nil {
		return score, fmt.Errorf("rigor: %w", err)
	}
	if !ok {
		return score, errors.New("rigor: missing")
	}
	score.Rigor = rigor

	if err := score.Validate(); err != nil {
		return score, err
	}
	return score, nil
}

// extractArray finds the outermost JSON array in text, falling back to the whole text.
func extractArray(text []byte) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	start := bytes.IndexByte(text, '[')
	end := bytes.LastIndexByte(text, ']')
	if start >= 0 && end > start {
		if err := json.Unmarshal(text[start:end+1], &entries); err == nil {
			return entries, nil
		}
	}
	if err := json.Unmarshal(bytes.TrimSpace(text), &entries); err != nil {
		return nil, fmt.Errorf("decode oracle response: %w", err)
	}
	return entries, nil
}

// decodeID accepts string or numeric ids.
func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// decodeAxis reads an integral 0-10 value. ok is false when the field is absent.
func decodeAxis(raw json.RawMessage) (int, bool, error) {
	if len(raw) == 0 || isNull(raw) {
		return 0, false, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		// Some oracles quote numbers.
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, true, fmt.Errorf("not a number: %s", raw)
		}
		n = json.Number(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, true, fmt.Errorf("not a number: %s", raw)
	}
	if f != math.Trunc(f) {
		return 0, true, fmt.Errorf("not an integer: %v", f)
	}
	if f < 0 || f > models.MaxScore {
		return 0, true, fmt.Errorf("%v out of range [0,%d]", f, models.MaxScore)
	}
	return int(f), true, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
