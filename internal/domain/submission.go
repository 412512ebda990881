package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const (
	// DefaultListLimit is used when list-leaderboard is called without a
	// usable limit.
	DefaultListLimit = 25
	// MaxListLimit caps a single leaderboard page.
	MaxListLimit = 100

	// MaxScore is the largest accepted score. The ranked store folds score
	// and subscore into a single 63-bit sort value; a larger score would
	// overflow it and invert the ordering.
	MaxScore = int64(1)<<43 - 1
	// MaxSubscore is the largest accepted subscore, the width of the sort
	// value's tie-break bits.
	MaxSubscore = int64(1)<<20 - 1
)

// ScoreSubmission is a validated score submission built from untrusted input.
type ScoreSubmission struct {
	Score    int64
	Subscore int64
	Metadata map[string]interface{}
}

// ListQuery is a validated list-leaderboard request.
type ListQuery struct {
	Limit  int
	Cursor string
}

// ParseScoreSubmission validates raw request bytes into a ScoreSubmission.
// The payload must be a JSON object with a "score" in [0, MaxScore], an
// optional "subscore" in [0, MaxSubscore] (default 0), and an optional
// "metadata" object. Non-integer numeric values are truncated toward zero.
// A metadata value of any non-object shape is silently replaced with an
// empty object.
func ParseScoreSubmission(raw []byte) (*ScoreSubmission, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	scoreVal, ok := obj["score"]
	if !ok {
		return nil, fmt.Errorf("%w: score must be a non-negative integer", ErrInvalidArgument)
	}
	score, err := coerceInt(scoreVal)
	if err != nil || score < 0 {
		return nil, fmt.Errorf("%w: score must be a non-negative integer", ErrInvalidArgument)
	}
	if score > MaxScore {
		return nil, fmt.Errorf("%w: score must not exceed %d", ErrInvalidArgument, MaxScore)
	}

	var subscore int64
	if subVal, ok := obj["subscore"]; ok {
		subscore, err = coerceInt(subVal)
		if err != nil || subscore < 0 {
			return nil, fmt.Errorf("%w: subscore must be a non-negative integer", ErrInvalidArgument)
		}
		if subscore > MaxSubscore {
			return nil, fmt.Errorf("%w: subscore must not exceed %d", ErrInvalidArgument, MaxSubscore)
		}
	}

	metadata, _ := obj["metadata"].(map[string]interface{})
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	return &ScoreSubmission{
		Score:    score,
		Subscore: subscore,
		Metadata: metadata,
	}, nil
}

// ParseListQuery validates raw request bytes into a ListQuery. An empty
// payload yields the defaults; an unusable limit silently falls back to
// DefaultListLimit and is clamped to MaxListLimit; only non-empty string
// cursors are kept.
func ParseListQuery(raw []byte) (*ListQuery, error) {
	q := &ListQuery{Limit: DefaultListLimit}
	if len(bytes.TrimSpace(raw)) == 0 {
		return q, nil
	}

	obj, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	if limitVal, ok := obj["limit"]; ok {
		if limit, err := coerceInt(limitVal); err == nil && limit > 0 {
			q.Limit = int(limit)
		}
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}

	if cursor, ok := obj["cursor"].(string); ok && cursor != "" {
		q.Cursor = cursor
	}

	return q, nil
}

// parseObject decodes raw bytes into a JSON object, rejecting absent input,
// malformed JSON, and non-object top-level values (arrays, primitives).
func parseObject(raw []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrInvalidPayload
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, ErrInvalidPayload
	}
	if obj == nil {
		return nil, ErrInvalidPayload
	}
	return obj, nil
}

// coerceInt converts a decoded JSON value to a finite integer, truncating
// non-integer numerics toward zero. Numeric strings are accepted because
// some game clients serialize scores as strings.
func coerceInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a finite number: %s", n.String())
		}
		return truncFinite(f)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not a numeric string: %q", n)
		}
		return truncFinite(f)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func truncFinite(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %f", f)
	}
	return int64(math.Trunc(f)), nil
}
