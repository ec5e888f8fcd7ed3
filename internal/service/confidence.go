package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Strob0t/agentrouter/internal/domain/output"
)

// ErrNoConfidence is returned by FieldScorer when the output carries no
// usable confidence field.
var ErrNoConfidence = errors.New("output has no confidence field")

// DefaultConfidenceField is the output field read by FieldScorer.
const DefaultConfidenceField = "confidence"

// FieldScorer reads a self-reported confidence from a field of the agent
// output and clamps it to [0,1].
type FieldScorer struct {
	Field string
}

var _ output.Scorer = FieldScorer{}

// Score implements output.Scorer.
func (f FieldScorer) Score(_ context.Context, out any) (float64, error) {
	field := f.Field
	if field == "" {
		field = DefaultConfidenceField
	}

	obj, err := asObject(out)
	if err != nil {
		return 0, err
	}
	v, ok := obj[field]
	if !ok || v == nil {
		return 0, ErrNoConfidence
	}

	c, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("confidence field %q: %w", field, err)
	}
	return output.Clamp(c), nil
}

func asObject(out any) (map[string]any, error) {
	switch v := out.(type) {
	case map[string]any:
		return v, nil
	case *output.Captured:
		return asObject(v.Output)
	}

	var raw []byte
	switch v := out.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode output: %w", err)
		}
		raw = b
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, ErrNoConfidence
	}
	return obj, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}
