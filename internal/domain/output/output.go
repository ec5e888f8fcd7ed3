// Package output defines the captured AI output record and the confidence
// contract used to decide escalation.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"
)

// ErrInvalidConfidence is returned for confidence values outside [0,1].
var ErrInvalidConfidence = errors.New("confidence must be within [0,1]")

// AIOutput is the durable record of one captured execution.
type AIOutput struct {
	ID            string          `json:"id"`
	Prompt        string          `json:"prompt"`
	ExecutorLabel string          `json:"executor_label"`
	Output        json.RawMessage `json:"output"`
	Confidence    *float64        `json:"confidence"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CreateRequest holds the fields persisted by the recorder.
type CreateRequest struct {
	Prompt        string
	ExecutorLabel string
	Output        json.RawMessage
	Confidence    *float64
}

// Validate checks the optional confidence bound.
func (r *CreateRequest) Validate() error {
	if r.Confidence != nil {
		return ValidateConfidence(*r.Confidence)
	}
	return nil
}

// Meta describes a captured output to the caller of a wrapped function.
type Meta struct {
	OutputID   string    `json:"output_id"`
	CreatedAt  time.Time `json:"created_at"`
	Confidence *float64  `json:"confidence"`
}

// Captured is what a wrapped unit of work returns.
type Captured struct {
	Output any  `json:"output"`
	Meta   Meta `json:"meta"`
}

// Scorer computes a confidence for an output.
type Scorer interface {
	Score(ctx context.Context, out any) (float64, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, out any) (float64, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, out any) (float64, error) {
	return f(ctx, out)
}

// ValidateConfidence rejects NaN and values outside [0,1].
func ValidateConfidence(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// Clamp bounds c to [0,1]. NaN clamps to 0.
func Clamp(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// ShouldEscalate reports whether an output with the given confidence needs
// human review. A missing confidence always escalates.
func ShouldEscalate(confidence *float64, threshold float64) bool {
	if confidence == nil {
		return true
	}
	return *confidence < threshold
}
