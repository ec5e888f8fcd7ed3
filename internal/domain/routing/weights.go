// Package routing defines the scoring model and dispatch result types used
// to select an agent for a task.
package routing

import (
	"errors"
	"fmt"
)

// Weights are the non-negative coefficients of the fitness score.
type Weights struct {
	Capability  float64 `yaml:"capability" json:"capability"`
	SuccessRate float64 `yaml:"success_rate" json:"success_rate"`
	Freshness   float64 `yaml:"freshness" json:"freshness"`
	Load        float64 `yaml:"load" json:"load"`
}

// DefaultWeights returns the built-in weights.
func DefaultWeights() Weights {
	return Weights{
		Capability:  4,
		SuccessRate: 2,
		Freshness:   1,
		Load:        2,
	}
}

// Validate rejects negative weights.
func (w Weights) Validate() error {
	if w.Capability < 0 || w.SuccessRate < 0 || w.Freshness < 0 || w.Load < 0 {
		return fmt.Errorf("weights must be non-negative: %+v", w)
	}
	return nil
}

// Override is a partial set of weights. Nil fields keep the underlying value.
type Override struct {
	Capability  *float64 `yaml:"capability,omitempty" json:"capability,omitempty"`
	SuccessRate *float64 `yaml:"success_rate,omitempty" json:"success_rate,omitempty"`
	Freshness   *float64 `yaml:"freshness,omitempty" json:"freshness,omitempty"`
	Load        *float64 `yaml:"load,omitempty" json:"load,omitempty"`
}

// ErrNegativeWeight is returned when an override carries a negative weight.
var ErrNegativeWeight = errors.New("weight override must be non-negative")

// Validate rejects negative override values.
func (o *Override) Validate() error {
	if o == nil {
		return nil
	}
	for _, v := range []*float64{o.Capability, o.SuccessRate, o.Freshness, o.Load} {
		if v != nil && *v < 0 {
			return ErrNegativeWeight
		}
	}
	return nil
}

// Apply returns w with the non-nil fields of o replaced.
func (w Weights) Apply(o *Override) Weights {
	if o == nil {
		return w
	}
	if o.Capability != nil {
		w.Capability = *o.Capability
	}
	if o.SuccessRate != nil {
		w.SuccessRate = *o.SuccessRate
	}
	if o.Freshness != nil {
		w.Freshness = *o.Freshness
	}
	if o.Load != nil {
		w.Load = *o.Load
	}
	return w
}

// Resolve merges defaults, then the global override, then the per-task-type
// override. Later layers win.
func Resolve(global, perType *Override) Weights {
	return DefaultWeights().Apply(global).Apply(perType)
}
