package routing

import (
	"errors"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestResolve_Precedence(t *testing.T) {
	global := &Override{SuccessRate: ptr(3), Load: ptr(1)}
	perType := &Override{Load: ptr(5), Freshness: ptr(0)}

	got := Resolve(global, perType)
	want := Weights{Capability: 4, SuccessRate: 3, Freshness: 0, Load: 5}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestResolve_NoOverrides(t *testing.T) {
	if got := Resolve(nil, nil); got != DefaultWeights() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestOverrideValidate(t *testing.T) {
	if err := (&Override{Load: ptr(-1)}).Validate(); !errors.Is(err, ErrNegativeWeight) {
		t.Fatalf("expected ErrNegativeWeight, got %v", err)
	}
	if err := (&Override{Load: ptr(0)}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var nilOverride *Override
	if err := nilOverride.Validate(); err != nil {
		t.Fatalf("nil override must be valid, got %v", err)
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if err := (Weights{Capability: -1}).Validate(); err == nil {
		t.Fatal("expected error for negative weight")
	}
}
