package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/agentrouter/internal/adapter/ristretto"
)

func TestCache_SetGetDelete(t *testing.T) {
	c, err := ristretto.New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "output:1", []byte(`{"id":"1"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := c.Get(ctx, "output:1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(val) != `{"id":"1"}` {
		t.Fatalf("unexpected value %s", val)
	}

	if err := c.Delete(ctx, "output:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "output:1"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestCache_Miss(t *testing.T) {
	c, err := ristretto.New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, ok, err := c.Get(context.Background(), "absent"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}
