package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatalf("unexpected hit on empty store")
	}
	val := []byte("v1")
	if err := s.Set(ctx, "k", val, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	val[0] = 'x'

	got, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(got) != "v1" {
		t.Fatalf("got=%q found=%v err=%v", got, found, err)
	}
	_ = s.Delete(ctx, "k")
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatalf("key still present after delete")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_ = s.Set(ctx, "k", []byte("v"), time.Minute)
	if _, found, _ := s.Get(ctx, "k"); !found {
		t.Fatalf("expected hit before expiry")
	}
	now = now.Add(2 * time.Minute)
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatalf("expected miss after expiry")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	type payload struct {
		Name string `json:"name"`
	}
	if err := SetJSON(ctx, s, "p", payload{Name: "x"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var out payload
	found, err := GetJSON(ctx, s, "p", &out)
	if err != nil || !found || out.Name != "x" {
		t.Fatalf("out=%+v found=%v err=%v", out, found, err)
	}

	_ = s.Set(ctx, "bad", []byte("{"), 0)
	if _, err := GetJSON(ctx, s, "bad", &out); err == nil {
		t.Fatalf("expected decode error")
	}
}
