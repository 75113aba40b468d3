package undo

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestGetReturnsLiveEntry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	store := NewStore(clock.now)

	store.Put("s1", "patients", 10, 18, 10*time.Second)

	clock.advance(5 * time.Second)
	entry, ok := store.Get("s1")
	if !ok {
		t.Fatal("expected live entry at t+5s")
	}
	if entry.OriginalText != "patients" {
		t.Fatalf("expected original text preserved, got %q", entry.OriginalText)
	}
	if want := clock.t.Add(5 * time.Second); !entry.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry at %v, got %v", want, entry.ExpiresAt)
	}
}

func TestGetLazilyPurgesExpiredEntry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	store := NewStore(clock.now)

	store.Put("s1", "patients", 0, 8, 10*time.Second)

	clock.advance(11 * time.Second)
	if _, ok := store.Get("s1"); ok {
		t.Fatal("expected entry absent at t+11s")
	}
	if store.Len() != 0 {
		t.Fatalf("expected expired entry removed, %d entries remain", store.Len())
	}
	// A second lookup stays absent: lazy expiry is idempotent.
	if _, ok := store.Get("s1"); ok {
		t.Fatal("expected entry to stay absent")
	}
}

func TestPutReplacesExistingEntry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	store := NewStore(clock.now)

	store.Put("s1", "first", 0, 5, 10*time.Second)
	store.Put("s1", "second", 0, 6, 10*time.Second)

	entry, ok := store.Get("s1")
	if !ok || entry.OriginalText != "second" {
		t.Fatalf("expected replacement to win, got %+v ok=%v", entry, ok)
	}
	if store.Len() != 1 {
		t.Fatalf("expected at most one entry per key, got %d", store.Len())
	}
}

func TestClearRemovesEntry(t *testing.T) {
	store := NewStore(nil)
	store.Put("s1", "text", 0, 4, time.Minute)
	store.Clear("s1")
	if _, ok := store.Get("s1"); ok {
		t.Fatal("expected entry cleared")
	}
	// Clearing an absent key is a no-op.
	store.Clear("s1")
}
