package cache

import (
	"testing"
	"time"

	"github.com/whycore/basefriends/internal/model"
)

func TestGetAfterSetReturnsSamePayload(t *testing.T) {
	s := New(5*time.Minute, 100)
	key := Key{FID: 7, Limit: 10}
	payload := []model.Candidate{{FID: 1, Username: "alice"}, {FID: 2, Username: "bob"}}

	s.Set(key, payload)
	got, ok := s.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[0].FID != 1 || got[1].Username != "bob" {
		t.Fatalf("payload mismatch: %v", got)
	}
}

func TestExpiredEntryIsMissAndRemoved(t *testing.T) {
	s := New(5*time.Minute, 100)
	now := time.Now()
	s.nowFn = func() time.Time { return now }

	key := Key{FID: 7, Limit: 10}
	s.Set(key, []model.Candidate{{FID: 1}})

	now = now.Add(5*time.Minute + time.Second)
	if _, ok := s.Get(key); ok {
		t.Fatal("expected expired entry to miss")
	}
	if s.Len() != 0 {
		t.Fatalf("expected expired entry removed, len=%d", s.Len())
	}
}

func TestDistinctKeysDoNotCollide(t *testing.T) {
	s := New(5*time.Minute, 100)
	s.Set(Key{FID: 7, Limit: 10}, []model.Candidate{{FID: 1}})
	if _, ok := s.Get(Key{FID: 7, Limit: 20}); ok {
		t.Fatal("different page size must be a distinct key")
	}
	if _, ok := s.Get(Key{FID: 8, Limit: 10}); ok {
		t.Fatal("different viewer must be a distinct key")
	}
}

func TestSweepDropsExpiredBeyondCeiling(t *testing.T) {
	s := New(time.Minute, 5)
	now := time.Now()
	s.nowFn = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		s.Set(Key{FID: int64(i), Limit: 10}, nil)
	}
	// Expire everything, then one more write crosses the ceiling and
	// triggers the sweep.
	now = now.Add(2 * time.Minute)
	s.Set(Key{FID: 99, Limit: 10}, nil)

	if s.Len() != 1 {
		t.Fatalf("expected only the fresh entry to survive the sweep, len=%d", s.Len())
	}
	if _, ok := s.Get(Key{FID: 99, Limit: 10}); !ok {
		t.Fatal("fresh entry must survive the sweep")
	}
}

func TestSweepKeepsFreshEntries(t *testing.T) {
	s := New(time.Hour, 2)
	for i := 0; i < 4; i++ {
		s.Set(Key{FID: int64(i), Limit: 10}, nil)
	}
	// Over the ceiling but nothing expired: sweep removes nothing.
	if s.Len() != 4 {
		t.Fatalf("expected all fresh entries kept, len=%d", s.Len())
	}
}
