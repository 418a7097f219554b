package testfixtures

import (
	"testing"
	"time"
)

func TestClockZeroStartUsesReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected the reference Monday, got %v", clock.Now())
	}
}

func TestClockSetAndAdvance(t *testing.T) {
	start := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	if got := clock.Advance(48 * time.Hour); !got.Equal(start.Add(48 * time.Hour)) {
		t.Fatalf("Advance returned %v", got)
	}

	pinned := start.AddDate(0, 0, 7)
	clock.Set(pinned)
	if got := clock.Current(); !got.Equal(pinned) {
		t.Fatalf("expected %v after Set, got %v", pinned, got)
	}
}

func TestClockNowFuncTracksTheClock(t *testing.T) {
	clock := NewClock(ReferenceTime())
	now := clock.NowFunc()

	before := now()
	clock.Advance(30 * time.Minute)
	after := now()

	if !after.Equal(before.Add(30 * time.Minute)) {
		t.Fatalf("expected the injected func to see the advance, got %v then %v", before, after)
	}
}
