package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockAdvanceCrossesSessionExpiry(t *testing.T) {
	clock := NewClock(ReferenceTime())
	expiresAt := ReferenceTime().Add(time.Hour)

	if !clock.Now().Before(expiresAt) {
		t.Fatal("clock should start before the session expiry")
	}

	updated := clock.Advance(time.Hour + time.Second)
	if !updated.Equal(ReferenceTime().Add(time.Hour + time.Second)) {
		t.Fatalf("advance returned %v", updated)
	}
	if clock.Current().Before(expiresAt) {
		t.Fatalf("expected clock past expiry, got %v", clock.Current())
	}

	clock.Set(ReferenceTime())
	if got := clock.Current(); !got.Equal(ReferenceTime()) {
		t.Fatalf("expected reset to ReferenceTime, got %v", got)
	}
}

func TestClockNowFuncTracksProgression(t *testing.T) {
	clock := NewClock(ReferenceTime())
	nowFn := clock.NowFunc()

	if got := nowFn(); !got.Equal(clock.Current()) {
		t.Fatalf("expected %v from NowFunc, got %v", clock.Current(), got)
	}

	clock.Advance(14 * 24 * time.Hour)
	if got := nowFn(); !got.Equal(clock.Current()) {
		t.Fatalf("expected updated time %v, got %v", clock.Current(), got)
	}
}

func TestClockNowFuncNilReceiverFallsBackToWallClock(t *testing.T) {
	var clock *Clock
	nowFn := clock.NowFunc()

	before := time.Now()
	got := nowFn()
	if got.Before(before) {
		t.Fatalf("expected wall-clock time, got %v", got)
	}
}
