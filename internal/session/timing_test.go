package session

import (
	"testing"
	"time"
)

func TestResolveFinalizeDelay_QuietRoom(t *testing.T) {
	quiet := loadSnapshot{Realtime: true, ActiveCaptures: 1}

	tests := []struct {
		name         string
		captureAgeMs int
		want         int
	}{
		{name: "fresh capture waits longest", captureAgeMs: 120, want: 620},
		{name: "mid-age capture", captureAgeMs: 600, want: 320},
		{name: "old capture closes fast", captureAgeMs: 1200, want: 140},
		{name: "boundary at 400ms uses mid tier", captureAgeMs: 400, want: 320},
		{name: "boundary at 1000ms uses old tier", captureAgeMs: 1000, want: 140},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveFinalizeDelay(quiet, tt.captureAgeMs); got != tt.want {
				t.Fatalf("resolveFinalizeDelay(%d) = %d, want %d", tt.captureAgeMs, got, tt.want)
			}
		})
	}
}

func TestResolveFinalizeDelay_BusyRealtime(t *testing.T) {
	busy := loadSnapshot{Realtime: true, ActiveCaptures: 2, PendingTurns: 1, Draining: true}
	if got := resolveFinalizeDelay(busy, 500); got != 224 {
		t.Fatalf("busy realtime delay = %d, want 224", got)
	}
}

func TestResolveFinalizeDelay_BusyNeedsAllThreeConditions(t *testing.T) {
	tests := []struct {
		name string
		load loadSnapshot
	}{
		{name: "not realtime", load: loadSnapshot{Realtime: false, ActiveCaptures: 2, Draining: true}},
		{name: "single capture", load: loadSnapshot{Realtime: true, ActiveCaptures: 1, Draining: true}},
		{name: "not draining", load: loadSnapshot{Realtime: true, ActiveCaptures: 2, Draining: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveFinalizeDelay(tt.load, 500); got != 320 {
				t.Fatalf("delay = %d, want undiscounted 320", got)
			}
		})
	}
}

func TestResolveFinalizeDelay_HeavyBacklog(t *testing.T) {
	backlog := loadSnapshot{Realtime: true, ActiveCaptures: 1, PendingTurns: 4}

	if got := resolveFinalizeDelay(backlog, 150); got != 310 {
		t.Fatalf("backlog delay for fresh capture = %d, want 310", got)
	}
	if got := resolveFinalizeDelay(backlog, 1400); got != 100 {
		t.Fatalf("backlog delay for old capture = %d, want floor 100", got)
	}
}

func TestResolveFinalizeDelay_BacklogWinsOverBusyDiscount(t *testing.T) {
	both := loadSnapshot{Realtime: true, ActiveCaptures: 3, PendingTurns: 3, Draining: true}
	if got := resolveFinalizeDelay(both, 500); got != 160 {
		t.Fatalf("delay = %d, want backlog half 160, not busy discount", got)
	}
}

func TestEvaluateThoughtGate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	base := thoughtGateInput{
		Now:            now,
		LastActivityAt: now.Add(-2 * time.Minute),
		LastThoughtAt:  now.Add(-10 * time.Minute),
		Eagerness:      0.5,
		Participants:   2,
		Roll:           0.3,
	}

	if !evaluateThoughtGate(base) {
		t.Fatal("expected gate open with all conditions satisfied")
	}

	tests := []struct {
		name   string
		mutate func(*thoughtGateInput)
	}{
		{name: "zero eagerness", mutate: func(in *thoughtGateInput) { in.Eagerness = 0 }},
		{name: "roll above eagerness", mutate: func(in *thoughtGateInput) { in.Roll = 0.9 }},
		{name: "someone is speaking", mutate: func(in *thoughtGateInput) { in.ActiveCaptures = 1 }},
		{name: "bot turn open", mutate: func(in *thoughtGateInput) { in.BotTurnOpen = true }},
		{name: "empty room", mutate: func(in *thoughtGateInput) { in.Participants = 0 }},
		{name: "silence too short", mutate: func(in *thoughtGateInput) { in.LastActivityAt = in.Now.Add(-30 * time.Second) }},
		{name: "thought cooldown active", mutate: func(in *thoughtGateInput) { in.LastThoughtAt = in.Now.Add(-time.Minute) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			if evaluateThoughtGate(in) {
				t.Fatal("expected gate closed")
			}
		})
	}
}

func TestEvaluateThoughtGate_NeverFiredBefore(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := thoughtGateInput{
		Now:            now,
		LastActivityAt: now.Add(-2 * time.Minute),
		Eagerness:      0.5,
		Participants:   1,
		Roll:           0.1,
	}
	if !evaluateThoughtGate(in) {
		t.Fatal("expected zero LastThoughtAt to skip the cooldown")
	}
}
