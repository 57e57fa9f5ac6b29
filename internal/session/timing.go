package session

import "time"

// loadSnapshot summarizes the pressure a session is under when a finalize
// timer is scheduled. Captured once per scheduling decision so the delay is
// stable even if state moves underneath the timer.
type loadSnapshot struct {
	Realtime       bool
	ActiveCaptures int
	PendingTurns   int
	Draining       bool
}

const (
	finalizeDelayFreshMs = 620
	finalizeDelayMidMs   = 320
	finalizeDelayOldMs   = 140

	finalizeDelayBacklogFloorMs = 100

	heavyBacklogTurns = 3
	busyCaptureCount  = 2
)

// resolveFinalizeDelay picks how long to wait after the last audio packet
// before treating a capture as a finished utterance. Fresh captures get a
// generous pause so slow talkers are not cut off; older captures have had
// their chance and are closed faster. Under load the delays shrink: when the
// turn backlog is heavy the delay halves (with a floor), and a busy realtime
// session that is still draining bot audio shaves 30% so overlapping
// speakers do not pile up captures behind the drain.
func resolveFinalizeDelay(load loadSnapshot, captureAgeMs int) int {
	base := finalizeDelayFreshMs
	switch {
	case captureAgeMs < 400:
		base = finalizeDelayFreshMs
	case captureAgeMs < 1000:
		base = finalizeDelayMidMs
	default:
		base = finalizeDelayOldMs
	}

	if load.PendingTurns >= heavyBacklogTurns {
		half := base / 2
		if half < finalizeDelayBacklogFloorMs {
			half = finalizeDelayBacklogFloorMs
		}
		return half
	}
	if load.Realtime && load.ActiveCaptures >= busyCaptureCount && load.Draining {
		return base * 7 / 10
	}
	return base
}

const (
	thoughtMinSilence  = 75 * time.Second
	thoughtMinInterval = 4 * time.Minute
)

// thoughtGateInput is everything the unprompted-thought gate looks at.
// Roll is the pre-drawn random sample so the gate itself stays deterministic.
type thoughtGateInput struct {
	Now            time.Time
	LastActivityAt time.Time
	LastThoughtAt  time.Time
	Eagerness      float64
	ActiveCaptures int
	BotTurnOpen    bool
	Participants   int
	Roll           float64
}

// evaluateThoughtGate decides whether the agent may volunteer a remark.
// All structural conditions must hold before the eagerness roll is even
// consulted: nobody mid-utterance, no open bot turn, a real silence, and a
// cooldown since the last unprompted thought.
func evaluateThoughtGate(in thoughtGateInput) bool {
	if in.Eagerness <= 0 {
		return false
	}
	if in.ActiveCaptures > 0 || in.BotTurnOpen {
		return false
	}
	if in.Participants == 0 {
		return false
	}
	if in.Now.Sub(in.LastActivityAt) < thoughtMinSilence {
		return false
	}
	if !in.LastThoughtAt.IsZero() && in.Now.Sub(in.LastThoughtAt) < thoughtMinInterval {
		return false
	}
	return in.Roll < in.Eagerness
}
