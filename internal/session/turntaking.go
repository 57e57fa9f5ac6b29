package session

import (
	"strings"
	"time"

	"github.com/glintworks/murmur/internal/audio"
	"github.com/glintworks/murmur/internal/wakeword"
)

const (
	// minSpeechMs is how much real speech a speaker must have produced in
	// the current capture before it can interrupt the bot. Keeps coughs and
	// keyboard noise from cutting off playback.
	minSpeechMs = 250

	// bargeInSuppression blocks further interrupts right after one fired,
	// so a single burst of crosstalk does not thrash the provider.
	bargeInSuppression = 2 * time.Second

	// engageWindow keeps the conversation open after the agent was addressed
	// or spoke: follow-up utterances inside it do not need the wake word.
	engageWindow = 45 * time.Second

	// joinGreetWindow biases toward responding to someone who just joined.
	joinGreetWindow = 10 * time.Second
)

var minSpeechBytes = audio.BytesForDuration(audio.ProviderSampleRate, minSpeechMs)

// capture tracks one speaker's in-progress utterance.
type capture struct {
	userID        string
	startedAt     time.Time
	lastPacketAt  time.Time
	bytesCaptured int
	commitRetries int
	finalize      *time.Timer
}

func (c *capture) ageMs(now time.Time) int {
	return int(now.Sub(c.startedAt) / time.Millisecond)
}

func (c *capture) cancelFinalize() {
	if c.finalize != nil {
		c.finalize.Stop()
		c.finalize = nil
	}
}

// pendingResponse tracks a committed turn the provider has not finished
// answering yet.
type pendingResponse struct {
	requestedAt     time.Time
	audioReceivedAt time.Time
}

// turnState is the session's conversational bookkeeping. It is only touched
// from the session's op loop, so it carries no lock of its own.
type turnState struct {
	captures           map[string]*capture
	botTurnOpen        bool
	pending            *pendingResponse
	pendingTurns       int
	suppressUntil      time.Time
	engagedUntil       time.Time
	lastActivityAt     time.Time
	lastThoughtAt      time.Time
	recentJoins        map[string]time.Time
	interimTranscripts map[string]string
}

func newTurnState(now time.Time) *turnState {
	return &turnState{
		captures:           make(map[string]*capture),
		recentJoins:        make(map[string]time.Time),
		interimTranscripts: make(map[string]string),
		lastActivityAt:     now,
	}
}

func (t *turnState) ensureCapture(userID string, now time.Time) *capture {
	c, ok := t.captures[userID]
	if !ok {
		c = &capture{userID: userID, startedAt: now}
		t.captures[userID] = c
	}
	c.lastPacketAt = now
	t.lastActivityAt = now
	return c
}

func (t *turnState) dropCapture(userID string) {
	if c, ok := t.captures[userID]; ok {
		c.cancelFinalize()
		delete(t.captures, userID)
	}
}

func (t *turnState) dropAllCaptures() {
	for id, c := range t.captures {
		c.cancelFinalize()
		delete(t.captures, id)
	}
}

// shouldBargeIn reports whether the given capture has earned an interrupt.
// The bot counts as speaking while its turn is open or while queued audio is
// still draining after the response finished.
func (t *turnState) shouldBargeIn(c *capture, draining bool, now time.Time) bool {
	if !t.botTurnOpen && !draining {
		return false
	}
	if c.bytesCaptured < minSpeechBytes {
		return false
	}
	return !now.Before(t.suppressUntil)
}

// noteBargeIn records that an interrupt fired and arms the suppression
// window.
func (t *turnState) noteBargeIn(now time.Time) {
	t.botTurnOpen = false
	t.pending = nil
	t.suppressUntil = now.Add(bargeInSuppression)
}

func (t *turnState) noteJoin(userID string, now time.Time) {
	t.recentJoins[userID] = now
	t.lastActivityAt = now
}

func (t *turnState) noteLeave(userID string) {
	delete(t.recentJoins, userID)
	delete(t.interimTranscripts, userID)
	t.dropCapture(userID)
}

// isAddressed decides whether the speaker's finished utterance is directed
// at the agent: explicit wake-word match, an open engagement window, or the
// speaker's first words shortly after joining.
func (t *turnState) isAddressed(userID, transcript, botName string, strictness wakeword.Strictness, now time.Time) bool {
	if strings.TrimSpace(transcript) != "" && wakeword.Match(transcript, botName, strictness) {
		return true
	}
	if now.Before(t.engagedUntil) {
		return true
	}
	if joinedAt, ok := t.recentJoins[userID]; ok && now.Sub(joinedAt) <= joinGreetWindow {
		return true
	}
	return false
}

// noteEngaged opens (or extends) the continued-conversation window.
func (t *turnState) noteEngaged(now time.Time) {
	t.engagedUntil = now.Add(engageWindow)
}
