// Package realtime defines the normalized vocabulary shared by all realtime
// speech providers. Each provider adapter translates its own wire format into
// these events and accepts the common command set, so the session layer never
// sees provider-specific frames.
package realtime

import "time"

type EventType string

const (
	EventAudioDelta   EventType = "audio_delta"
	EventTranscript   EventType = "transcript"
	EventResponseDone EventType = "response_done"
	EventSocketError  EventType = "socket_error"
	EventSocketClosed EventType = "socket_closed"
)

// Event is one normalized provider event. Exactly the fields matching Type
// are populated.
type Event struct {
	Type EventType

	// EventAudioDelta: PCM16 mono audio at the provider sample rate.
	PCM []byte

	// EventTranscript
	Text       string
	Final      bool
	OfResponse bool // transcript of the agent's own output, not a user's

	// EventSocketError
	Err error

	// EventSocketClosed
	CloseCode   int
	CloseReason string
	Expected    bool // caller-initiated teardown, not a failure
}

// OutboundKind names a command sent to the provider, recorded in the bounded
// diagnostics history.
type OutboundKind string

const (
	OutboundAudioAppend      OutboundKind = "audio_append"
	OutboundVideoFrameAppend OutboundKind = "video_frame_append"
	OutboundTurnCommit       OutboundKind = "turn_commit"
	OutboundTextUtterance    OutboundKind = "text_utterance"
	OutboundVideoCommentary  OutboundKind = "video_commentary"
	OutboundInstructions     OutboundKind = "instructions"
)

// OutboundRecord is one entry of the diagnostics history.
type OutboundRecord struct {
	Kind    OutboundKind
	Bytes   int
	SentAt  time.Time
	Summary string
}

// OutboundHistorySize bounds the diagnostics history kept per connection.
const OutboundHistorySize = 8

// ClientState is a read-only snapshot of a provider connection.
type ClientState struct {
	Provider        string
	Connected       bool
	ConnectedAt     time.Time
	LastEventAt     time.Time
	LastError       string
	OutboundHistory []OutboundRecord
}
