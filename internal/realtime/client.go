package realtime

import (
	"context"
	"errors"
)

// ErrNotConnected is returned when a command requiring a live socket is
// issued against a closed client. Sending while closed is a programming
// error in the session layer; it is never silently dropped.
var ErrNotConnected = errors.New("realtime: connection is not open")

// ErrVideoUnsupported is returned by SendVideoFrameAppend on providers
// without a native video channel.
var ErrVideoUnsupported = errors.New("realtime: provider has no native video channel")

// ErrBelowCommitFloor is returned by RequestTurnCommit when the buffered
// audio duration is under the provider's minimum committable duration. The
// caller keeps buffering and retries on the next finalize.
var ErrBelowCommitFloor = errors.New("realtime: buffered audio below provider commit floor")

// Client is one provider connection for one session.
type Client interface {
	// Connect dials the provider and performs the session handshake. It
	// races the handshake timeout against the socket's open, error, and
	// unexpected-response signals; failures are a *ConnectError.
	Connect(ctx context.Context) error

	SendAudioAppend(pcm []byte) error
	// SendVideoFrameAppend pushes a video frame on providers with a native
	// video channel; others return ErrVideoUnsupported.
	SendVideoFrameAppend(mime string, data []byte) error
	SupportsVideo() bool

	RequestTurnCommit() error
	RequestTextUtterance(text string) error
	RequestVideoCommentary(hint string) error
	// UpdateInstructions replaces the provider's session instructions,
	// used when room membership changes.
	UpdateInstructions(text string) error

	// Events yields normalized provider events. The channel is closed
	// after a socket_closed event has been delivered.
	Events() <-chan Event

	State() ClientState
	Close() error
}

// ClientOptions parameterizes a new provider connection.
type ClientOptions struct {
	APIKey       string
	Model        string
	Instructions string
	Voice        string
}

// ClientFactory builds a client for the named provider ("openai", "gemini",
// "xai"). Unknown providers are an error.
type ClientFactory func(provider string, opts ClientOptions) (Client, error)

// MinCommitBytes computes the provider's minimum committable buffer size
// from its minimum buffered duration: sampleRate samples/s x 2 bytes/sample
// x minMs.
func MinCommitBytes(sampleRate, minMs int) int {
	return sampleRate * 2 * minMs / 1000
}
