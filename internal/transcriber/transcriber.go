// Package transcriber is the streaming speech-to-text boundary of the
// stt-pipeline voice mode: mixed room audio goes in, transcript segments come
// back asynchronously while the stream is open.
package transcriber

import "context"

// Segment is one recognized slice of the room's mixed audio. Non-final
// segments are provisional and may be revised; a final segment closes the
// utterance it belongs to.
type Segment struct {
	Index int
	Text  string
	Final bool
}

// StreamWriter accepts transport-rate stereo PCM16 for one live session.
// Write after Close returns an error.
type StreamWriter interface {
	Write(pcm []byte) error
	Close() error
}

// ResultReceiver consumes segments and the stream's terminal error. OnError
// is delivered at most once; the stream is dead afterwards and the session
// owning it is expected to end.
type ResultReceiver interface {
	OnSegment(seg Segment)
	OnError(err error)
}

// Transcriber opens one recognition stream per voice session.
type Transcriber interface {
	StartStreaming(ctx context.Context, sessionID, language string, receiver ResultReceiver) (StreamWriter, error)
}
