package session

import "time"

const (
	frameRateWindow = time.Minute

	// Accepted reason on a successful ingest; everything else is a rejection.
	ingestAccepted = "accepted"

	reasonNotWatching      = "not watching"
	reasonUnsupportedMime  = "unsupported mime type"
	reasonFrameTooLarge    = "frame too large"
	reasonFrameRateLimited = "frame rate limited"
)

var watchableMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type bufferedFrame struct {
	mimeType   string
	data       []byte
	receivedAt time.Time
}

// streamWatch tracks an opt-in screen-share watch inside a session. Frames
// arrive out of band over the ingest API; the watch validates and rate-limits
// them, then either forwards to the provider's native video channel or keeps
// only the latest frame for the vision fallback.
type streamWatch struct {
	active          bool
	targetUserID    string
	requestedByID   string
	startedAt       time.Time
	lastFrameAt     time.Time
	lastCommentary  time.Time
	framesIngested  int
	framesRejected  int
	windowStartedAt time.Time
	windowFrames    int
	latest          *bufferedFrame
}

func (w *streamWatch) start(targetUserID, requestedByID string, now time.Time) {
	*w = streamWatch{
		active:        true,
		targetUserID:  targetUserID,
		requestedByID: requestedByID,
		startedAt:     now,
	}
}

func (w *streamWatch) stop() {
	*w = streamWatch{}
}

// admitFrame validates one incoming frame against the watch state and the
// sliding per-minute rate window. Only an accepted frame advances
// lastFrameAt or the rate window; rejected frames leave both untouched so an
// oversized or malformed frame cannot keep a dead stream looking alive.
func (w *streamWatch) admitFrame(mimeType string, size int, maxBytes, framesPerMin int, now time.Time) string {
	if !w.active {
		return reasonNotWatching
	}
	if !watchableMimeTypes[mimeType] {
		w.framesRejected++
		return reasonUnsupportedMime
	}
	if size > maxBytes {
		w.framesRejected++
		return reasonFrameTooLarge
	}
	if now.Sub(w.windowStartedAt) >= frameRateWindow {
		w.windowStartedAt = now
		w.windowFrames = 0
	}
	if w.windowFrames >= framesPerMin {
		w.framesRejected++
		return reasonFrameRateLimited
	}
	w.windowFrames++
	w.framesIngested++
	w.lastFrameAt = now
	return ingestAccepted
}

// keepLatest stores the frame for the vision fallback, replacing any older
// one. Used only when the provider has no native video channel.
func (w *streamWatch) keepLatest(mimeType string, data []byte, now time.Time) {
	buf := make([]byte, len(data))
	copy(buf, data)
	w.latest = &bufferedFrame{mimeType: mimeType, data: buf, receivedAt: now}
}

// takeLatest returns and clears the buffered fallback frame.
func (w *streamWatch) takeLatest() *bufferedFrame {
	f := w.latest
	w.latest = nil
	return f
}

// commentaryDue reports whether an unprompted commentary may fire: the watch
// must be live (a frame within twice the interval), the interval since the
// previous commentary elapsed, and the conversation quiet.
func (w *streamWatch) commentaryDue(interval time.Duration, quiet bool, now time.Time) bool {
	if !w.active || interval <= 0 || !quiet {
		return false
	}
	if w.lastFrameAt.IsZero() || now.Sub(w.lastFrameAt) > 2*interval {
		return false
	}
	anchor := w.lastCommentary
	if anchor.IsZero() {
		anchor = w.startedAt
	}
	return now.Sub(anchor) >= interval
}

func (w *streamWatch) noteCommentary(now time.Time) {
	w.lastCommentary = now
}
