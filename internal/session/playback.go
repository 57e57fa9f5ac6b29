package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/glintworks/murmur/internal/audio"
)

const trimLogInterval = 5 * time.Second

// playbackSink is the outbound half of the voice transport.
type playbackSink interface {
	SendOpus(packet []byte) error
	Speaking(on bool) error
}

type playbackStatus string

const (
	playbackIdle       playbackStatus = "idle"
	playbackPlaying    playbackStatus = "playing"
	playbackAutoPaused playbackStatus = "auto-paused"
)

// playbackQueue buffers provider PCM and drains fixed-size frames to the
// voice transport on the transport's native frame cadence. Chunks are kept
// whole with a head offset instead of compacting the slice on every pop.
// A hard byte cap bounds worst-case latency under sustained overload: the
// oldest whole frames are dropped first.
type playbackQueue struct {
	mu            sync.Mutex
	chunks        [][]byte
	headOffset    int
	queuedBytes   int
	capBytes      int
	frameBytes    int
	status        playbackStatus
	destroyed     bool
	lastTrimLogAt time.Time

	roomID string
}

func newPlaybackQueue(roomID string, capBytes int) *playbackQueue {
	capBytes = audio.AlignToFrame(capBytes, audio.ProviderFrameBytes)
	if capBytes < audio.ProviderFrameBytes {
		capBytes = audio.ProviderFrameBytes
	}
	return &playbackQueue{
		capBytes:   capBytes,
		frameBytes: audio.ProviderFrameBytes,
		status:     playbackIdle,
		roomID:     roomID,
	}
}

// enqueue appends provider PCM, trimming oldest whole frames first when the
// hard cap would be exceeded. A chunk bigger than the cap on its own loses
// its own oldest frames before anything is queued, so queuedBytes never
// exceeds the cap. Returns false only after destroy.
func (q *playbackQueue) enqueue(pcm []byte) bool {
	if len(pcm) == 0 {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return false
	}
	dropped := 0
	if len(pcm) > q.capBytes {
		cut := len(pcm) - q.capBytes
		if rem := cut % q.frameBytes; rem != 0 {
			cut += q.frameBytes - rem
		}
		dropped += cut
		pcm = pcm[cut:]
	}
	if over := q.queuedBytes + len(pcm) - q.capBytes; over > 0 {
		dropped += q.trimOldestLocked(over)
	}
	if dropped > 0 {
		now := time.Now()
		if now.Sub(q.lastTrimLogAt) >= trimLogInterval {
			q.lastTrimLogAt = now
			slog.Warn("playback queue over cap, trimmed oldest audio",
				"room_id", q.roomID, "dropped_bytes", dropped, "queued_bytes", q.queuedBytes, "cap_bytes", q.capBytes)
		}
	}
	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)
	q.chunks = append(q.chunks, chunk)
	q.queuedBytes += len(chunk)
	if q.status == playbackIdle {
		q.status = playbackPlaying
	}
	return true
}

// trimOldestLocked drops whole frames from the head until at least need
// bytes are freed. Never leaves a partial frame at the trim boundary.
func (q *playbackQueue) trimOldestLocked(need int) int {
	toDrop := need
	if rem := toDrop % q.frameBytes; rem != 0 {
		toDrop += q.frameBytes - rem
	}
	if toDrop > q.queuedBytes {
		toDrop = q.queuedBytes
	}
	dropped := 0
	for dropped < toDrop && len(q.chunks) > 0 {
		head := q.chunks[0]
		avail := len(head) - q.headOffset
		take := toDrop - dropped
		if take >= avail {
			dropped += avail
			q.chunks = q.chunks[1:]
			q.headOffset = 0
			continue
		}
		q.headOffset += take
		dropped += take
	}
	q.queuedBytes -= dropped
	return dropped
}

// popFrame removes and returns exactly one frame of PCM, or nil when less
// than a whole frame is queued.
func (q *playbackQueue) popFrame() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed || q.queuedBytes < q.frameBytes {
		if q.queuedBytes == 0 && q.status == playbackPlaying {
			q.status = playbackIdle
		}
		return nil
	}
	frame := make([]byte, 0, q.frameBytes)
	for len(frame) < q.frameBytes {
		head := q.chunks[0]
		avail := len(head) - q.headOffset
		take := q.frameBytes - len(frame)
		if take >= avail {
			frame = append(frame, head[q.headOffset:]...)
			q.chunks = q.chunks[1:]
			q.headOffset = 0
			continue
		}
		frame = append(frame, head[q.headOffset:q.headOffset+take]...)
		q.headOffset += take
	}
	q.queuedBytes -= q.frameBytes
	return frame
}

func (q *playbackQueue) queued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queuedBytes
}

func (q *playbackQueue) currentStatus() playbackStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// pause marks the queue auto-paused while the sink signals backpressure.
func (q *playbackQueue) pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.destroyed && q.status == playbackPlaying {
		q.status = playbackAutoPaused
	}
}

func (q *playbackQueue) resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.destroyed && q.status == playbackAutoPaused {
		q.status = playbackPlaying
	}
}

// clear drops all queued audio but keeps the queue usable. Used on barge-in.
func (q *playbackQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = nil
	q.headOffset = 0
	q.queuedBytes = 0
	q.status = playbackIdle
}

// destroy synchronously releases the buffer; the queue rejects writes
// afterwards. The pump goroutine observes destroyed and exits.
func (q *playbackQueue) destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.destroyed = true
	q.chunks = nil
	q.headOffset = 0
	q.queuedBytes = 0
	q.status = playbackIdle
}

func (q *playbackQueue) isDestroyed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.destroyed
}
