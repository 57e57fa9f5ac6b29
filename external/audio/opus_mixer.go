//go:build opus

package audio

import (
	"encoding/binary"
	"sync"

	"github.com/glintworks/murmur/internal/audio"
	"github.com/hraban/opus"
)

const (
	mixFrameSamples = audio.TransportSampleRate * audio.FrameDurationMs * audio.TransportChannels / 1000
	// maxQueuedFrames bounds one speaker's jitter queue. A user whose packets
	// arrive faster than the read side drains loses their oldest frames,
	// matching the drop-oldest policy of the playback path.
	maxQueuedFrames = 50
)

// roomMixer folds every speaker's opus stream into a single transport-rate
// stereo track for the speech-to-text pipeline. One decoder and one bounded
// frame queue per speaker; ReadMixedPCM sums the head frame of each queue.
type roomMixer struct {
	mu       sync.Mutex
	speakers map[string]*speakerLane
	closed   bool
}

type speakerLane struct {
	dec    *opus.Decoder
	frames [][]int16
}

func (l *speakerLane) push(frame []int16) {
	if len(l.frames) >= maxQueuedFrames {
		l.frames = l.frames[1:]
	}
	l.frames = append(l.frames, frame)
}

func (l *speakerLane) pop() ([]int16, bool) {
	if len(l.frames) == 0 {
		return nil, false
	}
	f := l.frames[0]
	l.frames = l.frames[1:]
	return f, true
}

func NewRoomMixer() audio.Mixer {
	return &roomMixer{speakers: make(map[string]*speakerLane)}
}

func (m *roomMixer) WriteOpusPacket(userID string, opusData []byte) {
	if len(opusData) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	lane, ok := m.speakers[userID]
	if !ok {
		dec, err := opus.NewDecoder(audio.TransportSampleRate, audio.TransportChannels)
		if err != nil {
			return
		}
		lane = &speakerLane{dec: dec}
		m.speakers[userID] = lane
	}
	pcm := make([]int16, mixFrameSamples)
	n, err := lane.dec.Decode(opusData, pcm)
	if err != nil || n == 0 {
		return
	}
	total := n * audio.TransportChannels
	if total > mixFrameSamples {
		total = mixFrameSamples
	}
	lane.push(pcm[:total])
}

func (m *roomMixer) ReadMixedPCM(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, nil
	}
	mixed := make([]int16, mixFrameSamples)
	popped := false
	for _, lane := range m.speakers {
		frame, ok := lane.pop()
		if !ok {
			continue
		}
		popped = true
		for i := 0; i < len(frame) && i < mixFrameSamples; i++ {
			mixed[i] = clampPCM(int32(mixed[i]) + int32(frame[i]))
		}
	}
	if !popped {
		return 0, nil
	}
	toWrite := len(buf) / 2
	if toWrite > mixFrameSamples {
		toWrite = mixFrameSamples
	}
	for i := 0; i < toWrite; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(mixed[i]))
	}
	return toWrite * 2, nil
}

func clampPCM(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func (m *roomMixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.speakers = nil
}
