package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/glintworks/murmur/internal/audio"
	rt "github.com/glintworks/murmur/internal/realtime"
	"github.com/gorilla/websocket"
)

// ClientConfig carries everything a provider adapter needs to open a session
// socket.
type ClientConfig struct {
	APIKey           string
	Model            string
	Instructions     string
	Voice            string
	HandshakeTimeout time.Duration
}

// frameCodec is the only provider-specific surface. The shared wsClient owns
// the socket, send serialization, commit-floor enforcement, diagnostics
// history, and the read loop; a codec translates frames both ways.
type frameCodec interface {
	name() string
	dialTarget(cfg ClientConfig) (url string, header http.Header)
	// helloFrames are sent right after the socket opens (session setup).
	helloFrames(cfg ClientConfig) []any
	// decode translates one inbound text frame into normalized events.
	decode(data []byte) []rt.Event
	audioAppendFrame(pcm []byte) any
	videoFrameAppendFrame(mime string, data []byte) any
	turnCommitFrames() []any
	textUtteranceFrames(text string) []any
	videoCommentaryFrames(hint string) []any
	instructionFrames(text string) []any
	supportsVideo() bool
	minCommitMs() int
}

type wsClient struct {
	codec frameCodec
	cfg   ClientConfig

	mu               sync.Mutex
	conn             *websocket.Conn
	connected        bool
	connectedAt      time.Time
	lastEventAt      time.Time
	lastError        string
	closing          bool
	bytesSinceCommit int
	history          []rt.OutboundRecord

	events chan rt.Event
}

func newWSClient(codec frameCodec, cfg ClientConfig) *wsClient {
	return &wsClient{
		codec:  codec,
		cfg:    cfg,
		events: make(chan rt.Event, 256),
	}
}

func (c *wsClient) Connect(ctx context.Context) error {
	url, header := c.codec.dialTarget(c.cfg)
	conn, err := dialProvider(ctx, c.codec.name(), url, header, c.cfg.HandshakeTimeout)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.connectedAt = time.Now()
	c.mu.Unlock()

	for _, frame := range c.codec.helloFrames(c.cfg) {
		if err := c.send(rt.OutboundInstructions, frame, 0, "session setup"); err != nil {
			_ = c.Close()
			return &rt.ConnectError{Provider: c.codec.name(), Source: rt.ConnectSourceSocketError, Err: err}
		}
	}
	slog.Info("realtime provider connected", "provider", c.codec.name(), "model", c.cfg.Model)

	go c.readLoop(conn)
	return nil
}

func (c *wsClient) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			expected := c.closing
			c.connected = false
			if !expected {
				c.lastError = err.Error()
			}
			c.mu.Unlock()

			closeCode := 0
			closeReason := ""
			if ce, ok := err.(*websocket.CloseError); ok {
				closeCode = ce.Code
				closeReason = ce.Text
			}
			if !expected {
				c.emit(rt.Event{Type: rt.EventSocketError, Err: err})
			}
			c.emit(rt.Event{
				Type:        rt.EventSocketClosed,
				CloseCode:   closeCode,
				CloseReason: closeReason,
				Expected:    expected,
			})
			close(c.events)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		for _, ev := range c.codec.decode(data) {
			if ev.Type == rt.EventSocketError && ev.Err != nil {
				c.mu.Lock()
				c.lastError = ev.Err.Error()
				c.mu.Unlock()
			}
			c.emit(ev)
		}
	}
}

func (c *wsClient) emit(ev rt.Event) {
	c.mu.Lock()
	c.lastEventAt = time.Now()
	c.mu.Unlock()
	if droppableEvent(ev) {
		select {
		case c.events <- ev:
		default:
			// Consumer fell behind; the playback queue re-buffers from later
			// deltas and a revised transcript supersedes the dropped one.
			slog.Warn("realtime event channel full, dropping event", "provider", c.codec.name(), "event_type", string(ev.Type))
		}
		return
	}
	// Turn-semantic and terminal events are never shed. The consumer drains
	// the channel until it closes, so this send always completes.
	c.events <- ev
}

// droppableEvent reports whether an event may be shed under backpressure:
// audio deltas and non-final transcripts are superseded by later ones.
func droppableEvent(ev rt.Event) bool {
	switch ev.Type {
	case rt.EventAudioDelta:
		return true
	case rt.EventTranscript:
		return !ev.Final
	}
	return false
}

// send serializes one frame onto the socket and records it in the bounded
// diagnostics history. The connection must be open.
func (c *wsClient) send(kind rt.OutboundKind, frame any, payloadBytes int, summary string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return rt.ErrNotConnected
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		c.lastError = err.Error()
		return err
	}
	c.history = append(c.history, rt.OutboundRecord{
		Kind:    kind,
		Bytes:   payloadBytes,
		SentAt:  time.Now(),
		Summary: summary,
	})
	if len(c.history) > rt.OutboundHistorySize {
		c.history = c.history[len(c.history)-rt.OutboundHistorySize:]
	}
	return nil
}

func (c *wsClient) SendAudioAppend(pcm []byte) error {
	if err := c.send(rt.OutboundAudioAppend, c.codec.audioAppendFrame(pcm), len(pcm), ""); err != nil {
		return err
	}
	c.mu.Lock()
	c.bytesSinceCommit += len(pcm)
	c.mu.Unlock()
	return nil
}

func (c *wsClient) SendVideoFrameAppend(mime string, data []byte) error {
	if !c.codec.supportsVideo() {
		return rt.ErrVideoUnsupported
	}
	return c.send(rt.OutboundVideoFrameAppend, c.codec.videoFrameAppendFrame(mime, data), len(data), mime)
}

func (c *wsClient) SupportsVideo() bool { return c.codec.supportsVideo() }

func (c *wsClient) RequestTurnCommit() error {
	floor := rt.MinCommitBytes(audio.ProviderSampleRate, c.codec.minCommitMs())
	c.mu.Lock()
	buffered := c.bytesSinceCommit
	c.mu.Unlock()
	if buffered < floor {
		slog.Debug("turn commit held below provider floor",
			"provider", c.codec.name(), "buffered_bytes", buffered, "floor_bytes", floor)
		return rt.ErrBelowCommitFloor
	}
	for _, frame := range c.codec.turnCommitFrames() {
		if err := c.send(rt.OutboundTurnCommit, frame, 0, ""); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.bytesSinceCommit = 0
	c.mu.Unlock()
	return nil
}

func (c *wsClient) RequestTextUtterance(text string) error {
	for _, frame := range c.codec.textUtteranceFrames(text) {
		if err := c.send(rt.OutboundTextUtterance, frame, len(text), truncate(text, 60)); err != nil {
			return err
		}
	}
	return nil
}

func (c *wsClient) RequestVideoCommentary(hint string) error {
	for _, frame := range c.codec.videoCommentaryFrames(hint) {
		if err := c.send(rt.OutboundVideoCommentary, frame, 0, truncate(hint, 60)); err != nil {
			return err
		}
	}
	return nil
}

func (c *wsClient) UpdateInstructions(text string) error {
	for _, frame := range c.codec.instructionFrames(text) {
		if err := c.send(rt.OutboundInstructions, frame, len(text), "instructions update"); err != nil {
			return err
		}
	}
	return nil
}

func (c *wsClient) Events() <-chan rt.Event { return c.events }

func (c *wsClient) State() rt.ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := make([]rt.OutboundRecord, len(c.history))
	copy(history, c.history)
	return rt.ClientState{
		Provider:        c.codec.name(),
		Connected:       c.connected,
		ConnectedAt:     c.connectedAt,
		LastEventAt:     c.lastEventAt,
		LastError:       c.lastError,
		OutboundHistory: history,
	}
}

func (c *wsClient) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	conn := c.conn
	c.connected = false
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	return conn.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
