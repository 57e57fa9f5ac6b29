package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/glintworks/murmur/internal/audio"
	"github.com/glintworks/murmur/internal/config"
	"github.com/glintworks/murmur/internal/discord"
	"github.com/glintworks/murmur/internal/llm"
	"github.com/glintworks/murmur/internal/realtime"
	"github.com/glintworks/murmur/internal/settings"
	"github.com/glintworks/murmur/internal/transcriber"
	"github.com/glintworks/murmur/internal/wakeword"
)

const (
	opQueueSize            = 256
	idleCheckInterval      = 30 * time.Second
	thoughtCheckInterval   = 15 * time.Second
	membershipRefreshDelay = 2 * time.Second
	commitRetryDelay       = 320 * time.Millisecond
	maxCommitRetries       = 3

	// commentaryQuietWindow is how long the room must have been silent before
	// unprompted stream commentary may fire.
	commentaryQuietWindow = 10 * time.Second
)

type sessionDeps struct {
	cfg         *config.Config
	store       settings.Store
	generator   llm.Generator
	transcriber transcriber.Transcriber
	discord     discord.Client
	newMixer    audio.MixerFactory
	newDecoder  audio.DecoderFactory
	newEncoder  audio.EncoderFactory
}

// Session is one active voice-channel engagement. All conversational state is
// owned by a single op goroutine; other goroutines (timers, the provider
// event pump, the voice receive callback) hand work in through post. Teardown
// closes done, which stops the op loop and turns late timer posts into no-ops.
type Session struct {
	id             string
	roomID         string
	voiceChannelID string
	textChannelID  string
	mode           string
	startedAt      time.Time

	deps     sessionDeps
	settings settings.Settings

	vc      discord.VoiceConnection
	client  realtime.Client
	queue   *playbackQueue
	encoder audio.Encoder

	mixer     audio.Mixer
	sttWriter transcriber.StreamWriter

	decoders map[string]audio.Decoder

	turns         *turnState
	watch         *streamWatch
	participants  int
	membership    []MembershipEvent
	responseAudio []byte

	ops     chan func()
	done    chan struct{}
	endOnce sync.Once

	inactivityTicker *time.Ticker
	thoughtTicker    *time.Ticker
	maxDurTimer      *time.Timer
	refreshTimer     *time.Timer

	rng *rand.Rand

	// onEnd asks the owning manager to tear this session down. Invoked at
	// most once, never from the op goroutine itself.
	onEnd func(reason string)
}

func (s *Session) isRealtime() bool {
	return s.mode != config.VoiceModeSTTPipeline
}

func (s *Session) strictness() wakeword.Strictness {
	if s.settings.WakeWordStrictness == "fuzzy" {
		return wakeword.StrictnessFuzzy
	}
	return wakeword.StrictnessExact
}

// start launches the op loop and the session's background goroutines. The
// voice connection and (for realtime modes) the provider client must already
// be connected.
func (s *Session) start(ctx context.Context) error {
	now := time.Now()
	s.startedAt = now
	s.turns = newTurnState(now)
	s.watch = &streamWatch{}
	s.decoders = make(map[string]audio.Decoder)
	s.ops = make(chan func(), opQueueSize)
	s.done = make(chan struct{})
	s.rng = rand.New(rand.NewSource(now.UnixNano()))
	s.queue = newPlaybackQueue(s.roomID, s.deps.cfg.PlaybackQueueCapBytes)

	if s.isRealtime() {
		enc, err := s.deps.newEncoder()
		if err != nil {
			return fmt.Errorf("failed to create playback encoder: %w", err)
		}
		s.encoder = enc
	} else {
		s.mixer = s.deps.newMixer()
		writer, err := s.deps.transcriber.StartStreaming(ctx, s.id, s.deps.cfg.DefaultTranscribeLanguage, s)
		if err != nil {
			return fmt.Errorf("failed to start transcription stream: %w", err)
		}
		s.sttWriter = writer
	}

	s.inactivityTicker = time.NewTicker(idleCheckInterval)
	s.thoughtTicker = time.NewTicker(thoughtCheckInterval)
	s.maxDurTimer = time.AfterFunc(time.Duration(s.deps.cfg.MaxSessionDurationMin)*time.Minute, func() {
		s.requestEnd(StopReasonMaxDuration)
	})

	go s.run()
	go s.runTimers()
	go s.vc.ReceiveAudio(s.onVoicePacket)
	if s.isRealtime() {
		go s.runEventPump()
		go s.runPlaybackPump()
	} else {
		go s.runMixedAudioPump()
	}
	s.post(s.refreshInstructions)

	slog.Info("session started",
		"session_id", s.id, "room_id", s.roomID, "voice_channel_id", s.voiceChannelID, "mode", s.mode)
	return nil
}

func (s *Session) run() {
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.done:
			return
		}
	}
}

// post hands an op to the session goroutine; after teardown it is dropped.
func (s *Session) post(op func()) {
	select {
	case s.ops <- op:
	case <-s.done:
	}
}

func (s *Session) runTimers() {
	for {
		select {
		case <-s.done:
			return
		case <-s.inactivityTicker.C:
			s.post(s.checkInactivity)
		case <-s.thoughtTicker.C:
			s.post(s.checkUnpromptedWork)
		}
	}
}

// requestEnd asks the manager to tear the session down. Safe from any
// goroutine, including the op loop.
func (s *Session) requestEnd(reason string) {
	s.endOnce.Do(func() {
		go s.onEnd(reason)
	})
}

// shutdown releases every resource. Called by the manager exactly once,
// never from the op goroutine.
func (s *Session) shutdown(reason string) {
	close(s.done)
	s.endOnce.Do(func() {}) // suppress any late requestEnd
	s.inactivityTicker.Stop()
	s.thoughtTicker.Stop()
	s.maxDurTimer.Stop()
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}
	s.queue.destroy()
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			slog.Warn("failed to close realtime client", "session_id", s.id, "error", err)
		}
	}
	if s.sttWriter != nil {
		if err := s.sttWriter.Close(); err != nil {
			slog.Warn("failed to close transcription stream", "session_id", s.id, "error", err)
		}
	}
	if s.mixer != nil {
		s.mixer.Close()
	}
	for _, dec := range s.decoders {
		dec.Close()
	}
	if s.encoder != nil {
		s.encoder.Close()
	}
	if err := s.vc.Disconnect(); err != nil {
		slog.Warn("failed to disconnect voice", "session_id", s.id, "error", err)
	}
	s.logAction("session_end", reason)
	slog.Info("session ended",
		"session_id", s.id, "room_id", s.roomID, "reason", reason,
		"duration_sec", int(time.Since(s.startedAt).Seconds()))
}

// onVoicePacket runs on the voice receive goroutine. The mixer is safe for
// concurrent writes, so the speech-to-text path feeds it directly; all other
// bookkeeping moves onto the op loop.
func (s *Session) onVoicePacket(userID string, opusPacket []byte) {
	if !s.isRealtime() {
		s.mixer.WriteOpusPacket(userID, opusPacket)
	}
	packet := make([]byte, len(opusPacket))
	copy(packet, opusPacket)
	s.post(func() { s.handleVoicePacket(userID, packet) })
}

func (s *Session) handleVoicePacket(userID string, opusPacket []byte) {
	now := time.Now()
	c := s.turns.ensureCapture(userID, now)

	if s.isRealtime() {
		dec, err := s.decoderFor(userID)
		if err != nil {
			slog.Warn("failed to create opus decoder", "session_id", s.id, "user_id", userID, "error", err)
			return
		}
		pcm, err := dec.Decode(opusPacket)
		if err != nil {
			slog.Debug("failed to decode opus packet", "session_id", s.id, "user_id", userID, "error", err)
			return
		}
		c.bytesCaptured += len(pcm)
		if err := s.client.SendAudioAppend(pcm); err != nil {
			slog.Warn("failed to append audio to provider", "session_id", s.id, "error", err)
		}
	} else {
		// Mixer consumed the packet already; approximate captured speech by
		// the decoded size of one transport frame at the provider rate.
		c.bytesCaptured += audio.ProviderFrameBytes
	}

	if s.turns.shouldBargeIn(c, s.queue.queued() > 0, now) {
		s.interruptPlayback(userID, now)
	}
	s.armFinalize(c, now)
}

func (s *Session) decoderFor(userID string) (audio.Decoder, error) {
	if dec, ok := s.decoders[userID]; ok {
		return dec, nil
	}
	dec, err := s.deps.newDecoder()
	if err != nil {
		return nil, err
	}
	s.decoders[userID] = dec
	return dec, nil
}

func (s *Session) loadSnapshot() loadSnapshot {
	return loadSnapshot{
		Realtime:       s.isRealtime(),
		ActiveCaptures: len(s.turns.captures),
		PendingTurns:   s.turns.pendingTurns,
		Draining:       s.queue.queued() > 0,
	}
}

func (s *Session) armFinalize(c *capture, now time.Time) {
	c.cancelFinalize()
	delay := resolveFinalizeDelay(s.loadSnapshot(), c.ageMs(now))
	userID := c.userID
	c.finalize = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		s.post(func() { s.finalizeCapture(userID) })
	})
}

// finalizeCapture closes one speaker's utterance after the resolved silence
// gap. For realtime modes an addressed utterance is committed to the
// provider; an utterance under the provider's commit floor keeps buffering
// and retries a bounded number of times before the capture is dropped.
func (s *Session) finalizeCapture(userID string) {
	c, ok := s.turns.captures[userID]
	if !ok {
		return
	}
	now := time.Now()
	transcript := s.turns.interimTranscripts[s.transcriptKey(userID)]
	addressed := s.turns.isAddressed(userID, transcript, s.settings.BotDisplayName, s.strictness(), now)

	if !s.isRealtime() {
		// Turn completion for the speech-to-text pipeline happens when the
		// final transcript arrives; the capture just stops counting here.
		s.turns.dropCapture(userID)
		s.turns.pendingTurns++
		return
	}

	if !addressed {
		s.turns.dropCapture(userID)
		return
	}
	if err := s.client.RequestTurnCommit(); err != nil {
		if errors.Is(err, realtime.ErrBelowCommitFloor) {
			c.commitRetries++
			if c.commitRetries >= maxCommitRetries {
				slog.Debug("utterance stayed under commit floor, dropping capture",
					"session_id", s.id, "user_id", userID, "retries", c.commitRetries)
				s.turns.dropCapture(userID)
				return
			}
			c.finalize = time.AfterFunc(commitRetryDelay, func() {
				s.post(func() { s.finalizeCapture(userID) })
			})
			return
		}
		slog.Warn("failed to commit turn", "session_id", s.id, "error", err)
		s.turns.dropCapture(userID)
		return
	}
	s.turns.dropCapture(userID)
	s.turns.interimTranscripts = make(map[string]string)
	s.turns.botTurnOpen = true
	s.turns.pending = &pendingResponse{requestedAt: now}
	s.turns.pendingTurns++
	s.turns.noteEngaged(now)
	slog.Debug("turn committed", "session_id", s.id, "user_id", userID, "transcript", transcript)
}

// transcriptKey maps a speaker to their interim transcript slot. Realtime
// providers transcribe the shared input stream, so every speaker reads the
// same slot; the speech-to-text pipeline keys per speaker.
func (s *Session) transcriptKey(userID string) string {
	if s.isRealtime() {
		return ""
	}
	return userID
}

func (s *Session) interruptPlayback(byUserID string, now time.Time) {
	var audioAgeMs int64
	if p := s.turns.pending; p != nil && !p.audioReceivedAt.IsZero() {
		audioAgeMs = now.Sub(p.audioReceivedAt).Milliseconds()
	}
	s.queue.clear()
	s.turns.noteBargeIn(now)
	s.logAction("barge_in", "interrupted by user "+byUserID)
	slog.Info("playback interrupted by speech",
		"session_id", s.id, "user_id", byUserID, "response_audio_age_ms", audioAgeMs)
}

func (s *Session) checkInactivity() {
	idle := time.Since(s.turns.lastActivityAt)
	if idle >= time.Duration(s.deps.cfg.InactivityTimeoutMin)*time.Minute {
		s.requestEnd(StopReasonInactivity)
	}
}

// checkUnpromptedWork runs the periodic gates for stream commentary and
// unprompted thoughts. Commentary wins when both are due.
func (s *Session) checkUnpromptedWork() {
	now := time.Now()
	quiet := len(s.turns.captures) == 0 && !s.turns.botTurnOpen && s.queue.queued() == 0 &&
		now.Sub(s.turns.lastActivityAt) >= commentaryQuietWindow
	interval := time.Duration(s.settings.CommentaryIntervalSec) * time.Second
	if s.watch.commentaryDue(interval, quiet, now) {
		s.triggerCommentary(now)
		return
	}
	gate := thoughtGateInput{
		Now:            now,
		LastActivityAt: s.turns.lastActivityAt,
		LastThoughtAt:  s.turns.lastThoughtAt,
		Eagerness:      s.settings.ThoughtEagerness,
		ActiveCaptures: len(s.turns.captures),
		BotTurnOpen:    s.turns.botTurnOpen,
		Participants:   s.participants,
		Roll:           s.rng.Float64(),
	}
	if evaluateThoughtGate(gate) {
		s.triggerThought(now)
	}
}

func (s *Session) triggerThought(now time.Time) {
	s.turns.lastThoughtAt = now
	s.logAction("unprompted_thought", "")
	if s.isRealtime() {
		prompt := "会話が静かになっています。流れに沿ったひとことを自然に話してください。"
		if err := s.client.RequestTextUtterance(prompt); err != nil {
			slog.Warn("failed to request unprompted utterance", "session_id", s.id, "error", err)
			return
		}
		s.turns.botTurnOpen = true
		s.turns.pending = &pendingResponse{requestedAt: now}
		return
	}
	go s.generateAndPostText(
		"あなたはボイスチャンネルに同席している雑談相手です。",
		"会話が途切れています。場に合う短いひとことを日本語で返してください。", nil)
}

func (s *Session) triggerCommentary(now time.Time) {
	s.watch.noteCommentary(now)
	s.turns.lastThoughtAt = now
	s.logAction("stream_commentary", "target "+s.watch.targetUserID)
	if s.isRealtime() && s.client.SupportsVideo() {
		slog.Info("stream commentary triggered", "session_id", s.id, "path", "native")
		if err := s.client.RequestVideoCommentary("画面共有の内容について、短く自然なコメントをしてください。"); err != nil {
			slog.Warn("failed to request video commentary", "session_id", s.id, "error", err)
			return
		}
		s.turns.botTurnOpen = true
		s.turns.pending = &pendingResponse{requestedAt: now}
		return
	}
	frame := s.watch.takeLatest()
	if frame == nil {
		return
	}
	slog.Info("stream commentary triggered",
		"session_id", s.id, "path", "vision_fallback", "model", s.settings.VisionFallbackModel)
	go s.commentOnFrame(frame)
}

// commentOnFrame runs the vision fallback off the op loop: describe the
// buffered frame with a vision model, then speak or post the result.
func (s *Session) commentOnFrame(frame *bufferedFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := s.deps.generator.Generate(ctx, llm.GenerateInput{
		Model:        s.settings.VisionFallbackModel,
		SystemPrompt: "あなたはボイスチャンネルで画面共有を眺めている雑談相手です。",
		UserPrompt:   "この画面について、短く自然なコメントを日本語でひとことください。",
		Images:       []llm.ImageInput{{MimeType: frame.mimeType, Data: frame.data}},
	})
	if err != nil {
		slog.Warn("vision fallback generation failed", "session_id", s.id, "error", err)
		return
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return
	}
	if s.isRealtime() {
		s.post(func() {
			if err := s.client.RequestTextUtterance(text); err != nil {
				slog.Warn("failed to speak commentary", "session_id", s.id, "error", err)
				return
			}
			s.turns.botTurnOpen = true
			s.turns.pending = &pendingResponse{requestedAt: time.Now()}
		})
		return
	}
	if err := s.deps.discord.SendChannelMessage(s.textChannelID, text); err != nil {
		slog.Warn("failed to post commentary message", "session_id", s.id, "error", err)
	}
}

func (s *Session) generateAndPostText(system, prompt string, images []llm.ImageInput) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := s.deps.generator.Generate(ctx, llm.GenerateInput{
		Model:        s.deps.cfg.ThoughtModel,
		SystemPrompt: system,
		UserPrompt:   prompt,
		Images:       images,
	})
	if err != nil {
		slog.Warn("text generation failed", "session_id", s.id, "error", err)
		return
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return
	}
	if err := s.deps.discord.SendChannelMessage(s.textChannelID, text); err != nil {
		slog.Warn("failed to post message", "session_id", s.id, "error", err)
	}
}

func (s *Session) logAction(kind, detail string) {
	event := settings.ActionEvent{
		Kind:      kind,
		RoomID:    s.roomID,
		SessionID: s.id,
		Detail:    detail,
		At:        time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.store.LogAction(ctx, event); err != nil {
			slog.Warn("failed to record action", "session_id", s.id, "kind", kind, "error", err)
		}
	}()
}
