package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glintworks/murmur/internal/audio"
	"github.com/glintworks/murmur/internal/discord"
	"github.com/glintworks/murmur/internal/realtime"
	"github.com/glintworks/murmur/internal/transcriber"
)

// runEventPump moves normalized provider events onto the op loop. The events
// channel closes after socket_closed, which ends the pump.
func (s *Session) runEventPump() {
	for ev := range s.client.Events() {
		ev := ev
		s.post(func() { s.handleProviderEvent(ev) })
	}
}

func (s *Session) handleProviderEvent(ev realtime.Event) {
	now := time.Now()
	switch ev.Type {
	case realtime.EventAudioDelta:
		if p := s.turns.pending; p != nil && p.audioReceivedAt.IsZero() {
			p.audioReceivedAt = now
		}
		s.turns.botTurnOpen = true
		s.queue.enqueue(ev.PCM)
		if s.deps.cfg.IsDevelopment() {
			s.responseAudio = append(s.responseAudio, ev.PCM...)
		}

	case realtime.EventTranscript:
		if ev.OfResponse {
			if ev.Final && ev.Text != "" {
				slog.Debug("agent said", "session_id", s.id, "text", ev.Text)
			}
			return
		}
		key := s.transcriptKey("")
		if ev.Final {
			s.turns.interimTranscripts[key] = ev.Text
		} else {
			s.turns.interimTranscripts[key] += ev.Text
		}
		s.turns.lastActivityAt = now

	case realtime.EventResponseDone:
		s.turns.botTurnOpen = false
		s.turns.pending = nil
		if s.turns.pendingTurns > 0 {
			s.turns.pendingTurns--
		}
		s.turns.lastActivityAt = now
		if len(s.responseAudio) > 0 {
			s.archiveResponseAudio(s.responseAudio, now)
			s.responseAudio = nil
		}

	case realtime.EventSocketError:
		var perr *realtime.ProviderError
		if errors.As(ev.Err, &perr) && perr.Recoverable() {
			slog.Warn("recoverable provider error", "session_id", s.id, "error", ev.Err)
			return
		}
		state := s.client.State()
		slog.Error("provider error, abandoning current turn",
			"session_id", s.id, "provider", state.Provider, "error", ev.Err,
			"outbound_history", summarizeHistory(state.OutboundHistory))
		s.turns.botTurnOpen = false
		s.turns.pending = nil

	case realtime.EventSocketClosed:
		if ev.Expected {
			return
		}
		slog.Error("provider socket closed unexpectedly",
			"session_id", s.id, "close_code", ev.CloseCode, "close_reason", ev.CloseReason)
		s.requestEnd(StopReasonSocketClosed)
	}
}

// archiveResponseAudio posts the reply audio to the text channel as a WAV
// attachment. Development aid for reviewing what the agent actually said.
func (s *Session) archiveResponseAudio(pcm []byte, at time.Time) {
	body := audio.WrapWAV(pcm, audio.ProviderSampleRate, 1)
	msg := discord.FileMessage{
		ChannelID: s.textChannelID,
		Filename:  fmt.Sprintf("reply-%s.wav", at.Format("150405")),
		FileBody:  body,
	}
	go func() {
		if err := s.deps.discord.SendChannelMessageWithFile(msg); err != nil {
			slog.Warn("failed to archive response audio", "session_id", s.id, "error", err)
		}
	}()
}

func summarizeHistory(records []realtime.OutboundRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, string(r.Kind)+" "+r.Summary)
	}
	return out
}

// runPlaybackPump drains the playback queue one frame per transport tick,
// expanding provider PCM to the transport format and encoding to opus. The
// speaking indicator follows whether a frame actually went out.
func (s *Session) runPlaybackPump() {
	ticker := time.NewTicker(audio.FrameDurationMs * time.Millisecond)
	defer ticker.Stop()
	speaking := false
	setSpeaking := func(on bool) {
		if speaking == on {
			return
		}
		speaking = on
		if err := s.vc.Speaking(on); err != nil {
			slog.Debug("failed to toggle speaking indicator", "session_id", s.id, "error", err)
		}
	}
	for {
		select {
		case <-s.done:
			setSpeaking(false)
			return
		case <-ticker.C:
			if s.queue.currentStatus() == playbackAutoPaused {
				continue
			}
			frame := s.queue.popFrame()
			if frame == nil {
				setSpeaking(false)
				continue
			}
			packet, err := s.encoder.Encode(audio.ExpandProviderFrame(frame))
			if err != nil {
				slog.Warn("failed to encode playback frame", "session_id", s.id, "error", err)
				continue
			}
			setSpeaking(true)
			if err := s.vc.SendOpus(packet); err != nil {
				slog.Warn("voice transport rejected frame, pausing playback", "session_id", s.id, "error", err)
				s.queue.pause()
				time.AfterFunc(200*time.Millisecond, s.queue.resume)
			}
		}
	}
}

// runMixedAudioPump streams the mixed room audio into the transcription
// stream for the speech-to-text pipeline mode.
func (s *Session) runMixedAudioPump() {
	buf := make([]byte, 1024*16)
	for {
		select {
		case <-s.done:
			return
		default:
		}
		n, err := s.mixer.ReadMixedPCM(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		if err := s.sttWriter.Write(buf[:n]); err != nil {
			slog.Warn("failed to write mixed audio to transcriber", "session_id", s.id, "error", err)
			return
		}
	}
}

// OnSegment implements transcriber.ResultReceiver for the speech-to-text
// pipeline. A final segment completes a turn: if it addresses the agent, a
// text reply is generated and posted to the room's text channel.
func (s *Session) OnSegment(seg transcriber.Segment) {
	s.post(func() {
		now := time.Now()
		s.turns.lastActivityAt = now
		if !seg.Final {
			return
		}
		if s.turns.pendingTurns > 0 {
			s.turns.pendingTurns--
		}
		slog.Debug("transcript segment", "session_id", s.id, "segment", seg.Index, "text", seg.Text)
		if !s.turns.isAddressed("", seg.Text, s.settings.BotDisplayName, s.strictness(), now) {
			return
		}
		s.turns.noteEngaged(now)
		go s.generateAndPostText(
			"あなたはボイスチャンネルに同席している会話相手です。短く自然に応答してください。",
			seg.Text, nil)
	})
}

// OnError implements transcriber.ResultReceiver.
func (s *Session) OnError(err error) {
	slog.Error("transcription stream failed", "session_id", s.id, "error", err)
	s.requestEnd(StopReasonTranscriberError)
}
