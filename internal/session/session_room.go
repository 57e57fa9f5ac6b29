package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glintworks/murmur/internal/discord"
	"github.com/glintworks/murmur/internal/realtime"
	"github.com/glintworks/murmur/internal/settings"
)

// MembershipEvent is one join or leave recorded on the session. The log is
// append-only and ordered by arrival.
type MembershipEvent struct {
	UserID string
	Joined bool
	At     time.Time
}

// handleVoiceState tracks membership of the session's voice channel. Every
// join and leave is appended to the membership log. A room everyone has left
// ends the session; any change schedules a debounced instruction refresh so
// the provider knows who is present.
func (s *Session) handleVoiceState(ev discord.VoiceStateEvent) {
	s.post(func() {
		now := time.Now()
		joined := ev.AfterChannelID == s.voiceChannelID && ev.BeforeChannelID != s.voiceChannelID
		left := ev.BeforeChannelID == s.voiceChannelID && ev.AfterChannelID != s.voiceChannelID
		switch {
		case joined:
			s.participants++
			s.membership = append(s.membership, MembershipEvent{UserID: ev.UserID, Joined: true, At: now})
			s.turns.noteJoin(ev.UserID, now)
			slog.Info("participant joined", "session_id", s.id, "user_id", ev.UserID, "participants", s.participants)
		case left:
			if s.participants > 0 {
				s.participants--
			}
			s.membership = append(s.membership, MembershipEvent{UserID: ev.UserID, Joined: false, At: now})
			s.turns.noteLeave(ev.UserID)
			if s.watch.active && s.watch.targetUserID == ev.UserID {
				s.watch.stop()
				slog.Info("stream watch target left, watch stopped", "session_id", s.id, "user_id", ev.UserID)
			}
			slog.Info("participant left", "session_id", s.id, "user_id", ev.UserID, "participants", s.participants)
		default:
			return
		}
		if s.participants == 0 {
			s.requestEnd(StopReasonAllLeft)
			return
		}
		s.scheduleInstructionRefresh()
	})
}

func (s *Session) scheduleInstructionRefresh() {
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}
	s.refreshTimer = time.AfterFunc(membershipRefreshDelay, func() {
		s.post(s.refreshInstructions)
	})
}

// refreshInstructions rebuilds the provider instructions from the current
// room membership. Also seeds the participant count on session start.
func (s *Session) refreshInstructions() {
	participants, err := s.deps.discord.ListVoiceChannelParticipants(s.roomID, s.voiceChannelID)
	if err != nil {
		slog.Warn("failed to list voice participants", "session_id", s.id, "error", err)
		return
	}
	now := time.Now()
	count := 0
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.IsBot {
			continue
		}
		count++
		names = append(names, p.DisplayName)
	}
	s.participants = count
	s.turns.lastActivityAt = now
	if !s.isRealtime() {
		return
	}
	if err := s.client.UpdateInstructions(buildInstructions(s.settings.BotDisplayName, names)); err != nil {
		slog.Warn("failed to update provider instructions", "session_id", s.id, "error", err)
	}
}

func buildInstructions(botName string, participantNames []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "あなたは「%s」という名前で、Discordのボイスチャンネルに同席している会話相手です。", botName)
	b.WriteString("応答は短く自然な日本語の話し言葉で、1〜2文にまとめてください。")
	if len(participantNames) > 0 {
		fmt.Fprintf(&b, "現在の参加者: %s。", strings.Join(participantNames, "、"))
		b.WriteString("呼びかけられたときは相手の名前を踏まえて応答してください。")
	}
	return b.String()
}

// startWatch begins watching the target user's screen share. Returns a
// user-facing message for the slash response.
func (s *Session) startWatch(targetUserID, requestedByID string) string {
	result := make(chan string, 1)
	s.post(func() {
		if !s.settings.StreamWatchEnabled {
			result <- msgWatchDisabled
			return
		}
		if targetUserID == "" {
			result <- msgWatchTargetMissing
			return
		}
		s.watch.start(targetUserID, requestedByID, time.Now())
		s.logAction("watch_start", "target "+targetUserID)
		slog.Info("stream watch started", "session_id", s.id, "target_user_id", targetUserID, "requested_by", requestedByID)
		result <- msgWatchStarted
	})
	select {
	case msg := <-result:
		return msg
	case <-s.done:
		return msgNoActiveSession
	}
}

func (s *Session) stopWatch(requestedByID string) string {
	result := make(chan string, 1)
	s.post(func() {
		if !s.watch.active {
			result <- msgWatchNotWatching
			return
		}
		s.watch.stop()
		s.logAction("watch_stop", "requested by "+requestedByID)
		result <- msgWatchStopped
	})
	select {
	case msg := <-result:
		return msg
	case <-s.done:
		return msgNoActiveSession
	}
}

// ingestFrame validates and routes one screen-share frame. The returned
// reason is "accepted" or the rejection reason.
func (s *Session) ingestFrame(streamerID, mimeType string, data []byte) string {
	result := make(chan string, 1)
	s.post(func() {
		if !s.watch.active || s.watch.targetUserID != streamerID {
			result <- reasonNotWatching
			return
		}
		now := time.Now()
		maxBytes := s.deps.cfg.StreamWatchMaxFrameKB * 1024
		reason := s.watch.admitFrame(mimeType, len(data), maxBytes, s.deps.cfg.StreamWatchFramesPerMin, now)
		if reason != ingestAccepted {
			slog.Debug("frame rejected", "session_id", s.id, "reason", reason, "mime_type", mimeType, "size", len(data))
			result <- reason
			return
		}
		if s.isRealtime() && s.client.SupportsVideo() {
			err := s.client.SendVideoFrameAppend(mimeType, data)
			if err == nil {
				result <- ingestAccepted
				return
			}
			if !errors.Is(err, realtime.ErrVideoUnsupported) {
				slog.Warn("failed to forward video frame", "session_id", s.id, "error", err)
			}
		}
		s.watch.keepLatest(mimeType, data, now)
		result <- ingestAccepted
	})
	select {
	case reason := <-result:
		return reason
	case <-s.done:
		return reasonNotActive
	}
}

// Snapshot is a point-in-time view of one session for operator inspection.
type Snapshot struct {
	SessionID      string
	RoomID         string
	VoiceChannelID string
	Mode           string
	StartedAt      time.Time
	Participants   int
	ActiveCaptures int
	PendingTurns   int
	PlaybackBytes  int
	PlaybackStatus string
	WatchActive    bool
	WatchTarget    string
	Membership     []MembershipEvent
	Provider       *realtime.ClientState
}

func (s *Session) snapshot() Snapshot {
	result := make(chan Snapshot, 1)
	s.post(func() {
		snap := Snapshot{
			SessionID:      s.id,
			RoomID:         s.roomID,
			VoiceChannelID: s.voiceChannelID,
			Mode:           s.mode,
			StartedAt:      s.startedAt,
			Participants:   s.participants,
			ActiveCaptures: len(s.turns.captures),
			PendingTurns:   s.turns.pendingTurns,
			PlaybackBytes:  s.queue.queued(),
			PlaybackStatus: string(s.queue.currentStatus()),
			WatchActive:    s.watch.active,
			WatchTarget:    s.watch.targetUserID,
			Membership:     append([]MembershipEvent(nil), s.membership...),
		}
		if s.client != nil {
			state := s.client.State()
			snap.Provider = &state
		}
		result <- snap
	})
	select {
	case snap := <-result:
		return snap
	case <-s.done:
		return Snapshot{SessionID: s.id, RoomID: s.roomID, Mode: s.mode, StartedAt: s.startedAt}
	}
}

// applySettings swaps in a fresh settings snapshot during reconciliation.
// The voice mode is pinned at join time; behavioral knobs apply live. A
// session the reconciliation leaves running counts it as activity, so a
// permitted-but-idle room is not ended by the inactivity timer right after
// an operator touched the settings.
func (s *Session) applySettings(next settings.Settings) {
	s.post(func() {
		next.VoiceMode = s.mode
		s.settings = next
		s.turns.lastActivityAt = time.Now()
		if s.watch.active && !next.StreamWatchEnabled {
			s.watch.stop()
			slog.Info("stream watch disabled by settings", "session_id", s.id)
		}
	})
}
