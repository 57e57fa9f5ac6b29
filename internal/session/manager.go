package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glintworks/murmur/internal/audio"
	"github.com/glintworks/murmur/internal/config"
	"github.com/glintworks/murmur/internal/discord"
	"github.com/glintworks/murmur/internal/llm"
	"github.com/glintworks/murmur/internal/realtime"
	"github.com/glintworks/murmur/internal/settings"
	"github.com/glintworks/murmur/internal/transcriber"
)

// Manager owns the session registry: at most one session per room. Join and
// leave for the same room are serialized through a per-room lock so a join
// racing a join, or a leave racing a join, resolves to one coherent outcome;
// different rooms never block each other.
type Manager struct {
	deps        sessionDeps
	newRealtime realtime.ClientFactory

	mu       sync.Mutex
	sessions map[string]*Session

	locksMu   sync.Mutex
	roomLocks map[string]*sync.Mutex
}

func NewManager(
	cfg *config.Config,
	store settings.Store,
	discordClient discord.Client,
	generator llm.Generator,
	trans transcriber.Transcriber,
	newMixer audio.MixerFactory,
	newDecoder audio.DecoderFactory,
	newEncoder audio.EncoderFactory,
	newRealtime realtime.ClientFactory,
) *Manager {
	return &Manager{
		deps: sessionDeps{
			cfg:         cfg,
			store:       store,
			generator:   generator,
			transcriber: trans,
			discord:     discordClient,
			newMixer:    newMixer,
			newDecoder:  newDecoder,
			newEncoder:  newEncoder,
		},
		newRealtime: newRealtime,
		sessions:    make(map[string]*Session),
		roomLocks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) roomLock(roomID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		m.roomLocks[roomID] = lock
	}
	return lock
}

func (m *Manager) getSession(roomID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[roomID]
}

// Join starts a session for the room in the given voice channel. Idempotent:
// a second join while a session is active reports it without side effects.
func (m *Manager) Join(ctx context.Context, roomID, voiceChannelID, textChannelID string) (string, error) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	if m.getSession(roomID) != nil {
		return msgAlreadyActive, nil
	}

	current, err := m.deps.store.GetSettings(ctx)
	if err != nil {
		slog.Warn("failed to load settings, using defaults", "room_id", roomID, "error", err)
		current = m.defaultSettings()
	}
	if !current.ChannelAllowed(voiceChannelID) {
		return msgChannelNotAllowed, nil
	}

	vc, err := m.deps.discord.JoinVoiceChannel(roomID, voiceChannelID)
	if err != nil {
		return "", fmt.Errorf("failed to join voice channel: %w", err)
	}

	s := &Session{
		id:             fmt.Sprintf("%s-%d", roomID, time.Now().UnixNano()),
		roomID:         roomID,
		voiceChannelID: voiceChannelID,
		textChannelID:  textChannelID,
		mode:           current.VoiceMode,
		deps:           m.deps,
		settings:       current,
		vc:             vc,
	}
	s.onEnd = func(reason string) { m.endSession(roomID, s, reason) }

	if s.isRealtime() {
		client, err := m.connectRealtime(ctx, current)
		if err != nil {
			if derr := vc.Disconnect(); derr != nil {
				slog.Warn("failed to disconnect voice after connect failure", "room_id", roomID, "error", derr)
			}
			return "", err
		}
		s.client = client
	}

	if err := s.start(ctx); err != nil {
		if s.client != nil {
			_ = s.client.Close()
		}
		_ = vc.Disconnect()
		return "", err
	}

	m.mu.Lock()
	m.sessions[roomID] = s
	m.mu.Unlock()
	return msgJoined, nil
}

func (m *Manager) connectRealtime(ctx context.Context, current settings.Settings) (realtime.Client, error) {
	var provider, apiKey string
	switch current.VoiceMode {
	case config.VoiceModeOpenAIRealtime:
		provider, apiKey = "openai", m.deps.cfg.OpenAIAPIKey
	case config.VoiceModeGeminiRealtime:
		provider, apiKey = "gemini", m.deps.cfg.GeminiAPIKey
	case config.VoiceModeXAIRealtime:
		provider, apiKey = "xai", m.deps.cfg.XAIAPIKey
	default:
		return nil, fmt.Errorf("voice mode %q is not a realtime mode", current.VoiceMode)
	}
	client, err := m.newRealtime(provider, realtime.ClientOptions{
		APIKey:       apiKey,
		Instructions: buildInstructions(current.BotDisplayName, nil),
	})
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect realtime provider: %w", err)
	}
	return client, nil
}

// Leave ends the room's session. Idempotent: leaving a room with no session
// reports inactive without error.
func (m *Manager) Leave(roomID, reason string) (wasActive bool) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()
	s := m.getSession(roomID)
	if s == nil {
		return false
	}
	m.removeAndShutdown(roomID, s, reason)
	return true
}

// endSession is the session-initiated teardown path (timers, socket close,
// empty room). It takes the same per-room lock as Join and Leave.
func (m *Manager) endSession(roomID string, s *Session, reason string) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()
	if m.getSession(roomID) != s {
		return
	}
	m.removeAndShutdown(roomID, s, reason)
}

func (m *Manager) removeAndShutdown(roomID string, s *Session, reason string) {
	m.mu.Lock()
	delete(m.sessions, roomID)
	m.mu.Unlock()
	s.shutdown(reason)
}

// ReconcileSettings re-reads settings and applies them to every active
// session. A session whose voice channel the new settings no longer permit
// is ended with a reason naming which rule rejected it.
func (m *Manager) ReconcileSettings(ctx context.Context) error {
	next, err := m.deps.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	m.reconcile(next)
	return nil
}

func (m *Manager) reconcile(next settings.Settings) {
	m.mu.Lock()
	active := make(map[string]*Session, len(m.sessions))
	for roomID, s := range m.sessions {
		active[roomID] = s
	}
	m.mu.Unlock()

	for roomID, s := range active {
		if reason := channelRejection(next, s.voiceChannelID); reason != "" {
			slog.Info("session ended by settings reconciliation", "room_id", roomID, "reason", reason)
			m.endSession(roomID, s, reason)
			continue
		}
		s.applySettings(next)
	}
}

// channelRejection names the rule that now forbids the channel, or "" when
// the channel is still permitted.
func channelRejection(s settings.Settings, channelID string) string {
	for _, id := range s.BlockedChannelIDs {
		if id == channelID {
			return StopReasonChannelBlocked
		}
	}
	if len(s.AllowedChannelIDs) == 0 {
		return ""
	}
	for _, id := range s.AllowedChannelIDs {
		if id == channelID {
			return ""
		}
	}
	return StopReasonChannelNotAllowed
}

// IngestFrame routes one screen-share frame to the room's session. Returns
// "accepted" or the rejection reason.
func (m *Manager) IngestFrame(roomID, streamerID, mimeType string, data []byte) string {
	s := m.getSession(roomID)
	if s == nil {
		return reasonNotActive
	}
	return s.ingestFrame(streamerID, mimeType, data)
}

// HandleVoiceState feeds membership changes to the affected session.
func (m *Manager) HandleVoiceState(ev discord.VoiceStateEvent) {
	if ev.UserIsBot {
		return
	}
	if s := m.getSession(ev.GuildID); s != nil {
		s.handleVoiceState(ev)
	}
}

// HandleSlashCommand dispatches the voice and watch commands.
func (m *Manager) HandleSlashCommand(ev discord.SlashCommandEvent) {
	respond := func(content string) {
		if err := ev.RespondEphemeral(content); err != nil {
			slog.Warn("failed to respond to slash command", "command", ev.CommandName, "error", err)
		}
	}
	switch ev.CommandName {
	case CommandVoiceJoin:
		channelID, err := m.deps.discord.GetUserVoiceChannelID(ev.GuildID, ev.UserID)
		if err != nil {
			slog.Warn("failed to resolve user voice channel", "guild_id", ev.GuildID, "user_id", ev.UserID, "error", err)
			respond(msgInternalError)
			return
		}
		if channelID == "" {
			respond(msgNotInVoice)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		msg, err := m.Join(ctx, ev.GuildID, channelID, ev.ChannelID)
		if err != nil {
			slog.Error("failed to start session", "guild_id", ev.GuildID, "error", err)
			respond(msgInternalError)
			return
		}
		respond(msg)
	case CommandVoiceLeave:
		if m.Leave(ev.GuildID, StopReasonManualLeave) {
			respond(msgLeft)
		} else {
			respond(msgNoActiveSession)
		}
	case CommandWatch:
		s := m.getSession(ev.GuildID)
		if s == nil {
			respond(msgNoActiveSession)
			return
		}
		respond(s.startWatch(ev.TargetUserID, ev.UserID))
	case CommandWatchStop:
		s := m.getSession(ev.GuildID)
		if s == nil {
			respond(msgNoActiveSession)
			return
		}
		respond(s.stopWatch(ev.UserID))
	}
}

// RuntimeState snapshots every active session.
func (m *Manager) RuntimeState() []Snapshot {
	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.Unlock()
	out := make([]Snapshot, 0, len(active))
	for _, s := range active {
		out = append(out, s.snapshot())
	}
	return out
}

// Shutdown ends every active session, used on process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	rooms := make([]string, 0, len(m.sessions))
	for roomID := range m.sessions {
		rooms = append(rooms, roomID)
	}
	m.mu.Unlock()
	for _, roomID := range rooms {
		m.Leave(roomID, StopReasonShutdown)
	}
}

func (m *Manager) defaultSettings() settings.Settings {
	return settings.Settings{
		VoiceMode:             m.deps.cfg.DefaultVoiceMode,
		BotDisplayName:        m.deps.cfg.BotDisplayName,
		WakeWordStrictness:    m.deps.cfg.WakeWordStrictness,
		ThoughtEagerness:      m.deps.cfg.ThoughtEagerness,
		StreamWatchEnabled:    true,
		VisionFallbackModel:   m.deps.cfg.VisionFallbackModel,
		CommentaryIntervalSec: m.deps.cfg.CommentaryIntervalSec,
	}
}
