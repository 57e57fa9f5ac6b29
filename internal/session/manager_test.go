package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glintworks/murmur/internal/audio"
	"github.com/glintworks/murmur/internal/config"
	"github.com/glintworks/murmur/internal/discord"
	"github.com/glintworks/murmur/internal/llm"
	"github.com/glintworks/murmur/internal/realtime"
	"github.com/glintworks/murmur/internal/settings"
	"github.com/glintworks/murmur/internal/transcriber"
)

type fakeStore struct {
	mu       sync.Mutex
	settings settings.Settings
	actions  []settings.ActionEvent
}

func (f *fakeStore) GetSettings(ctx context.Context) (settings.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, nil
}

func (f *fakeStore) LogAction(ctx context.Context, event settings.ActionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, event)
	return nil
}

type fakeVoiceConn struct {
	mu           sync.Mutex
	disconnected bool
	callback     func(userID string, opusPacket []byte)
}

func (f *fakeVoiceConn) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

func (f *fakeVoiceConn) ReceiveAudio(callback func(userID string, opusPacket []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callback = callback
}

func (f *fakeVoiceConn) SendOpus(packet []byte) error { return nil }
func (f *fakeVoiceConn) Speaking(on bool) error       { return nil }

func (f *fakeVoiceConn) isDisconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

type fakeDiscordClient struct {
	mu         sync.Mutex
	voiceJoins int
	vc         *fakeVoiceConn
	messages   []string
}

func (f *fakeDiscordClient) Connect(ctx context.Context) error { return nil }
func (f *fakeDiscordClient) Close() error                      { return nil }

func (f *fakeDiscordClient) JoinVoiceChannel(guildID, channelID string) (discord.VoiceConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voiceJoins++
	f.vc = &fakeVoiceConn{}
	return f.vc, nil
}

func (f *fakeDiscordClient) SendChannelMessage(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, content)
	return nil
}

func (f *fakeDiscordClient) SendChannelMessageWithFile(msg discord.FileMessage) error { return nil }
func (f *fakeDiscordClient) RegisterVoiceStateUpdateHandler(handler func(discord.VoiceStateEvent)) {
}
func (f *fakeDiscordClient) RegisterSlashCommandHandler(handler func(discord.SlashCommandEvent)) {}
func (f *fakeDiscordClient) UpsertGuildSlashCommands(guildID string, defs []discord.SlashCommandDefinition) error {
	return nil
}

func (f *fakeDiscordClient) GetUserVoiceChannelID(guildID, userID string) (string, error) {
	return "vc-1", nil
}

func (f *fakeDiscordClient) ListVoiceChannelParticipants(guildID, channelID string) ([]discord.VoiceParticipant, error) {
	return []discord.VoiceParticipant{
		{UserID: "user-1", DisplayName: "Alice"},
		{UserID: "user-2", DisplayName: "Bob"},
	}, nil
}

func (f *fakeDiscordClient) GetBotUserID() (string, error) { return "bot-1", nil }
func (f *fakeDiscordClient) Run() error                    { return nil }

type fakeRealtimeClient struct {
	mu        sync.Mutex
	events    chan realtime.Event
	closed    bool
	commits   int
	commitErr error
	appended  int
	instructs []string
}

func newFakeRealtimeClient() *fakeRealtimeClient {
	return &fakeRealtimeClient{events: make(chan realtime.Event, 16)}
}

func (f *fakeRealtimeClient) Connect(ctx context.Context) error { return nil }

func (f *fakeRealtimeClient) SendAudioAppend(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended += len(pcm)
	return nil
}

func (f *fakeRealtimeClient) SendVideoFrameAppend(mime string, data []byte) error {
	return realtime.ErrVideoUnsupported
}

func (f *fakeRealtimeClient) SupportsVideo() bool { return false }

func (f *fakeRealtimeClient) RequestTurnCommit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return f.commitErr
}

func (f *fakeRealtimeClient) RequestTextUtterance(text string) error   { return nil }
func (f *fakeRealtimeClient) RequestVideoCommentary(hint string) error { return nil }

func (f *fakeRealtimeClient) UpdateInstructions(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instructs = append(f.instructs, text)
	return nil
}

func (f *fakeRealtimeClient) Events() <-chan realtime.Event { return f.events }

func (f *fakeRealtimeClient) State() realtime.ClientState {
	return realtime.ClientState{Provider: "fake", Connected: true}
}

func (f *fakeRealtimeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

type fakeDecoder struct{}

func (fakeDecoder) Decode(opusPacket []byte) ([]byte, error) {
	return make([]byte, audio.ProviderFrameBytes), nil
}
func (fakeDecoder) Close() {}

type fakeEncoder struct{}

func (fakeEncoder) Encode(pcm []byte) ([]byte, error) { return []byte{0}, nil }
func (fakeEncoder) Close()                            {}

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, input llm.GenerateInput) (llm.GenerateResult, error) {
	return llm.GenerateResult{Text: "ok"}, nil
}

type fakeTranscriber struct{}

func (fakeTranscriber) StartStreaming(ctx context.Context, sessionID, language string, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                     "development",
		BotDisplayName:          "Sparky",
		DefaultVoiceMode:        config.VoiceModeOpenAIRealtime,
		OpenAIAPIKey:            "sk-test",
		WakeWordStrictness:      "exact",
		MaxSessionDurationMin:   60,
		InactivityTimeoutMin:    10,
		PlaybackQueueCapBytes:   96000,
		StreamWatchMaxFrameKB:   512,
		StreamWatchFramesPerMin: 6,
		CommentaryIntervalSec:   90,
	}
}

func testSettings() settings.Settings {
	return settings.Settings{
		VoiceMode:             config.VoiceModeOpenAIRealtime,
		BotDisplayName:        "Sparky",
		WakeWordStrictness:    "exact",
		StreamWatchEnabled:    true,
		CommentaryIntervalSec: 90,
	}
}

type managerFixture struct {
	manager *Manager
	store   *fakeStore
	discord *fakeDiscordClient
	client  *fakeRealtimeClient
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		store:   &fakeStore{settings: testSettings()},
		discord: &fakeDiscordClient{},
		client:  newFakeRealtimeClient(),
	}
	f.manager = NewManager(
		testConfig(),
		f.store,
		f.discord,
		fakeGenerator{},
		fakeTranscriber{},
		func() audio.Mixer { return nil },
		func() (audio.Decoder, error) { return fakeDecoder{}, nil },
		func() (audio.Encoder, error) { return fakeEncoder{}, nil },
		func(provider string, opts realtime.ClientOptions) (realtime.Client, error) {
			return f.client, nil
		},
	)
	t.Cleanup(f.manager.Shutdown)
	return f
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestJoin_SecondJoinIsIdempotent(t *testing.T) {
	f := newManagerFixture(t)

	msg, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if msg != msgJoined {
		t.Fatalf("unexpected join message: %q", msg)
	}

	msg, err = f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1")
	if err != nil {
		t.Fatalf("second join failed: %v", err)
	}
	if msg != msgAlreadyActive {
		t.Fatalf("unexpected second join message: %q", msg)
	}
	if f.discord.voiceJoins != 1 {
		t.Fatalf("voice joins = %d, want 1", f.discord.voiceJoins)
	}
}

func TestJoin_ConcurrentJoinsYieldOneSession(t *testing.T) {
	f := newManagerFixture(t)

	const racers = 8
	results := make(chan string, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1")
			if err != nil {
				t.Errorf("join failed: %v", err)
				return
			}
			results <- msg
		}()
	}
	wg.Wait()
	close(results)

	joined, already := 0, 0
	for msg := range results {
		switch msg {
		case msgJoined:
			joined++
		case msgAlreadyActive:
			already++
		}
	}
	if joined != 1 || already != racers-1 {
		t.Fatalf("joined=%d already=%d, want exactly one winner", joined, already)
	}
	if f.discord.voiceJoins != 1 {
		t.Fatalf("voice joins = %d, want 1", f.discord.voiceJoins)
	}
}

func TestJoin_BlockedChannelRefused(t *testing.T) {
	f := newManagerFixture(t)
	f.store.settings.BlockedChannelIDs = []string{"vc-1"}

	msg, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if msg != msgChannelNotAllowed {
		t.Fatalf("unexpected message: %q", msg)
	}
	if f.discord.voiceJoins != 0 {
		t.Fatal("blocked channel must not be joined")
	}
}

func TestLeave_Idempotent(t *testing.T) {
	f := newManagerFixture(t)

	if f.manager.Leave("guild-1", StopReasonManualLeave) {
		t.Fatal("leave with no session must report inactive")
	}

	if _, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if !f.manager.Leave("guild-1", StopReasonManualLeave) {
		t.Fatal("leave with a session must report active")
	}
	if !f.discord.vc.isDisconnected() {
		t.Fatal("voice connection must be disconnected on leave")
	}
	if f.manager.Leave("guild-1", StopReasonManualLeave) {
		t.Fatal("second leave must report inactive")
	}
}

func TestReconcile_BlockedChannelEndsSession(t *testing.T) {
	f := newManagerFixture(t)
	if _, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	next := testSettings()
	next.BlockedChannelIDs = []string{"vc-1"}
	f.manager.reconcile(next)

	if f.manager.getSession("guild-1") != nil {
		t.Fatal("session in a newly blocked channel must end")
	}
	waitFor(t, f.discord.vc.isDisconnected, "voice connection not released")
}

func TestReconcile_AllowlistMissEndsSession(t *testing.T) {
	f := newManagerFixture(t)
	if _, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	next := testSettings()
	next.AllowedChannelIDs = []string{"vc-other"}
	f.manager.reconcile(next)

	if f.manager.getSession("guild-1") != nil {
		t.Fatal("session outside the new allow list must end")
	}
}

func TestReconcile_AllowedSessionSurvives(t *testing.T) {
	f := newManagerFixture(t)
	if _, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	next := testSettings()
	next.AllowedChannelIDs = []string{"vc-1"}
	next.ThoughtEagerness = 0.8
	f.manager.reconcile(next)

	s := f.manager.getSession("guild-1")
	if s == nil {
		t.Fatal("permitted session must survive reconciliation")
	}
	waitFor(t, func() bool { return s.snapshot().SessionID != "" && currentEagerness(s) == 0.8 },
		"settings snapshot not applied")
}

func TestReconcile_TouchesActivityClock(t *testing.T) {
	f := newManagerFixture(t)
	if _, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	s := f.manager.getSession("guild-1")
	before := currentLastActivity(s)
	time.Sleep(50 * time.Millisecond)

	next := testSettings()
	next.AllowedChannelIDs = []string{"vc-1"}
	f.manager.reconcile(next)

	waitFor(t, func() bool { return currentLastActivity(s).After(before) },
		"surviving session must have its activity clock touched by reconciliation")
}

func currentLastActivity(s *Session) time.Time {
	result := make(chan time.Time, 1)
	s.post(func() { result <- s.turns.lastActivityAt })
	select {
	case v := <-result:
		return v
	case <-time.After(time.Second):
		return time.Time{}
	}
}

func currentEagerness(s *Session) float64 {
	result := make(chan float64, 1)
	s.post(func() { result <- s.settings.ThoughtEagerness })
	select {
	case v := <-result:
		return v
	case <-time.After(time.Second):
		return -1
	}
}

func TestChannelRejection_ReasonNames(t *testing.T) {
	blocked := settings.Settings{BlockedChannelIDs: []string{"vc-1"}}
	if got := channelRejection(blocked, "vc-1"); got != StopReasonChannelBlocked {
		t.Fatalf("reason = %q, want %q", got, StopReasonChannelBlocked)
	}
	allowlisted := settings.Settings{AllowedChannelIDs: []string{"vc-other"}}
	if got := channelRejection(allowlisted, "vc-1"); got != StopReasonChannelNotAllowed {
		t.Fatalf("reason = %q, want %q", got, StopReasonChannelNotAllowed)
	}
	if got := channelRejection(settings.Settings{}, "vc-1"); got != "" {
		t.Fatalf("reason = %q, want permitted", got)
	}
}

func TestIngestFrame_NoSession(t *testing.T) {
	f := newManagerFixture(t)
	if got := f.manager.IngestFrame("guild-1", "user-1", "image/jpeg", []byte("x")); got != reasonNotActive {
		t.Fatalf("reason = %q, want %q", got, reasonNotActive)
	}
}

func TestIngestFrame_RoutedThroughWatch(t *testing.T) {
	f := newManagerFixture(t)
	if _, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	s := f.manager.getSession("guild-1")

	if got := f.manager.IngestFrame("guild-1", "user-1", "image/jpeg", []byte("x")); got != reasonNotWatching {
		t.Fatalf("frame before watch: reason = %q, want %q", got, reasonNotWatching)
	}

	if msg := s.startWatch("user-1", "user-2"); msg != msgWatchStarted {
		t.Fatalf("unexpected watch response: %q", msg)
	}
	if got := f.manager.IngestFrame("guild-1", "user-1", "image/jpeg", []byte("frame")); got != ingestAccepted {
		t.Fatalf("frame from target: reason = %q, want accepted", got)
	}
	if got := f.manager.IngestFrame("guild-1", "user-9", "image/jpeg", []byte("frame")); got != reasonNotWatching {
		t.Fatalf("frame from non-target: reason = %q, want %q", got, reasonNotWatching)
	}
}

func TestHandleSlashCommand_JoinAndLeave(t *testing.T) {
	f := newManagerFixture(t)
	var responses []string
	ev := discord.SlashCommandEvent{
		GuildID:     "guild-1",
		ChannelID:   "text-1",
		CommandName: CommandVoiceJoin,
		UserID:      "user-1",
		RespondEphemeral: func(content string) error {
			responses = append(responses, content)
			return nil
		},
	}

	f.manager.HandleSlashCommand(ev)
	if len(responses) != 1 || responses[0] != msgJoined {
		t.Fatalf("unexpected join responses: %v", responses)
	}
	if f.manager.getSession("guild-1") == nil {
		t.Fatal("join command must create a session")
	}

	ev.CommandName = CommandVoiceLeave
	f.manager.HandleSlashCommand(ev)
	if responses[len(responses)-1] != msgLeft {
		t.Fatalf("unexpected leave response: %q", responses[len(responses)-1])
	}
	if f.manager.getSession("guild-1") != nil {
		t.Fatal("leave command must end the session")
	}

	f.manager.HandleSlashCommand(ev)
	if responses[len(responses)-1] != msgNoActiveSession {
		t.Fatalf("unexpected duplicate leave response: %q", responses[len(responses)-1])
	}
}

func TestHandleVoiceState_AppendsMembershipLog(t *testing.T) {
	f := newManagerFixture(t)
	if _, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	s := f.manager.getSession("guild-1")

	f.manager.HandleVoiceState(discord.VoiceStateEvent{
		GuildID: "guild-1", UserID: "user-3", BeforeChannelID: "", AfterChannelID: "vc-1",
	})
	f.manager.HandleVoiceState(discord.VoiceStateEvent{
		GuildID: "guild-1", UserID: "user-3", BeforeChannelID: "vc-1", AfterChannelID: "",
	})

	waitFor(t, func() bool { return len(s.snapshot().Membership) == 2 }, "membership log not recorded")
	log := s.snapshot().Membership
	if log[0].UserID != "user-3" || !log[0].Joined {
		t.Fatalf("first entry = %+v, want user-3 join", log[0])
	}
	if log[1].UserID != "user-3" || log[1].Joined {
		t.Fatalf("second entry = %+v, want user-3 leave", log[1])
	}
	if log[1].At.Before(log[0].At) {
		t.Fatal("membership log out of order")
	}
}

func TestHandleVoiceState_LastParticipantLeaving(t *testing.T) {
	f := newManagerFixture(t)
	if _, err := f.manager.Join(context.Background(), "guild-1", "vc-1", "text-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	s := f.manager.getSession("guild-1")
	waitFor(t, func() bool { return s.snapshot().Participants == 2 }, "participants not seeded")

	for _, userID := range []string{"user-1", "user-2"} {
		f.manager.HandleVoiceState(discord.VoiceStateEvent{
			GuildID:         "guild-1",
			UserID:          userID,
			BeforeChannelID: "vc-1",
			AfterChannelID:  "",
		})
	}

	waitFor(t, func() bool { return f.manager.getSession("guild-1") == nil },
		"session must end when the room empties")
}
