package discord

import "context"

type FileMessage struct {
	ChannelID string
	Content   string
	Filename  string
	FileBody  []byte
}

type SlashCommandDefinition struct {
	Name        string
	Description string
}

type SlashCommandEvent struct {
	GuildID          string
	ChannelID        string
	CommandName      string
	UserID           string
	TargetUserID     string
	RespondEphemeral func(content string) error
}

type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

type VoiceParticipant struct {
	UserID      string
	DisplayName string
	IsBot       bool
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	JoinVoiceChannel(guildID, channelID string) (VoiceConnection, error)
	SendChannelMessage(channelID, content string) error
	SendChannelMessageWithFile(msg FileMessage) error
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterSlashCommandHandler(handler func(SlashCommandEvent))
	UpsertGuildSlashCommands(guildID string, defs []SlashCommandDefinition) error
	GetUserVoiceChannelID(guildID, userID string) (string, error)
	ListVoiceChannelParticipants(guildID, channelID string) ([]VoiceParticipant, error)
	GetBotUserID() (string, error)
	Run() error
}

// VoiceConnection is one room's two-way voice transport.
type VoiceConnection interface {
	Disconnect() error
	// ReceiveAudio delivers inbound opus packets per speaking user until
	// the connection is closed.
	ReceiveAudio(callback func(userID string, opusPacket []byte))
	// SendOpus writes one outbound opus packet. Blocks when the transport
	// applies backpressure.
	SendOpus(packet []byte) error
	// Speaking toggles the speaking indicator around playback.
	Speaking(on bool) error
}
