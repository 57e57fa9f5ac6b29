package settings

import (
	"context"
	"time"
)

// Settings is the operator-tunable portion of the agent's behavior. Sessions
// take an immutable snapshot at join time; later changes are applied through
// explicit reconciliation, never live mutation.
type Settings struct {
	VoiceMode          string
	BotDisplayName     string
	WakeWordStrictness string
	ThoughtEagerness   float64

	// AllowedChannelIDs empty means every channel is allowed.
	AllowedChannelIDs []string
	BlockedChannelIDs []string

	StreamWatchEnabled    bool
	VisionFallbackModel   string
	CommentaryIntervalSec int

	UpdatedAt time.Time
}

// ChannelAllowed applies the block list first, then the allow list.
func (s Settings) ChannelAllowed(channelID string) bool {
	for _, id := range s.BlockedChannelIDs {
		if id == channelID {
			return false
		}
	}
	if len(s.AllowedChannelIDs) == 0 {
		return true
	}
	for _, id := range s.AllowedChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// ActionEvent is one observability record (interruption, commentary trigger,
// session end). The sink is write-only; failures never block core logic.
type ActionEvent struct {
	Kind      string
	RoomID    string
	SessionID string
	Detail    string
	At        time.Time
}

type Store interface {
	GetSettings(ctx context.Context) (Settings, error)
	LogAction(ctx context.Context, event ActionEvent) error
}
