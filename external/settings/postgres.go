package settings

import (
	"context"
	"time"

	"github.com/glintworks/murmur/internal/settings"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool     *pgxpool.Pool
	defaults settings.Settings
}

// NewPostgresStore returns a settings store backed by the voice_settings
// table. Defaults fill any field the table has no row for.
func NewPostgresStore(pool *pgxpool.Pool, defaults settings.Settings) settings.Store {
	return &PostgresStore{pool: pool, defaults: defaults}
}

func (s *PostgresStore) GetSettings(ctx context.Context) (settings.Settings, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT voice_mode, bot_display_name, wake_word_strictness, thought_eagerness,
		        allowed_channel_ids, blocked_channel_ids,
		        stream_watch_enabled, vision_fallback_model, commentary_interval_sec, updated_at
		 FROM voice_settings WHERE id = 1`)
	out := s.defaults
	var (
		voiceMode, displayName, strictness, visionModel *string
		eagerness                                       *float64
		allowed, blocked                                []string
		streamWatch                                     *bool
		commentaryInterval                              *int
		updatedAt                                       *time.Time
	)
	err := row.Scan(&voiceMode, &displayName, &strictness, &eagerness,
		&allowed, &blocked, &streamWatch, &visionModel, &commentaryInterval, &updatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return out, nil
		}
		return settings.Settings{}, err
	}
	if voiceMode != nil && *voiceMode != "" {
		out.VoiceMode = *voiceMode
	}
	if displayName != nil && *displayName != "" {
		out.BotDisplayName = *displayName
	}
	if strictness != nil && *strictness != "" {
		out.WakeWordStrictness = *strictness
	}
	if eagerness != nil {
		out.ThoughtEagerness = *eagerness
	}
	out.AllowedChannelIDs = allowed
	out.BlockedChannelIDs = blocked
	if streamWatch != nil {
		out.StreamWatchEnabled = *streamWatch
	}
	if visionModel != nil && *visionModel != "" {
		out.VisionFallbackModel = *visionModel
	}
	if commentaryInterval != nil && *commentaryInterval > 0 {
		out.CommentaryIntervalSec = *commentaryInterval
	}
	if updatedAt != nil {
		out.UpdatedAt = *updatedAt
	}
	return out, nil
}

func (s *PostgresStore) LogAction(ctx context.Context, event settings.ActionEvent) error {
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO action_log (kind, room_id, session_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.Kind, event.RoomID, event.SessionID, event.Detail, at)
	return err
}
