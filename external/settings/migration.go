package settings

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS voice_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		voice_mode TEXT,
		bot_display_name TEXT,
		wake_word_strictness TEXT,
		thought_eagerness DOUBLE PRECISION,
		allowed_channel_ids TEXT[],
		blocked_channel_ids TEXT[],
		stream_watch_enabled BOOLEAN,
		vision_fallback_model TEXT,
		commentary_interval_sec INTEGER,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS action_log (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		kind TEXT NOT NULL,
		room_id TEXT NOT NULL,
		session_id TEXT,
		detail TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_action_log_room ON action_log (room_id, created_at)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
