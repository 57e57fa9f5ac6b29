package settings

import (
	"context"
	"time"

	"github.com/glintworks/murmur/internal/config"
	settingspkg "github.com/glintworks/murmur/internal/settings"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
)

const migrationTimeout = 30 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*pgxpool.Pool, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
		defer cancel()
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := RunMigration(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
	do.Provide(injector, func(i do.Injector) (settingspkg.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		pool := do.MustInvoke[*pgxpool.Pool](i)
		defaults := settingspkg.Settings{
			VoiceMode:             cfg.DefaultVoiceMode,
			BotDisplayName:        cfg.BotDisplayName,
			WakeWordStrictness:    cfg.WakeWordStrictness,
			ThoughtEagerness:      cfg.ThoughtEagerness,
			StreamWatchEnabled:    true,
			VisionFallbackModel:   cfg.VisionFallbackModel,
			CommentaryIntervalSec: cfg.CommentaryIntervalSec,
		}
		return NewPostgresStore(pool, defaults), nil
	})
}
