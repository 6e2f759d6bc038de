package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tillstock-backend/pkg/config"
	"github.com/angelmondragon/tillstock-backend/pkg/db"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot when running in dev
// with TILLSTOCK_AUTO_MIGRATE set. Every other environment migrates through
// cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	fsys, err := Source("")
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service": cfg.Service.Kind})
	logg.Info(ctx, "applying embedded migrations")
	if err := Run(ctx, logg, sqlDB, fsys, "up"); err != nil {
		return err
	}
	return nil
}
