package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

// DefaultDir is where new migrations are written, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the migration files to run. An empty dir selects the set
// compiled into the binary.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations dir %q is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

func newProvider(db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if fsys == nil {
		return nil, fmt.Errorf("migration source is required")
	}
	// schema uses Postgres enums, jsonb and gen_random_uuid()
	return goose.NewProvider(goose.DialectPostgres, db, fsys)
}

// Run executes up, down or status against db and logs each result.
func Run(ctx context.Context, logg *logger.Logger, db *sql.DB, fsys fs.FS, command string) error {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		logResults(ctx, logg, results)
		if err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
	case "down":
		result, err := provider.Down(ctx)
		if result != nil {
			logResults(ctx, logg, []*goose.MigrationResult{result})
		}
		if err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("goose status: %w", err)
		}
		for _, st := range statuses {
			fields := map[string]any{
				"version": st.Source.Version,
				"path":    st.Source.Path,
				"state":   string(st.State),
			}
			if !st.AppliedAt.IsZero() {
				fields["applied_at"] = st.AppliedAt
			}
			logg.Info(logg.WithFields(ctx, fields), "migration status")
		}
	default:
		return fmt.Errorf("unsupported goose command %q", command)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until targetVersion
// (YYYYMMDDHHMMSS) is the latest applied migration.
func MigrateToVersion(ctx context.Context, logg *logger.Logger, db *sql.DB, fsys fs.FS, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	provider, err := newProvider(db, fsys)
	if err != nil {
		return err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = provider.UpTo(ctx, target)
	default:
		results, err = provider.DownTo(ctx, target)
	}
	logResults(ctx, logg, results)
	if err != nil {
		return fmt.Errorf("goose %d -> %d: %w", current, target, err)
	}
	return nil
}

func logResults(ctx context.Context, logg *logger.Logger, results []*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		fields := map[string]any{
			"version":     res.Source.Version,
			"path":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}
		if res.Error != nil {
			logg.Error(logg.WithFields(ctx, fields), "migration failed", res.Error)
			continue
		}
		logg.Info(logg.WithFields(ctx, fields), "migration applied")
	}
}
