package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tillstock-backend/pkg/config"
	"github.com/angelmondragon/tillstock-backend/pkg/db"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (empty uses the embedded set; create/validate default to "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	// offline commands never touch config or the database
	offlineDir := opts.dir
	if offlineDir == "" {
		offlineDir = migrate.DefaultDir
	}
	switch opts.cmd {
	case "create":
		exitOn(runCreate(offlineDir, opts.name))
		return
	case "validate":
		exitOn(migrate.ValidateDir(offlineDir))
		fmt.Println("migrations valid:", offlineDir)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to unwrap sql database", err)
		os.Exit(1)
	}

	fsys, err := migrate.Source(opts.dir)
	if err != nil {
		logg.Error(ctx, "failed to open migrations", err)
		os.Exit(1)
	}

	if err := runOnline(ctx, logg, sqlDB, fsys, opts); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration command complete")
}

func runCreate(dir, name string) error {
	if name == "" {
		return fmt.Errorf("missing -name for create")
	}
	path, err := migrate.CreateSQLMigration(dir, name)
	if err != nil {
		return err
	}
	fmt.Println("created migration:", path)
	return nil
}

func runOnline(ctx context.Context, logg *logger.Logger, sqlDB *sql.DB, fsys fs.FS, opts options) error {
	switch opts.cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, logg, sqlDB, fsys, opts.cmd)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, logg, sqlDB, fsys, opts.version)
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
