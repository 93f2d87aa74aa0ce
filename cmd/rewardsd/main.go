package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Sharedvaluevending/revqr-rewards/internal/catalog"
	"github.com/Sharedvaluevending/revqr-rewards/internal/rewardsapi"
	"github.com/Sharedvaluevending/revqr-rewards/internal/rewardsbackend"
	"github.com/Sharedvaluevending/revqr-rewards/internal/store/gormstore"
	"github.com/Sharedvaluevending/revqr-rewards/internal/store/pgstore"
	"github.com/Sharedvaluevending/revqr-rewards/pkg/rewards"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagListenAddr     = "listen-addr"
	flagDatabaseURL    = "database-url"
	flagCatalogPath    = "catalog-path"
	flagAllowedOrigins = "allowed-origins"
	flagTimezone       = "timezone"
	flagRandomSeed     = "random-seed"
	envPrefix          = "REWARDSD"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rewardsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := rewardsapi.Config{}
	cmd := &cobra.Command{
		Use:           "rewardsd",
		Short:         "Rewards economy HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagDatabaseURL, "", "database connection string (postgres:// or sqlite path)")
	cmd.Flags().String(flagCatalogPath, "", "path to the avatar/wheel/promotion catalog YAML")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagTimezone, "", "reference timezone for weekday and weekend perks")
	cmd.Flags().Int64(flagRandomSeed, 0, "wheel random seed, 0 seeds from the clock")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *rewardsapi.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagListenAddr, flagDatabaseURL, flagCatalogPath, flagAllowedOrigins, flagTimezone, flagRandomSeed} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.CatalogPath = strings.TrimSpace(v.GetString(flagCatalogPath))
	cfg.AllowedOrigins = rewardsapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.Timezone = strings.TrimSpace(v.GetString(flagTimezone))
	cfg.RandomSeed = v.GetInt64(flagRandomSeed)

	return cfg.Validate()
}

func runServer(ctx context.Context, cfg rewardsapi.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	loadedCatalog, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog load: %w", err)
	}

	location, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	clock := rewards.NewSystemClock()
	options := []rewards.ServiceOption{
		rewards.WithOperationLogger(rewardsbackend.NewOperationLogger(logger)),
		rewards.WithReferenceLocation(location),
	}
	if cfg.RandomSeed != 0 {
		options = append(options, rewards.WithRandomSource(rewards.NewSeededSource(cfg.RandomSeed)))
	}
	service, err := rewards.NewService(store, loadedCatalog, clock, options...)
	if err != nil {
		return fmt.Errorf("rewards service init: %w", err)
	}

	return rewardsbackend.Run(ctx, cfg, service, clock, logger)
}

// openStore migrates the schema through gorm, then hands back the runtime
// store: the raw pgx pool for postgres, the gorm store for sqlite.
func openStore(ctx context.Context, dsn string) (rewards.Store, func(), error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if err := gormstore.Migrate(db.WithContext(ctx)); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	if driver == "postgres" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		_ = sqlDB.Close()
		return pgstore.New(pool), func() { pool.Close() }, nil
	}
	return gormstore.New(db.WithContext(ctx)), func() { _ = sqlDB.Close() }, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "rewards.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
