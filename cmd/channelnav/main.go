package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/voyagen/channelnav/internal/cache"
	"github.com/voyagen/channelnav/internal/config"
	"github.com/voyagen/channelnav/internal/server"
	"github.com/voyagen/channelnav/internal/service"
	"github.com/voyagen/channelnav/internal/store"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "channelnav",
	Short:         "Channel catalog and current-channel navigation API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional config file path (YAML); else use env DATABASE_URL")

	importCmd.Flags().String("url", "", "M3U playlist URL (required)")
	importCmd.Flags().Bool("prune", false, "Remove catalog channels missing from the playlist")
	importCmd.Flags().Int64("current", 0, "Set the current channel to this number if none is set")
	_ = importCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(serveCmd, migrateCmd, importCmd)
}

// withConfig loads config and a signal-aware context before running fn.
// Errors are prefixed with the failing stage ("config: ...", "db: ...").
func withConfig(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, cfg)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and serve the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withConfig(cmd, serve)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	appStore, rds, closeAll, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	srv := server.New(appStore, cfg, rds)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withConfig(cmd, func(_ context.Context, cfg *config.Config) error {
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Println("migrations applied")
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the channel catalog from an M3U playlist",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := service.ImportOptions{}
		opts.URL, _ = cmd.Flags().GetString("url")
		opts.Prune, _ = cmd.Flags().GetBool("prune")
		opts.Current, _ = cmd.Flags().GetInt64("current")

		return withConfig(cmd, func(ctx context.Context, cfg *config.Config) error {
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			appStore, rds, closeAll, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeAll()

			opts.UserAgent = cfg.UserAgent
			opts.Timeout = cfg.Timeout
			res, err := service.Import(ctx, appStore, rds, opts)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			log.Printf("imported %d channels (%d duplicates skipped, %d removed, current set: %v)",
				res.Channels, res.Duplicates, res.Removed, res.CurrentSet)
			return nil
		})
	},
}

// openStore connects the database backend and, when REDIS_URL is set, wraps
// it with the Redis cache. closeAll releases every connection it opened.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *cache.Redis, func(), error) {
	backend, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db: %w", err)
	}
	rds, err := connectRedis(ctx, cfg)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}
	if rds == nil {
		return backend, nil, backend.Close, nil
	}
	closeAll := func() {
		_ = rds.Close()
		backend.Close()
	}
	return store.NewCachedStore(backend, rds, cfg.CacheTTL), rds, closeAll, nil
}

// connectRedis returns nil when REDIS_URL is not configured.
func connectRedis(ctx context.Context, cfg *config.Config) (*cache.Redis, error) {
	if cfg.RedisURL == "" {
		log.Println("redis disabled (REDIS_URL not set)")
		return nil, nil
	}
	rds, err := cache.New(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if err := rds.Ping(ctx); err != nil {
		rds.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Println("redis connected (caching enabled)")
	return rds, nil
}
