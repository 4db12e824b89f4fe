package cli

import (
	"context"

	"bitquiz-service/internal/config"
	"bitquiz-service/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewSyncCmd runs a one-shot content sweep: every catalog quiz is fetched,
// cached and has its media mirrored, then the process exits.
func NewSyncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch and cache every catalog question set once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), *configPath)
		},
	}
}

func runSync(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	syncer, err := buildSynchronizer(cfg, cat, redisClient, log)
	if err != nil {
		return err
	}

	syncer.SyncAll(ctx)
	return nil
}
