package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitquiz-service/internal/app"
	"bitquiz-service/internal/auth"
	"bitquiz-service/internal/catalog"
	"bitquiz-service/internal/config"
	"bitquiz-service/internal/content"
	"bitquiz-service/internal/infra/memory"
	pg "bitquiz-service/internal/infra/postgres"
	infraredis "bitquiz-service/internal/infra/redis"
	"bitquiz-service/internal/logging"
	transport "bitquiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewServerCmd builds the CLI subcommand to start the server.
func NewServerCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	syncer, err := buildSynchronizer(cfg, cat, redisClient, log)
	if err != nil {
		return err
	}

	var history app.HistoryRecorder = memory.NewHistoryRecorder()
	var profiles app.ProfileRepository = memory.NewProfileRepository()
	if pool != nil {
		history = pg.NewHistoryRecorder(pool)
		profiles = pg.NewProfileRepository(pool)
	}

	var rooms app.RoomStore = memory.NewRoomStore()
	if redisClient != nil {
		rooms = infraredis.NewRoomStore(redisClient, config.Duration(cfg.Duel.RoomTTL, 24*time.Hour))
	}

	sessions := app.NewSessionService(cat, syncer, memory.NewSessionStore(), history, profiles, log)
	duels := app.NewDuelCoordinator(rooms, syncer, cat, cfg.Duel.Questions, log)
	historySvc := app.NewHistoryService(history, profiles)
	tokens := auth.New(cfg.Auth.Secret, config.Duration(cfg.Auth.TokenTTL, 24*time.Hour))

	api := transport.NewAPI(sessions, historySvc, profiles, cat, tokens, log)
	duelHandler := transport.NewDuelHandler(duels, log)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      api.Router(duelHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// The content sweep must not delay startup; it refreshes caches
	// opportunistically and only logs failures.
	syncCtx, stopSync := context.WithCancel(context.Background())
	defer stopSync()
	go syncer.SyncAll(syncCtx)

	go func() {
		log.Infow("starting bitquiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Infow("shutting down server")
	case <-ctx.Done():
		log.Infow("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.Catalog.Path)
}

func buildSynchronizer(cfg config.Config, cat *catalog.Catalog, redisClient *redis.Client, log *zap.SugaredLogger) (*content.Synchronizer, error) {
	client := &http.Client{Timeout: config.Duration(cfg.Content.HTTPTimeout, 30*time.Second)}

	mediaDir := cfg.Content.MediaDir
	if mediaDir == "" {
		mediaDir = "media"
	}
	mediaBase := cfg.Content.MediaBaseURL
	if mediaBase == "" {
		mediaBase = catalog.AssetBase
	}
	media, err := content.NewMediaStore(mediaDir, mediaBase, client)
	if err != nil {
		return nil, err
	}

	var cache content.Cache = memory.NewContentCache()
	if redisClient != nil {
		cache = infraredis.NewContentCache(redisClient)
	}
	return content.NewSynchronizer(client, cache, media, cat.All(), log), nil
}
