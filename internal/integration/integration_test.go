package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bitquiz-service/internal/app"
	"bitquiz-service/internal/catalog"
	"bitquiz-service/internal/content"
	"bitquiz-service/internal/domain"
	"bitquiz-service/internal/infra/memory"
	pg "bitquiz-service/internal/infra/postgres"
	pgmigrations "bitquiz-service/internal/infra/postgres/migrations"
	infraredis "bitquiz-service/internal/infra/redis"
	"bitquiz-service/internal/logging"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestQuizFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	// Question source behind a local HTTP server.
	correct := 0
	set := domain.QuestionSet{
		{ID: 1, Text: "q1", Answers: []string{"right", "wrong"}, CorrectAnswerIndex: &correct},
		{ID: 2, Text: "q2", Answers: []string{"right", "wrong"}, CorrectAnswerIndex: &correct},
	}
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer source.Close()

	cat := catalog.New(
		[]domain.School{{ID: "ti", Name: "Tech. Informatyk"}},
		[]domain.QuizDefinition{{ID: "inf02", Title: "INF.02", SchoolID: "ti", SourceURL: source.URL}},
	)

	log := logging.Nop()
	cache := infraredis.NewContentCache(redisClient)
	syncer := content.NewSynchronizer(source.Client(), cache, nil, cat.All(), log)

	profiles := pg.NewProfileRepository(pool)
	history := pg.NewHistoryRecorder(pool)
	sessions := app.NewSessionService(cat, syncer, memory.NewSessionStore(), history, profiles, log)

	// Profile round trip through Postgres.
	if err := profiles.Create(ctx, domain.Profile{ID: "u1", Username: "Alice", Email: "alice@example.com", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	p, err := profiles.Get(ctx, "u1")
	if err != nil || p.Username != "Alice" || p.IsPro {
		t.Fatalf("profile round trip failed: %+v err=%v", p, err)
	}
	if err := profiles.GrantPro(ctx, "u1"); err != nil {
		t.Fatalf("grant pro: %v", err)
	}
	if p, _ = profiles.Get(ctx, "u1"); !p.IsPro {
		t.Fatalf("expected the pro flag after upgrade")
	}

	// Play one exam session through to the history table.
	view, err := sessions.Start(ctx, "u1", app.StartParams{QuizID: "inf02", Mode: domain.ModeExam, Limit: 2, TimeMinutes: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 2; i++ {
		v, err := sessions.Get(ctx, "u1", view.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if _, _, err := sessions.Answer(ctx, "u1", view.ID, *v.Question.CorrectAnswerIndex); err != nil {
			t.Fatalf("answer: %v", err)
		}
		if _, err := sessions.Next(ctx, "u1", view.ID); err != nil {
			t.Fatalf("next: %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		entries, err := history.List(ctx, "u1", "inf02", 10)
		if err != nil {
			t.Fatalf("list history: %v", err)
		}
		if len(entries) == 1 {
			res := entries[0]
			if res.Score != 2 || res.Total != 2 || res.Percentage != 100 {
				t.Fatalf("unexpected persisted result %+v", res)
			}
			if res.Details == nil || len(res.Details.Questions) != 2 {
				t.Fatalf("details lost through JSONB: %+v", res.Details)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("result never reached postgres")
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Duel over the Redis room store.
	rooms := infraredis.NewRoomStore(redisClient, time.Hour)
	duels := app.NewDuelCoordinator(rooms, syncer, cat, 2, log)

	room, err := duels.CreateRoom(ctx, "u1", "Alice", "inf02")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	joined, err := duels.JoinRoom(ctx, room.Code, "u2", "Bob")
	if err != nil {
		t.Fatalf("join room: %v", err)
	}

	events, cancel, err := rooms.Subscribe(ctx, room.Code)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-events // initial snapshot

	host := app.NewDuelView(joined, true)
	for i := 0; i < 2; i++ {
		q, ok := host.Question()
		if !ok {
			t.Fatalf("host out of questions at %d", i)
		}
		if _, err := duels.Answer(ctx, host, *q.CorrectAnswerIndex); err != nil {
			t.Fatalf("host answer %d: %v", i, err)
		}
	}

	eventDeadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Room.HostScore == 2 && ev.Room.HostFinished {
				verdict := app.Verdict(ev.Room, true)
				if verdict.Final {
					t.Fatalf("verdict must wait for the guest, got %+v", verdict)
				}
				return
			}
		case <-eventDeadline:
			t.Fatalf("never observed both host answers through redis pub/sub")
		}
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
