package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitquiz-service/internal/app"
	"bitquiz-service/internal/catalog"
	"bitquiz-service/internal/domain"
	"bitquiz-service/internal/infra/memory"
	"bitquiz-service/internal/logging"
)

// stubResolver records the entitlement flag it was called with and serves a
// fixed set or error.
type stubResolver struct {
	set      domain.QuestionSet
	err      error
	entitled []bool
}

func (r *stubResolver) Resolve(_ context.Context, _ string, offlineEntitled bool) (domain.QuestionSet, error) {
	r.entitled = append(r.entitled, offlineEntitled)
	if r.err != nil {
		return nil, r.err
	}
	return r.set, nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New(
		[]domain.School{{ID: "ti", Name: "Tech. Informatyk"}},
		[]domain.QuizDefinition{{ID: "inf02", Title: "INF.02", SchoolID: "ti", SourceURL: "http://example/inf02.json"}},
	)
}

func newTestSessionService(resolver app.ContentResolver, history app.HistoryRecorder, profiles app.ProfileRepository) *app.SessionService {
	return app.NewSessionService(testCatalog(), resolver, memory.NewSessionStore(), history, profiles, logging.Nop())
}

func TestStartUnknownQuiz(t *testing.T) {
	svc := newTestSessionService(&stubResolver{set: makeQuestionSet(5)}, memory.NewHistoryRecorder(), memory.NewProfileRepository())

	_, err := svc.Start(context.Background(), "u1", app.StartParams{QuizID: "nope", Mode: domain.ModeTraining})
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestStartPassesEntitlementToResolver(t *testing.T) {
	resolver := &stubResolver{set: makeQuestionSet(5)}
	profiles := memory.NewProfileRepository()
	svc := newTestSessionService(resolver, memory.NewHistoryRecorder(), profiles)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "free-user", app.StartParams{QuizID: "inf02", Mode: domain.ModeTraining}); err != nil {
		t.Fatalf("start: %v", err)
	}

	_ = profiles.Create(ctx, domain.Profile{ID: "pro-user", IsPro: true})
	if _, err := svc.Start(ctx, "pro-user", app.StartParams{QuizID: "inf02", Mode: domain.ModeTraining}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if len(resolver.entitled) != 2 || resolver.entitled[0] || !resolver.entitled[1] {
		t.Fatalf("expected entitlement [false true], got %v", resolver.entitled)
	}
}

func TestStartRejectsUnknownMode(t *testing.T) {
	svc := newTestSessionService(&stubResolver{set: makeQuestionSet(5)}, memory.NewHistoryRecorder(), memory.NewProfileRepository())

	_, err := svc.Start(context.Background(), "u1", app.StartParams{QuizID: "inf02", Mode: "exxam"})
	if !errors.Is(err, domain.ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestStartNetworkErrorSurfaces(t *testing.T) {
	resolver := &stubResolver{err: domain.ErrNetworkUnavailable}
	svc := newTestSessionService(resolver, memory.NewHistoryRecorder(), memory.NewProfileRepository())

	_, err := svc.Start(context.Background(), "u1", app.StartParams{QuizID: "inf02", Mode: domain.ModeExam})
	if !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Fatalf("expected ErrNetworkUnavailable, got %v", err)
	}
}

func TestSessionOwnership(t *testing.T) {
	svc := newTestSessionService(&stubResolver{set: makeQuestionSet(5)}, memory.NewHistoryRecorder(), memory.NewProfileRepository())
	ctx := context.Background()

	view, err := svc.Start(ctx, "u1", app.StartParams{QuizID: "inf02", Mode: domain.ModeTraining})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.Get(ctx, "u2", view.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected another user's lookup to miss, got %v", err)
	}
	if _, err := svc.Get(ctx, "u1", view.ID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := svc.Get(ctx, "u1", "unknown"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected unknown session to miss, got %v", err)
	}
}

func TestFinishedSessionIsRecorded(t *testing.T) {
	history := memory.NewHistoryRecorder()
	svc := newTestSessionService(&stubResolver{set: makeQuestionSet(3)}, history, memory.NewProfileRepository())
	ctx := context.Background()

	view, err := svc.Start(ctx, "u1", app.StartParams{QuizID: "inf02", Mode: domain.ModeExam, Limit: 3, TimeMinutes: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		v, err := svc.Get(ctx, "u1", view.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if _, _, err := svc.Answer(ctx, "u1", view.ID, *v.Question.CorrectAnswerIndex); err != nil {
			t.Fatalf("answer: %v", err)
		}
		if _, err := svc.Next(ctx, "u1", view.ID); err != nil {
			t.Fatalf("next: %v", err)
		}
	}

	// Recording is asynchronous; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := history.List(ctx, "u1", "inf02", 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) == 1 {
			if entries[0].Score != 3 || entries[0].Percentage != 100 {
				t.Fatalf("expected a perfect result, got %+v", entries[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("result never reached the history recorder")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := svc.Finish(ctx, "u1", view.ID); err != nil {
		t.Fatalf("finish after natural end should be a no-op, got %v", err)
	}
}

func TestFinishedSessionsAreEvicted(t *testing.T) {
	svc := newTestSessionService(&stubResolver{set: makeQuestionSet(2)}, memory.NewHistoryRecorder(), memory.NewProfileRepository())
	svc.FinishedRetention = 5 * time.Millisecond
	ctx := context.Background()

	ids := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		view, err := svc.Start(ctx, "u1", app.StartParams{QuizID: "inf02", Mode: domain.ModeTraining})
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		for q := 0; q < 2; q++ {
			if _, _, err := svc.Answer(ctx, "u1", view.ID, 0); err != nil {
				t.Fatalf("answer: %v", err)
			}
			if _, err := svc.Next(ctx, "u1", view.ID); err != nil {
				t.Fatalf("next: %v", err)
			}
		}
		ids = append(ids, view.ID)
	}

	// One session stays active; it must outlive the eviction of the rest.
	active, err := svc.Start(ctx, "u1", app.StartParams{QuizID: "inf02", Mode: domain.ModeTraining})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		remaining := 0
		for _, id := range ids {
			if _, err := svc.Get(ctx, "u1", id); err == nil {
				remaining++
			}
		}
		if remaining == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d finished sessions still held past the retention window", remaining)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := svc.Get(ctx, "u1", active.ID); err != nil {
		t.Fatalf("active session must not be evicted: %v", err)
	}
}
