package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"bitquiz-service/internal/catalog"
	"bitquiz-service/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContentResolver resolves a question set for a source URL, falling back to
// the local cache when offlineEntitled is set.
type ContentResolver interface {
	Resolve(ctx context.Context, sourceURL string, offlineEntitled bool) (domain.QuestionSet, error)
}

// SessionStore abstracts how live sessions are held (in-memory today).
type SessionStore interface {
	Put(session *Session)
	Get(id string) (*Session, bool)
	Delete(id string)
}

// HistoryRecorder is the append-only per-user result history boundary.
type HistoryRecorder interface {
	Append(ctx context.Context, userID string, res domain.Result) error
	List(ctx context.Context, userID, examID string, limit int) ([]domain.Result, error)
}

// ProfileRepository exposes the user profile and the pro entitlement flag.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (domain.Profile, error)
	Create(ctx context.Context, p domain.Profile) error
	GrantPro(ctx context.Context, userID string) error
}

// StartParams describes a session start request.
type StartParams struct {
	QuizID      string             `json:"quizId"`
	Mode        domain.SessionMode `json:"mode"`
	Limit       int                `json:"limit"`
	TimeMinutes int                `json:"timeMinutes"`
}

const (
	// defaultFinishedRetention keeps a finished session fetchable briefly so
	// clients can still load the final view before it is evicted.
	defaultFinishedRetention = time.Minute
	// sessionMaxAge bounds how long an abandoned session may linger.
	sessionMaxAge = 24 * time.Hour
)

// SessionService contains the quiz session use cases.
type SessionService struct {
	catalog  *catalog.Catalog
	content  ContentResolver
	store    SessionStore
	history  HistoryRecorder
	profiles ProfileRepository
	log      *zap.SugaredLogger

	// FinishedRetention overrides how long a finished session stays
	// fetchable before eviction; zero selects the default.
	FinishedRetention time.Duration

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewSessionService(cat *catalog.Catalog, content ContentResolver, store SessionStore, history HistoryRecorder, profiles ProfileRepository, log *zap.SugaredLogger) *SessionService {
	return &SessionService{
		catalog:  cat,
		content:  content,
		store:    store,
		history:  history,
		profiles: profiles,
		log:      log,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start resolves the quiz content and creates a new session. Network failure
// falls back to cached content only for pro users; everyone else gets
// ErrNetworkUnavailable and no partial session.
func (s *SessionService) Start(ctx context.Context, userID string, params StartParams) (SessionView, error) {
	switch params.Mode {
	case domain.ModeExam, domain.ModeTraining, domain.ModeOneLife:
	default:
		return SessionView{}, domain.ErrInvalidMode
	}

	def, err := s.catalog.Get(params.QuizID)
	if err != nil {
		return SessionView{}, err
	}

	set, err := s.content.Resolve(ctx, def.SourceURL, s.isPro(ctx, userID))
	if err != nil {
		return SessionView{}, err
	}

	sess := NewSession(uuid.NewString(), userID, def.ID, set, SessionParams{
		Mode:        params.Mode,
		Limit:       params.Limit,
		TimeMinutes: params.TimeMinutes,
	}, s.lockedRand(), s.recordResult(userID))

	s.store.Put(sess)
	go s.evictWhenDone(sess)
	if params.Mode == domain.ModeExam {
		go sess.RunCountdown(context.Background())
	}
	return sess.View(), nil
}

// evictWhenDone removes the session from the store once it finishes and the
// retention window passes; the finished state lives on only as the recorded
// result. Sessions that never finish are dropped after sessionMaxAge.
func (s *SessionService) evictWhenDone(sess *Session) {
	maxAge := time.NewTimer(sessionMaxAge)
	defer maxAge.Stop()
	select {
	case <-sess.Done():
		retention := s.FinishedRetention
		if retention <= 0 {
			retention = defaultFinishedRetention
		}
		time.Sleep(retention)
	case <-maxAge.C:
	}
	s.store.Delete(sess.ID())
}

// Get returns the current view of a session owned by userID.
func (s *SessionService) Get(_ context.Context, userID, sessionID string) (SessionView, error) {
	sess, err := s.owned(userID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return sess.View(), nil
}

// Answer submits an answer for the session's current question.
func (s *SessionService) Answer(_ context.Context, userID, sessionID string, answerIndex int) (AnswerFeedback, SessionView, error) {
	sess, err := s.owned(userID, sessionID)
	if err != nil {
		return AnswerFeedback{}, SessionView{}, err
	}
	fb, err := sess.Answer(answerIndex)
	if err != nil {
		return AnswerFeedback{}, SessionView{}, err
	}
	return fb, sess.View(), nil
}

// Next advances the session; past the last question it finishes.
func (s *SessionService) Next(_ context.Context, userID, sessionID string) (SessionView, error) {
	sess, err := s.owned(userID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if err := sess.Next(); err != nil {
		return SessionView{}, err
	}
	return sess.View(), nil
}

// Prev moves an exam session back one question.
func (s *SessionService) Prev(_ context.Context, userID, sessionID string) (SessionView, error) {
	sess, err := s.owned(userID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if err := sess.Prev(); err != nil {
		return SessionView{}, err
	}
	return sess.View(), nil
}

// Finish ends the session with the answers recorded so far.
func (s *SessionService) Finish(_ context.Context, userID, sessionID string) (SessionView, error) {
	sess, err := s.owned(userID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if err := sess.Finish(); err != nil && !errors.Is(err, domain.ErrSessionFinished) {
		return SessionView{}, err
	}
	return sess.View(), nil
}

func (s *SessionService) owned(userID, sessionID string) (*Session, error) {
	sess, ok := s.store.Get(sessionID)
	if !ok || sess.UserID() != userID {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// recordResult hands a finished result to the history boundary without
// blocking the session flow. Persistence failures are logged only.
func (s *SessionService) recordResult(userID string) func(domain.Result) {
	return func(res domain.Result) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.history.Append(ctx, userID, res); err != nil {
				s.log.Warnw("result not recorded", "examId", res.ExamID, "mode", res.Mode, "error", err)
			}
		}()
	}
}

func (s *SessionService) isPro(ctx context.Context, userID string) bool {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return false
	}
	return profile.IsPro
}

// lockedRand hands out the shared rand source under a lock; rand.Rand itself
// is not goroutine-safe.
func (s *SessionService) lockedRand() *rand.Rand {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return rand.New(rand.NewSource(s.rnd.Int63()))
}
