package app

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"bitquiz-service/internal/domain"
)

// Session drives one interactive quiz run through its mode-specific state
// machine. All methods are safe for concurrent use; the countdown ticker and
// the transport layer both touch the same session.
type Session struct {
	id     string
	userID string
	examID string
	mode   domain.SessionMode

	mu        sync.Mutex
	status    domain.SessionStatus
	questions []domain.Question
	answers   []*int
	current   int
	remaining int
	timed     bool
	score     int
	result    *domain.Result

	done     chan struct{}
	onFinish func(domain.Result)
	now      func() time.Time
}

// SessionParams configures a new session. Limit and TimeMinutes only apply to
// exam mode; zero values select the defaults (40 questions, 60 minutes).
type SessionParams struct {
	Mode        domain.SessionMode
	Limit       int
	TimeMinutes int
}

// AnswerFeedback reports what a single answer submission did.
type AnswerFeedback struct {
	Recorded           bool `json:"recorded"`
	Revealed           bool `json:"revealed"`
	Correct            bool `json:"correct"`
	CorrectAnswerIndex *int `json:"correctAnswerIndex,omitempty"`
	Finished           bool `json:"finished"`
}

// SessionView is a transport-facing snapshot of session state.
type SessionView struct {
	ID               string               `json:"id"`
	Mode             domain.SessionMode   `json:"mode"`
	Status           domain.SessionStatus `json:"status"`
	Index            int                  `json:"index"`
	Total            int                  `json:"total"`
	Score            int                  `json:"score"`
	RemainingSeconds *int                 `json:"remainingSeconds,omitempty"`
	Question         *domain.Question     `json:"question,omitempty"`
	Answer           *int                 `json:"answer,omitempty"`
	Result           *domain.Result       `json:"result,omitempty"`
}

// NewSession draws questions from set according to the mode and returns an
// Active session. onFinish is invoked exactly once, outside the session lock,
// when the session reaches Finished.
func NewSession(id, userID, examID string, set domain.QuestionSet, params SessionParams, rnd *rand.Rand, onFinish func(domain.Result)) *Session {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Session{
		id:       id,
		userID:   userID,
		examID:   examID,
		mode:     params.Mode,
		status:   domain.SessionActive,
		done:     make(chan struct{}),
		onFinish: onFinish,
		now:      time.Now,
	}

	switch params.Mode {
	case domain.ModeExam:
		limit := params.Limit
		if limit <= 0 {
			limit = 40
		}
		minutes := params.TimeMinutes
		if minutes <= 0 {
			minutes = 60
		}
		s.questions = DrawQuestions(rnd, set, limit)
		s.remaining = minutes * 60
		s.timed = true
	case domain.ModeOneLife:
		s.questions = DrawQuestions(rnd, set, len(set))
	default:
		// Training keeps the cache's natural order.
		s.questions = append([]domain.Question(nil), set...)
	}
	s.answers = make([]*int, len(s.questions))
	return s
}

// DrawQuestions picks min(limit, len(set)) questions at random without
// replacement, preserving none of the source order.
func DrawQuestions(rnd *rand.Rand, set domain.QuestionSet, limit int) []domain.Question {
	n := limit
	if n > len(set) {
		n = len(set)
	}
	drawn := make([]domain.Question, 0, n)
	for _, i := range rnd.Perm(len(set))[:n] {
		drawn = append(drawn, set[i])
	}
	return drawn
}

func (s *Session) ID() string               { return s.id }
func (s *Session) UserID() string           { return s.userID }
func (s *Session) Mode() domain.SessionMode { return s.mode }

// Done is closed when the session reaches Finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// View returns a snapshot for the transport layer.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SessionView{
		ID:     s.id,
		Mode:   s.mode,
		Status: s.status,
		Index:  s.current,
		Total:  len(s.questions),
		Score:  s.score,
		Result: s.result,
	}
	if s.timed {
		remaining := s.remaining
		v.RemainingSeconds = &remaining
	}
	if s.status == domain.SessionActive && s.current < len(s.questions) {
		q := s.questions[s.current]
		v.Question = &q
		v.Answer = s.answers[s.current]
	}
	return v
}

// Answer records an answer for the current question. In exam mode answers can
// be overwritten until the session ends; in training mode the first answer is
// locked in and correctness revealed; in one-life mode a wrong answer ends
// the run immediately.
func (s *Session) Answer(answerIndex int) (AnswerFeedback, error) {
	s.mu.Lock()
	if s.status != domain.SessionActive {
		s.mu.Unlock()
		return AnswerFeedback{}, domain.ErrSessionFinished
	}

	q := s.questions[s.current]
	correct := q.CorrectAnswerIndex != nil && *q.CorrectAnswerIndex == answerIndex

	switch s.mode {
	case domain.ModeExam:
		idx := answerIndex
		s.answers[s.current] = &idx
		s.mu.Unlock()
		return AnswerFeedback{Recorded: true}, nil

	case domain.ModeTraining:
		if s.answers[s.current] != nil {
			s.mu.Unlock()
			return AnswerFeedback{}, domain.ErrAnswerLocked
		}
		idx := answerIndex
		s.answers[s.current] = &idx
		if correct {
			s.score++
		}
		s.mu.Unlock()
		return AnswerFeedback{
			Recorded:           true,
			Revealed:           true,
			Correct:            correct,
			CorrectAnswerIndex: q.CorrectAnswerIndex,
		}, nil

	default: // one-life
		idx := answerIndex
		s.answers[s.current] = &idx
		fb := AnswerFeedback{Recorded: true, Revealed: true, Correct: correct, CorrectAnswerIndex: q.CorrectAnswerIndex}
		if !correct {
			fb.Finished = true
			s.finishLocked()
			return fb, nil
		}
		s.score++
		if s.current == len(s.questions)-1 {
			fb.Finished = true
			s.finishLocked()
			return fb, nil
		}
		s.current++
		s.mu.Unlock()
		return fb, nil
	}
}

// Next advances to the following question. Moving past the last question
// finishes the session. Training requires the current question to be answered
// first, so correctness is always revealed before advancing.
func (s *Session) Next() error {
	s.mu.Lock()
	if s.status != domain.SessionActive {
		s.mu.Unlock()
		return domain.ErrSessionFinished
	}
	if s.mode == domain.ModeTraining && s.answers[s.current] == nil {
		s.mu.Unlock()
		return domain.ErrAnswerRequired
	}
	if s.current < len(s.questions)-1 {
		s.current++
		s.mu.Unlock()
		return nil
	}
	s.finishLocked()
	return nil
}

// Prev moves back one question. Only exam mode allows review; other modes
// ignore the call.
func (s *Session) Prev() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.SessionActive {
		return domain.ErrSessionFinished
	}
	if s.mode == domain.ModeExam && s.current > 0 {
		s.current--
	}
	return nil
}

// Finish ends the session with whatever answers exist.
func (s *Session) Finish() error {
	s.mu.Lock()
	if s.status != domain.SessionActive {
		s.mu.Unlock()
		return domain.ErrSessionFinished
	}
	s.finishLocked()
	return nil
}

// Tick decrements the exam countdown by one second and force-finishes the
// session exactly when it reaches zero. Returns true once the session is
// finished.
func (s *Session) Tick() bool {
	s.mu.Lock()
	if s.status != domain.SessionActive || !s.timed {
		s.mu.Unlock()
		return true
	}
	s.remaining--
	if s.remaining > 0 {
		s.mu.Unlock()
		return false
	}
	s.remaining = 0
	s.finishLocked()
	return true
}

// RunCountdown drives the exam timer at one tick per second until the session
// finishes or ctx is cancelled. The ticker is always released.
func (s *Session) RunCountdown(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if s.Tick() {
				return
			}
		}
	}
}

// finishLocked converts session state into a Result, releases the lock and
// hands the result off. Callers must hold s.mu; the lock is released here so
// onFinish runs outside it.
func (s *Session) finishLocked() {
	s.status = domain.SessionFinished

	score := s.score
	if s.mode == domain.ModeExam {
		score = 0
		for i, q := range s.questions {
			if q.CorrectAnswerIndex != nil && s.answers[i] != nil && *s.answers[i] == *q.CorrectAnswerIndex {
				score++
			}
		}
		s.score = score
	}

	res := domain.Result{
		ExamID:     s.examID,
		Mode:       s.mode,
		Score:      score,
		RecordedAt: s.now(),
	}
	if s.mode != domain.ModeOneLife {
		// One-life reports no total: the score is a streak, not a fraction.
		res.Total = len(s.questions)
		res.Details = &domain.ResultDetails{
			Questions:   s.questions,
			UserAnswers: s.answers,
		}
	}
	if res.Total > 0 {
		res.Percentage = int(math.Round(float64(score) / float64(res.Total) * 100))
	}
	s.result = &res
	close(s.done)
	s.mu.Unlock()

	if s.onFinish != nil {
		s.onFinish(res)
	}
}
