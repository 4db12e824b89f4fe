package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitquiz-service/internal/app"
	"bitquiz-service/internal/auth"
	"bitquiz-service/internal/catalog"
	"bitquiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// API is the REST surface: session control, catalog, history and profile.
type API struct {
	sessions *app.SessionService
	history  *app.HistoryService
	profiles app.ProfileRepository
	catalog  *catalog.Catalog
	tokens   *auth.Service
	log      *zap.SugaredLogger
}

func NewAPI(sessions *app.SessionService, history *app.HistoryService, profiles app.ProfileRepository, cat *catalog.Catalog, tokens *auth.Service, log *zap.SugaredLogger) *API {
	return &API{
		sessions: sessions,
		history:  history,
		profiles: profiles,
		catalog:  cat,
		tokens:   tokens,
		log:      log,
	}
}

// Router wires all HTTP routes, including the duel websocket endpoint.
func (a *API) Router(duel *DuelHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Post("/api/auth/anonymous", a.anonymousSignIn)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(a.tokens))

		r.Get("/api/quizzes", a.listQuizzes)
		r.Get("/api/quizzes/{quizID}/stats", a.quizStats)

		r.Post("/api/sessions", a.startSession)
		r.Get("/api/sessions/{sessionID}", a.getSession)
		r.Post("/api/sessions/{sessionID}/answers", a.answer)
		r.Post("/api/sessions/{sessionID}/next", a.next)
		r.Post("/api/sessions/{sessionID}/prev", a.prev)
		r.Post("/api/sessions/{sessionID}/finish", a.finish)

		r.Get("/api/history", a.listHistory)
		r.Get("/api/profile", a.profile)
		r.Post("/api/profile/pro", a.buyPro)

		if duel != nil {
			r.Get("/ws/duel", duel.ServeWS)
		}
	})
	return r
}

// anonymousSignIn creates a fresh anonymous profile and returns a bearer
// token for it. Clients keep the token locally; there is no password flow.
func (a *API) anonymousSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username       string `json:"username"`
		FavoriteSchool string `json:"favoriteSchool"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	p := domain.Profile{
		ID:             uuid.NewString(),
		Username:       body.Username,
		FavoriteSchool: body.FavoriteSchool,
		CreatedAt:      time.Now(),
	}
	if p.Username == "" {
		p.Username = "anon-" + p.ID[:8]
	}
	if err := a.profiles.Create(r.Context(), p); err != nil {
		a.writeError(w, err)
		return
	}
	token, err := a.tokens.Issue(p.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":   token,
		"profile": p,
	})
}

func (a *API) listQuizzes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"schools": a.catalog.Schools(),
		"quizzes": a.catalog.All(),
	})
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	var params app.StartParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	view, err := a.sessions.Start(r.Context(), UserID(r.Context()), params)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := a.sessions.Get(r.Context(), UserID(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) answer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AnswerIndex int `json:"answerIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	fb, view, err := a.sessions.Answer(r.Context(), UserID(r.Context()), chi.URLParam(r, "sessionID"), body.AnswerIndex)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"feedback": fb,
		"session":  view,
	})
}

func (a *API) next(w http.ResponseWriter, r *http.Request) {
	view, err := a.sessions.Next(r.Context(), UserID(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) prev(w http.ResponseWriter, r *http.Request) {
	view, err := a.sessions.Prev(r.Context(), UserID(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) finish(w http.ResponseWriter, r *http.Request) {
	view, err := a.sessions.Finish(r.Context(), UserID(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) listHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.history.List(r.Context(), UserID(r.Context()), r.URL.Query().Get("examId"), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) quizStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.history.Stats(r.Context(), UserID(r.Context()), chi.URLParam(r, "quizID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) {
	p, err := a.profiles.Get(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// buyPro is the stub purchase flow: it only flips the entitlement flag.
func (a *API) buyPro(w http.ResponseWriter, r *http.Request) {
	if err := a.profiles.GrantPro(r.Context(), UserID(r.Context())); err != nil {
		a.writeError(w, err)
		return
	}
	p, err := a.profiles.Get(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrProfileNotFound),
		errors.Is(err, domain.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidMode):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrRoomNotWaiting),
		errors.Is(err, domain.ErrSessionFinished),
		errors.Is(err, domain.ErrAnswerLocked),
		errors.Is(err, domain.ErrAnswerRequired):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNetworkUnavailable),
		errors.Is(err, domain.ErrEmptyCache),
		errors.Is(err, domain.ErrEmptyResult):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrStorage):
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		a.log.Errorw("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
