package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"coursequiz"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
)

const (
	sessionName     = "coursequiz"
	sessionStudent  = "student_id"
	sessionMaxAge   = 7 * 24 * 60 * 60
	defaultSearchK  = 5
	maxSearchK      = 50
	maxRequestBytes = 1 << 20
)

type contextKey struct{}

// Server exposes the engine as a JSON API. The student is identified by a
// cookie session.
type Server struct {
	engine   *coursequiz.Engine
	sessions sessions.Store
	log      *coursequiz.Logger
}

// newSessionStore returns the cookie store for student sessions. Secure
// cookies are only sent over TLS, so plain HTTP deployments leave secure off.
func newSessionStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

func NewServer(engine *coursequiz.Engine, store sessions.Store, log *coursequiz.Logger) *Server {
	return &Server{engine: engine, sessions: store, log: log.With("component", "webserver")}
}

// Mount registers the API routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Post("/api/session", s.handleCreateSession)

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireStudent)

		pr.Post("/api/courses/{courseID}/quizzes", s.handleGenerateQuiz)
		pr.Get("/api/courses/{courseID}/progress", s.handleProgress)
		pr.Get("/api/courses/{courseID}/search", s.handleSearch)

		pr.Get("/api/quizzes/{quizID}", s.handleTakeQuiz)
		pr.Post("/api/quizzes/{quizID}/submit", s.handleSubmit)
		pr.Get("/api/quizzes/{quizID}/result", s.handleResult)

		pr.Get("/api/history", s.handleHistory)
	})

	r.Post("/api/admin/courses/{courseID}/index", s.handleIndexCourse)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID string `json:"studentId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("bad json"))
		return
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	if req.StudentID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("studentId required"))
		return
	}

	session, _ := s.sessions.Get(r, sessionName)
	session.Values[sessionStudent] = req.StudentID
	if err := session.Save(r, w); err != nil {
		s.log.Error("Failed to save session", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to save session"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"studentId": req.StudentID})
}

func (s *Server) requireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.sessions.Get(r, sessionName)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("no session"))
			return
		}
		studentID, _ := session.Values[sessionStudent].(string)
		if studentID == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody("no session"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, studentID)))
	})
}

func studentFrom(r *http.Request) string {
	id, _ := r.Context().Value(contextKey{}).(string)
	return id
}

// ownQuiz loads the quiz and checks it belongs to the session student.
func (s *Server) ownQuiz(w http.ResponseWriter, r *http.Request) (*coursequiz.Quiz, bool) {
	quiz, err := s.engine.Quiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if quiz.StudentID != studentFrom(r) {
		writeJSON(w, http.StatusForbidden, errorBody("not your quiz"))
		return nil, false
	}
	return quiz, true
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GenerateAdaptiveQuiz(r.Context(), chi.URLParam(r, "courseID"), studentFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleTakeQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, ok := s.ownQuiz(w, r)
	if !ok {
		return
	}
	if quiz.Completed {
		s.writeError(w, coursequiz.ErrAlreadyCompleted)
		return
	}
	writeJSON(w, http.StatusOK, coursequiz.NewQuizView(quiz))
}

type gradedResponse struct {
	Summary coursequiz.GradedQuizView   `json:"summary"`
	Results []coursequiz.QuestionResult `json:"results"`
}

func newGradedResponse(g *coursequiz.GradedQuiz) gradedResponse {
	return gradedResponse{Summary: g.View(), Results: g.Results}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	quiz, ok := s.ownQuiz(w, r)
	if !ok {
		return
	}
	var req struct {
		Answers          map[string]int `json:"answers"`
		TimeSpentMinutes int            `json:"timeSpentMinutes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("bad json"))
		return
	}
	graded, err := s.engine.SubmitQuiz(r.Context(), quiz.ID, req.Answers, req.TimeSpentMinutes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newGradedResponse(graded))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	quiz, ok := s.ownQuiz(w, r)
	if !ok {
		return
	}
	graded, err := s.engine.QuizResult(r.Context(), quiz.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newGradedResponse(graded))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.History(r.Context(), studentFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	progress, err := s.engine.CourseProgress(r.Context(), studentFrom(r), courseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	advice, err := s.engine.Recommendation(r.Context(), studentFrom(r), courseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*coursequiz.CourseProgress
		Recommendation string `json:"recommendation"`
	}{progress, advice})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	k := defaultSearchK
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("k must be a positive integer"))
			return
		}
		k = min(n, maxSearchK)
	}
	hits, err := s.engine.SearchCourse(r.Context(), chi.URLParam(r, "courseID"), r.URL.Query().Get("q"), k)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleIndexCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	n, err := s.engine.IndexCourse(r.Context(), courseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courseId": courseID, "chunks": n})
}

// writeError maps engine errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		validation *coursequiz.ValidationError
		provider   *coursequiz.ProviderError
		generation *coursequiz.GenerationFailedError
		status     int
	)
	switch {
	case coursequiz.IsNotFound(err):
		status = http.StatusNotFound
	case coursequiz.IsAlreadyCompleted(err):
		status = http.StatusConflict
	case errors.As(err, &provider):
		status = http.StatusBadGateway
	case errors.As(err, &validation) && !errors.As(err, &generation):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &generation):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		s.log.Error("Request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
