package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"coursequiz"

	"github.com/go-chi/chi/v5"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{1, float32(len(text) % 7)}, nil
}

func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = s.Embed(ctx, t)
	}
	return out, nil
}

// stubCompleter always answers with five questions whose correct option is 2.
type stubCompleter struct{}

func (stubCompleter) Complete(context.Context, string) (string, error) {
	type question struct {
		Question           string   `json:"question"`
		Options            []string `json:"options"`
		CorrectOptionIndex int      `json:"correctOptionIndex"`
		Explanation        string   `json:"explanation"`
	}
	qs := make([]question, 5)
	for i := range qs {
		qs[i] = question{
			Question:           fmt.Sprintf("Q%d?", i),
			Options:            []string{"w", "x", "y", "z"},
			CorrectOptionIndex: 2,
			Explanation:        "y it is",
		}
	}
	data, err := json.Marshal(qs)
	return string(data), err
}

type testEnv struct {
	srv   *httptest.Server
	store *coursequiz.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := coursequiz.NewMemoryStore()
	err := store.SaveCourse(context.Background(), &coursequiz.Course{
		ID:        "c1",
		Title:     "Cells",
		Content:   "Cells are the basic unit of life. Membranes surround every cell. Nuclei hold the genome.",
		Published: true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("SaveCourse: %v", err)
	}
	engine := coursequiz.New(store, stubEmbedder{}, stubCompleter{}, coursequiz.NopLogger(), coursequiz.EngineOptions{})

	r := chi.NewRouter()
	NewServer(engine, newSessionStore("test-session-key-0123456789abcdef", false), coursequiz.NopLogger()).Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func (e *testEnv) login(t *testing.T, c *http.Client, studentID string) {
	t.Helper()
	resp := do(t, c, http.MethodPost, e.srv.URL+"/api/session", map[string]string{"studentId": studentID}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status=%d", resp.StatusCode)
	}
}

func do(t *testing.T, c *http.Client, method, url string, body, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp
}

func TestRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	resp := do(t, env.client(t), http.MethodPost, env.srv.URL+"/api/courses/c1/quizzes", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", resp.StatusCode)
	}
}

func TestSessionCookieWorksOverPlainHTTP(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	resp := do(t, c, http.MethodPost, env.srv.URL+"/api/session", map[string]string{"studentId": "s1"}, nil)
	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionName {
			cookie = ck
		}
	}
	if cookie == nil {
		t.Fatalf("no %s cookie in response", sessionName)
	}
	if cookie.Secure {
		t.Fatalf("cookie should not be Secure when secure cookies are off")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie attributes: httpOnly=%v sameSite=%v", cookie.HttpOnly, cookie.SameSite)
	}

	var history coursequiz.HistoryStats
	if resp := do(t, c, http.MethodGet, env.srv.URL+"/api/history", nil, &history); resp.StatusCode != http.StatusOK {
		t.Fatalf("history with session cookie: want=200 got=%d", resp.StatusCode)
	}

	if !newSessionStore("k", true).Options.Secure {
		t.Fatalf("secure store should mark cookies Secure")
	}
}

func TestCreateSessionRequiresStudent(t *testing.T) {
	env := newTestEnv(t)
	resp := do(t, env.client(t), http.MethodPost, env.srv.URL+"/api/session", map[string]string{"studentId": "  "}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", resp.StatusCode)
	}
}

func TestQuizFlow(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	env.login(t, c, "s1")

	var view coursequiz.QuizView
	resp := do(t, c, http.MethodPost, env.srv.URL+"/api/courses/c1/quizzes", nil, &view)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate: status=%d", resp.StatusCode)
	}
	if view.Difficulty != coursequiz.Easy || len(view.Questions) != 5 {
		t.Fatalf("generate: got=%+v", view)
	}

	var taken map[string]any
	if resp := do(t, c, http.MethodGet, env.srv.URL+"/api/quizzes/"+view.QuizID, nil, &taken); resp.StatusCode != http.StatusOK {
		t.Fatalf("take: status=%d", resp.StatusCode)
	}
	raw, _ := json.Marshal(taken)
	if bytes.Contains(raw, []byte("correctOptionIndex")) || bytes.Contains(raw, []byte("explanation")) {
		t.Fatalf("take leaks answers: %s", raw)
	}

	resp = do(t, c, http.MethodGet, env.srv.URL+"/api/quizzes/"+view.QuizID+"/result", nil, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("result before submit: want=422 got=%d", resp.StatusCode)
	}

	answers := map[string]int{}
	for i, q := range view.Questions {
		if i < 4 {
			answers[q.ID] = 2
		}
	}
	var graded gradedResponse
	resp = do(t, c, http.MethodPost, env.srv.URL+"/api/quizzes/"+view.QuizID+"/submit",
		map[string]any{"answers": answers, "timeSpentMinutes": 6}, &graded)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status=%d", resp.StatusCode)
	}
	if graded.Summary.Score != 80 || !graded.Summary.Passed || len(graded.Results) != 5 {
		t.Fatalf("submit: got=%+v", graded)
	}

	resp = do(t, c, http.MethodPost, env.srv.URL+"/api/quizzes/"+view.QuizID+"/submit",
		map[string]any{"answers": answers, "timeSpentMinutes": 6}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second submit: want=409 got=%d", resp.StatusCode)
	}

	var result gradedResponse
	if resp := do(t, c, http.MethodGet, env.srv.URL+"/api/quizzes/"+view.QuizID+"/result", nil, &result); resp.StatusCode != http.StatusOK {
		t.Fatalf("result: status=%d", resp.StatusCode)
	}
	if result.Results[4].Correct || result.Results[0].Explanation != "y it is" {
		t.Fatalf("result: got=%+v", result.Results)
	}

	var history coursequiz.HistoryStats
	if resp := do(t, c, http.MethodGet, env.srv.URL+"/api/history", nil, &history); resp.StatusCode != http.StatusOK {
		t.Fatalf("history: status=%d", resp.StatusCode)
	}
	if history.Attempts != 1 || history.BestScore != 80 {
		t.Fatalf("history: got=%+v", history)
	}

	var progress map[string]any
	if resp := do(t, c, http.MethodGet, env.srv.URL+"/api/courses/c1/progress", nil, &progress); resp.StatusCode != http.StatusOK {
		t.Fatalf("progress: status=%d", resp.StatusCode)
	}
	if progress["recommendedDifficulty"] != "HARD" || progress["recommendation"] == "" {
		t.Fatalf("progress: got=%v", progress)
	}
}

func TestOtherStudentsQuizIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	owner := env.client(t)
	env.login(t, owner, "s1")
	var view coursequiz.QuizView
	do(t, owner, http.MethodPost, env.srv.URL+"/api/courses/c1/quizzes", nil, &view)

	intruder := env.client(t)
	env.login(t, intruder, "s2")
	resp := do(t, intruder, http.MethodPost, env.srv.URL+"/api/quizzes/"+view.QuizID+"/submit",
		map[string]any{"answers": map[string]int{}}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status: want=403 got=%d", resp.StatusCode)
	}
}

func TestErrorStatuses(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	env.login(t, c, "s1")

	cases := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodPost, "/api/courses/missing/quizzes", nil, http.StatusNotFound},
		{http.MethodGet, "/api/quizzes/missing", nil, http.StatusNotFound},
		{http.MethodGet, "/api/courses/c1/search?q=", nil, http.StatusUnprocessableEntity},
		{http.MethodGet, "/api/courses/c1/search?q=cell&k=zero", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/courses/c1/search?q=cell&k=2", nil, http.StatusOK},
		{http.MethodPost, "/api/admin/courses/c1/index", nil, http.StatusOK},
		{http.MethodPost, "/api/admin/courses/missing/index", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		resp := do(t, c, tc.method, env.srv.URL+tc.path, tc.body, nil)
		if resp.StatusCode != tc.want {
			t.Fatalf("%s %s: want=%d got=%d", tc.method, tc.path, tc.want, resp.StatusCode)
		}
	}
}

func TestSubmitRejectsBadAnswers(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	env.login(t, c, "s1")
	var view coursequiz.QuizView
	do(t, c, http.MethodPost, env.srv.URL+"/api/courses/c1/quizzes", nil, &view)

	resp := do(t, c, http.MethodPost, env.srv.URL+"/api/quizzes/"+view.QuizID+"/submit",
		map[string]any{"answers": map[string]int{view.Questions[0].ID: 9}}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status: want=422 got=%d", resp.StatusCode)
	}

	quiz, err := env.store.LoadQuiz(context.Background(), view.QuizID)
	if err != nil || quiz.Completed {
		t.Fatalf("rejected submission should leave the quiz open: quiz=%+v err=%v", quiz, err)
	}
}
