package coursequiz

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestEngine(t *testing.T, store Store, completer CompletionProvider, transcriptDir string) *Engine {
	t.Helper()
	return New(store, &fakeEmbedder{}, completer, NopLogger(), EngineOptions{
		TargetSize:    500,
		Namespace:     "test",
		TranscriptDir: transcriptDir,
	})
}

func TestGenerateEasyQuizForNewStudent(t *testing.T) {
	store := NewMemoryStore()
	seedCourse(t, store, "c1", longCourseText(1500))
	completer := &fakeCompleter{reply: questionsJSON(t, 5)}
	engine := newTestEngine(t, store, completer, "")
	ctx := context.Background()

	view, err := engine.GenerateAdaptiveQuiz(ctx, "c1", "s1")
	if err != nil {
		t.Fatalf("GenerateAdaptiveQuiz: %v", err)
	}
	if view.Difficulty != Easy {
		t.Fatalf("difficulty: want=%s got=%s", Easy, view.Difficulty)
	}
	if view.TimeLimitMinutes != 10 {
		t.Fatalf("time limit: want=10 got=%d", view.TimeLimitMinutes)
	}
	if len(view.Questions) != 5 {
		t.Fatalf("questions: want=5 got=%d", len(view.Questions))
	}
	for i, q := range view.Questions {
		if len(q.Options) != 4 || q.Position != i || q.ID == "" {
			t.Fatalf("question %d malformed: %+v", i, q)
		}
	}

	prompt := completer.lastPrompt()
	for _, want := range []string{"Write 5 multiple choice questions", Easy.Guidance(), `"Course c1"`, "Sentence 0 explains"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}

	stored, err := store.LoadQuiz(ctx, view.QuizID)
	if err != nil {
		t.Fatalf("LoadQuiz: %v", err)
	}
	if stored.Completed || stored.Score != nil || stored.SubmittedAt != nil {
		t.Fatalf("new quiz should be open: %+v", stored)
	}
	if stored.StudentID != "s1" || stored.CourseID != "c1" || stored.TotalQuestions != 5 {
		t.Fatalf("stored quiz malformed: %+v", stored)
	}
	for i, q := range stored.Questions {
		if q.CorrectOptionIndex != i%4 || q.QuizID != view.QuizID {
			t.Fatalf("stored question %d malformed: %+v", i, q)
		}
	}
}

func TestGenerateUsesHistoryTier(t *testing.T) {
	store := NewMemoryStore()
	seedCourse(t, store, "c1", longCourseText(800))
	seedCompleted(t, store, "s1", "c1", 90, 85, 80)
	engine := newTestEngine(t, store, &fakeCompleter{reply: questionsJSON(t, 10)}, "")

	view, err := engine.GenerateAdaptiveQuiz(context.Background(), "c1", "s1")
	if err != nil {
		t.Fatalf("GenerateAdaptiveQuiz: %v", err)
	}
	if view.Difficulty != Hard || len(view.Questions) != 10 || view.TimeLimitMinutes != 40 {
		t.Fatalf("want HARD quiz of 10 questions and 40 minutes got=%s/%d/%d",
			view.Difficulty, len(view.Questions), view.TimeLimitMinutes)
	}
}

func TestGenerateViewHidesAnswers(t *testing.T) {
	store := NewMemoryStore()
	seedCourse(t, store, "c1", longCourseText(600))
	engine := newTestEngine(t, store, &fakeCompleter{reply: questionsJSON(t, 5)}, "")

	view, err := engine.GenerateAdaptiveQuiz(context.Background(), "c1", "s1")
	if err != nil {
		t.Fatalf("GenerateAdaptiveQuiz: %v", err)
	}
	data, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("marshal view: %v", err)
	}
	for _, leak := range []string{"correct", "explanation", "Because of reason"} {
		if strings.Contains(strings.ToLower(string(data)), strings.ToLower(leak)) {
			t.Fatalf("view leaks %q: %s", leak, data)
		}
	}
}

func TestGenerateFailurePersistsNothing(t *testing.T) {
	cases := map[string]*fakeCompleter{
		"invalid reply":  {reply: `[{"question":"q","options":["a","b"],"correctOptionIndex":0}]`},
		"not json":       {reply: "Sorry, I cannot help with that."},
		"provider error": {err: errors.New("upstream 500")},
	}
	for name, completer := range cases {
		store := NewMemoryStore()
		seedCourse(t, store, "c1", longCourseText(600))
		engine := newTestEngine(t, store, completer, "")
		ctx := context.Background()

		_, err := engine.GenerateAdaptiveQuiz(ctx, "c1", "s1")
		var gerr *GenerationFailedError
		if !errors.As(err, &gerr) {
			t.Fatalf("%s: want *GenerationFailedError got=%v", name, err)
		}
		if gerr.CourseID != "c1" {
			t.Fatalf("%s: course id: want=c1 got=%s", name, gerr.CourseID)
		}
		attempts, err := store.ListAttempts(ctx, "s1", "")
		if err != nil {
			t.Fatalf("%s: ListAttempts: %v", name, err)
		}
		if len(attempts) != 0 {
			t.Fatalf("%s: want no stored attempts got=%d", name, len(attempts))
		}
	}
}

func TestGenerateWrapsCauses(t *testing.T) {
	store := NewMemoryStore()
	seedCourse(t, store, "c1", longCourseText(600))

	engine := newTestEngine(t, store, &fakeCompleter{reply: "[]"}, "")
	_, err := engine.GenerateAdaptiveQuiz(context.Background(), "c1", "s1")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want wrapped *ValidationError got=%v", err)
	}

	engine = newTestEngine(t, store, &fakeCompleter{err: errors.New("timeout")}, "")
	_, err = engine.GenerateAdaptiveQuiz(context.Background(), "c1", "s1")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("want wrapped *ProviderError got=%v", err)
	}
}

func TestGenerateEmptyCourse(t *testing.T) {
	store := NewMemoryStore()
	seedCourse(t, store, "c1", "   ")
	completer := &fakeCompleter{reply: questionsJSON(t, 5)}
	engine := newTestEngine(t, store, completer, "")

	_, err := engine.GenerateAdaptiveQuiz(context.Background(), "c1", "s1")
	var gerr *GenerationFailedError
	var verr *ValidationError
	if !errors.As(err, &gerr) || !errors.As(err, &verr) {
		t.Fatalf("want validation failure inside generation failure got=%v", err)
	}
	if completer.lastPrompt() != "" {
		t.Fatalf("completion provider should not be called for an empty course")
	}
}

func TestGenerateUnknownCourse(t *testing.T) {
	engine := newTestEngine(t, NewMemoryStore(), &fakeCompleter{reply: questionsJSON(t, 5)}, "")
	_, err := engine.GenerateAdaptiveQuiz(context.Background(), "missing", "s1")
	if !IsNotFound(err) {
		t.Fatalf("want not found got=%v", err)
	}
}

func TestGenerateWritesTranscript(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryStore()
	seedCourse(t, store, "c1", longCourseText(600))
	engine := newTestEngine(t, store, &fakeCompleter{reply: questionsJSON(t, 5)}, dir)

	view, err := engine.GenerateAdaptiveQuiz(context.Background(), "c1", "s1")
	if err != nil {
		t.Fatalf("GenerateAdaptiveQuiz: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, view.QuizID+".log"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	text := string(data)
	for _, want := range []string{"Quiz ID: " + view.QuizID, "Difficulty: EASY", "LLM REQUEST", "LLM RESPONSE", "SUCCEEDED", "Quiz Generation Complete"} {
		if !strings.Contains(text, want) {
			t.Fatalf("transcript missing %q", want)
		}
	}
}
