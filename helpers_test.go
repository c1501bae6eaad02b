package coursequiz

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const fakeDims = 64

// fakeEmbedder maps text to a bag-of-words vector so that texts sharing
// words are similar. It counts calls and can be made to fail or block.
type fakeEmbedder struct {
	batchCalls atomic.Int32
	embedCalls atomic.Int32
	texts      atomic.Int32

	mu      sync.Mutex
	err     error
	started chan struct{} // closed on the first EmbedBatch call, if set
	gate    chan struct{} // EmbedBatch waits on it, if set
	once    sync.Once
}

func bagOfWords(text string) []float32 {
	v := make([]float32, fakeDims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%fakeDims]++
	}
	return v
}

func (f *fakeEmbedder) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls.Add(1)
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, &ProviderError{Provider: "fake", Op: "embed", Err: err}
	}
	return bagOfWords(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls.Add(1)
	f.texts.Add(int32(len(texts)))
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, &ProviderError{Provider: "fake", Op: "embed", Err: err}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = bagOfWords(t)
	}
	return out, nil
}

// fakeCompleter answers every prompt with reply, or fails with err.
type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", &ProviderError{Provider: "fake", Op: "complete", Err: f.err}
	}
	return f.reply, nil
}

func (f *fakeCompleter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// questionsJSON renders n valid generated questions; the correct option of
// question i is i%4.
func questionsJSON(t *testing.T, n int) string {
	t.Helper()
	type q struct {
		Question           string   `json:"question"`
		Options            []string `json:"options"`
		CorrectOptionIndex int      `json:"correctOptionIndex"`
		Explanation        string   `json:"explanation"`
	}
	out := make([]q, n)
	for i := range out {
		out[i] = q{
			Question:           fmt.Sprintf("Question number %d?", i+1),
			Options:            []string{"alpha", "beta", "gamma", "delta"},
			CorrectOptionIndex: i % 4,
			Explanation:        fmt.Sprintf("Because of reason %d.", i+1),
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal questions: %v", err)
	}
	return string(data)
}

func seedCourse(t *testing.T, store Store, id, content string) *Course {
	t.Helper()
	c := &Course{
		ID:        id,
		Title:     "Course " + id,
		Content:   content,
		Published: true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.SaveCourse(context.Background(), c); err != nil {
		t.Fatalf("SaveCourse: %v", err)
	}
	return c
}

// seedCompleted stores completed attempts for studentID on courseID with
// the given scores, newest first.
func seedCompleted(t *testing.T, store Store, studentID, courseID string, scores ...float64) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, s := range scores {
		score := s
		created := base.Add(-time.Duration(i) * time.Hour)
		submitted := created.Add(10 * time.Minute)
		q := &Quiz{
			ID:               fmt.Sprintf("%s-%s-%d", studentID, courseID, i),
			CourseID:         courseID,
			StudentID:        studentID,
			Difficulty:       Medium,
			TimeLimitMinutes: 21,
			Completed:        true,
			Score:            &score,
			CreatedAt:        created,
			SubmittedAt:      &submitted,
			Questions:        []Question{},
		}
		if err := store.SaveQuiz(context.Background(), q); err != nil {
			t.Fatalf("SaveQuiz: %v", err)
		}
	}
}

// openQuiz stores an open quiz with n questions whose correct option is
// always 1.
func openQuiz(t *testing.T, store Store, id string, n int) *Quiz {
	t.Helper()
	q := &Quiz{
		ID:               id,
		CourseID:         "course-1",
		StudentID:        "student-1",
		Difficulty:       Hard,
		TimeLimitMinutes: Hard.TimeLimitMinutes(n),
		TotalQuestions:   n,
		CreatedAt:        time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Questions:        make([]Question, n),
	}
	for i := range q.Questions {
		q.Questions[i] = Question{
			ID:                 fmt.Sprintf("%s-q%d", id, i),
			QuizID:             id,
			Position:           i,
			Text:               fmt.Sprintf("Q%d", i),
			Options:            []string{"a", "b", "c", "d"},
			CorrectOptionIndex: 1,
			Explanation:        "b is right",
		}
	}
	if err := store.SaveQuiz(context.Background(), q); err != nil {
		t.Fatalf("SaveQuiz: %v", err)
	}
	return q
}

// longCourseText returns roughly n characters of distinct sentences.
func longCourseText(n int) string {
	var sb strings.Builder
	for i := 0; sb.Len() < n; i++ {
		fmt.Fprintf(&sb, "Sentence %d explains topic %d of the course material in some detail. ", i, i%7)
	}
	return strings.TrimSpace(sb.String())
}
