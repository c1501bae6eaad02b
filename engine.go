package coursequiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Engine is the caller-facing entry point: it wires the chunker, index
// registry, context builder, advisor, generator and lifecycle over one
// Store and one pair of providers.
type Engine struct {
	store     Store
	registry  *IndexRegistry
	contexts  *ContextBuilder
	advisor   *DifficultyAdvisor
	generator *QuizGenerator
	lifecycle *QuizLifecycle
	log       *Logger

	closers []func() error
}

// EngineOptions tunes an Engine built with New. Zero values pick defaults.
type EngineOptions struct {
	TargetSize    int
	ContextChunks int
	BatchSize     int
	Concurrency   int
	// Namespace keys cached vectors; use the embedding model name.
	Namespace     string
	Cache         VectorCache
	TranscriptDir string
}

// New assembles an Engine from explicit collaborators.
func New(store Store, embedder EmbeddingProvider, completer CompletionProvider, log *Logger, opts EngineOptions) *Engine {
	if log == nil {
		log = NopLogger()
	}
	registry := NewIndexRegistry(store, embedder, log, IndexRegistryOptions{
		Namespace:   opts.Namespace,
		BatchSize:   opts.BatchSize,
		Concurrency: opts.Concurrency,
		Cache:       opts.Cache,
	})
	contexts := NewContextBuilder(store, registry, opts.TargetSize, log)
	advisor := NewDifficultyAdvisor(store)
	return &Engine{
		store:    store,
		registry: registry,
		contexts: contexts,
		advisor:  advisor,
		generator: NewQuizGenerator(store, contexts, advisor, completer, log, QuizGeneratorOptions{
			TranscriptDir: opts.TranscriptDir,
			ContextChunks: opts.ContextChunks,
		}),
		lifecycle: NewQuizLifecycle(store, log),
		log:       log,
	}
}

// NewEngine builds an Engine from cfg: the OpenAI completer, the
// configured embedding provider and, when a Redis address is set, the
// shared vector cache.
func NewEngine(ctx context.Context, cfg Config, store Store, log *Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = NopLogger()
	}
	retry := cfg.RetryPolicy()

	var (
		embedder  EmbeddingProvider
		namespace string
	)
	switch cfg.Embeddings.Provider {
	case "ollama":
		embedder = NewOllamaEmbedder(cfg.Embeddings.OllamaURL, cfg.Embeddings.OllamaModel, retry, log)
		namespace = "ollama:" + cfg.Embeddings.OllamaModel
	default:
		embedder = NewOpenAIEmbedder(cfg.OpenAI, retry, log)
		namespace = "openai:" + cfg.OpenAI.EmbeddingModel
	}

	var (
		cache   VectorCache
		closers []func() error
	)
	if cfg.Redis.Addr != "" {
		rc, err := NewRedisVectorCache(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Redis vector cache unavailable, using in-process cache", "addr", cfg.Redis.Addr, "error", err.Error())
			cache = NewMemoryVectorCache()
		} else {
			cache = rc
			closers = append(closers, rc.Close)
		}
	} else {
		cache = NewMemoryVectorCache()
	}

	e := New(store, embedder, NewOpenAICompleter(cfg.OpenAI, retry, log), log, EngineOptions{
		TargetSize:    cfg.Chunking.TargetSize,
		ContextChunks: cfg.Chunking.ContextChunks,
		BatchSize:     cfg.Embeddings.BatchSize,
		Concurrency:   cfg.Embeddings.Concurrency,
		Namespace:     namespace,
		Cache:         cache,
		TranscriptDir: cfg.TranscriptDir,
	})
	e.closers = closers
	log.Info("Engine ready",
		"embeddings", cfg.Embeddings.Provider,
		"model", cfg.OpenAI.Model,
		"database", cfg.Database.Driver,
		"redis", cfg.Redis.Addr != "",
	)
	return e, nil
}

// OpenStore opens the SQL store configured in cfg.
func OpenStore(ctx context.Context, cfg Config) (*DB, error) {
	return OpenDB(ctx, cfg.Database.Driver, cfg.Database.DSN)
}

// Close releases resources owned by the engine. The Store is not closed.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GenerateAdaptiveQuiz generates a quiz for studentID on courseID.
func (e *Engine) GenerateAdaptiveQuiz(ctx context.Context, courseID, studentID string) (*QuizView, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, &ValidationError{Reason: "student id is required"}
	}
	course, err := e.store.LoadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return e.generator.GenerateAdaptiveQuiz(ctx, course, studentID)
}

// SubmitQuiz grades and stores the answers of a quiz.
func (e *Engine) SubmitQuiz(ctx context.Context, quizID string, answers map[string]int, timeSpentMinutes int) (*GradedQuiz, error) {
	return e.lifecycle.Submit(ctx, quizID, answers, timeSpentMinutes)
}

// IndexCourse re-chunks and re-indexes a course, returning the chunk count.
func (e *Engine) IndexCourse(ctx context.Context, courseID string) (int, error) {
	course, err := e.store.LoadCourse(ctx, courseID)
	if err != nil {
		return 0, err
	}
	return e.contexts.IndexCourse(ctx, course)
}

// Quiz returns the stored quiz, answers included. It is meant for
// ownership checks and administration, not for display to students.
func (e *Engine) Quiz(ctx context.Context, quizID string) (*Quiz, error) {
	return e.store.LoadQuiz(ctx, quizID)
}

// TakeQuiz returns the pre-submission view of an open quiz.
func (e *Engine) TakeQuiz(ctx context.Context, quizID string) (*QuizView, error) {
	quiz, err := e.store.LoadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.Completed {
		return nil, ErrAlreadyCompleted
	}
	return NewQuizView(quiz), nil
}

// QuizResult returns the graded form of a submitted quiz.
func (e *Engine) QuizResult(ctx context.Context, quizID string) (*GradedQuiz, error) {
	quiz, err := e.store.LoadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.Completed {
		return nil, &ValidationError{Reason: fmt.Sprintf("quiz %s has not been submitted", quizID)}
	}
	return NewGradedQuiz(quiz), nil
}

// History summarizes the completed quizzes of studentID.
func (e *Engine) History(ctx context.Context, studentID string) (*HistoryStats, error) {
	return e.advisor.History(ctx, studentID)
}

// CourseProgress reports how studentID is doing on courseID.
func (e *Engine) CourseProgress(ctx context.Context, studentID, courseID string) (*CourseProgress, error) {
	if _, err := e.store.LoadCourse(ctx, courseID); err != nil {
		return nil, err
	}
	p, err := e.advisor.Progress(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if p.ChunkCount, err = e.store.CountChunks(ctx, courseID); err != nil {
		return nil, err
	}
	p.Indexed = p.ChunkCount > 0
	return p, nil
}

// Recommendation returns study advice for studentID on courseID.
func (e *Engine) Recommendation(ctx context.Context, studentID, courseID string) (string, error) {
	return e.advisor.Recommendation(ctx, studentID, courseID)
}

// RecommendedDifficulty returns the tier the next quiz would use.
func (e *Engine) RecommendedDifficulty(ctx context.Context, studentID, courseID string) (Difficulty, error) {
	return e.advisor.Recommend(ctx, studentID, courseID)
}

// CanValidateCourse reports whether studentID has mastered courseID.
func (e *Engine) CanValidateCourse(ctx context.Context, studentID, courseID string) (bool, error) {
	return e.advisor.CanValidateCourse(ctx, studentID, courseID)
}

// SearchCourse ranks the chunks of courseID by similarity to query.
func (e *Engine) SearchCourse(ctx context.Context, courseID, query string, topK int) ([]ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Reason: "query is required"}
	}
	course, err := e.store.LoadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := e.contexts.EnsureIndexed(ctx, course); err != nil {
		return nil, err
	}
	return e.registry.Query(ctx, courseID, query, topK)
}

// ImportCourse stores a new course.
func (e *Engine) ImportCourse(ctx context.Context, title, content string, published bool) (*Course, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &ValidationError{Reason: "course title is required"}
	}
	course := &Course{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Content:   content,
		Published: published,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.SaveCourse(ctx, course); err != nil {
		return nil, err
	}
	e.log.Info("Course imported", "course_id", course.ID, "title", course.Title, "chars", len(content))
	return course, nil
}

// ListCourses lists stored courses, oldest first.
func (e *Engine) ListCourses(ctx context.Context, publishedOnly bool) ([]*Course, error) {
	return e.store.ListCourses(ctx, publishedOnly)
}
