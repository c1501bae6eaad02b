package coursequiz

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// QuizGenerator produces adaptive quizzes from course material: it picks
// the tier, gathers retrieval context, asks the model for questions and
// persists the validated attempt.
type QuizGenerator struct {
	store         Store
	contexts      *ContextBuilder
	advisor       *DifficultyAdvisor
	completer     CompletionProvider
	log           *Logger
	transcriptDir string
	contextChunks int
	now           func() time.Time
}

// QuizGeneratorOptions holds the optional settings of a QuizGenerator.
type QuizGeneratorOptions struct {
	// TranscriptDir receives one transcript per generation; empty disables them.
	TranscriptDir string
	ContextChunks int
}

func NewQuizGenerator(store Store, contexts *ContextBuilder, advisor *DifficultyAdvisor, completer CompletionProvider, log *Logger, opts QuizGeneratorOptions) *QuizGenerator {
	if opts.ContextChunks <= 0 {
		opts.ContextChunks = 10
	}
	return &QuizGenerator{
		store:         store,
		contexts:      contexts,
		advisor:       advisor,
		completer:     completer,
		log:           log.With("component", "QuizGenerator"),
		transcriptDir: opts.TranscriptDir,
		contextChunks: opts.ContextChunks,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GenerateAdaptiveQuiz generates and stores a quiz for studentID on course
// at the tier the student's history calls for. It either persists a
// complete, valid quiz or fails with a *GenerationFailedError and persists
// nothing.
func (g *QuizGenerator) GenerateAdaptiveQuiz(ctx context.Context, course *Course, studentID string) (view *QuizView, err error) {
	ctx, span := startSpan(ctx, "QuizGenerator.GenerateAdaptiveQuiz",
		attribute.String("course.id", course.ID),
		attribute.String("student.id", studentID),
	)
	defer func() { endSpan(span, err) }()

	quiz, err := g.generate(ctx, course, studentID)
	if err != nil {
		g.log.Error("Quiz generation failed", "course_id", course.ID, "student_id", studentID, "error", err.Error())
		return nil, &GenerationFailedError{CourseID: course.ID, Err: err}
	}
	span.SetAttributes(attribute.String("quiz.id", quiz.ID), attribute.String("quiz.difficulty", string(quiz.Difficulty)))
	return NewQuizView(quiz), nil
}

func (g *QuizGenerator) generate(ctx context.Context, course *Course, studentID string) (*Quiz, error) {
	if err := g.contexts.EnsureIndexed(ctx, course); err != nil {
		return nil, err
	}

	difficulty, err := g.advisor.Recommend(ctx, studentID, course.ID)
	if err != nil {
		return nil, err
	}
	count := difficulty.QuestionCount()

	courseContext, err := g.contexts.GetContext(ctx, course, g.contextChunks)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(courseContext) == "" {
		return nil, &ValidationError{Reason: "course has no content to generate questions from"}
	}

	quizID := uuid.NewString()
	transcript, err := NewLLMLogger(g.transcriptDir, quizID, transcriptHeader{
		CourseID:    course.ID,
		CourseTitle: course.Title,
		StudentID:   studentID,
		Difficulty:  difficulty,
		Questions:   count,
		ContextLen:  len(courseContext),
	})
	if err != nil {
		// Transcripts are diagnostics; generation goes on without one.
		g.log.Warn("Failed to create transcript", "quiz_id", quizID, "error", err.Error())
	}
	defer transcript.Close()

	g.log.Info("Generating quiz",
		"quiz_id", quizID,
		"course_id", course.ID,
		"student_id", studentID,
		"difficulty", string(difficulty),
		"questions", count,
	)

	prompt := buildGenerationPrompt(course.Title, courseContext, difficulty, count)
	transcript.LogLLMRequest("QuizGenerator", prompt)

	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		transcript.LogOutcome(err)
		return nil, err
	}
	transcript.LogLLMResponse("QuizGenerator", raw)

	generated, err := parseGeneratedQuestions(raw)
	if err != nil {
		transcript.LogOutcome(err)
		return nil, err
	}
	if len(generated) != count {
		g.log.Warn("Model returned a different number of questions", "quiz_id", quizID, "requested", count, "received", len(generated))
	}

	quiz := &Quiz{
		ID:               quizID,
		CourseID:         course.ID,
		StudentID:        studentID,
		Difficulty:       difficulty,
		TimeLimitMinutes: difficulty.TimeLimitMinutes(count),
		TotalQuestions:   len(generated),
		CreatedAt:        g.now(),
		Questions:        make([]Question, len(generated)),
	}
	for i, gq := range generated {
		quiz.Questions[i] = Question{
			ID:                 uuid.NewString(),
			QuizID:             quizID,
			Position:           i,
			Text:               strings.TrimSpace(gq.Question),
			Options:            gq.Options,
			CorrectOptionIndex: *gq.CorrectOptionIndex,
			Explanation:        strings.TrimSpace(gq.Explanation),
		}
	}

	if err := g.store.SaveQuiz(ctx, quiz); err != nil {
		transcript.LogOutcome(err)
		return nil, err
	}
	transcript.LogOutcome(nil)

	g.log.Info("Quiz generation complete", "quiz_id", quizID, "questions", quiz.TotalQuestions)
	return quiz, nil
}
