package coursequiz

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// QuizLifecycle grades submissions. A quiz can be submitted exactly once;
// the store's CompleteQuiz claim decides between concurrent submissions.
type QuizLifecycle struct {
	store Store
	log   *Logger
	now   func() time.Time
}

func NewQuizLifecycle(store Store, log *Logger) *QuizLifecycle {
	return &QuizLifecycle{
		store: store,
		log:   log.With("component", "QuizLifecycle"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Submit grades answers (question ID to option index) against quiz quizID
// and stores the result. Questions without an answer count as incorrect.
func (l *QuizLifecycle) Submit(ctx context.Context, quizID string, answers map[string]int, timeSpentMinutes int) (graded *GradedQuiz, err error) {
	ctx, span := startSpan(ctx, "QuizLifecycle.Submit", attribute.String("quiz.id", quizID))
	defer func() { endSpan(span, err) }()

	quiz, err := l.store.LoadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.Completed {
		return nil, ErrAlreadyCompleted
	}
	if err := checkAnswers(quiz, answers, timeSpentMinutes); err != nil {
		return nil, err
	}

	grade(quiz, answers, timeSpentMinutes, l.now())

	if err := l.store.CompleteQuiz(ctx, quiz); err != nil {
		if IsAlreadyCompleted(err) {
			l.log.Warn("Lost submission race", "quiz_id", quizID)
		}
		return nil, err
	}

	l.log.Info("Quiz submitted",
		"quiz_id", quiz.ID,
		"student_id", quiz.StudentID,
		"correct", quiz.CorrectAnswers,
		"total", quiz.TotalQuestions,
		"score", *quiz.Score,
	)
	return NewGradedQuiz(quiz), nil
}

func checkAnswers(quiz *Quiz, answers map[string]int, timeSpentMinutes int) error {
	if timeSpentMinutes < 0 {
		return &ValidationError{Reason: "time spent must not be negative"}
	}
	known := make(map[string]int, len(quiz.Questions))
	for _, q := range quiz.Questions {
		known[q.ID] = len(q.Options)
	}
	for id, idx := range answers {
		n, ok := known[id]
		if !ok {
			return &ValidationError{Reason: fmt.Sprintf("unknown question %s", id)}
		}
		if idx < 0 || idx >= n {
			return &ValidationError{Reason: fmt.Sprintf("answer %d out of range for question %s", idx, id)}
		}
	}
	return nil
}

// grade records answers on quiz and fills in its graded state.
func grade(quiz *Quiz, answers map[string]int, timeSpentMinutes int, now time.Time) {
	correct := 0
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		q.StudentAnswerIndex = nil
		if idx, ok := answers[q.ID]; ok {
			a := idx
			q.StudentAnswerIndex = &a
		}
		if q.IsCorrect() {
			correct++
		}
	}

	var score float64
	if quiz.TotalQuestions > 0 {
		score = float64(correct) * 100 / float64(quiz.TotalQuestions)
	}
	spent := timeSpentMinutes
	submitted := now

	quiz.CorrectAnswers = correct
	quiz.Score = &score
	quiz.TimeSpentMinutes = &spent
	quiz.Completed = true
	quiz.SubmittedAt = &submitted
}
