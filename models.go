package coursequiz

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the closed set of quiz tiers. Values outside Easy, Medium
// and Hard are never produced by this package; ParseDifficulty rejects them.
type Difficulty string

const (
	Easy   Difficulty = "EASY"
	Medium Difficulty = "MEDIUM"
	Hard   Difficulty = "HARD"
)

// ParseDifficulty converts a stored or user supplied tier name.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(strings.ToUpper(strings.TrimSpace(s))) {
	case Easy:
		return Easy, nil
	case Medium:
		return Medium, nil
	case Hard:
		return Hard, nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// QuestionCount is the number of questions generated for the tier.
func (d Difficulty) QuestionCount() int {
	switch d {
	case Easy:
		return 5
	case Medium:
		return 7
	case Hard:
		return 10
	}
	panic(fmt.Sprintf("coursequiz: invalid difficulty %q", string(d)))
}

// MinutesPerQuestion is the time budget per question for the tier.
func (d Difficulty) MinutesPerQuestion() int {
	switch d {
	case Easy:
		return 2
	case Medium:
		return 3
	case Hard:
		return 4
	}
	panic(fmt.Sprintf("coursequiz: invalid difficulty %q", string(d)))
}

// TimeLimitMinutes returns the time limit for a quiz of count questions.
func (d Difficulty) TimeLimitMinutes(count int) int {
	return count * d.MinutesPerQuestion()
}

// Guidance is the instruction given to the model for the tier.
func (d Difficulty) Guidance() string {
	switch d {
	case Easy:
		return "Simple, direct questions on the basic concepts."
	case Medium:
		return "Questions that require understanding and applying the concepts."
	case Hard:
		return "Complex questions that require in-depth analysis and synthesis."
	}
	panic(fmt.Sprintf("coursequiz: invalid difficulty %q", string(d)))
}

// Course is the course material owned by the persistence collaborator.
type Course struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is a bounded slice of course text, the unit of retrieval and embedding.
type Chunk struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Seq      int    `json:"seq"` // 0-based, contiguous per course
	Content  string `json:"content"`
	Indexed  bool   `json:"indexed"`
}

// Question is one multiple choice question of a quiz attempt.
type Question struct {
	ID                 string   `json:"id"`
	QuizID             string   `json:"quiz_id"`
	Position           int      `json:"position"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"` // 0-based
	StudentAnswerIndex *int     `json:"student_answer_index,omitempty"`
	Explanation        string   `json:"explanation"`
}

// IsCorrect reports whether the student answered and picked the right option.
func (q Question) IsCorrect() bool {
	return q.StudentAnswerIndex != nil && *q.StudentAnswerIndex == q.CorrectOptionIndex
}

// Quiz is one generated-and-graded attempt of a student on a course.
// Score and SubmittedAt are set if and only if Completed is true.
type Quiz struct {
	ID               string     `json:"id"`
	CourseID         string     `json:"course_id"`
	StudentID        string     `json:"student_id"`
	Difficulty       Difficulty `json:"difficulty"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	TotalQuestions   int        `json:"total_questions"`
	CorrectAnswers   int        `json:"correct_answers"`
	Score            *float64   `json:"score,omitempty"`
	TimeSpentMinutes *int       `json:"time_spent_minutes,omitempty"`
	Completed        bool       `json:"completed"`
	CreatedAt        time.Time  `json:"created_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	Questions        []Question `json:"questions"`
}

// Clone returns a deep copy so stored attempts are never shared with callers.
func (q *Quiz) Clone() *Quiz {
	if q == nil {
		return nil
	}
	c := *q
	if q.Score != nil {
		s := *q.Score
		c.Score = &s
	}
	if q.TimeSpentMinutes != nil {
		t := *q.TimeSpentMinutes
		c.TimeSpentMinutes = &t
	}
	if q.SubmittedAt != nil {
		at := *q.SubmittedAt
		c.SubmittedAt = &at
	}
	c.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		if question.StudentAnswerIndex != nil {
			a := *question.StudentAnswerIndex
			question.StudentAnswerIndex = &a
		}
		c.Questions[i] = question
	}
	return &c
}

// PassingScore is the score a quiz needs to count as passed.
const PassingScore = 70.0

// QuestionView is a question as shown to a student before submission.
// It never carries the correct option or the explanation.
type QuestionView struct {
	ID       string   `json:"id"`
	Position int      `json:"position"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
}

// QuizView is the pre-submission view of an attempt.
type QuizView struct {
	QuizID           string         `json:"quizId"`
	Difficulty       Difficulty     `json:"difficulty"`
	TimeLimitMinutes int            `json:"timeLimitMinutes"`
	Questions        []QuestionView `json:"questions"`
}

// NewQuizView builds the student-facing view of quiz.
func NewQuizView(quiz *Quiz) *QuizView {
	view := &QuizView{
		QuizID:           quiz.ID,
		Difficulty:       quiz.Difficulty,
		TimeLimitMinutes: quiz.TimeLimitMinutes,
		Questions:        make([]QuestionView, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		view.Questions = append(view.Questions, QuestionView{
			ID:       q.ID,
			Position: q.Position,
			Text:     q.Text,
			Options:  append([]string(nil), q.Options...),
		})
	}
	return view
}

// QuestionResult is a graded question, shown after submission.
type QuestionResult struct {
	ID                 string   `json:"id"`
	Position           int      `json:"position"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	StudentAnswerIndex *int     `json:"studentAnswerIndex,omitempty"`
	Correct            bool     `json:"correct"`
	Explanation        string   `json:"explanation"`
}

// GradedQuiz is a completed attempt together with its per-question results.
type GradedQuiz struct {
	Quiz    *Quiz            `json:"quiz"`
	Passed  bool             `json:"passed"`
	Results []QuestionResult `json:"results"`
}

// GradedQuizView is the summary returned to the caller after submission.
type GradedQuizView struct {
	QuizID         string  `json:"quizId"`
	Score          float64 `json:"score"`
	CorrectAnswers int     `json:"correctAnswers"`
	TotalQuestions int     `json:"totalQuestions"`
	Passed         bool    `json:"passed"`
}

// NewGradedQuiz builds the graded form of a completed quiz.
func NewGradedQuiz(quiz *Quiz) *GradedQuiz {
	g := &GradedQuiz{Quiz: quiz, Results: make([]QuestionResult, 0, len(quiz.Questions))}
	if quiz.Score != nil {
		g.Passed = *quiz.Score >= PassingScore
	}
	for _, q := range quiz.Questions {
		g.Results = append(g.Results, QuestionResult{
			ID:                 q.ID,
			Position:           q.Position,
			Text:               q.Text,
			Options:            q.Options,
			CorrectOptionIndex: q.CorrectOptionIndex,
			StudentAnswerIndex: q.StudentAnswerIndex,
			Correct:            q.IsCorrect(),
			Explanation:        q.Explanation,
		})
	}
	return g
}

// View returns the summary of g.
func (g *GradedQuiz) View() GradedQuizView {
	v := GradedQuizView{
		QuizID:         g.Quiz.ID,
		CorrectAnswers: g.Quiz.CorrectAnswers,
		TotalQuestions: g.Quiz.TotalQuestions,
		Passed:         g.Passed,
	}
	if g.Quiz.Score != nil {
		v.Score = *g.Quiz.Score
	}
	return v
}

// HistoryStats summarizes the completed attempts of a student.
type HistoryStats struct {
	Attempts     int     `json:"attempts"`
	AverageScore float64 `json:"averageScore"`
	SuccessRate  float64 `json:"successRate"`
	BestScore    float64 `json:"bestScore"`
	Quizzes      []*Quiz `json:"quizzes"`
}

// CourseProgress summarizes a student's standing on one course.
type CourseProgress struct {
	CourseID              string     `json:"courseId"`
	QuizCount             int        `json:"quizCount"`
	CompletedCount        int        `json:"completedCount"`
	AverageScore          float64    `json:"averageScore"`
	RecommendedDifficulty Difficulty `json:"recommendedDifficulty"`
	CanValidate           bool       `json:"canValidate"`
	Indexed               bool       `json:"indexed"` // chunks are persisted
	ChunkCount            int        `json:"chunkCount"`
}
