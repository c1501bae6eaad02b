package coursequiz

import (
	"context"
	"fmt"
)

const (
	// recentWindow is how many of the latest completed attempts drive the
	// tier recommendation and course validation.
	recentWindow = 3

	hardThreshold   = 80.0
	mediumThreshold = 60.0
)

// DifficultyAdvisor derives the next difficulty tier and course
// completion eligibility from a student's attempt history.
type DifficultyAdvisor struct {
	store Store
}

func NewDifficultyAdvisor(store Store) *DifficultyAdvisor {
	return &DifficultyAdvisor{store: store}
}

// completedAttempts returns the completed attempts of studentID on
// courseID, newest first.
func (a *DifficultyAdvisor) completedAttempts(ctx context.Context, studentID, courseID string) ([]*Quiz, error) {
	attempts, err := a.store.ListAttempts(ctx, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	completed := attempts[:0]
	for _, q := range attempts {
		if q.Completed && q.Score != nil {
			completed = append(completed, q)
		}
	}
	return completed, nil
}

// Recommend picks the tier for the next quiz: EASY without history,
// otherwise by the average of the latest three completed scores.
func (a *DifficultyAdvisor) Recommend(ctx context.Context, studentID, courseID string) (Difficulty, error) {
	completed, err := a.completedAttempts(ctx, studentID, courseID)
	if err != nil {
		return "", err
	}
	if len(completed) == 0 {
		return Easy, nil
	}
	if len(completed) > recentWindow {
		completed = completed[:recentWindow]
	}
	return tierFor(averageScore(completed)), nil
}

func tierFor(avg float64) Difficulty {
	switch {
	case avg >= hardThreshold:
		return Hard
	case avg >= mediumThreshold:
		return Medium
	default:
		return Easy
	}
}

// CanValidateCourse reports whether the latest three completed attempts
// all passed.
func (a *DifficultyAdvisor) CanValidateCourse(ctx context.Context, studentID, courseID string) (bool, error) {
	completed, err := a.completedAttempts(ctx, studentID, courseID)
	if err != nil {
		return false, err
	}
	if len(completed) < recentWindow {
		return false, nil
	}
	for _, q := range completed[:recentWindow] {
		if *q.Score < PassingScore {
			return false, nil
		}
	}
	return true, nil
}

// Recommendation returns study advice based on the average of every
// completed attempt on the course.
func (a *DifficultyAdvisor) Recommendation(ctx context.Context, studentID, courseID string) (string, error) {
	completed, err := a.completedAttempts(ctx, studentID, courseID)
	if err != nil {
		return "", err
	}
	if len(completed) == 0 {
		return "Start by taking your first quiz to gauge your level.", nil
	}
	switch avg := averageScore(completed); {
	case avg >= hardThreshold:
		return "Excellent work! You have a solid grasp of this course. Keep going with hard quizzes.", nil
	case avg >= mediumThreshold:
		return "Good progress! Review the concepts you struggled with and try again.", nil
	default:
		return "Take the time to reread the course carefully before taking another quiz.", nil
	}
}

// Progress summarizes the standing of studentID on courseID.
func (a *DifficultyAdvisor) Progress(ctx context.Context, studentID, courseID string) (*CourseProgress, error) {
	attempts, err := a.store.ListAttempts(ctx, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	p := &CourseProgress{CourseID: courseID, QuizCount: len(attempts)}

	var completed []*Quiz
	for _, q := range attempts {
		if q.Completed && q.Score != nil {
			completed = append(completed, q)
		}
	}
	p.CompletedCount = len(completed)
	p.AverageScore = averageScore(completed)

	if p.RecommendedDifficulty, err = a.Recommend(ctx, studentID, courseID); err != nil {
		return nil, err
	}
	if p.CanValidate, err = a.CanValidateCourse(ctx, studentID, courseID); err != nil {
		return nil, err
	}
	return p, nil
}

// History aggregates the completed attempts of studentID across courses.
func (a *DifficultyAdvisor) History(ctx context.Context, studentID string) (*HistoryStats, error) {
	completed, err := a.completedAttempts(ctx, studentID, "")
	if err != nil {
		return nil, err
	}
	stats := &HistoryStats{Attempts: len(completed), Quizzes: completed}
	if len(completed) == 0 {
		stats.Quizzes = []*Quiz{}
		return stats, nil
	}

	passed := 0
	for _, q := range completed {
		if *q.Score >= PassingScore {
			passed++
		}
		if *q.Score > stats.BestScore {
			stats.BestScore = *q.Score
		}
	}
	stats.AverageScore = averageScore(completed)
	stats.SuccessRate = float64(passed) * 100 / float64(len(completed))
	return stats, nil
}

func averageScore(quizzes []*Quiz) float64 {
	if len(quizzes) == 0 {
		return 0
	}
	var sum float64
	for _, q := range quizzes {
		sum += *q.Score
	}
	return sum / float64(len(quizzes))
}
