package coursequiz

import (
	"context"
	"sort"
	"sync"
)

// Store is the persistence collaborator of the engine. Implementations
// return *NotFoundError for missing courses and quizzes.
type Store interface {
	LoadCourse(ctx context.Context, id string) (*Course, error)
	ListCourses(ctx context.Context, publishedOnly bool) ([]*Course, error)
	SaveCourse(ctx context.Context, course *Course) error

	// ListChunks returns the chunks of a course ordered by Seq.
	ListChunks(ctx context.Context, courseID string, indexedOnly bool) ([]Chunk, error)
	// ReplaceChunks atomically swaps the whole chunk set of a course.
	ReplaceChunks(ctx context.Context, courseID string, chunks []Chunk) error
	CountChunks(ctx context.Context, courseID string) (int, error)

	// SaveQuiz persists a new quiz with all of its questions, or nothing.
	SaveQuiz(ctx context.Context, quiz *Quiz) error
	LoadQuiz(ctx context.Context, id string) (*Quiz, error)
	// CompleteQuiz writes the graded state of quiz if, and only if, the
	// stored quiz is still open. Otherwise it returns ErrAlreadyCompleted.
	CompleteQuiz(ctx context.Context, quiz *Quiz) error
	// ListAttempts returns the quizzes of a student, newest first. An empty
	// courseID lists attempts on every course.
	ListAttempts(ctx context.Context, studentID, courseID string) ([]*Quiz, error)
}

// MemoryStore is an in-process Store. Values are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	courses map[string]*Course
	chunks  map[string][]Chunk
	quizzes map[string]*Quiz
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses: make(map[string]*Course),
		chunks:  make(map[string][]Chunk),
		quizzes: make(map[string]*Quiz),
	}
}

func (s *MemoryStore) LoadCourse(_ context.Context, id string) (*Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, &NotFoundError{Entity: "course", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCourses(_ context.Context, publishedOnly bool) ([]*Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Course, 0, len(s.courses))
	for _, c := range s.courses {
		if publishedOnly && !c.Published {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveCourse(_ context.Context, course *Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *course
	s.courses[course.ID] = &cp
	return nil
}

func (s *MemoryStore) ListChunks(_ context.Context, courseID string, indexedOnly bool) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chunk, 0, len(s.chunks[courseID]))
	for _, c := range s.chunks[courseID] {
		if indexedOnly && !c.Indexed {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) ReplaceChunks(_ context.Context, courseID string, chunks []Chunk) error {
	cp := append([]Chunk(nil), chunks...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Seq < cp[j].Seq })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[courseID] = cp
	return nil
}

func (s *MemoryStore) CountChunks(_ context.Context, courseID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[courseID]), nil
}

func (s *MemoryStore) SaveQuiz(_ context.Context, quiz *Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz.Clone()
	return nil
}

func (s *MemoryStore) LoadQuiz(_ context.Context, id string) (*Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, &NotFoundError{Entity: "quiz", ID: id}
	}
	return q.Clone(), nil
}

func (s *MemoryStore) CompleteQuiz(_ context.Context, quiz *Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.quizzes[quiz.ID]
	if !ok {
		return &NotFoundError{Entity: "quiz", ID: quiz.ID}
	}
	if stored.Completed {
		return ErrAlreadyCompleted
	}
	s.quizzes[quiz.ID] = quiz.Clone()
	return nil
}

func (s *MemoryStore) ListAttempts(_ context.Context, studentID, courseID string) ([]*Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Quiz
	for _, q := range s.quizzes {
		if q.StudentID != studentID || (courseID != "" && q.CourseID != courseID) {
			continue
		}
		out = append(out, q.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(quizzes []*Quiz) {
	sort.SliceStable(quizzes, func(i, j int) bool {
		if !quizzes[i].CreatedAt.Equal(quizzes[j].CreatedAt) {
			return quizzes[i].CreatedAt.After(quizzes[j].CreatedAt)
		}
		return quizzes[i].ID > quizzes[j].ID
	})
}
