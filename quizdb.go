package coursequiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// DB is the SQL implementation of Store, for SQLite or PostgreSQL.
type DB struct {
	db     *sql.DB
	driver string
}

// OpenDB opens a database connection and creates the schema.
func OpenDB(ctx context.Context, driver, dsn string) (*DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// One writer at a time; concurrent transactions would hit SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{db: sqlDB, driver: driver}
	if err := db.CreateTables(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS courses (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			published INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS course_chunks (
			id TEXT PRIMARY KEY,
			course_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			content TEXT NOT NULL,
			indexed INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (course_id) REFERENCES courses(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_course_chunks_course ON course_chunks (course_id, seq)`,
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			course_id TEXT NOT NULL,
			student_id TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			time_limit_minutes INTEGER NOT NULL,
			total_questions INTEGER NOT NULL,
			correct_answers INTEGER NOT NULL DEFAULT 0,
			score DOUBLE PRECISION,
			time_spent_minutes INTEGER,
			completed INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			submitted_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quizzes_student ON quizzes (student_id, course_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			text TEXT NOT NULL,
			options TEXT NOT NULL,
			correct_option_index INTEGER NOT NULL,
			student_answer_index INTEGER,
			explanation TEXT,
			FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_quiz ON questions (quiz_id, position)`,
	}

	for _, query := range queries {
		if _, err := db.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveCourse inserts or updates a course
func (db *DB) SaveCourse(ctx context.Context, course *Course) error {
	_, err := db.db.ExecContext(ctx, db.rebind(
		`INSERT INTO courses (id, title, content, published, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET title = excluded.title, content = excluded.content, published = excluded.published`),
		course.ID, course.Title, course.Content, boolToInt(course.Published), course.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save course: %w", err)
	}
	return nil
}

// LoadCourse retrieves a course by ID
func (db *DB) LoadCourse(ctx context.Context, id string) (*Course, error) {
	var (
		course    Course
		published int
	)
	err := db.db.QueryRowContext(ctx, db.rebind(
		"SELECT id, title, content, published, created_at FROM courses WHERE id = ?"), id,
	).Scan(&course.ID, &course.Title, &course.Content, &published, &course.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "course", ID: id}
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	course.Published = published != 0
	return &course, nil
}

// ListCourses retrieves all courses, oldest first
func (db *DB) ListCourses(ctx context.Context, publishedOnly bool) ([]*Course, error) {
	query := "SELECT id, title, content, published, created_at FROM courses"
	if publishedOnly {
		query += " WHERE published = 1"
	}
	query += " ORDER BY created_at, id"

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get courses: %w", err)
	}
	defer rows.Close()

	var courses []*Course
	for rows.Next() {
		var (
			course    Course
			published int
		)
		if err := rows.Scan(&course.ID, &course.Title, &course.Content, &published, &course.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		course.Published = published != 0
		courses = append(courses, &course)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating courses: %w", err)
	}
	return courses, nil
}

// ListChunks retrieves the chunks of a course in sequence order
func (db *DB) ListChunks(ctx context.Context, courseID string, indexedOnly bool) ([]Chunk, error) {
	query := "SELECT id, course_id, seq, content, indexed FROM course_chunks WHERE course_id = ?"
	if indexedOnly {
		query += " AND indexed = 1"
	}
	query += " ORDER BY seq"

	rows, err := db.db.QueryContext(ctx, db.rebind(query), courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	chunks := []Chunk{}
	for rows.Next() {
		var (
			chunk   Chunk
			indexed int
		)
		if err := rows.Scan(&chunk.ID, &chunk.CourseID, &chunk.Seq, &chunk.Content, &indexed); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk.Indexed = indexed != 0
		chunks = append(chunks, chunk)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return chunks, nil
}

// ReplaceChunks deletes the chunks of a course and inserts the new set in
// one transaction.
func (db *DB) ReplaceChunks(ctx context.Context, courseID string, chunks []Chunk) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.rebind("DELETE FROM course_chunks WHERE course_id = ?"), courseID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	insert := db.rebind("INSERT INTO course_chunks (id, course_id, seq, content, indexed) VALUES (?, ?, ?, ?, ?)")
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, insert, c.ID, courseID, c.Seq, c.Content, boolToInt(c.Indexed)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// CountChunks counts the chunks of a course
func (db *DB) CountChunks(ctx context.Context, courseID string) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, db.rebind("SELECT COUNT(*) FROM course_chunks WHERE course_id = ?"), courseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// SaveQuiz stores a quiz and all of its questions in one transaction
func (db *DB) SaveQuiz(ctx context.Context, quiz *Quiz) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var submittedAt sql.NullTime
	if quiz.SubmittedAt != nil {
		submittedAt = sql.NullTime{Time: quiz.SubmittedAt.UTC(), Valid: true}
	}
	var score sql.NullFloat64
	if quiz.Score != nil {
		score = sql.NullFloat64{Float64: *quiz.Score, Valid: true}
	}
	var timeSpent sql.NullInt64
	if quiz.TimeSpentMinutes != nil {
		timeSpent = sql.NullInt64{Int64: int64(*quiz.TimeSpentMinutes), Valid: true}
	}

	_, err = tx.ExecContext(ctx, db.rebind(
		`INSERT INTO quizzes (id, course_id, student_id, difficulty, time_limit_minutes, total_questions,
			correct_answers, score, time_spent_minutes, completed, created_at, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		quiz.ID, quiz.CourseID, quiz.StudentID, string(quiz.Difficulty), quiz.TimeLimitMinutes, quiz.TotalQuestions,
		quiz.CorrectAnswers, score, timeSpent, boolToInt(quiz.Completed), quiz.CreatedAt.UTC(), submittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}

	insert := db.rebind(
		`INSERT INTO questions (id, quiz_id, position, text, options, correct_option_index, student_answer_index, explanation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, q := range quiz.Questions {
		optionsJSON, err := OptionsToJSON(q.Options)
		if err != nil {
			return err
		}
		var answer sql.NullInt64
		if q.StudentAnswerIndex != nil {
			answer = sql.NullInt64{Int64: int64(*q.StudentAnswerIndex), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, insert, q.ID, quiz.ID, q.Position, q.Text, optionsJSON, q.CorrectOptionIndex, answer, q.Explanation); err != nil {
			return fmt.Errorf("failed to create question: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quiz: %w", err)
	}
	return nil
}

const quizColumns = `id, course_id, student_id, difficulty, time_limit_minutes, total_questions,
	correct_answers, score, time_spent_minutes, completed, created_at, submitted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuiz(row rowScanner) (*Quiz, error) {
	var (
		quiz        Quiz
		difficulty  string
		score       sql.NullFloat64
		timeSpent   sql.NullInt64
		completed   int
		submittedAt sql.NullTime
	)
	err := row.Scan(&quiz.ID, &quiz.CourseID, &quiz.StudentID, &difficulty, &quiz.TimeLimitMinutes, &quiz.TotalQuestions,
		&quiz.CorrectAnswers, &score, &timeSpent, &completed, &quiz.CreatedAt, &submittedAt)
	if err != nil {
		return nil, err
	}
	d, err := ParseDifficulty(difficulty)
	if err != nil {
		return nil, fmt.Errorf("quiz %s: %w", quiz.ID, err)
	}
	quiz.Difficulty = d
	quiz.Completed = completed != 0
	if score.Valid {
		s := score.Float64
		quiz.Score = &s
	}
	if timeSpent.Valid {
		t := int(timeSpent.Int64)
		quiz.TimeSpentMinutes = &t
	}
	if submittedAt.Valid {
		at := submittedAt.Time
		quiz.SubmittedAt = &at
	}
	return &quiz, nil
}

// LoadQuiz retrieves a quiz and its questions by ID
func (db *DB) LoadQuiz(ctx context.Context, id string) (*Quiz, error) {
	quiz, err := scanQuiz(db.db.QueryRowContext(ctx, db.rebind("SELECT "+quizColumns+" FROM quizzes WHERE id = ?"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "quiz", ID: id}
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if quiz.Questions, err = db.questions(ctx, db.db, id); err != nil {
		return nil, err
	}
	return quiz, nil
}

func (db *DB) questions(ctx context.Context, q queryer, quizID string) ([]Question, error) {
	rows, err := q.QueryContext(ctx, db.rebind(
		`SELECT id, quiz_id, position, text, options, correct_option_index, student_answer_index, explanation
		 FROM questions WHERE quiz_id = ? ORDER BY position`), quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	for rows.Next() {
		var (
			question    Question
			optionsJSON string
			answer      sql.NullInt64
			explanation sql.NullString
		)
		err := rows.Scan(&question.ID, &question.QuizID, &question.Position, &question.Text, &optionsJSON,
			&question.CorrectOptionIndex, &answer, &explanation)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if question.Options, err = JSONToOptions(optionsJSON); err != nil {
			return nil, err
		}
		if answer.Valid {
			a := int(answer.Int64)
			question.StudentAnswerIndex = &a
		}
		question.Explanation = explanation.String
		questions = append(questions, question)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return questions, nil
}

// CompleteQuiz claims an open quiz and writes its graded state. The claim
// is the conditional update on completed = 0; losing it means another
// submission got there first.
func (db *DB) CompleteQuiz(ctx context.Context, quiz *Quiz) error {
	if quiz.Score == nil || quiz.SubmittedAt == nil {
		return fmt.Errorf("quiz %s has no graded state", quiz.ID)
	}
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var timeSpent sql.NullInt64
	if quiz.TimeSpentMinutes != nil {
		timeSpent = sql.NullInt64{Int64: int64(*quiz.TimeSpentMinutes), Valid: true}
	}
	res, err := tx.ExecContext(ctx, db.rebind(
		`UPDATE quizzes SET correct_answers = ?, score = ?, time_spent_minutes = ?, completed = 1, submitted_at = ?
		 WHERE id = ? AND completed = 0`),
		quiz.CorrectAnswers, *quiz.Score, timeSpent, quiz.SubmittedAt.UTC(), quiz.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete quiz: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete quiz: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, db.rebind("SELECT COUNT(*) FROM quizzes WHERE id = ?"), quiz.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check quiz: %w", err)
		}
		if exists == 0 {
			return &NotFoundError{Entity: "quiz", ID: quiz.ID}
		}
		return ErrAlreadyCompleted
	}

	update := db.rebind("UPDATE questions SET student_answer_index = ? WHERE id = ? AND quiz_id = ?")
	for _, q := range quiz.Questions {
		var answer sql.NullInt64
		if q.StudentAnswerIndex != nil {
			answer = sql.NullInt64{Int64: int64(*q.StudentAnswerIndex), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, update, answer, q.ID, quiz.ID); err != nil {
			return fmt.Errorf("failed to record answer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit submission: %w", err)
	}
	return nil
}

// ListAttempts retrieves the quizzes of a student, newest first
func (db *DB) ListAttempts(ctx context.Context, studentID, courseID string) ([]*Quiz, error) {
	query := "SELECT " + quizColumns + " FROM quizzes WHERE student_id = ?"
	args := []any{studentID}
	if courseID != "" {
		query += " AND course_id = ?"
		args = append(args, courseID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := db.db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get quizzes: %w", err)
	}
	var quizzes []*Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating quizzes: %w", err)
	}

	// Questions are loaded after the quiz rows are closed; SQLite runs on a
	// single connection.
	for _, quiz := range quizzes {
		if quiz.Questions, err = db.questions(ctx, db.db, quiz.ID); err != nil {
			return nil, err
		}
	}
	return quizzes, nil
}

// OptionsToJSON converts an options slice to its stored JSON form
func OptionsToJSON(options []string) (string, error) {
	data, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("failed to marshal options: %w", err)
	}
	return string(data), nil
}

// JSONToOptions converts stored JSON back to an options slice
func JSONToOptions(optionsJSON string) ([]string, error) {
	var options []string
	err := json.Unmarshal([]byte(optionsJSON), &options)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return options, nil
}
