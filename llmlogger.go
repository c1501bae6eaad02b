package coursequiz

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LLMLogger writes the transcript of one quiz generation: the prompt, the
// raw model reply and the outcome. A nil *LLMLogger discards everything.
type LLMLogger struct {
	file   *os.File
	mu     sync.Mutex
	quizID string
}

// transcriptHeader describes the generation a transcript belongs to.
type transcriptHeader struct {
	CourseID    string
	CourseTitle string
	StudentID   string
	Difficulty  Difficulty
	Questions   int
	ContextLen  int
}

// NewLLMLogger creates <dir>/<quizID>.log. It returns nil, nil when dir is
// empty, which disables transcripts.
func NewLLMLogger(dir, quizID string, hdr transcriptHeader) (*LLMLogger, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", quizID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	logger := &LLMLogger{
		file:   file,
		quizID: quizID,
	}

	logger.Logf("=== Quiz Generation Log ===\n")
	logger.Logf("Quiz ID: %s\n", quizID)
	logger.Logf("Course: %s (%s)\n", hdr.CourseTitle, hdr.CourseID)
	logger.Logf("Student: %s\n", hdr.StudentID)
	logger.Logf("Difficulty: %s\n", hdr.Difficulty)
	logger.Logf("Number of Questions: %d\n", hdr.Questions)
	logger.Logf("Context Length: %d characters\n", hdr.ContextLen)
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("========================\n\n")

	return logger, nil
}

// Logf writes a formatted entry with a timestamp
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.write(format, args...)
}

func (ll *LLMLogger) write(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(ll.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogLLMRequest logs the prompt sent to the model
func (ll *LLMLogger) LogLLMRequest(module, prompt string) {
	ll.Logf("=== LLM REQUEST (%s) ===\n", module)
	ll.Logf("Prompt:\n%s\n", prompt)
	ll.Logf("=====================\n\n")
}

// LogLLMResponse logs the raw model reply
func (ll *LLMLogger) LogLLMResponse(module, response string) {
	ll.Logf("=== LLM RESPONSE (%s) ===\n", module)
	ll.Logf("Response:\n%s\n", response)
	ll.Logf("======================\n\n")
}

// LogOutcome records how the generation ended.
func (ll *LLMLogger) LogOutcome(err error) {
	if ll == nil {
		return
	}
	if err != nil {
		ll.Logf("FAILED: %v\n", err)
		return
	}
	ll.Logf("SUCCEEDED: quiz %s saved\n", ll.quizID)
}

// Close writes the footer and closes the file
func (ll *LLMLogger) Close() error {
	if ll == nil {
		return nil
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file == nil {
		return nil
	}
	ll.write("=== Quiz Generation Complete ===\n")
	ll.write("Completed: %s\n", time.Now().Format(time.RFC3339))
	ll.write("=============================\n")
	err := ll.file.Close()
	ll.file = nil
	return err
}
