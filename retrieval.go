package coursequiz

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ContextBuilder turns course material into generation context, indexing
// the course first when it has never been chunked.
type ContextBuilder struct {
	store      Store
	registry   *IndexRegistry
	targetSize int
	log        *Logger
}

func NewContextBuilder(store Store, registry *IndexRegistry, targetSize int, log *Logger) *ContextBuilder {
	if targetSize <= 0 {
		targetSize = 500
	}
	return &ContextBuilder{
		store:      store,
		registry:   registry,
		targetSize: targetSize,
		log:        log.With("component", "ContextBuilder"),
	}
}

// EnsureIndexed indexes course if it has no persisted chunks yet.
func (b *ContextBuilder) EnsureIndexed(ctx context.Context, course *Course) error {
	n, err := b.store.CountChunks(ctx, course.ID)
	if err != nil {
		return &IndexingError{CourseID: course.ID, Err: err}
	}
	if n > 0 {
		return nil
	}
	_, err = b.IndexCourse(ctx, course)
	return err
}

// IndexCourse re-chunks course, replaces its persisted chunks and builds a
// fresh semantic index. It returns the number of chunks.
func (b *ContextBuilder) IndexCourse(ctx context.Context, course *Course) (n int, err error) {
	ctx, span := startSpan(ctx, "ContextBuilder.IndexCourse", attribute.String("course.id", course.ID))
	defer func() { endSpan(span, err) }()

	pieces := Split(course.Content, b.targetSize)
	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{
			ID:       uuid.NewString(),
			CourseID: course.ID,
			Seq:      i,
			Content:  p,
			Indexed:  true,
		}
	}

	if err := b.store.ReplaceChunks(ctx, course.ID, chunks); err != nil {
		return 0, &IndexingError{CourseID: course.ID, Err: err}
	}
	b.registry.Invalidate(course.ID)

	if _, err := b.registry.Get(ctx, course.ID); err != nil {
		return 0, &IndexingError{CourseID: course.ID, Err: err}
	}

	b.log.Info("Course indexed", "course_id", course.ID, "chunks", len(chunks), "target_size", b.targetSize)
	return len(chunks), nil
}

// GetContext returns the first maxChunks indexed chunks of course in
// sequence order, separated by blank lines.
func (b *ContextBuilder) GetContext(ctx context.Context, course *Course, maxChunks int) (string, error) {
	if err := b.EnsureIndexed(ctx, course); err != nil {
		return "", err
	}
	chunks, err := b.store.ListChunks(ctx, course.ID, true)
	if err != nil {
		return "", fmt.Errorf("failed to load chunks: %w", err)
	}
	if maxChunks >= 0 && len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n"), nil
}
