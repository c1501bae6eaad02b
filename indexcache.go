package coursequiz

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// IndexRegistry owns the per-course semantic indices. Indices are built
// off-lock, then published with a single map write under the lock; readers
// only ever see a complete index. Each course carries an epoch that
// Invalidate bumps, so a build started before an invalidation is handed to
// its caller but never published.
type IndexRegistry struct {
	store    Store
	embedder EmbeddingProvider
	cache    VectorCache // optional
	log      *Logger

	namespace   string
	batchSize   int
	concurrency int
	now         func() time.Time

	mu      sync.RWMutex
	indices map[string]*SemanticIndex
	epochs  map[string]uint64

	builds singleflight.Group
}

// IndexRegistryOptions tunes index builds. Zero values pick defaults.
type IndexRegistryOptions struct {
	// Namespace separates cached vectors of different embedding models.
	Namespace   string
	BatchSize   int
	Concurrency int
	Cache       VectorCache
}

func NewIndexRegistry(store Store, embedder EmbeddingProvider, log *Logger, opts IndexRegistryOptions) *IndexRegistry {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &IndexRegistry{
		store:       store,
		embedder:    embedder,
		cache:       opts.Cache,
		log:         log.With("component", "IndexRegistry"),
		namespace:   opts.Namespace,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		now:         time.Now,
		indices:     make(map[string]*SemanticIndex),
		epochs:      make(map[string]uint64),
	}
}

// Invalidate drops the cached index of courseID. Builds already in flight
// for the course will not be published.
func (r *IndexRegistry) Invalidate(courseID string) {
	r.mu.Lock()
	delete(r.indices, courseID)
	r.epochs[courseID]++
	r.mu.Unlock()
	r.log.Debug("Index invalidated", "course_id", courseID)
}

// Cached returns the published index of courseID without building one.
func (r *IndexRegistry) Cached(courseID string) (*SemanticIndex, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.indices[courseID]
	return idx, ok
}

// Get returns the published index of courseID, building it on a miss.
// Concurrent callers for the same course and epoch share one build. The
// shared build does not inherit the caller's cancellation, so a caller that
// gives up returns ctx.Err() without failing the others.
func (r *IndexRegistry) Get(ctx context.Context, courseID string) (*SemanticIndex, error) {
	r.mu.RLock()
	idx, ok := r.indices[courseID]
	epoch := r.epochs[courseID]
	r.mu.RUnlock()
	if ok {
		return idx, nil
	}

	key := courseID + ":" + strconv.FormatUint(epoch, 10)
	buildCtx := context.WithoutCancel(ctx)
	ch := r.builds.DoChan(key, func() (interface{}, error) {
		built, err := r.build(buildCtx, courseID)
		if err != nil {
			return nil, err
		}
		r.publish(courseID, epoch, built)
		return built, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.log.Debug("Joined in-flight index build", "course_id", courseID)
		}
		return res.Val.(*SemanticIndex), nil
	}
}

// Rebuild builds a fresh index for courseID and swaps it in. On failure
// the previously published index, if any, stays in place.
func (r *IndexRegistry) Rebuild(ctx context.Context, courseID string) (*SemanticIndex, error) {
	r.mu.RLock()
	epoch := r.epochs[courseID]
	r.mu.RUnlock()

	built, err := r.build(ctx, courseID)
	if err != nil {
		return nil, err
	}
	r.publish(courseID, epoch, built)
	return built, nil
}

// Query embeds text and returns the topK closest chunks of courseID.
// A course without indexed chunks yields an empty result.
func (r *IndexRegistry) Query(ctx context.Context, courseID, text string, topK int) ([]ScoredChunk, error) {
	idx, err := r.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 || topK <= 0 {
		return []ScoredChunk{}, nil
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return idx.Search(vec, topK), nil
}

func (r *IndexRegistry) publish(courseID string, epoch uint64, idx *SemanticIndex) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epochs[courseID] != epoch {
		r.log.Debug("Discarding stale index build", "course_id", courseID, "epoch", epoch)
		return
	}
	r.indices[courseID] = idx
}

func (r *IndexRegistry) build(ctx context.Context, courseID string) (idx *SemanticIndex, err error) {
	ctx, span := startSpan(ctx, "IndexRegistry.build", attribute.String("course.id", courseID))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	chunks, err := r.store.ListChunks(ctx, courseID, true)
	if err != nil {
		return nil, &IndexingError{CourseID: courseID, Err: fmt.Errorf("failed to load chunks: %w", err)}
	}

	vectors, err := r.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	idx = newSemanticIndex(courseID, chunks, vectors, r.now())
	span.SetAttributes(attribute.Int("index.chunks", idx.Len()))
	r.log.Info("Index built", "course_id", courseID, "chunks", idx.Len(), "elapsed", time.Since(start).String())
	return idx, nil
}

// embedChunks returns one vector per chunk, reusing cached vectors and
// embedding the misses in batches with bounded concurrency.
func (r *IndexRegistry) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	if len(chunks) == 0 {
		return vectors, nil
	}

	keys := make([]string, len(chunks))
	for i, c := range chunks {
		keys[i] = VectorKey(r.namespace, c.Content)
	}

	var missing []int
	if r.cache != nil {
		cached, err := r.cache.GetVectors(ctx, keys)
		if err != nil {
			r.log.Warn("Vector cache lookup failed", "error", err.Error())
			cached = nil
		}
		for i, k := range keys {
			if v, ok := cached[k]; ok && len(v) > 0 {
				vectors[i] = v
			} else {
				missing = append(missing, i)
			}
		}
	} else {
		missing = make([]int, len(chunks))
		for i := range chunks {
			missing[i] = i
		}
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for start := 0; start < len(missing); start += r.batchSize {
		end := start + r.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, i := range batch {
				texts[j] = chunks[i].Content
			}
			vecs, err := r.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return &ProviderError{Provider: "embeddings", Op: "embed", Err: fmt.Errorf("got %d vectors for %d inputs", len(vecs), len(batch))}
			}
			// Batches write disjoint indices.
			for j, i := range batch {
				vectors[i] = vecs[j]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if r.cache != nil {
		fresh := make(map[string][]float32, len(missing))
		for _, i := range missing {
			fresh[keys[i]] = vectors[i]
		}
		if err := r.cache.PutVectors(ctx, fresh); err != nil {
			r.log.Warn("Vector cache store failed", "error", err.Error())
		}
	}
	return vectors, nil
}
