package coursequiz

import (
	"math"
	"sort"
	"time"
)

// SemanticIndex is an immutable nearest-neighbour index over the chunks of
// one course. It is never modified after construction.
type SemanticIndex struct {
	courseID string
	builtAt  time.Time
	entries  []indexEntry
}

type indexEntry struct {
	chunkID string
	seq     int
	content string
	vector  []float32
	norm    float64
}

// ScoredChunk is a search hit.
type ScoredChunk struct {
	ChunkID string  `json:"chunkId"`
	Seq     int     `json:"seq"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func newSemanticIndex(courseID string, chunks []Chunk, vectors [][]float32, builtAt time.Time) *SemanticIndex {
	idx := &SemanticIndex{
		courseID: courseID,
		builtAt:  builtAt,
		entries:  make([]indexEntry, len(chunks)),
	}
	for i, c := range chunks {
		idx.entries[i] = indexEntry{
			chunkID: c.ID,
			seq:     c.Seq,
			content: c.Content,
			vector:  vectors[i],
			norm:    norm(vectors[i]),
		}
	}
	return idx
}

// CourseID is the course the index was built for.
func (idx *SemanticIndex) CourseID() string { return idx.courseID }

// Len is the number of indexed chunks.
func (idx *SemanticIndex) Len() int { return len(idx.entries) }

// BuiltAt is when the index was constructed.
func (idx *SemanticIndex) BuiltAt() time.Time { return idx.builtAt }

// Search returns the topK chunks closest to query by cosine similarity,
// highest first; equal scores are ordered by ascending sequence index.
func (idx *SemanticIndex) Search(query []float32, topK int) []ScoredChunk {
	if topK <= 0 || len(idx.entries) == 0 {
		return []ScoredChunk{}
	}
	qn := norm(query)
	hits := make([]ScoredChunk, len(idx.entries))
	for i, e := range idx.entries {
		hits[i] = ScoredChunk{
			ChunkID: e.chunkID,
			Seq:     e.seq,
			Content: e.content,
			Score:   cosine(query, qn, e.vector, e.norm),
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Seq < hits[j].Seq
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, na float64, b []float32, nb float64) float64 {
	if len(a) == 0 || len(a) != len(b) || na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
