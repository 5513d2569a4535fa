// Package index provides an in-memory vector index over an installed
// knowledge-base snapshot. Fragments and their embeddings are loaded once
// per snapshot generation; the loaded store is immutable and safe for
// concurrent readers.
package index

import (
	"container/heap"
	"math"

	"github.com/lvhr/airea/internal/domain"
)

// Store holds the fragments of one snapshot with embeddings normalized at
// load time, so dot product equals cosine similarity. Brute-force search is
// exact and sub-millisecond at the corpus sizes this serves (<10K documents).
type Store struct {
	fragments []*domain.Fragment
	vectors   [][]float32
}

// FragmentCount returns the number of indexed fragments.
func (s *Store) FragmentCount() int {
	return len(s.fragments)
}

// Search returns up to k fragments ordered by descending cosine similarity
// to the query vector, skipping anything below floor. An empty result is a
// valid outcome, not an error.
func (s *Store) Search(query []float32, k int, floor float32) *domain.RetrievalResult {
	if k <= 0 {
		k = 10
	}
	normalized := normalize(query)

	h := &minHeap{}
	heap.Init(h)
	for i, vec := range s.vectors {
		if len(vec) != len(normalized) {
			continue
		}
		score := dotProduct(normalized, vec)
		if score < floor {
			continue
		}
		scored := domain.ScoredFragment{Fragment: s.fragments[i], Score: score}
		if h.Len() < k {
			heap.Push(h, scored)
		} else if score > (*h)[0].Score {
			(*h)[0] = scored
			heap.Fix(h, 0)
		}
	}

	results := make([]domain.ScoredFragment, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(domain.ScoredFragment)
	}
	return &domain.RetrievalResult{Fragments: results}
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// minHeap keeps the lowest score at the root so top-k selection can evict
// the weakest candidate in O(log k).
type minHeap []domain.ScoredFragment

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(domain.ScoredFragment)) }

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
