package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryRepository is an in-process Repository for tests and
// single-machine runs without an external vector database.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string // insertion order, for stable listings
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]Record),
	}
}

func (r *MemoryRepository) Upsert(ctx context.Context, records []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		if _, exists := r.records[rec.ID]; !exists {
			r.order = append(r.order, rec.ID)
		}
		r.records[rec.ID] = rec
	}
	return nil
}

func (r *MemoryRepository) Search(ctx context.Context, vec []float32, topK int, filter Filter) ([]Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]Match, 0, len(r.records))
	for _, id := range r.order {
		rec := r.records[id]
		if !matchesFilter(rec, filter) {
			continue
		}
		m := Match{
			ID:       rec.ID,
			Distance: cosineDistance(vec, rec.Vector),
			Record:   withoutVector(rec),
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (r *MemoryRepository) List(ctx context.Context, filter Filter, limit int) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0)
	for _, id := range r.order {
		rec := r.records[id]
		if !matchesFilter(rec, filter) {
			continue
		}
		out = append(out, withoutVector(rec))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) Count(ctx context.Context, filter Filter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if matchesFilter(rec, filter) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteVideo(ctx context.Context, videoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	for _, id := range r.order {
		rec := r.records[id]
		if rec.RecordType == RecordTypeVideoFrame && rec.VideoID == videoID {
			delete(r.records, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

func matchesFilter(rec Record, f Filter) bool {
	if f.RecordType != "" && rec.RecordType != f.RecordType {
		return false
	}
	if f.VideoID != "" && rec.VideoID != f.VideoID {
		return false
	}
	return true
}

func withoutVector(rec Record) Record {
	rec.Vector = nil
	return rec
}

// cosineDistance returns 1 - cos(a, b). Zero-norm vectors are treated as
// maximally distant from everything.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
