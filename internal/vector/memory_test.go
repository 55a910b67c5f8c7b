package vector

import (
	"context"
	"math"
	"testing"
)

func TestMemory_UpsertAndSearch(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	err := repo.Upsert(ctx, []Record{
		{ID: "a", Vector: []float32{1, 0}, RecordType: RecordTypeImage, Filename: "cat.jpg"},
		{ID: "b", Vector: []float32{0, 1}, RecordType: RecordTypeImage, Filename: "dog.jpg"},
		{ID: "c", Vector: []float32{1, 0}, RecordType: RecordTypeVideoFrame, VideoID: "v1", FrameNumber: 1},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	matches, err := repo.Search(ctx, []float32{1, 0}, 10, Filter{RecordType: RecordTypeImage})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 image matches, got %d", len(matches))
	}
	if matches[0].ID != "a" {
		t.Errorf("expected closest match 'a', got %q", matches[0].ID)
	}
	if matches[0].Distance > 1e-6 {
		t.Errorf("identical vector should have ~0 distance, got %f", matches[0].Distance)
	}
	if math.Abs(matches[1].Distance-1.0) > 1e-6 {
		t.Errorf("orthogonal vector should have distance 1, got %f", matches[1].Distance)
	}
}

func TestMemory_SearchRespectsTopK(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	var records []Record
	for i := 0; i < 20; i++ {
		records = append(records, Record{
			ID:         string(rune('a' + i)),
			Vector:     []float32{float32(i), 1},
			RecordType: RecordTypeImage,
		})
	}
	if err := repo.Upsert(ctx, records); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	matches, err := repo.Search(ctx, []float32{0, 1}, 5, Filter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 5 {
		t.Errorf("expected 5 matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Errorf("matches not ordered by distance at %d", i)
		}
	}
}

func TestMemory_ListFiltersAndLimits(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	err := repo.Upsert(ctx, []Record{
		{ID: "1", Vector: []float32{1}, RecordType: RecordTypeVideoFrame, VideoID: "v1"},
		{ID: "2", Vector: []float32{1}, RecordType: RecordTypeVideoFrame, VideoID: "v2"},
		{ID: "3", Vector: []float32{1}, RecordType: RecordTypeImage},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	frames, err := repo.List(ctx, Filter{RecordType: RecordTypeVideoFrame}, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(frames) != 2 {
		t.Errorf("expected 2 frame records, got %d", len(frames))
	}

	v1, err := repo.List(ctx, Filter{RecordType: RecordTypeVideoFrame, VideoID: "v1"}, 0)
	if err != nil {
		t.Fatalf("list v1: %v", err)
	}
	if len(v1) != 1 || v1[0].ID != "1" {
		t.Errorf("expected only record '1' for v1, got %v", v1)
	}

	limited, err := repo.List(ctx, Filter{}, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 records with limit, got %d", len(limited))
	}
}

func TestMemory_ListEmptyIsNotError(t *testing.T) {
	repo := NewMemory()
	records, err := repo.List(context.Background(), Filter{RecordType: RecordTypeImage}, 0)
	if err != nil {
		t.Fatalf("empty list should not error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty result, got %d", len(records))
	}
}

func TestMemory_DeleteVideo(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	err := repo.Upsert(ctx, []Record{
		{ID: "1", Vector: []float32{1}, RecordType: RecordTypeVideoFrame, VideoID: "v1"},
		{ID: "2", Vector: []float32{1}, RecordType: RecordTypeVideoFrame, VideoID: "v1"},
		{ID: "3", Vector: []float32{1}, RecordType: RecordTypeVideoFrame, VideoID: "v2"},
		{ID: "4", Vector: []float32{1}, RecordType: RecordTypeImage},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := repo.DeleteVideo(ctx, "v1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	n, err := repo.Count(ctx, Filter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 records after delete, got %d", n)
	}

	v1, _ := repo.Count(ctx, Filter{VideoID: "v1"})
	if v1 != 0 {
		t.Errorf("expected 0 records for v1, got %d", v1)
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero_norm", []float32{0, 0}, []float32{1, 0}, 1},
		{"length_mismatch", []float32{1}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("cosineDistance = %f, want %f", got, tt.want)
			}
		})
	}
}
