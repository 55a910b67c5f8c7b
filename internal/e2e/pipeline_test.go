package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/efebarandurmaz/semanticvideo/internal/daemon"
	"github.com/efebarandurmaz/semanticvideo/internal/extract"
	"github.com/efebarandurmaz/semanticvideo/internal/index"
	"github.com/efebarandurmaz/semanticvideo/internal/search"
	"github.com/efebarandurmaz/semanticvideo/internal/vector"
)

// contentProvider embeds inputs by inspecting their content so frames
// about different subjects land in different regions of the vector
// space. "cat" content and queries map near (1,0), everything else
// near (0,1).
type contentProvider struct{}

func (contentProvider) Name() string { return "content-stub" }

func (contentProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedContent([]byte(text))
	}
	return out, nil
}

func (contentProvider) EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error) {
	return embedContent(data), nil
}

func embedContent(data []byte) []float32 {
	if bytes.Contains(data, []byte("cat")) {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

// writeFrames fakes an extraction run: frame files on disk with known
// content, numbered the way the sampler numbers retained frames.
func writeFrames(t *testing.T, dir string, contents []string) []extract.FrameDescriptor {
	t.Helper()

	frames := make([]extract.FrameDescriptor, len(contents))
	for i, content := range contents {
		path := filepath.Join(dir, "frame_"+string(rune('a'+i))+".jpg")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		frames[i] = extract.FrameDescriptor{Index: i + 1, Path: path}
	}
	return frames
}

func TestPipeline_IndexVideoThenSearchOverHTTP(t *testing.T) {
	ctx := context.Background()
	provider := contentProvider{}
	repo := vector.NewMemory()
	indexer := index.New(provider, repo)

	// Index two videos: one with cat frames early, one with none.
	catFrames := writeFrames(t, t.TempDir(), []string{"a cat sleeping", "a cat yawning", "an empty room"})
	// Put the non-matching frame well past the clustering threshold.
	catFrames[2].Index = 10
	if _, err := indexer.IndexVideo(ctx, "cat-video", "/videos/cat.mp4", catFrames, 1.0, nil); err != nil {
		t.Fatalf("index cat video: %v", err)
	}
	dogFrames := writeFrames(t, t.TempDir(), []string{"a dog running", "a dog barking"})
	if _, err := indexer.IndexVideo(ctx, "dog-video", "/videos/dog.mp4", dogFrames, 1.0, nil); err != nil {
		t.Fatalf("index dog video: %v", err)
	}

	registry := daemon.NewRegistry()
	sampler := extract.NewSampler()
	srv := daemon.NewServer(&daemon.Config{ListenAddr: ":0", WorkDir: t.TempDir()}, daemon.Deps{
		Registry:   registry,
		Jobs:       daemon.NewJobManager(registry, sampler, indexer, nil, t.TempDir(), nil),
		Sampler:    sampler,
		Indexer:    indexer,
		Aggregator: search.NewAggregator(provider, repo),
		Repo:       repo,
		Settings:   &daemon.Settings{FrameRate: 1, DefaultTopK: 5, ClusterThreshold: 2},
	})

	body, _ := json.Marshal(map[string]interface{}{"query": "a cat", "top_k": 5})
	req := httptest.NewRequest(http.MethodPost, "/search_video", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []search.VideoResult `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	top := resp.Results[0]
	if top.VideoID != "cat-video" {
		t.Fatalf("top video = %q, want cat-video", top.VideoID)
	}
	if top.MaxRelevanceScore <= resp.Results[1].MaxRelevanceScore {
		t.Error("top video does not outrank second video")
	}

	// The two matching cat frames at 0s and 1s merge under the 2s
	// clustering threshold; the distant frame stays its own range.
	if len(top.Timestamps) != 2 {
		t.Fatalf("timestamp ranges = %d, want 2: %+v", len(top.Timestamps), top.Timestamps)
	}
	if top.Timestamps[0].Start != 0 || top.Timestamps[0].End != 1 {
		t.Errorf("best range = [%v, %v], want [0, 1]", top.Timestamps[0].Start, top.Timestamps[0].End)
	}
	if top.Timestamps[0].RelevanceScore != 1 {
		t.Errorf("best range score = %v, want 1", top.Timestamps[0].RelevanceScore)
	}
}

func TestPipeline_ImageRoundTrip(t *testing.T) {
	ctx := context.Background()
	provider := contentProvider{}
	repo := vector.NewMemory()
	indexer := index.New(provider, repo)

	if _, err := indexer.IndexImage(ctx, []byte("a cat portrait"), "cat.jpg", "image/jpeg"); err != nil {
		t.Fatalf("index image: %v", err)
	}
	if _, err := indexer.IndexImage(ctx, []byte("a mountain"), "mountain.jpg", "image/jpeg"); err != nil {
		t.Fatalf("index image: %v", err)
	}

	agg := search.NewAggregator(provider, repo)
	results, err := agg.SearchImages(ctx, "a cat", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Filename != "cat.jpg" {
		t.Errorf("top image = %q, want cat.jpg", results[0].Filename)
	}
	if results[0].Score != 1 {
		t.Errorf("score = %v, want 1 for an exact match", results[0].Score)
	}
}

func TestPipeline_EmbedFailureDoesNotStarveBatch(t *testing.T) {
	ctx := context.Background()
	repo := vector.NewMemory()
	indexer := index.New(contentProvider{}, repo)

	frames := writeFrames(t, t.TempDir(), []string{"a cat", "a dog"})
	// A missing frame file fails embedding for that frame only.
	frames = append(frames, extract.FrameDescriptor{Index: 3, Path: "/nonexistent/frame.jpg"})

	result, err := indexer.IndexVideo(ctx, "v1", "/videos/v1.mp4", frames, 1.0, nil)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if result.FramesIndexed != 2 {
		t.Errorf("frames indexed = %d, want 2", result.FramesIndexed)
	}
	if result.Outcomes[2].Status != index.OutcomeEmbedFailed {
		t.Errorf("third frame outcome = %s, want embed_failed", result.Outcomes[2].Status)
	}

	n, err := repo.Count(ctx, vector.Filter{VideoID: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("stored records = %d, want 2", n)
	}
}
