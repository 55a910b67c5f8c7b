package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/efebarandurmaz/semanticvideo/internal/extract"
	"github.com/efebarandurmaz/semanticvideo/internal/index"
	"github.com/efebarandurmaz/semanticvideo/internal/search"
	"github.com/efebarandurmaz/semanticvideo/internal/vector"
)

type stubProvider struct{}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (s *stubProvider) EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func newTestServer(t *testing.T) (*Server, *vector.MemoryRepository) {
	t.Helper()

	provider := &stubProvider{}
	repo := vector.NewMemory()
	registry := NewRegistry()
	sampler := extract.NewSampler()
	indexer := index.New(provider, repo)
	settings := &Settings{FrameRate: 1, DefaultTopK: 5, ClusterThreshold: 2}

	srv := NewServer(&Config{ListenAddr: ":0", WorkDir: t.TempDir()}, Deps{
		Registry:   registry,
		Jobs:       NewJobManager(registry, sampler, indexer, nil, t.TempDir(), nil),
		Sampler:    sampler,
		Indexer:    indexer,
		Aggregator: search.NewAggregator(provider, repo),
		Repo:       repo,
		Settings:   settings,
	})
	return srv, repo
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// stallingProvider blocks until the request context expires.
type stallingProvider struct {
	stubProvider
}

func (s *stallingProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRequestTimeout_SearchReturns504(t *testing.T) {
	provider := &stallingProvider{}
	repo := vector.NewMemory()
	registry := NewRegistry()
	sampler := extract.NewSampler()
	indexer := index.New(provider, repo)

	srv := NewServer(&Config{ListenAddr: ":0", WorkDir: t.TempDir(), RequestTimeout: 10 * time.Millisecond}, Deps{
		Registry:   registry,
		Jobs:       NewJobManager(registry, sampler, indexer, nil, t.TempDir(), nil),
		Sampler:    sampler,
		Indexer:    indexer,
		Aggregator: search.NewAggregator(provider, repo),
		Repo:       repo,
		Settings:   &Settings{FrameRate: 1, DefaultTopK: 5, ClusterThreshold: 2},
	})

	w := doJSON(t, srv.Handler(), http.MethodPost, "/search", map[string]interface{}{"query": "anything"})
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504: %s", w.Code, w.Body.String())
	}
}

func TestRequestTimeout_ZeroDisablesDeadline(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

// recordSpans installs an in-memory span recorder as the global tracer
// provider for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func spanNames(recorder *tracetest.SpanRecorder) []string {
	spans := recorder.Ended()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	return names
}

func TestSearchHandlers_EmitSpans(t *testing.T) {
	recorder := recordSpans(t)
	srv, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/search", map[string]interface{}{"query": "q"})
	doJSON(t, h, http.MethodPost, "/search_video", map[string]interface{}{"query": "q"})

	names := spanNames(recorder)
	for _, want := range []string{"search.image", "search.video"} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("span %q not recorded, got %v", want, names)
		}
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}

func TestConfig_GetAndUpdate(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodGet, "/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", w.Code)
	}
	var view SettingsView
	decodeBody(t, w, &view)
	if view.FrameRate != 1 || view.DefaultTopK != 5 {
		t.Errorf("unexpected defaults: %+v", view)
	}

	w = doJSON(t, h, http.MethodPut, "/config", map[string]interface{}{
		"frame_rate":    2.5,
		"default_top_k": 10,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", w.Code)
	}
	decodeBody(t, w, &view)
	if view.FrameRate != 2.5 || view.DefaultTopK != 10 {
		t.Errorf("after update: %+v", view)
	}
	if view.ClusterThreshold != 2 {
		t.Errorf("untouched field changed: %v", view.ClusterThreshold)
	}
}

func TestConfig_RejectsInvalidValues(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPut, "/config", map[string]interface{}{
		"frame_rate": -1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", w.Code)
	}
	var view SettingsView
	decodeBody(t, w, &view)
	if view.FrameRate != 1 {
		t.Errorf("negative frame_rate applied: %v", view.FrameRate)
	}
}

func TestRegisterVideo_AndGet(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodPost, "/videos", map[string]interface{}{
		"path":          path,
		"sampling_rate": 2.0,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var video Video
	decodeBody(t, w, &video)
	if video.ID == "" || video.Status != StatusPending || video.SamplingRate != 2.0 {
		t.Errorf("unexpected video: %+v", video)
	}

	w = doJSON(t, h, http.MethodGet, "/videos/"+video.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/videos", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", w.Code)
	}
	var list struct {
		Videos []Video `json:"videos"`
	}
	decodeBody(t, w, &list)
	if len(list.Videos) != 1 || list.Videos[0].ID != video.ID {
		t.Errorf("list = %+v", list.Videos)
	}
}

func TestRegisterVideo_MissingPath(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/videos", map[string]interface{}{
		"path": "/nonexistent/clip.mp4",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	w = doJSON(t, srv.Handler(), http.MethodPost, "/videos", map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty path status = %d, want 400", w.Code)
	}
}

func TestVideoDetail_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodGet, "/videos/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestExtract_UnknownVideo(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/videos/nope/extract", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCancel_NoRunningJob(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/videos/nope/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestJobs_EmptyList(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodGet, "/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Jobs []Job `json:"jobs"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Jobs) != 0 {
		t.Errorf("jobs = %+v, want empty", resp.Jobs)
	}
}

func TestSearch_BlankQueryRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/search", map[string]interface{}{
		"query": "   ",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestSearchVideo_BlankQueryRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/search_video", map[string]interface{}{
		"query": "",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearch_ReturnsSeededImages(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()

	err := repo.Upsert(ctx, []vector.Record{
		{ID: "a", Vector: []float32{1, 0}, RecordType: vector.RecordTypeImage, Filename: "cat.jpg"},
		{ID: "b", Vector: []float32{0, 1}, RecordType: vector.RecordTypeImage, Filename: "dog.jpg"},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, srv.Handler(), http.MethodPost, "/search", map[string]interface{}{
		"query": "a cat",
		"top_k": 1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []search.ImageResult `json:"results"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	if resp.Results[0].ID != "a" {
		t.Errorf("top result = %q, want a", resp.Results[0].ID)
	}
}

func TestSearchVideo_GroupsFrames(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()

	err := repo.Upsert(ctx, []vector.Record{
		{ID: "f1", Vector: []float32{1, 0}, RecordType: vector.RecordTypeVideoFrame, VideoID: "v1", TimestampSeconds: 1},
		{ID: "f2", Vector: []float32{1, 0}, RecordType: vector.RecordTypeVideoFrame, VideoID: "v1", TimestampSeconds: 2},
		{ID: "f3", Vector: []float32{0, 1}, RecordType: vector.RecordTypeVideoFrame, VideoID: "v2", TimestampSeconds: 9},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, srv.Handler(), http.MethodPost, "/search_video", map[string]interface{}{
		"query": "a cat",
		"top_k": 5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []search.VideoResult `json:"results"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Results) == 0 {
		t.Fatal("no results")
	}
	if resp.Results[0].VideoID != "v1" {
		t.Errorf("top video = %q, want v1", resp.Results[0].VideoID)
	}
}

func TestIndexImage_AndList(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "cat.jpg")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/index_image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["id"] == "" {
		t.Fatal("empty id in response")
	}

	lw := doJSON(t, h, http.MethodGet, "/images", nil)
	if lw.Code != http.StatusOK {
		t.Fatalf("list status = %d", lw.Code)
	}
	var list struct {
		Images []struct {
			ID       string `json:"id"`
			Filename string `json:"filename"`
		} `json:"images"`
	}
	decodeBody(t, lw, &list)
	if len(list.Images) != 1 || list.Images[0].Filename != "cat.jpg" {
		t.Errorf("images = %+v", list.Images)
	}
}

func TestIndexImage_EmptyUpload(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.CreateFormFile("file", "cat.jpg")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/index_image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUploadVideo_BadExtension(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "notes.txt")
	part.Write([]byte("hello"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/videos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "extension") {
		t.Errorf("error body = %s", w.Body.String())
	}
}

func TestDeleteVideo(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()
	h := srv.Handler()

	err := repo.Upsert(ctx, []vector.Record{
		{ID: "f1", Vector: []float32{1}, RecordType: vector.RecordTypeVideoFrame, VideoID: "v1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodDelete, "/videos/v1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	n, err := repo.Count(ctx, vector.Filter{VideoID: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("records left = %d, want 0", n)
	}
}

func TestListVideos_IncludesStoreOnlyVideos(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()

	err := repo.Upsert(ctx, []vector.Record{
		{ID: "f1", Vector: []float32{1}, RecordType: vector.RecordTypeVideoFrame, VideoID: "v1", VideoPath: "/data/v1.mp4"},
		{ID: "f2", Vector: []float32{1}, RecordType: vector.RecordTypeVideoFrame, VideoID: "v1", VideoPath: "/data/v1.mp4"},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, srv.Handler(), http.MethodGet, "/videos", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list struct {
		Videos []Video `json:"videos"`
	}
	decodeBody(t, w, &list)
	if len(list.Videos) != 1 {
		t.Fatalf("videos = %+v", list.Videos)
	}
	v := list.Videos[0]
	if v.ID != "v1" || v.Status != StatusIndexed || v.FramesIndexed != 2 {
		t.Errorf("store-only video = %+v", v)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/search"},
		{http.MethodPost, "/images"},
		{http.MethodDelete, "/config"},
		{http.MethodPost, "/jobs"},
	} {
		w := doJSON(t, h, tc.method, tc.path, nil)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tc.method, tc.path, w.Code)
		}
	}
}
