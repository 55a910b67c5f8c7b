// Package daemon is the HTTP surface of the video search service:
// ingestion, search, registry, jobs, and runtime configuration.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/semanticvideo/internal/extract"
	"github.com/efebarandurmaz/semanticvideo/internal/index"
	"github.com/efebarandurmaz/semanticvideo/internal/observability"
	"github.com/efebarandurmaz/semanticvideo/internal/search"
	"github.com/efebarandurmaz/semanticvideo/internal/vector"
)

const maxUploadBytes = 512 << 20 // videos can be large

// videoExtensions lists the upload extensions accepted for ingestion.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// Config holds daemon server configuration.
type Config struct {
	ListenAddr string // e.g. ":8080"
	WorkDir    string // uploads and extracted frames live here
	Version    string

	// RequestTimeout bounds each request's context. Zero disables the
	// deadline. The SSE stream is exempt since it lives until the
	// client disconnects.
	RequestTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{ListenAddr: ":8080", WorkDir: os.TempDir(), RequestTimeout: 2 * time.Minute}
}

// Deps bundles the components the daemon serves.
type Deps struct {
	Registry   *Registry
	Jobs       *JobManager
	Sampler    *extract.Sampler
	Indexer    *index.Indexer
	Aggregator *search.Aggregator
	Repo       vector.Repository
	Hub        *Hub
	Settings   *Settings
	Metrics    *observability.DaemonMetrics
	Audit      *observability.AuditLogger
}

// Server is the daemon HTTP server.
type Server struct {
	config   *Config
	registry *Registry
	jobs     *JobManager
	sampler  *extract.Sampler
	indexer  *index.Indexer
	agg      *search.Aggregator
	repo     vector.Repository
	hub      *Hub
	folders  *FolderRegistry
	settings *Settings
	metrics  *observability.DaemonMetrics
	audit    *observability.AuditLogger
	server   *http.Server
}

// NewServer creates a new daemon server.
func NewServer(config *Config, deps Deps) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{
		config:   config,
		registry: deps.Registry,
		jobs:     deps.Jobs,
		sampler:  deps.Sampler,
		indexer:  deps.Indexer,
		agg:      deps.Aggregator,
		repo:     deps.Repo,
		hub:      deps.Hub,
		folders:  NewFolderRegistry(),
		settings: deps.Settings,
		metrics:  deps.Metrics,
		audit:    deps.Audit,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/index_image", s.handleIndexImage)
	mux.HandleFunc("/images", s.handleImages)
	mux.HandleFunc("/videos", s.handleVideos)
	mux.HandleFunc("/videos/", s.handleVideoDetail)
	mux.HandleFunc("/folders", s.handleFolders)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/search", s.handleSearchImages)
	mux.HandleFunc("/search_video", s.handleSearchVideos)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/events", s.handleSSE)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	// Wrap with CORS, logging, and per-request deadline middleware
	handler := corsMiddleware(loggingMiddleware(timeoutMiddleware(config.RequestTimeout, mux)))

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      handler,
		ReadTimeout:  5 * time.Minute, // large uploads
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving the daemon API.
func (s *Server) Start() error {
	slog.Info("Starting daemon server", "addr", s.config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("daemon server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping daemon server")
	return s.server.Shutdown(ctx)
}

// handleIndexImage handles POST /index_image
func (s *Server) handleIndexImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, header, err := readUpload(r, "file")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	contentType := header.Header.Get("Content-Type")
	start := time.Now()
	id, err := s.indexer.IndexImage(r.Context(), data, header.Filename, contentType)
	if s.metrics != nil {
		s.metrics.ImagesIndexedTotal.Inc()
	}
	if s.audit != nil {
		s.audit.LogImageIndex(r.Context(), id, header.Filename, len(data), err)
	}
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}

	slog.Info("image indexed", "id", id, "filename", header.Filename, "duration", time.Since(start))
	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleImages handles GET /images
func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := s.repo.List(r.Context(), vector.Filter{RecordType: vector.RecordTypeImage}, 1000)
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}

	type imageEntry struct {
		ID          string `json:"id"`
		Filename    string `json:"filename"`
		ContentType string `json:"content_type,omitempty"`
	}
	images := make([]imageEntry, 0, len(records))
	for _, rec := range records {
		images = append(images, imageEntry{ID: rec.ID, Filename: rec.Filename, ContentType: rec.ContentType})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"images": images})
}

// handleVideos handles GET /videos (registry listing) and POST /videos
// (multipart upload with synchronous ingestion, or JSON registration of
// a local file for asynchronous jobs).
func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listVideos(w, r)
	case http.MethodPost:
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "multipart/form-data") {
			s.uploadVideo(w, r)
		} else {
			s.registerVideo(w, r)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// listVideos merges the in-memory registry with video IDs found in the
// vector store, so indexed videos survive a daemon restart.
func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	videos := s.registry.List()
	known := make(map[string]bool, len(videos))
	for _, v := range videos {
		known[v.ID] = true
	}

	records, err := s.repo.List(r.Context(), vector.Filter{RecordType: vector.RecordTypeVideoFrame}, 10000)
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}

	counts := make(map[string]int)
	paths := make(map[string]string)
	for _, rec := range records {
		if rec.VideoID == "" {
			continue
		}
		counts[rec.VideoID]++
		paths[rec.VideoID] = rec.VideoPath
	}
	for id, n := range counts {
		if known[id] {
			continue
		}
		videos = append(videos, Video{
			ID:            id,
			Path:          paths[id],
			Status:        StatusIndexed,
			FramesIndexed: n,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"videos": videos})
}

// uploadVideo handles the synchronous multipart ingestion path: store
// the upload, extract frames, index them, and answer with the batch
// counts.
func (s *Server) uploadVideo(w http.ResponseWriter, r *http.Request) {
	data, header, err := readUpload(r, "file")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !videoExtensions[ext] {
		respondError(w, http.StatusBadRequest, fmt.Errorf("unsupported video extension %q", ext))
		return
	}

	samplingRate := s.settings.View().FrameRate
	if v := r.FormValue("sampling_rate"); v != "" {
		var rate float64
		if _, err := fmt.Sscanf(v, "%g", &rate); err != nil || rate <= 0 {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid sampling_rate %q", v))
			return
		}
		samplingRate = rate
	}

	videoID := uuid.NewString()
	videoPath := filepath.Join(s.config.WorkDir, "videos", videoID+ext)
	if err := os.MkdirAll(filepath.Dir(videoPath), 0o755); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if err := os.WriteFile(videoPath, data, 0o644); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	start := time.Now()
	framesDir := filepath.Join(s.config.WorkDir, "frames", videoID)
	extractCtx, extractSpan := observability.StartExtractSpan(r.Context(), videoID, samplingRate)
	frames, err := s.sampler.Sample(extractCtx, videoPath, framesDir, samplingRate)
	observability.RecordExtractResult(extractSpan, len(frames), time.Since(start))
	observability.RecordError(extractSpan, err)
	extractSpan.End()
	if s.audit != nil {
		s.audit.LogExtract(r.Context(), videoID, samplingRate, len(frames), time.Since(start), err)
	}
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordExtraction(time.Since(start), len(frames))
	}

	indexStart := time.Now()
	indexCtx, indexSpan := observability.StartIndexSpan(r.Context(), videoID, len(frames))
	result, err := s.indexer.IndexVideo(indexCtx, videoID, videoPath, frames, samplingRate, nil)
	framesIndexed, embedFailures, storageFailures := 0, 0, 0
	if result != nil {
		framesIndexed = result.FramesIndexed
		for _, o := range result.Outcomes {
			switch o.Status {
			case index.OutcomeEmbedFailed:
				embedFailures++
			case index.OutcomeStorageFailed:
				storageFailures++
			}
		}
	}
	observability.RecordIndexResult(indexSpan, framesIndexed, embedFailures, storageFailures)
	observability.RecordError(indexSpan, err)
	indexSpan.End()
	if s.metrics != nil {
		s.metrics.RecordVideoIndex(time.Since(indexStart), framesIndexed, embedFailures, errors.Is(err, index.ErrStorageFailure))
	}
	if s.audit != nil {
		s.audit.LogVideoIndex(r.Context(), videoID, time.Since(indexStart), framesIndexed, embedFailures, err)
	}
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}

	now := time.Now().UTC()
	s.registry.Add(&Video{
		ID:              videoID,
		Path:            videoPath,
		Status:          StatusIndexed,
		SamplingRate:    samplingRate,
		FramesExtracted: len(frames),
		FramesIndexed:   result.FramesIndexed,
		RegisteredAt:    now,
		IndexedAt:       &now,
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"video_id":         videoID,
		"frames_extracted": result.FramesExtracted,
		"frames_indexed":   result.FramesIndexed,
	})
}

// registerVideo handles JSON registration of a video that already lives
// on the daemon's filesystem; indexing happens later through a job.
func (s *Server) registerVideo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path         string  `json:"path"`
		SamplingRate float64 `json:"sampling_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		respondError(w, http.StatusBadRequest, fmt.Errorf("path is required"))
		return
	}
	if _, err := os.Stat(req.Path); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("video path: %w", err))
		return
	}
	if req.SamplingRate <= 0 {
		req.SamplingRate = s.settings.View().FrameRate
	}

	video := &Video{
		ID:           uuid.NewString(),
		Path:         req.Path,
		Status:       StatusPending,
		SamplingRate: req.SamplingRate,
		RegisteredAt: time.Now().UTC(),
	}
	s.registry.Add(video)
	if s.audit != nil {
		s.audit.LogVideoRegister(r.Context(), video.ID, video.Path)
	}

	respondJSON(w, http.StatusCreated, video)
}

// handleVideoDetail handles /videos/{id}, /videos/{id}/file,
// /videos/{id}/extract and /videos/{id}/cancel.
func (s *Server) handleVideoDetail(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/videos/")
	parts := strings.SplitN(path, "/", 2)

	if len(parts) == 0 || parts[0] == "" {
		respondError(w, http.StatusBadRequest, fmt.Errorf("video ID required"))
		return
	}
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		video, ok := s.registry.Get(id)
		if !ok {
			respondError(w, http.StatusNotFound, fmt.Errorf("video %s not found", id))
			return
		}
		respondJSON(w, http.StatusOK, video)

	case action == "" && r.Method == http.MethodDelete:
		err := s.repo.DeleteVideo(r.Context(), id)
		if s.audit != nil {
			s.audit.LogVideoDelete(r.Context(), id, err)
		}
		if err != nil {
			respondError(w, http.StatusBadGateway, err)
			return
		}
		s.registry.Delete(id)
		w.WriteHeader(http.StatusNoContent)

	case action == "file" && r.Method == http.MethodGet:
		video, ok := s.registry.Get(id)
		if !ok {
			respondError(w, http.StatusNotFound, fmt.Errorf("video %s not found", id))
			return
		}
		http.ServeFile(w, r, video.Path)

	case action == "extract" && r.Method == http.MethodPost:
		var req struct {
			SamplingRate float64 `json:"sampling_rate"`
		}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&req) // body optional
		}
		job, err := s.jobs.Start(id, req.SamplingRate)
		if err != nil {
			status := http.StatusConflict
			if errors.Is(err, ErrJobNotFound) {
				status = http.StatusNotFound
			}
			respondError(w, status, err)
			return
		}
		if s.audit != nil {
			s.audit.LogJobStart(r.Context(), job.ID, id, req.SamplingRate)
		}
		respondJSON(w, http.StatusAccepted, job)

	case action == "cancel" && r.Method == http.MethodPost:
		job, err := s.jobs.CancelVideo(id)
		if err != nil {
			respondError(w, http.StatusNotFound, err)
			return
		}
		if s.audit != nil {
			s.audit.LogJobCancel(r.Context(), job.ID, id)
		}
		respondJSON(w, http.StatusOK, job)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobs handles GET /jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": s.jobs.List()})
}

// handleSearchImages handles POST /search
func (s *Server) handleSearchImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.settings.View().DefaultTopK
	}

	ctx, span := observability.StartSearchSpan(r.Context(), "image", req.TopK)
	defer span.End()

	start := time.Now()
	results, err := s.agg.SearchImages(ctx, req.Query, req.TopK)
	if s.metrics != nil {
		s.metrics.RecordSearch(time.Since(start))
	}
	if err != nil {
		observability.RecordError(span, err)
		respondError(w, statusForError(err), err)
		return
	}
	observability.RecordSearchResult(span, len(results), len(results))
	if s.audit != nil {
		s.audit.LogSearchImage(r.Context(), req.Query, req.TopK, len(results), time.Since(start))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// handleSearchVideos handles POST /search_video
func (s *Server) handleSearchVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Query            string   `json:"query"`
		TopK             int      `json:"top_k"`
		ClusterThreshold *float64 `json:"cluster_threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	settings := s.settings.View()
	if req.TopK <= 0 {
		req.TopK = settings.DefaultTopK
	}
	threshold := settings.ClusterThreshold
	if req.ClusterThreshold != nil {
		threshold = *req.ClusterThreshold
	}

	ctx, span := observability.StartSearchSpan(r.Context(), "video", req.TopK)
	defer span.End()

	start := time.Now()
	results, err := s.agg.SearchVideos(ctx, req.Query, req.TopK, threshold)
	if s.metrics != nil {
		s.metrics.RecordSearch(time.Since(start))
	}
	if err != nil {
		observability.RecordError(span, err)
		respondError(w, statusForError(err), err)
		return
	}
	matched := 0
	for _, res := range results {
		matched += len(res.Timestamps)
	}
	observability.RecordSearchResult(span, matched, len(results))
	if s.audit != nil {
		s.audit.LogSearchVideo(r.Context(), req.Query, req.TopK, len(results), time.Since(start))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// handleConfig handles GET and PUT /config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, s.settings.View())

	case http.MethodPut:
		var req struct {
			FrameRate        *float64 `json:"frame_rate"`
			DefaultTopK      *int     `json:"default_top_k"`
			ClusterThreshold *float64 `json:"cluster_threshold"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
		changed := s.settings.Apply(req.FrameRate, req.DefaultTopK, req.ClusterThreshold)
		if s.audit != nil && len(changed) > 0 {
			s.audit.LogConfigUpdate(r.Context(), changed)
		}
		respondJSON(w, http.StatusOK, s.settings.View())

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHealth handles GET /health (quick liveness; the dedicated
// health server carries the full component checks).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleSSE handles GET /events (Server-Sent Events)
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.hub == nil {
		http.Error(w, "Events not enabled", http.StatusNotFound)
		return
	}

	client, err := NewClient(s.hub, w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	s.hub.Register(client)
	defer s.hub.Unregister(client)

	slog.Info("SSE client connected")

	connEvent := &Event{Type: "connected", Timestamp: time.Now()}
	data, _ := json.Marshal(connEvent)
	client.send(data)

	go client.KeepAlive(30 * time.Second)

	// Block until client disconnects
	<-r.Context().Done()
	slog.Info("SSE client disconnected")
}

// readUpload extracts a single multipart file field.
func readUpload(r *http.Request, field string) ([]byte, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("parse multipart form: %w", err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, fmt.Errorf("form file %q: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("empty upload")
	}
	return data, header, nil
}

// statusForError maps domain sentinels to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidInput),
		errors.Is(err, index.ErrInvalidInput),
		errors.Is(err, extract.ErrInvalidRate),
		errors.Is(err, extract.ErrSourceUnreadable):
		return http.StatusBadRequest
	case errors.Is(err, index.ErrStorageFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

// corsMiddleware adds CORS headers for local development
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware applies the configured deadline to each request
// context. Embedding and extraction then abort when it expires, and
// statusForError turns the deadline error into a 504.
func timeoutMiddleware(timeout time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if timeout <= 0 || r.URL.Path == "/events" {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
