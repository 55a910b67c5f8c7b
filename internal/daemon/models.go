package daemon

import (
	"sort"
	"sync"
	"time"
)

// VideoStatus represents the ingestion state of a registered video.
type VideoStatus string

const (
	StatusPending    VideoStatus = "pending"
	StatusExtracting VideoStatus = "extracting"
	StatusIndexing   VideoStatus = "indexing"
	StatusIndexed    VideoStatus = "indexed"
	StatusFailed     VideoStatus = "failed"
	StatusCancelled  VideoStatus = "cancelled"
)

// Video is one entry in the video registry.
type Video struct {
	ID              string      `json:"id"`
	Path            string      `json:"path"`
	Status          VideoStatus `json:"status"`
	SamplingRate    float64     `json:"sampling_rate"`
	FramesExtracted int         `json:"frames_extracted"`
	FramesIndexed   int         `json:"frames_indexed"`
	RegisteredAt    time.Time   `json:"registered_at"`
	IndexedAt       *time.Time  `json:"indexed_at,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobExtracting JobStatus = "extracting"
	JobIndexing   JobStatus = "indexing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Job tracks one asynchronous extract-and-index run.
type Job struct {
	ID          string     `json:"id"`
	VideoID     string     `json:"video_id"`
	Status      JobStatus  `json:"status"`
	FramesDone  int        `json:"frames_done"`
	FramesTotal int        `json:"frames_total"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Event is a real-time daemon event delivered over SSE.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	VideoID   string      `json:"video_id,omitempty"`
	JobID     string      `json:"job_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Registry provides thread-safe in-memory storage for registered videos.
type Registry struct {
	mu     sync.RWMutex
	videos map[string]*Video
}

// NewRegistry creates a new video registry.
func NewRegistry() *Registry {
	return &Registry{
		videos: make(map[string]*Video),
	}
}

// Add registers a video.
func (r *Registry) Add(v *Video) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos[v.ID] = v
}

// Get retrieves a video by ID. The returned copy is safe to read
// without holding the registry lock.
func (r *Registry) Get(id string) (Video, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.videos[id]
	if !ok {
		return Video{}, false
	}
	return *v, true
}

// List returns all registered videos sorted by RegisteredAt descending.
func (r *Registry) List() []Video {
	r.mu.RLock()
	defer r.mu.RUnlock()

	videos := make([]Video, 0, len(r.videos))
	for _, v := range r.videos {
		videos = append(videos, *v)
	}

	sort.Slice(videos, func(i, j int) bool {
		return videos[i].RegisteredAt.After(videos[j].RegisteredAt)
	})

	return videos
}

// FindByPath returns the registered video with the given source path,
// if any. Folder scans use it to keep re-scans idempotent.
func (r *Registry) FindByPath(path string) (Video, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.videos {
		if v.Path == path {
			return *v, true
		}
	}
	return Video{}, false
}

// Update performs a thread-safe update on a registered video.
func (r *Registry) Update(id string, fn func(*Video)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.videos[id]; ok {
		fn(v)
	}
}

// Delete removes a video from the registry.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.videos, id)
}

// Settings holds the runtime-tunable daemon parameters exposed via the
// config endpoint.
type Settings struct {
	mu               sync.RWMutex
	FrameRate        float64
	DefaultTopK      int
	ClusterThreshold float64
}

// SettingsView is the JSON shape of the runtime settings.
type SettingsView struct {
	FrameRate        float64 `json:"frame_rate"`
	DefaultTopK      int     `json:"default_top_k"`
	ClusterThreshold float64 `json:"cluster_threshold"`
}

// View returns a consistent snapshot of the settings.
func (s *Settings) View() SettingsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsView{
		FrameRate:        s.FrameRate,
		DefaultTopK:      s.DefaultTopK,
		ClusterThreshold: s.ClusterThreshold,
	}
}

// Apply updates the provided fields. Nil fields are left unchanged;
// invalid values are rejected field by field.
func (s *Settings) Apply(frameRate *float64, topK *int, clusterThreshold *float64) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make(map[string]interface{})
	if frameRate != nil && *frameRate > 0 {
		s.FrameRate = *frameRate
		changed["frame_rate"] = *frameRate
	}
	if topK != nil && *topK > 0 {
		s.DefaultTopK = *topK
		changed["default_top_k"] = *topK
	}
	if clusterThreshold != nil && *clusterThreshold >= 0 {
		s.ClusterThreshold = *clusterThreshold
		changed["cluster_threshold"] = *clusterThreshold
	}
	return changed
}
