package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/semanticvideo/internal/extract"
	"github.com/efebarandurmaz/semanticvideo/internal/index"
	"github.com/efebarandurmaz/semanticvideo/internal/observability"
)

// ErrJobNotFound means no job exists with the given ID.
var ErrJobNotFound = errors.New("job not found")

// ErrJobRunning means the video already has an ingestion job in flight.
var ErrJobRunning = errors.New("job already running for video")

// JobManager runs asynchronous extract-and-index jobs for registered
// videos. Jobs are in-process: they survive until completion or daemon
// shutdown, not across restarts.
type JobManager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	cancels  map[string]context.CancelFunc
	byVideo  map[string]string // videoID -> running jobID
	wg       sync.WaitGroup
	registry *Registry
	sampler  *extract.Sampler
	indexer  *index.Indexer
	hub      *Hub
	workDir  string
	logger   *slog.Logger
}

// NewJobManager creates a job manager over the extraction and indexing
// core.
func NewJobManager(registry *Registry, sampler *extract.Sampler, indexer *index.Indexer, hub *Hub, workDir string, logger *slog.Logger) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobManager{
		jobs:     make(map[string]*Job),
		cancels:  make(map[string]context.CancelFunc),
		byVideo:  make(map[string]string),
		registry: registry,
		sampler:  sampler,
		indexer:  indexer,
		hub:      hub,
		workDir:  workDir,
		logger:   logger,
	}
}

// Start launches an ingestion job for a registered video. One running
// job per video; a second Start for the same video fails.
func (m *JobManager) Start(videoID string, samplingRate float64) (Job, error) {
	video, ok := m.registry.Get(videoID)
	if !ok {
		return Job{}, fmt.Errorf("video %s: %w", videoID, ErrJobNotFound)
	}
	if samplingRate <= 0 {
		samplingRate = video.SamplingRate
	}

	m.mu.Lock()
	if runningID, busy := m.byVideo[videoID]; busy {
		m.mu.Unlock()
		return Job{}, fmt.Errorf("video %s has job %s: %w", videoID, runningID, ErrJobRunning)
	}

	job := &Job{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.jobs[job.ID] = job
	m.cancels[job.ID] = cancel
	m.byVideo[videoID] = job.ID
	snapshot := *job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, job.ID, video, samplingRate)

	return snapshot, nil
}

// Cancel stops a running job. Completed jobs cannot be cancelled.
func (m *JobManager) Cancel(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancel, ok := m.cancels[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	cancel()
	return nil
}

// CancelVideo stops the running job for a video, if any, and returns
// its snapshot.
func (m *JobManager) CancelVideo(videoID string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobID, ok := m.byVideo[videoID]
	if !ok {
		return Job{}, fmt.Errorf("no running job for video %s: %w", videoID, ErrJobNotFound)
	}
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
	}
	return *m.jobs[jobID], nil
}

// Get returns a snapshot of a job.
func (m *JobManager) Get(jobID string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshots of all jobs, most recent first.
func (m *JobManager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs
}

// Drain cancels all running jobs and waits for them to stop, bounded
// by the context deadline.
func (m *JobManager) Drain(ctx context.Context) error {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain jobs: %w", ctx.Err())
	}
}

func (m *JobManager) run(ctx context.Context, jobID string, video Video, samplingRate float64) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.cancels, jobID)
		delete(m.byVideo, video.ID)
		m.mu.Unlock()
	}()

	m.setJobStatus(jobID, JobExtracting)
	m.registry.Update(video.ID, func(v *Video) {
		v.Status = StatusExtracting
		v.SamplingRate = samplingRate
	})
	m.broadcast("job.started", jobID, video.ID, nil)

	framesDir := filepath.Join(m.workDir, "frames", video.ID)
	extractStart := time.Now()
	extractCtx, extractSpan := observability.StartExtractSpan(ctx, video.ID, samplingRate)
	frames, err := m.sampler.Sample(extractCtx, video.Path, framesDir, samplingRate)
	observability.RecordExtractResult(extractSpan, len(frames), time.Since(extractStart))
	observability.RecordError(extractSpan, err)
	extractSpan.End()
	if err != nil {
		m.fail(ctx, jobID, video.ID, err)
		return
	}

	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok {
		job.Status = JobIndexing
		job.FramesTotal = len(frames)
	}
	m.mu.Unlock()
	m.registry.Update(video.ID, func(v *Video) {
		v.Status = StatusIndexing
		v.FramesExtracted = len(frames)
	})
	m.broadcast("job.extracted", jobID, video.ID, map[string]int{"frames": len(frames)})

	progress := func(done, total int) {
		m.mu.Lock()
		if job, ok := m.jobs[jobID]; ok {
			job.FramesDone = done
			job.FramesTotal = total
		}
		m.mu.Unlock()
		m.broadcast("job.progress", jobID, video.ID, map[string]int{"done": done, "total": total})
	}

	indexCtx, indexSpan := observability.StartIndexSpan(ctx, video.ID, len(frames))
	result, err := m.indexer.IndexVideo(indexCtx, video.ID, video.Path, frames, samplingRate, progress)
	if result != nil {
		embedFailed, storageFailed := 0, 0
		for _, o := range result.Outcomes {
			switch o.Status {
			case index.OutcomeEmbedFailed:
				embedFailed++
			case index.OutcomeStorageFailed:
				storageFailed++
			}
		}
		observability.RecordIndexResult(indexSpan, result.FramesIndexed, embedFailed, storageFailed)
	}
	observability.RecordError(indexSpan, err)
	indexSpan.End()
	if err != nil {
		m.fail(ctx, jobID, video.ID, err)
		return
	}

	now := time.Now().UTC()
	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok {
		job.Status = JobCompleted
		job.CompletedAt = &now
		job.FramesDone = result.FramesIndexed
	}
	m.mu.Unlock()
	m.registry.Update(video.ID, func(v *Video) {
		v.Status = StatusIndexed
		v.FramesIndexed = result.FramesIndexed
		v.IndexedAt = &now
	})

	m.logger.Info("ingestion job completed",
		"job_id", jobID, "video_id", video.ID, "frames_indexed", result.FramesIndexed)
	m.broadcast("job.completed", jobID, video.ID, result)
}

func (m *JobManager) fail(ctx context.Context, jobID, videoID string, err error) {
	now := time.Now().UTC()
	cancelled := errors.Is(err, context.Canceled) || ctx.Err() != nil

	jobStatus, videoStatus, eventType := JobFailed, StatusFailed, "job.failed"
	if cancelled {
		jobStatus, videoStatus, eventType = JobCancelled, StatusCancelled, "job.cancelled"
	}

	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok {
		job.Status = jobStatus
		job.CompletedAt = &now
		if !cancelled {
			job.Error = err.Error()
		}
	}
	m.mu.Unlock()
	m.registry.Update(videoID, func(v *Video) {
		v.Status = videoStatus
		if !cancelled {
			v.Error = err.Error()
		}
	})

	if cancelled {
		m.logger.Info("ingestion job cancelled", "job_id", jobID, "video_id", videoID)
	} else {
		m.logger.Error("ingestion job failed", "job_id", jobID, "video_id", videoID, "error", err)
	}
	m.broadcast(eventType, jobID, videoID, nil)
}

func (m *JobManager) setJobStatus(jobID string, status JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.Status = status
	}
}

func (m *JobManager) broadcast(eventType, jobID, videoID string, data interface{}) {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast(&Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		JobID:     jobID,
		VideoID:   videoID,
		Data:      data,
	})
}
