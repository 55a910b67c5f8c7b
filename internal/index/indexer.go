// Package index turns sampled frames and uploaded images into stored
// vector records.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/semanticvideo/internal/embed"
	"github.com/efebarandurmaz/semanticvideo/internal/extract"
	"github.com/efebarandurmaz/semanticvideo/internal/vector"
)

var (
	// ErrInvalidInput means the request itself is malformed (empty
	// payload, non-positive sampling rate).
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorageFailure means the vector store rejected the batch commit.
	ErrStorageFailure = errors.New("vector storage failure")
)

// OutcomeStatus is the per-frame result of a batch index operation.
type OutcomeStatus string

const (
	OutcomeIndexed OutcomeStatus = "indexed"
	// OutcomeEmbedFailed marks a frame whose embedding call failed; its
	// siblings continue through the batch.
	OutcomeEmbedFailed OutcomeStatus = "embed_failed"
	// OutcomeStorageFailed marks a frame that embedded fine but whose
	// batch commit failed. Nothing in the batch is durable.
	OutcomeStorageFailed OutcomeStatus = "storage_failed"
)

// FrameOutcome reports what happened to one frame.
type FrameOutcome struct {
	FrameNumber int           `json:"frame_number"`
	Status      OutcomeStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// BatchResult summarizes a video indexing operation.
type BatchResult struct {
	VideoID         string         `json:"video_id"`
	FramesExtracted int            `json:"frames_extracted"`
	FramesIndexed   int            `json:"frames_indexed"`
	Outcomes        []FrameOutcome `json:"outcomes"`
}

// ProgressFunc reports embedding progress during a batch. done counts
// frames whose embedding call has finished, successfully or not.
type ProgressFunc func(done, total int)

// Indexer embeds frames and commits them to the vector store.
type Indexer struct {
	provider embed.Provider
	repo     vector.Repository
	workers  int
	logger   *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithWorkers sets the embedding concurrency (default 4).
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// New creates an Indexer over the given provider and store.
func New(provider embed.Provider, repo vector.Repository, opts ...Option) *Indexer {
	ix := &Indexer{
		provider: provider,
		repo:     repo,
		workers:  4,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// frameJob carries one frame through the embedding pool.
type frameJob struct {
	pos   int // position in the frames slice
	frame extract.FrameDescriptor
}

type frameEmbedding struct {
	vector []float32
	err    error
}

// IndexVideo embeds the given frames and commits the survivors in one
// atomic batch. A frame whose embedding fails gets an embed_failed
// outcome and is excluded; a failed commit downgrades every indexed
// outcome to storage_failed and returns an error, since none of the
// batch is durable. progress may be nil.
func (ix *Indexer) IndexVideo(ctx context.Context, videoID, videoPath string, frames []extract.FrameDescriptor, samplingRate float64, progress ProgressFunc) (*BatchResult, error) {
	if videoID == "" {
		return nil, fmt.Errorf("index video: empty video id: %w", ErrInvalidInput)
	}
	if samplingRate <= 0 {
		return nil, fmt.Errorf("index video %s: rate %.3f: %w", videoID, samplingRate, ErrInvalidInput)
	}

	result := &BatchResult{
		VideoID:         videoID,
		FramesExtracted: len(frames),
		Outcomes:        make([]FrameOutcome, len(frames)),
	}
	if len(frames) == 0 {
		return result, nil
	}

	embeddings := ix.embedFrames(ctx, frames, progress)

	var records []vector.Record
	var indexedPos []int
	for i, frame := range frames {
		result.Outcomes[i].FrameNumber = frame.Index

		if embeddings[i].err != nil {
			result.Outcomes[i].Status = OutcomeEmbedFailed
			result.Outcomes[i].Error = embeddings[i].err.Error()
			ix.logger.Warn("frame embedding failed",
				"video_id", videoID, "frame", frame.Index, "error", embeddings[i].err)
			continue
		}

		result.Outcomes[i].Status = OutcomeIndexed
		indexedPos = append(indexedPos, i)
		records = append(records, vector.Record{
			ID:               uuid.NewString(),
			Vector:           embeddings[i].vector,
			RecordType:       vector.RecordTypeVideoFrame,
			VideoID:          videoID,
			VideoPath:        videoPath,
			FrameNumber:      frame.Index,
			TimestampSeconds: float64(frame.Index-1) / samplingRate,
			SamplingRate:     samplingRate,
		})
	}

	if len(records) > 0 {
		if err := ix.repo.Upsert(ctx, records); err != nil {
			// The batch is all-or-nothing: frames that embedded fine
			// are not durable either.
			for _, i := range indexedPos {
				result.Outcomes[i].Status = OutcomeStorageFailed
				result.Outcomes[i].Error = err.Error()
			}
			return result, fmt.Errorf("index video %s: commit %d records: %w: %v",
				videoID, len(records), ErrStorageFailure, err)
		}
	}

	result.FramesIndexed = len(records)
	ix.logger.Info("video indexed",
		"video_id", videoID,
		"frames_extracted", result.FramesExtracted,
		"frames_indexed", result.FramesIndexed)
	return result, nil
}

// embedFrames runs the embedding pool and returns per-position results.
func (ix *Indexer) embedFrames(ctx context.Context, frames []extract.FrameDescriptor, progress ProgressFunc) []frameEmbedding {
	embeddings := make([]frameEmbedding, len(frames))

	workChan := make(chan frameJob)
	var done int
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := ix.workers
	if workers > len(frames) {
		workers = len(frames)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range workChan {
				embeddings[job.pos] = ix.embedFrame(ctx, job.frame)

				mu.Lock()
				done++
				n := done
				mu.Unlock()
				if progress != nil {
					progress(n, len(frames))
				}
			}
		}()
	}

	for i, frame := range frames {
		workChan <- frameJob{pos: i, frame: frame}
	}
	close(workChan)
	wg.Wait()

	return embeddings
}

func (ix *Indexer) embedFrame(ctx context.Context, frame extract.FrameDescriptor) frameEmbedding {
	data, err := os.ReadFile(frame.Path)
	if err != nil {
		return frameEmbedding{err: fmt.Errorf("read frame: %w", err)}
	}
	vec, err := ix.provider.EmbedImage(ctx, data, "image/jpeg")
	if err != nil {
		return frameEmbedding{err: fmt.Errorf("embed frame: %w", err)}
	}
	return frameEmbedding{vector: vec}
}

// IndexImage embeds one standalone image and stores it, returning the
// new record ID.
func (ix *Indexer) IndexImage(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("index image: empty payload: %w", ErrInvalidInput)
	}

	vec, err := ix.provider.EmbedImage(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("index image %s: %w", filename, err)
	}

	rec := vector.Record{
		ID:          uuid.NewString(),
		Vector:      vec,
		RecordType:  vector.RecordTypeImage,
		Filename:    filename,
		ContentType: contentType,
	}
	if err := ix.repo.Upsert(ctx, []vector.Record{rec}); err != nil {
		return "", fmt.Errorf("index image %s: %w: %v", filename, ErrStorageFailure, err)
	}

	ix.logger.Info("image indexed", "id", rec.ID, "filename", filename)
	return rec.ID, nil
}
