// Package vector provides vector storage and similarity search over
// embedded images and video frames.
package vector

import "context"

// RecordType distinguishes standalone images from sampled video frames.
type RecordType string

const (
	RecordTypeImage      RecordType = "image"
	RecordTypeVideoFrame RecordType = "video_frame"
)

// Record is one embedded item with its metadata. Records are write-once:
// re-indexing a video produces new IDs rather than updating old records.
type Record struct {
	ID     string
	Vector []float32

	RecordType RecordType

	// Video frame fields; empty/zero for standalone images.
	VideoID          string
	VideoPath        string
	FrameNumber      int // 1-based retention order
	TimestampSeconds float64
	SamplingRate     float64

	// Image fields; empty for video frames.
	Filename    string
	ContentType string
}

// Match is a single result from a similarity search.
type Match struct {
	ID string
	// Distance is the cosine distance to the query (0 = identical).
	Distance float64
	Record   Record // metadata only; Vector is not populated
}

// Filter restricts searches and listings by metadata. Zero values mean
// "no constraint".
type Filter struct {
	RecordType RecordType
	VideoID    string
}

// Repository provides vector storage, similarity search and enumeration.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Upsert inserts records as one atomic batch: either every record
	// becomes durable or none does.
	Upsert(ctx context.Context, records []Record) error
	// Search finds the topK nearest records matching the filter, ordered
	// by ascending distance.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
	// List enumerates stored records matching the filter, without
	// similarity ordering. An empty result is not an error.
	List(ctx context.Context, filter Filter, limit int) ([]Record, error)
	// Count returns the number of records matching the filter.
	Count(ctx context.Context, filter Filter) (int, error)
	// DeleteVideo removes all frame records for a video.
	DeleteVideo(ctx context.Context, videoID string) error
	// Close releases resources.
	Close() error
}
