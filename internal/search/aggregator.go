// Package search answers text queries against the vector store and
// aggregates frame matches into per-video results.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/efebarandurmaz/semanticvideo/internal/embed"
	"github.com/efebarandurmaz/semanticvideo/internal/vector"
)

// ErrInvalidInput means the query is blank or the requested result
// count is not positive.
var ErrInvalidInput = errors.New("invalid input")

// DefaultOversampleFactor is how many frame matches are fetched per
// requested video result. Frames from the same video collapse into one
// result, so the store query fans out wider than topK; ten frames per
// video covers typical scene lengths without scanning the whole store.
const DefaultOversampleFactor = 10

// TimestampRange localizes a match within a video. Start equals End
// when clustering is disabled.
type TimestampRange struct {
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	RelevanceScore float64 `json:"relevance_score"`
}

// VideoResult is one ranked video with its matching moments.
type VideoResult struct {
	VideoID           string           `json:"video_id"`
	VideoPath         string           `json:"video_path,omitempty"`
	Timestamps        []TimestampRange `json:"timestamps"`
	MaxRelevanceScore float64          `json:"max_relevance_score"`
}

// ImageResult is one ranked standalone image.
type ImageResult struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Filename    string  `json:"filename,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
}

// Aggregator runs semantic queries through the embedding provider and
// vector store.
type Aggregator struct {
	provider   embed.Provider
	repo       vector.Repository
	oversample int
	logger     *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithOversampleFactor overrides the frame oversampling factor.
func WithOversampleFactor(n int) Option {
	return func(a *Aggregator) {
		if n >= 1 {
			a.oversample = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAggregator creates an Aggregator over the given provider and store.
func NewAggregator(provider embed.Provider, repo vector.Repository, opts ...Option) *Aggregator {
	a := &Aggregator{
		provider:   provider,
		repo:       repo,
		oversample: DefaultOversampleFactor,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// scoreFromDistance converts cosine distance to a relevance score in
// [0, 1]. Distances above 1 (vectors pointing away from the query)
// clamp to zero rather than going negative.
func scoreFromDistance(d float64) float64 {
	s := 1 - d
	if s < 0 {
		return 0
	}
	return s
}

// embedQuery validates and embeds a text query. Blank queries are
// rejected before any provider call is made.
func (a *Aggregator) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("blank query: %w", ErrInvalidInput)
	}
	vecs, err := a.provider.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: provider returned no vector")
	}
	return vecs[0], nil
}

// SearchImages returns the topK standalone images ranked by relevance.
func (a *Aggregator) SearchImages(ctx context.Context, query string, topK int) ([]ImageResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k %d: %w", topK, ErrInvalidInput)
	}

	vec, err := a.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := a.repo.Search(ctx, vec, topK, vector.Filter{RecordType: vector.RecordTypeImage})
	if err != nil {
		return nil, fmt.Errorf("search images: %w", err)
	}

	results := make([]ImageResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, ImageResult{
			ID:          m.ID,
			Score:       scoreFromDistance(m.Distance),
			Filename:    m.Record.Filename,
			ContentType: m.Record.ContentType,
		})
	}
	return results, nil
}

// SearchVideos returns the topK videos whose frames best match the
// query. Frame matches are oversampled from the store, grouped by
// video, scored with max(0, 1-distance), and ranked by each video's
// best frame; ties break on ascending video ID so results are
// deterministic. clusterThreshold > 0 merges nearby timestamps into
// ranges; otherwise each matching frame yields a point range.
func (a *Aggregator) SearchVideos(ctx context.Context, query string, topK int, clusterThreshold float64) ([]VideoResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k %d: %w", topK, ErrInvalidInput)
	}

	vec, err := a.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := a.repo.Search(ctx, vec, topK*a.oversample, vector.Filter{RecordType: vector.RecordTypeVideoFrame})
	if err != nil {
		return nil, fmt.Errorf("search videos: %w", err)
	}

	results := a.aggregate(matches, clusterThreshold)
	if len(results) > topK {
		results = results[:topK]
	}

	a.logger.Debug("video search aggregated",
		"frame_matches", len(matches), "videos", len(results), "top_k", topK)
	return results, nil
}

// frameMatch is one frame hit after score conversion.
type frameMatch struct {
	score     float64
	timestamp float64
}

// aggregate groups frame matches by video and ranks the groups.
func (a *Aggregator) aggregate(matches []vector.Match, clusterThreshold float64) []VideoResult {
	groups := make(map[string][]frameMatch)
	paths := make(map[string]string)
	var order []string

	for _, m := range matches {
		// Frame records without a video ID cannot be grouped; skip them.
		if m.Record.VideoID == "" {
			continue
		}
		id := m.Record.VideoID
		if _, seen := groups[id]; !seen {
			order = append(order, id)
			paths[id] = m.Record.VideoPath
		}
		groups[id] = append(groups[id], frameMatch{
			score:     scoreFromDistance(m.Distance),
			timestamp: m.Record.TimestampSeconds,
		})
	}

	results := make([]VideoResult, 0, len(groups))
	for _, id := range order {
		members := groups[id]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].score > members[j].score
		})

		results = append(results, VideoResult{
			VideoID:           id,
			VideoPath:         paths[id],
			Timestamps:        buildRanges(members, clusterThreshold),
			MaxRelevanceScore: members[0].score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].MaxRelevanceScore != results[j].MaxRelevanceScore {
			return results[i].MaxRelevanceScore > results[j].MaxRelevanceScore
		}
		return results[i].VideoID < results[j].VideoID
	})
	return results
}

// buildRanges renders one video's matches as timestamp ranges sorted by
// descending relevance. members must already be sorted by score.
func buildRanges(members []frameMatch, clusterThreshold float64) []TimestampRange {
	if clusterThreshold <= 0 {
		ranges := make([]TimestampRange, len(members))
		for i, m := range members {
			ranges[i] = TimestampRange{Start: m.timestamp, End: m.timestamp, RelevanceScore: m.score}
		}
		return ranges
	}

	timestamps := make([]float64, len(members))
	for i, m := range members {
		timestamps[i] = m.timestamp
	}

	clustered := clusterTimestamps(timestamps, clusterThreshold)
	ranges := make([]TimestampRange, 0, len(clustered))
	for _, span := range clustered {
		r := TimestampRange{Start: span[0], End: span[1]}
		for _, m := range members {
			if m.timestamp >= span[0] && m.timestamp <= span[1] && m.score > r.RelevanceScore {
				r.RelevanceScore = m.score
			}
		}
		ranges = append(ranges, r)
	}

	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].RelevanceScore > ranges[j].RelevanceScore
	})
	return ranges
}
