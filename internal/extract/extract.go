// Package extract samples video frames at a target rate using ffmpeg.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

var (
	// ErrSourceUnreadable means the video could not be opened or decoded at all.
	ErrSourceUnreadable = errors.New("video source unreadable")
	// ErrInvalidRate means the requested sampling rate is not positive.
	ErrInvalidRate = errors.New("invalid sampling rate")
	// ErrPartialExtraction means decoding failed after some frames were
	// already produced. Callers must not treat the partial set as a
	// successful extraction.
	ErrPartialExtraction = errors.New("partial frame extraction")
)

// FrameDescriptor identifies one retained frame.
type FrameDescriptor struct {
	// Index is the 1-based position in retention order.
	Index int
	// Path is the extracted JPEG on disk.
	Path string
}

// Sampler extracts frames from videos at a target rate.
//
// Retention is stride-based: stride = floor(fps/targetRate) when the
// target rate is below the source fps, otherwise 1, and a source frame
// is kept when its zero-based counter is divisible by the stride. The
// first frame is therefore always retained.
type Sampler struct {
	ffmpegPath  string
	ffprobePath string
	frameWidth  int
	frameHeight int
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithFrameSize scales extracted frames to the given dimensions.
// Zero values keep the source dimensions.
func WithFrameSize(width, height int) SamplerOption {
	return func(s *Sampler) {
		s.frameWidth = width
		s.frameHeight = height
	}
}

// WithBinaries overrides the ffmpeg/ffprobe executables.
func WithBinaries(ffmpeg, ffprobe string) SamplerOption {
	return func(s *Sampler) {
		if ffmpeg != "" {
			s.ffmpegPath = ffmpeg
		}
		if ffprobe != "" {
			s.ffprobePath = ffprobe
		}
	}
}

// NewSampler creates a Sampler using ffmpeg/ffprobe from PATH.
func NewSampler(opts ...SamplerOption) *Sampler {
	s := &Sampler{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stride returns the frame retention stride for a source fps and target
// sampling rate. Rates at or above the source fps keep every frame.
func Stride(fps, targetRate float64) int {
	if targetRate >= fps {
		return 1
	}
	stride := int(math.Floor(fps / targetRate))
	if stride < 1 {
		stride = 1
	}
	return stride
}

// Sample extracts frames from videoPath into outDir and returns ordered
// descriptors. Descriptors index from 1 in retention order, so frame
// timestamps derive as (index-1)/targetRate.
func (s *Sampler) Sample(ctx context.Context, videoPath, outDir string, targetRate float64) ([]FrameDescriptor, error) {
	if targetRate <= 0 {
		return nil, fmt.Errorf("sample %s: rate %.3f: %w", videoPath, targetRate, ErrInvalidRate)
	}

	info, err := s.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	stride := Stride(info.FPS, targetRate)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("sample %s: create output dir: %w", videoPath, err)
	}

	filter := fmt.Sprintf("select=not(mod(n\\,%d))", stride)
	if s.frameWidth > 0 && s.frameHeight > 0 {
		filter = fmt.Sprintf("%s,scale=%d:%d", filter, s.frameWidth, s.frameHeight)
	}

	pattern := filepath.Join(outDir, "frame_%06d.jpg")
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-i", videoPath,
		"-vf", filter,
		"-vsync", "vfr",
		"-q:v", "2",
		"-y",
		"-loglevel", "error",
		pattern,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	frames, listErr := collectFrames(outDir)
	if listErr != nil {
		return nil, fmt.Errorf("sample %s: %w", videoPath, listErr)
	}

	if runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Frames on disk stay for diagnostics, but the extraction did
		// not complete and must not be reported as a success.
		if len(frames) > 0 {
			return nil, fmt.Errorf("sample %s: decode failed after %d frames: %w: %s",
				videoPath, len(frames), ErrPartialExtraction, stderr.String())
		}
		return nil, fmt.Errorf("sample %s: %w: %s", videoPath, ErrSourceUnreadable, stderr.String())
	}

	// ffmpeg can exit zero after a truncated decode, so a clean exit
	// status alone does not prove the run covered the whole source.
	if expected := ExpectedFrameCount(info.TotalFrames, stride); expected > 0 && len(frames) < expected {
		return nil, fmt.Errorf("sample %s: produced %d of %d expected frames: %w",
			videoPath, len(frames), expected, ErrPartialExtraction)
	}

	return frames, nil
}

// collectFrames enumerates extracted frames in filename order and
// assigns 1-based retention indexes.
func collectFrames(dir string) ([]FrameDescriptor, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)

	frames := make([]FrameDescriptor, len(entries))
	for i, path := range entries {
		frames[i] = FrameDescriptor{Index: i + 1, Path: path}
	}
	return frames, nil
}

// ExpectedFrameCount estimates how many frames a sample run should
// produce for a probed source.
func ExpectedFrameCount(totalFrames, stride int) int {
	if stride < 1 || totalFrames < 1 {
		return 0
	}
	// Counter 0 is always retained.
	return (totalFrames + stride - 1) / stride
}
