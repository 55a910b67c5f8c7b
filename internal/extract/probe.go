package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeInfo describes the video stream of a source file.
type ProbeInfo struct {
	FPS         float64
	TotalFrames int
	Duration    float64
	Width       int
	Height      int
}

// Probe inspects a video with ffprobe. An unreadable or stream-less
// source yields ErrSourceUnreadable.
func (s *Sampler) Probe(ctx context.Context, videoPath string) (*ProbeInfo, error) {
	cmd := exec.CommandContext(ctx, s.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate,nb_frames,width,height",
		"-show_entries", "format=duration",
		"-of", "json",
		videoPath,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w: %v", videoPath, ErrSourceUnreadable, err)
	}

	var parsed struct {
		Streams []struct {
			RFrameRate string `json:"r_frame_rate"`
			NbFrames   string `json:"nb_frames"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("probe %s: parse ffprobe output: %w", videoPath, err)
	}
	if len(parsed.Streams) == 0 {
		return nil, fmt.Errorf("probe %s: no video stream: %w", videoPath, ErrSourceUnreadable)
	}

	stream := parsed.Streams[0]
	fps, err := parseRational(stream.RFrameRate)
	if err != nil || fps <= 0 {
		return nil, fmt.Errorf("probe %s: bad frame rate %q: %w", videoPath, stream.RFrameRate, ErrSourceUnreadable)
	}

	info := &ProbeInfo{
		FPS:    fps,
		Width:  stream.Width,
		Height: stream.Height,
	}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	if n, err := strconv.Atoi(stream.NbFrames); err == nil {
		info.TotalFrames = n
	} else if info.Duration > 0 {
		// Containers without frame counts (e.g. some MKVs) get an estimate.
		info.TotalFrames = int(math.Floor(info.Duration * fps))
	}

	return info, nil
}

// parseRational parses ffprobe rate strings like "30000/1001" or "25".
func parseRational(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty rational")
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, fmt.Errorf("zero denominator in %q", s)
		}
		return n / d, nil
	}
	return strconv.ParseFloat(s, 64)
}
