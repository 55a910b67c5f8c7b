package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventVideoRegister AuditEventType = "video.register"
	AuditEventVideoIndex    AuditEventType = "video.index"
	AuditEventVideoDelete   AuditEventType = "video.delete"
	AuditEventImageIndex    AuditEventType = "image.index"
	AuditEventExtract       AuditEventType = "extract.frames"
	AuditEventEmbedRequest  AuditEventType = "embed.request"
	AuditEventEmbedError    AuditEventType = "embed.error"
	AuditEventSearchImage   AuditEventType = "search.image"
	AuditEventSearchVideo   AuditEventType = "search.video"
	AuditEventJobStart      AuditEventType = "job.start"
	AuditEventJobComplete   AuditEventType = "job.complete"
	AuditEventJobCancel     AuditEventType = "job.cancel"
	AuditEventConfigUpdate  AuditEventType = "config.update"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	JobID       string                 `json:"job_id,omitempty"`
	VideoID     string                 `json:"video_id,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	Success     bool                   `json:"success"`
	Duration    time.Duration          `json:"duration_ms,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ErrorCode   string                 `json:"error_code,omitempty"`
	ErrorDetail string                 `json:"error_detail,omitempty"`
}

// AuditLogger handles audit event logging.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	userID    string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
	UserID     string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		userID:    config.UserID,
		enabled:   config.Enabled,
	}, nil
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Fill in defaults
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}
	if event.UserID == "" {
		event.UserID = l.userID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogVideoRegister logs a video registration event.
func (l *AuditLogger) LogVideoRegister(ctx context.Context, videoID, videoPath string) {
	l.Log(&AuditEvent{
		EventType: AuditEventVideoRegister,
		VideoID:   videoID,
		Success:   true,
		Message:   fmt.Sprintf("Video %s registered", videoID),
		Details: map[string]interface{}{
			"video_path": videoPath,
		},
	})
}

// LogVideoIndex logs the outcome of a video indexing batch.
func (l *AuditLogger) LogVideoIndex(ctx context.Context, videoID string, duration time.Duration, framesIndexed, embedFailures int, err error) {
	event := &AuditEvent{
		EventType: AuditEventVideoIndex,
		VideoID:   videoID,
		Success:   err == nil,
		Duration:  duration,
		Message:   fmt.Sprintf("Video %s indexed: %d frames", videoID, framesIndexed),
		Details: map[string]interface{}{
			"frames_indexed": framesIndexed,
			"embed_failures": embedFailures,
		},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogVideoDelete logs a video deletion event.
func (l *AuditLogger) LogVideoDelete(ctx context.Context, videoID string, err error) {
	event := &AuditEvent{
		EventType: AuditEventVideoDelete,
		VideoID:   videoID,
		Success:   err == nil,
		Message:   fmt.Sprintf("Video %s deleted", videoID),
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogImageIndex logs a standalone image indexing event.
func (l *AuditLogger) LogImageIndex(ctx context.Context, imageID, filename string, size int, err error) {
	event := &AuditEvent{
		EventType: AuditEventImageIndex,
		Success:   err == nil,
		Message:   fmt.Sprintf("Image indexed: %s", filename),
		Details: map[string]interface{}{
			"image_id": imageID,
			"filename": filename,
			"size":     size,
		},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogExtract logs a frame extraction event.
func (l *AuditLogger) LogExtract(ctx context.Context, videoID string, samplingRate float64, frameCount int, duration time.Duration, err error) {
	event := &AuditEvent{
		EventType: AuditEventExtract,
		VideoID:   videoID,
		Success:   err == nil,
		Duration:  duration,
		Message:   fmt.Sprintf("Extracted %d frames from %s", frameCount, videoID),
		Details: map[string]interface{}{
			"sampling_rate": samplingRate,
			"frame_count":   frameCount,
		},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogEmbedRequest logs an embedding provider request.
func (l *AuditLogger) LogEmbedRequest(ctx context.Context, provider, model string, inputCount int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventEmbedRequest,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Embedding request to %s/%s", provider, model),
		Details: map[string]interface{}{
			"provider":    provider,
			"model":       model,
			"input_count": inputCount,
		},
	})
}

// LogEmbedError logs an embedding provider error.
func (l *AuditLogger) LogEmbedError(ctx context.Context, provider, model string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventEmbedError,
		Success:     false,
		Message:     fmt.Sprintf("Embedding error from %s/%s", provider, model),
		ErrorDetail: err.Error(),
		Details: map[string]interface{}{
			"provider": provider,
			"model":    model,
		},
	})
}

// LogSearchImage logs an image search request.
func (l *AuditLogger) LogSearchImage(ctx context.Context, query string, topK, resultCount int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventSearchImage,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Image search: %d results", resultCount),
		Details: map[string]interface{}{
			"query":        query,
			"top_k":        topK,
			"result_count": resultCount,
		},
	})
}

// LogSearchVideo logs a video search request.
func (l *AuditLogger) LogSearchVideo(ctx context.Context, query string, topK, resultCount int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventSearchVideo,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Video search: %d results", resultCount),
		Details: map[string]interface{}{
			"query":        query,
			"top_k":        topK,
			"result_count": resultCount,
		},
	})
}

// LogJobStart logs an ingestion job start event.
func (l *AuditLogger) LogJobStart(ctx context.Context, jobID, videoID string, samplingRate float64) {
	l.Log(&AuditEvent{
		EventType: AuditEventJobStart,
		JobID:     jobID,
		VideoID:   videoID,
		Success:   true,
		Message:   fmt.Sprintf("Job %s started for video %s", jobID, videoID),
		Details: map[string]interface{}{
			"sampling_rate": samplingRate,
		},
	})
}

// LogJobComplete logs an ingestion job completion event.
func (l *AuditLogger) LogJobComplete(ctx context.Context, jobID, videoID string, duration time.Duration, framesIndexed int, err error) {
	event := &AuditEvent{
		EventType: AuditEventJobComplete,
		JobID:     jobID,
		VideoID:   videoID,
		Success:   err == nil,
		Duration:  duration,
		Message:   fmt.Sprintf("Job %s completed", jobID),
		Details: map[string]interface{}{
			"frames_indexed": framesIndexed,
		},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogJobCancel logs an ingestion job cancellation event.
func (l *AuditLogger) LogJobCancel(ctx context.Context, jobID, videoID string) {
	l.Log(&AuditEvent{
		EventType: AuditEventJobCancel,
		JobID:     jobID,
		VideoID:   videoID,
		Success:   true,
		Message:   fmt.Sprintf("Job %s cancelled", jobID),
	})
}

// LogConfigUpdate logs a runtime configuration change.
func (l *AuditLogger) LogConfigUpdate(ctx context.Context, changed map[string]interface{}) {
	l.Log(&AuditEvent{
		EventType: AuditEventConfigUpdate,
		Success:   true,
		Message:   "Runtime configuration updated",
		Details:   changed,
	})
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

// Global audit logger instance
var globalAuditLogger *AuditLogger
var auditOnce sync.Once

// InitGlobalAuditLogger initializes the global audit logger.
func InitGlobalAuditLogger(config *AuditConfig) error {
	var err error
	auditOnce.Do(func() {
		globalAuditLogger, err = NewAuditLogger(config)
	})
	return err
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if globalAuditLogger == nil {
		// Return a disabled logger if not initialized
		return &AuditLogger{enabled: false}
	}
	return globalAuditLogger
}
