// Package pgvector implements vector.Repository on PostgreSQL with the
// pgvector extension.
package pgvector

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgvpgx "github.com/pgvector/pgvector-go/pgx"

	"github.com/efebarandurmaz/semanticvideo/internal/vector"
)

// Repository implements vector.Repository using pgx and pgvector.
type Repository struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and ensures the extension, table and index
// exist for the given vector dimension.
func New(ctx context.Context, dsn string, dimension int) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvpgx.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}

	r := &Repository{pool: pool}
	if err := r.ensureSchema(ctx, dimension); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) ensureSchema(ctx context.Context, dimension int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS frame_records (
			id UUID PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			record_type TEXT NOT NULL,
			video_id TEXT,
			video_path TEXT,
			frame_number INT,
			timestamp_seconds DOUBLE PRECISION,
			sampling_rate DOUBLE PRECISION,
			filename TEXT,
			content_type TEXT
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_frame_records_type ON frame_records (record_type)`,
		`CREATE INDEX IF NOT EXISTS idx_frame_records_video ON frame_records (video_id) WHERE video_id IS NOT NULL`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector schema: %w", err)
		}
	}
	return nil
}

// Upsert writes all records inside one transaction.
func (r *Repository) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvector begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		_, err := tx.Exec(ctx,
			`INSERT INTO frame_records
				(id, embedding, record_type, video_id, video_path, frame_number,
				 timestamp_seconds, sampling_rate, filename, content_type)
			 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))
			 ON CONFLICT (id) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				record_type = EXCLUDED.record_type,
				video_id = EXCLUDED.video_id,
				video_path = EXCLUDED.video_path,
				frame_number = EXCLUDED.frame_number,
				timestamp_seconds = EXCLUDED.timestamp_seconds,
				sampling_rate = EXCLUDED.sampling_rate,
				filename = EXCLUDED.filename,
				content_type = EXCLUDED.content_type`,
			rec.ID, pgv.NewVector(rec.Vector), string(rec.RecordType),
			rec.VideoID, rec.VideoPath, rec.FrameNumber,
			rec.TimestampSeconds, rec.SamplingRate, rec.Filename, rec.ContentType)
		if err != nil {
			return fmt.Errorf("pgvector insert %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgvector commit: %w", err)
	}
	return nil
}

func (r *Repository) Search(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	where, args := buildWhere(filter, 2)
	query := fmt.Sprintf(
		`SELECT id, record_type, COALESCE(video_id, ''), COALESCE(video_path, ''),
			COALESCE(frame_number, 0), COALESCE(timestamp_seconds, 0), COALESCE(sampling_rate, 0),
			COALESCE(filename, ''), COALESCE(content_type, ''),
			embedding <=> $1 AS distance
		 FROM frame_records %s
		 ORDER BY embedding <=> $1
		 LIMIT %d`, where, topK)

	rows, err := r.pool.Query(ctx, query, append([]any{pgv.NewVector(vec)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var matches []vector.Match
	for rows.Next() {
		var rec vector.Record
		var recordType string
		var distance float64
		if err := rows.Scan(&rec.ID, &recordType, &rec.VideoID, &rec.VideoPath,
			&rec.FrameNumber, &rec.TimestampSeconds, &rec.SamplingRate,
			&rec.Filename, &rec.ContentType, &distance); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		rec.RecordType = vector.RecordType(recordType)
		matches = append(matches, vector.Match{ID: rec.ID, Distance: distance, Record: rec})
	}
	return matches, rows.Err()
}

func (r *Repository) List(ctx context.Context, filter vector.Filter, limit int) ([]vector.Record, error) {
	where, args := buildWhere(filter, 1)
	query := fmt.Sprintf(
		`SELECT id, record_type, COALESCE(video_id, ''), COALESCE(video_path, ''),
			COALESCE(frame_number, 0), COALESCE(timestamp_seconds, 0), COALESCE(sampling_rate, 0),
			COALESCE(filename, ''), COALESCE(content_type, '')
		 FROM frame_records %s
		 ORDER BY video_id, frame_number, filename`, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector list: %w", err)
	}
	defer rows.Close()

	var out []vector.Record
	for rows.Next() {
		var rec vector.Record
		var recordType string
		if err := rows.Scan(&rec.ID, &recordType, &rec.VideoID, &rec.VideoPath,
			&rec.FrameNumber, &rec.TimestampSeconds, &rec.SamplingRate,
			&rec.Filename, &rec.ContentType); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		rec.RecordType = vector.RecordType(recordType)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) Count(ctx context.Context, filter vector.Filter) (int, error) {
	where, args := buildWhere(filter, 1)
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM frame_records "+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgvector count: %w", err)
	}
	return n, nil
}

func (r *Repository) DeleteVideo(ctx context.Context, videoID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM frame_records WHERE record_type = $1 AND video_id = $2`,
		string(vector.RecordTypeVideoFrame), videoID)
	if err != nil {
		return fmt.Errorf("pgvector delete video: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// buildWhere renders filter conditions starting at the given placeholder
// ordinal (search queries reserve $1 for the query vector).
func buildWhere(f vector.Filter, firstArg int) (string, []any) {
	var conds []string
	var args []any
	n := firstArg

	if f.RecordType != "" {
		conds = append(conds, fmt.Sprintf("record_type = $%d", n))
		args = append(args, string(f.RecordType))
		n++
	}
	if f.VideoID != "" {
		conds = append(conds, fmt.Sprintf("video_id = $%d", n))
		args = append(args, f.VideoID)
		n++
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
