// Package video is the Postgres-backed implementation of the video
// workflows' storage ports (internal/domain/repositories/video).
package video

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"meridian/internal/domain"
	vm "meridian/internal/domain/models/video"
	videorepo "meridian/internal/domain/repositories/video"
	"meridian/internal/repository/postgres"
)

type TranscriptRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

func NewTranscriptRepository(cfg *postgres.RepositoryConfig) videorepo.TranscriptRepository {
	return &TranscriptRepository{pool: cfg.Pool, tables: cfg.Tables}
}

func (r *TranscriptRepository) Get(ctx context.Context, videoID string) (*vm.Transcript, error) {
	query := fmt.Sprintf(`
		SELECT video_id, title, channel_name, description, segments, created_at, updated_at
		FROM %s WHERE video_id = $1
	`, r.tables.Transcripts)

	var t vm.Transcript
	err := r.pool.QueryRow(ctx, query, videoID).Scan(
		&t.VideoID, &t.Title, &t.ChannelName, &t.Description, &t.Segments, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("transcript %s: %w", videoID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	return &t, nil
}

func (r *TranscriptRepository) Upsert(ctx context.Context, t *vm.Transcript) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (video_id, title, channel_name, description, segments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (video_id) DO UPDATE SET
			title = EXCLUDED.title,
			channel_name = EXCLUDED.channel_name,
			description = EXCLUDED.description,
			segments = EXCLUDED.segments,
			updated_at = now()
		RETURNING created_at, updated_at
	`, r.tables.Transcripts)

	return r.pool.QueryRow(ctx, query, t.VideoID, t.Title, t.ChannelName, t.Description, t.Segments).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}
