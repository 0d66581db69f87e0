package video

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	vm "meridian/internal/domain/models/video"
	videorepo "meridian/internal/domain/repositories/video"
	"meridian/internal/repository/postgres"
)

// SlideRepository persists the static-segment boundaries a slide-extraction
// run discovers. Insert is idempotent so a resumed extraction step can
// replay its frame list without duplicating rows (spec.md §4.6.3).
type SlideRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

func NewSlideRepository(cfg *postgres.RepositoryConfig) videorepo.SlideRepository {
	return &SlideRepository{pool: cfg.Pool, tables: cfg.Tables}
}

func (r *SlideRepository) Insert(ctx context.Context, s *vm.Slide) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			resource_id, slide_number,
			first_public_url, first_source_uri, first_has_text, first_dup_slide_number, first_dup_frame_position,
			last_public_url, last_source_uri, last_has_text, last_dup_slide_number, last_dup_frame_position,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (resource_id, slide_number) DO NOTHING
	`, r.tables.Slides)

	_, err := r.pool.Exec(ctx, query,
		s.ResourceID, s.SlideNumber,
		s.First.PublicURL, s.First.SourceURI, s.First.HasText, s.First.DuplicateOfSlideNumber, s.First.DuplicateOfFramePosition,
		s.Last.PublicURL, s.Last.SourceURI, s.Last.HasText, s.Last.DuplicateOfSlideNumber, s.Last.DuplicateOfFramePosition,
	)
	if err != nil {
		return fmt.Errorf("insert slide: %w", err)
	}
	return nil
}

func (r *SlideRepository) List(ctx context.Context, resourceID string) ([]*vm.Slide, error) {
	query := fmt.Sprintf(`
		SELECT
			resource_id, slide_number,
			first_public_url, first_source_uri, first_has_text, first_dup_slide_number, first_dup_frame_position,
			last_public_url, last_source_uri, last_has_text, last_dup_slide_number, last_dup_frame_position,
			created_at
		FROM %s WHERE resource_id = $1 ORDER BY slide_number ASC
	`, r.tables.Slides)

	rows, err := r.pool.Query(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list slides: %w", err)
	}
	defer rows.Close()

	var out []*vm.Slide
	for rows.Next() {
		var s vm.Slide
		if err := rows.Scan(
			&s.ResourceID, &s.SlideNumber,
			&s.First.PublicURL, &s.First.SourceURI, &s.First.HasText, &s.First.DuplicateOfSlideNumber, &s.First.DuplicateOfFramePosition,
			&s.Last.PublicURL, &s.Last.SourceURI, &s.Last.HasText, &s.Last.DuplicateOfSlideNumber, &s.Last.DuplicateOfFramePosition,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan slide: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slides: %w", err)
	}
	return out, nil
}

func (r *SlideRepository) Exists(ctx context.Context, resourceID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE resource_id = $1)`, r.tables.Slides)
	var exists bool
	if err := r.pool.QueryRow(ctx, query, resourceID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slides exist: %w", err)
	}
	return exists, nil
}

func (r *SlideRepository) Count(ctx context.Context, resourceID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE resource_id = $1`, r.tables.Slides)
	var count int
	if err := r.pool.QueryRow(ctx, query, resourceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count slides: %w", err)
	}
	return count, nil
}
