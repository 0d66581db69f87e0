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

// SlideFeedbackRepository persists which frames of a slide a caller has
// marked worth analyzing (spec.md §4.6.4, §4.7).
type SlideFeedbackRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

func NewSlideFeedbackRepository(cfg *postgres.RepositoryConfig) videorepo.SlideFeedbackRepository {
	return &SlideFeedbackRepository{pool: cfg.Pool, tables: cfg.Tables}
}

func (r *SlideFeedbackRepository) Get(ctx context.Context, resourceID string, slideNumber int) (*vm.SlideFeedback, error) {
	query := fmt.Sprintf(`
		SELECT resource_id, slide_number, is_first_frame_picked, is_last_frame_picked
		FROM %s WHERE resource_id = $1 AND slide_number = $2
	`, r.tables.SlideFeedback)

	var fb vm.SlideFeedback
	err := r.pool.QueryRow(ctx, query, resourceID, slideNumber).Scan(
		&fb.ResourceID, &fb.SlideNumber, &fb.IsFirstFramePicked, &fb.IsLastFramePicked,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("slide feedback %s/%d: %w", resourceID, slideNumber, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get slide feedback: %w", err)
	}
	return &fb, nil
}

func (r *SlideFeedbackRepository) List(ctx context.Context, resourceID string) ([]vm.SlideFeedback, error) {
	query := fmt.Sprintf(`
		SELECT resource_id, slide_number, is_first_frame_picked, is_last_frame_picked
		FROM %s WHERE resource_id = $1 ORDER BY slide_number ASC
	`, r.tables.SlideFeedback)

	rows, err := r.pool.Query(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list slide feedback: %w", err)
	}
	defer rows.Close()

	var out []vm.SlideFeedback
	for rows.Next() {
		var fb vm.SlideFeedback
		if err := rows.Scan(&fb.ResourceID, &fb.SlideNumber, &fb.IsFirstFramePicked, &fb.IsLastFramePicked); err != nil {
			return nil, fmt.Errorf("scan slide feedback: %w", err)
		}
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slide feedback: %w", err)
	}
	return out, nil
}

func (r *SlideFeedbackRepository) Upsert(ctx context.Context, fb *vm.SlideFeedback) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (resource_id, slide_number, is_first_frame_picked, is_last_frame_picked)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (resource_id, slide_number) DO UPDATE SET
			is_first_frame_picked = EXCLUDED.is_first_frame_picked,
			is_last_frame_picked = EXCLUDED.is_last_frame_picked
	`, r.tables.SlideFeedback)

	_, err := r.pool.Exec(ctx, query, fb.ResourceID, fb.SlideNumber, fb.IsFirstFramePicked, fb.IsLastFramePicked)
	if err != nil {
		return fmt.Errorf("upsert slide feedback: %w", err)
	}
	return nil
}
