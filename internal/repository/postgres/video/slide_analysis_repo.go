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

// SlideAnalysisRepository persists per-(slide, frame) LLM analysis
// markdown. Upsert makes the per-slide-analysis step idempotent under
// replay (spec.md §4.6.4).
type SlideAnalysisRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

func NewSlideAnalysisRepository(cfg *postgres.RepositoryConfig) videorepo.SlideAnalysisRepository {
	return &SlideAnalysisRepository{pool: cfg.Pool, tables: cfg.Tables}
}

func (r *SlideAnalysisRepository) Upsert(ctx context.Context, res *vm.SlideAnalysisResult) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (resource_id, slide_number, frame_position, markdown, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (resource_id, slide_number, frame_position) DO UPDATE SET
			markdown = EXCLUDED.markdown
		RETURNING created_at
	`, r.tables.SlideAnalysisResults)

	return r.pool.QueryRow(ctx, query, res.ResourceID, res.SlideNumber, res.FramePosition, res.Markdown).
		Scan(&res.CreatedAt)
}

func (r *SlideAnalysisRepository) Get(ctx context.Context, resourceID string, slideNumber int, pos vm.FramePosition) (*vm.SlideAnalysisResult, error) {
	query := fmt.Sprintf(`
		SELECT resource_id, slide_number, frame_position, markdown, created_at
		FROM %s WHERE resource_id = $1 AND slide_number = $2 AND frame_position = $3
	`, r.tables.SlideAnalysisResults)

	var res vm.SlideAnalysisResult
	err := r.pool.QueryRow(ctx, query, resourceID, slideNumber, pos).Scan(
		&res.ResourceID, &res.SlideNumber, &res.FramePosition, &res.Markdown, &res.CreatedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("slide analysis %s/%d/%s: %w", resourceID, slideNumber, pos, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get slide analysis: %w", err)
	}
	return &res, nil
}

func (r *SlideAnalysisRepository) List(ctx context.Context, resourceID string) ([]*vm.SlideAnalysisResult, error) {
	query := fmt.Sprintf(`
		SELECT resource_id, slide_number, frame_position, markdown, created_at
		FROM %s WHERE resource_id = $1 ORDER BY slide_number ASC, frame_position ASC
	`, r.tables.SlideAnalysisResults)

	rows, err := r.pool.Query(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list slide analysis: %w", err)
	}
	defer rows.Close()

	var out []*vm.SlideAnalysisResult
	for rows.Next() {
		var res vm.SlideAnalysisResult
		if err := rows.Scan(&res.ResourceID, &res.SlideNumber, &res.FramePosition, &res.Markdown, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan slide analysis: %w", err)
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slide analysis: %w", err)
	}
	return out, nil
}
