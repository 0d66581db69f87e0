package video

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"meridian/internal/domain"
	vm "meridian/internal/domain/models/video"
	videorepo "meridian/internal/domain/repositories/video"
	"meridian/internal/repository/postgres"
)

// staleExtractionAge is the repair threshold for an in_progress row with
// no slides to show for it (spec.md §3/§5: 30min repair threshold).
const staleExtractionAge = 30 * time.Minute

// SlideExtractionRepository tracks the single external slide-extraction job
// per resource. ClaimInProgress/ReplaceRunID implement the two-phase claim
// spec.md §4.4 requires: a caller reserves the row with a placeholder run id
// before it knows the real engine run id, so a concurrent caller racing for
// the same resource sees a non-empty RunID and loses.
type SlideExtractionRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

func NewSlideExtractionRepository(cfg *postgres.RepositoryConfig) videorepo.SlideExtractionRepository {
	return &SlideExtractionRepository{pool: cfg.Pool, tables: cfg.Tables}
}

func (r *SlideExtractionRepository) Get(ctx context.Context, resourceID string) (*vm.SlideExtraction, error) {
	query := fmt.Sprintf(`
		SELECT resource_id, status, run_id, total_slides, error_message, updated_at
		FROM %s WHERE resource_id = $1
	`, r.tables.SlideExtraction)

	var s vm.SlideExtraction
	err := r.pool.QueryRow(ctx, query, resourceID).Scan(
		&s.ResourceID, &s.Status, &s.RunID, &s.TotalSlides, &s.ErrorMessage, &s.UpdatedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("slide extraction %s: %w", resourceID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get slide extraction: %w", err)
	}

	if err := r.heal(ctx, &s); err != nil {
		return nil, fmt.Errorf("self-heal slide extraction: %w", err)
	}
	return &s, nil
}

// heal mirrors coordinator.go's attachOrHeal for the slide-extraction
// table: a row that has drifted from what its slides actually show is
// repaired in place before being handed back to a caller (spec.md §3(c),
// §8 testable property 8).
//
//   - in_progress with slides already recorded: the finalize step ran but
//     the status flip after it did not -> completed.
//   - completed with no slides: the status flip ran without the slides
//     that should back it -> failed(data_inconsistency).
//   - in_progress with no slides and stale beyond the repair threshold:
//     the extractor (or our own workflow) died silently -> failed(timeout).
func (r *SlideExtractionRepository) heal(ctx context.Context, s *vm.SlideExtraction) error {
	countQuery := fmt.Sprintf(`SELECT count(*) FROM %s WHERE resource_id = $1`, r.tables.Slides)
	var slideCount int
	if err := r.pool.QueryRow(ctx, countQuery, s.ResourceID).Scan(&slideCount); err != nil {
		return fmt.Errorf("count slides: %w", err)
	}

	switch {
	case s.Status == vm.SlideExtractionInProgress && slideCount > 0:
		if err := r.SetCompleted(ctx, s.ResourceID, slideCount); err != nil {
			return err
		}
		s.Status = vm.SlideExtractionCompleted
		s.TotalSlides = slideCount
		s.ErrorMessage = ""
	case s.Status == vm.SlideExtractionCompleted && slideCount == 0:
		if err := r.SetStatus(ctx, s.ResourceID, vm.SlideExtractionFailed, "data_inconsistency"); err != nil {
			return err
		}
		s.Status = vm.SlideExtractionFailed
		s.ErrorMessage = "data_inconsistency"
	case s.Status == vm.SlideExtractionInProgress && slideCount == 0 && s.Stale(time.Now(), staleExtractionAge):
		if err := r.SetStatus(ctx, s.ResourceID, vm.SlideExtractionFailed, "timeout"); err != nil {
			return err
		}
		s.Status = vm.SlideExtractionFailed
		s.ErrorMessage = "timeout"
	}
	return nil
}

// ClaimInProgress upserts the row to status=in_progress, setting RunID to
// placeholder only if the row is new or its current RunID is empty (i.e. no
// other caller holds an active claim). It reports true when the row's
// resulting RunID equals placeholder, i.e. this caller won the claim.
func (r *SlideExtractionRepository) ClaimInProgress(ctx context.Context, resourceID, placeholder string) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (resource_id, status, run_id, total_slides, error_message, updated_at)
		VALUES ($1, 'in_progress', $2, 0, '', now())
		ON CONFLICT (resource_id) DO UPDATE SET
			status = 'in_progress',
			run_id = CASE WHEN %s.run_id = '' THEN $2 ELSE %s.run_id END,
			updated_at = now()
		RETURNING run_id
	`, r.tables.SlideExtraction, r.tables.SlideExtraction, r.tables.SlideExtraction)

	var winningRunID string
	if err := r.pool.QueryRow(ctx, query, resourceID, placeholder).Scan(&winningRunID); err != nil {
		return false, fmt.Errorf("claim slide extraction: %w", err)
	}
	return winningRunID == placeholder, nil
}

func (r *SlideExtractionRepository) ReplaceRunID(ctx context.Context, resourceID, placeholder, realRunID string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET run_id = $1, updated_at = now()
		WHERE resource_id = $2 AND run_id = $3
	`, r.tables.SlideExtraction)
	result, err := r.pool.Exec(ctx, query, realRunID, resourceID, placeholder)
	if err != nil {
		return fmt.Errorf("replace slide extraction run id: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("slide extraction %s: placeholder mismatch: %w", resourceID, domain.ErrConflict)
	}
	return nil
}

func (r *SlideExtractionRepository) SetStatus(ctx context.Context, resourceID string, status vm.SlideExtractionStatus, errMessage string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = $1, error_message = $2, updated_at = now()
		WHERE resource_id = $3
	`, r.tables.SlideExtraction)
	_, err := r.pool.Exec(ctx, query, status, errMessage, resourceID)
	if err != nil {
		return fmt.Errorf("set slide extraction status: %w", err)
	}
	return nil
}

func (r *SlideExtractionRepository) SetCompleted(ctx context.Context, resourceID string, totalSlides int) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = 'completed', total_slides = $1, error_message = '', updated_at = now()
		WHERE resource_id = $2
	`, r.tables.SlideExtraction)
	_, err := r.pool.Exec(ctx, query, totalSlides, resourceID)
	if err != nil {
		return fmt.Errorf("set slide extraction completed: %w", err)
	}
	return nil
}
