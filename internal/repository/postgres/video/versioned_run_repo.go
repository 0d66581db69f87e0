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

// VersionedRunRepository implements the per-resource version history the
// Coordinator dispatches against (spec.md §4.4, §4.7). The uniqueness
// guarantees it relies on are schema-level: a unique (resource_id,
// resource_kind, version) constraint and a partial unique index on
// (resource_id, resource_kind) WHERE status = 'streaming'.
type VersionedRunRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

func NewVersionedRunRepository(cfg *postgres.RepositoryConfig) videorepo.VersionedRunRepository {
	return &VersionedRunRepository{pool: cfg.Pool, tables: cfg.Tables}
}

func (r *VersionedRunRepository) scanRow(row interface{ Scan(...interface{}) error }) (*vm.VersionedRun, error) {
	var v vm.VersionedRun
	err := row.Scan(&v.ResourceID, &v.ResourceKind, &v.Version, &v.Status, &v.WorkflowRunID,
		&v.AdditionalInstructions, &v.ResultJSON, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VersionedRunRepository) GetLatestCompleted(ctx context.Context, resourceID string, kind vm.ResourceKind) (*vm.VersionedRun, error) {
	query := fmt.Sprintf(`
		SELECT resource_id, resource_kind, version, status, workflow_run_id, additional_instructions, result_json, created_at, updated_at
		FROM %s
		WHERE resource_id = $1 AND resource_kind = $2 AND status = 'completed'
		ORDER BY version DESC LIMIT 1
	`, r.tables.VersionedRuns)

	v, err := r.scanRow(r.pool.QueryRow(ctx, query, resourceID, kind))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest completed versioned run: %w", err)
	}
	return v, nil
}

func (r *VersionedRunRepository) GetStreaming(ctx context.Context, resourceID string, kind vm.ResourceKind) (*vm.VersionedRun, error) {
	query := fmt.Sprintf(`
		SELECT resource_id, resource_kind, version, status, workflow_run_id, additional_instructions, result_json, created_at, updated_at
		FROM %s
		WHERE resource_id = $1 AND resource_kind = $2 AND status = 'streaming'
		LIMIT 1
	`, r.tables.VersionedRuns)

	v, err := r.scanRow(r.pool.QueryRow(ctx, query, resourceID, kind))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get streaming versioned run: %w", err)
	}

	// Self-heal (spec.md §3(c), §8 testable property 8): a row stuck in
	// streaming whose result was in fact persisted means persist_result
	// ran but the status flip after it did not. Surface it as completed
	// rather than reporting a live run that no longer exists.
	if len(v.ResultJSON) > 0 {
		if err := r.Complete(ctx, resourceID, kind, v.Version, v.ResultJSON); err != nil {
			return nil, fmt.Errorf("self-heal streaming versioned run: %w", err)
		}
		v.Status = vm.VersionedRunCompleted
	}
	return v, nil
}

// Create assigns version = max(version)+1 within one statement. Two
// concurrent callers for the same resource may compute the same next
// version; the loser fails the unique constraint and is expected to fall
// back to GetStreaming (spec.md §4.4 race handling).
func (r *VersionedRunRepository) Create(ctx context.Context, row *vm.VersionedRun) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (resource_id, resource_kind, version, status, workflow_run_id, additional_instructions, created_at, updated_at)
		SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5, now(), now()
		FROM %s WHERE resource_id = $1 AND resource_kind = $2
		RETURNING version, created_at, updated_at
	`, r.tables.VersionedRuns, r.tables.VersionedRuns)

	err := r.pool.QueryRow(ctx, query, row.ResourceID, row.ResourceKind, row.Status, row.WorkflowRunID, row.AdditionalInstructions).
		Scan(&row.Version, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return fmt.Errorf("versioned run for %s: %w", row.ResourceID, domain.ErrConflict)
		}
		return fmt.Errorf("create versioned run: %w", err)
	}
	return nil
}

func (r *VersionedRunRepository) SetWorkflowRunID(ctx context.Context, resourceID string, kind vm.ResourceKind, version int, workflowRunID string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET workflow_run_id = $1, updated_at = now()
		WHERE resource_id = $2 AND resource_kind = $3 AND version = $4
	`, r.tables.VersionedRuns)
	_, err := r.pool.Exec(ctx, query, workflowRunID, resourceID, kind, version)
	if err != nil {
		return fmt.Errorf("set workflow run id: %w", err)
	}
	return nil
}

func (r *VersionedRunRepository) Complete(ctx context.Context, resourceID string, kind vm.ResourceKind, version int, resultJSON []byte) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = 'completed', result_json = $1, updated_at = now()
		WHERE resource_id = $2 AND resource_kind = $3 AND version = $4
	`, r.tables.VersionedRuns)
	_, err := r.pool.Exec(ctx, query, resultJSON, resourceID, kind, version)
	if err != nil {
		return fmt.Errorf("complete versioned run: %w", err)
	}
	return nil
}

func (r *VersionedRunRepository) Fail(ctx context.Context, resourceID string, kind vm.ResourceKind, version int) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = 'failed', updated_at = now()
		WHERE resource_id = $1 AND resource_kind = $2 AND version = $3
	`, r.tables.VersionedRuns)
	_, err := r.pool.Exec(ctx, query, resourceID, kind, version)
	if err != nil {
		return fmt.Errorf("fail versioned run: %w", err)
	}
	return nil
}

func (r *VersionedRunRepository) List(ctx context.Context, resourceID string, kind vm.ResourceKind) ([]*vm.VersionedRun, error) {
	query := fmt.Sprintf(`
		SELECT resource_id, resource_kind, version, status, workflow_run_id, additional_instructions, result_json, created_at, updated_at
		FROM %s
		WHERE resource_id = $1 AND resource_kind = $2
		ORDER BY version DESC
	`, r.tables.VersionedRuns)

	rows, err := r.pool.Query(ctx, query, resourceID, kind)
	if err != nil {
		return nil, fmt.Errorf("list versioned runs: %w", err)
	}
	defer rows.Close()

	var out []*vm.VersionedRun
	for rows.Next() {
		var v vm.VersionedRun
		if err := rows.Scan(&v.ResourceID, &v.ResourceKind, &v.Version, &v.Status, &v.WorkflowRunID,
			&v.AdditionalInstructions, &v.ResultJSON, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan versioned run: %w", err)
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versioned runs: %w", err)
	}
	return out, nil
}
