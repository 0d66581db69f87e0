// Package workflow is the Postgres-backed implementation of the engine's
// storage ports (internal/domain/repositories/workflow): the run table and
// the append-only event log, with the unique constraints spec.md §4.1 and
// §8 require for crash-safe, at-least-once append.
package workflow

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"meridian/internal/domain"
	wfmodels "meridian/internal/domain/models/workflow"
	workflowrepo "meridian/internal/domain/repositories/workflow"
	"meridian/internal/repository/postgres"
)

// RunStore is the pgx-backed implementation of workflowrepo.RunStore.
type RunStore struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

// NewRunStore builds a RunStore from the shared repository config.
func NewRunStore(cfg *postgres.RepositoryConfig) workflowrepo.RunStore {
	return &RunStore{pool: cfg.Pool, tables: cfg.Tables}
}

func (s *RunStore) Create(ctx context.Context, run *wfmodels.Run) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, workflow_name, args, args_digest, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING created_at, updated_at
	`, s.tables.Runs)

	err := s.pool.QueryRow(ctx, query, run.RunID, run.WorkflowName, run.Args, run.ArgsDigest, run.State).
		Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, runID string) (*wfmodels.Run, error) {
	query := fmt.Sprintf(`
		SELECT run_id, workflow_name, args, args_digest, state, created_at, updated_at
		FROM %s WHERE run_id = $1
	`, s.tables.Runs)

	var run wfmodels.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.RunID, &run.WorkflowName, &run.Args, &run.ArgsDigest, &run.State, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

func (s *RunStore) UpdateState(ctx context.Context, runID string, state wfmodels.RunState) error {
	query := fmt.Sprintf(`UPDATE %s SET state = $1, updated_at = now() WHERE run_id = $2`, s.tables.Runs)
	result, err := s.pool.Exec(ctx, query, state, runID)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return nil
}

func (s *RunStore) ListNonTerminal(ctx context.Context) ([]*wfmodels.Run, error) {
	query := fmt.Sprintf(`
		SELECT run_id, workflow_name, args, args_digest, state, created_at, updated_at
		FROM %s
		WHERE state NOT IN ('completed', 'failed', 'cancelled')
		ORDER BY created_at ASC
	`, s.tables.Runs)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal runs: %w", err)
	}
	defer rows.Close()

	var runs []*wfmodels.Run
	for rows.Next() {
		var run wfmodels.Run
		if err := rows.Scan(&run.RunID, &run.WorkflowName, &run.Args, &run.ArgsDigest, &run.State, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
