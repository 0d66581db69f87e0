package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"meridian/internal/domain"
	wfmodels "meridian/internal/domain/models/workflow"
	workflowrepo "meridian/internal/domain/repositories/workflow"
	"meridian/internal/repository/postgres"
)

// EventStore is the pgx-backed append-only event log. Append serializes
// concurrent writers for one run via a row lock on its runs row, and the
// unique constraint on (run_id, index) makes a retried insert after a
// mid-append crash safely detectable (spec.md §4.1).
type EventStore struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

func NewEventStore(cfg *postgres.RepositoryConfig) workflowrepo.EventStore {
	return &EventStore{pool: cfg.Pool, tables: cfg.Tables}
}

func isTerminalState(state string) bool {
	switch wfmodels.RunState(state) {
	case wfmodels.RunStateCompleted, wfmodels.RunStateFailed, wfmodels.RunStateCancelled:
		return true
	default:
		return false
	}
}

func (s *EventStore) Append(ctx context.Context, runID string, kind wfmodels.EventKind, data json.RawMessage) (wfmodels.Event, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wfmodels.Event{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var state string
	err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT state FROM %s WHERE run_id = $1 FOR UPDATE`, s.tables.Runs), runID).Scan(&state)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return wfmodels.Event{}, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		}
		return wfmodels.Event{}, fmt.Errorf("lock run: %w", err)
	}
	if isTerminalState(state) {
		return wfmodels.Event{}, fmt.Errorf("run %s: %w", runID, domain.ErrRunTerminal)
	}

	var index int64
	err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(index), -1) + 1 FROM %s WHERE run_id = $1`, s.tables.Events), runID).Scan(&index)
	if err != nil {
		return wfmodels.Event{}, fmt.Errorf("compute next index: %w", err)
	}

	var ts time.Time
	insert := fmt.Sprintf(`
		INSERT INTO %s (run_id, index, kind, payload, ts)
		VALUES ($1, $2, $3, $4, now())
		RETURNING ts
	`, s.tables.Events)
	if err := tx.QueryRow(ctx, insert, runID, index, kind, data).Scan(&ts); err != nil {
		return wfmodels.Event{}, fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wfmodels.Event{}, fmt.Errorf("commit append: %w", err)
	}

	return wfmodels.Event{RunID: runID, Index: index, Kind: kind, Payload: data, Ts: ts}, nil
}

func (s *EventStore) ListFrom(ctx context.Context, runID string, fromIndex int64) ([]wfmodels.Event, error) {
	query := fmt.Sprintf(`
		SELECT run_id, index, kind, payload, ts
		FROM %s
		WHERE run_id = $1 AND index >= $2
		ORDER BY index ASC
	`, s.tables.Events)

	rows, err := s.pool.Query(ctx, query, runID, fromIndex)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []wfmodels.Event
	for rows.Next() {
		var ev wfmodels.Event
		if err := rows.Scan(&ev.RunID, &ev.Index, &ev.Kind, &ev.Payload, &ev.Ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *EventStore) Head(ctx context.Context, runID string) (int64, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(index), -1) FROM %s WHERE run_id = $1`, s.tables.Events)
	var head int64
	if err := s.pool.QueryRow(ctx, query, runID).Scan(&head); err != nil {
		return -1, fmt.Errorf("head: %w", err)
	}
	return head, nil
}
