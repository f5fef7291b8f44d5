package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ledger-service/internal/models"
)

// RebuildRunRepository keeps the audit trail of rebuild runs
type RebuildRunRepository interface {
	CreateRun(ctx context.Context, result *models.RebuildResult) error
	GetRunByBatchID(ctx context.Context, batchID string) (*models.RebuildRun, error)
	ListRecentRuns(ctx context.Context, limit int) ([]*models.RebuildRun, error)
	LastRunAt(ctx context.Context) (sql.NullTime, error)
}

type rebuildRunRepository struct {
	db *sql.DB
}

func NewRebuildRunRepository(db *sql.DB) RebuildRunRepository {
	return &rebuildRunRepository{db: db}
}

func (r *rebuildRunRepository) CreateRun(ctx context.Context, result *models.RebuildResult) error {
	details, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode rebuild details: %w", err)
	}

	query := `
		INSERT INTO rebuild_runs (
			batch_id, mode, status, records_processed,
			records_inserted, records_skipped, records_failed, details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		result.BatchID,
		string(result.Mode),
		result.Status,
		result.RecordsProcessed,
		result.RecordsInserted,
		result.RecordsSkipped,
		result.RecordsFailed,
		details,
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	result.ID = id
	return nil
}

func (r *rebuildRunRepository) GetRunByBatchID(ctx context.Context, batchID string) (*models.RebuildRun, error) {
	run := &models.RebuildRun{}
	query := `
		SELECT id, batch_id, mode, status, details, created_at
		FROM rebuild_runs
		WHERE batch_id = ?
	`
	var details []byte
	err := r.db.QueryRowContext(ctx, query, batchID).Scan(
		&run.ID,
		&run.BatchID,
		&run.Mode,
		&run.Status,
		&details,
		&run.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Details = rawDetails(details)
	return run, nil
}

func (r *rebuildRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]*models.RebuildRun, error) {
	query := `
		SELECT id, batch_id, mode, status, details, created_at
		FROM rebuild_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.RebuildRun
	for rows.Next() {
		run := &models.RebuildRun{}
		var details []byte
		if err := rows.Scan(&run.ID, &run.BatchID, &run.Mode, &run.Status, &details, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Details = rawDetails(details)
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *rebuildRunRepository) LastRunAt(ctx context.Context) (sql.NullTime, error) {
	var last sql.NullTime
	query := `SELECT MAX(created_at) FROM rebuild_runs WHERE status = ?`
	if err := r.db.QueryRowContext(ctx, query, models.StatusSucceeded).Scan(&last); err != nil {
		return sql.NullTime{}, err
	}
	return last, nil
}

func rawDetails(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}
