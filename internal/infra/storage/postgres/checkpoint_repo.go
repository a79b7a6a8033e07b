package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/infra/storage"
)

// CheckpointRepo implements storage.CheckpointRepository using PostgreSQL.
type CheckpointRepo struct {
	db *DB
}

var _ storage.CheckpointRepository = (*CheckpointRepo)(nil)

// NewCheckpointRepo creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

type checkpointRow struct {
	Name              string    `db:"name"`
	LastCheckedHeight int64     `db:"last_checked_height"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r checkpointRow) toDomain() *domain.Checkpoint {
	return &domain.Checkpoint{
		Name:              r.Name,
		LastCheckedHeight: r.LastCheckedHeight,
		UpdatedAt:         r.UpdatedAt,
	}
}

// Acquire opens a transaction and locks the checkpoint row. The row is
// created at height 0 first so that the very first run is serialized too.
func (r *CheckpointRepo) Acquire(ctx context.Context, name string) (storage.CheckpointLease, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints (name, last_checked_height)
		VALUES ($1, 0)
		ON CONFLICT (name) DO NOTHING
	`, name); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to ensure checkpoint row: %w", err)
	}

	var row checkpointRow
	if err := tx.GetContext(ctx, &row, `
		SELECT name, last_checked_height, updated_at
		FROM checkpoints
		WHERE name = $1
		FOR UPDATE
	`, name); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to lock checkpoint: %w", err)
	}

	return &UnitOfWork{tx: tx, checkpoint: row.toDomain()}, nil
}

// Get retrieves a checkpoint by name without locking it.
func (r *CheckpointRepo) Get(ctx context.Context, name string) (*domain.Checkpoint, error) {
	var row checkpointRow
	err := r.db.GetContext(ctx, &row, `
		SELECT name, last_checked_height, updated_at
		FROM checkpoints
		WHERE name = $1
	`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return row.toDomain(), nil
}
