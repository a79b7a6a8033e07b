package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/infra/storage"
)

// UnitOfWork holds a checkpoint row lock for the lifetime of one run. The
// row stays locked (SELECT ... FOR UPDATE) until Commit or Release, so a
// concurrent run or an administrative override blocks instead of racing.
type UnitOfWork struct {
	tx         *sqlx.Tx
	checkpoint *domain.Checkpoint
}

var _ storage.CheckpointLease = (*UnitOfWork)(nil)

// Checkpoint returns the row read under the lock.
func (u *UnitOfWork) Checkpoint() *domain.Checkpoint {
	return u.checkpoint
}

// Commit writes the new height and commits the transaction.
func (u *UnitOfWork) Commit(ctx context.Context, height int64) error {
	if u.tx == nil {
		return storage.ErrLeaseClosed
	}

	_, err := u.tx.ExecContext(ctx, `
		UPDATE checkpoints
		SET last_checked_height = $2, updated_at = NOW()
		WHERE name = $1
	`, u.checkpoint.Name, height)
	if err != nil {
		_ = u.Release()
		return fmt.Errorf("failed to update checkpoint: %w", err)
	}

	err = u.tx.Commit()
	u.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// Release rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Release() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}
