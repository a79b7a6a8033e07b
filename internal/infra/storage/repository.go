package storage

import (
	"context"
	"errors"

	"github.com/vietddude/chain-observer/internal/core/domain"
)

var (
	// ErrLeaseClosed is returned when a lease is used after Commit or Release.
	ErrLeaseClosed = errors.New("checkpoint lease already closed")
)

// CheckpointLease is exclusive access to one checkpoint row. No other lease on
// the same name can be acquired until Commit or Release.
type CheckpointLease interface {
	// Checkpoint returns the row read under the lock, nil when it does not exist yet.
	Checkpoint() *domain.Checkpoint

	// Commit writes the new height and releases the lease.
	Commit(ctx context.Context, height int64) error

	// Release gives up the lease without writing. Safe after Commit.
	Release() error
}

// CheckpointRepository handles checkpoint storage operations
type CheckpointRepository interface {
	// Acquire locks the named checkpoint for a read-modify-write cycle.
	// It blocks until the lock is available or ctx is done.
	Acquire(ctx context.Context, name string) (CheckpointLease, error)

	// Get reads the checkpoint without locking. Returns nil when absent.
	Get(ctx context.Context, name string) (*domain.Checkpoint, error)
}

// PurchaseRepository handles the local ledger of on-demand mint purchases
type PurchaseRepository interface {
	// GetByHashes returns the known purchases keyed by tx hash
	GetByHashes(ctx context.Context, hashes []string) (map[string]domain.PurchaseTransaction, error)

	// SaveBatch upserts purchases by tx hash. A stored terminal status is
	// never overwritten.
	SaveBatch(ctx context.Context, purchases []domain.PurchaseTransaction) error

	// CountByStatus summarises the ledger
	CountByStatus(ctx context.Context) (map[domain.PurchaseStatus]int, error)
}
