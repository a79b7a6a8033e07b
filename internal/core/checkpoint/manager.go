package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/indexing/metrics"
	"github.com/vietddude/chain-observer/internal/infra/storage"
)

var (
	// ErrCheckpointRegression is returned when a run tries to commit a height
	// below the one it started from.
	ErrCheckpointRegression = errors.New("checkpoint regression")
)

// Manager handles checkpoint reads and writes for the run loop.
type Manager interface {
	// Begin locks the checkpoint for one run.
	Begin(ctx context.Context) (*Run, error)

	// Get returns the effective last checked height without locking.
	Get(ctx context.Context) (int64, error)

	// Override sets the height under the same lock a run takes, so it never
	// interleaves with an in-flight run. It may move the checkpoint backwards.
	Override(ctx context.Context, height int64) (previous int64, err error)

	// Lag returns how many blocks the checkpoint is behind head.
	Lag(ctx context.Context, head int64) (int64, error)
}

// DefaultManager implements Manager over a storage.CheckpointRepository.
type DefaultManager struct {
	repo          storage.CheckpointRepository
	name          string
	initialHeight int64
}

var _ Manager = (*DefaultManager)(nil)

// NewManager creates a manager for the named checkpoint. While the stored
// height is absent or zero, the first window starts at initialHeight itself.
func NewManager(repo storage.CheckpointRepository, name string, initialHeight int64) *DefaultManager {
	return &DefaultManager{
		repo:          repo,
		name:          name,
		initialHeight: initialHeight,
	}
}

func (m *DefaultManager) effective(cp *domain.Checkpoint) int64 {
	if cp == nil || cp.LastCheckedHeight == 0 {
		if m.initialHeight > 0 {
			return m.initialHeight - 1
		}
		return 0
	}
	return cp.LastCheckedHeight
}

// Begin locks the checkpoint and returns the run holding it.
func (m *DefaultManager) Begin(ctx context.Context) (*Run, error) {
	lease, err := m.repo.Acquire(ctx, m.name)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire checkpoint: %w", err)
	}
	return &Run{lease: lease, height: m.effective(lease.Checkpoint())}, nil
}

// Get returns the effective last checked height.
func (m *DefaultManager) Get(ctx context.Context) (int64, error) {
	cp, err := m.repo.Get(ctx, m.name)
	if err != nil {
		return 0, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return m.effective(cp), nil
}

// Override sets the checkpoint to height.
func (m *DefaultManager) Override(ctx context.Context, height int64) (int64, error) {
	if height < 0 {
		return 0, fmt.Errorf("invalid checkpoint height %d", height)
	}

	lease, err := m.repo.Acquire(ctx, m.name)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire checkpoint: %w", err)
	}
	previous := m.effective(lease.Checkpoint())

	if err := lease.Commit(ctx, height); err != nil {
		_ = lease.Release()
		return previous, fmt.Errorf("failed to override checkpoint: %w", err)
	}
	metrics.CheckpointHeight.Set(float64(height))
	return previous, nil
}

// Lag returns blocks behind head, never negative.
func (m *DefaultManager) Lag(ctx context.Context, head int64) (int64, error) {
	height, err := m.Get(ctx)
	if err != nil {
		return 0, err
	}
	if head <= height {
		return 0, nil
	}
	return head - height, nil
}

// Run is one locked read-modify-write cycle of the checkpoint.
type Run struct {
	lease  storage.CheckpointLease
	height int64
}

// Height is the checkpoint read when the run began.
func (r *Run) Height() int64 {
	return r.height
}

// Commit writes height and ends the run. Heights below the starting
// checkpoint are refused and the lease is released untouched.
func (r *Run) Commit(ctx context.Context, height int64) error {
	if height < r.height {
		_ = r.lease.Release()
		return fmt.Errorf("%w: commit %d below checkpoint %d", ErrCheckpointRegression, height, r.height)
	}

	if err := r.lease.Commit(ctx, height); err != nil {
		_ = r.lease.Release()
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	metrics.CheckpointHeight.Set(float64(height))
	return nil
}

// Release ends the run without writing. Safe after Commit.
func (r *Run) Release() error {
	return r.lease.Release()
}
