package backend

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/infra/storage"
)

// CheckpointRepo keeps the checkpoint in the backend's general settings.
// The backend holds a single height, so the name only labels the result.
// Leases are exclusive within the process; run the observer with the Redis
// run lock when several replicas share a backend.
type CheckpointRepo struct {
	client *Client
	sem    chan struct{}
}

var _ storage.CheckpointRepository = (*CheckpointRepo)(nil)

func NewCheckpointRepo(client *Client) *CheckpointRepo {
	return &CheckpointRepo{client: client, sem: make(chan struct{}, 1)}
}

func (r *CheckpointRepo) Acquire(ctx context.Context, name string) (storage.CheckpointLease, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	cp, err := r.Get(ctx, name)
	if err != nil {
		<-r.sem
		return nil, err
	}
	return &lease{repo: r, checkpoint: cp}, nil
}

func (r *CheckpointRepo) Get(ctx context.Context, name string) (*domain.Checkpoint, error) {
	height, err := r.client.LastCheckedHeight(ctx)
	if err != nil {
		return nil, err
	}
	if height == 0 {
		return nil, nil
	}
	return &domain.Checkpoint{Name: name, LastCheckedHeight: height}, nil
}

type lease struct {
	repo       *CheckpointRepo
	checkpoint *domain.Checkpoint
	mu         sync.Mutex
	closed     bool
}

func (l *lease) Checkpoint() *domain.Checkpoint {
	return l.checkpoint
}

func (l *lease) Commit(ctx context.Context, height int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return storage.ErrLeaseClosed
	}
	l.closed = true
	defer func() { <-l.repo.sem }()

	if err := l.repo.client.SetLastCheckedHeight(ctx, height); err != nil {
		return err
	}
	if l.checkpoint != nil {
		l.checkpoint.LastCheckedHeight = height
		l.checkpoint.UpdatedAt = time.Now()
	}
	return nil
}

func (l *lease) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	<-l.repo.sem
	return nil
}
