package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/infra/storage"
)

// MemoryStorage keeps checkpoints and purchases in process memory.
type MemoryStorage struct {
	checkpoints map[string]domain.Checkpoint
	purchases   map[string]domain.PurchaseTransaction
	locks       map[string]chan struct{}
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		checkpoints: make(map[string]domain.Checkpoint),
		purchases:   make(map[string]domain.PurchaseTransaction),
		locks:       make(map[string]chan struct{}),
	}
}

// lockFor returns the single-slot semaphore guarding one checkpoint row.
func (s *MemoryStorage) lockFor(name string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[name] = l
	}
	return l
}

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

type CheckpointRepo struct {
	store *MemoryStorage
}

var _ storage.CheckpointRepository = (*CheckpointRepo)(nil)

func NewCheckpointRepo(store *MemoryStorage) *CheckpointRepo {
	return &CheckpointRepo{store: store}
}

func (r *CheckpointRepo) Acquire(ctx context.Context, name string) (storage.CheckpointLease, error) {
	l := r.store.lockFor(name)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	cp, err := r.Get(ctx, name)
	if err != nil {
		<-l
		return nil, err
	}
	return &lease{store: r.store, name: name, lock: l, checkpoint: cp}, nil
}

func (r *CheckpointRepo) Get(ctx context.Context, name string) (*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cp, ok := r.store.checkpoints[name]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

type lease struct {
	store      *MemoryStorage
	name       string
	lock       chan struct{}
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

	l.store.mu.Lock()
	l.store.checkpoints[l.name] = domain.Checkpoint{
		Name:              l.name,
		LastCheckedHeight: height,
		UpdatedAt:         time.Now(),
	}
	l.store.mu.Unlock()

	l.closed = true
	<-l.lock
	return nil
}

func (l *lease) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	<-l.lock
	return nil
}

// -----------------------------------------------------------------------------
// Purchase Repository
// -----------------------------------------------------------------------------

type PurchaseRepo struct {
	store *MemoryStorage
}

var _ storage.PurchaseRepository = (*PurchaseRepo)(nil)

func NewPurchaseRepo(store *MemoryStorage) *PurchaseRepo {
	return &PurchaseRepo{store: store}
}

func (r *PurchaseRepo) GetByHashes(ctx context.Context, hashes []string) (map[string]domain.PurchaseTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	result := make(map[string]domain.PurchaseTransaction, len(hashes))
	for _, h := range hashes {
		if p, ok := r.store.purchases[h]; ok {
			result[h] = p
		}
	}
	return result, nil
}

func (r *PurchaseRepo) SaveBatch(ctx context.Context, purchases []domain.PurchaseTransaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range purchases {
		existing, ok := r.store.purchases[p.TxHash]
		if !ok {
			r.store.purchases[p.TxHash] = p
			continue
		}
		// Same rule as the SQL upsert: terminal rows are frozen
		if existing.Status.IsTerminal() {
			continue
		}
		if existing.Timestamp != 0 {
			p.Timestamp = existing.Timestamp
		}
		r.store.purchases[p.TxHash] = p
	}
	return nil
}

func (r *PurchaseRepo) CountByStatus(ctx context.Context) (map[domain.PurchaseStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.PurchaseStatus]int)
	for _, p := range r.store.purchases {
		counts[p.Status]++
	}
	return counts, nil
}
