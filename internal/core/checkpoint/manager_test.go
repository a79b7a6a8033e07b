package checkpoint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/infra/storage"
)

// =============================================================================
// Mock Repository
// =============================================================================

type mockCheckpointRepo struct {
	mu          sync.RWMutex
	checkpoints map[string]*domain.Checkpoint
	commits     int
	acquireErr  error
}

func newMockCheckpointRepo() *mockCheckpointRepo {
	return &mockCheckpointRepo{
		checkpoints: make(map[string]*domain.Checkpoint),
	}
}

func (r *mockCheckpointRepo) Acquire(ctx context.Context, name string) (storage.CheckpointLease, error) {
	if r.acquireErr != nil {
		return nil, r.acquireErr
	}
	cp, _ := r.Get(ctx, name)
	return &mockLease{repo: r, name: name, cp: cp}, nil
}

func (r *mockCheckpointRepo) Get(ctx context.Context, name string) (*domain.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp, ok := r.checkpoints[name]
	if !ok {
		return nil, nil
	}
	// Return a copy
	c := *cp
	return &c, nil
}

func (r *mockCheckpointRepo) set(name string, height int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints[name] = &domain.Checkpoint{Name: name, LastCheckedHeight: height, UpdatedAt: time.Now()}
}

type mockLease struct {
	repo     *mockCheckpointRepo
	name     string
	cp       *domain.Checkpoint
	released bool
}

func (l *mockLease) Checkpoint() *domain.Checkpoint { return l.cp }

func (l *mockLease) Commit(ctx context.Context, height int64) error {
	if l.released {
		return storage.ErrLeaseClosed
	}
	l.repo.set(l.name, height)
	l.repo.mu.Lock()
	l.repo.commits++
	l.repo.mu.Unlock()
	l.released = true
	return nil
}

func (l *mockLease) Release() error {
	l.released = true
	return nil
}

// =============================================================================
// Tests
// =============================================================================

func TestBegin_InitialHeight(t *testing.T) {
	tests := []struct {
		name    string
		stored  *int64
		initial int64
		want    int64
	}{
		{"absent row starts at initial height", nil, 5000, 4999},
		{"zero row starts at initial height", ptr(0), 5000, 4999},
		{"stored height wins", ptr(7000), 5000, 7000},
		{"absent row without initial height", nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockCheckpointRepo()
			if tt.stored != nil {
				repo.set("observer", *tt.stored)
			}
			mgr := NewManager(repo, "observer", tt.initial)

			run, err := mgr.Begin(context.Background())
			if err != nil {
				t.Fatalf("Begin failed: %v", err)
			}
			defer run.Release()

			if run.Height() != tt.want {
				t.Errorf("Height() = %d, want %d", run.Height(), tt.want)
			}
			if tt.stored == nil && tt.initial > 0 {
				if from := domain.NewHeightWindow(run.Height(), tt.initial+10, 100).From(); from != tt.initial {
					t.Errorf("first window starts at %d, want %d", from, tt.initial)
				}
			}
		})
	}
}

func TestRunCommit_Monotonic(t *testing.T) {
	ctx := context.Background()
	repo := newMockCheckpointRepo()
	repo.set("observer", 600)
	mgr := NewManager(repo, "observer", 0)

	run, err := mgr.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	err = run.Commit(ctx, 599)
	if !errors.Is(err, ErrCheckpointRegression) {
		t.Fatalf("expected ErrCheckpointRegression, got %v", err)
	}

	height, _ := mgr.Get(ctx)
	if height != 600 {
		t.Errorf("checkpoint moved to %d after refused commit", height)
	}
	if repo.commits != 0 {
		t.Errorf("expected no commits, got %d", repo.commits)
	}

	run, _ = mgr.Begin(ctx)
	if err := run.Commit(ctx, 600); err != nil {
		t.Fatalf("equal height commit should succeed: %v", err)
	}
	run, _ = mgr.Begin(ctx)
	if err := run.Commit(ctx, 1100); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	height, _ = mgr.Get(ctx)
	if height != 1100 {
		t.Errorf("Get() = %d, want 1100", height)
	}
}

func TestOverride(t *testing.T) {
	ctx := context.Background()
	repo := newMockCheckpointRepo()
	repo.set("observer", 900)
	mgr := NewManager(repo, "observer", 0)

	previous, err := mgr.Override(ctx, 100)
	if err != nil {
		t.Fatalf("Override failed: %v", err)
	}
	if previous != 900 {
		t.Errorf("previous = %d, want 900", previous)
	}
	height, _ := mgr.Get(ctx)
	if height != 100 {
		t.Errorf("Get() = %d, want 100", height)
	}

	if _, err := mgr.Override(ctx, -1); err == nil {
		t.Error("expected error for negative height")
	}
}

func TestBegin_AcquireError(t *testing.T) {
	repo := newMockCheckpointRepo()
	repo.acquireErr = errors.New("connection refused")
	mgr := NewManager(repo, "observer", 0)

	if _, err := mgr.Begin(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestLag(t *testing.T) {
	repo := newMockCheckpointRepo()
	repo.set("observer", 100)
	mgr := NewManager(repo, "observer", 0)

	tests := []struct {
		head int64
		want int64
	}{
		{150, 50},
		{100, 0},
		{90, 0},
	}
	for _, tt := range tests {
		got, err := mgr.Lag(context.Background(), tt.head)
		if err != nil {
			t.Fatalf("Lag failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("Lag(%d) = %d, want %d", tt.head, got, tt.want)
		}
	}
}

func ptr(v int64) *int64 { return &v }
