package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/infra/storage"
)

// setupTestDB connects to OBSERVER_TEST_DATABASE_URL and applies migrations.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("OBSERVER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping postgres test. Set OBSERVER_TEST_DATABASE_URL to run.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := NewDB(ctx, Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func TestCheckpointRepo_Lease(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCheckpointRepo(db)
	ctx := context.Background()
	name := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM checkpoints WHERE name = $1", name)
	})

	cp, err := repo.Get(ctx, name)
	require.NoError(t, err)
	assert.Nil(t, cp)

	lease, err := repo.Acquire(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(0), lease.Checkpoint().LastCheckedHeight)

	// A second run blocks on the row lock
	blocked, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = repo.Acquire(blocked, name)
	require.Error(t, err)

	require.NoError(t, lease.Commit(ctx, 600))
	assert.ErrorIs(t, lease.Commit(ctx, 700), storage.ErrLeaseClosed)
	assert.NoError(t, lease.Release())

	cp, err = repo.Get(ctx, name)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(600), cp.LastCheckedHeight)

	// Release without commit keeps the stored height
	lease, err = repo.Acquire(ctx, name)
	require.NoError(t, err)
	require.NoError(t, lease.Release())

	cp, err = repo.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(600), cp.LastCheckedHeight)
}

func TestPurchaseRepo_TerminalNotOverwritten(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPurchaseRepo(db)
	ctx := context.Background()

	h1 := "TEST-" + uuid.NewString()
	h2 := "TEST-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM purchase_transactions WHERE tx_hash IN ($1, $2)", h1, h2)
	})

	require.NoError(t, repo.SaveBatch(ctx, []domain.PurchaseTransaction{
		{TxHash: h1, Status: domain.PurchaseStatusPending, Timestamp: 10},
		{TxHash: h2, Status: domain.PurchaseStatusPending},
		// Duplicate hash in one batch: the last one wins
		{TxHash: h2, Status: domain.PurchaseStatusPending, Timestamp: 20},
	}))
	require.NoError(t, repo.SaveBatch(ctx, []domain.PurchaseTransaction{
		{TxHash: h1, Status: domain.PurchaseStatusRefunded, Timestamp: 99},
	}))
	require.NoError(t, repo.SaveBatch(ctx, []domain.PurchaseTransaction{
		{TxHash: h1, Status: domain.PurchaseStatusSuccess},
	}))

	got, err := repo.GetByHashes(ctx, []string{h1, h2, "UNKNOWN"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.PurchaseStatusRefunded, got[h1].Status)
	assert.Equal(t, int64(10), got[h1].Timestamp)
	assert.Equal(t, domain.PurchaseStatusPending, got[h2].Status)
	assert.Equal(t, int64(20), got[h2].Timestamp)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counts[domain.PurchaseStatusRefunded], 1)
}
