package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/infra/storage"
)

// PurchaseRepo implements storage.PurchaseRepository using PostgreSQL.
type PurchaseRepo struct {
	db *DB
}

var _ storage.PurchaseRepository = (*PurchaseRepo)(nil)

// NewPurchaseRepo creates a new PostgreSQL purchase repository.
func NewPurchaseRepo(db *DB) *PurchaseRepo {
	return &PurchaseRepo{db: db}
}

// GetByHashes returns the stored purchases for the given hashes.
func (r *PurchaseRepo) GetByHashes(
	ctx context.Context,
	hashes []string,
) (map[string]domain.PurchaseTransaction, error) {
	result := make(map[string]domain.PurchaseTransaction, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	var rows []domain.PurchaseTransaction
	err := r.db.SelectContext(ctx, &rows, `
		SELECT tx_hash, status, timestamp_ms
		FROM purchase_transactions
		WHERE tx_hash = ANY($1)
	`, pq.Array(hashes))
	if err != nil {
		return nil, fmt.Errorf("failed to get purchases: %w", err)
	}

	for _, p := range rows {
		result[p.TxHash] = p
	}
	return result, nil
}

// SaveBatch upserts purchases with a single multi-row statement. Rows that
// are already terminal are left untouched by the WHERE clause of the
// conflict update.
func (r *PurchaseRepo) SaveBatch(ctx context.Context, purchases []domain.PurchaseTransaction) error {
	if len(purchases) == 0 {
		return nil
	}

	// ON CONFLICT cannot touch the same row twice in one statement
	index := make(map[string]int, len(purchases))
	hashes := make([]string, 0, len(purchases))
	statuses := make([]string, 0, len(purchases))
	timestamps := make([]int64, 0, len(purchases))
	for _, p := range purchases {
		if i, ok := index[p.TxHash]; ok {
			statuses[i] = string(p.Status)
			timestamps[i] = p.Timestamp
			continue
		}
		index[p.TxHash] = len(hashes)
		hashes = append(hashes, p.TxHash)
		statuses = append(statuses, string(p.Status))
		timestamps = append(timestamps, p.Timestamp)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO purchase_transactions (tx_hash, status, timestamp_ms)
		SELECT * FROM unnest($1::text[], $2::text[], $3::bigint[])
		ON CONFLICT (tx_hash) DO UPDATE SET
			status = EXCLUDED.status,
			timestamp_ms = CASE
				WHEN purchase_transactions.timestamp_ms = 0 THEN EXCLUDED.timestamp_ms
				ELSE purchase_transactions.timestamp_ms
			END,
			updated_at = NOW()
		WHERE purchase_transactions.status = 'pending'
	`, pq.Array(hashes), pq.Array(statuses), pq.Array(timestamps))
	if err != nil {
		return fmt.Errorf("failed to save purchases: %w", err)
	}
	return nil
}

// CountByStatus returns the number of purchases per status.
func (r *PurchaseRepo) CountByStatus(ctx context.Context) (map[domain.PurchaseStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS count
		FROM purchase_transactions
		GROUP BY status
	`); err != nil {
		return nil, fmt.Errorf("failed to count purchases: %w", err)
	}

	counts := make(map[domain.PurchaseStatus]int, len(rows))
	for _, row := range rows {
		counts[domain.PurchaseStatus(row.Status)] = row.Count
	}
	return counts, nil
}
