package domain

// PurchaseStatus is the lifecycle state of an on-demand mint purchase.
type PurchaseStatus string

const (
	PurchaseStatusPending  PurchaseStatus = "pending"
	PurchaseStatusSuccess  PurchaseStatus = "success"
	PurchaseStatusRefunded PurchaseStatus = "refunded"
)

// IsTerminal reports whether no further transition is allowed.
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusSuccess || s == PurchaseStatusRefunded
}

// Valid reports whether s is a known status.
func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchaseStatusPending, PurchaseStatusSuccess, PurchaseStatusRefunded:
		return true
	}
	return false
}

// PurchaseTransaction tracks the funds transaction of an on-demand mint.
type PurchaseTransaction struct {
	TxHash string         `json:"txHash"    db:"tx_hash"`
	Status PurchaseStatus `json:"status"    db:"status"`
	// Timestamp is the block time of the funds transaction in unix milliseconds.
	// Zero when the funds transaction was never observed.
	Timestamp int64 `json:"timestamp" db:"timestamp_ms"`
}

// Apply moves the purchase to next. Terminal purchases never change; a
// pending purchase only refreshes a missing timestamp on a repeated pending
// observation. It reports whether the purchase changed.
func (p *PurchaseTransaction) Apply(next PurchaseStatus, timestamp int64) bool {
	if p.Status.IsTerminal() {
		return false
	}

	changed := false
	if p.Timestamp == 0 && timestamp != 0 {
		p.Timestamp = timestamp
		changed = true
	}
	if next != p.Status {
		p.Status = next
		changed = true
	}
	return changed
}
