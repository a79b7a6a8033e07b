package domain

import "testing"

func TestNewHeightWindow(t *testing.T) {
	tests := []struct {
		name       string
		checkpoint int64
		head       int64
		maxBlocks  int64
		want       HeightWindow
		empty      bool
	}{
		{"bounded catch-up", 100, 10000, 500, HeightWindow{Min: 100, Max: 600}, false},
		{"head within budget", 100, 250, 500, HeightWindow{Min: 100, Max: 250}, false},
		{"caught up", 100, 100, 500, HeightWindow{Min: 100, Max: 100}, true},
		{"head behind checkpoint", 100, 90, 500, HeightWindow{Min: 100, Max: 100}, true},
		{"zero budget", 100, 10000, 0, HeightWindow{Min: 100, Max: 100}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewHeightWindow(tt.checkpoint, tt.head, tt.maxBlocks)
			if got != tt.want {
				t.Errorf("NewHeightWindow(%d, %d, %d) = %+v, want %+v",
					tt.checkpoint, tt.head, tt.maxBlocks, got, tt.want)
			}
			if got.Empty() != tt.empty {
				t.Errorf("Empty() = %v, want %v", got.Empty(), tt.empty)
			}
			if got.Max < got.Min {
				t.Errorf("window regressed: %+v", got)
			}
		})
	}
}

func TestHeightWindowBounds(t *testing.T) {
	w := HeightWindow{Min: 100, Max: 600}
	if w.From() != 101 {
		t.Errorf("From() = %d, want 101", w.From())
	}
	if w.Blocks() != 500 {
		t.Errorf("Blocks() = %d, want 500", w.Blocks())
	}
	if (HeightWindow{Min: 5, Max: 5}).Blocks() != 0 {
		t.Error("empty window should have no blocks")
	}
}

func TestPurchaseTransactionApply(t *testing.T) {
	tests := []struct {
		name        string
		start       PurchaseTransaction
		next        PurchaseStatus
		ts          int64
		wantStatus  PurchaseStatus
		wantTs      int64
		wantChanged bool
	}{
		{
			name:        "pending to refunded",
			start:       PurchaseTransaction{TxHash: "h1", Status: PurchaseStatusPending, Timestamp: 10},
			next:        PurchaseStatusRefunded,
			wantStatus:  PurchaseStatusRefunded,
			wantTs:      10,
			wantChanged: true,
		},
		{
			name:        "pending to success",
			start:       PurchaseTransaction{TxHash: "h1", Status: PurchaseStatusPending, Timestamp: 10},
			next:        PurchaseStatusSuccess,
			wantStatus:  PurchaseStatusSuccess,
			wantTs:      10,
			wantChanged: true,
		},
		{
			name:        "refunded never becomes success",
			start:       PurchaseTransaction{TxHash: "h1", Status: PurchaseStatusRefunded, Timestamp: 10},
			next:        PurchaseStatusSuccess,
			wantStatus:  PurchaseStatusRefunded,
			wantTs:      10,
			wantChanged: false,
		},
		{
			name:        "success never returns to pending",
			start:       PurchaseTransaction{TxHash: "h1", Status: PurchaseStatusSuccess},
			next:        PurchaseStatusPending,
			ts:          99,
			wantStatus:  PurchaseStatusSuccess,
			wantTs:      0,
			wantChanged: false,
		},
		{
			name:        "repeated pending is a no-op",
			start:       PurchaseTransaction{TxHash: "h1", Status: PurchaseStatusPending, Timestamp: 10},
			next:        PurchaseStatusPending,
			ts:          20,
			wantStatus:  PurchaseStatusPending,
			wantTs:      10,
			wantChanged: false,
		},
		{
			name:        "pending fills missing timestamp",
			start:       PurchaseTransaction{TxHash: "h1", Status: PurchaseStatusPending},
			next:        PurchaseStatusPending,
			ts:          20,
			wantStatus:  PurchaseStatusPending,
			wantTs:      20,
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.start
			changed := p.Apply(tt.next, tt.ts)
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
			if p.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", p.Status, tt.wantStatus)
			}
			if p.Timestamp != tt.wantTs {
				t.Errorf("timestamp = %d, want %d", p.Timestamp, tt.wantTs)
			}
		})
	}
}

func TestRawEventAttr(t *testing.T) {
	ev := RawEvent{
		Type: "buy_nft",
		Attributes: []Attribute{
			{Key: "token_id", Value: "7"},
			{Key: "denom_id", Value: "d1"},
			{Key: "token_id", Value: "ignored"},
		},
	}

	if v, ok := ev.Attr("token_id"); !ok || v != "7" {
		t.Errorf("Attr(token_id) = %q, %v", v, ok)
	}
	if _, ok := ev.Attr("owner"); ok {
		t.Error("Attr(owner) should be missing")
	}
}
