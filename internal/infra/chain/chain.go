package chain

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/chain-observer/internal/core/domain"
)

var (
	// ErrTxNotFound is returned by Client.Tx when the node does not know the hash.
	ErrTxNotFound = errors.New("transaction not found")
)

// Client defines the node queries the observer needs.
type Client interface {
	// Height returns the latest block height
	Height(ctx context.Context) (int64, error)

	// SearchTxs returns every transaction matching query with a height in
	// the window, ascending by height
	SearchTxs(ctx context.Context, query string, window domain.HeightWindow) ([]RawTransaction, error)

	// BlockTime returns the header time of a block
	BlockTime(ctx context.Context, height int64) (time.Time, error)

	// Tx fetches a transaction by hex hash. Returns ErrTxNotFound for
	// unknown hashes.
	Tx(ctx context.Context, hash string) (*RawTransaction, error)
}

// RawTransaction is a transaction as returned by the node.
type RawTransaction struct {
	Hash   string
	Height int64
	// Code is the execution result; non-zero means the tx failed.
	Code uint32
	// RawLog is the ABCI log. Older SDKs put a JSON array of per-message
	// events here; newer ones leave it empty.
	RawLog string
	// ResultEvents are the tx_result events with decoded attributes.
	ResultEvents []domain.RawEvent
	// Tx is the protobuf encoded TxRaw.
	Tx []byte
}

// Succeeded reports whether the transaction executed without error.
func (t RawTransaction) Succeeded() bool {
	return t.Code == 0
}
