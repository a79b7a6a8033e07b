package domain

// Attribute is a single key/value pair of a chain event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RawEvent is one event from a transaction's execution log.
type RawEvent struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// Attr returns the first attribute value stored under key.
func (e RawEvent) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Module routes trigger calls on the backend.
type Module string

const (
	ModuleMarketplace Module = "marketplace"
	ModuleNft         Module = "nft"
)

// ClassifiedEvent is a RawEvent tagged with the category it was matched under.
type ClassifiedEvent interface {
	EventTxHash() string
	EventHeight() int64
	isClassified()
}

// EventMeta locates an event on chain.
type EventMeta struct {
	Type   string
	TxHash string
	Height int64
}

func (m EventMeta) EventTxHash() string { return m.TxHash }
func (m EventMeta) EventHeight() int64  { return m.Height }
func (EventMeta) isClassified()         {}

// MarketplaceNftEvent is a listing, delisting, sale or price change of an NFT.
type MarketplaceNftEvent struct {
	EventMeta
	DenomID string
	TokenID string
}

// MarketplaceCollectionEvent changes a collection registered on the marketplace.
// At least one of DenomID and CollectionID is set.
type MarketplaceCollectionEvent struct {
	EventMeta
	DenomID      string
	CollectionID string
}

// NftModuleNftEvent is a mint, edit, transfer or burn in the NFT module.
type NftModuleNftEvent struct {
	EventMeta
	DenomID string
	TokenID string
}

// NftModuleCollectionEvent issues or transfers a denom.
type NftModuleCollectionEvent struct {
	EventMeta
	DenomID string
}

// FundsReceivedEvent is a payment sent to the on-demand minter.
type FundsReceivedEvent struct {
	EventMeta
	RecipientAddress string
	UUID             string
	EthTxHash        string
	// Timestamp is the block time in unix milliseconds.
	Timestamp int64
}

// RefundEvent returns the funds of the purchase RefTxHash.
type RefundEvent struct {
	EventMeta
	RefTxHash string
}

// MintSuccessEvent fulfils the purchase RefTxHash.
type MintSuccessEvent struct {
	EventMeta
	RefTxHash string
}
