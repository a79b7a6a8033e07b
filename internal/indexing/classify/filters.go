package classify

import "fmt"

// Category names the scan a transaction was matched by.
type Category string

const (
	CategoryMarketplace   Category = "marketplace"
	CategoryNftModule     Category = "nft_module"
	CategoryFundsReceived Category = "funds_received"
	CategoryRefund        Category = "refund"
	CategoryMintSuccess   Category = "mint_success"
)

// Filter is a Tendermint event query selecting the transactions of one scan.
type Filter struct {
	Name     string
	Query    string
	Category Category
}

// Filters holds the query of every scan.
type Filters struct {
	Marketplace   Filter
	NftModule     Filter
	FundsReceived Filter
	Refund        Filter
	MintSuccess   Filter
}

// DefaultFilters returns the built-in queries for the given on-demand minter.
func DefaultFilters(minterAddress string) Filters {
	return Filters{
		Marketplace: Filter{
			Name:     "marketplace module",
			Query:    "message.module='marketplace'",
			Category: CategoryMarketplace,
		},
		NftModule: Filter{
			Name:     "nft module",
			Query:    "message.module='nft'",
			Category: CategoryNftModule,
		},
		FundsReceived: Filter{
			Name:     "on-demand mint received funds",
			Query:    fmt.Sprintf("transfer.recipient='%s'", minterAddress),
			Category: CategoryFundsReceived,
		},
		Refund: Filter{
			Name:     "on-demand mint refunds",
			Query:    fmt.Sprintf("message.sender='%s' AND message.action='/cosmos.bank.v1beta1.MsgSend'", minterAddress),
			Category: CategoryRefund,
		},
		MintSuccess: Filter{
			Name:     "on-demand mint nft mint",
			Query:    fmt.Sprintf("message.sender='%s' AND message.module='marketplace'", minterAddress),
			Category: CategoryMintSuccess,
		},
	}
}

// WithOverrides replaces every query for which a non-empty override is given.
func (f Filters) WithOverrides(marketplace, nftModule, fundsReceived, refund, mintSuccess string) Filters {
	override := func(dst *Filter, query string) {
		if query != "" {
			dst.Query = query
		}
	}
	override(&f.Marketplace, marketplace)
	override(&f.NftModule, nftModule)
	override(&f.FundsReceived, fundsReceived)
	override(&f.Refund, refund)
	override(&f.MintSuccess, mintSuccess)
	return f
}

// TypeSet is an event type allow-list.
type TypeSet map[string]struct{}

// NewTypeSet builds an allow-list from event types.
func NewTypeSet(types ...string) TypeSet {
	s := make(TypeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

// Contains reports whether t is allowed.
func (s TypeSet) Contains(t string) bool {
	_, ok := s[t]
	return ok
}

// AllowLists holds the event types each category reacts to.
type AllowLists struct {
	MarketplaceNft        TypeSet
	MarketplaceCollection TypeSet
	NftModuleNft          TypeSet
	NftModuleCollection   TypeSet
}

// DefaultAllowLists returns the built-in event types.
func DefaultAllowLists() AllowLists {
	return AllowLists{
		MarketplaceNft: NewTypeSet(
			"publish_nft", "buy_nft", "remove_nft", "update_price", "marketplace_mint_nft",
		),
		MarketplaceCollection: NewTypeSet(
			"create_collection", "publish_collection", "verify_collection",
			"unverify_collection", "update_collection_royalties",
		),
		NftModuleNft:        NewTypeSet("mint_nft", "edit_nft", "transfer_nft", "burn_nft"),
		NftModuleCollection: NewTypeSet("issue_denom", "transfer_denom"),
	}
}

// WithOverrides replaces every allow-list for which a non-empty override is given.
func (a AllowLists) WithOverrides(marketplaceNft, marketplaceCollection, nftModuleNft, nftModuleCollection []string) AllowLists {
	override := func(dst *TypeSet, types []string) {
		if len(types) > 0 {
			*dst = NewTypeSet(types...)
		}
	}
	override(&a.MarketplaceNft, marketplaceNft)
	override(&a.MarketplaceCollection, marketplaceCollection)
	override(&a.NftModuleNft, nftModuleNft)
	override(&a.NftModuleCollection, nftModuleCollection)
	return a
}
