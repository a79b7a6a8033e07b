// Package correlate reduces classified events to the distinct targets the
// backend must refresh and reconciles on-demand mint purchases.
package correlate

import (
	"sort"

	"github.com/vietddude/chain-observer/internal/core/domain"
)

type nftKey struct {
	denomID string
	tokenID string
}

// TargetSet collects update targets with set semantics. Uniqueness is by
// value: the same (denomID, tokenID) seen in any number of events is one
// target.
type TargetSet struct {
	nfts          map[nftKey]struct{}
	denomIDs      map[string]struct{}
	collectionIDs map[string]struct{}
}

// NewTargetSet creates an empty set.
func NewTargetSet() *TargetSet {
	return &TargetSet{
		nfts:          make(map[nftKey]struct{}),
		denomIDs:      make(map[string]struct{}),
		collectionIDs: make(map[string]struct{}),
	}
}

func (s *TargetSet) AddNft(denomID, tokenID string) {
	s.nfts[nftKey{denomID: denomID, tokenID: tokenID}] = struct{}{}
}

func (s *TargetSet) AddDenom(denomID string) {
	if denomID != "" {
		s.denomIDs[denomID] = struct{}{}
	}
}

func (s *TargetSet) AddCollection(collectionID string) {
	if collectionID != "" {
		s.collectionIDs[collectionID] = struct{}{}
	}
}

// Nfts returns the NFT targets ordered by denom, then token.
func (s *TargetSet) Nfts() []domain.NftTarget {
	out := make([]domain.NftTarget, 0, len(s.nfts))
	for k := range s.nfts {
		out = append(out, domain.NftTarget{DenomID: k.denomID, TokenID: k.tokenID})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DenomID != out[j].DenomID {
			return out[i].DenomID < out[j].DenomID
		}
		return out[i].TokenID < out[j].TokenID
	})
	return out
}

func (s *TargetSet) DenomIDs() []string      { return sortedKeys(s.denomIDs) }
func (s *TargetSet) CollectionIDs() []string { return sortedKeys(s.collectionIDs) }

// Collections returns the collection target with sorted ids.
func (s *TargetSet) Collections() domain.CollectionTarget {
	return domain.CollectionTarget{DenomIDs: s.DenomIDs(), CollectionIDs: s.CollectionIDs()}
}

// Len is the number of distinct targets.
func (s *TargetSet) Len() int {
	return len(s.nfts) + len(s.denomIDs) + len(s.collectionIDs)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Targets builds the target set of one scan. Funds, refund and mint events
// carry no update targets and are ignored.
func Targets(events []domain.ClassifiedEvent) *TargetSet {
	s := NewTargetSet()
	for _, ev := range events {
		switch e := ev.(type) {
		case domain.MarketplaceNftEvent:
			s.AddNft(e.DenomID, e.TokenID)
		case domain.NftModuleNftEvent:
			s.AddNft(e.DenomID, e.TokenID)
		case domain.MarketplaceCollectionEvent:
			s.AddDenom(e.DenomID)
			s.AddCollection(e.CollectionID)
		case domain.NftModuleCollectionEvent:
			s.AddDenom(e.DenomID)
		}
	}
	return s
}
