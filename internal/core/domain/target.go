package domain

// NftTarget asks the backend to re-derive one NFT.
type NftTarget struct {
	TokenID string `json:"tokenId"`
	DenomID string `json:"denomId"`
}

// CollectionTarget asks the backend to re-derive a set of collections.
type CollectionTarget struct {
	DenomIDs      []string `json:"denomIds"`
	CollectionIDs []string `json:"collectionIds,omitempty"`
}

// Empty reports whether the target names no collection.
func (t CollectionTarget) Empty() bool {
	return len(t.DenomIDs) == 0 && len(t.CollectionIDs) == 0
}
