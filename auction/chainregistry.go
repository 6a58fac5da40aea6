package auction

import (
	"strings"

	"github.com/cloudx-io/blockauction/core"
)

// ChainConfig is the static per-chain configuration a listing is validated
// against.
type ChainConfig struct {
	// MaxBlockspace caps the blockspace a listing may offer for this chain.
	MaxBlockspace uint64
	// Sellers is the allow-list of sequencer addresses permitted to list
	// blockspace on this chain.
	Sellers []string
}

type chainEntry struct {
	maxBlockspace uint64
	sellers       map[string]struct{}
}

// ChainRegistry holds the chains this auctioneer serves. Read-only after
// construction.
type ChainRegistry struct {
	chains map[uint64]chainEntry
}

// NewChainRegistry builds a registry from per-chain configs. Seller addresses
// are matched case-insensitively.
func NewChainRegistry(configs map[uint64]ChainConfig) *ChainRegistry {
	chains := make(map[uint64]chainEntry, len(configs))
	for chainID, cfg := range configs {
		sellers := make(map[string]struct{}, len(cfg.Sellers))
		for _, s := range cfg.Sellers {
			sellers[strings.ToLower(s)] = struct{}{}
		}
		chains[chainID] = chainEntry{maxBlockspace: cfg.MaxBlockspace, sellers: sellers}
	}
	return &ChainRegistry{chains: chains}
}

// ValidateListing checks the listing against the chain's configuration:
// known chain, registered seller, blockspace within the chain's cap.
func (r *ChainRegistry) ValidateListing(l core.Listing) error {
	entry, ok := r.chains[l.ChainID]
	if !ok {
		return rejected(ReasonUnknownChain, "chain %d is not served", l.ChainID)
	}
	if _, ok := entry.sellers[strings.ToLower(l.SellerAddress)]; !ok {
		return rejected(ReasonSellerNotRegistered, "seller %s is not registered on chain %d", l.SellerAddress, l.ChainID)
	}
	if l.BlockspaceSize > entry.maxBlockspace {
		return rejected(ReasonInvalidListing, "blockspace %d exceeds chain max %d", l.BlockspaceSize, entry.maxBlockspace)
	}
	return nil
}
