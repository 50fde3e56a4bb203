package ethwatch

import (
	"math/big"

	"github.com/pvzzle/buywatch/internal/chain"

	"github.com/ethereum/go-ethereum/common"
)

// Qualifies reports whether c sends at least minWei to contract. Addresses
// compare as bytes, so the hex casing of the configured address is
// irrelevant.
func Qualifies(c chain.Candidate, contract common.Address, minWei *big.Int) bool {
	if c.To == nil || c.Value == nil || minWei == nil {
		return false
	}
	if *c.To != contract {
		return false
	}
	return c.Value.Cmp(minWei) >= 0
}
