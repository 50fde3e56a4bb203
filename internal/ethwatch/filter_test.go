package ethwatch

import (
	"math/big"
	"strings"
	"testing"

	"github.com/pvzzle/buywatch/internal/chain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

var (
	testContract = common.HexToAddress("0x2119de8f257d27662991198389E15Bf8d1F4aB24")
	minPurchase  = big.NewInt(25_000_000_000_000_000)
)

func candidate(to *common.Address, wei int64) chain.Candidate {
	return chain.Candidate{
		Hash:  common.HexToHash("0x01"),
		From:  common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		To:    to,
		Value: big.NewInt(wei),
	}
}

func TestQualifies(t *testing.T) {
	other := common.HexToAddress("0x000000000000000000000000000000000000dEaD")

	cases := []struct {
		name string
		c    chain.Candidate
		want bool
	}{
		{"above minimum", candidate(&testContract, 30_000_000_000_000_000), true},
		{"exactly minimum", candidate(&testContract, 25_000_000_000_000_000), true},
		{"below minimum", candidate(&testContract, 10_000_000_000_000_000), false},
		{"other recipient", candidate(&other, 30_000_000_000_000_000), false},
		{"contract creation", candidate(nil, 30_000_000_000_000_000), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Qualifies(tc.c, testContract, minPurchase))
		})
	}
}

func TestQualifies_IgnoresAddressCasing(t *testing.T) {
	lower := common.HexToAddress(strings.ToLower(testContract.Hex()))
	c := candidate(&testContract, 30_000_000_000_000_000)
	assert.True(t, Qualifies(c, lower, minPurchase))
}

func TestQualifies_MonotonicInValue(t *testing.T) {
	c := candidate(&testContract, 25_000_000_000_000_000)
	assert.True(t, Qualifies(c, testContract, minPurchase))

	c.Value = new(big.Int).Mul(c.Value, big.NewInt(1000))
	assert.True(t, Qualifies(c, testContract, minPurchase), "raising the value keeps it qualifying")
}
