package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlockRange is a scan window. Blocks From+1..To are scanned, so two
// contiguous ranges share their boundary without scanning it twice.
type BlockRange struct {
	From uint64
	To   uint64
}

func (r BlockRange) Empty() bool { return r.To <= r.From }

// Blocks returns the number of blocks the range covers.
func (r BlockRange) Blocks() uint64 {
	if r.Empty() {
		return 0
	}
	return r.To - r.From
}

func (r BlockRange) String() string { return fmt.Sprintf("(%d..%d]", r.From, r.To) }

// Candidate is a transaction that may be a purchase.
type Candidate struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address
	Value       *big.Int // wei
	BlockNumber uint64
}

// TxRef locates a transaction referenced by a log.
type TxRef struct {
	Hash        common.Hash
	BlockHash   common.Hash
	BlockNumber uint64
	Index       uint
}

type LogQuery struct {
	Contract common.Address
	Topic    *common.Hash
}
