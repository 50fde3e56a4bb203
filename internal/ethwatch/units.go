package ethwatch

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid native amount")

// ParseNativeToWei parses a native-unit amount ("0.025", "0,5") into wei,
// rounding down. The result must be positive.
func ParseNativeToWei(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	amount = strings.ReplaceAll(amount, ",", ".")

	d, err := decimal.NewFromString(amount)
	if err != nil || d.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	out := d.Shift(nativeDecimals).Floor().BigInt()
	if out.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return out, nil
}
