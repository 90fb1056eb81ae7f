package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
)

// ParseAmount converts a decimal string such as "50" or "0.25" into the
// token's integer base units. Amounts with more fractional digits than the
// token supports are rejected rather than rounded.
func ParseAmount(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidAmount, s)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", core.ErrInvalidAmount, s)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", core.ErrInvalidAmount, s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmount renders base units as a decimal string.
func FormatAmount(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}
