package vault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ParseAmount parses a non-negative base-10 integer amount.
func ParseAmount(raw string) (*uint256.Int, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidParameter)
	}
	z, err := uint256.FromDecimal(clean)
	if errors.Is(err, uint256.ErrBig256Range) {
		return nil, ErrOverflow
	}
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", ErrInvalidParameter, raw)
	}
	return z, nil
}

// FormatAmount renders an amount in base 10; nil renders as "0".
func FormatAmount(z *uint256.Int) string {
	if z == nil {
		return "0"
	}
	return z.Dec()
}

// MustAmount is ParseAmount for constants and tests.
func MustAmount(raw string) *uint256.Int {
	z, err := ParseAmount(raw)
	if err != nil {
		panic(err)
	}
	return z
}
