package strategy

import (
	"errors"
	"fmt"

	"yield-vault/internal/vault"

	"github.com/holiman/uint256"
)

var (
	ErrInsufficientUnits = fmt.Errorf("%w: insufficient strategy units", vault.ErrInsufficientFunds)
	ErrWithdrawalLoss    = fmt.Errorf("%w: withdrawal loss above tolerance", vault.ErrExcessiveLoss)
	ErrInvalidBps        = errors.New("basis points above 10000")
)

// CheckWithdrawalLoss fails when loss on a withdrawal worth value exceeds
// maxLossBps of that value.
func CheckWithdrawalLoss(value, loss *uint256.Int, maxLossBps uint16) error {
	if maxLossBps > vault.MaxBps {
		return fmt.Errorf("max loss %d: %w", maxLossBps, ErrInvalidBps)
	}
	bound, err := vault.LossBound(value, maxLossBps)
	if err != nil {
		return err
	}
	if loss.Gt(bound) {
		return fmt.Errorf("loss %s of %s exceeds %d bps: %w", vault.FormatAmount(loss), vault.FormatAmount(value), maxLossBps, ErrWithdrawalLoss)
	}
	return nil
}

// DepositRoom is how much more a strategy holding total can accept under
// limit. A nil or zero limit is unlimited.
func DepositRoom(total, limit *uint256.Int) *uint256.Int {
	if limit == nil || limit.IsZero() {
		return new(uint256.Int).SetAllOne()
	}
	if !total.Lt(limit) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(limit, total)
}
