package vault

import "errors"

var (
	ErrConfiguration      = errors.New("vault configuration invalid")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrExcessiveLoss      = errors.New("loss exceeds tolerance")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrReentrant          = errors.New("reentrant call")
	ErrOverflow           = errors.New("amount overflows 256 bits")
	ErrNoAssets           = errors.New("shares outstanding but no assets")
)

// MaxBps is the basis point denominator; loss tolerances live in [0, MaxBps].
const MaxBps = 10_000
