package vault

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AssetPort moves the underlying asset in and out of the vault account.
// Implementations are bound to the vault's own address. Calls are
// synchronous. Hooks or callbacks they trigger must pass on the ctx they
// were given; any call they make back into the service is rejected with
// ErrReentrant.
type AssetPort interface {
	Asset() common.Address
	BalanceOf(ctx context.Context) (*uint256.Int, error)
	PullFrom(ctx context.Context, source common.Address, amount *uint256.Int) error
	PushTo(ctx context.Context, destination common.Address, amount *uint256.Int) error
}

// StrategyPort is the vault's handle on the external yield vault. Units are
// the strategy's own accounting unit; price is asset per 10^UnitDecimals
// units. The same ctx rule as AssetPort applies.
type StrategyPort interface {
	APIVersion(ctx context.Context) (string, error)
	UnderlyingAsset(ctx context.Context) (common.Address, error)
	PricePerUnit(ctx context.Context) (*uint256.Int, error)
	UnitDecimals(ctx context.Context) (uint8, error)
	UnitBalance(ctx context.Context) (*uint256.Int, error)
	// DepositAvailable deploys as much of the vault's asset balance as the
	// strategy will take and returns the units issued.
	DepositAvailable(ctx context.Context) (*uint256.Int, error)
	// PreviewWithdraw is the asset Withdraw would release for units now,
	// net of any loss it would realize.
	PreviewWithdraw(ctx context.Context, units *uint256.Int) (*uint256.Int, error)
	// Withdraw redeems units and fails on any realized loss.
	Withdraw(ctx context.Context, units *uint256.Int, recipient common.Address) (*uint256.Int, error)
	WithdrawWithLoss(ctx context.Context, units *uint256.Int, recipient common.Address, maxLossBps uint16) (*uint256.Int, error)
}

// EventSink receives committed events in order. Publish must not call back
// into the service.
type EventSink interface {
	Publish(ctx context.Context, event Event)
}

// MultiSink fans an event out to every sink.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Publish(ctx, event)
		}
	}
}
