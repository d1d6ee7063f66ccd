package strategy

import (
	"context"

	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account is a Vault seen from one unit holder.
type Account struct {
	vault  *Vault
	holder common.Address
}

var _ vault.StrategyPort = (*Account)(nil)

func (v *Vault) Account(holder common.Address) *Account {
	return &Account{vault: v, holder: holder}
}

func (a *Account) APIVersion(ctx context.Context) (string, error) {
	_ = ctx
	return a.vault.Version(), nil
}

func (a *Account) UnderlyingAsset(ctx context.Context) (common.Address, error) {
	_ = ctx
	return a.vault.Underlying(), nil
}

func (a *Account) PricePerUnit(ctx context.Context) (*uint256.Int, error) {
	_ = ctx
	return a.vault.PricePerUnit()
}

func (a *Account) UnitDecimals(ctx context.Context) (uint8, error) {
	_ = ctx
	return a.vault.UnitDecimals(), nil
}

func (a *Account) UnitBalance(ctx context.Context) (*uint256.Int, error) {
	_ = ctx
	return a.vault.UnitsOf(a.holder), nil
}

func (a *Account) DepositAvailable(ctx context.Context) (*uint256.Int, error) {
	return a.vault.DepositAvailable(ctx, a.holder)
}

func (a *Account) PreviewWithdraw(ctx context.Context, units *uint256.Int) (*uint256.Int, error) {
	_ = ctx
	return a.vault.PreviewWithdraw(a.holder, units)
}

func (a *Account) Withdraw(ctx context.Context, units *uint256.Int, recipient common.Address) (*uint256.Int, error) {
	return a.vault.Withdraw(ctx, a.holder, units, recipient, 0)
}

func (a *Account) WithdrawWithLoss(ctx context.Context, units *uint256.Int, recipient common.Address, maxLossBps uint16) (*uint256.Int, error) {
	return a.vault.Withdraw(ctx, a.holder, units, recipient, maxLossBps)
}
