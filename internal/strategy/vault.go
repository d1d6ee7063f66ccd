package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"yield-vault/internal/asset"
	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Config struct {
	Address      common.Address
	Version      string
	UnitDecimals uint8
	// DepositLimit caps the assets the strategy will hold. Zero is unlimited.
	DepositLimit *uint256.Int
	// SlippageBps is the share of every withdrawal lost on the way out.
	SlippageBps uint16
}

// Vault simulates an external yield vault. Its price per unit follows the
// asset it holds: gains and losses are applied by minting or burning the
// asset at the vault's own address.
type Vault struct {
	token   *asset.Token
	address common.Address
	version string
	scale   *uint256.Int
	decimal uint8

	mu       sync.Mutex
	units    map[common.Address]*uint256.Int
	issued   *uint256.Int
	limit    *uint256.Int
	slippage uint16
}

func New(token *asset.Token, cfg Config) (*Vault, error) {
	if token == nil {
		return nil, errors.New("strategy token is required")
	}
	if cfg.Address == (common.Address{}) {
		return nil, errors.New("strategy address is required")
	}
	scale, err := vault.UnitScale(cfg.UnitDecimals)
	if err != nil {
		return nil, err
	}
	if cfg.SlippageBps > vault.MaxBps {
		return nil, fmt.Errorf("slippage %d: %w", cfg.SlippageBps, ErrInvalidBps)
	}
	limit := new(uint256.Int)
	if cfg.DepositLimit != nil {
		limit.Set(cfg.DepositLimit)
	}
	return &Vault{
		token:    token,
		address:  cfg.Address,
		version:  cfg.Version,
		scale:    scale,
		decimal:  cfg.UnitDecimals,
		units:    make(map[common.Address]*uint256.Int),
		issued:   new(uint256.Int),
		limit:    limit,
		slippage: cfg.SlippageBps,
	}, nil
}

func (v *Vault) Address() common.Address { return v.address }

func (v *Vault) Version() string { return v.version }

func (v *Vault) Underlying() common.Address { return v.token.Address() }

func (v *Vault) UnitDecimals() uint8 { return v.decimal }

// TotalAssets is the asset held at the strategy address.
func (v *Vault) TotalAssets() *uint256.Int {
	return v.token.BalanceOf(v.address)
}

func (v *Vault) TotalUnits() *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(uint256.Int).Set(v.issued)
}

func (v *Vault) PricePerUnit() (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.priceLocked()
}

func (v *Vault) priceLocked() (*uint256.Int, error) {
	if v.issued.IsZero() {
		return new(uint256.Int).Set(v.scale), nil
	}
	return vault.MulDiv(v.TotalAssets(), v.scale, v.issued)
}

func (v *Vault) UnitsOf(holder common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unitsLocked(holder)
}

func (v *Vault) SetDepositLimit(limit *uint256.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.limit = new(uint256.Int)
	if limit != nil {
		v.limit.Set(limit)
	}
}

func (v *Vault) SetSlippage(bps uint16) error {
	if bps > vault.MaxBps {
		return fmt.Errorf("slippage %d: %w", bps, ErrInvalidBps)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.slippage = bps
	return nil
}

// Harvest books a gain by minting asset to the strategy.
func (v *Vault) Harvest(gain *uint256.Int) error {
	return v.token.Mint(v.address, gain)
}

// ReportLoss books a loss by burning asset held by the strategy.
func (v *Vault) ReportLoss(loss *uint256.Int) error {
	return v.token.Burn(v.address, loss)
}

// DepositAvailable pulls as much of from's balance as its allowance and the
// deposit limit permit, and issues units at the pre-deposit price.
func (v *Vault) DepositAvailable(ctx context.Context, from common.Address) (*uint256.Int, error) {
	amount := v.token.BalanceOf(from)
	if allowed := v.token.Allowance(from, v.address); allowed.Lt(amount) {
		amount = allowed
	}
	v.mu.Lock()
	if room := DepositRoom(v.TotalAssets(), v.limit); room.Lt(amount) {
		amount = room
	}
	if amount.IsZero() {
		v.mu.Unlock()
		return new(uint256.Int), nil
	}
	units, err := v.issueLocked(amount)
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if units.IsZero() {
		return new(uint256.Int), nil
	}
	if err := v.token.TransferFrom(ctx, v.address, from, v.address, amount); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.units[from] = new(uint256.Int).Add(v.unitsLocked(from), units)
	v.issued = new(uint256.Int).Add(v.issued, units)
	return units, nil
}

func (v *Vault) issueLocked(amount *uint256.Int) (*uint256.Int, error) {
	if v.issued.IsZero() {
		return new(uint256.Int).Set(amount), nil
	}
	total := v.TotalAssets()
	if total.IsZero() {
		return nil, fmt.Errorf("%w: strategy units outstanding without assets", vault.ErrNoAssets)
	}
	return vault.MulDiv(amount, v.issued, total)
}

// PreviewWithdraw is what Withdraw would pay for units right now, net of
// slippage.
func (v *Vault) PreviewWithdraw(holder common.Address, units *uint256.Int) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	value, loss, err := v.quoteLocked(holder, units)
	if err != nil {
		return nil, err
	}
	return value.Sub(value, loss), nil
}

// Withdraw redeems holder's units and sends the proceeds, net of slippage,
// to recipient. The slipped amount leaves the system.
func (v *Vault) Withdraw(ctx context.Context, holder common.Address, units *uint256.Int, recipient common.Address, maxLossBps uint16) (*uint256.Int, error) {
	v.mu.Lock()
	value, loss, err := v.quoteLocked(holder, units)
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	if err := CheckWithdrawalLoss(value, loss, maxLossBps); err != nil {
		v.mu.Unlock()
		return nil, err
	}
	v.debitLocked(holder, units)
	v.mu.Unlock()

	payout := new(uint256.Int).Sub(value, loss)
	if err := v.token.Transfer(ctx, v.address, recipient, payout); err != nil {
		v.mu.Lock()
		v.units[holder] = new(uint256.Int).Add(v.unitsLocked(holder), units)
		v.issued = new(uint256.Int).Add(v.issued, units)
		v.mu.Unlock()
		return nil, err
	}
	if !loss.IsZero() {
		if err := v.token.Burn(v.address, loss); err != nil {
			return nil, err
		}
	}
	return payout, nil
}

func (v *Vault) quoteLocked(holder common.Address, units *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	held := v.unitsLocked(holder)
	if held.Lt(units) {
		return nil, nil, fmt.Errorf("hold %s, redeem %s: %w", vault.FormatAmount(held), vault.FormatAmount(units), ErrInsufficientUnits)
	}
	price, err := v.priceLocked()
	if err != nil {
		return nil, nil, err
	}
	value, err := vault.MulDiv(units, price, v.scale)
	if err != nil {
		return nil, nil, err
	}
	loss, err := vault.LossBound(value, v.slippage)
	if err != nil {
		return nil, nil, err
	}
	return value, loss, nil
}

func (v *Vault) debitLocked(holder common.Address, units *uint256.Int) {
	remaining := new(uint256.Int).Sub(v.unitsLocked(holder), units)
	if remaining.IsZero() {
		delete(v.units, holder)
	} else {
		v.units[holder] = remaining
	}
	v.issued = new(uint256.Int).Sub(v.issued, units)
}

func (v *Vault) unitsLocked(holder common.Address) *uint256.Int {
	if u, ok := v.units[holder]; ok {
		return new(uint256.Int).Set(u)
	}
	return new(uint256.Int)
}
