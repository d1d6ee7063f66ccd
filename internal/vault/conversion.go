package vault

import (
	"fmt"

	"github.com/holiman/uint256"
)

// maxUnitDecimals is the largest exponent for which 10^d fits in 256 bits.
const maxUnitDecimals = 77

// MulDiv returns floor(x*y/d) computed over a 512-bit intermediate.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrInvalidParameter)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivUp returns ceil(x*y/d).
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	if _, overflow := z.AddOverflow(z, uint256.NewInt(1)); overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// UnitScale returns 10^decimals.
func UnitScale(decimals uint8) (*uint256.Int, error) {
	if decimals == 0 || decimals > maxUnitDecimals {
		return nil, fmt.Errorf("%w: unit decimals %d out of range", ErrConfiguration, decimals)
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals))), nil
}

// AssetToStrategyUnits converts an asset amount into strategy units at the
// given price. Rounds down so the vault never asks for more units than the
// amount is worth.
func AssetToStrategyUnits(amount, pricePerUnit *uint256.Int, decimals uint8) (*uint256.Int, error) {
	scale, err := UnitScale(decimals)
	if err != nil {
		return nil, err
	}
	if pricePerUnit.IsZero() {
		return nil, fmt.Errorf("%w: zero price per unit", ErrInvalidParameter)
	}
	return MulDiv(amount, scale, pricePerUnit)
}

// StrategyUnitsFor is the smallest unit count worth at least amount at the
// given price.
func StrategyUnitsFor(amount, pricePerUnit *uint256.Int, decimals uint8) (*uint256.Int, error) {
	scale, err := UnitScale(decimals)
	if err != nil {
		return nil, err
	}
	if pricePerUnit.IsZero() {
		return nil, fmt.Errorf("%w: zero price per unit", ErrInvalidParameter)
	}
	return MulDivUp(amount, scale, pricePerUnit)
}

// StrategyUnitsToAsset values strategy units in the underlying asset,
// rounding down.
func StrategyUnitsToAsset(units, pricePerUnit *uint256.Int, decimals uint8) (*uint256.Int, error) {
	scale, err := UnitScale(decimals)
	if err != nil {
		return nil, err
	}
	return MulDiv(units, pricePerUnit, scale)
}

// AssetToShares returns the shares an asset amount is worth. The first
// deposit into an empty ledger mints 1:1. Rounds down in favour of existing
// holders.
func AssetToShares(amount, totalSupply, totalAssets *uint256.Int) (*uint256.Int, error) {
	if totalSupply.IsZero() {
		return new(uint256.Int).Set(amount), nil
	}
	if totalAssets.IsZero() {
		return nil, ErrNoAssets
	}
	return MulDiv(amount, totalSupply, totalAssets)
}

// SharesToBurn returns the shares a redemption of amount must burn. Rounds
// up so the redeemer never takes more than the shares are worth.
func SharesToBurn(amount, totalSupply, totalAssets *uint256.Int) (*uint256.Int, error) {
	if totalSupply.IsZero() {
		return nil, fmt.Errorf("%w: no shares outstanding", ErrInsufficientShares)
	}
	if totalAssets.IsZero() {
		return nil, ErrNoAssets
	}
	return MulDivUp(amount, totalSupply, totalAssets)
}

// SharesToAsset returns the asset value of a share amount, rounding down in
// favour of the vault.
func SharesToAsset(shares, totalSupply, totalAssets *uint256.Int) (*uint256.Int, error) {
	if totalSupply.IsZero() {
		return new(uint256.Int).Set(shares), nil
	}
	return MulDiv(shares, totalAssets, totalSupply)
}

// Position is the vault's view of its own holdings, read fresh at the start
// of every accounting call.
type Position struct {
	Float        *uint256.Int
	Units        *uint256.Int
	PricePerUnit *uint256.Int
	UnitDecimals uint8
	TotalSupply  *uint256.Int
}

// Deployed is the asset value of the units held in the strategy.
func (p Position) Deployed() (*uint256.Int, error) {
	return StrategyUnitsToAsset(p.Units, p.PricePerUnit, p.UnitDecimals)
}

// TotalAssets is float plus deployed value.
func (p Position) TotalAssets() (*uint256.Int, error) {
	deployed, err := p.Deployed()
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(p.Float, deployed)
	if overflow {
		return nil, ErrOverflow
	}
	return total, nil
}

// LossBound returns value*bps/MaxBps, the largest shortfall tolerated on a
// withdrawal worth value.
func LossBound(value *uint256.Int, bps uint16) (*uint256.Int, error) {
	return MulDiv(value, uint256.NewInt(uint64(bps)), uint256.NewInt(MaxBps))
}
