package vault

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestAssetToSharesBootstrapIsOneToOne(t *testing.T) {
	shares, err := AssetToShares(amt(1000), amt(0), amt(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !shares.Eq(amt(1000)) {
		t.Fatalf("expected 1000 shares, got %s", FormatAmount(shares))
	}
}

func TestAssetToSharesRoundsDown(t *testing.T) {
	shares, err := AssetToShares(amt(500), amt(1000), amt(1100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !shares.Eq(amt(454)) {
		t.Fatalf("expected 454 shares, got %s", FormatAmount(shares))
	}
}

func TestAssetToSharesRejectsEmptyAssetsWithSupply(t *testing.T) {
	if _, err := AssetToShares(amt(1), amt(10), amt(0)); !errors.Is(err, ErrNoAssets) {
		t.Fatalf("expected ErrNoAssets, got %v", err)
	}
}

func TestSharesToAsset(t *testing.T) {
	got, err := SharesToAsset(amt(1000), amt(0), amt(0))
	if err != nil || !got.Eq(amt(1000)) {
		t.Fatalf("expected bootstrap 1000, got %s (%v)", FormatAmount(got), err)
	}
	got, err = SharesToAsset(amt(333), amt(1000), amt(1100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Eq(amt(366)) {
		t.Fatalf("expected 366, got %s", FormatAmount(got))
	}
	got, err = SharesToAsset(amt(5), amt(10), amt(0))
	if err != nil || !got.IsZero() {
		t.Fatalf("expected zero value for worthless shares, got %s (%v)", FormatAmount(got), err)
	}
}

func TestStrategyUnitConversions(t *testing.T) {
	units, err := AssetToStrategyUnits(amt(1100), amt(1_100_000), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !units.Eq(amt(1000)) {
		t.Fatalf("expected 1000 units, got %s", FormatAmount(units))
	}
	value, err := StrategyUnitsToAsset(amt(1000), amt(1_100_000), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !value.Eq(amt(1100)) {
		t.Fatalf("expected 1100, got %s", FormatAmount(value))
	}
	units, err = AssetToStrategyUnits(amt(2), amt(3_000_000), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !units.IsZero() {
		t.Fatalf("expected units to round down to 0, got %s", FormatAmount(units))
	}
}

func TestAssetToStrategyUnitsRejectsZeroPrice(t *testing.T) {
	if _, err := AssetToStrategyUnits(amt(1), amt(0), 6); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestUnitScaleBounds(t *testing.T) {
	if _, err := UnitScale(0); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for 0 decimals, got %v", err)
	}
	if _, err := UnitScale(78); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for 78 decimals, got %v", err)
	}
	scale, err := UnitScale(18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if FormatAmount(scale) != "1000000000000000000" {
		t.Fatalf("unexpected scale %s", FormatAmount(scale))
	}
	if _, err := UnitScale(77); err != nil {
		t.Fatalf("expected 77 decimals to fit, got %v", err)
	}
}

func TestMulDivUsesWideIntermediate(t *testing.T) {
	top := new(uint256.Int).SetAllOne()
	got, err := AssetToShares(top, top, top)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Eq(top) {
		t.Fatalf("expected max, got %s", FormatAmount(got))
	}
	half := new(uint256.Int).Rsh(top, 1)
	got, err = MulDiv(top, half, top)
	if err != nil || !got.Eq(half) {
		t.Fatalf("expected half, got %s (%v)", FormatAmount(got), err)
	}
}

func TestMulDivOverflowAndZeroDivisor(t *testing.T) {
	top := new(uint256.Int).SetAllOne()
	if _, err := MulDiv(top, amt(2), amt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if _, err := MulDiv(amt(1), amt(1), amt(0)); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestPositionTotalAssets(t *testing.T) {
	pos := Position{
		Float:        amt(25),
		Units:        amt(1000),
		PricePerUnit: amt(1_100_000),
		UnitDecimals: 6,
		TotalSupply:  amt(1000),
	}
	total, err := pos.TotalAssets()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !total.Eq(amt(1125)) {
		t.Fatalf("expected 1125, got %s", FormatAmount(total))
	}
}

func TestLossBound(t *testing.T) {
	got, err := LossBound(amt(1000), 100)
	if err != nil || !got.Eq(amt(10)) {
		t.Fatalf("expected 10, got %s (%v)", FormatAmount(got), err)
	}
	got, err = LossBound(amt(1000), 0)
	if err != nil || !got.IsZero() {
		t.Fatalf("expected 0, got %s (%v)", FormatAmount(got), err)
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount(" 1234 ")
	if err != nil || !got.Eq(amt(1234)) {
		t.Fatalf("expected 1234, got %s (%v)", FormatAmount(got), err)
	}
	for _, raw := range []string{"", "-1", "1.5", "abc", "+", "1_000"} {
		if _, err := ParseAmount(raw); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("expected ErrInvalidParameter for %q, got %v", raw, err)
		}
	}
	tooBig := "115792089237316195423570985008687907853269984665640564039457584007913129639936"
	if _, err := ParseAmount(tooBig); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	maxValue := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	if got, err := ParseAmount(maxValue); err != nil || FormatAmount(got) != maxValue {
		t.Fatalf("expected maxValue uint256 to round trip, got %s (%v)", FormatAmount(got), err)
	}
	if got, err := ParseAmount("007"); err != nil || !got.Eq(amt(7)) {
		t.Fatalf("expected leading zeros to parse, got %s (%v)", FormatAmount(got), err)
	}
	if FormatAmount(nil) != "0" {
		t.Fatalf("expected nil to format as 0")
	}
}

func TestMulDivUpRoundsTowardCeiling(t *testing.T) {
	got, err := MulDivUp(amt(7), amt(3), amt(2))
	if err != nil || !got.Eq(amt(11)) {
		t.Fatalf("expected 11, got %s (%v)", FormatAmount(got), err)
	}
	got, err = MulDivUp(amt(8), amt(3), amt(2))
	if err != nil || !got.Eq(amt(12)) {
		t.Fatalf("expected exact 12, got %s (%v)", FormatAmount(got), err)
	}
	top := new(uint256.Int).SetAllOne()
	if _, err := MulDivUp(top, amt(3), amt(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if _, err := MulDivUp(amt(1), amt(1), amt(0)); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestSharesToBurnRoundsUp(t *testing.T) {
	// One share is worth a million base units: any partial share costs a
	// whole one.
	got, err := SharesToBurn(amt(1_999_999), amt(3), amt(3_000_000))
	if err != nil || !got.Eq(amt(2)) {
		t.Fatalf("expected 2 shares, got %s (%v)", FormatAmount(got), err)
	}
	got, err = SharesToBurn(amt(1), amt(1000), amt(1100))
	if err != nil || !got.Eq(amt(1)) {
		t.Fatalf("expected 1 share, got %s (%v)", FormatAmount(got), err)
	}
	if _, err := SharesToBurn(amt(1), amt(0), amt(0)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if _, err := SharesToBurn(amt(1), amt(10), amt(0)); !errors.Is(err, ErrNoAssets) {
		t.Fatalf("expected ErrNoAssets, got %v", err)
	}
}

func TestStrategyUnitsForCoversAmount(t *testing.T) {
	units, err := StrategyUnitsFor(amt(1101), amt(1_100_000), 6)
	if err != nil || !units.Eq(amt(1001)) {
		t.Fatalf("expected 1001 units, got %s (%v)", FormatAmount(units), err)
	}
	value, err := StrategyUnitsToAsset(units, amt(1_100_000), 6)
	if err != nil || value.Lt(amt(1101)) {
		t.Fatalf("expected units worth at least 1101, got %s (%v)", FormatAmount(value), err)
	}
	if _, err := StrategyUnitsFor(amt(1), amt(0), 6); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}
