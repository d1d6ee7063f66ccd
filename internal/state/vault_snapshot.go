package state

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"yield-vault/internal/vault"
)

const (
	VaultSnapshotKey = "vault:last_snapshot"
	MaxLossKey       = "vault:max_loss_bps"
)

// VaultSnapshot is the persisted view of the books. Amounts are decimal
// strings so they survive JSON without precision loss.
type VaultSnapshot struct {
	Address       string `json:"address"`
	Float         string `json:"float"`
	Units         string `json:"units"`
	PricePerUnit  string `json:"price_per_unit"`
	UnitDecimals  uint8  `json:"unit_decimals"`
	TotalAssets   string `json:"total_assets"`
	TotalSupply   string `json:"total_supply"`
	PricePerShare string `json:"price_per_share"`
	MaxLossBps    uint16 `json:"max_loss_bps"`
	Holders       int    `json:"holders"`
	UpdatedAtMS   int64  `json:"updated_at_ms"`
}

func NewVaultSnapshot(snap vault.Snapshot, updatedAtMS int64) VaultSnapshot {
	return VaultSnapshot{
		Address:       snap.Address.Hex(),
		Float:         vault.FormatAmount(snap.Float),
		Units:         vault.FormatAmount(snap.Units),
		PricePerUnit:  vault.FormatAmount(snap.PricePerUnit),
		UnitDecimals:  snap.UnitDecimals,
		TotalAssets:   vault.FormatAmount(snap.TotalAssets),
		TotalSupply:   vault.FormatAmount(snap.TotalSupply),
		PricePerShare: vault.FormatAmount(snap.PricePerShare),
		MaxLossBps:    snap.MaxLossBps,
		Holders:       snap.Holders,
		UpdatedAtMS:   updatedAtMS,
	}
}

func LoadVaultSnapshot(ctx context.Context, store Store) (VaultSnapshot, bool, error) {
	if store == nil {
		return VaultSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, VaultSnapshotKey)
	if err != nil {
		return VaultSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return VaultSnapshot{}, false, nil
	}
	var snapshot VaultSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return VaultSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveVaultSnapshot(ctx context.Context, store Store, snapshot VaultSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, VaultSnapshotKey, string(payload))
}

// LoadMaxLoss returns the operator's persisted loss tolerance, if any.
func LoadMaxLoss(ctx context.Context, store Store) (uint16, bool, error) {
	if store == nil {
		return 0, false, nil
	}
	raw, ok, err := store.Get(ctx, MaxLossKey)
	if err != nil || !ok {
		return 0, false, err
	}
	bps, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
	if err != nil {
		return 0, false, err
	}
	if bps > vault.MaxBps {
		return 0, false, errors.New("persisted max loss above 10000 bps")
	}
	return uint16(bps), true, nil
}

func SaveMaxLoss(ctx context.Context, store Store, bps uint16) error {
	if store == nil {
		return nil
	}
	return store.Set(ctx, MaxLossKey, strconv.FormatUint(uint64(bps), 10))
}
