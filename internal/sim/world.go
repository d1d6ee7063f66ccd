package sim

import (
	"context"
	"errors"

	"yield-vault/internal/asset"
	"yield-vault/internal/strategy"
	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

type Config struct {
	AssetSymbol       string
	AssetAddress      common.Address
	VaultAddress      common.Address
	StrategyAddress   common.Address
	StrategyVersion   string
	UnitDecimals      uint8
	DepositLimit      *uint256.Int
	SlippageBps       uint16
	MaxLossBps        uint16
	SupportedVersions []string
}

// World is a self-contained vault deployment over simulated collaborators.
type World struct {
	Token     *asset.Token
	Strategy  *strategy.Vault
	Ledger    *vault.Ledger
	Account   *asset.Account
	Service   *vault.Service
	Sequencer *vault.Sequencer
}

// DefaultConfig is a six-decimal asset and strategy with no capacity limit.
func DefaultConfig() Config {
	return Config{
		AssetSymbol:     "USDC",
		AssetAddress:    Address("asset"),
		VaultAddress:    Address("vault"),
		StrategyAddress: Address("strategy"),
		StrategyVersion: "0.4.6",
		UnitDecimals:    6,
	}
}

// Address derives a stable address from a label.
func Address(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label)))
}

func New(ctx context.Context, cfg Config, opts ...vault.Option) (*World, error) {
	if cfg.AssetAddress == (common.Address{}) || cfg.StrategyAddress == (common.Address{}) {
		return nil, errors.New("asset and strategy addresses are required")
	}
	token := asset.NewToken(cfg.AssetAddress, cfg.AssetSymbol)
	strat, err := strategy.New(token, strategy.Config{
		Address:      cfg.StrategyAddress,
		Version:      cfg.StrategyVersion,
		UnitDecimals: cfg.UnitDecimals,
		DepositLimit: cfg.DepositLimit,
		SlippageBps:  cfg.SlippageBps,
	})
	if err != nil {
		return nil, err
	}
	account := asset.NewAccount(token, cfg.VaultAddress)
	account.Approve(strat.Address(), new(uint256.Int).SetAllOne())
	ledger := vault.NewLedger()
	svc, err := vault.New(ctx, vault.Params{
		Address:           cfg.VaultAddress,
		MaxLossBps:        cfg.MaxLossBps,
		SupportedVersions: cfg.SupportedVersions,
	}, ledger, account, strat.Account(cfg.VaultAddress), opts...)
	if err != nil {
		return nil, err
	}
	return &World{
		Token:     token,
		Strategy:  strat,
		Ledger:    ledger,
		Account:   account,
		Service:   svc,
		Sequencer: vault.NewSequencer(svc),
	}, nil
}

// Fund mints amount to holder and approves the vault to pull all of it.
func (w *World) Fund(holder common.Address, amount *uint256.Int) error {
	if err := w.Token.Mint(holder, amount); err != nil {
		return err
	}
	allowance, overflow := new(uint256.Int).AddOverflow(w.Token.Allowance(holder, w.Account.Self()), amount)
	if overflow {
		allowance.SetAllOne()
	}
	w.Token.Approve(holder, w.Account.Self(), allowance)
	return nil
}

// Harvest books a strategy gain, raising the price per unit.
func (w *World) Harvest(gain *uint256.Int) error {
	return w.Strategy.Harvest(gain)
}

// ReportLoss books a strategy loss, lowering the price per unit.
func (w *World) ReportLoss(loss *uint256.Int) error {
	return w.Strategy.ReportLoss(loss)
}
