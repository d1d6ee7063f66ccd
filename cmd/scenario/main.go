package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"yield-vault/internal/sim"
	"yield-vault/internal/vault"

	"github.com/holiman/uint256"
)

type options struct {
	deposit     string
	gainBps     uint
	slippageBps uint
	maxLossBps  uint
	capacity    string
}

func main() {
	var opts options
	flag.StringVar(&opts.deposit, "deposit", "1000", "amount alice deposits, in asset base units")
	flag.UintVar(&opts.gainBps, "gain-bps", 1000, "strategy gain booked after the deposit")
	flag.UintVar(&opts.slippageBps, "slippage-bps", 0, "strategy withdrawal slippage")
	flag.UintVar(&opts.maxLossBps, "max-loss-bps", 0, "vault loss tolerance on redemption")
	flag.StringVar(&opts.capacity, "capacity", "", "strategy deposit limit, empty for none")
	flag.Parse()

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "scenario failed: %v\n", err)
		os.Exit(1)
	}
}

// run deposits, books a gain and redeems the full position, printing each
// step.
func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.gainBps > vault.MaxBps || opts.slippageBps > vault.MaxBps || opts.maxLossBps > vault.MaxBps {
		return errors.New("basis points must be <= 10000")
	}
	amount, err := vault.ParseAmount(opts.deposit)
	if err != nil {
		return err
	}
	cfg := sim.DefaultConfig()
	cfg.SlippageBps = uint16(opts.slippageBps)
	cfg.MaxLossBps = uint16(opts.maxLossBps)
	if opts.capacity != "" {
		if cfg.DepositLimit, err = vault.ParseAmount(opts.capacity); err != nil {
			return err
		}
	}
	world, err := sim.New(ctx, cfg)
	if err != nil {
		return err
	}
	alice := sim.Address("alice")
	svc := world.Service

	if err := world.Fund(alice, amount); err != nil {
		return err
	}
	shares, err := svc.Deposit(ctx, alice, alice, amount)
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	fmt.Fprintf(out, "deposit   amount=%s shares=%s\n", vault.FormatAmount(amount), vault.FormatAmount(shares))
	if err := printBooks(ctx, out, svc); err != nil {
		return err
	}

	gain, err := vault.LossBound(world.Strategy.TotalAssets(), uint16(opts.gainBps))
	if err != nil {
		return err
	}
	if !gain.IsZero() {
		if err := world.Harvest(gain); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "harvest   gain=%s\n", vault.FormatAmount(gain))

	value, err := svc.TotalAssetValue(ctx, alice)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "value     alice=%s\n", vault.FormatAmount(value))
	if err := printBooks(ctx, out, svc); err != nil {
		return err
	}

	received, err := svc.Redeem(ctx, alice, value)
	if err != nil {
		fmt.Fprintf(out, "redeem    amount=%s rejected: %v\n", vault.FormatAmount(value), err)
		return printBooks(ctx, out, svc)
	}
	fmt.Fprintf(out, "redeem    amount=%s received=%s shortfall=%s\n",
		vault.FormatAmount(value),
		vault.FormatAmount(received),
		vault.FormatAmount(new(uint256.Int).Sub(value, received)),
	)
	fmt.Fprintf(out, "balance   alice=%s shares=%s\n",
		vault.FormatAmount(world.Token.BalanceOf(alice)),
		vault.FormatAmount(world.Ledger.BalanceOf(alice)),
	)
	return printBooks(ctx, out, svc)
}

func printBooks(ctx context.Context, out io.Writer, svc *vault.Service) error {
	snap, err := svc.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "books     float=%s units=%s total_assets=%s supply=%s price_per_share=%s\n",
		vault.FormatAmount(snap.Float),
		vault.FormatAmount(snap.Units),
		vault.FormatAmount(snap.TotalAssets),
		vault.FormatAmount(snap.TotalSupply),
		vault.FormatAmount(snap.PricePerShare),
	)
	return nil
}
