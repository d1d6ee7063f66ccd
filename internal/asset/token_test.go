package asset

import (
	"context"
	"errors"
	"testing"

	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	spender = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	sink    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func TestTransferFromSpendsAllowance(t *testing.T) {
	token := NewToken(common.HexToAddress("0x01"), "USDC")
	if err := token.Mint(owner, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	token.Approve(owner, spender, uint256.NewInt(60))

	ctx := context.Background()
	if err := token.TransferFrom(ctx, spender, owner, sink, uint256.NewInt(61)); !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Fatalf("expected allowance failure, got %v", err)
	}
	if err := token.TransferFrom(ctx, spender, owner, sink, uint256.NewInt(40)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := token.Allowance(owner, spender); !got.Eq(uint256.NewInt(20)) {
		t.Fatalf("expected allowance 20, got %s", got)
	}
	if got := token.BalanceOf(sink); !got.Eq(uint256.NewInt(40)) {
		t.Fatalf("expected sink balance 40, got %s", got)
	}
	if err := token.TransferFrom(ctx, spender, owner, sink, new(uint256.Int)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
}

func TestTransferRejectsOverdraftAndZeroAddress(t *testing.T) {
	token := NewToken(common.HexToAddress("0x01"), "USDC")
	_ = token.Mint(owner, uint256.NewInt(5))
	ctx := context.Background()
	if err := token.Transfer(ctx, owner, sink, uint256.NewInt(6)); !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := token.Transfer(ctx, owner, common.Address{}, uint256.NewInt(1)); !errors.Is(err, vault.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if got := token.BalanceOf(owner); !got.Eq(uint256.NewInt(5)) {
		t.Fatalf("balance changed: %s", got)
	}
}

func TestHookRunsBeforeTransferAndCanAbort(t *testing.T) {
	token := NewToken(common.HexToAddress("0x01"), "USDC")
	_ = token.Mint(owner, uint256.NewInt(10))
	blocked := errors.New("blocked")
	var seen *uint256.Int
	token.SetHook(func(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
		seen = amount
		if got := token.BalanceOf(from); !got.Eq(uint256.NewInt(10)) {
			t.Fatalf("hook saw moved funds: %s", got)
		}
		return blocked
	})
	if err := token.Transfer(context.Background(), owner, sink, uint256.NewInt(3)); !errors.Is(err, blocked) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if seen == nil || !seen.Eq(uint256.NewInt(3)) {
		t.Fatalf("hook did not see the amount")
	}
	if got := token.BalanceOf(sink); !got.IsZero() {
		t.Fatalf("aborted transfer moved funds: %s", got)
	}
}

func TestMintBurnTrackSupply(t *testing.T) {
	token := NewToken(common.HexToAddress("0x01"), "USDC")
	_ = token.Mint(owner, uint256.NewInt(10))
	if err := token.Burn(owner, uint256.NewInt(11)); !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := token.Burn(owner, uint256.NewInt(4)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := token.TotalSupply(); !got.Eq(uint256.NewInt(6)) {
		t.Fatalf("expected supply 6, got %s", got)
	}
	if err := token.Mint(owner, new(uint256.Int).SetAllOne()); !errors.Is(err, vault.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestAccountPullAndPush(t *testing.T) {
	token := NewToken(common.HexToAddress("0x01"), "USDC")
	self := common.HexToAddress("0x00000000000000000000000000000000000000d4")
	account := NewAccount(token, self)
	_ = token.Mint(owner, uint256.NewInt(50))
	token.Approve(owner, self, uint256.NewInt(50))
	ctx := context.Background()
	if err := account.PullFrom(ctx, owner, uint256.NewInt(50)); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if err := account.PushTo(ctx, sink, uint256.NewInt(20)); err != nil {
		t.Fatalf("push: %v", err)
	}
	balance, err := account.BalanceOf(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Eq(uint256.NewInt(30)) {
		t.Fatalf("expected 30, got %s", balance)
	}
	if account.Asset() != token.Address() {
		t.Fatalf("account asset mismatch")
	}
}
