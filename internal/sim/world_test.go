package sim

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
)

func TestNewWiresDeployment(t *testing.T) {
	w, err := New(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	if w.Service.Address() != w.Account.Self() {
		t.Fatalf("service and account disagree on vault address")
	}
	allowance := w.Token.Allowance(w.Account.Self(), w.Strategy.Address())
	if !allowance.Eq(new(uint256.Int).SetAllOne()) {
		t.Fatalf("strategy not approved, allowance %s", allowance)
	}
}

func TestFundSaturatesAllowance(t *testing.T) {
	w, err := New(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	holder := Address("holder")
	if err := w.Fund(holder, uint256.NewInt(10)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := w.Fund(holder, uint256.NewInt(5)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if got := w.Token.BalanceOf(holder); !got.Eq(uint256.NewInt(15)) {
		t.Fatalf("expected balance 15, got %s", got)
	}
	if got := w.Token.Allowance(holder, w.Account.Self()); !got.Eq(uint256.NewInt(15)) {
		t.Fatalf("expected allowance 15, got %s", got)
	}
	w.Token.Approve(holder, w.Account.Self(), new(uint256.Int).SetAllOne())
	if err := w.Fund(holder, uint256.NewInt(1)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if got := w.Token.Allowance(holder, w.Account.Self()); !got.Eq(new(uint256.Int).SetAllOne()) {
		t.Fatalf("allowance did not saturate: %s", got)
	}
}

func TestAddressIsStable(t *testing.T) {
	if Address("a") != Address("a") || Address("a") == Address("b") {
		t.Fatalf("address derivation is not stable")
	}
}
