package strategy

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestCheckWithdrawalLoss(t *testing.T) {
	value := uint256.NewInt(1000)
	if err := CheckWithdrawalLoss(value, uint256.NewInt(10), 100); err != nil {
		t.Fatalf("loss at bound rejected: %v", err)
	}
	if err := CheckWithdrawalLoss(value, uint256.NewInt(11), 100); !errors.Is(err, ErrWithdrawalLoss) {
		t.Fatalf("expected ErrWithdrawalLoss, got %v", err)
	}
	if err := CheckWithdrawalLoss(value, new(uint256.Int), 0); err != nil {
		t.Fatalf("zero loss rejected: %v", err)
	}
	if err := CheckWithdrawalLoss(value, new(uint256.Int), 10_001); !errors.Is(err, ErrInvalidBps) {
		t.Fatalf("expected ErrInvalidBps, got %v", err)
	}
}

func TestDepositRoom(t *testing.T) {
	if room := DepositRoom(uint256.NewInt(5), nil); !room.Eq(new(uint256.Int).SetAllOne()) {
		t.Fatalf("nil limit should be unlimited, got %s", room)
	}
	if room := DepositRoom(uint256.NewInt(5), uint256.NewInt(8)); !room.Eq(uint256.NewInt(3)) {
		t.Fatalf("expected 3, got %s", room)
	}
	if room := DepositRoom(uint256.NewInt(9), uint256.NewInt(8)); !room.IsZero() {
		t.Fatalf("expected no room over limit, got %s", room)
	}
}
