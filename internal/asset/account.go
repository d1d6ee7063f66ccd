package asset

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account is a Token bound to the address that pulls and pushes through it.
type Account struct {
	token *Token
	self  common.Address
}

func NewAccount(token *Token, self common.Address) *Account {
	return &Account{token: token, self: self}
}

func (a *Account) Asset() common.Address { return a.token.Address() }

func (a *Account) Self() common.Address { return a.self }

func (a *Account) BalanceOf(ctx context.Context) (*uint256.Int, error) {
	_ = ctx
	return a.token.BalanceOf(a.self), nil
}

// PullFrom spends the allowance source granted to the account.
func (a *Account) PullFrom(ctx context.Context, source common.Address, amount *uint256.Int) error {
	return a.token.TransferFrom(ctx, a.self, source, a.self, amount)
}

func (a *Account) PushTo(ctx context.Context, destination common.Address, amount *uint256.Int) error {
	return a.token.Transfer(ctx, a.self, destination, amount)
}

// Approve lets spender pull from the account, as the strategy does on deposit.
func (a *Account) Approve(spender common.Address, amount *uint256.Int) {
	a.token.Approve(a.self, spender, amount)
}
