package asset

import (
	"context"
	"fmt"
	"sync"

	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Hook runs before every transfer, outside the token lock, with the context
// of the call moving the funds. An error aborts the transfer.
type Hook func(ctx context.Context, from, to common.Address, amount *uint256.Int) error

// Token is an in-memory fungible asset with balances and allowances.
type Token struct {
	address common.Address
	symbol  string

	mu         sync.Mutex
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
	supply     *uint256.Int
	hook       Hook
}

func NewToken(address common.Address, symbol string) *Token {
	return &Token{
		address:    address,
		symbol:     symbol,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		supply:     new(uint256.Int),
	}
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) Symbol() string { return t.symbol }

func (t *Token) SetHook(hook Hook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = hook
}

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.supply)
}

func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceLocked(owner)
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.allowances[owner][spender]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = byOwner
	}
	byOwner[spender] = new(uint256.Int).Set(amount)
}

// Mint creates amount out of thin air for owner.
func (t *Token) Mint(owner common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	supply, overflow := new(uint256.Int).AddOverflow(t.supply, amount)
	if overflow {
		return vault.ErrOverflow
	}
	t.supply = supply
	t.balances[owner] = new(uint256.Int).Add(t.balanceLocked(owner), amount)
	return nil
}

// Burn destroys amount held by owner.
func (t *Token) Burn(owner common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	balance := t.balanceLocked(owner)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s %s, burn %s", vault.ErrInsufficientFunds, owner.Hex(), vault.FormatAmount(balance), t.symbol, vault.FormatAmount(amount))
	}
	t.balances[owner] = balance.Sub(balance, amount)
	t.supply = new(uint256.Int).Sub(t.supply, amount)
	return nil
}

func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if err := t.beforeTransfer(ctx, from, to, amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(from, to, amount)
}

// TransferFrom moves amount from owner to to, spending spender's allowance.
func (t *Token) TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *uint256.Int) error {
	if err := t.beforeTransfer(ctx, owner, to, amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	allowed := new(uint256.Int)
	if v, ok := t.allowances[owner][spender]; ok {
		allowed.Set(v)
	}
	if allowed.Lt(amount) {
		return fmt.Errorf("%w: allowance %s below %s", vault.ErrInsufficientFunds, vault.FormatAmount(allowed), vault.FormatAmount(amount))
	}
	if err := t.moveLocked(owner, to, amount); err != nil {
		return err
	}
	t.allowances[owner][spender] = allowed.Sub(allowed, amount)
	return nil
}

func (t *Token) beforeTransfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	hook := t.hook
	t.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(ctx, from, to, new(uint256.Int).Set(amount))
}

func (t *Token) moveLocked(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to zero address", vault.ErrInvalidParameter)
	}
	balance := t.balanceLocked(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", vault.ErrInsufficientFunds, from.Hex(), vault.FormatAmount(balance), t.symbol, vault.FormatAmount(amount))
	}
	t.balances[from] = balance.Sub(balance, amount)
	t.balances[to] = new(uint256.Int).Add(t.balanceLocked(to), amount)
	return nil
}

func (t *Token) balanceLocked(owner common.Address) *uint256.Int {
	if v, ok := t.balances[owner]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}
