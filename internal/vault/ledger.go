package vault

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ShareReader is the read surface of the share ledger exposed to callers.
type ShareReader interface {
	TotalSupply() *uint256.Int
	BalanceOf(holder common.Address) *uint256.Int
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Ledger tracks share balances. Only the accounting service mints and burns;
// Transfer and TransferFrom move shares between holders without touching
// supply.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supply     *uint256.Int
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		supply:     new(uint256.Int),
	}
}

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.supply)
}

func (l *Ledger) BalanceOf(holder common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(holder)
}

// Holders returns every address with a non-zero balance, in byte order.
func (l *Ledger) Holders() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]common.Address, 0, len(l.balances))
	for holder := range l.balances {
		out = append(out, holder)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func (l *Ledger) Mint(holder common.Address, amount *uint256.Int) error {
	if holder == (common.Address{}) {
		return fmt.Errorf("%w: mint to zero address", ErrInvalidParameter)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	supply, overflow := new(uint256.Int).AddOverflow(l.supply, amount)
	if overflow {
		return ErrOverflow
	}
	l.supply = supply
	l.setLocked(holder, new(uint256.Int).Add(l.balanceLocked(holder), amount))
	return nil
}

func (l *Ledger) Burn(holder common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balanceLocked(holder)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: balance %s below %s", ErrInsufficientShares, FormatAmount(balance), FormatAmount(amount))
	}
	l.setLocked(holder, balance.Sub(balance, amount))
	l.supply = new(uint256.Int).Sub(l.supply, amount)
	return nil
}

func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to zero address", ErrInvalidParameter)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(from, to, amount)
}

func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := allowanceKey{owner: owner, spender: spender}
	if amount.IsZero() {
		delete(l.allowances, key)
		return
	}
	l.allowances[key] = new(uint256.Int).Set(amount)
}

func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.allowances[allowanceKey{owner: owner, spender: spender}]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to zero address", ErrInvalidParameter)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := allowanceKey{owner: from, spender: spender}
	allowed, ok := l.allowances[key]
	if !ok || allowed.Lt(amount) {
		return fmt.Errorf("%w: share allowance below %s", ErrInsufficientShares, FormatAmount(amount))
	}
	if err := l.moveLocked(from, to, amount); err != nil {
		return err
	}
	remaining := new(uint256.Int).Sub(allowed, amount)
	if remaining.IsZero() {
		delete(l.allowances, key)
	} else {
		l.allowances[key] = remaining
	}
	return nil
}

func (l *Ledger) moveLocked(from, to common.Address, amount *uint256.Int) error {
	balance := l.balanceLocked(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: balance %s below %s", ErrInsufficientShares, FormatAmount(balance), FormatAmount(amount))
	}
	l.setLocked(from, balance.Sub(balance, amount))
	l.setLocked(to, new(uint256.Int).Add(l.balanceLocked(to), amount))
	return nil
}

func (l *Ledger) balanceLocked(holder common.Address) *uint256.Int {
	if v, ok := l.balances[holder]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (l *Ledger) setLocked(holder common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		delete(l.balances, holder)
		return
	}
	l.balances[holder] = amount
}
