package vault

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// guard admits one call at a time. A call that arrives while another is in
// flight is rejected, whether it re-enters through a port callback or comes
// from another goroutine; Sequencer queues the latter.
type guard struct {
	busy atomic.Bool
}

func (g *guard) enter() (func(), error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrant
	}
	return func() { g.busy.Store(false) }, nil
}

// Sequencer queues concurrent callers in front of a Service so that they
// take turns instead of being rejected. A caller whose ctx ends while it is
// waiting gives up with ctx.Err(). Ports and hooks must call the Service,
// never the Sequencer.
type Sequencer struct {
	svc  *Service
	turn chan struct{}
}

func NewSequencer(svc *Service) *Sequencer {
	return &Sequencer{svc: svc, turn: make(chan struct{}, 1)}
}

func (q *Sequencer) wait(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case q.turn <- struct{}{}:
		return func() { <-q.turn }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Sequencer) Service() *Service { return q.svc }

func (q *Sequencer) Deposit(ctx context.Context, caller, beneficiary common.Address, amount *uint256.Int) (*uint256.Int, error) {
	done, err := q.wait(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return q.svc.Deposit(ctx, caller, beneficiary, amount)
}

func (q *Sequencer) Redeem(ctx context.Context, caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	done, err := q.wait(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return q.svc.Redeem(ctx, caller, amount)
}

func (q *Sequencer) Sponsor(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	done, err := q.wait(ctx)
	if err != nil {
		return err
	}
	defer done()
	return q.svc.Sponsor(ctx, caller, amount)
}

func (q *Sequencer) TotalAssetValue(ctx context.Context, holder common.Address) (*uint256.Int, error) {
	done, err := q.wait(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return q.svc.TotalAssetValue(ctx, holder)
}

func (q *Sequencer) SetMaxLoss(ctx context.Context, bps uint16) error {
	done, err := q.wait(ctx)
	if err != nil {
		return err
	}
	defer done()
	return q.svc.SetMaxLoss(ctx, bps)
}

func (q *Sequencer) Snapshot(ctx context.Context) (Snapshot, error) {
	done, err := q.wait(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer done()
	return q.svc.Snapshot(ctx)
}

func (q *Sequencer) Address() common.Address { return q.svc.Address() }

func (q *Sequencer) MaxLoss() uint16 { return q.svc.MaxLoss() }

func (q *Sequencer) Ledger() ShareReader { return q.svc.Ledger() }
