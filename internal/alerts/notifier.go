package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yield-vault/internal/vault"

	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

type Sender interface {
	Send(ctx context.Context, message string) error
}

// Notifier turns vault events into operator alerts: redemptions whose
// shortfall reaches the alert threshold, and loss tolerance changes.
type Notifier struct {
	sender    Sender
	threshold uint16
	log       *zap.Logger
	wg        sync.WaitGroup
}

var _ vault.EventSink = (*Notifier)(nil)

func NewNotifier(sender Sender, thresholdBps uint16, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{sender: sender, threshold: thresholdBps, log: log}
}

func (n *Notifier) Publish(ctx context.Context, event vault.Event) {
	message, ok := n.message(event)
	if !ok {
		return
	}
	// Delivery must not hold up the vault lock.
	sendCtx := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(sendCtx, sendTimeout)
		defer cancel()
		if err := n.sender.Send(ctx, message); err != nil {
			n.log.Warn("alert send failed", zap.Uint64("seq", event.Seq), zap.Error(err))
		}
	}()
}

// Wait blocks until queued alerts have been delivered or failed.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) message(event vault.Event) (string, bool) {
	switch event.Kind {
	case vault.EventMaxLoss:
		return fmt.Sprintf("vault max loss set to %d bps (event %d)", event.MaxLossBps, event.Seq), true
	case vault.EventRedeem:
		shortfall := event.Shortfall()
		if shortfall.IsZero() {
			return "", false
		}
		bound, err := vault.LossBound(event.Amount, n.threshold)
		if err != nil || shortfall.Lt(bound) {
			return "", false
		}
		return fmt.Sprintf("redemption by %s lost %s of %s (tolerance %d bps, event %d)",
			event.Caller.Hex(),
			vault.FormatAmount(shortfall),
			vault.FormatAmount(event.Amount),
			event.MaxLossBps,
			event.Seq,
		), true
	}
	return "", false
}
