package alerts

import (
	"context"
	"strings"
	"sync"
	"testing"

	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingSender) Send(ctx context.Context, message string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingSender) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func redeemEvent(amount, received uint64) vault.Event {
	return vault.Event{
		Seq:        3,
		Kind:       vault.EventRedeem,
		Caller:     common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Amount:     uint256.NewInt(amount),
		Shares:     uint256.NewInt(amount),
		Received:   uint256.NewInt(received),
		MaxLossBps: 100,
	}
}

func TestNotifierAlertsOnLossAtThreshold(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewNotifier(sender, 50, nil)
	ctx := context.Background()
	notifier.Publish(ctx, redeemEvent(1000, 1000))
	notifier.Publish(ctx, redeemEvent(1000, 996))
	notifier.Publish(ctx, redeemEvent(1000, 995))
	notifier.Wait()
	messages := sender.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected one alert, got %v", messages)
	}
	if !strings.Contains(messages[0], "lost 5 of 1000") {
		t.Fatalf("unexpected alert: %q", messages[0])
	}
}

func TestNotifierAlertsOnMaxLossChange(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewNotifier(sender, 50, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	notifier.Publish(ctx, vault.Event{Seq: 9, Kind: vault.EventMaxLoss, MaxLossBps: 250})
	notifier.Publish(ctx, vault.Event{Seq: 10, Kind: vault.EventDeposit, Amount: uint256.NewInt(1)})
	notifier.Wait()
	messages := sender.Messages()
	if len(messages) != 1 || !strings.Contains(messages[0], "250 bps") {
		t.Fatalf("unexpected alerts: %v", messages)
	}
}
