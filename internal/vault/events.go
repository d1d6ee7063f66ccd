package vault

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type EventKind string

const (
	EventDeposit EventKind = "DEPOSIT"
	EventRedeem  EventKind = "REDEEM"
	EventSponsor EventKind = "SPONSOR"
	EventMaxLoss EventKind = "MAX_LOSS"
)

// Event is a committed vault operation. Fields not relevant to a kind are
// left zero: Shares is empty for sponsor, Received is only set on redeem.
type Event struct {
	Seq         uint64
	Kind        EventKind
	Time        time.Time
	Caller      common.Address
	Beneficiary common.Address
	Amount      *uint256.Int
	Shares      *uint256.Int
	Received    *uint256.Int
	MaxLossBps  uint16
}

// Shortfall is the requested amount minus what a redemption paid out.
func (e Event) Shortfall() *uint256.Int {
	if e.Kind != EventRedeem || e.Amount == nil || e.Received == nil || !e.Received.Lt(e.Amount) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(e.Amount, e.Received)
}

// Record is the flat, string-encoded form used by stores and feeds.
type Record struct {
	Seq         uint64 `json:"seq" msgpack:"seq"`
	Kind        string `json:"kind" msgpack:"kind"`
	TimeMS      int64  `json:"time_ms" msgpack:"time_ms"`
	Caller      string `json:"caller" msgpack:"caller"`
	Beneficiary string `json:"beneficiary,omitempty" msgpack:"beneficiary,omitempty"`
	Amount      string `json:"amount" msgpack:"amount"`
	Shares      string `json:"shares,omitempty" msgpack:"shares,omitempty"`
	Received    string `json:"received,omitempty" msgpack:"received,omitempty"`
	MaxLossBps  uint16 `json:"max_loss_bps,omitempty" msgpack:"max_loss_bps,omitempty"`
}

func (e Event) Record() Record {
	rec := Record{
		Seq:        e.Seq,
		Kind:       string(e.Kind),
		TimeMS:     e.Time.UnixMilli(),
		Caller:     e.Caller.Hex(),
		Amount:     FormatAmount(e.Amount),
		MaxLossBps: e.MaxLossBps,
	}
	if e.Beneficiary != (common.Address{}) {
		rec.Beneficiary = e.Beneficiary.Hex()
	}
	if e.Shares != nil {
		rec.Shares = FormatAmount(e.Shares)
	}
	if e.Received != nil {
		rec.Received = FormatAmount(e.Received)
	}
	return rec
}
