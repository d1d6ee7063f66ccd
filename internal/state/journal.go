package state

import (
	"context"
	"errors"

	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Journal appends every published vault event to an EventLog. Write
// failures are logged and do not affect the committed operation.
type Journal struct {
	log   EventLog
	zlog  *zap.Logger
	onErr func(error)
}

var _ vault.EventSink = (*Journal)(nil)

func NewJournal(log EventLog, zlog *zap.Logger) *Journal {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	return &Journal{log: log, zlog: zlog}
}

// OnError registers a callback for failed appends.
func (j *Journal) OnError(fn func(error)) {
	j.onErr = fn
}

func (j *Journal) Publish(ctx context.Context, event vault.Event) {
	stored, err := EncodeEvent(event.Record())
	if err == nil {
		err = j.log.AppendEvent(context.WithoutCancel(ctx), stored)
	}
	if err != nil {
		j.zlog.Error("journal append failed", zap.Uint64("seq", event.Seq), zap.String("kind", string(event.Kind)), zap.Error(err))
		if j.onErr != nil {
			j.onErr(err)
		}
	}
}

// Recent decodes up to limit of the latest journaled records.
func (j *Journal) Recent(ctx context.Context, limit int) ([]vault.Record, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	rows, err := j.log.ListEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]vault.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := DecodeEvent(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (j *Journal) LastSequence(ctx context.Context) (uint64, error) {
	return j.log.LastSequence(ctx)
}

// EncodeEvent packs a record and derives its id from the packed bytes.
func EncodeEvent(rec vault.Record) (StoredEvent, error) {
	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return StoredEvent{}, err
	}
	return StoredEvent{
		Seq:     rec.Seq,
		ID:      crypto.Keccak256Hash(payload).Hex(),
		Kind:    rec.Kind,
		Payload: payload,
	}, nil
}

func DecodeEvent(stored StoredEvent) (vault.Record, error) {
	var rec vault.Record
	if err := msgpack.Unmarshal(stored.Payload, &rec); err != nil {
		return vault.Record{}, err
	}
	if crypto.Keccak256Hash(stored.Payload).Hex() != stored.ID {
		return vault.Record{}, errors.New("journal payload does not match its id")
	}
	return rec, nil
}
