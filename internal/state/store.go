package state

import "context"

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// StoredEvent is one journal row. Payload is the msgpack-encoded record.
type StoredEvent struct {
	Seq     uint64
	ID      string
	Kind    string
	Payload []byte
}

// EventLog is append-only storage for committed vault events.
type EventLog interface {
	AppendEvent(ctx context.Context, event StoredEvent) error
	// ListEvents returns up to limit of the most recent events, oldest first.
	ListEvents(ctx context.Context, limit int) ([]StoredEvent, error)
	LastSequence(ctx context.Context) (uint64, error)
}
