package sqlite

import (
	"context"
	"testing"

	"yield-vault/internal/state"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "key", "value"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != "value" {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, ok, err = store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestEventLog(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	seq, err := store.LastSequence(ctx)
	if err != nil {
		t.Fatalf("last sequence: %v", err)
	}
	if seq != 0 {
		t.Fatalf("expected empty log, got seq %d", seq)
	}
	for i, id := range []string{"a", "b", "c"} {
		event := state.StoredEvent{Seq: uint64(i + 1), ID: id, Kind: "DEPOSIT", Payload: []byte{byte(i)}}
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if err := store.AppendEvent(ctx, state.StoredEvent{Seq: 3, ID: "dup", Kind: "DEPOSIT", Payload: []byte{9}}); err == nil {
		t.Fatalf("expected duplicate sequence to fail")
	}
	events, err := store.ListEvents(ctx, 2)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].ID != "b" || events[1].ID != "c" {
		t.Fatalf("unexpected events: %#v", events)
	}
	if events[1].Payload[0] != 2 {
		t.Fatalf("payload not preserved: %v", events[1].Payload)
	}
	seq, err = store.LastSequence(ctx)
	if err != nil {
		t.Fatalf("last sequence: %v", err)
	}
	if seq != 3 {
		t.Fatalf("expected seq 3, got %d", seq)
	}
}
