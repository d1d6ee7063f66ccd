package vault

import "go.uber.org/zap"

// txn collects compensating steps for a single call. Undo runs them newest
// first; Commit discards them.
type txn struct {
	log   *zap.Logger
	undos []undoStep
}

type undoStep struct {
	name string
	fn   func() error
}

func (t *txn) onUndo(name string, fn func() error) {
	t.undos = append(t.undos, undoStep{name: name, fn: fn})
}

func (t *txn) rollback() {
	for i := len(t.undos) - 1; i >= 0; i-- {
		step := t.undos[i]
		if err := step.fn(); err != nil {
			t.log.Error("rollback step failed", zap.String("step", step.name), zap.Error(err))
		}
	}
	t.undos = nil
}

func (t *txn) commit() {
	t.undos = nil
}
