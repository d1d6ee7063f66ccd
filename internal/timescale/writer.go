package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"yield-vault/internal/config"
	"yield-vault/internal/vault"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// BookSnapshot is one row of the vault_books hypertable.
type BookSnapshot struct {
	Time          time.Time
	Vault         string
	Float         string
	Units         string
	PricePerUnit  string
	TotalAssets   string
	TotalSupply   string
	PricePerShare string
	MaxLossBps    uint16
	Holders       int
}

func NewBookSnapshot(at time.Time, snap vault.Snapshot) BookSnapshot {
	return BookSnapshot{
		Time:          at.UTC(),
		Vault:         snap.Address.Hex(),
		Float:         vault.FormatAmount(snap.Float),
		Units:         vault.FormatAmount(snap.Units),
		PricePerUnit:  vault.FormatAmount(snap.PricePerUnit),
		TotalAssets:   vault.FormatAmount(snap.TotalAssets),
		TotalSupply:   vault.FormatAmount(snap.TotalSupply),
		PricePerShare: vault.FormatAmount(snap.PricePerShare),
		MaxLossBps:    snap.MaxLossBps,
		Holders:       snap.Holders,
	}
}

// Writer exports vault events and book snapshots asynchronously. Queues are
// bounded; when full, new rows are dropped and counted.
type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	vault     string
	events    chan vault.Record
	books     chan BookSnapshot
	started   atomic.Bool
	dropEvent atomic.Uint64
	dropBook  atomic.Uint64
}

var _ vault.EventSink = (*Writer)(nil)

func New(cfg config.TimescaleConfig, vaultAddress string, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, schema, vaultAddress, cfg.QueueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema, vaultAddress string, queueSize int, log *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:     db,
		log:    log,
		schema: schema,
		vault:  vaultAddress,
		events: make(chan vault.Record, queueSize),
		books:  make(chan BookSnapshot, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Publish queues a committed event for export.
func (w *Writer) Publish(ctx context.Context, event vault.Event) {
	_ = ctx
	if w == nil {
		return
	}
	select {
	case w.events <- event.Record():
	default:
		if w.dropEvent.Add(1) == 1 {
			w.log.Warn("timescale event queue full")
		}
	}
}

func (w *Writer) EnqueueBook(snapshot BookSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.books <- snapshot:
	default:
		if w.dropBook.Add(1) == 1 {
			w.log.Warn("timescale book queue full")
		}
	}
}

// Dropped reports rows discarded because a queue was full.
func (w *Writer) Dropped() (events, books uint64) {
	if w == nil {
		return 0, 0
	}
	return w.dropEvent.Load(), w.dropBook.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-w.events:
			w.writeEvent(ctx, rec)
		case snap := <-w.books:
			w.writeBook(ctx, snap)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		vault TEXT NOT NULL,
		seq BIGINT NOT NULL,
		kind TEXT NOT NULL,
		caller TEXT NOT NULL,
		beneficiary TEXT NOT NULL DEFAULT '',
		amount NUMERIC(78,0) NOT NULL,
		shares NUMERIC(78,0),
		received NUMERIC(78,0),
		max_loss_bps INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (ts, vault, seq)
	)`, w.table("vault_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		vault TEXT NOT NULL,
		float NUMERIC(78,0) NOT NULL,
		units NUMERIC(78,0) NOT NULL,
		price_per_unit NUMERIC(78,0) NOT NULL,
		total_assets NUMERIC(78,0) NOT NULL,
		total_supply NUMERIC(78,0) NOT NULL,
		price_per_share NUMERIC(78,0) NOT NULL,
		max_loss_bps INTEGER NOT NULL,
		holders INTEGER NOT NULL
	)`, w.table("vault_books"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"vault_events", "vault_books"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeEvent(ctx context.Context, rec vault.Record) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, vault, seq, kind, caller, beneficiary, amount, shares, received, max_loss_bps
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	)
	ON CONFLICT (ts, vault, seq) DO NOTHING`, w.table("vault_events"))
	if _, err := w.db.ExecContext(ctx, query,
		time.UnixMilli(rec.TimeMS).UTC(),
		w.vault,
		int64(rec.Seq),
		rec.Kind,
		rec.Caller,
		rec.Beneficiary,
		rec.Amount,
		nullable(rec.Shares),
		nullable(rec.Received),
		int(rec.MaxLossBps),
	); err != nil {
		w.log.Warn("timescale event insert failed", zap.Uint64("seq", rec.Seq), zap.Error(err))
	}
}

func (w *Writer) writeBook(ctx context.Context, snap BookSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, vault, float, units, price_per_unit, total_assets, total_supply, price_per_share, max_loss_bps, holders
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	)`, w.table("vault_books"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.Vault,
		snap.Float,
		snap.Units,
		snap.PricePerUnit,
		snap.TotalAssets,
		snap.TotalSupply,
		snap.PricePerShare,
		int(snap.MaxLossBps),
		snap.Holders,
	); err != nil {
		w.log.Warn("timescale book insert failed", zap.Error(err))
	}
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
