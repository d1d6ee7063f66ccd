package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"yield-vault/internal/alerts"
	"yield-vault/internal/api"
	"yield-vault/internal/config"
	"yield-vault/internal/feed"
	"yield-vault/internal/metrics"
	"yield-vault/internal/sim"
	"yield-vault/internal/state"
	"yield-vault/internal/state/sqlite"
	"yield-vault/internal/timescale"
	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	journal   *state.Journal
	world     *sim.World
	prom      *metrics.Prometheus
	metrics   *metrics.Metrics
	timescale *timescale.Writer
	feed      *feed.Hub
	notifier  *alerts.Notifier
	handler   http.Handler
	now       func() time.Time
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, store: store, now: time.Now}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	a.metrics = metrics.NewNoop()
	if cfg.Metrics.Enabled {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
	}
	a.journal = state.NewJournal(a.store, a.log.Named("journal"))

	simCfg, err := simulationConfig(cfg)
	if err != nil {
		return err
	}
	if bps, ok, err := state.LoadMaxLoss(ctx, a.store); err != nil {
		a.log.Warn("persisted max loss ignored", zap.Error(err))
	} else if ok {
		simCfg.MaxLossBps = bps
		a.log.Info("max loss restored", zap.Uint16("bps", bps))
	}
	lastSeq, err := a.journal.LastSequence(ctx)
	if err != nil {
		return fmt.Errorf("read journal sequence: %w", err)
	}

	sinks := vault.MultiSink{a.journal}
	if a.timescale, err = timescale.New(cfg.Timescale, simCfg.VaultAddress.Hex(), a.log.Named("timescale")); err != nil {
		return fmt.Errorf("timescale: %w", err)
	}
	if a.timescale != nil {
		sinks = append(sinks, a.timescale)
	}
	if cfg.Feed.Enabled {
		a.feed = feed.NewHub(cfg.Feed, a.log.Named("feed"))
		sinks = append(sinks, a.feed)
	}
	if cfg.Telegram.Enabled {
		a.notifier = alerts.NewNotifier(alerts.NewTelegram(cfg.Telegram, a.log), cfg.Telegram.LossAlertBps, a.log.Named("alerts"))
		sinks = append(sinks, a.notifier)
	}

	a.world, err = sim.New(ctx, simCfg,
		vault.WithLogger(a.log.Named("vault")),
		vault.WithMetrics(a.metrics),
		vault.WithSink(sinks),
		vault.WithStartSequence(lastSeq),
	)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Vault:       a.world.Sequencer,
		Simulation:  a.world,
		Events:      a.journal,
		FeedPath:    cfg.Feed.Path,
		OperatorKey: cfg.Vault.OperatorKey,
		Log:         a.log.Named("http"),
		OnMaxLoss: func(ctx context.Context, bps uint16) error {
			return state.SaveMaxLoss(ctx, a.store, bps)
		},
		AfterCommit: a.recordSnapshot,
	}
	if a.feed != nil {
		deps.Feed = a.feed
	}
	a.handler = api.NewHandler(deps)
	a.recordSnapshot(ctx)
	return nil
}

func simulationConfig(cfg *config.Config) (sim.Config, error) {
	out := sim.DefaultConfig()
	out.AssetSymbol = cfg.Simulation.AssetSymbol
	out.StrategyVersion = cfg.Simulation.StrategyVersion
	out.UnitDecimals = cfg.Simulation.UnitDecimals
	out.SlippageBps = cfg.Simulation.SlippageBps
	out.MaxLossBps = cfg.Vault.MaxLossBps
	out.SupportedVersions = cfg.Vault.SupportedVersions
	if cfg.Vault.Address != "" {
		out.VaultAddress = common.HexToAddress(cfg.Vault.Address)
	}
	if cfg.Simulation.AssetAddress != "" {
		out.AssetAddress = common.HexToAddress(cfg.Simulation.AssetAddress)
	}
	if cfg.Simulation.StrategyAddress != "" {
		out.StrategyAddress = common.HexToAddress(cfg.Simulation.StrategyAddress)
	}
	if cfg.Simulation.DepositLimit != "" {
		limit, err := vault.ParseAmount(cfg.Simulation.DepositLimit)
		if err != nil {
			return sim.Config{}, err
		}
		out.DepositLimit = limit
	}
	return out, nil
}

func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Service() *vault.Service { return a.world.Service }

func (a *App) World() *sim.World { return a.world }

// Run serves the API (and metrics, when enabled) until ctx ends.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	a.timescale.Start(ctx)

	servers := []*http.Server{a.apiServer()}
	if a.prom != nil {
		mux := http.NewServeMux()
		mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
		servers = append(servers, &http.Server{
			Addr:              a.cfg.Metrics.Address,
			Handler:           mux,
			ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		})
	}
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			a.shutdown(servers)
			return err
		}
		a.log.Info("listening", zap.String("address", ln.Addr().String()))
		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv, ln)
	}

	select {
	case <-ctx.Done():
		a.shutdown(servers)
		a.recordSnapshot(context.WithoutCancel(ctx))
		return ctx.Err()
	case err := <-errCh:
		a.shutdown(servers)
		return err
	}
}

func (a *App) apiServer() *http.Server {
	srv := &http.Server{
		Addr:              a.cfg.Server.Address,
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
	}
	// Feed connections are long lived.
	if a.feed == nil {
		srv.WriteTimeout = a.cfg.Server.WriteTimeout
	}
	return srv
}

func (a *App) shutdown(servers []*http.Server) {
	if a.feed != nil {
		a.feed.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Warn("server shutdown failed", zap.String("address", srv.Addr), zap.Error(err))
		}
	}
}

// Close flushes pending alerts and releases storage.
func (a *App) Close() error {
	if a.notifier != nil {
		a.notifier.Wait()
	}
	var errs []error
	if a.timescale != nil {
		errs = append(errs, a.timescale.Close())
		a.timescale = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}

// recordSnapshot persists the books and refreshes gauges after a change.
func (a *App) recordSnapshot(ctx context.Context) {
	if a.world == nil {
		return
	}
	snap, err := a.world.Sequencer.Snapshot(ctx)
	if err != nil {
		a.log.Warn("vault snapshot failed", zap.Error(err))
		return
	}
	now := a.now()
	if err := state.SaveVaultSnapshot(ctx, a.store, state.NewVaultSnapshot(snap, now.UnixMilli())); err != nil {
		a.log.Warn("vault snapshot save failed", zap.Error(err))
	}
	a.metrics.TotalAssets.Set(toFloat(snap.TotalAssets))
	a.metrics.TotalSupply.Set(toFloat(snap.TotalSupply))
	a.metrics.PricePerShare.Set(toFloat(snap.PricePerShare))
	a.metrics.Float.Set(toFloat(snap.Float))
	a.timescale.EnqueueBook(timescale.NewBookSnapshot(now, snap))
}

func toFloat(z *uint256.Int) float64 {
	if z == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(z.ToBig()).Float64()
	return f
}
