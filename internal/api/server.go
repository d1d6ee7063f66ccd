package api

import (
	"context"
	"net/http"
	"time"

	"yield-vault/internal/state"
	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Vault is the caller-facing surface of the accounting service.
type Vault interface {
	Deposit(ctx context.Context, caller, beneficiary common.Address, amount *uint256.Int) (*uint256.Int, error)
	Redeem(ctx context.Context, caller common.Address, amount *uint256.Int) (*uint256.Int, error)
	Sponsor(ctx context.Context, caller common.Address, amount *uint256.Int) error
	TotalAssetValue(ctx context.Context, holder common.Address) (*uint256.Int, error)
	SetMaxLoss(ctx context.Context, bps uint16) error
	MaxLoss() uint16
	Snapshot(ctx context.Context) (vault.Snapshot, error)
	Ledger() vault.ShareReader
}

// Simulation moves the simulated asset and strategy behind the vault.
type Simulation interface {
	Fund(holder common.Address, amount *uint256.Int) error
	Harvest(gain *uint256.Int) error
	ReportLoss(loss *uint256.Int) error
}

type EventSource interface {
	Recent(ctx context.Context, limit int) ([]vault.Record, error)
}

type Deps struct {
	Vault       Vault
	Simulation  Simulation
	Events      EventSource
	Feed        http.Handler
	FeedPath    string
	OperatorKey string
	Log         *zap.Logger
	// OnMaxLoss persists a tolerance before it is applied. A failure aborts
	// the change.
	OnMaxLoss func(ctx context.Context, bps uint16) error
	// AfterCommit runs after every successful state change.
	AfterCommit func(ctx context.Context)
	Now         func() time.Time
}

type Server struct {
	deps Deps
	log  *zap.Logger
}

// NewHandler registers every route and wraps the mux in request logging.
func NewHandler(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.FeedPath == "" {
		deps.FeedPath = "/ws"
	}
	s := &Server{deps: deps, log: deps.Log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.health)

	mux.HandleFunc("POST /api/deposit", s.deposit)
	mux.HandleFunc("POST /api/redeem", s.redeem)
	mux.HandleFunc("POST /api/sponsor", s.sponsor)
	mux.HandleFunc("GET /api/holders/{address}", s.holder)
	mux.HandleFunc("GET /api/vault", s.snapshot)
	mux.HandleFunc("GET /api/events", s.events)

	mux.HandleFunc("PUT /api/max-loss", requireOperator(deps.OperatorKey, s.setMaxLoss))
	if deps.Simulation != nil {
		mux.HandleFunc("POST /api/sim/fund", requireOperator(deps.OperatorKey, s.simFund))
		mux.HandleFunc("POST /api/sim/harvest", requireOperator(deps.OperatorKey, s.simHarvest))
		mux.HandleFunc("POST /api/sim/loss", requireOperator(deps.OperatorKey, s.simLoss))
	}
	if deps.Feed != nil {
		mux.Handle("GET "+deps.FeedPath, deps.Feed)
	}
	return withLogging(deps.Log, mux)
}

func (s *Server) committed(ctx context.Context) {
	if s.deps.AfterCommit != nil {
		s.deps.AfterCommit(ctx)
	}
}

// snapshotBody is the /api/vault payload.
func snapshotBody(snap vault.Snapshot, now time.Time) state.VaultSnapshot {
	return state.NewVaultSnapshot(snap, now.UnixMilli())
}
