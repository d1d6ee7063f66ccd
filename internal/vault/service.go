package vault

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"yield-vault/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Params is the one-time configuration of a vault.
type Params struct {
	Address    common.Address
	MaxLossBps uint16
	// SupportedVersions lists accepted strategy API version prefixes. Empty
	// accepts any version.
	SupportedVersions []string
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithSink(sink EventSink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStartSequence resumes event numbering after seq.
func WithStartSequence(seq uint64) Option {
	return func(s *Service) { s.seq = seq }
}

// Service runs deposit, redeem and sponsor flows against the share ledger,
// the asset port and the strategy. Every entry point holds the guard for its
// whole duration; overlapping calls fail with ErrReentrant. Wrap the service
// in a Sequencer to serve concurrent callers.
type Service struct {
	guard guard

	address  common.Address
	ledger   *Ledger
	asset    AssetPort
	strategy StrategyPort
	maxLoss  atomic.Uint32
	seq      uint64

	sink    EventSink
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Snapshot is a point-in-time view of the vault's books. PricePerShare is
// the asset value of 10^UnitDecimals shares.
type Snapshot struct {
	Address       common.Address
	Float         *uint256.Int
	Units         *uint256.Int
	PricePerUnit  *uint256.Int
	UnitDecimals  uint8
	Deployed      *uint256.Int
	TotalAssets   *uint256.Int
	TotalSupply   *uint256.Int
	PricePerShare *uint256.Int
	MaxLossBps    uint16
	Holders       int
}

func New(ctx context.Context, params Params, ledger *Ledger, asset AssetPort, strategy StrategyPort, opts ...Option) (*Service, error) {
	if params.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: vault address is required", ErrConfiguration)
	}
	if ledger == nil || asset == nil || strategy == nil {
		return nil, fmt.Errorf("%w: ledger, asset and strategy are required", ErrConfiguration)
	}
	if params.MaxLossBps > MaxBps {
		return nil, fmt.Errorf("%w: max loss %d bps above %d", ErrConfiguration, params.MaxLossBps, MaxBps)
	}
	if err := checkStrategy(ctx, params, asset, strategy); err != nil {
		return nil, err
	}
	s := &Service{
		address:  params.Address,
		ledger:   ledger,
		asset:    asset,
		strategy: strategy,
		log:      zap.NewNop(),
		metrics:  metrics.NewNoop(),
		now:      time.Now,
	}
	s.maxLoss.Store(uint32(params.MaxLossBps))
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func checkStrategy(ctx context.Context, params Params, asset AssetPort, strategy StrategyPort) error {
	token := asset.Asset()
	if token == (common.Address{}) {
		return fmt.Errorf("%w: asset address is required", ErrConfiguration)
	}
	underlying, err := strategy.UnderlyingAsset(ctx)
	if err != nil {
		return fmt.Errorf("%w: read strategy underlying: %v", ErrConfiguration, err)
	}
	if underlying != token {
		return fmt.Errorf("%w: strategy underlying %s does not match asset %s", ErrConfiguration, underlying.Hex(), token.Hex())
	}
	decimals, err := strategy.UnitDecimals(ctx)
	if err != nil {
		return fmt.Errorf("%w: read strategy decimals: %v", ErrConfiguration, err)
	}
	if _, err := UnitScale(decimals); err != nil {
		return err
	}
	if len(params.SupportedVersions) == 0 {
		return nil
	}
	version, err := strategy.APIVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: read strategy api version: %v", ErrConfiguration, err)
	}
	for _, prefix := range params.SupportedVersions {
		if strings.HasPrefix(version, prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: strategy api version %q not supported", ErrConfiguration, version)
}

func (s *Service) Address() common.Address { return s.address }

func (s *Service) Ledger() ShareReader { return s.ledger }

func (s *Service) MaxLoss() uint16 { return uint16(s.maxLoss.Load()) }

// Deposit pulls amount from caller, mints shares to beneficiary at the
// pre-deposit rate and deploys the whole float into the strategy.
func (s *Service) Deposit(ctx context.Context, caller, beneficiary common.Address, amount *uint256.Int) (*uint256.Int, error) {
	release, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	shares, err := s.deposit(ctx, caller, beneficiary, amount)
	if err != nil {
		s.failed("deposit", err, zap.Stringer("caller", caller), amountField("amount", amount))
		return nil, err
	}
	s.metrics.Deposits.Inc()
	s.log.Info("deposit",
		zap.Stringer("caller", caller),
		zap.Stringer("beneficiary", beneficiary),
		amountField("amount", amount),
		amountField("shares", shares),
	)
	return shares, nil
}

func (s *Service) deposit(ctx context.Context, caller, beneficiary common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: deposit amount must be > 0", ErrInvalidParameter)
	}
	if beneficiary == (common.Address{}) {
		return nil, fmt.Errorf("%w: beneficiary is required", ErrInvalidParameter)
	}
	pos, err := s.position(ctx)
	if err != nil {
		return nil, err
	}
	total, err := pos.TotalAssets()
	if err != nil {
		return nil, err
	}
	shares, err := AssetToShares(amount, pos.TotalSupply, total)
	if err != nil {
		return nil, err
	}
	if shares.IsZero() {
		return nil, fmt.Errorf("%w: deposit of %s mints no shares", ErrInvalidParameter, FormatAmount(amount))
	}

	tx := &txn{log: s.log}
	if err := s.ledger.Mint(beneficiary, shares); err != nil {
		return nil, err
	}
	tx.onUndo("burn minted shares", func() error { return s.ledger.Burn(beneficiary, shares) })
	if err := s.asset.PullFrom(ctx, caller, amount); err != nil {
		tx.rollback()
		return nil, fmt.Errorf("pull deposit: %w", err)
	}
	tx.onUndo("refund deposit", func() error { return s.asset.PushTo(ctx, caller, amount) })
	if err := s.deploy(ctx); err != nil {
		tx.rollback()
		return nil, err
	}
	tx.commit()

	s.publish(ctx, Event{
		Kind:        EventDeposit,
		Caller:      caller,
		Beneficiary: beneficiary,
		Amount:      new(uint256.Int).Set(amount),
		Shares:      shares,
	})
	return shares, nil
}

// Redeem burns the shares worth amount, rounded up, and pays caller from
// float first and then from the strategy. The payout can fall short of
// amount by at most the loss tolerance of amount.
func (s *Service) Redeem(ctx context.Context, caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	release, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	received, shares, err := s.redeem(ctx, caller, amount)
	if err != nil {
		s.failed("redeem", err, zap.Stringer("caller", caller), amountField("amount", amount))
		return nil, err
	}
	s.metrics.Redemptions.Inc()
	s.log.Info("redeem",
		zap.Stringer("caller", caller),
		amountField("amount", amount),
		amountField("received", received),
		amountField("shares", shares),
	)
	return received, nil
}

func (s *Service) redeem(ctx context.Context, caller common.Address, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, nil, fmt.Errorf("%w: redeem amount must be > 0", ErrInvalidParameter)
	}
	pos, err := s.position(ctx)
	if err != nil {
		return nil, nil, err
	}
	total, err := pos.TotalAssets()
	if err != nil {
		return nil, nil, err
	}
	shares, err := SharesToBurn(amount, pos.TotalSupply, total)
	if err != nil {
		return nil, nil, err
	}
	if balance := s.ledger.BalanceOf(caller); balance.Lt(shares) {
		return nil, nil, fmt.Errorf("%w: need %s shares, hold %s", ErrInsufficientShares, FormatAmount(shares), FormatAmount(balance))
	}
	maxLoss := s.MaxLoss()
	bound, err := LossBound(amount, maxLoss)
	if err != nil {
		return nil, nil, err
	}

	// Float covers what it can; only the rest comes out of the strategy.
	fromFloat := new(uint256.Int).Set(amount)
	if pos.Float.Lt(fromFloat) {
		fromFloat.Set(pos.Float)
	}
	rest := new(uint256.Int).Sub(amount, fromFloat)
	units := new(uint256.Int)
	if !rest.IsZero() {
		if units, err = StrategyUnitsFor(rest, pos.PricePerUnit, pos.UnitDecimals); err != nil {
			return nil, nil, err
		}
		if units.Gt(pos.Units) {
			units.Set(pos.Units)
		}
		if units.IsZero() {
			return nil, nil, fmt.Errorf("%w: strategy holds no units to release", ErrInsufficientFunds)
		}
		quoted, err := s.strategy.PreviewWithdraw(ctx, units)
		if err != nil {
			return nil, nil, fmt.Errorf("preview withdraw %s units: %w", FormatAmount(units), err)
		}
		if short := shortfall(amount, new(uint256.Int).Add(fromFloat, quoted)); short.Gt(bound) {
			return nil, nil, fmt.Errorf("%w: strategy quotes %s of %s at %d bps", ErrExcessiveLoss, FormatAmount(quoted), FormatAmount(rest), maxLoss)
		}
	}

	tx := &txn{log: s.log}
	if err := s.ledger.Burn(caller, shares); err != nil {
		return nil, nil, err
	}
	tx.onUndo("restore burned shares", func() error { return s.ledger.Mint(caller, shares) })
	available := new(uint256.Int).Set(fromFloat)
	if !units.IsZero() {
		released, err := s.withdraw(ctx, units)
		if err != nil {
			tx.rollback()
			return nil, nil, err
		}
		tx.onUndo("redeploy released asset", func() error { return s.deploy(ctx) })
		available.Add(available, released)
	}
	received := available
	if received.Gt(amount) {
		received = new(uint256.Int).Set(amount)
	}
	if short := shortfall(amount, received); short.Gt(bound) {
		tx.rollback()
		return nil, nil, fmt.Errorf("%w: released %s of %s at %d bps", ErrExcessiveLoss, FormatAmount(received), FormatAmount(amount), maxLoss)
	}
	if !received.IsZero() {
		if err := s.asset.PushTo(ctx, caller, received); err != nil {
			tx.rollback()
			return nil, nil, fmt.Errorf("pay redemption: %w", err)
		}
	}
	tx.commit()

	if received.Lt(amount) {
		s.metrics.LossesAbsorbed.Inc()
		s.log.Warn("redemption loss absorbed",
			zap.Stringer("caller", caller),
			amountField("requested", amount),
			amountField("received", received),
			zap.Uint16("max_loss_bps", maxLoss),
		)
	}
	s.publish(ctx, Event{
		Kind:       EventRedeem,
		Caller:     caller,
		Amount:     new(uint256.Int).Set(amount),
		Shares:     shares,
		Received:   received,
		MaxLossBps: maxLoss,
	})
	return received, shares, nil
}

// withdraw releases units to the vault account and returns the observed
// balance delta.
func (s *Service) withdraw(ctx context.Context, units *uint256.Int) (*uint256.Int, error) {
	before, err := s.asset.BalanceOf(ctx)
	if err != nil {
		return nil, fmt.Errorf("read float: %w", err)
	}
	if maxLoss := s.MaxLoss(); maxLoss == 0 {
		_, err = s.strategy.Withdraw(ctx, units, s.address)
	} else {
		_, err = s.strategy.WithdrawWithLoss(ctx, units, s.address, maxLoss)
	}
	if err != nil {
		return nil, fmt.Errorf("withdraw %s units: %w", FormatAmount(units), err)
	}
	after, err := s.asset.BalanceOf(ctx)
	if err != nil {
		return nil, fmt.Errorf("read float: %w", err)
	}
	if after.Lt(before) {
		return nil, fmt.Errorf("%w: float fell from %s to %s during withdrawal", ErrInsufficientFunds, FormatAmount(before), FormatAmount(after))
	}
	return new(uint256.Int).Sub(after, before), nil
}

// shortfall is how far received falls below requested, or zero.
func shortfall(requested, received *uint256.Int) *uint256.Int {
	if !received.Lt(requested) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(requested, received)
}

// Sponsor adds amount to the vault without minting shares, raising the
// value of every outstanding share.
func (s *Service) Sponsor(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	release, err := s.enter()
	if err != nil {
		return err
	}
	defer release()
	if err := s.sponsor(ctx, caller, amount); err != nil {
		s.failed("sponsor", err, zap.Stringer("caller", caller), amountField("amount", amount))
		return err
	}
	s.metrics.Sponsors.Inc()
	s.log.Info("sponsor", zap.Stringer("caller", caller), amountField("amount", amount))
	return nil
}

func (s *Service) sponsor(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: sponsor amount must be > 0", ErrInvalidParameter)
	}
	tx := &txn{log: s.log}
	if err := s.asset.PullFrom(ctx, caller, amount); err != nil {
		return fmt.Errorf("pull sponsorship: %w", err)
	}
	tx.onUndo("refund sponsorship", func() error { return s.asset.PushTo(ctx, caller, amount) })
	if err := s.deploy(ctx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	s.publish(ctx, Event{Kind: EventSponsor, Caller: caller, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// TotalAssetValue is the asset value of holder's shares at the current rate.
func (s *Service) TotalAssetValue(ctx context.Context, holder common.Address) (*uint256.Int, error) {
	release, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	pos, err := s.position(ctx)
	if err != nil {
		return nil, err
	}
	total, err := pos.TotalAssets()
	if err != nil {
		return nil, err
	}
	return SharesToAsset(s.ledger.BalanceOf(holder), pos.TotalSupply, total)
}

func (s *Service) SetMaxLoss(ctx context.Context, bps uint16) error {
	release, err := s.enter()
	if err != nil {
		return err
	}
	defer release()
	if bps > MaxBps {
		err := fmt.Errorf("%w: max loss %d bps above %d", ErrInvalidParameter, bps, MaxBps)
		s.failed("set max loss", err)
		return err
	}
	prev := s.MaxLoss()
	s.maxLoss.Store(uint32(bps))
	s.log.Info("max loss updated", zap.Uint16("from_bps", prev), zap.Uint16("to_bps", bps))
	s.publish(ctx, Event{Kind: EventMaxLoss, MaxLossBps: bps})
	return nil
}

func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	release, err := s.enter()
	if err != nil {
		return Snapshot{}, err
	}
	defer release()
	pos, err := s.position(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	deployed, err := pos.Deployed()
	if err != nil {
		return Snapshot{}, err
	}
	total, err := pos.TotalAssets()
	if err != nil {
		return Snapshot{}, err
	}
	scale, err := UnitScale(pos.UnitDecimals)
	if err != nil {
		return Snapshot{}, err
	}
	pps, err := SharesToAsset(scale, pos.TotalSupply, total)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Address:       s.address,
		Float:         pos.Float,
		Units:         pos.Units,
		PricePerUnit:  pos.PricePerUnit,
		UnitDecimals:  pos.UnitDecimals,
		Deployed:      deployed,
		TotalAssets:   total,
		TotalSupply:   pos.TotalSupply,
		PricePerShare: pps,
		MaxLossBps:    s.MaxLoss(),
		Holders:       len(s.ledger.Holders()),
	}, nil
}

func (s *Service) enter() (func(), error) {
	release, err := s.guard.enter()
	if err != nil {
		s.metrics.ReentrancyRejected.Inc()
		s.log.Warn("reentrant call rejected")
		return nil, err
	}
	return release, nil
}

func (s *Service) position(ctx context.Context) (Position, error) {
	float, err := s.asset.BalanceOf(ctx)
	if err != nil {
		return Position{}, fmt.Errorf("read float: %w", err)
	}
	units, err := s.strategy.UnitBalance(ctx)
	if err != nil {
		return Position{}, fmt.Errorf("read strategy units: %w", err)
	}
	price, err := s.strategy.PricePerUnit(ctx)
	if err != nil {
		return Position{}, fmt.Errorf("read strategy price: %w", err)
	}
	decimals, err := s.strategy.UnitDecimals(ctx)
	if err != nil {
		return Position{}, fmt.Errorf("read strategy decimals: %w", err)
	}
	return Position{
		Float:        float,
		Units:        units,
		PricePerUnit: price,
		UnitDecimals: decimals,
		TotalSupply:  s.ledger.TotalSupply(),
	}, nil
}

// deploy pushes the entire float into the strategy. Whatever the strategy
// refuses for capacity stays as float until the next deposit.
func (s *Service) deploy(ctx context.Context) error {
	units, err := s.strategy.DepositAvailable(ctx)
	if err != nil {
		return fmt.Errorf("deploy float: %w", err)
	}
	float, err := s.asset.BalanceOf(ctx)
	if err != nil {
		return fmt.Errorf("read float: %w", err)
	}
	if !float.IsZero() {
		s.log.Info("float left undeployed", amountField("float", float), amountField("units_issued", units))
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event Event) {
	s.seq++
	event.Seq = s.seq
	event.Time = s.now().UTC()
	if s.sink != nil {
		s.sink.Publish(ctx, event)
	}
}

func (s *Service) failed(op string, err error, fields ...zap.Field) {
	s.metrics.OperationsFailed.Inc()
	fields = append(fields, zap.String("op", op), zap.Error(err))
	s.log.Warn("vault operation failed", fields...)
}

func amountField(key string, z *uint256.Int) zap.Field {
	return zap.String(key, FormatAmount(z))
}
