package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
	"github.com/wonny/aegis-strategy/internal/pkg/market"
)

const (
	LoopInterval           = 10 * time.Second // 메인 루프 깨어나는 주기
	MarketClosedSleep      = 60 * time.Second // 장 외 시간 sleep
	ForceExitMinutesBefore = 15               // 장 마감 N분 전 강제 청산

	defaultInterval     = 5 * time.Minute
	defaultMaxPositions = 3
	defaultOrderQty     = 1
)

// Ledger is the subset of the position ledger the scheduler drives
type Ledger interface {
	Holds() []trade.Trade
	HoldsByStrategy(strategyName string) []trade.Trade
	LogBuy(ctx context.Context, strategyName, code string, price, qty int64) error
	LogSellByStrategy(ctx context.Context, strategyName, code string, price int64) error
}

// Config wires a scheduler Service
type Config struct {
	Ledger       Ledger
	Gateway      strategy.OrderGateway // may be nil in dry-run
	Quotes       strategy.QuoteFetcher
	Clock        market.Clock
	History      *History
	StatePath    string
	DryRun       bool
	LoopInterval time.Duration
	ClosedSleep  time.Duration
	OnSignal     func(strategy.SignalRecord) // called after every executed signal
}

// entry is one registered strategy. cfg and lastRun are guarded by Service.mu.
type entry struct {
	cfg     strategy.Config
	lastRun time.Time

	// serializes a strategy run with its forced liquidation
	runMu sync.Mutex
}

func (e *entry) name() string {
	return e.cfg.Strategy.Name()
}

// Service drives registered strategies on a cadence during market hours
type Service struct {
	ledger       Ledger
	gateway      strategy.OrderGateway
	quotes       strategy.QuoteFetcher
	clock        market.Clock
	history      *History
	statePath    string
	dryRun       bool
	loopInterval time.Duration
	closedSleep  time.Duration
	onSignal     func(strategy.SignalRecord)

	// State
	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
	running bool

	// Loop lifecycle
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a stopped scheduler
func NewService(cfg Config) *Service {
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = LoopInterval
	}
	if cfg.ClosedSleep <= 0 {
		cfg.ClosedSleep = MarketClosedSleep
	}
	if cfg.History == nil {
		cfg.History = NewHistory("", DefaultHistorySize)
	}

	return &Service{
		ledger:       cfg.Ledger,
		gateway:      cfg.Gateway,
		quotes:       cfg.Quotes,
		clock:        cfg.Clock,
		history:      cfg.History,
		statePath:    cfg.StatePath,
		dryRun:       cfg.DryRun,
		loopInterval: cfg.LoopInterval,
		closedSleep:  cfg.ClosedSleep,
		onSignal:     cfg.OnSignal,
		byName:       make(map[string]*entry),
	}
}

// Register adds a strategy. Fails with ErrDuplicateStrategy when the name is taken.
func (s *Service) Register(cfg strategy.Config) error {
	if cfg.Strategy == nil || cfg.Strategy.Name() == "" {
		return fmt.Errorf("%w: strategy with a name is required", strategy.ErrInvalidSignal)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = defaultMaxPositions
	}
	if cfg.OrderQty <= 0 {
		cfg.OrderQty = defaultOrderQty
	}

	name := cfg.Strategy.Name()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("%w: %s", strategy.ErrDuplicateStrategy, name)
	}

	e := &entry{cfg: cfg}
	s.entries = append(s.entries, e)
	s.byName[name] = e

	log.Info().
		Str("strategy", name).
		Dur("interval", cfg.Interval).
		Int("max_positions", cfg.MaxPositions).
		Bool("force_exit_on_close", cfg.ForceExitOnClose).
		Msg("Strategy registered")

	return nil
}

// Start enables every strategy and starts the wake loop
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn().Msg("Scheduler already running")
		return nil
	}
	for _, e := range s.entries {
		e.cfg.Enabled = true
	}
	n := len(s.entries)
	s.startLoopLocked(ctx)
	s.mu.Unlock()

	s.saveState()
	log.Info().Int("strategies", n).Msg("✅ Scheduler started (all strategies enabled)")
	return nil
}

// Stop halts the loop and disables every strategy.
// saveState=true is a pause for restart: the run-state is checkpointed and nothing is liquidated.
// saveState=false liquidates enabled force-exit strategies.
func (s *Service) Stop(ctx context.Context, saveState bool) error {
	s.mu.Lock()
	var checkpoint *RunState
	if saveState {
		checkpoint = s.runStateLocked()
	}

	var liquidate []*entry
	for _, e := range s.entries {
		if e.cfg.Enabled && e.cfg.ForceExitOnClose {
			liquidate = append(liquidate, e)
		}
		e.cfg.Enabled = false
	}
	s.mu.Unlock()

	s.stopLoop()

	if saveState {
		checkpoint.CurrentPositions = s.ledger.Holds()
		s.writeState(checkpoint)
		log.Info().Strs("enabled", checkpoint.EnabledStrategies).Msg("✅ Scheduler paused (state saved, no liquidation)")
		return nil
	}

	for _, e := range liquidate {
		s.forceLiquidate(ctx, e)
	}
	s.saveState()

	log.Info().Int("liquidated", len(liquidate)).Msg("✅ Scheduler stopped (all strategies disabled)")
	return nil
}

// StartStrategy enables one strategy, starting the loop if it is not running
func (s *Service) StartStrategy(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", strategy.ErrStrategyNotFound, name)
	}
	e.cfg.Enabled = true
	if !s.running {
		s.startLoopLocked(ctx)
		log.Info().Str("strategy", name).Msg("Scheduler loop auto-started")
	}
	s.mu.Unlock()

	s.saveState()
	log.Info().Str("strategy", name).Msg("Strategy enabled")
	return nil
}

// StopStrategy disables one strategy, liquidating it first when it was enabled with force_exit_on_close
func (s *Service) StopStrategy(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", strategy.ErrStrategyNotFound, name)
	}
	liquidate := e.cfg.Enabled && e.cfg.ForceExitOnClose
	e.cfg.Enabled = false
	s.mu.Unlock()

	if liquidate {
		s.forceLiquidate(ctx, e)
	}

	s.saveState()
	log.Info().Str("strategy", name).Bool("liquidated", liquidate).Msg("Strategy disabled")
	return nil
}

// IsRunning returns whether the wake loop is active
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// startLoopLocked launches the loop goroutine. The loop outlives the caller's cancellation
// (e.g. an HTTP request) and only ends through stopLoop.
func (s *Service) startLoopLocked(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.cancel = cancel
	s.done = done
	s.running = true

	go func() {
		defer close(done)
		s.loop(loopCtx)
	}()
}

// stopLoop cancels the loop and waits for it to return
func (s *Service) stopLoop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.running = false
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// StrategyStatus is the per-strategy projection of Status
type StrategyStatus struct {
	Name             string  `json:"name"`
	IntervalSeconds  int64   `json:"interval_seconds"`
	MaxPositions     int     `json:"max_positions"`
	OrderQty         int64   `json:"order_qty"`
	Enabled          bool    `json:"enabled"`
	ForceExitOnClose bool    `json:"force_exit_on_close"`
	CurrentHolds     int     `json:"current_holds"`
	LastRun          *string `json:"last_run"`
}

// Status is the read-only scheduler projection
type Status struct {
	Running    bool             `json:"running"`
	DryRun     bool             `json:"dry_run"`
	Strategies []StrategyStatus `json:"strategies"`
	// executed signals kept in memory
	HistorySize int `json:"history_size"`
}

// Status returns the current scheduler state
func (s *Service) Status() Status {
	s.mu.RLock()
	status := Status{
		Running:    s.running,
		DryRun:     s.dryRun,
		Strategies: make([]StrategyStatus, 0, len(s.entries)),
	}
	for _, e := range s.entries {
		st := StrategyStatus{
			Name:             e.name(),
			IntervalSeconds:  int64(e.cfg.Interval / time.Second),
			MaxPositions:     e.cfg.MaxPositions,
			OrderQty:         e.cfg.OrderQty,
			Enabled:          e.cfg.Enabled,
			ForceExitOnClose: e.cfg.ForceExitOnClose,
		}
		if !e.lastRun.IsZero() {
			last := e.lastRun.Format("15:04:05")
			st.LastRun = &last
		}
		status.Strategies = append(status.Strategies, st)
	}
	s.mu.RUnlock()

	status.HistorySize = s.history.Len()
	for i := range status.Strategies {
		status.Strategies[i].CurrentHolds = len(s.ledger.HoldsByStrategy(status.Strategies[i].Name))
	}
	return status
}

// SignalHistory returns executed signals newest first, optionally filtered by strategy
func (s *Service) SignalHistory(strategyName string) []strategy.SignalRecord {
	return s.history.Records(strategyName)
}
