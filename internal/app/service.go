package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"brokerBot/config"
	"brokerBot/internal/ledger"
	"brokerBot/internal/monitor"
	"brokerBot/internal/ports"
	"brokerBot/internal/risk"
)

const shutdownTimeout = 15 * time.Second

// ErrTradingHalted is returned by Start when trading stopped for a reason other than a shutdown
// request: a circuit breaker fired or the venue connection dropped.
var ErrTradingHalted = errors.New("trading halted")

// Venue is the logged-in venue session the service runs on.
type Venue interface {
	risk.Gateway
	ledger.Gateway
	monitor.Gateway
	Login(ctx context.Context) error
	Close(ctx context.Context) error
}

// TradingService orchestrates the trading runtime of one strategy.
type TradingService struct {
	cfg     *config.Config
	logger  ports.Logger
	venue   Venue
	journal ports.PositionRepository // Optional

	// Components, set by Start
	mu      sync.Mutex
	model   *risk.Model
	ledger  *ledger.Ledger
	monitor *monitor.Monitor
}

// NewTradingService creates a new application service instance.
func NewTradingService(cfg *config.Config, logger ports.Logger, venue Venue, journal ports.PositionRepository) (*TradingService, error) {
	// Validate dependencies
	if cfg == nil || logger == nil || venue == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.StrategyID == "" || cfg.Symbol == "" {
		return nil, fmt.Errorf("configuration StrategyID and Symbol must be set")
	}
	return &TradingService{cfg: cfg, logger: logger, venue: venue, journal: journal}, nil
}

// Ledger returns the strategy's ledger once Start has built it, or nil.
func (s *TradingService) Ledger() *ledger.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger
}

// Monitor returns the strategy's risk monitor once Start has built it, or nil.
func (s *TradingService) Monitor() *monitor.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor
}

// Start logs in, builds the strategy's components and runs until ctx is cancelled, a signal
// arrives, a circuit breaker fires or the venue disconnects. On the way out the open position is
// closed and the venue session is released.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{"strategy": s.cfg.StrategyID, "symbol": s.cfg.Symbol})

	// Create a context that can be canceled by signals, breaches and disconnects
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel(nil)
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	// 1. Login; a failed login aborts startup
	if err := s.venue.Login(ctx); err != nil {
		s.logger.Error(ctx, err, "Login failed")
		return fmt.Errorf("failed to log in: %w", err)
	}
	s.logger.Info(ctx, "Logged in to the venue")

	unsubDisconnect := s.venue.Events().Disconnected.Subscribe(func(channel string) {
		s.logger.Warn(context.Background(), "Venue connection lost", map[string]interface{}{"channel": channel})
		cancel(fmt.Errorf("%w: %s channel disconnected", ErrTradingHalted, channel))
	})
	defer unsubDisconnect()

	// 2. Build the components
	if err := s.build(ctx); err != nil {
		unsubDisconnect()
		s.shutdown()
		return err
	}

	// 3. Stop trading on any breach; the monitor only signals
	onBreach := func(b monitor.Breach) {
		s.logger.Warn(context.Background(), "Circuit breaker fired", map[string]interface{}{"breach": b.String()})
		cancel(fmt.Errorf("%w: %s", ErrTradingHalted, b))
	}
	mev := s.Monitor().Events()
	defer mev.DrawdownBreached.Subscribe(onBreach)()
	defer mev.LossStreakBreached.Subscribe(onBreach)()
	defer mev.ProfitFactorBreached.Subscribe(onBreach)()

	s.logger.Info(ctx, "Trading Service running")

	// --- Main Loop ---
	// The work happens in event handlers on the streaming goroutine; wait for a stop.
	<-ctx.Done()
	cause := context.Cause(ctx)
	unsubDisconnect()
	s.shutdown()

	if errors.Is(cause, ErrTradingHalted) {
		s.logger.Error(context.Background(), cause, "Trading Service stopped")
		return cause
	}
	s.logger.Info(context.Background(), "Trading Service stopped.")
	return nil
}

func (s *TradingService) build(ctx context.Context) error {
	model, err := risk.NewModel(ctx, s.venue, s.cfg.Symbol, s.cfg.AccountCurrency, s.logger)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to initialize risk model")
		return fmt.Errorf("failed to initialize risk model: %w", err)
	}
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()

	led, err := ledger.New(ctx, s.venue, model, ledger.Config{
		StrategyID:            s.cfg.StrategyID,
		Symbol:                s.cfg.Symbol,
		DefaultStopLossPips:   s.cfg.DefaultStopLossPips,
		DefaultTakeProfitPips: s.cfg.DefaultTakeProfitPips,
		RiskPercent:           s.cfg.RiskPercent,
	}, s.logger)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to initialize position ledger")
		return fmt.Errorf("failed to initialize position ledger: %w", err)
	}

	mon := monitor.New(ctx, s.venue, s.journal, monitor.Config{
		StrategyID:               s.cfg.StrategyID,
		CircuitBreaker:           s.cfg.CircuitBreaker,
		ToleratedDrawdownPercent: s.cfg.ToleratedDrawdownPercent,
		LossStreak:               s.cfg.LossStreak,
	}, s.logger)

	s.mu.Lock()
	s.ledger = led
	s.monitor = mon
	s.mu.Unlock()
	return nil
}

// shutdown closes the open position, detaches the components and closes the venue session.
// Every step is best effort.
func (s *TradingService) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "Initiating shutdown...")

	s.mu.Lock()
	model, led, mon := s.model, s.ledger, s.monitor
	s.mu.Unlock()

	if led != nil {
		if pos := led.Current(); pos != nil {
			s.logger.Info(ctx, "Closing open position", map[string]interface{}{"id": pos.ID, "order": pos.Order})
			if err := led.Close(ctx); err != nil {
				s.logger.Error(ctx, err, "Failed to close open position on shutdown", map[string]interface{}{"id": pos.ID})
			}
		}
		led.Shutdown()
	}
	if mon != nil {
		r := mon.Result()
		s.logger.Info(ctx, "Final results", map[string]interface{}{
			"positions":    r.TotalPositions,
			"profit":       r.Profit,
			"winRate":      r.WinRate,
			"profitFactor": r.ProfitFactor,
			"drawdownMax":  r.DrawdownMax,
		})
		mon.Close()
	}
	if model != nil {
		model.Close(ctx)
	}
	if err := s.venue.Close(ctx); err != nil {
		s.logger.Error(ctx, err, "Error closing venue session")
	}
}
