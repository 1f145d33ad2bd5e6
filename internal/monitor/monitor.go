// Package monitor keeps running statistics over a strategy's closed positions and signals when
// they cross the configured limits.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"brokerBot/internal/analytics"
	"brokerBot/internal/domain"
	"brokerBot/internal/events"
	"brokerBot/internal/gateway"
	"brokerBot/internal/ports"
)

const journalTimeout = 5 * time.Second

// Gateway is what the monitor needs from the venue.
type Gateway interface {
	Balance() *domain.AccountBalance
	GetBalance(ctx context.Context) (*domain.AccountBalance, error)
	GetAllPositionsByComment(ctx context.Context, strategyID string) ([]*domain.Position, error)
	Events() *gateway.Events
}

// Config holds the circuit breaker limits.
type Config struct {
	StrategyID               string
	CircuitBreaker           bool    // Breaches are only evaluated when set
	ToleratedDrawdownPercent float64 // Percent of balance
	LossStreak               int     // Consecutive losing positions; zero disables the check
}

// BreachKind names the limit that was crossed.
type BreachKind string

const (
	BreachDrawdown     BreachKind = "DRAWDOWN"
	BreachLossStreak   BreachKind = "LOSS_STREAK"
	BreachProfitFactor BreachKind = "PROFIT_FACTOR"
)

// Breach describes a crossed limit and the statistics that crossed it.
type Breach struct {
	Kind       BreachKind
	StrategyID string
	Result     domain.Result
	Balance    float64
}

// Events are the breaches a Monitor publishes, one event per limit.
type Events struct {
	DrawdownBreached     events.Event[Breach]
	LossStreakBreached   events.Event[Breach]
	ProfitFactorBreached events.Event[Breach]
}

// Monitor accumulates the closed positions of one strategy.
//
// It only signals breaches; stopping the strategy is up to the subscriber.
type Monitor struct {
	gw      Gateway
	journal ports.PositionRepository // Optional
	logger  ports.Logger
	cfg     Config
	events  Events

	mu        sync.Mutex
	balance   domain.AccountBalance
	positions []*domain.Position // Ordered by close date
	result    domain.Result
	monthly   []domain.MonthlyResult

	unsubscribes []func()
}

// New snapshots the balance, backfills the strategy's closed positions and starts following
// position closes. Backfill merges the journal with the venue history, the venue winning for a
// position both know, so the journal supplies closes older than the venue keeps. journal may be
// nil. Every failure here is logged, never returned.
func New(ctx context.Context, gw Gateway, journal ports.PositionRepository, cfg Config, logger ports.Logger) *Monitor {
	m := &Monitor{gw: gw, journal: journal, logger: logger, cfg: cfg}

	if b := gw.Balance(); b != nil {
		m.balance = *b
	} else if b, err := gw.GetBalance(ctx); err == nil {
		m.balance = *b
	} else {
		logger.Warn(ctx, "Monitor balance snapshot failed", map[string]interface{}{"error": err.Error()})
	}

	history := m.backfill(ctx)
	m.positions = analytics.SortByCloseDate(history)
	m.result = analytics.CalculateResults(m.positions)
	m.monthly = analytics.MonthlyResults(m.positions)

	ev := gw.Events()
	m.unsubscribes = append(m.unsubscribes,
		ev.PositionClosed.Subscribe(m.onClosed),
		ev.NewBalance.Subscribe(m.onBalance),
	)

	logger.Info(ctx, "Monitor ready", map[string]interface{}{
		"strategy":  cfg.StrategyID,
		"positions": m.result.TotalPositions,
		"profit":    m.result.Profit,
		"months":    len(m.monthly),
	})
	return m
}

func (m *Monitor) backfill(ctx context.Context) []*domain.Position {
	var journaled []*domain.Position
	if m.journal != nil {
		var err error
		journaled, err = m.journal.FindClosedByStrategy(ctx, m.cfg.StrategyID)
		if err != nil {
			m.logger.Error(ctx, err, "Journal backfill failed", map[string]interface{}{"strategy": m.cfg.StrategyID})
			journaled = nil
		}
	}

	venue, err := m.gw.GetAllPositionsByComment(ctx, m.cfg.StrategyID)
	if err != nil {
		m.logger.Warn(ctx, "Venue history unavailable", map[string]interface{}{"strategy": m.cfg.StrategyID, "error": err.Error()})
		venue = nil
	}
	for _, p := range venue {
		m.journalSave(ctx, p)
	}

	merged := mergeByID(journaled, venue)
	m.logger.Info(ctx, "Backfilled closed positions", map[string]interface{}{
		"strategy": m.cfg.StrategyID,
		"journal":  len(journaled),
		"venue":    len(venue),
		"merged":   len(merged),
	})
	return merged
}

// mergeByID returns the union of both lists; an entry of override replaces a base entry with the
// same ID. Entries without an ID are always kept.
func mergeByID(base, override []*domain.Position) []*domain.Position {
	index := make(map[string]int, len(base)+len(override))
	out := make([]*domain.Position, 0, len(base)+len(override))
	for _, list := range [][]*domain.Position{base, override} {
		for _, p := range list {
			if p == nil {
				continue
			}
			if i, ok := index[p.ID]; ok && p.ID != "" {
				out[i] = p
				continue
			}
			if p.ID != "" {
				index[p.ID] = len(out)
			}
			out = append(out, p)
		}
	}
	return out
}

// Events returns the breach notifications.
func (m *Monitor) Events() *Events {
	return &m.events
}

// Close stops following gateway events.
func (m *Monitor) Close() {
	for _, unsub := range m.unsubscribes {
		unsub()
	}
	m.unsubscribes = nil
}

// Result returns the statistics over every closed position.
func (m *Monitor) Result() domain.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

// MonthlyResults returns one Result per calendar month, oldest first.
func (m *Monitor) MonthlyResults() []domain.MonthlyResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.MonthlyResult, len(m.monthly))
	copy(out, m.monthly)
	return out
}

func (m *Monitor) onBalance(b *domain.AccountBalance) {
	if b == nil {
		return
	}
	m.mu.Lock()
	m.balance = *b
	m.mu.Unlock()
}

func (m *Monitor) onClosed(p *domain.Position) {
	if p == nil || p.StrategyID != m.cfg.StrategyID {
		return
	}
	pos := p.Clone()

	m.mu.Lock()
	m.positions = append(m.positions, pos)
	m.result = analytics.CalculateResults(m.positions)
	m.updateMonth(pos.DateClose)
	result, balance := m.result, m.balance.Balance
	streak := m.lossStreakLocked()
	m.mu.Unlock()

	ctx := context.Background()
	m.journalSave(ctx, pos)
	m.logger.Info(ctx, "Results updated", map[string]interface{}{
		"strategy":     m.cfg.StrategyID,
		"profit":       result.Profit,
		"positions":    result.TotalPositions,
		"drawdown":     result.Drawdown,
		"profitFactor": result.ProfitFactor,
	})

	if m.cfg.CircuitBreaker {
		m.evaluate(ctx, result, balance, streak)
	}
}

// updateMonth recomputes the bucket of the month t falls in, creating it if needed.
func (m *Monitor) updateMonth(t time.Time) {
	year, month := t.Year(), int(t.Month())
	var inMonth []*domain.Position
	for _, p := range m.positions {
		if p.DateClose.Year() == year && int(p.DateClose.Month()) == month {
			inMonth = append(inMonth, p)
		}
	}
	bucket := domain.MonthlyResult{Year: year, Month: month, Result: analytics.CalculateResults(inMonth)}

	for i, mr := range m.monthly {
		if mr.Year == year && mr.Month == month {
			m.monthly[i] = bucket
			return
		}
		if mr.Year > year || (mr.Year == year && mr.Month > month) {
			m.monthly = append(m.monthly[:i], append([]domain.MonthlyResult{bucket}, m.monthly[i:]...)...)
			return
		}
	}
	m.monthly = append(m.monthly, bucket)
}

// lossStreakLocked reports whether the last LossStreak positions all lost money.
func (m *Monitor) lossStreakLocked() bool {
	n := m.cfg.LossStreak
	if n <= 0 || len(m.positions) < n {
		return false
	}
	for _, p := range m.positions[len(m.positions)-n:] {
		if p.Profit >= 0 {
			return false
		}
	}
	return true
}

// evaluate checks drawdown, loss streak and profit factor, in that order. Each check fires its
// own event.
func (m *Monitor) evaluate(ctx context.Context, r domain.Result, balance float64, lossStreak bool) {
	breach := func(kind BreachKind) Breach {
		return Breach{Kind: kind, StrategyID: m.cfg.StrategyID, Result: r, Balance: balance}
	}

	if r.Drawdown > 0 && r.Drawdown >= m.cfg.ToleratedDrawdownPercent/100*balance {
		m.logger.Warn(ctx, "Drawdown limit reached", map[string]interface{}{"strategy": m.cfg.StrategyID, "drawdown": r.Drawdown, "balance": balance})
		m.events.DrawdownBreached.Publish(breach(BreachDrawdown))
	}
	if lossStreak {
		m.logger.Warn(ctx, "Loss streak limit reached", map[string]interface{}{"strategy": m.cfg.StrategyID, "streak": m.cfg.LossStreak})
		m.events.LossStreakBreached.Publish(breach(BreachLossStreak))
	}
	if r.ProfitFactor > 0 && r.ProfitFactor <= 1 {
		m.logger.Warn(ctx, "Profit factor limit reached", map[string]interface{}{"strategy": m.cfg.StrategyID, "profitFactor": r.ProfitFactor})
		m.events.ProfitFactorBreached.Publish(breach(BreachProfitFactor))
	}
}

// journalSave persists a closed position. Failures are logged and swallowed.
func (m *Monitor) journalSave(ctx context.Context, p *domain.Position) {
	if m.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()
	if err := m.journal.SaveClosed(ctx, p); err != nil {
		m.logger.Warn(ctx, "Journal write failed", map[string]interface{}{"id": p.ID, "error": err.Error()})
	}
}

func (b Breach) String() string {
	return fmt.Sprintf("%s breached for %s (profit %.2f, drawdown %.2f, profit factor %.2f)",
		b.Kind, b.StrategyID, b.Result.Profit, b.Result.Drawdown, b.Result.ProfitFactor)
}
