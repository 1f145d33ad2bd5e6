// Package ledger tracks the position of one strategy on one instrument and turns trading
// intentions into venue commands.
package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"brokerBot/internal/domain"
	"brokerBot/internal/gateway"
	"brokerBot/internal/ports"
	"brokerBot/internal/risk"
)

const volumePrecision = 2

// Gateway is what the ledger needs from the venue.
type Gateway interface {
	GetSymbolInformation(ctx context.Context, symbol string) (*domain.SymbolInfo, error)
	GetTickPrice(ctx context.Context, symbol string) (*domain.Tick, error)
	GetBalance(ctx context.Context) (*domain.AccountBalance, error)
	GetOpenedPositionByComment(ctx context.Context, strategyID string) (*domain.Position, error)
	SubscribePrice(ctx context.Context, symbol string) error
	RestorePosition(pos *domain.Position) error
	OpenPosition(ctx context.Context, pos *domain.Position) error
	UpdatePosition(ctx context.Context, pos *domain.Position) error
	ClosePosition(ctx context.Context, pos *domain.Position) error
	Balance() *domain.AccountBalance
	Events() *gateway.Events
}

// Valuer provides pip value and margin figures for the ledger's instrument.
type Valuer interface {
	Valuation() risk.Valuation
}

// Config holds the per-strategy settings of a Ledger.
type Config struct {
	StrategyID            string
	Symbol                string
	DefaultStopLossPips   float64
	DefaultTakeProfitPips float64
	RiskPercent           float64 // Used when an OpenRequest leaves RiskPercent at zero
}

// OpenRequest describes a position to open. Zero StopLoss, TakeProfit or Volume are resolved by
// the ledger.
type OpenRequest struct {
	Symbol      string // Defaults to the ledger's symbol; any other value is rejected
	Side        domain.OrderSide
	Volume      float64
	StopLoss    float64
	TakeProfit  float64
	RiskPercent float64
	Expiration  time.Time
}

// Ledger is the per-strategy view over the gateway.
//
// It tracks at most one pending and one open position. State is updated from gateway events on the
// streaming goroutine and read from strategy goroutines, under mu. mu is never held while calling
// the gateway.
type Ledger struct {
	gw     Gateway
	valuer Valuer
	logger ports.Logger
	cfg    Config
	info   *domain.SymbolInfo

	mu      sync.Mutex
	tick    domain.Tick
	balance domain.AccountBalance
	maxLot  float64
	pending *domain.Position
	current *domain.Position

	opening      atomic.Bool // Single-flight guard for Open
	unsubscribes []func()
}

// New fetches the instrument and its latest tick, subscribes to the gateway's events and restores
// a position left open by a previous run of the same strategy.
func New(ctx context.Context, gw Gateway, valuer Valuer, cfg Config, logger ports.Logger) (*Ledger, error) {
	if cfg.StrategyID == "" || cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: ledger needs a strategy id and a symbol", ports.ErrInvalidRequest)
	}
	info, err := gw.GetSymbolInformation(ctx, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", cfg.StrategyID, err)
	}
	tick, err := gw.GetTickPrice(ctx, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", cfg.StrategyID, err)
	}

	l := &Ledger{gw: gw, valuer: valuer, logger: logger, cfg: cfg, info: info, tick: *tick}

	balance := gw.Balance()
	if balance == nil {
		if balance, err = gw.GetBalance(ctx); err != nil {
			return nil, fmt.Errorf("ledger %s: %w", cfg.StrategyID, err)
		}
	}
	l.setBalance(*balance)

	ev := gw.Events()
	l.unsubscribes = append(l.unsubscribes,
		ev.Tick.Subscribe(l.onTick),
		ev.PositionOpened.Subscribe(l.onOpened),
		ev.PositionUpdated.Subscribe(l.onUpdated),
		ev.PositionRejected.Subscribe(l.onRejected),
		ev.PositionRefused.Subscribe(l.onRefused),
		ev.PositionClosed.Subscribe(l.onClosed),
		ev.NewBalance.Subscribe(l.onBalance),
	)

	if err := gw.SubscribePrice(ctx, cfg.Symbol); err != nil {
		l.Shutdown()
		return nil, fmt.Errorf("ledger %s: %w", cfg.StrategyID, err)
	}

	l.restore(ctx)
	return l, nil
}

// restore picks up a position that is still open at the venue under this strategy's reference.
func (l *Ledger) restore(ctx context.Context) {
	pos, err := l.gw.GetOpenedPositionByComment(ctx, l.cfg.StrategyID)
	if err != nil {
		l.logger.Warn(ctx, "Position restore failed", map[string]interface{}{"strategy": l.cfg.StrategyID, "error": err.Error()})
		return
	}
	if pos == nil {
		return
	}
	pos = pos.Clone()
	pos.Opened = true
	if pos.Status == "" || pos.Status == domain.StatusPending {
		pos.Status = domain.StatusOpen
	}
	if err := l.gw.RestorePosition(pos); err != nil {
		l.logger.Warn(ctx, "Position restore failed", map[string]interface{}{"strategy": l.cfg.StrategyID, "error": err.Error()})
		return
	}
	l.mu.Lock()
	l.current = pos
	l.mu.Unlock()
	l.logger.Info(ctx, "Restored open position", map[string]interface{}{"id": pos.ID, "order": pos.Order, "strategy": l.cfg.StrategyID})
}

// Shutdown stops following gateway events.
func (l *Ledger) Shutdown() {
	for _, unsub := range l.unsubscribes {
		unsub()
	}
	l.unsubscribes = nil
}

// Symbol returns the instrument specification.
func (l *Ledger) Symbol() *domain.SymbolInfo {
	return l.info
}

// PositionInProgress reports whether a pending or an open position is tracked.
func (l *Ledger) PositionInProgress() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending != nil || l.current != nil
}

// Pending returns a copy of the pending position, or nil.
func (l *Ledger) Pending() *domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending.Clone()
}

// Current returns a copy of the open position, or nil.
func (l *Ledger) Current() *domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.Clone()
}

// LastTick returns the latest tick of the instrument.
func (l *Ledger) LastTick() domain.Tick {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tick
}

// MaxLot returns the largest volume the balance can margin.
func (l *Ledger) MaxLot() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxLot
}

// Open resolves the missing parts of req and submits a new position.
//
// Only one Open may be in flight, and none while a position is pending or open: both cases
// return ErrPositionInProgress. A failed submission clears the pending position and is not
// retried.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) error {
	if req.Symbol != "" && req.Symbol != l.cfg.Symbol {
		return fmt.Errorf("%w: ledger trades %s, not %s", ports.ErrInvalidRequest, l.cfg.Symbol, req.Symbol)
	}
	if err := req.Side.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrUnsupportedSide, err)
	}
	if !l.opening.CompareAndSwap(false, true) {
		return ports.ErrPositionInProgress
	}
	defer l.opening.Store(false)

	l.mu.Lock()
	if l.pending != nil || l.current != nil {
		l.mu.Unlock()
		return ports.ErrPositionInProgress
	}
	tick, balance := l.tick, l.balance
	maxLot := l.maxLot
	l.mu.Unlock()

	price := tick.PriceFor(req.Side)
	if price <= 0 {
		return fmt.Errorf("open %s: %w", l.cfg.Symbol, ports.ErrNoMarketData)
	}

	sl := domain.Round(req.StopLoss, l.info.Precision)
	if req.StopLoss == 0 {
		sl = l.CalculateStopLoss(l.cfg.DefaultStopLossPips, req.Side, price)
	}
	tp := domain.Round(req.TakeProfit, l.info.Precision)
	if req.TakeProfit == 0 {
		tp = l.CalculateTakeProfit(l.cfg.DefaultTakeProfitPips, req.Side, price)
	}

	volume := domain.Round(req.Volume, volumePrecision)
	if req.Volume == 0 {
		riskPercent := req.RiskPercent
		if riskPercent == 0 {
			riskPercent = l.cfg.RiskPercent
		}
		volume = l.sizePosition(price, sl, riskPercent, balance, maxLot)
	}

	pos := domain.NewPosition(l.cfg.StrategyID, l.cfg.Symbol, req.Side, volume)
	pos.OpenPrice = price
	pos.CurrentPrice = price
	pos.StopLoss = sl
	pos.TakeProfit = tp
	pos.Expiration = req.Expiration

	l.mu.Lock()
	l.pending = pos
	l.mu.Unlock()

	if err := l.gw.OpenPosition(ctx, pos.Clone()); err != nil {
		l.mu.Lock()
		if l.pending == pos {
			l.pending = nil
		}
		l.mu.Unlock()
		l.logger.Error(ctx, err, "Open failed", map[string]interface{}{"strategy": l.cfg.StrategyID, "id": pos.ID})
		return err
	}
	l.logger.Info(ctx, "Position submitted", map[string]interface{}{
		"strategy": l.cfg.StrategyID,
		"id":       pos.ID,
		"side":     string(pos.Side),
		"volume":   pos.Volume,
		"price":    price,
		"sl":       sl,
		"tp":       tp,
	})
	return nil
}

// Update moves the stop loss and take profit of the open position. Zero keeps the current level.
// It is a no-op once the position is closing or closed.
func (l *Ledger) Update(ctx context.Context, stopLoss, takeProfit float64) error {
	l.mu.Lock()
	pos := l.current
	if pos == nil {
		l.mu.Unlock()
		return fmt.Errorf("update: %w: no open position", ports.ErrNotFound)
	}
	if pos.Status == domain.StatusClose {
		l.mu.Unlock()
		return nil
	}
	req := pos.Clone()
	if stopLoss != 0 {
		req.StopLoss = domain.Round(stopLoss, l.info.Precision)
	}
	if takeProfit != 0 {
		req.TakeProfit = domain.Round(takeProfit, l.info.Precision)
	}
	req.CurrentPrice = l.tick.ExitPriceFor(pos.Side)
	l.mu.Unlock()

	if err := l.gw.UpdatePosition(ctx, req); err != nil {
		l.logger.Error(ctx, err, "Update failed", map[string]interface{}{"strategy": l.cfg.StrategyID, "id": req.ID})
		return err
	}
	return nil
}

// Close closes the open position at market. It is a no-op if a close is already under way.
// If the venue refuses, the position is put back to Open.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	pos := l.current
	if pos == nil {
		l.mu.Unlock()
		return fmt.Errorf("close: %w: no open position", ports.ErrNotFound)
	}
	if pos.Status == domain.StatusClose {
		l.mu.Unlock()
		return nil
	}
	pos.ClosePrice = l.tick.ExitPriceFor(pos.Side)
	pos.CurrentPrice = pos.ClosePrice
	pos.Status = domain.StatusClose
	req := pos.Clone()
	l.mu.Unlock()

	if err := l.gw.ClosePosition(ctx, req); err != nil {
		l.mu.Lock()
		if l.current == pos && pos.Status == domain.StatusClose {
			pos.Status = domain.StatusOpen
		}
		l.mu.Unlock()
		l.logger.Error(ctx, err, "Close failed", map[string]interface{}{"strategy": l.cfg.StrategyID, "id": req.ID})
		return err
	}
	return nil
}

// CalculateStopLoss returns the stop loss level pips away from price on the losing side.
func (l *Ledger) CalculateStopLoss(pips float64, side domain.OrderSide, price float64) float64 {
	d := l.pipDistance(pips)
	if side == domain.Sell {
		return domain.Round(price+d, l.info.Precision)
	}
	return domain.Round(price-d, l.info.Precision)
}

// CalculateTakeProfit returns the take profit level pips away from price on the winning side.
func (l *Ledger) CalculateTakeProfit(pips float64, side domain.OrderSide, price float64) float64 {
	d := l.pipDistance(pips)
	if side == domain.Sell {
		return domain.Round(price-d, l.info.Precision)
	}
	return domain.Round(price+d, l.info.Precision)
}

// pipDistance converts a pip count into a price distance. Currency pairs quoted with more than one
// decimal count pips in ticks; every other instrument counts them in price units.
func (l *Ledger) pipDistance(pips float64) float64 {
	if l.info.IsForex() && l.info.Precision > 1 {
		return pips * l.info.TickSize
	}
	return pips
}

// CalculatePositionSize sizes a position so that hitting stop loses riskPercent of equity, within
// what the margin allows and the instrument's lot limits.
func (l *Ledger) CalculatePositionSize(entry, stop, riskPercent float64) float64 {
	l.mu.Lock()
	balance, maxLot := l.balance, l.maxLot
	l.mu.Unlock()
	return l.sizePosition(entry, stop, riskPercent, balance, maxLot)
}

func (l *Ledger) sizePosition(entry, stop, riskPercent float64, balance domain.AccountBalance, maxLot float64) float64 {
	v := l.valuer.Valuation()
	riskMoney := riskPercent / 100 * balance.Equity
	distance := math.Abs(entry - stop)

	byMargin := math.Inf(1)
	if v.MarginPerLot > 0 {
		byMargin = balance.Equity / v.MarginPerLot
	}

	var size float64
	if l.info.IsForex() {
		byRisk := math.Inf(1)
		if l.info.TickSize > 0 && v.PipValue > 0 && distance > 0 {
			pipsRisk := distance / l.info.TickSize
			byRisk = riskMoney / (pipsRisk * v.PipValue)
		}
		size = math.Min(byRisk, byMargin) - 0.01
	} else {
		byRisk := math.Inf(1)
		if lossPerStop := v.PipValue * distance; lossPerStop > 0 {
			byRisk = riskMoney / lossPerStop
		}
		size = math.Min(byRisk, byMargin)
	}

	if math.IsInf(size, 0) || math.IsNaN(size) {
		size = l.info.LotMin
	}
	if maxLot > 0 {
		size = math.Max(l.info.LotMin, math.Min(size, maxLot))
	} else {
		size = math.Max(l.info.LotMin, size)
	}
	return domain.Round(size, volumePrecision)
}

func (l *Ledger) setBalance(b domain.AccountBalance) {
	v := l.valuer.Valuation()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = b
	if v.MarginPerLot > 0 {
		l.maxLot = b.Balance / v.MarginPerLot
	} else {
		l.maxLot = 0
	}
}

func (l *Ledger) onBalance(b *domain.AccountBalance) {
	if b != nil {
		l.setBalance(*b)
	}
}

func (l *Ledger) onTick(t *domain.Tick) {
	if t == nil || t.Symbol != l.cfg.Symbol {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tick = *t
	if l.current != nil {
		l.current.CurrentPrice = t.ExitPriceFor(l.current.Side)
	}
}

func (l *Ledger) onOpened(p *domain.Position) {
	l.mu.Lock()
	if l.pending == nil || p.ID != l.pending.ID {
		l.mu.Unlock()
		return
	}
	pos := l.pending
	pos.Order = p.Order
	pos.OpenPrice = p.OpenPrice
	pos.DateOpen = p.DateOpen
	pos.StopLoss = p.StopLoss
	pos.TakeProfit = p.TakeProfit
	pos.Opened = true
	pos.Status = domain.StatusOpen
	l.current = pos
	l.pending = nil
	l.mu.Unlock()

	l.logger.Info(context.Background(), "Position open", map[string]interface{}{"strategy": l.cfg.StrategyID, "id": pos.ID, "order": pos.Order})
}

func (l *Ledger) onUpdated(p *domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil || p.ID != l.current.ID {
		return
	}
	l.current.Profit = p.Profit
	l.current.StopLoss = p.StopLoss
	l.current.TakeProfit = p.TakeProfit
	if p.CurrentPrice != 0 {
		l.current.CurrentPrice = p.CurrentPrice
	}
	// A close in progress keeps its status until the venue confirms or refuses it.
	if l.current.Status != domain.StatusClose {
		l.current.Status = domain.StatusUpdated
	}
}

func (l *Ledger) onRejected(p *domain.Position) {
	l.mu.Lock()
	if l.pending == nil || p.ID != l.pending.ID {
		l.mu.Unlock()
		return
	}
	l.pending = nil
	l.mu.Unlock()
	l.logger.Warn(context.Background(), "Position rejected", map[string]interface{}{"strategy": l.cfg.StrategyID, "id": p.ID})
}

// onRefused puts a close the venue turned down back to the venue's view of the position.
func (l *Ledger) onRefused(p *domain.Position) {
	l.mu.Lock()
	if l.current == nil || p.ID != l.current.ID {
		l.mu.Unlock()
		return
	}
	rolledBack := l.current.Status == domain.StatusClose
	if rolledBack {
		l.current.Status = p.Status
	}
	l.mu.Unlock()
	l.logger.Warn(context.Background(), "Position request refused", map[string]interface{}{"strategy": l.cfg.StrategyID, "id": p.ID, "closeRolledBack": rolledBack})
}

func (l *Ledger) onClosed(p *domain.Position) {
	l.mu.Lock()
	var pos *domain.Position
	switch {
	case l.current != nil && p.ID == l.current.ID:
		pos = l.current
		l.current = nil
	case l.pending != nil && p.ID == l.pending.ID:
		pos = l.pending
		l.pending = nil
	default:
		l.mu.Unlock()
		return
	}
	pos.Profit = p.Profit
	pos.StopLoss = p.StopLoss
	pos.TakeProfit = p.TakeProfit
	pos.ClosePrice = p.ClosePrice
	pos.DateClose = p.DateClose
	pos.ReasonClosed = p.ReasonClosed
	pos.Opened = false
	pos.Status = domain.StatusClose
	l.mu.Unlock()

	l.logger.Info(context.Background(), "Position closed", map[string]interface{}{
		"strategy": l.cfg.StrategyID,
		"id":       pos.ID,
		"profit":   pos.Profit,
		"reason":   string(pos.ReasonClosed),
	})
}
