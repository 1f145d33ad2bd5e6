// Package risk values one instrument in the account currency: pip value and margin per lot.
package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"brokerBot/internal/domain"
	"brokerBot/internal/gateway"
	"brokerBot/internal/ports"
)

const (
	DefaultContractSize = 100000.0
	forexPipSize        = 0.0001
	yenPipSize          = 0.01
)

// Gateway is what the model needs from the venue.
type Gateway interface {
	GetSymbolInformation(ctx context.Context, symbol string) (*domain.SymbolInfo, error)
	GetTickPrice(ctx context.Context, symbol string) (*domain.Tick, error)
	GetAllSymbols(ctx context.Context) ([]*domain.SymbolInfo, error)
	SubscribePrice(ctx context.Context, symbol string) error
	UnsubscribePrice(ctx context.Context, symbol string) error
	IsConnected() bool
	Events() *gateway.Events
}

// Valuation is the output of one recomputation.
type Valuation struct {
	PipSize      float64 // Price increment counted as one pip
	LotSize      float64 // Units per standard lot
	PipValue     float64 // Account currency per pip for one standard lot (FX), per point otherwise
	MarginPerLot float64 // Account currency required to hold one standard lot
	Conversion   float64 // Multiplier from profit currency to account currency
}

// Model recomputes the valuation of an instrument on every tick of that instrument or of the
// cross used to convert its profit currency.
type Model struct {
	gw              Gateway
	logger          ports.Logger
	accountCurrency string
	info            *domain.SymbolInfo
	cross           string // Empty when no conversion symbol is needed or none was found

	mu        sync.Mutex // Guards mainTick and crossTick
	mainTick  *domain.Tick
	crossTick *domain.Tick

	valuation   atomic.Pointer[Valuation]
	unsubscribe func()
}

// NewModel fetches the instrument specification and its latest tick, resolves the conversion
// cross if the profit currency differs from the account currency, and computes a first valuation.
func NewModel(ctx context.Context, gw Gateway, symbol, accountCurrency string, logger ports.Logger) (*Model, error) {
	info, err := gw.GetSymbolInformation(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("risk model for %s: %w", symbol, err)
	}
	tick, err := gw.GetTickPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("risk model for %s: %w", symbol, err)
	}

	m := &Model{
		gw:              gw,
		logger:          logger,
		accountCurrency: strings.ToUpper(accountCurrency),
		info:            info,
		mainTick:        tick,
	}

	if m.needsCross() {
		if err := m.resolveCross(ctx); err != nil {
			return nil, err
		}
	}

	m.recompute()
	m.unsubscribe = gw.Events().Tick.Subscribe(m.onTick)
	logger.Info(ctx, "Risk model ready", map[string]interface{}{
		"symbol":       symbol,
		"cross":        m.cross,
		"pipValue":     m.Valuation().PipValue,
		"marginPerLot": m.Valuation().MarginPerLot,
	})
	return m, nil
}

// needsCross reports whether converting the profit currency requires a second symbol.
// An FX pair quoted against the account currency converts through its own price.
func (m *Model) needsCross() bool {
	if strings.EqualFold(m.info.CurrencyProfit, m.accountCurrency) {
		return false
	}
	if m.info.IsForex() && strings.EqualFold(m.info.Currency, m.accountCurrency) {
		return false
	}
	return true
}

func (m *Model) resolveCross(ctx context.Context) error {
	symbols, err := m.gw.GetAllSymbols(ctx)
	if err != nil {
		return fmt.Errorf("risk model cross lookup: %w", err)
	}
	profit := strings.ToUpper(m.info.CurrencyProfit)
	for _, s := range symbols {
		name := strings.ToUpper(s.Symbol)
		if strings.HasPrefix(name, m.accountCurrency) && strings.HasSuffix(name, profit) && len(name) > len(m.accountCurrency) {
			if m.cross == "" || len(s.Symbol) < len(m.cross) {
				m.cross = s.Symbol
			}
		}
	}
	if m.cross == "" {
		m.logger.Warn(ctx, "No conversion symbol found, valuing in profit currency", map[string]interface{}{
			"account": m.accountCurrency,
			"profit":  profit,
		})
		return nil
	}

	tick, err := m.gw.GetTickPrice(ctx, m.cross)
	if err != nil {
		return fmt.Errorf("risk model cross %s: %w", m.cross, err)
	}
	m.crossTick = tick
	if err := m.gw.SubscribePrice(ctx, m.cross); err != nil {
		return fmt.Errorf("risk model cross %s: %w", m.cross, err)
	}
	return nil
}

// Symbol returns the instrument specification.
func (m *Model) Symbol() *domain.SymbolInfo {
	return m.info
}

// CrossSymbol returns the conversion symbol, or "" if none is used.
func (m *Model) CrossSymbol() string {
	return m.cross
}

// Valuation returns the latest valuation.
func (m *Model) Valuation() Valuation {
	if v := m.valuation.Load(); v != nil {
		return *v
	}
	return Valuation{}
}

func (m *Model) onTick(t *domain.Tick) {
	if t == nil {
		return
	}
	m.mu.Lock()
	switch {
	case t.Symbol == m.info.Symbol:
		m.mainTick = t
	case m.cross != "" && t.Symbol == m.cross:
		m.crossTick = t
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.recompute()
}

// recompute rebuilds the valuation from the latest ticks.
func (m *Model) recompute() {
	m.mu.Lock()
	main, cross := m.mainTick, m.crossTick
	m.mu.Unlock()

	v := Compute(m.info, m.accountCurrency, main, cross)
	m.valuation.Store(&v)
}

// Compute values info in accountCurrency given the latest main tick and an optional tick of the
// cross symbol (account currency as base, profit currency as quote).
func Compute(info *domain.SymbolInfo, accountCurrency string, main, cross *domain.Tick) Valuation {
	lotSize := info.ContractSize
	if lotSize <= 0 {
		lotSize = DefaultContractSize
	}
	conv := conversion(info, accountCurrency, main, cross)

	var mainPrice float64
	if main != nil {
		mainPrice = main.Bid
	}

	v := Valuation{LotSize: lotSize, Conversion: conv}
	if info.IsForex() {
		v.PipSize = forexPipSize
		if strings.EqualFold(info.CurrencyProfit, "JPY") {
			v.PipSize = yenPipSize
		}
		v.PipValue = v.PipSize * lotSize * conv
		if info.Leverage > 0 {
			v.MarginPerLot = lotSize * mainPrice * conv * info.Leverage / 100
		} else {
			v.MarginPerLot = v.PipValue * lotSize
		}
		return v
	}

	v.PipSize = info.TickSize
	v.PipValue = lotSize * conv
	if info.Leverage > 0 {
		v.MarginPerLot = v.PipValue * mainPrice / (100 / info.Leverage)
	} else {
		v.MarginPerLot = v.PipValue * mainPrice
	}
	return v
}

// conversion returns the factor turning an amount in the profit currency into the account
// currency. It falls back to 1 when no quote is available.
func conversion(info *domain.SymbolInfo, accountCurrency string, main, cross *domain.Tick) float64 {
	switch {
	case strings.EqualFold(info.CurrencyProfit, accountCurrency):
		return 1
	case info.IsForex() && strings.EqualFold(info.Currency, accountCurrency):
		if main != nil && main.Bid > 0 {
			return 1 / main.Bid
		}
	case cross != nil && cross.Bid > 0:
		return 1 / cross.Bid
	}
	return 1
}

// Close stops following ticks and cancels the cross subscription if the venue is still reachable.
func (m *Model) Close(ctx context.Context) {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if m.cross == "" || !m.gw.IsConnected() {
		return
	}
	if err := m.gw.UnsubscribePrice(ctx, m.cross); err != nil {
		m.logger.Warn(ctx, "Cross unsubscribe failed", map[string]interface{}{"cross": m.cross, "error": err.Error()})
	}
}
