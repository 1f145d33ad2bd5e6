package gateway

import (
	"context"
	"fmt"
	"time"

	"brokerBot/internal/domain"
	"brokerBot/internal/ports"
)

func validatePosition(pos *domain.Position) error {
	if pos == nil || pos.ID == "" || pos.Symbol == "" {
		return fmt.Errorf("%w: position needs an id and a symbol", ports.ErrInvalidRequest)
	}
	if err := pos.Side.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrUnsupportedSide, err)
	}
	if pos.Volume <= 0 {
		return fmt.Errorf("%w: volume must be positive, got %v", ports.ErrInvalidRequest, pos.Volume)
	}
	return nil
}

// OpenPosition registers pos in the cache and submits it at pos.OpenPrice.
//
// The cache entry exists before the command is sent, because the venue may push the fill before
// it answers. If the submission fails the entry is removed again.
func (g *Gateway) OpenPosition(ctx context.Context, pos *domain.Position) error {
	if err := validatePosition(pos); err != nil {
		return err
	}
	if err := g.call(func() { g.book.Add(pos) }); err != nil {
		return err
	}

	order, err := g.transaction(ctx, g.builder.OpenTrade(pos, pos.OpenPrice))
	if err != nil {
		_ = g.call(func() { g.book.Remove(pos.ID) })
		g.logger.Error(ctx, err, "Open position failed", positionFields(pos))
		return fmt.Errorf("open position failed: %w", err)
	}
	g.logger.Info(ctx, "Open position submitted", positionFields(pos, map[string]interface{}{"order": order}))
	return nil
}

// UpdatePosition submits new stop loss and take profit levels for pos.
func (g *Gateway) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	if err := validatePosition(pos); err != nil {
		return err
	}
	if _, err := g.transaction(ctx, g.builder.UpdateTrade(pos, pos.CurrentPrice)); err != nil {
		g.logger.Error(ctx, err, "Update position failed", positionFields(pos))
		return fmt.Errorf("update position failed: %w", err)
	}
	return nil
}

// ClosePosition submits a market close of pos at pos.ClosePrice.
func (g *Gateway) ClosePosition(ctx context.Context, pos *domain.Position) error {
	if err := validatePosition(pos); err != nil {
		return err
	}
	if _, err := g.transaction(ctx, g.builder.CloseTrade(pos, pos.ClosePrice)); err != nil {
		g.logger.Error(ctx, err, "Close position failed", positionFields(pos))
		return fmt.Errorf("close position failed: %w", err)
	}
	return nil
}

func (g *Gateway) transaction(ctx context.Context, cmd string) (string, error) {
	resp, err := g.cmd.SendAndReceive(ctx, cmd)
	if err != nil {
		return "", err
	}
	return g.adapter.AdaptTransaction(resp)
}

// RestorePosition registers an already open position found at the venue, so that its pushes are
// tracked again after a restart.
func (g *Gateway) RestorePosition(pos *domain.Position) error {
	if pos == nil || pos.ID == "" {
		return fmt.Errorf("%w: restored position needs an id", ports.ErrInvalidRequest)
	}
	p := pos.Clone()
	p.Opened = true
	if p.Status == domain.StatusPending || p.Status == "" {
		p.Status = domain.StatusOpen
	}
	return g.call(func() { g.book.Add(p) })
}

// Positions returns copies of the cached positions.
func (g *Gateway) Positions() []*domain.Position {
	var out []*domain.Position
	if err := g.call(func() { out = g.book.Snapshot() }); err != nil {
		return nil
	}
	return out
}

// Balance returns the latest balance snapshot, or nil before the first one arrives.
func (g *Gateway) Balance() *domain.AccountBalance {
	b := g.balance.Load()
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// GetBalance fetches the account balance and replaces the snapshot with it.
func (g *Gateway) GetBalance(ctx context.Context) (*domain.AccountBalance, error) {
	resp, err := g.cmd.SendAndReceive(ctx, g.builder.MarginLevel())
	if err != nil {
		return nil, fmt.Errorf("get balance failed: %w", err)
	}
	b, err := g.adapter.AdaptBalance(resp)
	if err != nil {
		return nil, fmt.Errorf("get balance failed: %w", err)
	}
	g.balance.Store(b)
	c := *b
	return &c, nil
}

// GetSymbolInformation fetches the specification of one instrument.
func (g *Gateway) GetSymbolInformation(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	resp, err := g.cmd.SendAndReceive(ctx, g.builder.Symbol(symbol))
	if err != nil {
		return nil, fmt.Errorf("get symbol %s failed: %w", symbol, err)
	}
	info, err := g.adapter.AdaptSymbol(resp)
	if err != nil {
		return nil, fmt.Errorf("get symbol %s failed: %w", symbol, err)
	}
	return info, nil
}

// GetAllSymbols fetches every instrument the account can trade.
func (g *Gateway) GetAllSymbols(ctx context.Context) ([]*domain.SymbolInfo, error) {
	resp, err := g.cmd.SendAndReceive(ctx, g.builder.AllSymbols())
	if err != nil {
		return nil, fmt.Errorf("get all symbols failed: %w", err)
	}
	symbols, err := g.adapter.AdaptAllSymbols(resp)
	if err != nil {
		return nil, fmt.Errorf("get all symbols failed: %w", err)
	}
	return symbols, nil
}

// GetTickPrice fetches the latest tick of symbol.
func (g *Gateway) GetTickPrice(ctx context.Context, symbol string) (*domain.Tick, error) {
	resp, err := g.cmd.SendAndReceive(ctx, g.builder.TickPrices([]string{symbol}))
	if err != nil {
		return nil, fmt.Errorf("get tick %s failed: %w", symbol, err)
	}
	tick, err := g.adapter.AdaptTick(resp)
	if err != nil {
		return nil, fmt.Errorf("get tick %s failed: %w", symbol, err)
	}
	if tick == nil {
		return nil, fmt.Errorf("get tick %s failed: %w", symbol, ports.ErrNoMarketData)
	}
	return tick, nil
}

// GetAllPositionsByComment returns the closed positions of a strategy from the venue history.
func (g *Gateway) GetAllPositionsByComment(ctx context.Context, strategyID string) ([]*domain.Position, error) {
	resp, err := g.cmd.SendAndReceive(ctx, g.builder.TradesHistory(g.cfg.HistoryFrom, time.Time{}))
	if err != nil {
		return nil, fmt.Errorf("get trades history failed: %w", err)
	}
	trades, err := g.adapter.AdaptTrades(resp)
	if err != nil {
		return nil, fmt.Errorf("get trades history failed: %w", err)
	}
	return filterByStrategy(trades, strategyID), nil
}

// GetOpenedPositionByComment returns the open position of a strategy, or nil if it has none.
func (g *Gateway) GetOpenedPositionByComment(ctx context.Context, strategyID string) (*domain.Position, error) {
	resp, err := g.cmd.SendAndReceive(ctx, g.builder.OpenedTrades())
	if err != nil {
		return nil, fmt.Errorf("get opened trades failed: %w", err)
	}
	trades, err := g.adapter.AdaptTrades(resp)
	if err != nil {
		return nil, fmt.Errorf("get opened trades failed: %w", err)
	}
	if matches := filterByStrategy(trades, strategyID); len(matches) > 0 {
		return matches[0], nil
	}
	return nil, nil
}

func filterByStrategy(trades []*domain.Position, strategyID string) []*domain.Position {
	var out []*domain.Position
	for _, t := range trades {
		if t != nil && t.StrategyID == strategyID {
			out = append(out, t)
		}
	}
	return out
}

// SubscribePrice starts tick pushes for symbol.
func (g *Gateway) SubscribePrice(ctx context.Context, symbol string) error {
	session, err := g.sessionID()
	if err != nil {
		return fmt.Errorf("subscribe %s failed: %w", symbol, err)
	}
	if err := g.stream.Send(ctx, g.builder.SubscribePrice(session, symbol)); err != nil {
		return fmt.Errorf("subscribe %s failed: %w", symbol, err)
	}
	return nil
}

// UnsubscribePrice stops tick pushes for symbol.
func (g *Gateway) UnsubscribePrice(ctx context.Context, symbol string) error {
	session, err := g.sessionID()
	if err != nil {
		return fmt.Errorf("unsubscribe %s failed: %w", symbol, err)
	}
	if err := g.stream.Send(ctx, g.builder.UnsubscribePrice(session, symbol)); err != nil {
		return fmt.Errorf("unsubscribe %s failed: %w", symbol, err)
	}
	return nil
}

func positionFields(pos *domain.Position, extra ...map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"id":     pos.ID,
		"ref":    pos.ReferenceID,
		"symbol": pos.Symbol,
		"side":   string(pos.Side),
		"volume": pos.Volume,
	}
	for _, e := range extra {
		for k, v := range e {
			fields[k] = v
		}
	}
	return fields
}
