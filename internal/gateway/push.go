package gateway

import (
	"context"
	"fmt"

	"brokerBot/internal/channel"
	"brokerBot/internal/domain"
)

func (g *Gateway) handleTick(ctx context.Context, push channel.Push) error {
	tick, err := g.adapter.AdaptTickPush(push.Data)
	if err != nil {
		return fmt.Errorf("decode tick push: %w", err)
	}
	g.events.Tick.Publish(tick)
	return nil
}

func (g *Gateway) handleTrade(ctx context.Context, push channel.Push) error {
	pos, err := g.adapter.AdaptTradePush(push.Data)
	if err != nil {
		return fmt.Errorf("decode trade push: %w", err)
	}
	return g.applyPositionPush(ctx, pos)
}

func (g *Gateway) handleTradeStatus(ctx context.Context, push channel.Push) error {
	pos, err := g.adapter.AdaptTradeStatusPush(push.Data)
	if err != nil {
		return fmt.Errorf("decode trade status push: %w", err)
	}
	return g.applyPositionPush(ctx, pos)
}

func (g *Gateway) handleProfit(ctx context.Context, push channel.Push) error {
	pos, err := g.adapter.AdaptProfitPush(push.Data)
	if err != nil {
		return fmt.Errorf("decode profit push: %w", err)
	}
	return g.applyPositionPush(ctx, pos)
}

func (g *Gateway) handleBalance(ctx context.Context, push channel.Push) error {
	b, err := g.adapter.AdaptBalancePush(push.Data)
	if err != nil {
		return fmt.Errorf("decode balance push: %w", err)
	}
	g.balance.Store(b)
	c := *b
	g.events.NewBalance.Publish(&c)
	return nil
}

func (g *Gateway) handleNews(ctx context.Context, push channel.Push) error {
	n, err := g.adapter.AdaptNewsPush(push.Data)
	if err != nil {
		return fmt.Errorf("decode news push: %w", err)
	}
	g.events.News.Publish(n)
	return nil
}

func (g *Gateway) handleKeepAlive(ctx context.Context, push channel.Push) error {
	g.logger.Debug(ctx, "Keep alive received")
	return nil
}

// applyPositionPush runs the state machine on the actor, then publishes the resulting event on
// the calling goroutine so handlers may call back into the gateway.
func (g *Gateway) applyPositionPush(ctx context.Context, push *domain.Position) error {
	if push == nil {
		return nil
	}
	var (
		tr  transition
		pos *domain.Position
	)
	if err := g.call(func() { tr, pos = g.book.Apply(push) }); err != nil {
		return err
	}

	switch tr {
	case transitionOpened:
		g.logger.Info(ctx, "Position opened", positionFields(pos, map[string]interface{}{"order": pos.Order, "price": pos.OpenPrice}))
		g.events.PositionOpened.Publish(pos)
	case transitionUpdated:
		g.events.PositionUpdated.Publish(pos)
	case transitionRejected:
		g.logger.Warn(ctx, "Position rejected", positionFields(pos))
		g.events.PositionRejected.Publish(pos)
	case transitionRefused:
		g.logger.Warn(ctx, "Position request refused", positionFields(pos, map[string]interface{}{"order": pos.Order, "status": string(pos.Status)}))
		g.events.PositionRefused.Publish(pos)
	case transitionClosed:
		g.logger.Info(ctx, "Position closed", positionFields(pos, map[string]interface{}{"profit": pos.Profit, "reason": string(pos.ReasonClosed)}))
		g.events.PositionClosed.Publish(pos)
	}
	return nil
}
