// Package gateway combines the command channel and the streaming ingester into a single venue
// session and tracks the positions this process submits until the venue resolves them.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"brokerBot/internal/channel"
	"brokerBot/internal/domain"
	"brokerBot/internal/ports"
)

const DefaultPingInterval = 60 * time.Second

// DefaultHistoryFrom starts the history window early enough to cover every closed trade. A zero
// start would let the venue return only its default window of the last month.
var DefaultHistoryFrom = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// CommandSender is the request/response side of the venue session.
type CommandSender interface {
	Connect(ctx context.Context) error
	SendAndReceive(ctx context.Context, cmd string) (string, error)
	Close() error
	IsConnected() bool
	SetDisconnectHandler(fn func())
}

// PushStream is the streaming side of the venue session.
type PushStream interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, cmd string) error
	Handle(kind channel.PushKind, h channel.PushHandler)
	Close() error
	IsConnected() bool
	SetDisconnectHandler(fn func())
}

// Config holds the credentials and timers of a Gateway.
type Config struct {
	UserID       string
	Password     string
	AppName      string
	PingInterval time.Duration
	HistoryFrom  time.Time // Start of the closed-trade history window; defaults to DefaultHistoryFrom
}

// Gateway is the venue façade.
//
// Its position cache is owned by a single actor goroutine: every read or write goes through call,
// and other goroutines only ever see copies. The balance snapshot is replaced atomically.
type Gateway struct {
	cfg     Config
	cmd     CommandSender
	stream  PushStream
	builder ports.CommandBuilder
	adapter ports.ResponseAdapter
	logger  ports.Logger
	events  Events

	inbox     chan func()
	quit      chan struct{}
	actorDone chan struct{}
	closeOnce sync.Once

	book *positionBook // Actor-owned

	session  atomic.Pointer[string]
	balance  atomic.Pointer[domain.AccountBalance]
	loggedIn atomic.Bool

	pingMu     sync.Mutex
	pingCancel context.CancelFunc
	pingDone   chan struct{}
}

// New creates a Gateway and starts its actor. Call Login before any other operation.
func New(cfg Config, cmd CommandSender, stream PushStream, builder ports.CommandBuilder, adapter ports.ResponseAdapter, logger ports.Logger) *Gateway {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.HistoryFrom.IsZero() {
		cfg.HistoryFrom = DefaultHistoryFrom
	}
	g := &Gateway{
		cfg:       cfg,
		cmd:       cmd,
		stream:    stream,
		builder:   builder,
		adapter:   adapter,
		logger:    logger,
		inbox:     make(chan func()),
		quit:      make(chan struct{}),
		actorDone: make(chan struct{}),
		book:      newPositionBook(),
	}

	cmd.SetDisconnectHandler(func() { g.onDisconnect(ChannelCommand) })
	stream.SetDisconnectHandler(func() { g.onDisconnect(ChannelStream) })
	stream.Handle(channel.PushTick, g.handleTick)
	stream.Handle(channel.PushTrade, g.handleTrade)
	stream.Handle(channel.PushTradeStatus, g.handleTradeStatus)
	stream.Handle(channel.PushBalance, g.handleBalance)
	stream.Handle(channel.PushNews, g.handleNews)
	stream.Handle(channel.PushKeepAlive, g.handleKeepAlive)
	stream.Handle(channel.PushProfit, g.handleProfit)

	go g.run()
	return g
}

// Events returns the notifications published by the gateway.
func (g *Gateway) Events() *Events {
	return &g.events
}

func (g *Gateway) run() {
	defer close(g.actorDone)
	for {
		select {
		case fn := <-g.inbox:
			fn()
		case <-g.quit:
			return
		}
	}
}

// call runs fn on the actor goroutine and waits for it to finish.
func (g *Gateway) call(fn func()) error {
	done := make(chan struct{})
	select {
	case g.inbox <- func() { fn(); close(done) }:
	case <-g.quit:
		return ports.ErrGatewayClosed
	}
	select {
	case <-done:
		return nil
	case <-g.actorDone:
		return ports.ErrGatewayClosed
	}
}

// IsConnected reports whether both channels are up and the session is logged in.
func (g *Gateway) IsConnected() bool {
	return g.loggedIn.Load() && g.cmd.IsConnected() && g.stream.IsConnected()
}

// Login connects the command channel, authenticates, then connects the stream with the returned
// session token and subscribes to account pushes. Any failure closes whatever was opened.
func (g *Gateway) Login(ctx context.Context) error {
	fail := func(step string, err error) error {
		_ = g.stream.Close()
		_ = g.cmd.Close()
		g.session.Store(nil)
		err = fmt.Errorf("%w: %s: %w", ports.ErrLoginFailed, step, err)
		g.logger.Error(ctx, err, "Login failed")
		return err
	}

	if err := g.cmd.Connect(ctx); err != nil {
		return fail("connect command channel", err)
	}
	resp, err := g.cmd.SendAndReceive(ctx, g.builder.Login(g.cfg.UserID, g.cfg.Password, g.cfg.AppName))
	if err != nil {
		return fail("send login", err)
	}
	session, err := g.adapter.AdaptLogin(resp)
	if err != nil {
		return fail("login rejected", err)
	}
	g.session.Store(&session)

	if err := g.stream.Connect(ctx); err != nil {
		return fail("connect stream", err)
	}
	for _, sub := range []string{
		g.builder.SubscribeBalance(session),
		g.builder.SubscribeTrades(session),
		g.builder.SubscribeTradeStatus(session),
		g.builder.SubscribeKeepAlive(session),
		g.builder.SubscribeNews(session),
		g.builder.SubscribeProfits(session),
	} {
		if err := g.stream.Send(ctx, sub); err != nil {
			return fail("subscribe", err)
		}
	}

	g.loggedIn.Store(true)
	g.startPing()
	g.logger.Info(ctx, "Logged in to venue")

	if _, err := g.GetBalance(ctx); err != nil {
		g.logger.Warn(ctx, "Initial balance fetch failed", map[string]interface{}{"error": err.Error()})
	}
	g.events.Connected.Publish(struct{}{})
	return nil
}

// Logout ends the venue session. Failures are logged and returned.
func (g *Gateway) Logout(ctx context.Context) error {
	g.loggedIn.Store(false)
	if !g.cmd.IsConnected() {
		return nil
	}
	resp, err := g.cmd.SendAndReceive(ctx, g.builder.Logout())
	if err == nil {
		err = g.adapter.AdaptEmpty(resp)
	}
	if err != nil {
		g.logger.Warn(ctx, "Logout failed", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// Close stops pinging, logs out, closes both channels and stops the actor.
// The position cache is not consulted again after Close.
func (g *Gateway) Close(ctx context.Context) error {
	var err error
	g.closeOnce.Do(func() {
		g.stopPing()
		_ = g.Logout(ctx)
		if e := g.stream.Close(); e != nil {
			err = e
		}
		if e := g.cmd.Close(); e != nil && err == nil {
			err = e
		}
		close(g.quit)
		<-g.actorDone
		g.logger.Info(ctx, "Gateway closed")
	})
	return err
}

func (g *Gateway) onDisconnect(name string) {
	g.loggedIn.Store(false)
	g.logger.Warn(context.Background(), "Venue channel disconnected", map[string]interface{}{"channel": name})
	g.events.Disconnected.Publish(name)
}

func (g *Gateway) startPing() {
	g.pingMu.Lock()
	defer g.pingMu.Unlock()
	if g.pingCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	g.pingCancel, g.pingDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(g.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.ping(ctx)
			}
		}
	}()
}

func (g *Gateway) stopPing() {
	g.pingMu.Lock()
	cancel, done := g.pingCancel, g.pingDone
	g.pingCancel, g.pingDone = nil, nil
	g.pingMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// ping keeps both channels alive. Failures are logged and swallowed.
func (g *Gateway) ping(ctx context.Context) {
	if g.cmd.IsConnected() {
		resp, err := g.cmd.SendAndReceive(ctx, g.builder.Ping())
		if err == nil {
			err = g.adapter.AdaptEmpty(resp)
		}
		if err != nil {
			g.logger.Warn(ctx, "Command ping failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if session := g.session.Load(); session != nil && g.stream.IsConnected() {
		if err := g.stream.Send(ctx, g.builder.StreamPing(*session)); err != nil {
			g.logger.Warn(ctx, "Stream ping failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (g *Gateway) sessionID() (string, error) {
	s := g.session.Load()
	if s == nil {
		return "", ports.ErrNotConnected
	}
	return *s, nil
}
