package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"brokerBot/internal/channel"
	"brokerBot/internal/domain"
	"brokerBot/internal/ports"
)

var errBoom = errors.New("boom")

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// fakeCommand answers every command with the response registered for its name.
type fakeCommand struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	responses    map[string]string
	errs         map[string]error
	sent         []string
	onDisconnect func()
	onSend       func(cmd string)
}

func newFakeCommand() *fakeCommand {
	return &fakeCommand{responses: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeCommand) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeCommand) SendAndReceive(ctx context.Context, cmd string) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, cmd)
	name := strings.SplitN(cmd, ":", 2)[0]
	resp, err := f.responses[name], f.errs[name]
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(cmd)
	}
	return resp, err
}

func (f *fakeCommand) Close() error {
	f.mu.Lock()
	was := f.connected
	f.connected = false
	h := f.onDisconnect
	f.mu.Unlock()
	if was && h != nil {
		h()
	}
	return nil
}

func (f *fakeCommand) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeCommand) SetDisconnectHandler(fn func()) {
	f.mu.Lock()
	f.onDisconnect = fn
	f.mu.Unlock()
}

func (f *fakeCommand) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeStream records stream commands and lets tests deliver pushes to the registered handlers.
type fakeStream struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	sendErr      error
	sent         []string
	handlers     map[channel.PushKind]channel.PushHandler
	onDisconnect func()
}

func newFakeStream() *fakeStream {
	return &fakeStream{handlers: map[channel.PushKind]channel.PushHandler{}}
}

func (f *fakeStream) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeStream) Send(ctx context.Context, cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return f.sendErr
}

func (f *fakeStream) Handle(kind channel.PushKind, h channel.PushHandler) {
	f.mu.Lock()
	f.handlers[kind] = h
	f.mu.Unlock()
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	was := f.connected
	f.connected = false
	h := f.onDisconnect
	f.mu.Unlock()
	if was && h != nil {
		h()
	}
	return nil
}

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStream) SetDisconnectHandler(fn func()) {
	f.mu.Lock()
	f.onDisconnect = fn
	f.mu.Unlock()
}

func (f *fakeStream) deliver(kind channel.PushKind, data string) error {
	f.mu.Lock()
	h := f.handlers[kind]
	f.mu.Unlock()
	if h == nil {
		return fmt.Errorf("no handler for %s", kind)
	}
	return h(context.Background(), channel.Push{Kind: kind, Command: kind.String(), Data: data})
}

func (f *fakeStream) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeBuilder renders commands as "name:arg".
type fakeBuilder struct{}

func (fakeBuilder) Login(userID, password, appName string) string { return "login:" + userID }
func (fakeBuilder) Logout() string { return "logout" }
func (fakeBuilder) Ping() string { return "ping" }
func (fakeBuilder) AllSymbols() string { return "allSymbols" }
func (fakeBuilder) Symbol(symbol string) string { return "symbol:" + symbol }
func (fakeBuilder) TickPrices(symbols []string) string {
	return "tick:" + strings.Join(symbols, ",")
}
func (fakeBuilder) MarginLevel() string { return "margin" }
func (fakeBuilder) OpenedTrades() string { return "opened" }
func (fakeBuilder) TradesHistory(from, to time.Time) string {
	return fmt.Sprintf("history:%d:%d", from.Unix(), to.Unix())
}
func (fakeBuilder) OpenTrade(p *domain.Position, x float64) string { return "open:" + p.ID }
func (fakeBuilder) UpdateTrade(p *domain.Position, x float64) string { return "update:" + p.ID }
func (fakeBuilder) CloseTrade(p *domain.Position, x float64) string { return "close:" + p.ID }
func (fakeBuilder) StreamPing(s string) string { return "streamPing:" + s }
func (fakeBuilder) SubscribeBalance(s string) string { return "subBalance:" + s }
func (fakeBuilder) SubscribeTrades(s string) string { return "subTrades:" + s }
func (fakeBuilder) SubscribeTradeStatus(s string) string { return "subTradeStatus:" + s }
func (fakeBuilder) SubscribeKeepAlive(s string) string { return "subKeepAlive:" + s }
func (fakeBuilder) SubscribeNews(s string) string { return "subNews:" + s }
func (fakeBuilder) SubscribeProfits(s string) string { return "subProfits:" + s }
func (fakeBuilder) SubscribePrice(s, symbol string) string { return "subPrice:" + symbol }
func (fakeBuilder) UnsubscribePrice(s, symbol string) string { return "unsubPrice:" + symbol }

// fakeAdapter resolves responses and push payloads through lookup tables keyed by the raw text.
type fakeAdapter struct {
	mu        sync.Mutex
	loginErr  error
	balance   *domain.AccountBalance
	trades    []*domain.Position
	txErr     error
	positions map[string]*domain.Position
	balances  map[string]*domain.AccountBalance
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		balance:   &domain.AccountBalance{Balance: 1000, Equity: 1000},
		positions: map[string]*domain.Position{},
		balances:  map[string]*domain.AccountBalance{},
	}
}

func (a *fakeAdapter) AdaptLogin(resp string) (string, error) {
	if a.loginErr != nil {
		return "", a.loginErr
	}
	return "session-1", nil
}
func (a *fakeAdapter) AdaptEmpty(resp string) error { return nil }
func (a *fakeAdapter) AdaptSymbol(resp string) (*domain.SymbolInfo, error) {
	return &domain.SymbolInfo{Symbol: resp}, nil
}
func (a *fakeAdapter) AdaptAllSymbols(resp string) ([]*domain.SymbolInfo, error) { return nil, nil }
func (a *fakeAdapter) AdaptTick(resp string) (*domain.Tick, error) {
	return &domain.Tick{Symbol: resp, Bid: 1.1, Ask: 1.2}, nil
}
func (a *fakeAdapter) AdaptBalance(resp string) (*domain.AccountBalance, error) {
	c := *a.balance
	return &c, nil
}
func (a *fakeAdapter) AdaptTransaction(resp string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.txErr != nil {
		return "", a.txErr
	}
	return "order-" + resp, nil
}
func (a *fakeAdapter) AdaptTrades(resp string) ([]*domain.Position, error) { return a.trades, nil }
func (a *fakeAdapter) AdaptTickPush(data string) (*domain.Tick, error) {
	return &domain.Tick{Symbol: data}, nil
}
func (a *fakeAdapter) AdaptTradePush(data string) (*domain.Position, error) {
	return a.position(data)
}
func (a *fakeAdapter) AdaptTradeStatusPush(data string) (*domain.Position, error) {
	return a.position(data)
}
func (a *fakeAdapter) AdaptBalancePush(data string) (*domain.AccountBalance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.balances[data]
	if !ok {
		return nil, ports.ErrProtocol
	}
	return b, nil
}
func (a *fakeAdapter) AdaptNewsPush(data string) (*domain.News, error) {
	return &domain.News{Title: data}, nil
}

func (a *fakeAdapter) AdaptProfitPush(data string) (*domain.Position, error) {
	return a.position(data)
}

func (a *fakeAdapter) position(key string) (*domain.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[key]
	if !ok {
		return nil, ports.ErrProtocol
	}
	return p.Clone(), nil
}

func (a *fakeAdapter) setPush(key string, p *domain.Position) {
	a.mu.Lock()
	a.positions[key] = p
	a.mu.Unlock()
}
