// Package xapi renders commands for, and decodes responses from, a venue speaking the xAPI JSON
// protocol over the line-framed TLS sockets of the transport package.
package xapi

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"brokerBot/internal/domain"

	"github.com/bytedance/sonic"
)

// Trade transaction commands.
const (
	cmdBuy  = 0
	cmdSell = 1
)

// Trade transaction types.
const (
	typeOpen    = 0
	typePending = 1
	typeClose   = 2
	typeModify  = 3
	typeDelete  = 4
)

// envelope is the shape of every request on the command socket.
type envelope struct {
	Command     string      `json:"command"`
	PrettyPrint bool        `json:"prettyPrint"`
	Arguments   interface{} `json:"arguments,omitempty"`
	CustomTag   string      `json:"customTag"`
}

// streamEnvelope is the shape of every request on the streaming socket.
type streamEnvelope struct {
	Command         string `json:"command"`
	StreamSessionID string `json:"streamSessionId"`
	Symbol          string `json:"symbol,omitempty"`
	MinArrivalTime  int    `json:"minArrivalTime,omitempty"`
}

type loginArgs struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	AppName  string `json:"appName,omitempty"`
}

type tradeTransInfo struct {
	Cmd           int     `json:"cmd"`
	CustomComment string  `json:"customComment"`
	Expiration    int64   `json:"expiration"`
	Offset        int     `json:"offset"`
	Order         int64   `json:"order"`
	Price         float64 `json:"price"`
	StopLoss      float64 `json:"sl"`
	Symbol        string  `json:"symbol"`
	TakeProfit    float64 `json:"tp"`
	Type          int     `json:"type"`
	Volume        float64 `json:"volume"`
}

// Builder implements ports.CommandBuilder.
// Every command carries a customTag made of its name and a per-builder sequence number.
type Builder struct {
	seq atomic.Uint64
}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) command(name string, args interface{}) string {
	tag := fmt.Sprintf("%s_%d", name, b.seq.Add(1))
	payload, _ := sonic.MarshalString(envelope{Command: name, Arguments: args, CustomTag: tag})
	return payload
}

func streamCommand(cmd streamEnvelope) string {
	payload, _ := sonic.MarshalString(cmd)
	return payload
}

func (b *Builder) Login(userID, password, appName string) string {
	return b.command("login", loginArgs{UserID: userID, Password: password, AppName: appName})
}

func (b *Builder) Logout() string { return b.command("logout", nil) }
func (b *Builder) Ping() string   { return b.command("ping", nil) }

func (b *Builder) AllSymbols() string  { return b.command("getAllSymbols", nil) }
func (b *Builder) MarginLevel() string { return b.command("getMarginLevel", nil) }

func (b *Builder) Symbol(symbol string) string {
	return b.command("getSymbol", map[string]interface{}{"symbol": symbol})
}

func (b *Builder) TickPrices(symbols []string) string {
	return b.command("getTickPrices", map[string]interface{}{"level": 0, "symbols": symbols, "timestamp": 0})
}

func (b *Builder) OpenedTrades() string {
	return b.command("getTrades", map[string]interface{}{"openedOnly": true})
}

// TradesHistory requests closed trades between from and to. A zero from lets the venue pick its
// default window, a zero to means now.
func (b *Builder) TradesHistory(from, to time.Time) string {
	return b.command("getTradesHistory", map[string]interface{}{"start": toMillis(from), "end": toMillis(to)})
}

func (b *Builder) OpenTrade(pos *domain.Position, price float64) string {
	return b.transaction(pos, price, typeOpen)
}

func (b *Builder) UpdateTrade(pos *domain.Position, price float64) string {
	return b.transaction(pos, price, typeModify)
}

func (b *Builder) CloseTrade(pos *domain.Position, price float64) string {
	return b.transaction(pos, price, typeClose)
}

func (b *Builder) transaction(pos *domain.Position, price float64, kind int) string {
	info := tradeTransInfo{
		Cmd:           sideToCmd(pos.Side),
		CustomComment: pos.ReferenceID,
		Expiration:    toMillis(pos.Expiration),
		Price:         price,
		StopLoss:      pos.StopLoss,
		Symbol:        pos.Symbol,
		TakeProfit:    pos.TakeProfit,
		Type:          kind,
		Volume:        domain.Round(pos.Volume, 2),
	}
	if kind != typeOpen {
		// Unparsable orders are sent as 0 and rejected by the venue.
		info.Order, _ = strconv.ParseInt(pos.Order, 10, 64)
	}
	return b.command("tradeTransaction", map[string]interface{}{"tradeTransInfo": info})
}

func (b *Builder) StreamPing(session string) string {
	return streamCommand(streamEnvelope{Command: "ping", StreamSessionID: session})
}

func (b *Builder) SubscribeBalance(session string) string {
	return streamCommand(streamEnvelope{Command: "getBalance", StreamSessionID: session})
}

func (b *Builder) SubscribeTrades(session string) string {
	return streamCommand(streamEnvelope{Command: "getTrades", StreamSessionID: session})
}

func (b *Builder) SubscribeTradeStatus(session string) string {
	return streamCommand(streamEnvelope{Command: "getTradeStatus", StreamSessionID: session})
}

func (b *Builder) SubscribeKeepAlive(session string) string {
	return streamCommand(streamEnvelope{Command: "getKeepAlive", StreamSessionID: session})
}

func (b *Builder) SubscribeNews(session string) string {
	return streamCommand(streamEnvelope{Command: "getNews", StreamSessionID: session})
}

func (b *Builder) SubscribeProfits(session string) string {
	return streamCommand(streamEnvelope{Command: "getProfits", StreamSessionID: session})
}

func (b *Builder) SubscribePrice(session, symbol string) string {
	return streamCommand(streamEnvelope{Command: "getTickPrices", StreamSessionID: session, Symbol: symbol, MinArrivalTime: 1})
}

func (b *Builder) UnsubscribePrice(session, symbol string) string {
	return streamCommand(streamEnvelope{Command: "stopTickPrices", StreamSessionID: session, Symbol: symbol})
}

func sideToCmd(side domain.OrderSide) int {
	if side == domain.Sell {
		return cmdSell
	}
	return cmdBuy
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
