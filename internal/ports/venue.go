package ports

import (
	"time"

	"brokerBot/internal/domain"
)

// CommandBuilder renders venue commands as wire text.
// Every command is an envelope {command, prettyPrint, arguments?, customTag}; the core treats
// arguments as opaque.
type CommandBuilder interface {
	Login(userID, password, appName string) string
	Logout() string
	Ping() string
	AllSymbols() string
	Symbol(symbol string) string
	TickPrices(symbols []string) string
	MarginLevel() string
	OpenedTrades() string
	TradesHistory(from, to time.Time) string
	OpenTrade(pos *domain.Position, price float64) string
	UpdateTrade(pos *domain.Position, price float64) string
	CloseTrade(pos *domain.Position, price float64) string

	// Streaming commands carry the session token returned by Login.
	StreamPing(session string) string
	SubscribeBalance(session string) string
	SubscribeTrades(session string) string
	SubscribeTradeStatus(session string) string
	SubscribeKeepAlive(session string) string
	SubscribeNews(session string) string
	SubscribeProfits(session string) string
	SubscribePrice(session, symbol string) string
	UnsubscribePrice(session, symbol string) string
}

// ResponseAdapter turns venue responses and push payloads into typed records.
// Command responses that carry an explicit failure are returned as *APIError;
// malformed responses wrap ErrProtocol.
type ResponseAdapter interface {
	AdaptLogin(resp string) (session string, err error)
	AdaptEmpty(resp string) error
	AdaptSymbol(resp string) (*domain.SymbolInfo, error)
	AdaptAllSymbols(resp string) ([]*domain.SymbolInfo, error)
	AdaptTick(resp string) (*domain.Tick, error)
	AdaptBalance(resp string) (*domain.AccountBalance, error)
	AdaptTransaction(resp string) (order string, err error)
	AdaptTrades(resp string) ([]*domain.Position, error)

	// Push payloads: data is the raw JSON object found under the envelope's data key.
	AdaptTickPush(data string) (*domain.Tick, error)
	AdaptTradePush(data string) (*domain.Position, error)
	AdaptTradeStatusPush(data string) (*domain.Position, error)
	AdaptBalancePush(data string) (*domain.AccountBalance, error)
	AdaptNewsPush(data string) (*domain.News, error)
	// AdaptProfitPush returns an Updated position addressed by its broker order, carrying only Profit.
	AdaptProfitPush(data string) (*domain.Position, error)
}
