package xapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"brokerBot/internal/domain"
	"brokerBot/internal/ports"

	"github.com/bytedance/sonic"
)

// Request statuses carried by tradeStatus pushes.
const (
	requestError    = 0
	requestPending  = 1
	requestAccepted = 3
	requestRejected = 4
)

// response is the envelope of every answer on the command socket.
type response[T any] struct {
	Status          bool   `json:"status"`
	ErrorCode       string `json:"errorCode"`
	ErrorDescr      string `json:"errorDescr"`
	StreamSessionID string `json:"streamSessionId"`
	ReturnData      T      `json:"returnData"`
}

type symbolRecord struct {
	Symbol         string  `json:"symbol"`
	Description    string  `json:"description"`
	CategoryName   string  `json:"categoryName"`
	ContractSize   float64 `json:"contractSize"`
	TickSize       float64 `json:"tickSize"`
	Precision      int     `json:"precision"`
	LotMin         float64 `json:"lotMin"`
	LotMax         float64 `json:"lotMax"`
	LotStep        float64 `json:"lotStep"`
	Leverage       float64 `json:"leverage"`
	Currency       string  `json:"currency"`
	CurrencyProfit string  `json:"currencyProfit"`
}

type tickRecord struct {
	Symbol    string  `json:"symbol"`
	Ask       float64 `json:"ask"`
	Bid       float64 `json:"bid"`
	AskVolume float64 `json:"askVolume"`
	BidVolume float64 `json:"bidVolume"`
	Timestamp int64   `json:"timestamp"`
}

type tickPrices struct {
	Quotations []tickRecord `json:"quotations"`
}

type marginLevel struct {
	Balance     float64 `json:"balance"`
	Credit      float64 `json:"credit"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	MarginFree  float64 `json:"margin_free"`
	MarginLevel float64 `json:"margin_level"`
}

type balancePush struct {
	Balance     float64 `json:"balance"`
	Credit      float64 `json:"credit"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	MarginFree  float64 `json:"marginFree"`
	MarginLevel float64 `json:"marginLevel"`
}

type transactionResult struct {
	Order int64 `json:"order"`
}

// tradeRecord is shared by getTrades/getTradesHistory answers and trade pushes; type and state
// are only present on pushes.
type tradeRecord struct {
	Symbol        string   `json:"symbol"`
	Cmd           int      `json:"cmd"`
	Type          int      `json:"type"`
	State         string   `json:"state"`
	Closed        bool     `json:"closed"`
	Order         int64    `json:"order"`
	Position      int64    `json:"position"`
	Volume        float64  `json:"volume"`
	OpenPrice     float64  `json:"open_price"`
	ClosePrice    float64  `json:"close_price"`
	StopLoss      float64  `json:"sl"`
	TakeProfit    float64  `json:"tp"`
	Profit        *float64 `json:"profit"`
	OpenTime      int64    `json:"open_time"`
	CloseTime     *int64   `json:"close_time"`
	Expiration    *int64   `json:"expiration"`
	Comment       string   `json:"comment"`
	CustomComment string   `json:"customComment"`
}

type tradeStatusRecord struct {
	CustomComment string  `json:"customComment"`
	Message       string  `json:"message"`
	Order         int64   `json:"order"`
	Price         float64 `json:"price"`
	RequestStatus int     `json:"requestStatus"`
}

type newsRecord struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Time  int64  `json:"time"`
}

type profitRecord struct {
	Order    int64   `json:"order"`
	Position int64   `json:"position"`
	Profit   float64 `json:"profit"`
}

// Adapter implements ports.ResponseAdapter.
type Adapter struct{}

// NewAdapter creates an Adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// decode parses a command response. A response whose status is false becomes an *APIError.
func decode[T any](resp string) (response[T], error) {
	var r response[T]
	if err := sonic.UnmarshalString(resp, &r); err != nil {
		return r, fmt.Errorf("malformed response: %w: %w", ports.ErrProtocol, err)
	}
	if !r.Status {
		return r, &ports.APIError{Code: r.ErrorCode, Description: r.ErrorDescr}
	}
	return r, nil
}

func decodePush[T any](data string, what string) (T, error) {
	var v T
	if err := sonic.UnmarshalString(data, &v); err != nil {
		return v, fmt.Errorf("malformed %s push: %w: %w", what, ports.ErrProtocol, err)
	}
	return v, nil
}

func (a *Adapter) AdaptLogin(resp string) (string, error) {
	r, err := decode[interface{}](resp)
	if err != nil {
		return "", err
	}
	if r.StreamSessionID == "" {
		return "", fmt.Errorf("login response without stream session: %w", ports.ErrProtocol)
	}
	return r.StreamSessionID, nil
}

func (a *Adapter) AdaptEmpty(resp string) error {
	_, err := decode[interface{}](resp)
	return err
}

func (a *Adapter) AdaptSymbol(resp string) (*domain.SymbolInfo, error) {
	r, err := decode[*symbolRecord](resp)
	if err != nil {
		return nil, err
	}
	if r.ReturnData == nil {
		return nil, fmt.Errorf("symbol response without data: %w", ports.ErrProtocol)
	}
	return translateSymbol(r.ReturnData), nil
}

func (a *Adapter) AdaptAllSymbols(resp string) ([]*domain.SymbolInfo, error) {
	r, err := decode[[]*symbolRecord](resp)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.SymbolInfo, 0, len(r.ReturnData))
	for _, s := range r.ReturnData {
		if s != nil {
			out = append(out, translateSymbol(s))
		}
	}
	return out, nil
}

// AdaptTick returns the first quotation of a getTickPrices answer, or nil if there is none.
func (a *Adapter) AdaptTick(resp string) (*domain.Tick, error) {
	r, err := decode[tickPrices](resp)
	if err != nil {
		return nil, err
	}
	if len(r.ReturnData.Quotations) == 0 {
		return nil, nil
	}
	return translateTick(r.ReturnData.Quotations[0]), nil
}

func (a *Adapter) AdaptBalance(resp string) (*domain.AccountBalance, error) {
	r, err := decode[marginLevel](resp)
	if err != nil {
		return nil, err
	}
	m := r.ReturnData
	return &domain.AccountBalance{
		Balance:     m.Balance,
		Equity:      m.Equity,
		Margin:      m.Margin,
		MarginFree:  m.MarginFree,
		MarginLevel: m.MarginLevel,
		Credit:      m.Credit,
	}, nil
}

func (a *Adapter) AdaptTransaction(resp string) (string, error) {
	r, err := decode[transactionResult](resp)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(r.ReturnData.Order, 10), nil
}

// AdaptTrades decodes a getTrades or getTradesHistory answer.
func (a *Adapter) AdaptTrades(resp string) ([]*domain.Position, error) {
	r, err := decode[[]*tradeRecord](resp)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Position, 0, len(r.ReturnData))
	for _, t := range r.ReturnData {
		if t == nil {
			continue
		}
		pos := translateTrade(t)
		if t.Closed {
			pos.Status = domain.StatusClose
		} else {
			pos.Status = domain.StatusOpen
			pos.Opened = true
		}
		out = append(out, pos)
	}
	return out, nil
}

func (a *Adapter) AdaptTickPush(data string) (*domain.Tick, error) {
	t, err := decodePush[tickRecord](data, "tick")
	if err != nil {
		return nil, err
	}
	return translateTick(t), nil
}

// AdaptTradePush decodes a trade push and maps it onto a position status.
func (a *Adapter) AdaptTradePush(data string) (*domain.Position, error) {
	t, err := decodePush[tradeRecord](data, "trade")
	if err != nil {
		return nil, err
	}
	pos := translateTrade(&t)
	switch {
	case t.Closed:
		pos.Status = domain.StatusClose
	case t.Type == typePending:
		pos.Status = domain.StatusPending
	case t.Type == typeDelete:
		pos.Status = domain.StatusRejected
	case t.Type == typeModify || t.State == "Modified":
		pos.Status = domain.StatusUpdated
	default:
		pos.Status = domain.StatusOpen
	}
	return pos, nil
}

// AdaptTradeStatusPush decodes the venue's verdict on a submitted transaction. The order number
// of a transaction is not a position number, so the result can only be matched by its client ID.
func (a *Adapter) AdaptTradeStatusPush(data string) (*domain.Position, error) {
	s, err := decodePush[tradeStatusRecord](data, "trade status")
	if err != nil {
		return nil, err
	}
	pos := &domain.Position{ReferenceID: s.CustomComment}
	pos.StrategyID, pos.ID, _ = domain.ParseReferenceID(s.CustomComment)
	switch s.RequestStatus {
	case requestError, requestRejected:
		pos.Status = domain.StatusRejected
	case requestPending, requestAccepted:
		pos.Status = domain.StatusPending
	default:
		return nil, fmt.Errorf("unknown request status %d: %w", s.RequestStatus, ports.ErrProtocol)
	}
	return pos, nil
}

func (a *Adapter) AdaptBalancePush(data string) (*domain.AccountBalance, error) {
	b, err := decodePush[balancePush](data, "balance")
	if err != nil {
		return nil, err
	}
	return &domain.AccountBalance{
		Balance:     b.Balance,
		Equity:      b.Equity,
		Margin:      b.Margin,
		MarginFree:  b.MarginFree,
		MarginLevel: b.MarginLevel,
		Credit:      b.Credit,
	}, nil
}

func (a *Adapter) AdaptNewsPush(data string) (*domain.News, error) {
	n, err := decodePush[newsRecord](data, "news")
	if err != nil {
		return nil, err
	}
	return &domain.News{Key: n.Key, Title: n.Title, Body: n.Body, Date: fromMillis(n.Time)}, nil
}

func (a *Adapter) AdaptProfitPush(data string) (*domain.Position, error) {
	p, err := decodePush[profitRecord](data, "profit")
	if err != nil {
		return nil, err
	}
	order := p.Position
	if order == 0 {
		order = p.Order
	}
	if order == 0 {
		return nil, fmt.Errorf("profit push without position: %w", ports.ErrProtocol)
	}
	return &domain.Position{
		Order:  strconv.FormatInt(order, 10),
		Profit: p.Profit,
		Status: domain.StatusUpdated,
	}, nil
}

// --- Translation Helpers ---

func translateSymbol(s *symbolRecord) *domain.SymbolInfo {
	return &domain.SymbolInfo{
		Symbol:         s.Symbol,
		Description:    s.Description,
		Category:       domain.SymbolCategory(s.CategoryName),
		ContractSize:   s.ContractSize,
		TickSize:       s.TickSize,
		Precision:      s.Precision,
		LotMin:         s.LotMin,
		LotMax:         s.LotMax,
		LotStep:        s.LotStep,
		Leverage:       s.Leverage,
		Currency:       s.Currency,
		CurrencyProfit: s.CurrencyProfit,
	}
}

func translateTick(t tickRecord) *domain.Tick {
	return &domain.Tick{
		Symbol:    t.Symbol,
		Bid:       t.Bid,
		Ask:       t.Ask,
		BidVolume: t.BidVolume,
		AskVolume: t.AskVolume,
		Date:      fromMillis(t.Timestamp),
	}
}

// translateTrade fills everything but Status and Opened. The position number is the broker
// Order: it stays the same across modifications and closing.
func translateTrade(t *tradeRecord) *domain.Position {
	pos := &domain.Position{
		ReferenceID: t.CustomComment,
		Symbol:      t.Symbol,
		Side:        cmdToSide(t.Cmd),
		Volume:      t.Volume,
		OpenPrice:   t.OpenPrice,
		StopLoss:    t.StopLoss,
		TakeProfit:  t.TakeProfit,
		DateOpen:    fromMillis(t.OpenTime),
	}
	pos.StrategyID, pos.ID, _ = domain.ParseReferenceID(t.CustomComment)
	if t.Position != 0 {
		pos.Order = strconv.FormatInt(t.Position, 10)
	} else if t.Order != 0 {
		pos.Order = strconv.FormatInt(t.Order, 10)
	}
	if t.Profit != nil {
		pos.Profit = *t.Profit
	}
	if t.Expiration != nil {
		pos.Expiration = fromMillis(*t.Expiration)
	}
	if t.Closed {
		pos.ClosePrice = t.ClosePrice
		if t.CloseTime != nil {
			pos.DateClose = fromMillis(*t.CloseTime)
		}
		pos.ReasonClosed = closeReason(t.Comment)
	} else {
		// close_price of an open trade is the current exit price.
		pos.CurrentPrice = t.ClosePrice
	}
	return pos
}

func cmdToSide(cmd int) domain.OrderSide {
	switch cmd {
	case 0, 2, 4:
		return domain.Buy
	case 1, 3, 5:
		return domain.Sell
	}
	return ""
}

func closeReason(comment string) domain.CloseReason {
	switch {
	case strings.HasPrefix(comment, "[S/L]"):
		return domain.CloseReasonStopLoss
	case strings.HasPrefix(comment, "[T/P]"):
		return domain.CloseReasonTakeProfit
	case strings.HasPrefix(comment, "[S/O"):
		return domain.CloseReasonStopOut
	case comment == "":
		return domain.CloseReasonMarket
	}
	return domain.CloseReasonUnknown
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
