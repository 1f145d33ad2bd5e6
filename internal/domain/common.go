package domain

import "fmt"

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Validate reports an error for any side other than Buy or Sell.
func (s OrderSide) Validate() error {
	switch s {
	case Buy, Sell:
		return nil
	default:
		return fmt.Errorf("unsupported order side %q", string(s))
	}
}

// PositionStatus represents the lifecycle state of a position.
//
// Transitions are monotonic: Pending -> Rejected | Open, Open -> Updated* -> Close.
// Rejected and Close are terminal.
type PositionStatus string

const (
	StatusPending  PositionStatus = "PENDING"
	StatusOpen     PositionStatus = "OPEN"
	StatusUpdated  PositionStatus = "UPDATED"
	StatusRejected PositionStatus = "REJECTED"
	StatusClose    PositionStatus = "CLOSE"
)

// IsTerminal reports whether no further transition may leave the status.
func (s PositionStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusClose
}

// CloseReason indicates why a position was closed, as reported by the venue.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonMarket     CloseReason = "Market"
	CloseReasonStopOut    CloseReason = "StopOut"
	CloseReasonUnknown    CloseReason = "Unknown"
)

// SymbolCategory is the asset class of an instrument.
type SymbolCategory string

const (
	CategoryForex     SymbolCategory = "FX"
	CategoryCrypto    SymbolCategory = "CRT"
	CategoryIndex     SymbolCategory = "IND"
	CategoryStock     SymbolCategory = "STC"
	CategoryCommodity SymbolCategory = "CMD"
	CategoryETF       SymbolCategory = "ETF"
)
