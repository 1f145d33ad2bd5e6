package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReferenceSeparator joins the strategy id and the position id in a ReferenceID.
const ReferenceSeparator = "|"

// Position represents an order placed by a strategy and tracked until it is closed.
type Position struct {
	ID          string // Client-minted identifier
	StrategyID  string
	ReferenceID string // StrategyID|ID, sent to the venue and echoed back on every push
	Order       string // Broker-assigned execution id, empty until confirmed
	Symbol      string
	Side        OrderSide
	Volume      float64

	OpenPrice    float64
	ClosePrice   float64
	CurrentPrice float64
	StopLoss     float64
	TakeProfit   float64
	Profit       float64

	Status       PositionStatus
	Opened       bool
	DateOpen     time.Time
	DateClose    time.Time
	Expiration   time.Time
	ReasonClosed CloseReason
}

// NewPosition mints a position with a fresh ID and its immutable ReferenceID.
func NewPosition(strategyID, symbol string, side OrderSide, volume float64) *Position {
	id := uuid.NewString()
	return &Position{
		ID:          id,
		StrategyID:  strategyID,
		ReferenceID: BuildReferenceID(strategyID, id),
		Symbol:      symbol,
		Side:        side,
		Volume:      volume,
		Status:      StatusPending,
	}
}

// BuildReferenceID joins a strategy id and a position id.
func BuildReferenceID(strategyID, positionID string) string {
	return strategyID + ReferenceSeparator + positionID
}

// ParseReferenceID splits a reference id into its strategy and position parts.
// ok is false when the value does not carry the separator.
func ParseReferenceID(ref string) (strategyID, positionID string, ok bool) {
	idx := strings.LastIndex(ref, ReferenceSeparator)
	if idx < 0 {
		return "", "", false
	}
	return ref[:idx], ref[idx+len(ReferenceSeparator):], true
}

// IsOpen checks if the position is confirmed by the venue and not yet closed.
func (p *Position) IsOpen() bool {
	return p.Opened && p.Status != StatusClose
}

// Clone returns a copy that shares no mutable state with p.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
