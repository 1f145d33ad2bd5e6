package domain

import "time"

// Tick is a single top-of-book sample. The latest one wins per symbol.
type Tick struct {
	Symbol    string
	Bid       float64
	Ask       float64
	BidVolume float64
	AskVolume float64
	Date      time.Time
}

// PriceFor returns the price a new position on side would be filled at.
func (t Tick) PriceFor(side OrderSide) float64 {
	if side == Sell {
		return t.Bid
	}
	return t.Ask
}

// ExitPriceFor returns the price a position on side would be closed at.
func (t Tick) ExitPriceFor(side OrderSide) float64 {
	if side == Sell {
		return t.Ask
	}
	return t.Bid
}

// AccountBalance is replaced wholesale on every push; it is never patched field by field.
type AccountBalance struct {
	Balance     float64
	Equity      float64
	Margin      float64
	MarginFree  float64
	MarginLevel float64
	Credit      float64
}

// News is a headline pushed by the venue.
type News struct {
	Key   string
	Title string
	Body  string
	Date  time.Time
}
