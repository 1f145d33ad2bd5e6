package domain

// SymbolInfo is the immutable specification of an instrument.
type SymbolInfo struct {
	Symbol         string
	Description    string
	Category       SymbolCategory
	ContractSize   float64 // Units per standard lot
	TickSize       float64 // Minimum price increment
	Precision      int     // Decimal places of a quote
	LotMin         float64
	LotMax         float64
	LotStep        float64
	Leverage       float64 // Margin requirement in percent of notional
	Currency       string  // Base currency of the instrument
	CurrencyProfit string  // Currency in which profit is booked
}

// IsForex reports whether the instrument is a currency pair.
func (s *SymbolInfo) IsForex() bool {
	return s.Category == CategoryForex
}
