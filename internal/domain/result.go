package domain

// Result holds statistics recomputed from scratch over an ordered list of closed positions.
// Field names follow the reporting vocabulary used by the dashboards that consume them.
type Result struct {
	Profit         float64
	TotalPositions int
	MoyenneProfit  float64

	GainMax               float64
	ProfitPositif         float64
	TotalPositionPositive int
	MoyennePositive       float64

	PerteMax              float64
	ProfitNegatif         float64
	TotalPositionNegative int
	MoyenneNegative       float64

	RatioMoyennePositifNegatif float64
	ProfitFactor               float64
	WinRate                    float64 // Percent

	Drawdown    float64
	DrawdownMax float64
}

// MonthlyResult is a Result restricted to positions closed in one calendar month.
type MonthlyResult struct {
	Year   int
	Month  int
	Result Result
}
