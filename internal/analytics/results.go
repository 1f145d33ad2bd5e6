// Package analytics computes result statistics over closed positions.
package analytics

import (
	"math"
	"sort"

	"brokerBot/internal/domain"
)

// CalculateResults recomputes every statistic from scratch. The input is not modified.
//
// Drawdown is measured over the sequence of individual profits ordered by close date, not over an
// account balance curve: DrawdownMax is the largest gap between the running peak profit and a later
// profit, Drawdown is that gap at the last position. Both stay zero unless there are at least two
// positions and one of them lost money.
func CalculateResults(positions []*domain.Position) domain.Result {
	var r domain.Result
	if len(positions) == 0 {
		return r
	}

	hasLoss := false
	for _, p := range positions {
		r.TotalPositions++
		r.Profit += p.Profit
		if p.Profit >= 0 {
			if r.TotalPositionPositive == 0 || p.Profit > r.GainMax {
				r.GainMax = p.Profit
			}
			r.TotalPositionPositive++
			r.ProfitPositif += p.Profit
		} else {
			hasLoss = true
			if r.TotalPositionNegative == 0 || p.Profit < r.PerteMax {
				r.PerteMax = p.Profit
			}
			r.TotalPositionNegative++
			r.ProfitNegatif += p.Profit
		}
	}

	r.MoyenneProfit = r.Profit / float64(r.TotalPositions)
	if r.TotalPositionPositive > 0 {
		r.MoyennePositive = r.ProfitPositif / float64(r.TotalPositionPositive)
	}
	if r.TotalPositionNegative > 0 {
		r.MoyenneNegative = r.ProfitNegatif / float64(r.TotalPositionNegative)
	}
	if r.MoyenneNegative != 0 {
		r.RatioMoyennePositifNegatif = r.MoyennePositive / r.MoyenneNegative
	}
	if r.ProfitNegatif != 0 {
		r.ProfitFactor = math.Abs(r.ProfitPositif / r.ProfitNegatif)
	}
	r.WinRate = float64(r.TotalPositionPositive) / float64(r.TotalPositions) * 100

	if len(positions) >= 2 && hasLoss {
		r.Drawdown, r.DrawdownMax = profitDrawdown(SortByCloseDate(positions))
	}
	return r
}

func profitDrawdown(ordered []*domain.Position) (last, max float64) {
	peak := ordered[0].Profit
	for _, p := range ordered {
		if p.Profit > peak {
			peak = p.Profit
		}
		gap := peak - p.Profit
		if gap > max {
			max = gap
		}
		last = gap
	}
	return last, max
}

// SortByCloseDate returns a copy of positions ordered by close date, oldest first.
func SortByCloseDate(positions []*domain.Position) []*domain.Position {
	sorted := make([]*domain.Position, len(positions))
	copy(sorted, positions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DateClose.Before(sorted[j].DateClose)
	})
	return sorted
}

// MonthlyResults groups positions by the calendar month of their close date and computes a Result
// per group, ordered by year then month.
func MonthlyResults(positions []*domain.Position) []domain.MonthlyResult {
	groups := make(map[[2]int][]*domain.Position)
	for _, p := range positions {
		key := [2]int{p.DateClose.Year(), int(p.DateClose.Month())}
		groups[key] = append(groups[key], p)
	}

	out := make([]domain.MonthlyResult, 0, len(groups))
	for key, group := range groups {
		out = append(out, domain.MonthlyResult{Year: key[0], Month: key[1], Result: CalculateResults(group)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}
