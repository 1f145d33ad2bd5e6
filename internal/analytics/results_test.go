package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokerBot/internal/domain"
)

func closed(profit float64, at time.Time) *domain.Position {
	return &domain.Position{Profit: profit, DateClose: at, Status: domain.StatusClose}
}

func TestCalculateResults_Empty(t *testing.T) {
	assert.Equal(t, domain.Result{}, CalculateResults(nil))
	assert.Equal(t, domain.Result{}, CalculateResults([]*domain.Position{}))
}

func TestCalculateResults_MixedSigns(t *testing.T) {
	now := time.Now()
	r := CalculateResults([]*domain.Position{
		closed(100, now.Add(-4*time.Hour)),
		closed(-50, now.Add(-1*time.Hour)),
		closed(200, now.Add(-3*time.Hour)),
		closed(-100, now.Add(-2*time.Hour)),
	})

	assert.Equal(t, 200.0, r.GainMax)
	assert.Equal(t, 300.0, r.ProfitPositif)
	assert.Equal(t, 2, r.TotalPositionPositive)
	assert.Equal(t, 150.0, r.MoyennePositive)

	assert.Equal(t, -100.0, r.PerteMax)
	assert.Equal(t, -150.0, r.ProfitNegatif)
	assert.Equal(t, 2, r.TotalPositionNegative)
	assert.Equal(t, -75.0, r.MoyenneNegative)

	assert.Equal(t, 150.0, r.Profit)
	assert.Equal(t, 4, r.TotalPositions)
	assert.Equal(t, 37.5, r.MoyenneProfit)
	assert.InDelta(t, 2.0, r.ProfitFactor, 1e-9)
	assert.Equal(t, 50.0, r.WinRate)
	assert.Equal(t, -2.0, r.RatioMoyennePositifNegatif)
}

func TestCalculateResults_DrawdownOnUnorderedInput(t *testing.T) {
	now := time.Now()
	input := []*domain.Position{
		closed(100, now.Add(-1*time.Hour)),
		closed(200, now.Add(-3*time.Hour)),
		closed(-50, now.Add(-2*time.Hour)),
	}
	r := CalculateResults(input)

	assert.Equal(t, 250.0, r.DrawdownMax)
	assert.Equal(t, 100.0, r.Drawdown)
	assert.Equal(t, 100.0, input[0].Profit, "input order is preserved")
}

func TestCalculateResults_DrawdownNeedsALoss(t *testing.T) {
	now := time.Now()
	r := CalculateResults([]*domain.Position{closed(200, now), closed(50, now.Add(time.Hour))})
	assert.Zero(t, r.Drawdown)
	assert.Zero(t, r.DrawdownMax)

	r = CalculateResults([]*domain.Position{closed(-20, now)})
	assert.Zero(t, r.DrawdownMax)
}

func TestCalculateResults_OnlyGainsOrOnlyLosses(t *testing.T) {
	r := CalculateResults([]*domain.Position{closed(10, time.Time{}), closed(30, time.Time{})})
	assert.Zero(t, r.ProfitFactor)
	assert.Zero(t, r.RatioMoyennePositifNegatif)
	assert.Equal(t, 100.0, r.WinRate)
	assert.Zero(t, r.PerteMax)

	r = CalculateResults([]*domain.Position{closed(-10, time.Time{}), closed(-30, time.Time{})})
	assert.Zero(t, r.ProfitFactor)
	assert.Zero(t, r.GainMax)
	assert.Equal(t, -30.0, r.PerteMax)
	assert.Zero(t, r.WinRate)
}

func TestMonthlyResults(t *testing.T) {
	jan := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	dec := time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)

	months := MonthlyResults([]*domain.Position{
		closed(10, mar), closed(-5, jan), closed(20, jan), closed(7, dec),
	})

	require.Len(t, months, 3)
	assert.Equal(t, [2]int{2023, 12}, [2]int{months[0].Year, months[0].Month})
	assert.Equal(t, [2]int{2024, 1}, [2]int{months[1].Year, months[1].Month})
	assert.Equal(t, [2]int{2024, 3}, [2]int{months[2].Year, months[2].Month})
	assert.Equal(t, 15.0, months[1].Result.Profit)
	assert.Equal(t, 2, months[1].Result.TotalPositions)
	assert.Equal(t, 7.0, months[0].Result.Profit)
}
