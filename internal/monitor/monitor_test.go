package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokerBot/internal/adapters/logger"
	"brokerBot/internal/domain"
	"brokerBot/internal/gateway"
	"brokerBot/internal/ports"
)

type fakeGateway struct {
	balance    *domain.AccountBalance
	history    []*domain.Position
	historyErr error
	events     gateway.Events
}

func (f *fakeGateway) Balance() *domain.AccountBalance { return f.balance }

func (f *fakeGateway) GetBalance(ctx context.Context) (*domain.AccountBalance, error) {
	return nil, ports.ErrNotConnected
}

func (f *fakeGateway) GetAllPositionsByComment(ctx context.Context, strategyID string) ([]*domain.Position, error) {
	return f.history, f.historyErr
}

func (f *fakeGateway) Events() *gateway.Events { return &f.events }

type fakeJournal struct {
	saved   []*domain.Position
	stored  []*domain.Position
	saveErr error
}

func (j *fakeJournal) SaveClosed(ctx context.Context, pos *domain.Position) error {
	j.saved = append(j.saved, pos)
	return j.saveErr
}

func (j *fakeJournal) FindClosedByStrategy(ctx context.Context, strategyID string) ([]*domain.Position, error) {
	return j.stored, nil
}

func (j *fakeJournal) Close() error { return nil }

var base = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func closedAt(profit float64, hours int) *domain.Position {
	return &domain.Position{
		ID:         fmt.Sprintf("p%d", hours),
		StrategyID: "trend",
		Profit:     profit,
		Status:     domain.StatusClose,
		DateClose:  base.Add(time.Duration(hours) * time.Hour),
	}
}

type recorder struct {
	kinds []BreachKind
}

func (r *recorder) attach(m *Monitor) {
	record := func(b Breach) { r.kinds = append(r.kinds, b.Kind) }
	m.Events().DrawdownBreached.Subscribe(record)
	m.Events().LossStreakBreached.Subscribe(record)
	m.Events().ProfitFactorBreached.Subscribe(record)
}

func newMonitor(t *testing.T, gw *fakeGateway, journal ports.PositionRepository, cfg Config) *Monitor {
	t.Helper()
	cfg.StrategyID = "trend"
	m := New(context.Background(), gw, journal, cfg, logger.NewNop())
	t.Cleanup(m.Close)
	return m
}

func TestNew_BackfillsFromVenue(t *testing.T) {
	gw := &fakeGateway{
		balance: &domain.AccountBalance{Balance: 1000},
		history: []*domain.Position{closedAt(100, 1), closedAt(-50, 2), closedAt(30, 24*40)},
	}
	journal := &fakeJournal{}
	m := newMonitor(t, gw, journal, Config{})

	r := m.Result()
	assert.Equal(t, 3, r.TotalPositions)
	assert.Equal(t, 80.0, r.Profit)
	assert.Len(t, journal.saved, 3)

	months := m.MonthlyResults()
	require.Len(t, months, 2)
	assert.Equal(t, 3, months[0].Month)
	assert.Equal(t, 50.0, months[0].Result.Profit)
	assert.Equal(t, 4, months[1].Month)
}

func TestNew_FallsBackToJournal(t *testing.T) {
	gw := &fakeGateway{historyErr: ports.ErrCommunication}
	journal := &fakeJournal{stored: []*domain.Position{closedAt(10, 1), closedAt(-4, 2)}}
	m := newMonitor(t, gw, journal, Config{})

	assert.Equal(t, 2, m.Result().TotalPositions)
	assert.Equal(t, 6.0, m.Result().Profit)
	assert.Empty(t, journal.saved)
}

func TestNew_MergesJournalWithVenueHistory(t *testing.T) {
	// The venue only returns the latest month; the journal holds the older ones and one
	// position the venue also reports with a final profit.
	jan, feb := closedAt(40, -24*50), closedAt(-25, -24*20)
	stale := closedAt(0, 1)
	gw := &fakeGateway{
		balance: &domain.AccountBalance{Balance: 1000},
		history: []*domain.Position{closedAt(15, 1), closedAt(-5, 2)},
	}
	journal := &fakeJournal{stored: []*domain.Position{jan, feb, stale}}
	m := newMonitor(t, gw, journal, Config{})

	r := m.Result()
	assert.Equal(t, 4, r.TotalPositions)
	assert.Equal(t, 25.0, r.Profit)
	assert.Len(t, journal.saved, 2)

	months := m.MonthlyResults()
	require.Len(t, months, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{months[0].Month, months[1].Month, months[2].Month})
	assert.Equal(t, 40.0, months[0].Result.Profit)
	assert.Equal(t, -25.0, months[1].Result.Profit)
	assert.Equal(t, 10.0, months[2].Result.Profit)
	assert.Equal(t, 2, months[2].Result.TotalPositions)
}

func TestMergeByID(t *testing.T) {
	old := &domain.Position{ID: "a", Profit: 1}
	fresh := &domain.Position{ID: "a", Profit: 2}
	anon := &domain.Position{Profit: 3}

	merged := mergeByID([]*domain.Position{old, anon, nil}, []*domain.Position{fresh, {ID: "b"}, {Profit: 4}})
	require.Len(t, merged, 4)
	assert.Same(t, fresh, merged[0])
	assert.Same(t, anon, merged[1])
	assert.Equal(t, "b", merged[2].ID)
	assert.Equal(t, 4.0, merged[3].Profit)
}

func TestNew_WithoutHistoryOrJournal(t *testing.T) {
	gw := &fakeGateway{historyErr: ports.ErrCommunication}
	m := newMonitor(t, gw, nil, Config{})
	assert.Equal(t, domain.Result{}, m.Result())
	assert.Empty(t, m.MonthlyResults())
}

func TestOnClosed_RecomputesAndBuckets(t *testing.T) {
	gw := &fakeGateway{
		balance: &domain.AccountBalance{Balance: 1000},
		history: []*domain.Position{closedAt(100, 24*40)},
	}
	journal := &fakeJournal{}
	m := newMonitor(t, gw, journal, Config{})

	// Other strategies are ignored.
	other := closedAt(999, 3)
	other.StrategyID = "other"
	gw.events.PositionClosed.Publish(other)
	assert.Equal(t, 1, m.Result().TotalPositions)

	// An earlier month gets a bucket inserted in order.
	gw.events.PositionClosed.Publish(closedAt(-20, 2))
	r := m.Result()
	assert.Equal(t, 2, r.TotalPositions)
	assert.Equal(t, 80.0, r.Profit)

	months := m.MonthlyResults()
	require.Len(t, months, 2)
	assert.Equal(t, 3, months[0].Month)
	assert.Equal(t, -20.0, months[0].Result.Profit)
	assert.Equal(t, 4, months[1].Month)

	// Journal: one for the backfill, one for the close.
	assert.Len(t, journal.saved, 2)
}

func TestBreaker_DisabledNeverFires(t *testing.T) {
	gw := &fakeGateway{balance: &domain.AccountBalance{Balance: 1000}}
	m := newMonitor(t, gw, nil, Config{CircuitBreaker: false, ToleratedDrawdownPercent: 0.1, LossStreak: 1})
	rec := &recorder{}
	rec.attach(m)

	gw.events.PositionClosed.Publish(closedAt(10, 1))
	gw.events.PositionClosed.Publish(closedAt(-30, 2))
	assert.Empty(t, rec.kinds)
}

func TestBreaker_Drawdown(t *testing.T) {
	gw := &fakeGateway{
		balance: &domain.AccountBalance{Balance: 1000},
		history: []*domain.Position{closedAt(200, 1), closedAt(-50, 2)},
	}
	m := newMonitor(t, gw, nil, Config{CircuitBreaker: true, ToleratedDrawdownPercent: 10, LossStreak: 5})
	rec := &recorder{}
	rec.attach(m)

	gw.events.PositionClosed.Publish(closedAt(100, 3))
	assert.Equal(t, 100.0, m.Result().Drawdown)
	assert.Equal(t, []BreachKind{BreachDrawdown}, rec.kinds)
}

func TestBreaker_DrawdownUsesLatestBalance(t *testing.T) {
	gw := &fakeGateway{
		balance: &domain.AccountBalance{Balance: 1000},
		history: []*domain.Position{closedAt(200, 1), closedAt(-50, 2)},
	}
	m := newMonitor(t, gw, nil, Config{CircuitBreaker: true, ToleratedDrawdownPercent: 10})
	rec := &recorder{}
	rec.attach(m)

	gw.events.NewBalance.Publish(&domain.AccountBalance{Balance: 5000})
	gw.events.PositionClosed.Publish(closedAt(100, 3))
	assert.Empty(t, rec.kinds)
}

func TestBreaker_LossStreak(t *testing.T) {
	gw := &fakeGateway{
		balance: &domain.AccountBalance{Balance: 1000},
		history: []*domain.Position{closedAt(10, 1), closedAt(-5, 2)},
	}
	m := newMonitor(t, gw, nil, Config{CircuitBreaker: true, ToleratedDrawdownPercent: 50, LossStreak: 2})
	rec := &recorder{}
	rec.attach(m)

	gw.events.PositionClosed.Publish(closedAt(-3, 3))
	assert.Equal(t, []BreachKind{BreachLossStreak}, rec.kinds)

	// A win breaks the streak.
	rec.kinds = nil
	gw.events.PositionClosed.Publish(closedAt(50, 4))
	assert.Empty(t, rec.kinds)
}

func TestBreaker_ProfitFactor(t *testing.T) {
	gw := &fakeGateway{
		balance: &domain.AccountBalance{Balance: 1000},
		history: []*domain.Position{closedAt(10, 1), closedAt(-20, 2)},
	}
	m := newMonitor(t, gw, nil, Config{CircuitBreaker: true, ToleratedDrawdownPercent: 50, LossStreak: 5})
	rec := &recorder{}
	rec.attach(m)

	gw.events.PositionClosed.Publish(closedAt(5, 3))
	assert.InDelta(t, 0.75, m.Result().ProfitFactor, 1e-9)
	assert.Equal(t, []BreachKind{BreachProfitFactor}, rec.kinds)
}

func TestBreaker_AllChecksFireInOrder(t *testing.T) {
	gw := &fakeGateway{
		balance: &domain.AccountBalance{Balance: 1000},
		history: []*domain.Position{closedAt(10, 1), closedAt(-20, 2)},
	}
	m := newMonitor(t, gw, nil, Config{CircuitBreaker: true, ToleratedDrawdownPercent: 0.1, LossStreak: 1})
	rec := &recorder{}
	rec.attach(m)

	gw.events.PositionClosed.Publish(closedAt(-30, 3))
	assert.Equal(t, []BreachKind{BreachDrawdown, BreachLossStreak, BreachProfitFactor}, rec.kinds)
}

func TestJournalFailureIsSwallowed(t *testing.T) {
	gw := &fakeGateway{balance: &domain.AccountBalance{Balance: 1000}}
	journal := &fakeJournal{saveErr: ports.ErrQueryFailed}
	m := newMonitor(t, gw, journal, Config{})

	gw.events.PositionClosed.Publish(closedAt(10, 1))
	assert.Equal(t, 1, m.Result().TotalPositions)
	assert.Len(t, journal.saved, 1)
}
