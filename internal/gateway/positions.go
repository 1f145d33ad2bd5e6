package gateway

import "brokerBot/internal/domain"

// transition is the outcome of applying one position push to the book.
type transition int

const (
	transitionNone transition = iota
	transitionOpened
	transitionUpdated
	transitionRejected
	transitionClosed
	// A modify or close request on a confirmed position was refused; the position is unchanged.
	transitionRefused
)

// positionBook caches the positions created by this process until the venue resolves them.
//
// One backing store is reachable through two indices: every entry is indexed by its client ID,
// and confirmed entries additionally by their broker Order. It is not safe for concurrent use;
// the gateway actor owns it.
type positionBook struct {
	byID    map[string]*domain.Position
	byOrder map[string]*domain.Position
}

func newPositionBook() *positionBook {
	return &positionBook{
		byID:    make(map[string]*domain.Position),
		byOrder: make(map[string]*domain.Position),
	}
}

// Add stores a copy of pos. An existing entry with the same ID is replaced.
func (b *positionBook) Add(pos *domain.Position) {
	b.Remove(pos.ID)
	p := pos.Clone()
	b.byID[p.ID] = p
	if p.Order != "" {
		b.byOrder[p.Order] = p
	}
}

// Remove drops the entry with the given client ID from both indices.
func (b *positionBook) Remove(id string) {
	p, ok := b.byID[id]
	if !ok {
		return
	}
	delete(b.byID, id)
	if p.Order != "" && b.byOrder[p.Order] == p {
		delete(b.byOrder, p.Order)
	}
}

// Find looks an entry up by client ID, then by broker Order.
func (b *positionBook) Find(id, order string) *domain.Position {
	if id != "" {
		if p, ok := b.byID[id]; ok {
			return p
		}
	}
	if order != "" {
		if p, ok := b.byOrder[order]; ok {
			return p
		}
	}
	return nil
}

// Len returns the number of cached positions.
func (b *positionBook) Len() int {
	return len(b.byID)
}

// Snapshot returns copies of every cached position.
func (b *positionBook) Snapshot() []*domain.Position {
	out := make([]*domain.Position, 0, len(b.byID))
	for _, p := range b.byID {
		out = append(out, p.Clone())
	}
	return out
}

// Apply merges a push into the matching cached entry and reports the resulting transition along
// with a copy of the entry after the change. A push that matches nothing changes nothing.
func (b *positionBook) Apply(push *domain.Position) (transition, *domain.Position) {
	cached := b.Find(push.ID, push.Order)
	if cached == nil {
		return transitionNone, nil
	}

	switch push.Status {
	case domain.StatusPending:
		return transitionNone, nil

	case domain.StatusRejected:
		if cached.Opened {
			return transitionRefused, cached.Clone()
		}
		b.Remove(cached.ID)
		cached.Status = domain.StatusRejected
		cached.Opened = false
		return transitionRejected, cached.Clone()

	case domain.StatusOpen:
		if cached.Opened {
			return transitionNone, nil
		}
		cached.Opened = true
		cached.OpenPrice = push.OpenPrice
		cached.DateOpen = push.DateOpen
		cached.StopLoss = push.StopLoss
		cached.TakeProfit = push.TakeProfit
		cached.Status = domain.StatusOpen
		if push.Order != "" && push.Order != cached.Order {
			if cached.Order != "" {
				delete(b.byOrder, cached.Order)
			}
			cached.Order = push.Order
			b.byOrder[cached.Order] = cached
		}
		return transitionOpened, cached.Clone()

	case domain.StatusUpdated:
		cached.Profit = push.Profit
		if push.StopLoss != 0 && push.StopLoss != cached.StopLoss {
			cached.StopLoss = push.StopLoss
		}
		if push.TakeProfit != 0 && push.TakeProfit != cached.TakeProfit {
			cached.TakeProfit = push.TakeProfit
		}
		if push.CurrentPrice != 0 {
			cached.CurrentPrice = push.CurrentPrice
		}
		// Pending entries keep their status; only confirmed ones move to Updated.
		if cached.Opened {
			cached.Status = domain.StatusUpdated
		}
		return transitionUpdated, cached.Clone()

	case domain.StatusClose:
		b.Remove(cached.ID)
		cached.Profit = push.Profit
		cached.StopLoss = push.StopLoss
		cached.TakeProfit = push.TakeProfit
		cached.DateClose = push.DateClose
		cached.ClosePrice = push.ClosePrice
		cached.ReasonClosed = push.ReasonClosed
		cached.Opened = false
		cached.Status = domain.StatusClose
		return transitionClosed, cached.Clone()
	}
	return transitionNone, nil
}
