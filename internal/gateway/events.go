package gateway

import (
	"brokerBot/internal/domain"
	"brokerBot/internal/events"
)

// Channel names carried by the Disconnected event.
const (
	ChannelCommand = "command"
	ChannelStream  = "stream"
)

// Events are the notifications a Gateway publishes.
//
// Position, tick, balance and news events are published on the streaming goroutine; handlers must
// return quickly and must not call Gateway.Close. Position payloads are copies detached from the
// cache, shared by all handlers of one event; treat them as read-only.
type Events struct {
	PositionOpened   events.Event[*domain.Position]
	PositionUpdated  events.Event[*domain.Position]
	PositionRejected events.Event[*domain.Position]
	PositionRefused  events.Event[*domain.Position] // A modify or close of an open position was refused
	PositionClosed   events.Event[*domain.Position]
	Tick             events.Event[*domain.Tick]
	NewBalance       events.Event[*domain.AccountBalance]
	News             events.Event[*domain.News]
	Connected        events.Event[struct{}]
	Disconnected     events.Event[string]
}
