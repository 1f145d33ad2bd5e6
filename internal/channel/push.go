package channel

import (
	"fmt"

	"github.com/bytedance/sonic"

	"brokerBot/internal/ports"
)

// PushKind is the closed set of streaming messages the ingester understands.
type PushKind int

const (
	PushUnknown PushKind = iota
	PushTick
	PushTrade
	PushTradeStatus
	PushBalance
	PushNews
	PushKeepAlive
	PushProfit
)

var pushCommands = map[string]PushKind{
	"tickPrices":  PushTick,
	"trade":       PushTrade,
	"tradeStatus": PushTradeStatus,
	"balance":     PushBalance,
	"news":        PushNews,
	"keepAlive":   PushKeepAlive,
	"profit":      PushProfit,
}

func (k PushKind) String() string {
	switch k {
	case PushTick:
		return "tick"
	case PushTrade:
		return "trade"
	case PushTradeStatus:
		return "tradeStatus"
	case PushBalance:
		return "balance"
	case PushNews:
		return "news"
	case PushKeepAlive:
		return "keepAlive"
	case PushProfit:
		return "profit"
	default:
		return "unknown"
	}
}

// ParsePushKind maps the envelope discriminator to a kind. Unrecognised values are PushUnknown.
func ParsePushKind(command string) PushKind {
	if k, ok := pushCommands[command]; ok {
		return k
	}
	return PushUnknown
}

// Push is one classified streaming message. Data holds the raw JSON found under "data".
type Push struct {
	Kind    PushKind
	Command string
	Data    string
}

// ClassifyPush reads the discriminator of a push envelope without decoding its payload.
func ClassifyPush(msg string) (Push, error) {
	cmdNode, err := sonic.GetFromString(msg, "command")
	if err != nil {
		return Push{}, fmt.Errorf("%w: push without command field: %w", ports.ErrProtocol, err)
	}
	command, err := cmdNode.StrictString()
	if err != nil {
		return Push{}, fmt.Errorf("%w: push command is not a string: %w", ports.ErrProtocol, err)
	}

	push := Push{Kind: ParsePushKind(command), Command: command}
	if dataNode, err := sonic.GetFromString(msg, "data"); err == nil {
		if raw, err := dataNode.Raw(); err == nil {
			push.Data = raw
		}
	}
	return push, nil
}
