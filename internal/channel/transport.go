// Package channel frames venue traffic into request/response commands and streaming pushes.
package channel

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"brokerBot/internal/ports"
)

// Transport is the connection a channel runs over; *transport.Session satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, text string) error
	Receive(ctx context.Context) (string, error)
	Close() error
	IsConnected() bool
	SetDisconnectHandler(fn func())
}

var secretPattern = regexp.MustCompile(`(?i)("(?:password|apiKey|appKey|userId)"\s*:\s*)("(?:[^"\\]|\\.)*"|-?[0-9]+)`)

// Redact masks credential values in a JSON payload before it reaches the logs.
func Redact(payload string) string {
	return secretPattern.ReplaceAllString(payload, `${1}"***"`)
}

// communicationError makes sure a transport failure matches ErrCommunication, ErrTimeout or
// ErrNotConnected, whatever the transport implementation returned.
func communicationError(op string, err error) error {
	if errors.Is(err, ports.ErrCommunication) || errors.Is(err, ports.ErrTimeout) || errors.Is(err, ports.ErrNotConnected) {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return fmt.Errorf("%s failed: %w: %w", op, ports.ErrCommunication, err)
}
