package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"brokerBot/internal/ports"
)

const (
	DefaultMinInterval    = 200 * time.Millisecond
	DefaultReceiveTimeout = 30 * time.Second
)

// CommandConfig tunes a CommandChannel.
type CommandConfig struct {
	MinInterval    time.Duration // Floor between two command writes; zero disables spacing
	ReceiveTimeout time.Duration // Upper bound on waiting for a response
}

// CommandChannel runs one request/response exchange at a time.
//
// The wire protocol carries no message ids, so a response is matched to its request purely by
// order: the lock is held across the write and the read.
type CommandChannel struct {
	transport Transport
	logger    ports.Logger
	cfg       CommandConfig

	mu       sync.Mutex // Held for a whole exchange; guards lastSend
	lastSend time.Time
}

// NewCommandChannel creates a CommandChannel over t.
func NewCommandChannel(t Transport, cfg CommandConfig, logger ports.Logger) *CommandChannel {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = DefaultReceiveTimeout
	}
	return &CommandChannel{transport: t, logger: logger, cfg: cfg}
}

// Connect opens the underlying transport.
func (c *CommandChannel) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// IsConnected reports the transport state.
func (c *CommandChannel) IsConnected() bool {
	return c.transport.IsConnected()
}

// SetDisconnectHandler forwards fn to the transport.
func (c *CommandChannel) SetDisconnectHandler(fn func()) {
	c.transport.SetDisconnectHandler(fn)
}

// Close closes the transport.
func (c *CommandChannel) Close() error {
	return c.transport.Close()
}

// SendAndReceive writes cmd and waits for the matching response.
// A transport failure closes the channel; the caller has to log in again to resume.
func (c *CommandChannel) SendAndReceive(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.awaitSpacing(ctx); err != nil {
		return "", err
	}

	c.logger.Debug(ctx, "Sending command", map[string]interface{}{"payload": Redact(cmd)})
	err := c.transport.Send(ctx, cmd)
	c.lastSend = time.Now()
	if err != nil {
		_ = c.transport.Close()
		return "", communicationError("send command", err)
	}

	recvCtx, cancel := context.WithTimeout(ctx, c.cfg.ReceiveTimeout)
	defer cancel()
	resp, err := c.transport.Receive(recvCtx)
	if err != nil {
		_ = c.transport.Close()
		return "", communicationError("receive response", err)
	}
	c.logger.Debug(ctx, "Received response", map[string]interface{}{"payload": Redact(resp)})
	return resp, nil
}

// awaitSpacing sleeps until MinInterval has passed since the previous write completed.
func (c *CommandChannel) awaitSpacing(ctx context.Context) error {
	if c.lastSend.IsZero() || c.cfg.MinInterval == 0 {
		return nil
	}
	wait := c.cfg.MinInterval - time.Since(c.lastSend)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("await command spacing: %w: %w", ports.ErrTimeout, ctx.Err())
	}
}
