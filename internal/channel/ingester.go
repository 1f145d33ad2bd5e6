package channel

import (
	"context"
	"fmt"
	"sync"

	"brokerBot/internal/ports"
)

// PushHandler consumes one classified push. Returned errors are logged, never fatal to the loop.
type PushHandler func(ctx context.Context, push Push) error

// Ingester owns the streaming connection and the goroutine that reads from it.
//
// Handlers run synchronously on the receive goroutine. There is no buffering or backpressure: a
// slow handler delays every push behind it.
type Ingester struct {
	transport Transport
	logger    ports.Logger

	handlersMu sync.RWMutex
	handlers   map[PushKind]PushHandler

	loopMu sync.Mutex // Guards cancel and done
	cancel context.CancelFunc
	done   chan struct{}
}

// NewIngester creates an Ingester over t.
func NewIngester(t Transport, logger ports.Logger) *Ingester {
	return &Ingester{
		transport: t,
		logger:    logger,
		handlers:  make(map[PushKind]PushHandler),
	}
}

// Handle registers h for kind, replacing any previous handler. PushUnknown cannot be handled.
func (i *Ingester) Handle(kind PushKind, h PushHandler) {
	if kind == PushUnknown {
		return
	}
	i.handlersMu.Lock()
	i.handlers[kind] = h
	i.handlersMu.Unlock()
}

// IsConnected reports the transport state.
func (i *Ingester) IsConnected() bool {
	return i.transport.IsConnected()
}

// SetDisconnectHandler forwards fn to the transport.
func (i *Ingester) SetDisconnectHandler(fn func()) {
	i.transport.SetDisconnectHandler(fn)
}

// Connect opens the transport and starts the receive loop. A loop left over from a previous
// connection is stopped first.
func (i *Ingester) Connect(ctx context.Context) error {
	i.stop()
	if err := i.transport.Connect(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	i.loopMu.Lock()
	i.cancel, i.done = cancel, done
	i.loopMu.Unlock()

	go i.run(loopCtx, done)
	return nil
}

// Send writes a streaming command (subscriptions, ping). No response is expected.
func (i *Ingester) Send(ctx context.Context, cmd string) error {
	i.logger.Debug(ctx, "Sending stream command", map[string]interface{}{"payload": Redact(cmd)})
	if err := i.transport.Send(ctx, cmd); err != nil {
		_ = i.transport.Close()
		return communicationError("send stream command", err)
	}
	return nil
}

// Close stops the loop and closes the transport. It waits for the loop to exit, so it must not
// be called from a push handler.
func (i *Ingester) Close() error {
	i.loopMu.Lock()
	if i.cancel != nil {
		i.cancel()
	}
	i.loopMu.Unlock()
	err := i.transport.Close()
	i.stop()
	return err
}

func (i *Ingester) stop() {
	i.loopMu.Lock()
	cancel, done := i.cancel, i.done
	i.cancel, i.done = nil, nil
	i.loopMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (i *Ingester) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	i.logger.Info(ctx, "Streaming loop started")
	defer i.logger.Info(context.Background(), "Streaming loop stopped")

	for ctx.Err() == nil && i.transport.IsConnected() {
		msg, err := i.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				i.logger.Error(ctx, err, "Streaming receive failed")
			}
			return
		}
		i.dispatch(ctx, msg)
	}
}

// dispatch classifies and delivers one message. Nothing raised here may end the loop.
func (i *Ingester) dispatch(ctx context.Context, msg string) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error(ctx, fmt.Errorf("push handler panic: %v", r), "Recovered from push handler panic")
		}
	}()

	push, err := ClassifyPush(msg)
	if err != nil {
		i.logger.Warn(ctx, "Dropping malformed push", map[string]interface{}{"error": err.Error(), "payload": Redact(msg)})
		return
	}

	i.handlersMu.RLock()
	h := i.handlers[push.Kind]
	i.handlersMu.RUnlock()

	if push.Kind == PushUnknown || h == nil {
		i.logger.Warn(ctx, "Dropping unhandled push", map[string]interface{}{"command": push.Command})
		return
	}
	if err := h(ctx, push); err != nil {
		i.logger.Error(ctx, err, "Push handler failed", map[string]interface{}{"kind": push.Kind.String()})
	}
}
