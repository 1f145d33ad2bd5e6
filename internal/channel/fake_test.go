package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"brokerBot/internal/ports"
)

type sendRecord struct {
	text  string
	start time.Time
	end   time.Time
}

// fakeTransport records every write and serves queued messages to Receive.
type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	sends        []sendRecord
	log          []string
	sendErr      error
	connectErr   error
	onDisconnect func()
	closes       int

	inbox    chan string
	closed   chan struct{}
	recvHold time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan string, 64), closed: make(chan struct{})}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	if !f.connected {
		f.connected = true
		f.closed = make(chan struct{})
	}
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, text string) error {
	start := time.Now()
	f.mu.Lock()
	f.log = append(f.log, "send:"+text)
	err := f.sendErr
	f.mu.Unlock()
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sendRecord{text: text, start: start, end: time.Now()})
	if err != nil {
		return err
	}
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) (string, error) {
	f.mu.Lock()
	closed := f.closed
	hold := f.recvHold
	f.mu.Unlock()

	if hold > 0 {
		time.Sleep(hold)
	}
	select {
	case msg := <-f.inbox:
		f.mu.Lock()
		f.log = append(f.log, "recv:"+msg)
		f.mu.Unlock()
		return msg, nil
	case <-closed:
		return "", fmt.Errorf("%w: closed", ports.ErrCommunication)
	case <-ctx.Done():
		_ = f.Close()
		return "", fmt.Errorf("%w: %w", ports.ErrTimeout, ctx.Err())
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	wasConnected := f.connected
	f.connected = false
	handler := f.onDisconnect
	if wasConnected {
		close(f.closed)
	}
	f.mu.Unlock()
	if wasConnected && handler != nil {
		handler()
	}
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) SetDisconnectHandler(fn func()) {
	f.mu.Lock()
	f.onDisconnect = fn
	f.mu.Unlock()
}

func (f *fakeTransport) sendRecords() []sendRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendRecord(nil), f.sends...)
}

func (f *fakeTransport) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

var errBoom = errors.New("boom")

// recordingLogger is a concurrency-safe ports.Logger that keeps every message.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

func (l *recordingLogger) add(level, msg string, fields []map[string]interface{}) {
	merged := map[string]interface{}{}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: merged})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.add("debug", msg, fields)
}

func (l *recordingLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.add("info", msg, fields)
}

func (l *recordingLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.add("warn", msg, fields)
}

func (l *recordingLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.add("error", msg, fields)
}

func (l *recordingLogger) byLevel(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}
