// Package transport implements the TLS-over-TCP session used for both venue sockets.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"brokerBot/internal/ports"
)

const (
	DefaultConnectTimeout   = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	defaultKeepAlive        = 30 * time.Second
	readBufferSize          = 64 << 10
)

// Config describes one venue socket.
type Config struct {
	Name             string // Used in logs, e.g. "command" or "stream"
	Host             string
	Port             int
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	TLSConfig        *tls.Config // Optional; MinVersion is raised to TLS 1.2 if lower
}

// Session is one SSL-wrapped TCP connection.
//
// Send and Receive may run concurrently with each other; concurrent Sends (or Receives) are
// serialized. There is no retry logic here: reconnecting is the caller's decision.
type Session struct {
	cfg    Config
	logger ports.Logger

	mu           sync.Mutex // Protects conn, reader and onDisconnect
	conn         net.Conn
	reader       *bufio.Reader
	onDisconnect func()

	writeMu   sync.Mutex
	readMu    sync.Mutex
	connected atomic.Bool
}

// NewSession creates a disconnected session.
func NewSession(cfg Config, logger ports.Logger) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Session{cfg: cfg, logger: logger}
}

// Addr returns host:port.
func (s *Session) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// SetDisconnectHandler registers fn, called once per connected -> disconnected transition.
func (s *Session) SetDisconnectHandler(fn func()) {
	s.mu.Lock()
	s.onDisconnect = fn
	s.mu.Unlock()
}

// IsConnected reports whether the TLS session is established.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// Connect dials the venue and performs the TLS handshake, each bounded by its own timeout.
func (s *Session) Connect(ctx context.Context) error {
	if s.connected.Load() {
		return nil
	}
	addr := s.Addr()
	fields := map[string]interface{}{"session": s.cfg.Name, "addr": addr}

	dialCtx, cancelDial := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	dialer := net.Dialer{KeepAlive: defaultKeepAlive}
	raw, err := dialer.DialContext(dialCtx, "tcp", addr)
	cancelDial()
	if err != nil {
		if isTimeout(err) {
			err = fmt.Errorf("connect %s: %w: %w", addr, ports.ErrTimeout, err)
		} else {
			err = fmt.Errorf("connect %s: %w: %w", addr, ports.ErrConnectionFailed, err)
		}
		s.logger.Error(ctx, err, "TCP connect failed", fields)
		return err
	}
	if tcpConn, ok := raw.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	tlsConn := tls.Client(raw, s.tlsConfig())
	hsCtx, cancelHs := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	err = tlsConn.HandshakeContext(hsCtx)
	cancelHs()
	if err != nil {
		_ = raw.Close()
		var verr *tls.CertificateVerificationError
		switch {
		case errors.As(err, &verr):
			err = fmt.Errorf("handshake %s: %w: %w", addr, ports.ErrTLSValidation, err)
		case isTimeout(err):
			err = fmt.Errorf("handshake %s: %w: %w", addr, ports.ErrTimeout, err)
		default:
			err = fmt.Errorf("handshake %s: %w: %w", addr, ports.ErrConnectionFailed, err)
		}
		s.logger.Error(ctx, err, "TLS handshake failed", fields)
		return err
	}

	s.mu.Lock()
	s.conn = tlsConn
	s.reader = bufio.NewReaderSize(tlsConn, readBufferSize)
	s.mu.Unlock()
	s.connected.Store(true)
	s.logger.Info(ctx, "Session connected", fields)
	return nil
}

func (s *Session) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if s.cfg.TLSConfig != nil {
		cfg = s.cfg.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = s.cfg.Host
	}
	if cfg.MinVersion < tls.VersionTLS12 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

// Send writes text to the venue. Any I/O error force-closes the session.
func (s *Session) Send(ctx context.Context, text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn := s.currentConn()
	if conn == nil {
		return fmt.Errorf("send on %s session: %w", s.cfg.Name, ports.ErrNotConnected)
	}
	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)

	if _, err := conn.Write([]byte(text)); err != nil {
		s.Close()
		if ctx.Err() != nil || isTimeout(err) {
			return fmt.Errorf("send on %s session: %w: %w", s.cfg.Name, ports.ErrTimeout, err)
		}
		return fmt.Errorf("send on %s session: %w: %w", s.cfg.Name, ports.ErrCommunication, err)
	}
	return nil
}

// Receive blocks until one complete frame arrives. Cancelling ctx force-closes the session so no
// half-consumed frame is left behind, and the call fails with ErrTimeout.
func (s *Session) Receive(ctx context.Context) (string, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	s.mu.Lock()
	conn, reader := s.conn, s.reader
	s.mu.Unlock()
	if conn == nil {
		return "", fmt.Errorf("receive on %s session: %w", s.cfg.Name, ports.ErrNotConnected)
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	msg, err := ReadFrame(reader)
	if err != nil {
		s.Close()
		if ctx.Err() != nil {
			return "", fmt.Errorf("receive on %s session: %w: %w", s.cfg.Name, ports.ErrTimeout, ctx.Err())
		}
		return "", fmt.Errorf("receive on %s session: %w: %w", s.cfg.Name, ports.ErrCommunication, err)
	}
	return msg, nil
}

// Close tears the connection down. It is idempotent; the disconnect handler fires only when the
// session was connected.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.reader = nil
	handler := s.onDisconnect
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if s.connected.CompareAndSwap(true, false) {
		s.logger.Info(context.Background(), "Session disconnected", map[string]interface{}{"session": s.cfg.Name})
		if handler != nil {
			handler()
		}
	}
	return err
}

func (s *Session) currentConn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
