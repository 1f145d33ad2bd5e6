package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokerBot/internal/adapters/logger"
	"brokerBot/internal/ports"
)

// testServer is an in-process TLS listener backed by a freshly generated self-signed certificate.
type testServer struct {
	listener net.Listener
	roots    *x509.CertPool
	conns    chan *tls.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "venue-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,

		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(cert)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)

	s := &testServer{listener: ln, roots: roots, conns: make(chan *tls.Conn, 4)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			tc := c.(*tls.Conn)
			if err := tc.Handshake(); err != nil {
				_ = tc.Close()
				continue
			}
			s.conns <- tc
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *testServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *testServer) config(trusted bool) Config {
	cfg := Config{
		Name:             "test",
		Host:             "127.0.0.1",
		Port:             s.port(),
		ConnectTimeout:   time.Second,
		HandshakeTimeout: 2 * time.Second,
	}
	if trusted {
		cfg.TLSConfig = &tls.Config{RootCAs: s.roots}
	}
	return cfg
}

func (s *testServer) accept(t *testing.T) *tls.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept a connection")
		return nil
	}
}

func TestSession_SendReceive(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(srv.config(true), logger.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	assert.True(t, s.IsConnected())

	peer := srv.accept(t)
	require.NoError(t, s.Send(ctx, `{"command":"ping"}`))

	buf := make([]byte, 64)
	n, err := peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, `{"command":"ping"}`, string(buf[:n]))

	_, err = peer.Write([]byte("{\"status\":true,\n\"returnData\":{}}\n\n"))
	require.NoError(t, err)

	msg, err := s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"status":true,"returnData":{}}`, msg)
}

func TestSession_ConnectIsNoopWhenConnected(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(srv.config(true), logger.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	srv.accept(t)
	require.NoError(t, s.Connect(ctx))

	select {
	case <-srv.conns:
		t.Fatal("second Connect dialled again")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSession_UntrustedCertificate(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(srv.config(false), logger.NewNop())

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTLSValidation)
	assert.False(t, s.IsConnected())
}

func TestSession_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s := NewSession(Config{Host: "127.0.0.1", Port: port, ConnectTimeout: time.Second}, logger.NewNop())
	err = s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestSession_NotConnected(t *testing.T) {
	s := NewSession(Config{Host: "127.0.0.1", Port: 1}, logger.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, s.Send(ctx, "x"), ports.ErrNotConnected)
	_, err := s.Receive(ctx)
	assert.ErrorIs(t, err, ports.ErrNotConnected)
}

func TestSession_CloseFiresDisconnectOnce(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(srv.config(true), logger.NewNop())
	var fired atomic.Int32
	s.SetDisconnectHandler(func() { fired.Add(1) })

	require.NoError(t, s.Connect(context.Background()))
	srv.accept(t)

	s.Close()
	s.Close()
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, s.IsConnected())

	// A new connection is a new transition.
	require.NoError(t, s.Connect(context.Background()))
	srv.accept(t)
	s.Close()
	assert.Equal(t, int32(2), fired.Load())
}

func TestSession_ReceiveCancelForceCloses(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(srv.config(true), logger.NewNop())
	var fired atomic.Int32
	s.SetDisconnectHandler(func() { fired.Add(1) })

	require.NoError(t, s.Connect(context.Background()))
	srv.accept(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Receive(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTimeout)
	assert.False(t, s.IsConnected())
	assert.Equal(t, int32(1), fired.Load())
}

func TestSession_PeerCloseIsCommunicationError(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(srv.config(true), logger.NewNop())

	require.NoError(t, s.Connect(context.Background()))
	peer := srv.accept(t)
	_, _ = peer.Write([]byte("{\"partial\":"))
	require.NoError(t, peer.Close())

	_, err := s.Receive(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrCommunication)
	assert.False(t, s.IsConnected())
}

