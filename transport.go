package mqttd

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Conn is one client transport connection. Every transport (TCP, TLS,
// WebSocket, QUIC) reduces to a byte stream carrying MQTT packets.
type Conn interface {
	net.Conn
}

// Listener accepts incoming client connections for the broker.
type Listener interface {
	// Accept waits for and returns the next connection.
	Accept() (Conn, error)

	// Close closes the listener. Blocked Accept calls return an error.
	Close() error

	// Addr returns the listener's network address.
	Addr() net.Addr
}

// Dialer establishes outbound connections, used by tests and tooling that
// drive the broker over a real transport.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (Conn, error)
}

// TCPListener accepts plain TCP connections.
type TCPListener struct {
	listener net.Listener
}

// NewTCPListener creates a TCP listener on the given address.
func NewTCPListener(address string) (*TCPListener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: l}, nil
}

// Accept waits for and returns the next connection.
func (l *TCPListener) Accept() (Conn, error) {
	return l.listener.Accept()
}

// Close closes the listener.
func (l *TCPListener) Close() error {
	return l.listener.Close()
}

// Addr returns the listener's network address.
func (l *TCPListener) Addr() net.Addr {
	return l.listener.Addr()
}

// TLSListener accepts TLS connections.
type TLSListener struct {
	listener net.Listener
}

// NewTLSListener creates a TLS listener on the given address.
func NewTLSListener(address string, config *tls.Config) (*TLSListener, error) {
	l, err := tls.Listen("tcp", address, config)
	if err != nil {
		return nil, err
	}
	return &TLSListener{listener: l}, nil
}

// Accept waits for and returns the next connection.
func (l *TLSListener) Accept() (Conn, error) {
	return l.listener.Accept()
}

// Close closes the listener.
func (l *TLSListener) Close() error {
	return l.listener.Close()
}

// Addr returns the listener's network address.
func (l *TLSListener) Addr() net.Addr {
	return l.listener.Addr()
}

// TCPDialer connects over plain TCP.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, "tcp", address)
}

// TLSDialer connects over TLS.
type TLSDialer struct {
	// Config is the TLS configuration.
	Config *tls.Config

	// Timeout bounds connection establishment. Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the address.
func (d *TLSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config:    d.Config,
	}
	return dialer.DialContext(ctx, "tcp", address)
}
