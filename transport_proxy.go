package mqttd

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// SOCKS5Dialer routes connections through a SOCKS5 proxy. It implements
// Dialer for MQTT transports and exposes DialContext for other clients,
// such as the relay's Redis connection, that take a raw dial function.
type SOCKS5Dialer struct {
	dialer proxy.ContextDialer
}

// NewSOCKS5Dialer creates a dialer that tunnels through the SOCKS5 proxy at
// proxyAddr. auth may be nil for an unauthenticated proxy.
func NewSOCKS5Dialer(proxyAddr string, auth *proxy.Auth) (*SOCKS5Dialer, error) {
	d, err := proxy.SOCKS5("tcp", proxyAddr, auth, &net.Dialer{})
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer: %T does not support contexts", d)
	}

	return &SOCKS5Dialer{dialer: cd}, nil
}

// Dial connects to the address through the proxy.
func (d *SOCKS5Dialer) Dial(ctx context.Context, address string) (Conn, error) {
	return d.DialContext(ctx, "tcp", address)
}

// DialContext connects to the address through the proxy. The signature
// matches the dial hooks of common client libraries.
func (d *SOCKS5Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.dialer.DialContext(ctx, network, address)
}
