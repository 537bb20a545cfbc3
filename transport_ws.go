package mqttd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSubprotocol is the registered MQTT WebSocket subprotocol name.
const WebSocketSubprotocol = "mqtt"

// ErrListenerClosed is returned by Accept after the listener is closed.
var ErrListenerClosed = errors.New("mqttd: listener closed")

// wsConn adapts a WebSocket connection to the Conn byte stream. MQTT frames
// may span or share WebSocket binary messages, so reads buffer the current
// message and drain it across calls.
type wsConn struct {
	conn    *websocket.Conn
	buf     []byte
	readPos int
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

// Read reads bytes, pulling the next binary message when the buffer drains.
func (c *wsConn) Read(p []byte) (int, error) {
	if c.readPos < len(c.buf) {
		n := copy(p, c.buf[c.readPos:])
		c.readPos += n
		return n, nil
	}

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	if messageType != websocket.BinaryMessage {
		return 0, ErrProtocolViolation
	}

	c.buf = data
	c.readPos = copy(p, data)
	return c.readPos, nil
}

// Write sends the bytes as one binary message.
func (c *wsConn) Write(b []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close closes the connection.
func (c *wsConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local network address.
func (c *wsConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline sets the read and write deadlines.
func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// WSListener serves MQTT over WebSocket: an HTTP server upgrades requests
// on the configured path and hands the resulting streams to Accept.
type WSListener struct {
	httpServer *http.Server
	netlis     net.Listener
	upgrader   websocket.Upgrader
	conns      chan Conn
	done       chan struct{}
}

// NewWSListener creates a WebSocket listener on the given address serving
// upgrades at path (for example "/mqtt").
func NewWSListener(address, path string) (*WSListener, error) {
	netlis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	l := &WSListener{
		netlis: netlis,
		upgrader: websocket.Upgrader{
			Subprotocols:    []string{WebSocketSubprotocol},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(chan Conn),
		done:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.upgrade)
	l.httpServer = &http.Server{Handler: mux}

	go l.httpServer.Serve(netlis)

	return l, nil
}

func (l *WSListener) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case l.conns <- newWSConn(conn):
	case <-l.done:
		conn.Close()
	}
}

// Accept waits for and returns the next upgraded connection.
func (l *WSListener) Accept() (Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

// Close shuts down the HTTP server and releases blocked Accept calls.
func (l *WSListener) Close() error {
	select {
	case <-l.done:
		return nil
	default:
	}
	close(l.done)
	return l.httpServer.Close()
}

// Addr returns the listener's network address.
func (l *WSListener) Addr() net.Addr {
	return l.netlis.Addr()
}

// WSDialer connects over WebSocket.
type WSDialer struct {
	// Dialer is the underlying WebSocket dialer. Nil uses a dialer with the
	// MQTT subprotocol preset.
	Dialer *websocket.Dialer

	// Header is sent with the upgrade request.
	Header http.Header
}

// NewWSDialer creates a WebSocket dialer with the MQTT subprotocol.
func NewWSDialer() *WSDialer {
	return &WSDialer{
		Dialer: &websocket.Dialer{
			Subprotocols:    []string{WebSocketSubprotocol},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Dial connects to the WebSocket URL (for example "ws://host:port/mqtt").
func (d *WSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, address, d.Header)
	if err != nil {
		return nil, err
	}
	return newWSConn(conn), nil
}
