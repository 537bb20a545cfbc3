package mqttd

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSListenerRoundTrip(t *testing.T) {
	listener, err := NewWSListener("127.0.0.1:0", "/mqtt")
	require.NoError(t, err)
	defer listener.Close()

	srv := NewServerWithListener(listener)
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	url := fmt.Sprintf("ws://%s/mqtt", listener.Addr())
	conn, err := NewWSDialer().Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	writeTestPacket(t, conn, &ConnectPacket{
		Version:    ProtocolV50,
		ClientID:   "ws-client",
		CleanStart: true,
	}, ProtocolV50)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	pkt, _, err := ReadPacket(conn, ProtocolV50, 0)
	require.NoError(t, err)

	connack, ok := pkt.(*ConnackPacket)
	require.True(t, ok, "expected CONNACK, got %s", pkt.Type())
	assert.Equal(t, ReasonSuccess, connack.ReasonCode)

	writeTestPacket(t, conn, &PingreqPacket{}, ProtocolV50)
	pkt, _, err = ReadPacket(conn, ProtocolV50, 0)
	require.NoError(t, err)
	assert.Equal(t, PacketPINGRESP, pkt.Type())
}

func TestWSListenerClosed(t *testing.T) {
	listener, err := NewWSListener("127.0.0.1:0", "/mqtt")
	require.NoError(t, err)

	require.NoError(t, listener.Close())
	require.NoError(t, listener.Close()) // idempotent

	_, err = listener.Accept()
	assert.ErrorIs(t, err, ErrListenerClosed)
}

func TestTCPDialer(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServerWithListener(listener)
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	dialer := &TCPDialer{Timeout: 5 * time.Second}
	conn, err := dialer.Dial(context.Background(), listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	writeTestPacket(t, conn, &ConnectPacket{
		Version:    ProtocolV50,
		ClientID:   "tcp-client",
		CleanStart: true,
	}, ProtocolV50)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	pkt, _, err := ReadPacket(conn, ProtocolV50, 0)
	require.NoError(t, err)
	assert.Equal(t, PacketCONNACK, pkt.Type())
}
