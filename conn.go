package mqttd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ConnState is the lifecycle state of a client connection.
type ConnState int32

const (
	// StateAwaitingConnect is the initial state before CONNECT arrives.
	StateAwaitingConnect ConnState = iota

	// StateEstablished means CONNACK was sent and traffic flows.
	StateEstablished

	// StateDisconnecting means the connection is shutting down in an
	// orderly way and inbound packets are no longer processed.
	StateDisconnecting

	// StateClosed means the transport is closed.
	StateClosed
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateAwaitingConnect:
		return "awaiting-connect"
	case StateEstablished:
		return "established"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// errCleanDisconnect ends the read loop after a client DISCONNECT.
var errCleanDisconnect = errors.New("mqttd: clean disconnect")

// ClientConn is one client connection from accept to close. It decodes the
// CONNECT handshake, binds a session, then processes packets until the
// client disconnects, the keep alive window lapses, the input turns
// malformed, or the session is taken over.
type ClientConn struct {
	server *Server
	conn   Conn

	state atomic.Int32

	// writeMu serializes packet writes; the router delivers from publisher
	// goroutines concurrently with acknowledgments from the read loop.
	writeMu sync.Mutex

	version    ProtocolVersion
	identity   string
	assignedID bool

	// readWindow is 1.5 times the negotiated keep alive, zero when keep
	// alive is disabled.
	readWindow time.Duration

	session    *Session
	generation uint64

	limiter *rate.Limiter

	// qos2Pending holds inbound QoS 2 packet identifiers between PUBLISH
	// and PUBREL so a retransmitted PUBLISH is acknowledged but not routed
	// twice.
	qos2Mu      sync.Mutex
	qos2Pending map[uint16]struct{}
}

func newClientConn(server *Server, conn Conn) *ClientConn {
	c := &ClientConn{
		server:      server,
		conn:        conn,
		qos2Pending: make(map[uint16]struct{}),
	}
	if server.config.publishRate != rate.Inf && server.config.publishRate > 0 {
		c.limiter = rate.NewLimiter(server.config.publishRate, server.config.publishBurst)
	}
	return c
}

// Identity returns the client identifier, empty before CONNECT completes.
func (c *ClientConn) Identity() string {
	return c.identity
}

// Version returns the negotiated protocol version, zero before CONNECT.
func (c *ClientConn) Version() ProtocolVersion {
	return c.version
}

// AssignedID reports whether the server generated the client identifier.
func (c *ClientConn) AssignedID() bool {
	return c.assignedID
}

// Session returns the bound session, nil before CONNECT completes.
func (c *ClientConn) Session() *Session {
	return c.session
}

// State returns the connection state.
func (c *ClientConn) State() ConnState {
	return ConnState(c.state.Load())
}

// RemoteAddr returns the transport remote address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// serve runs the connection to completion. Called on its own goroutine by
// the server's accept loop.
func (c *ClientConn) serve() {
	defer c.finish()

	if err := c.handshake(); err != nil {
		return
	}

	if fn := c.server.config.onConnect; fn != nil {
		fn(c)
	}

	c.readLoop()
}

// handshake reads CONNECT, authenticates, binds the session and replies
// with CONNACK.
func (c *ClientConn) handshake() error {
	cfg := c.server.config

	c.conn.SetReadDeadline(time.Now().Add(cfg.connectTimeout))

	pkt, _, err := ReadPacket(c.conn, 0, cfg.maxPacketSize)
	if err != nil {
		if errors.Is(err, ErrUnsupportedVersion) {
			// The protocol level is unknown, so refuse in the oldest
			// dialect we speak.
			WritePacket(c.conn, &ConnackPacket{ReasonCode: ReasonUnsupportedProtocolVersion}, ProtocolV311, 0)
		}
		if errors.Is(err, ErrMalformedPacket) {
			c.server.metrics.malformedPackets.Add(1)
		}
		return err
	}

	connect, ok := pkt.(*ConnectPacket)
	if !ok {
		return ErrProtocolViolation
	}
	c.version = connect.Version

	identity := connect.ClientID
	if identity == "" {
		if !connect.CleanStart {
			c.refuse(ReasonClientIDNotValid)
			return ErrInvalidReservedClientID
		}
		identity = uuid.NewString()
		c.assignedID = true
	}
	c.identity = identity

	if cfg.auth != nil {
		code, err := cfg.auth.Authenticate(context.Background(), &AuthRequest{
			ClientID:   identity,
			Username:   connect.Username,
			Password:   connect.Password,
			RemoteAddr: c.conn.RemoteAddr(),
		})
		if err != nil || code.IsError() {
			if !code.IsError() {
				code = ReasonNotAuthorized
			}
			c.refuse(code)
			if err == nil {
				err = fmt.Errorf("%w: connect refused: %s", ErrNotConnected, code)
			}
			return err
		}
	}

	keepAlive := connect.KeepAlive
	if cfg.keepAliveOverride > 0 {
		keepAlive = cfg.keepAliveOverride
	}
	if keepAlive > 0 {
		c.readWindow = time.Duration(keepAlive) * time.Second * 3 / 2
	}

	var outboundAliasMax uint16
	if c.version == ProtocolV50 {
		outboundAliasMax = connect.Props.GetUint16(PropTopicAliasMaximum)
	}

	result := c.server.sessions.Admit(AdmitRequest{
		Identity:         identity,
		CleanStart:       connect.CleanStart,
		ExpiryInterval:   connect.SessionExpiryInterval(),
		InboundAliasMax:  cfg.topicAliasMax,
		OutboundAliasMax: outboundAliasMax,
		Conn:             c,
	})
	c.session = result.Session
	c.generation = result.Generation

	// The superseded connection hears about the takeover before the new
	// one is confirmed.
	if result.Evicted != nil && result.Evicted != c {
		c.server.metrics.takeovers.Add(1)
		result.Evicted.Disconnect(ReasonSessionTakenOver)
	}

	connack := &ConnackPacket{
		SessionPresent: result.SessionPresent,
		ReasonCode:     ReasonSuccess,
	}
	if c.version == ProtocolV50 {
		if c.assignedID {
			connack.Props.Set(PropAssignedClientIdentifier, identity)
		}
		if cfg.keepAliveOverride > 0 {
			connack.Props.Set(PropServerKeepAlive, cfg.keepAliveOverride)
		}
		if cfg.topicAliasMax > 0 {
			connack.Props.Set(PropTopicAliasMaximum, cfg.topicAliasMax)
		}
		if cfg.maxPacketSize > 0 {
			connack.Props.Set(PropMaximumPacketSize, cfg.maxPacketSize)
		}
	}

	if err := c.writePacket(connack); err != nil {
		return err
	}

	c.state.Store(int32(StateEstablished))

	c.server.logger.Info("client connected", LogFields{
		LogFieldClientID:   identity,
		LogFieldVersion:    c.version.String(),
		LogFieldRemoteAddr: c.conn.RemoteAddr().String(),
	})

	return nil
}

func (c *ClientConn) readLoop() {
	cfg := c.server.config

	for {
		if c.readWindow > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.readWindow))
		} else {
			c.conn.SetReadDeadline(time.Time{})
		}

		pkt, _, err := ReadPacket(c.conn, c.version, cfg.maxPacketSize)
		if err != nil {
			c.handleReadError(err)
			return
		}

		if err := c.handlePacket(pkt); err != nil {
			return
		}
	}
}

func (c *ClientConn) handleReadError(err error) {
	if c.State() != StateEstablished {
		return
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		c.server.logger.Info("keep alive window lapsed", LogFields{
			LogFieldClientID: c.identity,
		})
		c.Disconnect(ReasonKeepAliveTimeout)

	case errors.Is(err, ErrPacketTooLarge):
		c.Disconnect(ReasonPacketTooLarge)

	case errors.Is(err, ErrMalformedPacket):
		c.server.metrics.malformedPackets.Add(1)
		c.server.logger.Warn("malformed packet", LogFields{
			LogFieldClientID: c.identity,
			LogFieldError:    err,
		})
		c.Disconnect(ReasonMalformedPacket)

	default:
		c.close()
	}
}

func (c *ClientConn) handlePacket(pkt Packet) error {
	switch p := pkt.(type) {
	case *PublishPacket:
		return c.handlePublish(p)

	case *PubackPacket:
		c.session.ReleasePacketID(p.PacketID)
		return nil

	case *PubrecPacket:
		if p.ReasonCode.IsError() {
			c.session.ReleasePacketID(p.PacketID)
			return nil
		}
		return c.writePacket(&PubrelPacket{ackBody{PacketID: p.PacketID}})

	case *PubrelPacket:
		c.clearQoS2(p.PacketID)
		return c.writePacket(&PubcompPacket{ackBody{PacketID: p.PacketID}})

	case *PubcompPacket:
		c.session.ReleasePacketID(p.PacketID)
		return nil

	case *SubscribePacket:
		return c.handleSubscribe(p)

	case *UnsubscribePacket:
		return c.handleUnsubscribe(p)

	case *PingreqPacket:
		return c.writePacket(&PingrespPacket{})

	case *DisconnectPacket:
		return c.handleDisconnect(p)

	default:
		// A second CONNECT, an AUTH without enhanced auth, or any packet
		// only the server may send.
		c.Disconnect(ReasonProtocolError)
		return ErrProtocolViolation
	}
}

func (c *ClientConn) handlePublish(pub *PublishPacket) error {
	topic := pub.Topic

	if c.version == ProtocolV50 {
		if alias := pub.Props.GetUint16(PropTopicAlias); alias > 0 {
			aliases := c.session.Aliases()
			if topic != "" {
				if err := aliases.SetInbound(alias, topic); err != nil {
					c.Disconnect(ReasonTopicAliasInvalid)
					return err
				}
			} else {
				resolved, err := aliases.ResolveInbound(alias)
				if err != nil {
					c.Disconnect(ReasonTopicAliasInvalid)
					return err
				}
				topic = resolved
			}
		}
	}

	if topic == "" {
		c.Disconnect(ReasonProtocolError)
		return ErrProtocolViolation
	}

	if c.limiter != nil && !c.limiter.Allow() {
		switch pub.QoS {
		case 1:
			return c.writePacket(&PubackPacket{ackBody{PacketID: pub.PacketID, ReasonCode: ReasonQuotaExceeded}})
		case 2:
			return c.writePacket(&PubrecPacket{ackBody{PacketID: pub.PacketID, ReasonCode: ReasonQuotaExceeded}})
		}
		return nil
	}

	duplicate := false
	switch pub.QoS {
	case 1:
		if err := c.writePacket(&PubackPacket{ackBody{PacketID: pub.PacketID}}); err != nil {
			return err
		}
	case 2:
		duplicate = c.trackQoS2(pub.PacketID)
		if err := c.writePacket(&PubrecPacket{ackBody{PacketID: pub.PacketID}}); err != nil {
			return err
		}
	}
	if duplicate {
		return nil
	}

	msg := pub.ToMessage()
	msg.Topic = topic

	c.server.metrics.messagesReceived.Add(1)

	if fn := c.server.config.onMessage; fn != nil {
		fn(c, msg)
	}

	c.server.router.Route(c.identity, msg, false)
	return nil
}

func (c *ClientConn) handleSubscribe(sub *SubscribePacket) error {
	codes := make([]ReasonCode, len(sub.Subscriptions))
	changed := false

	for i, s := range sub.Subscriptions {
		if err := c.server.subs.Subscribe(c.identity, s); err != nil {
			codes[i] = ReasonTopicFilterInvalid
			continue
		}
		changed = true
		codes[i] = ReasonCode(s.QoS)

		c.server.logger.Debug("subscribed", LogFields{
			LogFieldClientID: c.identity,
			LogFieldTopic:    s.TopicFilter,
			LogFieldQoS:      s.QoS,
		})
	}

	if changed {
		c.server.sessions.SubscriptionChanged(c.session)
	}

	return c.writePacket(&SubackPacket{
		PacketID:    sub.PacketID,
		ReasonCodes: codes,
	})
}

func (c *ClientConn) handleUnsubscribe(unsub *UnsubscribePacket) error {
	codes := make([]ReasonCode, len(unsub.TopicFilters))
	changed := false

	for i, filter := range unsub.TopicFilters {
		if c.server.subs.Unsubscribe(c.identity, filter) {
			codes[i] = ReasonSuccess
			changed = true
		} else {
			codes[i] = ReasonNoSubscriptionExisted
		}
	}

	if changed {
		c.server.sessions.SubscriptionChanged(c.session)
	}

	return c.writePacket(&UnsubackPacket{
		PacketID:    unsub.PacketID,
		ReasonCodes: codes,
	})
}

func (c *ClientConn) handleDisconnect(disc *DisconnectPacket) error {
	if c.version == ProtocolV50 && disc.Props.Has(PropSessionExpiryInterval) {
		revised := disc.Props.GetUint32(PropSessionExpiryInterval)
		// A session created with expiry 0 cannot be extended on the way out
		// [MQTT-3.1.2-23].
		if revised != 0 && c.session.ExpiryInterval() == 0 {
			c.Disconnect(ReasonProtocolError)
			return errCleanDisconnect
		}
		c.server.sessions.UpdateExpiry(c.session, revised)
	}

	c.state.CompareAndSwap(int32(StateEstablished), int32(StateDisconnecting))
	c.close()
	return errCleanDisconnect
}

// Deliver sends an application message to the client as a PUBLISH. The
// message QoS is the final delivery QoS; the router has already applied the
// subscription's granted maximum.
func (c *ClientConn) Deliver(msg *Message) error {
	if c.State() != StateEstablished {
		return ErrNotConnected
	}

	pub := &PublishPacket{
		Topic:   msg.Topic,
		Payload: msg.Payload,
		QoS:     msg.QoS,
		Retain:  msg.Retain,
	}

	if c.version == ProtocolV50 {
		pub.Props = msg.ToProperties()
		if alias := c.session.Aliases().Outbound(msg.Topic); alias > 0 {
			pub.Props.Set(PropTopicAlias, alias)
		}
	}

	if msg.QoS > 0 {
		id, err := c.session.AllocatePacketID()
		if err != nil {
			return err
		}
		pub.PacketID = id

		if err := c.writePacket(pub); err != nil {
			c.session.ReleasePacketID(id)
			return err
		}
		return nil
	}

	return c.writePacket(pub)
}

// SendPacket writes a raw packet to the client.
func (c *ClientConn) SendPacket(pkt Packet) error {
	if c.State() == StateClosed {
		return ErrNotConnected
	}
	return c.writePacket(pkt)
}

// Disconnect notifies the client (v5.0 only, 3.1.1 has no server
// DISCONNECT) and closes the transport.
func (c *ClientConn) Disconnect(reason ReasonCode) error {
	swapped := c.state.CompareAndSwap(int32(StateEstablished), int32(StateDisconnecting)) ||
		c.state.CompareAndSwap(int32(StateAwaitingConnect), int32(StateDisconnecting))
	if !swapped {
		return ErrNotConnected
	}

	if c.version == ProtocolV50 {
		// Best effort; the transport may already be gone.
		c.writePacket(&DisconnectPacket{ReasonCode: reason})
	}

	return c.close()
}

// refuse sends an error CONNACK during the handshake.
func (c *ClientConn) refuse(reason ReasonCode) {
	c.writePacket(&ConnackPacket{ReasonCode: reason})
}

func (c *ClientConn) writePacket(pkt Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	version := c.version
	if version == 0 {
		version = ProtocolV50
	}

	_, err := WritePacket(c.conn, pkt, version, c.server.config.maxPacketSize)
	return err
}

func (c *ClientConn) trackQoS2(id uint16) bool {
	c.qos2Mu.Lock()
	defer c.qos2Mu.Unlock()

	if _, ok := c.qos2Pending[id]; ok {
		return true
	}
	c.qos2Pending[id] = struct{}{}
	return false
}

func (c *ClientConn) clearQoS2(id uint16) {
	c.qos2Mu.Lock()
	defer c.qos2Mu.Unlock()
	delete(c.qos2Pending, id)
}

func (c *ClientConn) close() error {
	c.state.Store(int32(StateClosed))
	return c.conn.Close()
}

// finish releases everything the connection holds. Runs exactly once, when
// serve returns.
func (c *ClientConn) finish() {
	c.close()

	if c.session != nil {
		// A stale generation after takeover is ignored inside Detach.
		c.server.sessions.Detach(c.session, c.generation)
	}

	c.server.removeConn(c)

	if c.identity != "" {
		c.server.logger.Info("client disconnected", LogFields{
			LogFieldClientID: c.identity,
		})
		if fn := c.server.config.onDisconnect; fn != nil {
			fn(c)
		}
	}
}
