package mqttd

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RelayHandler receives messages published by other broker nodes.
type RelayHandler func(msg *Message)

// Relay connects broker nodes so a publish accepted on one node reaches
// subscribers on the others. Implementations must not hand a node back its
// own publishes; the router relies on that to avoid forwarding loops.
type Relay interface {
	// Publish forwards a locally accepted message to the other nodes.
	Publish(msg *Message) error

	// Subscribe starts delivering remote messages to handler. Called once,
	// before any Publish.
	Subscribe(handler RelayHandler) error

	// Close stops the relay.
	Close() error
}

// relayEnvelope is the wire form of a relayed message. The origin tag is
// the publishing node's identifier; receivers drop their own envelopes.
type relayEnvelope struct {
	Origin          string       `msgpack:"origin"`
	Topic           string       `msgpack:"topic"`
	Payload         []byte       `msgpack:"payload"`
	QoS             byte         `msgpack:"qos"`
	Retain          bool         `msgpack:"retain"`
	PayloadFormat   byte         `msgpack:"payload_format,omitempty"`
	MessageExpiry   uint32       `msgpack:"message_expiry,omitempty"`
	ContentType     string       `msgpack:"content_type,omitempty"`
	ResponseTopic   string       `msgpack:"response_topic,omitempty"`
	CorrelationData []byte       `msgpack:"correlation_data,omitempty"`
	UserProperties  []StringPair `msgpack:"user_properties,omitempty"`
}

func newRelayEnvelope(origin string, msg *Message) relayEnvelope {
	return relayEnvelope{
		Origin:          origin,
		Topic:           msg.Topic,
		Payload:         msg.Payload,
		QoS:             msg.QoS,
		Retain:          msg.Retain,
		PayloadFormat:   msg.PayloadFormat,
		MessageExpiry:   msg.MessageExpiry,
		ContentType:     msg.ContentType,
		ResponseTopic:   msg.ResponseTopic,
		CorrelationData: msg.CorrelationData,
		UserProperties:  msg.UserProperties,
	}
}

func (e *relayEnvelope) message() *Message {
	return &Message{
		Topic:           e.Topic,
		Payload:         e.Payload,
		QoS:             e.QoS,
		Retain:          e.Retain,
		PayloadFormat:   e.PayloadFormat,
		MessageExpiry:   e.MessageExpiry,
		ContentType:     e.ContentType,
		ResponseTopic:   e.ResponseTopic,
		CorrelationData: e.CorrelationData,
		UserProperties:  e.UserProperties,
	}
}

// RedisRelay links broker nodes through a Redis pub/sub channel. Every node
// publishes msgpack envelopes tagged with its own node identifier and drops
// envelopes carrying that identifier on the way back in.
type RedisRelay struct {
	client  *redis.Client
	channel string
	nodeID  string
	logger  Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisRelay creates a relay on the given Redis connection options and
// channel name. A nil logger disables logging.
func NewRedisRelay(opts *redis.Options, channel string, logger Logger) *RedisRelay {
	if logger == nil {
		logger = NewNoOpLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisRelay{
		client:  redis.NewClient(opts),
		channel: channel,
		nodeID:  uuid.NewString(),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// NodeID returns this node's relay identifier.
func (r *RedisRelay) NodeID() string {
	return r.nodeID
}

// Publish forwards the message to the channel.
func (r *RedisRelay) Publish(msg *Message) error {
	env := newRelayEnvelope(r.nodeID, msg)
	data, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}

	return r.client.Publish(r.ctx, r.channel, data).Err()
}

// Subscribe starts consuming the channel, dropping this node's own
// envelopes.
func (r *RedisRelay) Subscribe(handler RelayHandler) error {
	pubsub := r.client.Subscribe(r.ctx, r.channel)

	// Force the subscription onto the wire before returning.
	if _, err := pubsub.Receive(r.ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("relay subscribe: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer pubsub.Close()

		for {
			select {
			case <-r.ctx.Done():
				return
			case m, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				r.dispatch([]byte(m.Payload), handler)
			}
		}
	}()

	return nil
}

func (r *RedisRelay) dispatch(data []byte, handler RelayHandler) {
	var env relayEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		r.logger.Warn("dropping undecodable relay envelope", LogFields{
			LogFieldError: err,
		})
		return
	}

	if env.Origin == r.nodeID {
		return
	}

	handler(env.message())
}

// Close stops the consumer and closes the Redis connection.
func (r *RedisRelay) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}

// InProcRelayHub links relays in the same process, mirroring the external
// relay contract for tests and embedded multi-broker setups.
type InProcRelayHub struct {
	mu      sync.RWMutex
	members []*InProcRelay
}

// NewInProcRelayHub creates an empty hub.
func NewInProcRelayHub() *InProcRelayHub {
	return &InProcRelayHub{}
}

// Join adds a node to the hub and returns its relay.
func (h *InProcRelayHub) Join() *InProcRelay {
	h.mu.Lock()
	defer h.mu.Unlock()

	relay := &InProcRelay{hub: h}
	h.members = append(h.members, relay)
	return relay
}

func (h *InProcRelayHub) broadcast(from *InProcRelay, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, member := range h.members {
		if member == from {
			continue
		}
		member.deliver(msg.Clone())
	}
}

// InProcRelay is one node's endpoint on an InProcRelayHub.
type InProcRelay struct {
	hub *InProcRelayHub

	mu      sync.RWMutex
	handler RelayHandler
	closed  bool
}

// Publish forwards the message to every other hub member.
func (r *InProcRelay) Publish(msg *Message) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		return ErrNotConnected
	}

	r.hub.broadcast(r, msg)
	return nil
}

// Subscribe installs the handler for remote messages.
func (r *InProcRelay) Subscribe(handler RelayHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
	return nil
}

// Close detaches the relay from the hub.
func (r *InProcRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.handler = nil
	return nil
}

func (r *InProcRelay) deliver(msg *Message) {
	r.mu.RLock()
	handler := r.handler
	r.mu.RUnlock()

	if handler != nil {
		handler(msg)
	}
}
