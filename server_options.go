package mqttd

import (
	"time"

	"golang.org/x/time/rate"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	logger            Logger
	sessionStore      SessionStore
	auth              Authenticator
	relay             Relay
	maxPacketSize     uint32
	maxConnections    int
	keepAliveOverride uint16
	topicAliasMax     uint16
	connectTimeout    time.Duration
	publishRate       rate.Limit
	publishBurst      int
	onConnect         func(*ClientConn)
	onDisconnect      func(*ClientConn)
	onMessage         func(*ClientConn, *Message)
}

func defaultServerConfig() *serverConfig {
	return &serverConfig{
		logger:         NewNoOpLogger(),
		sessionStore:   NewMemorySessionStore(),
		maxPacketSize:  256 * 1024,
		maxConnections: 0, // unlimited
		topicAliasMax:  defaultTopicAliasMax,
		connectTimeout: 10 * time.Second,
		publishRate:    rate.Inf,
	}
}

// WithLogger sets the server logger.
func WithLogger(logger Logger) ServerOption {
	return func(c *serverConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSessionStore sets the session persistence backend.
func WithSessionStore(store SessionStore) ServerOption {
	return func(c *serverConfig) {
		c.sessionStore = store
	}
}

// WithAuthenticator sets the connect authenticator. Without one, every
// connection is accepted.
func WithAuthenticator(auth Authenticator) ServerOption {
	return func(c *serverConfig) {
		c.auth = auth
	}
}

// WithRelay connects the server to other broker nodes.
func WithRelay(relay Relay) ServerOption {
	return func(c *serverConfig) {
		c.relay = relay
	}
}

// WithMaxPacketSize sets the maximum accepted packet size in bytes. Zero
// means unlimited.
func WithMaxPacketSize(size uint32) ServerOption {
	return func(c *serverConfig) {
		c.maxPacketSize = size
	}
}

// WithMaxConnections caps concurrent connections. Zero means unlimited.
func WithMaxConnections(n int) ServerOption {
	return func(c *serverConfig) {
		c.maxConnections = n
	}
}

// WithServerKeepAlive overrides the keep alive interval requested by
// clients. On v5.0 connections the value is announced in CONNACK.
func WithServerKeepAlive(seconds uint16) ServerOption {
	return func(c *serverConfig) {
		c.keepAliveOverride = seconds
	}
}

// WithTopicAliasMax sets the topic alias maximum announced to v5.0 clients.
// Zero disables inbound aliases.
func WithTopicAliasMax(maxAlias uint16) ServerOption {
	return func(c *serverConfig) {
		c.topicAliasMax = maxAlias
	}
}

// WithConnectTimeout bounds the wait for the CONNECT packet on a new
// connection.
func WithConnectTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithPublishRateLimit throttles inbound publishes per connection to r
// messages per second with the given burst. QoS 0 overruns are dropped;
// QoS 1 and 2 overruns are refused with a quota-exceeded acknowledgment.
func WithPublishRateLimit(r rate.Limit, burst int) ServerOption {
	return func(c *serverConfig) {
		c.publishRate = r
		c.publishBurst = burst
	}
}

// OnConnect sets the callback invoked after a connection is established.
func OnConnect(fn func(*ClientConn)) ServerOption {
	return func(c *serverConfig) {
		c.onConnect = fn
	}
}

// OnDisconnect sets the callback invoked after a connection closes.
func OnDisconnect(fn func(*ClientConn)) ServerOption {
	return func(c *serverConfig) {
		c.onDisconnect = fn
	}
}

// OnMessage sets the callback invoked for every accepted publish.
func OnMessage(fn func(*ClientConn, *Message)) ServerOption {
	return func(c *serverConfig) {
		c.onMessage = fn
	}
}
