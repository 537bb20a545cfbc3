package mqttd

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// sessionSweepInterval is how often detached sessions are checked for
// expiry.
const sessionSweepInterval = 30 * time.Second

// Server is an MQTT broker accepting 3.1.1 and 5.0 clients on a single
// listener. Additional listeners (TLS, WebSocket, QUIC) can feed the same
// broker state through AddListener.
type Server struct {
	config   *serverConfig
	subs     *SubscriptionManager
	sessions *SessionManager
	router   *Router
	metrics  *Metrics
	logger   Logger

	mu        sync.Mutex
	listeners []Listener
	conns     map[*ClientConn]struct{}

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewServer creates a broker listening for plain TCP on addr.
func NewServer(addr string, opts ...ServerOption) (*Server, error) {
	listener, err := NewTCPListener(addr)
	if err != nil {
		return nil, err
	}
	return NewServerWithListener(listener, opts...), nil
}

// NewServerWithListener creates a broker on a caller-supplied listener.
func NewServerWithListener(listener Listener, opts ...ServerOption) *Server {
	config := defaultServerConfig()
	for _, opt := range opts {
		opt(config)
	}

	subs := NewSubscriptionManager()
	metrics := NewMetrics()
	sessions := NewSessionManager(subs, config.sessionStore, config.logger)

	s := &Server{
		config:    config,
		subs:      subs,
		sessions:  sessions,
		metrics:   metrics,
		logger:    config.logger,
		listeners: []Listener{listener},
		conns:     make(map[*ClientConn]struct{}),
		done:      make(chan struct{}),
	}
	s.router = newRouter(subs, sessions, config.relay, metrics, config.logger)

	return s
}

// AddListener attaches another listener before Serve is called.
func (s *Server) AddListener(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Serve accepts connections until Close. It returns ErrServerClosed after a
// clean shutdown.
func (s *Server) Serve() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerClosed
	}

	if s.config.relay != nil {
		if err := s.config.relay.Subscribe(s.router.ingest); err != nil {
			s.running.Store(false)
			return err
		}
	}

	s.wg.Add(1)
	go s.sweepLoop()

	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, listener := range listeners[1:] {
		s.wg.Add(1)
		go func(l Listener) {
			defer s.wg.Done()
			s.acceptLoop(l)
		}(listener)
	}

	s.acceptLoop(listeners[0])
	return ErrServerClosed
}

func (s *Server) acceptLoop(listener Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				// Back off so a persistent accept error cannot spin.
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}

		if !s.addConn(conn) {
			conn.Close()
			continue
		}
	}
}

// addConn registers and starts a connection, refusing it over the
// connection cap.
func (s *Server) addConn(conn Conn) bool {
	client := newClientConn(s, conn)

	s.mu.Lock()
	if s.config.maxConnections > 0 && len(s.conns) >= s.config.maxConnections {
		s.mu.Unlock()
		return false
	}
	s.conns[client] = struct{}{}
	s.mu.Unlock()

	s.metrics.connectionsAccepted.Add(1)
	s.metrics.connectionsActive.Add(1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		client.serve()
	}()

	return true
}

func (s *Server) removeConn(client *ClientConn) {
	s.mu.Lock()
	_, present := s.conns[client]
	delete(s.conns, client)
	s.mu.Unlock()

	if present {
		s.metrics.connectionsActive.Add(-1)
	}
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if removed := s.sessions.SweepExpired(time.Now()); removed > 0 {
				s.logger.Debug("expired sessions removed", LogFields{
					"count": removed,
				})
			}
		}
	}
}

// Close stops the listeners, disconnects every client and waits for all
// connection goroutines to finish.
func (s *Server) Close() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	close(s.done)

	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	conns := make([]*ClientConn, 0, len(s.conns))
	for client := range s.conns {
		conns = append(conns, client)
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener.Close()
	}

	for _, client := range conns {
		client.Disconnect(ReasonServerShuttingDown)
	}

	s.wg.Wait()

	if s.config.relay != nil {
		s.config.relay.Close()
	}

	return s.config.sessionStore.Close()
}

// Publish routes a server-originated message to matching subscribers and
// the relay.
func (s *Server) Publish(msg *Message) error {
	if !s.running.Load() {
		return ErrServerClosed
	}
	s.router.Route("", msg, false)
	return nil
}

// Addr returns the primary listener's address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return nil
	}
	return s.listeners[0].Addr()
}

// Metrics returns the broker's counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Sessions returns the session manager for administrative inspection.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Subscriptions returns the topic index for administrative inspection.
func (s *Server) Subscriptions() *SubscriptionManager {
	return s.subs
}

// ClientCount returns the number of registered connections, including any
// still in the CONNECT handshake.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// DropSession administratively removes a session, disconnecting its client
// if one is bound.
func (s *Server) DropSession(identity string) {
	if evicted := s.sessions.Drop(identity); evicted != nil {
		evicted.Disconnect(ReasonAdminAction)
	}
}
