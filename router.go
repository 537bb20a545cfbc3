package mqttd

import "errors"

// Router fans a published message out to matching subscribers and, when a
// relay is configured, to the other broker nodes. Delivery QoS per
// subscriber is the minimum of the publish QoS and the granted QoS.
type Router struct {
	subs     *SubscriptionManager
	sessions *SessionManager
	relay    Relay
	metrics  *Metrics
	logger   Logger
}

func newRouter(subs *SubscriptionManager, sessions *SessionManager, relay Relay, metrics *Metrics, logger Logger) *Router {
	return &Router{
		subs:     subs,
		sessions: sessions,
		relay:    relay,
		metrics:  metrics,
		logger:   logger,
	}
}

// Route delivers the message to every matching subscriber. origin is the
// publishing client's identity, empty for server-originated and relayed
// messages. Messages that arrived over the relay are never forwarded back
// to it.
func (r *Router) Route(origin string, msg *Message, fromRelay bool) {
	for _, match := range r.subs.Match(msg.Topic) {
		if match.NoLocal && match.Identity == origin {
			continue
		}

		session := r.sessions.Get(match.Identity)
		if session == nil {
			continue
		}

		conn := session.Conn()
		if conn == nil {
			// Detached session: no redelivery on reconnect, so the message
			// is dropped rather than queued.
			r.metrics.messagesDropped.Add(1)
			continue
		}

		out := msg.Clone()
		if match.QoS < out.QoS {
			out.QoS = match.QoS
		}
		out.SubscriptionIdentifiers = match.SubIDs

		if err := conn.Deliver(out); err != nil {
			r.metrics.messagesDropped.Add(1)
			if !errors.Is(err, ErrNotConnected) {
				r.logger.Debug("delivery failed", LogFields{
					LogFieldClientID: match.Identity,
					LogFieldTopic:    msg.Topic,
					LogFieldError:    err,
				})
			}
			continue
		}

		r.metrics.messagesDelivered.Add(1)
	}

	if r.relay != nil && !fromRelay {
		if err := r.relay.Publish(msg); err != nil {
			r.logger.Warn("relay publish failed", LogFields{
				LogFieldTopic: msg.Topic,
				LogFieldError: err,
			})
			return
		}
		r.metrics.relayPublished.Add(1)
	}
}

// ingest routes a message received from the relay. The empty origin means
// no local subscriber is the publisher, so NoLocal never suppresses it.
func (r *Router) ingest(msg *Message) {
	r.metrics.relayReceived.Add(1)
	r.Route("", msg, true)
}
