// Package mqttd implements an embeddable MQTT broker engine supporting
// protocol versions 3.1.1 and 5.0.
//
// The package provides the four pieces a broker needs:
//
//   - A wire codec for all 15 control packet types, including the v5.0
//     properties sub-format. Use ReadPacket and WritePacket with the
//     connection's negotiated ProtocolVersion.
//   - A SessionManager owning the identity → session table, enforcing the
//     one-active-connection-per-identity rule via connection takeover.
//   - A SubscriptionManager backed by a segment trie for wildcard topic
//     matching (+, #).
//   - A Router that fans a published message out to matching subscribers,
//     and optionally to an external Relay for cross-node delivery.
//
// # Server
//
//	srv, err := mqttd.NewServer(":1883",
//	    mqttd.WithLogger(mqttd.NewStdLogger(os.Stderr, mqttd.LogLevelInfo)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.Serve()
//
// Transports are pluggable through the Listener interface; TCP, TLS,
// WebSocket and QUIC implementations are included. The broker core only
// consumes the resulting ordered byte stream.
//
// # Sessions
//
// Session state (subscriptions, in-flight packet identifiers, topic
// aliases) survives a single connection when the client connects with
// CleanStart=false and a nonzero session expiry interval. The default
// SessionStore is in memory; BadgerSessionStore persists sessions across
// broker restarts.
//
// # Relay
//
// A Relay fans published messages out to other broker instances. The
// RedisRelay uses Redis pub/sub; InProcRelay links brokers within one
// process and is mainly useful in tests.
package mqttd
