// Package gobayeux is a client-side engine for the Bayeux protocol, the
// publish/subscribe wire protocol underlying CometD. It drives the
// handshake/connect/disconnect meta channel exchange, long-polls or holds a
// WebSocket connection open for you, and dispatches incoming messages to the
// channels you subscribe to.
//
// Construct a SessionEngine with a server address, the connection types you
// are willing to negotiate, and a TransportRegistry listing the transports
// that back those types:
//
//	registry := gobayeux.NewTransportRegistry()
//	httpTransport, _ := gobayeux.NewHTTPTransport(serverAddress, nil, logger)
//	registry.Register(httpTransport)
//	registry.Register(gobayeux.NewWSTransport(serverAddress, logger))
//
//	engine := gobayeux.NewSessionEngine(serverAddress,
//		[]string{gobayeux.ConnectionTypeLongPolling, gobayeux.ConnectionTypeWebsocket},
//		registry, gobayeux.WithLogger(logger))
//
// Start the session with Handshake. Subscribe needs the clientId the server
// assigns, so subscribe from the handshake callback, with a callback invoked
// on every message the channel receives:
//
//	engine.Handshake(nil, func(m gobayeux.Message, err error) {
//		if err != nil || !m.Successful {
//			log.Printf("handshake failed: %v", err)
//			return
//		}
//		engine.Subscribe("/example/channel", func(m gobayeux.Message) {
//			log.Printf("received %s", m.Data)
//		})
//	})
//
// Extensions attach extra data to outgoing messages and inspect incoming
// ones by implementing MessageExtender and registering with
// RegisterExtension:
//
//	type Example struct{}
//	func (e *Example) Registered(name string, engine *gobayeux.SessionEngine) {}
//	func (e *Example) Unregistered()                                          {}
//	func (e *Example) Outgoing(m *gobayeux.Message) {
//		switch m.Channel {
//		case gobayeux.MetaHandshake:
//			ext := m.GetExt(true)
//			ext["example"] = true
//		}
//	}
//	func (e *Example) Incoming(m *gobayeux.Message) {}
//
//	engine.RegisterExtension("example", &Example{})
package gobayeux
