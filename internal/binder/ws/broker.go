package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Broker is the server side of the frame protocol: it accepts client
// connections, tracks which topics each client subscribed to, and routes
// message frames to every subscriber of their topic.
type Broker struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*brokerClient]struct{}
}

type brokerClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.RWMutex
	topics map[string]struct{}
}

// NewBroker creates an empty broker.
func NewBroker(log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		logger:  log.With(slog.String("component", "ws-broker")),
		clients: make(map[*brokerClient]struct{}),
	}
}

// ServeHTTP upgrades the request and runs the client's read loop.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &brokerClient{conn: conn, topics: make(map[string]struct{})}
	b.mu.Lock()
	b.clients[client] = struct{}{}
	b.mu.Unlock()
	b.logger.Debug("client connected")

	defer func() {
		b.mu.Lock()
		delete(b.clients, client)
		b.mu.Unlock()
		conn.Close()
		b.logger.Debug("client disconnected")
	}()

	conn.SetPingHandler(func(data string) error {
		client.writeMu.Lock()
		defer client.writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.PongMessage, []byte(data))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			b.logger.Warn("invalid frame", slog.String("error", err.Error()))
			continue
		}
		switch f.Type {
		case frameSubscribe:
			client.mu.Lock()
			client.topics[f.Topic] = struct{}{}
			client.mu.Unlock()
		case frameMessage:
			b.route(raw, f.Topic)
		}
	}
}

// route fans a raw message frame out to every client subscribed to the
// topic, including the sender when it subscribed to its own topic.
func (b *Broker) route(raw []byte, topic string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		client.mu.RLock()
		_, subscribed := client.topics[topic]
		client.mu.RUnlock()
		if !subscribed {
			continue
		}
		client.writeMu.Lock()
		client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := client.conn.WriteMessage(websocket.TextMessage, raw)
		client.writeMu.Unlock()
		if err != nil {
			b.logger.Debug("route write failed",
				slog.String("topic", topic),
				slog.String("error", err.Error()))
		}
	}
}
