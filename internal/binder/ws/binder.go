// Package ws implements a WebSocket transport binder. A binder dials a
// broker and exchanges JSON frames: producers publish messages under their
// binding name as the topic, consumers announce a subscription and receive
// every frame the broker routes for that topic.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/memohai/streambind/internal/channel"
	"github.com/memohai/streambind/internal/message"
)

const (
	frameMessage   = "message"
	frameSubscribe = "subscribe"

	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Frame is the wire protocol. Byte payloads travel as text: JSON has no
// raw-bytes representation, so producers stringify []byte before encoding.
type Frame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Headers message.Headers `json:"headers,omitempty"`
	Payload any             `json:"payload,omitempty"`
}

// Binder is a WebSocket client binder over one broker connection.
type Binder struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	consumers map[string][]channel.Channel
	producers map[string][]func()

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to a broker and starts the read and keepalive loops.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Binder, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial broker %s: %w", url, err)
	}
	b := &Binder{
		conn:      conn,
		logger:    log.With(slog.String("component", "ws-binder")),
		consumers: make(map[string][]channel.Channel),
		producers: make(map[string][]func()),
		done:      make(chan struct{}),
	}
	go b.readPump()
	go b.pingLoop()
	return b, nil
}

// BindConsumer announces a subscription for the name and delivers routed
// frames into the channel.
func (b *Binder) BindConsumer(_ context.Context, ch channel.Channel, name string) error {
	b.mu.Lock()
	b.consumers[name] = append(b.consumers[name], ch)
	b.mu.Unlock()
	return b.writeFrame(Frame{Type: frameSubscribe, Topic: name})
}

// BindProducer forwards every message sent on the channel to the broker
// under the binding name.
func (b *Binder) BindProducer(ctx context.Context, ch channel.Channel, name string) error {
	publish := func(_ context.Context, msg *message.Message) error {
		return b.writeFrame(frameFor(name, msg))
	}
	var cancel func()
	switch src := ch.(type) {
	case channel.Subscribable:
		cancel = src.Subscribe(publish)
	case channel.Pollable:
		loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			for {
				msg, err := src.Receive(loopCtx)
				if err != nil {
					return
				}
				if err := publish(loopCtx, msg); err != nil {
					b.logger.Error("publish failed",
						slog.String("topic", name),
						slog.String("error", err.Error()))
					return
				}
			}
		}()
		cancel = func() {
			stop()
			<-finished
		}
	default:
		return fmt.Errorf("channel %s supports neither discipline", ch.Name())
	}
	b.mu.Lock()
	b.producers[name] = append(b.producers[name], cancel)
	b.mu.Unlock()
	return nil
}

// UnbindConsumers stops delivering frames for the name.
func (b *Binder) UnbindConsumers(_ context.Context, name string) error {
	b.mu.Lock()
	delete(b.consumers, name)
	b.mu.Unlock()
	return nil
}

// UnbindProducers stops forwarding for the name.
func (b *Binder) UnbindProducers(_ context.Context, name string) error {
	b.mu.Lock()
	cancels := b.producers[name]
	delete(b.producers, name)
	b.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// Close tears down all bindings and the connection.
func (b *Binder) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	b.mu.Lock()
	var cancels []func()
	for _, c := range b.producers {
		cancels = append(cancels, c...)
	}
	b.producers = make(map[string][]func())
	b.consumers = make(map[string][]channel.Channel)
	b.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return b.conn.Close()
}

func (b *Binder) readPump() {
	b.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	b.conn.SetPongHandler(func(string) error {
		b.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		_, raw, err := b.conn.ReadMessage()
		if err != nil {
			select {
			case <-b.done:
			default:
				b.logger.Error("broker connection lost", slog.String("error", err.Error()))
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			b.logger.Warn("invalid frame", slog.String("error", err.Error()))
			continue
		}
		if f.Type != frameMessage {
			continue
		}
		b.deliver(f)
	}
}

func (b *Binder) deliver(f Frame) {
	b.mu.Lock()
	targets := append([]channel.Channel(nil), b.consumers[f.Topic]...)
	b.mu.Unlock()
	if len(targets) == 0 {
		return
	}
	msg := message.NewBuilder(f.Payload).CopyHeaders(f.Headers).Build()
	for _, ch := range targets {
		if err := ch.Send(context.Background(), msg); err != nil {
			b.logger.Error("inbound delivery failed",
				slog.String("topic", f.Topic),
				slog.String("error", err.Error()))
		}
	}
}

func (b *Binder) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.writeMu.Lock()
			b.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := b.conn.WriteMessage(websocket.PingMessage, nil)
			b.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (b *Binder) writeFrame(f Frame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return b.conn.WriteJSON(f)
}

func frameFor(topic string, msg *message.Message) Frame {
	payload := msg.Payload()
	switch p := payload.(type) {
	case []byte:
		payload = string(p)
	case json.RawMessage:
		payload = string(p)
	}
	return Frame{
		Type:    frameMessage,
		Topic:   topic,
		Headers: msg.Headers(),
		Payload: payload,
	}
}
