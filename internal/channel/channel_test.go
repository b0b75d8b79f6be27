package channel_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/memohai/streambind/internal/channel"
	"github.com/memohai/streambind/internal/message"
)

func TestPushBroadcastsToAllSubscribers(t *testing.T) {
	t.Parallel()
	ch := channel.NewPush("input")

	var mu sync.Mutex
	var got []string
	for _, name := range []string{"a", "b"} {
		name := name
		ch.Subscribe(func(_ context.Context, msg *message.Message) error {
			mu.Lock()
			got = append(got, name+":"+msg.Payload().(string))
			mu.Unlock()
			return nil
		})
	}

	if err := ch.Send(context.Background(), message.New("m1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "a:m1" || got[1] != "b:m1" {
		t.Fatalf("deliveries = %v, want [a:m1 b:m1]", got)
	}
}

func TestPushNoSubscribers(t *testing.T) {
	t.Parallel()
	ch := channel.NewPush("input")
	err := ch.Send(context.Background(), message.New("m1"))
	if !errors.Is(err, channel.ErrNoSubscribers) {
		t.Fatalf("Send without subscribers: %v, want ErrNoSubscribers", err)
	}
}

func TestPushSubscriberErrorPropagates(t *testing.T) {
	t.Parallel()
	ch := channel.NewPush("input")
	boom := errors.New("boom")
	delivered := 0
	ch.Subscribe(func(context.Context, *message.Message) error { return boom })
	ch.Subscribe(func(context.Context, *message.Message) error { delivered++; return nil })

	err := ch.Send(context.Background(), message.New("m1"))
	if !errors.Is(err, boom) {
		t.Fatalf("Send = %v, want wrapped boom", err)
	}
	if delivered != 1 {
		t.Fatal("later subscribers must still receive the message")
	}
}

func TestPushUnsubscribe(t *testing.T) {
	t.Parallel()
	ch := channel.NewPush("input")
	cancel := ch.Subscribe(func(context.Context, *message.Message) error { return nil })
	if ch.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", ch.SubscriberCount())
	}
	cancel()
	if ch.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount after cancel = %d, want 0", ch.SubscriberCount())
	}
}

func TestPullReceiveTimeout(t *testing.T) {
	t.Parallel()
	ch := channel.NewPull("input")
	start := time.Now()
	if _, err := ch.ReceiveTimeout(20 * time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ReceiveTimeout on empty queue: %v, want deadline exceeded", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("ReceiveTimeout returned before the timeout elapsed")
	}

	if err := ch.Send(context.Background(), message.New("m1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, err := ch.ReceiveTimeout(time.Second)
	if err != nil {
		t.Fatalf("ReceiveTimeout: %v", err)
	}
	if msg.Payload() != "m1" {
		t.Fatalf("payload = %v, want m1", msg.Payload())
	}
}

func TestPullOrdering(t *testing.T) {
	t.Parallel()
	ch := channel.NewPull("input", channel.WithCapacity(8))
	for _, p := range []string{"1", "2", "3"} {
		if err := ch.Send(context.Background(), message.New(p)); err != nil {
			t.Fatalf("Send(%s): %v", p, err)
		}
	}
	for _, want := range []string{"1", "2", "3"} {
		msg, ok := ch.TryReceive()
		if !ok {
			t.Fatalf("TryReceive: queue empty, want %s", want)
		}
		if msg.Payload() != want {
			t.Fatalf("payload = %v, want %s", msg.Payload(), want)
		}
	}
}

func TestPullSendBlocksWhenFull(t *testing.T) {
	t.Parallel()
	ch := channel.NewPull("input", channel.WithCapacity(1))
	if err := ch.Send(context.Background(), message.New("first")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ch.Send(ctx, message.New("second"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send on full queue = %v, want deadline exceeded", err)
	}
}

func TestConverterAppliedOnSend(t *testing.T) {
	t.Parallel()
	ch := channel.NewPull("input", channel.WithConverter(func(msg *message.Message) (*message.Message, error) {
		return message.From(msg).WithPayload("converted").Build(), nil
	}))
	if err := ch.Send(context.Background(), message.New("raw")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, _ := ch.TryReceive()
	if msg.Payload() != "converted" {
		t.Fatalf("payload = %v, want converted", msg.Payload())
	}
}

func TestPushToPullBridge(t *testing.T) {
	t.Parallel()
	src := channel.NewPush("shared")
	dst := channel.NewPull("local")
	bridge := channel.NewPushToPull(src, dst)
	defer bridge.Stop()

	if err := src.Send(context.Background(), message.New("m1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, ok := dst.TryReceive()
	if !ok || msg.Payload() != "m1" {
		t.Fatalf("bridged message = %v, %v", msg, ok)
	}

	bridge.Stop()
	if err := src.Send(context.Background(), message.New("m2")); !errors.Is(err, channel.ErrNoSubscribers) {
		t.Fatalf("Send after Stop = %v, want ErrNoSubscribers", err)
	}
}

func TestPullToPushBridgeNoLoss(t *testing.T) {
	t.Parallel()
	src := channel.NewPull("shared", channel.WithCapacity(16))
	dst := channel.NewPush("local")

	var mu sync.Mutex
	var got []string
	dst.Subscribe(func(_ context.Context, msg *message.Message) error {
		mu.Lock()
		got = append(got, msg.Payload().(string))
		mu.Unlock()
		return nil
	})

	bridge := channel.NewPullToPush(src, dst, 10*time.Millisecond, nil)
	defer bridge.Stop()

	want := []string{"1", "2", "3", "4", "5"}
	for _, p := range want {
		if err := src.Send(context.Background(), message.New(p)); err != nil {
			t.Fatalf("Send(%s): %v", p, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == len(want) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bridge delivered %d of %d messages", n, len(want))
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, p := range want {
		if got[i] != p {
			t.Fatalf("delivery order = %v, want %v", got, want)
		}
	}
}

func TestSharedRegistry(t *testing.T) {
	t.Parallel()
	reg := channel.NewSharedRegistry()
	ch := channel.NewPush("orders")

	if err := reg.Put("app.orders", ch); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := reg.Put("app.orders", channel.NewPush("other")); err == nil {
		t.Fatal("duplicate Put must fail")
	}
	got, ok := reg.Get("app.orders")
	if !ok || got != channel.Channel(ch) {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	if _, ok := reg.Get("app.missing"); ok {
		t.Fatal("Get of unregistered name must report absent")
	}
	names := reg.Names()
	if len(names) != 1 || names[0] != "app.orders" {
		t.Fatalf("Names = %v", names)
	}
}
