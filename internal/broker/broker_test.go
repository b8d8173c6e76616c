package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mrcode/glucose-calculator/internal/broker/brokertest"
)

func TestConsumer_Consume(t *testing.T) {
	client := brokertest.NewClient()

	received := make(chan string, 1)
	consumer := NewConsumer(client, "xdrip/bg_estimate", nil, nil)
	consumer.SetHandler(func(topic string, msg mqtt.Message) error {
		received <- topic + ":" + string(msg.Payload())
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Consume(ctx) }()

	if _, ok := client.WaitSubscribed(time.Second); !ok {
		t.Fatal("consumer did not subscribe")
	}

	client.Deliver(&brokertest.Message{TopicName: "xdrip/bg_estimate", Body: []byte("72")})

	select {
	case got := <-received:
		if got != "xdrip/bg_estimate:72" {
			t.Errorf("handler got %q, want xdrip/bg_estimate:72", got)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Consume() error: %v", err)
	}
	if client.Subscribed("xdrip/bg_estimate") {
		t.Error("consumer did not unsubscribe on cancel")
	}
}

func TestConsumer_ResubscribesAfterReconnect(t *testing.T) {
	client := brokertest.NewClient()

	received := make(chan string, 1)
	consumer := NewConsumer(client, "xdrip/bg_estimate", func(_ string, msg mqtt.Message) error {
		received <- string(msg.Payload())
		return nil
	}, nil)
	client.OnConnect = func(mqtt.Client) { consumer.Resubscribe() }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = consumer.Consume(ctx) }()

	if _, ok := client.WaitSubscribed(time.Second); !ok {
		t.Fatal("consumer did not subscribe")
	}

	client.Reconnect()
	if !client.Subscribed("xdrip/bg_estimate") {
		t.Fatal("subscription not restored after reconnect")
	}

	if !client.Deliver(&brokertest.Message{TopicName: "xdrip/bg_estimate", Body: []byte("64")}) {
		t.Fatal("no subscriber after reconnect")
	}
	select {
	case got := <-received:
		if got != "64" {
			t.Errorf("handler got %q, want 64", got)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not called after reconnect")
	}
}

func TestConsumer_ResubscribeIdle(t *testing.T) {
	client := brokertest.NewClient()
	consumer := NewConsumer(client, "t", func(string, mqtt.Message) error { return nil }, nil)

	// not consuming yet, so a reconnect must not subscribe
	consumer.Resubscribe()
	if client.Subscribed("t") {
		t.Error("Resubscribe() subscribed before Consume")
	}
}

func TestClientOptions_OnConnect(t *testing.T) {
	calls := 0
	opts := clientOptions(Config{URL: "tcp://localhost:1883", OnConnect: func(mqtt.Client) { calls++ }}, slog.Default())

	if !opts.CleanSession || !opts.AutoReconnect {
		t.Errorf("CleanSession = %v, AutoReconnect = %v, want both true", opts.CleanSession, opts.AutoReconnect)
	}
	if opts.OnConnect == nil {
		t.Fatal("OnConnect handler not installed")
	}
	opts.OnConnect(nil)
	if calls != 1 {
		t.Errorf("OnConnect called %d times, want 1", calls)
	}

	if opts := clientOptions(Config{URL: "tcp://localhost:1883"}, slog.Default()); opts.OnConnect != nil {
		t.Error("OnConnect set without a callback")
	}
}

func TestConsumer_NoHandler(t *testing.T) {
	consumer := NewConsumer(brokertest.NewClient(), "t", nil, nil)
	if err := consumer.Consume(context.Background()); !errors.Is(err, ErrNoHandler) {
		t.Errorf("Consume() error = %v, want ErrNoHandler", err)
	}
}

func TestConsumer_SubscribeError(t *testing.T) {
	client := brokertest.NewClient()
	client.SubscribeErr = errors.New("not authorized")

	consumer := NewConsumer(client, "t", func(string, mqtt.Message) error { return nil }, nil)
	if err := consumer.Consume(context.Background()); err == nil {
		t.Error("Consume() error = nil, want subscribe error")
	}
}

func TestPublisher_PublishJSON(t *testing.T) {
	client := brokertest.NewClient()
	pub := NewPublisher(client, "glucose/recommendation", true)

	if err := pub.PublishJSON(map[string]float64{"dextroseGrams": 7.35}); err != nil {
		t.Fatalf("PublishJSON() error: %v", err)
	}

	msgs := client.Published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].Topic != "glucose/recommendation" || !msgs[0].Retained || msgs[0].QoS != 1 {
		t.Errorf("published %+v, want retained QoS 1 on glucose/recommendation", msgs[0])
	}

	var decoded map[string]float64
	if err := json.Unmarshal(msgs[0].Payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["dextroseGrams"] != 7.35 {
		t.Errorf("dextroseGrams = %v, want 7.35", decoded["dextroseGrams"])
	}
}

func TestPublisher_Error(t *testing.T) {
	client := brokertest.NewClient()
	client.PublishErr = errors.New("connection lost")

	pub := NewPublisher(client, "t", false)
	if err := pub.PublishJSON("x"); err == nil {
		t.Error("PublishJSON() error = nil, want error")
	}
	if err := pub.PublishJSON(func() {}); err == nil {
		t.Error("PublishJSON(func) error = nil, want encoding error")
	}
}
