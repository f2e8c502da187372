package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/icodeforyou/entsoe-transparency/types"
	"github.com/icodeforyou/entsoe-transparency/types/maybe"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return newFakeToken(c.err)
}

func (c *fakeClient) snapshot() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func waitFor(t *testing.T, c *fakeClient, n int) []published {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := c.snapshot(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d messages, got %d", n, len(c.snapshot()))
	return nil
}

func TestPublisher(t *testing.T) {
	client := &fakeClient{}
	p := NewWithClient(slog.New(slog.DiscardHandler), client, "entsoe")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	state := types.State{EntityID: "sensor.entsoe_transparency_day_ahead_at", Value: 0.05, LastChanged: at, LastUpdated: at}
	if err := p.OnStateChanged(ctx, types.NewStateChangedEvent(maybe.None[types.State](), state, at)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := waitFor(t, client, 2)
	if msgs[0].topic != "entsoe/sensor.entsoe_transparency_day_ahead_at/event" || msgs[0].retained {
		t.Errorf("unexpected event message %s retained=%v", msgs[0].topic, msgs[0].retained)
	}
	if msgs[1].topic != "entsoe/sensor.entsoe_transparency_day_ahead_at/state" || !msgs[1].retained {
		t.Errorf("unexpected state message %s retained=%v", msgs[1].topic, msgs[1].retained)
	}

	var ev map[string]any
	if err := json.Unmarshal(msgs[0].payload, &ev); err != nil {
		t.Fatalf("invalid event payload: %v", err)
	}
	if ev["event_type"] != "state_changed" || ev["old_state"] != nil {
		t.Errorf("unexpected event payload %s", msgs[0].payload)
	}
	if ev["time_fired"] != "2024-01-01T00:00:00Z" {
		t.Errorf("expected time_fired 2024-01-01T00:00:00Z, got %v", ev["time_fired"])
	}
}

func TestPublisherKeepsRunningAfterFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p := NewWithClient(slog.New(slog.DiscardHandler), client, "entsoe")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	state := types.State{EntityID: "sensor.x"}
	for i := 0; i < 2; i++ {
		if err := p.OnStateChanged(ctx, types.NewStateChangedEvent(maybe.None[types.State](), state, time.Now())); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	waitFor(t, client, 4)
}

func TestPublisherQueueFull(t *testing.T) {
	p := NewWithClient(slog.New(slog.DiscardHandler), &fakeClient{}, "entsoe")
	state := types.State{EntityID: "sensor.x"}
	var err error
	for i := 0; i <= queueSize && err == nil; i++ {
		err = p.OnStateChanged(context.Background(), types.NewStateChangedEvent(maybe.None[types.State](), state, time.Now()))
	}
	if err == nil {
		t.Errorf("expected an error once the queue is full")
	}
}
