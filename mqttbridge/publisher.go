package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/icodeforyou/entsoe-transparency/types"
)

const (
	publishTimeout = 5 * time.Second
	queueSize      = 1024
)

type Options struct {
	Host        string
	Port        int16
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// Publisher mirrors state changes to an MQTT broker. Every event goes to
// <prefix>/<entity_id>/event and the new state is retained on
// <prefix>/<entity_id>/state. Messages are queued and sent by Run.
type Publisher struct {
	logger *slog.Logger
	client publisher
	prefix string
	queue  chan message
}

func New(logger *slog.Logger, opts Options) (*Publisher, mqtt.Client) {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port))
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetUsername(opts.Username)
	clientOpts.SetPassword(opts.Password)
	clientOpts.SetAutoReconnect(true)
	clientOpts.OnConnect = func(client mqtt.Client) {
		logger.Info("MQTT connected", slog.String("host", opts.Host))
	}
	clientOpts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", slog.Any("error", err))
	}

	mqttLogger := logger.With("module", "mqtt")
	mqtt.CRITICAL = newMqttLogger(mqttLogger, slog.LevelError)
	mqtt.ERROR = newMqttLogger(mqttLogger, slog.LevelError)
	mqtt.WARN = newMqttLogger(mqttLogger, slog.LevelWarn)

	client := mqtt.NewClient(clientOpts)
	return NewWithClient(logger, client, opts.TopicPrefix), client
}

func NewWithClient(logger *slog.Logger, client publisher, prefix string) *Publisher {
	return &Publisher{
		logger: logger,
		client: client,
		prefix: prefix,
		queue:  make(chan message, queueSize),
	}
}

func Connect(client mqtt.Client) error {
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timed out connecting to MQTT broker")
	}
	return token.Error()
}

func (p *Publisher) EventTopic(entityID string) string {
	return fmt.Sprintf("%s/%s/event", p.prefix, entityID)
}

func (p *Publisher) StateTopic(entityID string) string {
	return fmt.Sprintf("%s/%s/state", p.prefix, entityID)
}

// OnStateChanged is a state bus listener.
func (p *Publisher) OnStateChanged(ctx context.Context, ev types.StateChangedEvent) error {
	event, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	state, err := json.Marshal(ev.NewState)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if err := p.enqueue(message{topic: p.EventTopic(ev.EntityID), payload: event}); err != nil {
		return err
	}
	return p.enqueue(message{topic: p.StateTopic(ev.EntityID), retained: true, payload: state})
}

func (p *Publisher) enqueue(msg message) error {
	select {
	case p.queue <- msg:
		return nil
	default:
		return fmt.Errorf("MQTT queue full, dropping message for %s", msg.topic)
	}
}

// Run publishes queued messages until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			if err := p.publish(msg.topic, msg.retained, msg.payload); err != nil {
				p.logger.Warn("MQTT publish failed", slog.Any("error", err))
			}
		}
	}
}

func (p *Publisher) publish(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	p.logger.Debug("published", slog.String("topic", topic), slog.Int("bytes", len(payload)))
	return nil
}
