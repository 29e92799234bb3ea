package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config configures the MQTT emitter.
type Config struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string
	QoS         byte
	QueueSize   int
}

// publisher is the subset of a broker client the emitter needs.
type publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

type message struct {
	topic   string
	payload any
}

// MQTTEmitter queues events and publishes them from a single goroutine. A
// full queue drops the event.
type MQTTEmitter struct {
	cfg    Config
	pub    publisher
	client mqtt.Client
	queue  chan message
	logger *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// Stats counts emitter outcomes.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// NewMQTT connects to cfg.Broker and starts the publish loop.
func NewMQTT(ctx context.Context, cfg Config) (*MQTTEmitter, error) {
	logger := slog.With("component", "mqtt", "broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	select {
	case <-token.Done():
	case <-waitCtx.Done():
		// Connect keeps retrying in the background; events queue meanwhile.
		logger.Warn("mqtt broker not reachable yet, continuing", "error", waitCtx.Err())
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	e := newEmitter(cfg, pahoPublisher{client}, logger)
	e.client = client
	return e, nil
}

func newEmitter(cfg Config, pub publisher, logger *slog.Logger) *MQTTEmitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	e := &MQTTEmitter{
		cfg:    cfg,
		pub:    pub,
		queue:  make(chan message, cfg.QueueSize),
		stop:   make(chan struct{}),
		logger: logger,
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

// Rep enqueues a rep event on <prefix>/<exercise>/reps.
func (e *MQTTEmitter) Rep(ev RepEvent) {
	e.enqueue(message{topic: fmt.Sprintf("%s/%s/reps", e.cfg.TopicPrefix, ev.Exercise), payload: ev})
}

// Session enqueues a session event on <prefix>/sessions.
func (e *MQTTEmitter) Session(ev SessionEvent) {
	e.enqueue(message{topic: e.cfg.TopicPrefix + "/sessions", payload: ev})
}

func (e *MQTTEmitter) enqueue(m message) {
	select {
	case <-e.stop:
		e.dropped.Add(1)
		return
	default:
	}
	select {
	case e.queue <- m:
	default:
		e.dropped.Add(1)
		e.logger.Debug("event queue full, dropping", "topic", m.topic)
	}
}

func (e *MQTTEmitter) loop() {
	defer e.wg.Done()
	for {
		select {
		case m := <-e.queue:
			e.publish(m)
		case <-e.stop:
			// Flush what is already queued.
			for {
				select {
				case m := <-e.queue:
					e.publish(m)
				default:
					return
				}
			}
		}
	}
}

func (e *MQTTEmitter) publish(m message) {
	payload, err := json.Marshal(m.payload)
	if err != nil {
		e.failed.Add(1)
		e.logger.Error("failed to marshal event", "topic", m.topic, "error", err)
		return
	}
	if err := e.pub.Publish(m.topic, e.cfg.QoS, payload); err != nil {
		e.failed.Add(1)
		e.logger.Warn("publish failed", "topic", m.topic, "error", err)
		return
	}
	e.published.Add(1)
	e.logger.Debug("event published", "topic", m.topic, "size", len(payload))
}

// Stats returns counters.
func (e *MQTTEmitter) Stats() Stats {
	return Stats{
		Published: e.published.Load(),
		Dropped:   e.dropped.Load(),
		Failed:    e.failed.Load(),
	}
}

// Close flushes queued events and disconnects.
func (e *MQTTEmitter) Close() {
	e.stopOnce.Do(func() {
		close(e.stop)
		e.wg.Wait()
		if e.client != nil && e.client.IsConnected() {
			e.client.Disconnect(250)
			e.logger.Info("mqtt disconnected")
		}
	})
}

type pahoPublisher struct {
	client mqtt.Client
}

func (p pahoPublisher) Publish(topic string, qos byte, payload []byte) error {
	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}
