package link

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Link states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// DefaultDevicePrefix is the topic prefix used by the vendor broker.
const DefaultDevicePrefix = "d02"

const (
	connectTimeout = 30 * time.Second
	initialBackoff = 2 * time.Second
	maxBackoff     = 5 * time.Minute
)

// Handler receives inbound wire values and connectivity changes from a link.
type Handler interface {
	HandleSensorValue(deviceSerial, sensorID string, raw any)
	HandleConnectionChange(deviceSerial string, connected bool)
}

// Options configure the broker endpoint shared by all links.
type Options struct {
	Host         string
	Port         int
	DevicePrefix string
}

// DeviceLink owns one device's persistent MQTT session: connect, subscribe,
// prime current values, publish writes and reconnect with backoff. Each link
// runs its own goroutine so one device's broken broker path cannot stall
// another's. Reconnection is attempted indefinitely while the device stays
// registered; pool hardware can be offline for hours.
type DeviceLink struct {
	serial      string
	accessToken string
	sensorIDs   []string
	handler     Handler
	opts        Options
	logger      *zap.Logger

	mu     sync.Mutex
	state  string
	client mqtt.Client

	cancel context.CancelFunc
	lost   chan struct{}
	done   chan struct{}
}

// New creates a link for one device. sensorIDs are the endpoint topics to
// subscribe and prime on every (re)connect.
func New(serial, accessToken string, sensorIDs []string, handler Handler, opts Options, logger *zap.Logger) *DeviceLink {
	if opts.DevicePrefix == "" {
		opts.DevicePrefix = DefaultDevicePrefix
	}
	return &DeviceLink{
		serial:      serial,
		accessToken: accessToken,
		sensorIDs:   sensorIDs,
		handler:     handler,
		opts:        opts,
		logger:      logger.With(zap.String("device_serial", serial)),
		state:       StateDisconnected,
	}
}

// State returns the current connection state.
func (l *DeviceLink) State() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *DeviceLink) setState(state string) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
}

// Start launches the connection loop.
func (l *DeviceLink) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
}

// Stop closes the session and ends the retry loop. It returns once the
// connection goroutine has exited.
func (l *DeviceLink) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *DeviceLink) run(ctx context.Context) {
	defer close(l.done)

	backoff := initialBackoff
	for {
		l.setState(StateConnecting)
		client, err := l.connect()
		if err != nil {
			l.setState(StateDisconnected)
			l.logger.Warn("MQTT connect failed, retrying",
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		l.mu.Lock()
		l.client = client
		l.state = StateConnected
		l.mu.Unlock()
		backoff = initialBackoff

		l.logger.Info("MQTT connected")
		l.handler.HandleConnectionChange(l.serial, true)

		select {
		case <-ctx.Done():
			client.Disconnect(250)
			l.setState(StateDisconnected)
			return
		case <-l.lost:
			l.setState(StateDisconnected)
			l.handler.HandleConnectionChange(l.serial, false)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
		}
	}
}

// connect builds a fresh client, establishes the session and subscribes to
// every readable sensor topic, publishing a get request per topic so live
// state is primed without waiting for the next natural update.
func (l *DeviceLink) connect() (mqtt.Client, error) {
	l.lost = make(chan struct{})
	lostOnce := sync.Once{}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("wss://%s:%d/mqtt", l.opts.Host, l.opts.Port)).
		SetClientID(fmt.Sprintf("bayrol-pool-api-%s", l.serial)).
		SetUsername(l.accessToken).
		SetPassword("1").
		SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			l.logger.Warn("MQTT connection lost", zap.Error(err))
			lostOnce.Do(func() { close(l.lost) })
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect timed out after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	for _, sensorID := range l.sensorIDs {
		topic := l.topic("v", sensorID)
		if token := client.Subscribe(topic, 0, l.onMessage); token.Wait() && token.Error() != nil {
			client.Disconnect(250)
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
		}
		// Ask for the current value.
		client.Publish(l.topic("g", sensorID), 0, false, []byte{})
	}

	return client, nil
}

// onMessage parses one inbound wire envelope and hands the raw value
// upward. Malformed payloads are logged and dropped, never fatal.
func (l *DeviceLink) onMessage(_ mqtt.Client, msg mqtt.Message) {
	sensorID := sensorIDFromTopic(msg.Topic())
	raw, err := parsePayload(msg.Payload())
	if err != nil {
		l.logger.Error("Invalid payload, dropping message",
			zap.String("topic", msg.Topic()),
			zap.Error(err),
		)
		return
	}
	l.handler.HandleSensorValue(l.serial, sensorID, raw)
}

// Publish sends a raw value to a sensor's set topic.
func (l *DeviceLink) Publish(sensorID, rawValue string) error {
	l.mu.Lock()
	client := l.client
	connected := l.state == StateConnected
	l.mu.Unlock()

	if !connected || client == nil {
		return fmt.Errorf("device %s is not connected", l.serial)
	}

	payload, err := json.Marshal(map[string]string{"v": rawValue})
	if err != nil {
		return err
	}
	token := client.Publish(l.topic("s", sensorID), 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to sensor %s: %w", sensorID, err)
	}
	return nil
}

func (l *DeviceLink) topic(kind, sensorID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", l.opts.DevicePrefix, l.serial, kind, sensorID)
}

// sensorIDFromTopic extracts the sensor id, the last topic path segment.
func sensorIDFromTopic(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

type wirePayload struct {
	V any `json:"v"`
}

// parsePayload decodes the single-field JSON envelope {"v": <value>}.
func parsePayload(payload []byte) (any, error) {
	var p wirePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.V == nil {
		return nil, fmt.Errorf("payload has no v field")
	}
	return p.V, nil
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
