package sensors

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oszuidwest/noisesense/internal/location"
	"github.com/oszuidwest/noisesense/internal/motion"
)

// ProviderMQTT names fixes received over MQTT.
const ProviderMQTT = "mqtt"

// MQTTConfig holds broker and topic settings.
type MQTTConfig struct {
	Broker        string
	ClientID      string
	Username      string
	Password      string
	MotionTopic   string
	LocationTopic string
}

// Subscriber writes motion and location messages into cells.
type Subscriber struct {
	client   mqtt.Client
	cfg      MQTTConfig
	motion   *motion.Cell
	location *location.Cell
}

// NewSubscriber creates a subscriber without connecting.
func NewSubscriber(cfg MQTTConfig, mc *motion.Cell, lc *location.Cell) *Subscriber {
	s := &Subscriber{cfg: cfg, motion: mc, location: lc}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	// Subscriptions are lost on reconnect with a clean session.
	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("mqtt connected", "broker", cfg.Broker)
		if err := s.subscribe(); err != nil {
			slog.Error("mqtt subscribe failed", "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect dials the broker. Topics are subscribed on every (re)connect.
func (s *Subscriber) Connect() error {
	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	return nil
}

func (s *Subscriber) subscribe() error {
	if s.cfg.MotionTopic != "" {
		if token := s.client.Subscribe(s.cfg.MotionTopic, 0, s.handleMotion); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", s.cfg.MotionTopic, token.Error())
		}
		slog.Info("subscribed to motion topic", "topic", s.cfg.MotionTopic)
	}
	if s.cfg.LocationTopic != "" {
		if token := s.client.Subscribe(s.cfg.LocationTopic, 1, s.handleLocation); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", s.cfg.LocationTopic, token.Error())
		}
		slog.Info("subscribed to location topic", "topic", s.cfg.LocationTopic)
	}
	return nil
}

// IsConnected reports whether the client is connected to the broker.
func (s *Subscriber) IsConnected() bool {
	return s.client.IsConnected()
}

// Close disconnects from the broker.
func (s *Subscriber) Close() {
	s.client.Disconnect(250)
	slog.Info("mqtt disconnected")
}

func (s *Subscriber) handleMotion(_ mqtt.Client, msg mqtt.Message) {
	mag, err := ParseMotion(msg.Payload())
	if err != nil {
		slog.Debug("ignoring motion message", "topic", msg.Topic(), "error", err)
		return
	}
	if err := s.motion.Store(mag, time.Now()); err != nil {
		slog.Debug("ignoring motion message", "topic", msg.Topic(), "error", err)
	}
}

func (s *Subscriber) handleLocation(_ mqtt.Client, msg mqtt.Message) {
	fix, err := ParseLocation(msg.Payload(), ProviderMQTT)
	if err != nil {
		slog.Warn("ignoring location message", "topic", msg.Topic(), "error", err)
		return
	}
	if err := s.location.Store(fix); err != nil {
		slog.Warn("ignoring location message", "topic", msg.Topic(), "error", err)
	}
}
