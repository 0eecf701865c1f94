// Package mqttsink publishes the robot velocity estimate and controller statistics to an MQTT broker.
package mqttsink

import (
	"encoding/json"
	"flag"
	"sync"
	"time"

	"github.com/antongulenko/unav/drive"
	"github.com/antongulenko/unav/kinematics"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var DefaultConfig = Config{
	Topic:          "unav",
	QoS:            0,
	Interval:       100 * time.Millisecond,
	ConnectTimeout: 5 * time.Second,
}

type Config struct {
	Broker         string // Empty disables publishing
	Topic          string
	QoS            uint
	Interval       time.Duration // Minimum time between two published estimates
	ConnectTimeout time.Duration
}

func (c *Config) RegisterFlags() {
	flag.StringVar(&c.Broker, "mqtt-broker", c.Broker, "MQTT broker URL for publishing the velocity estimate, e.g. tcp://localhost:1883 (empty to disable)")
	flag.StringVar(&c.Topic, "mqtt-topic", c.Topic, "MQTT topic prefix")
	flag.UintVar(&c.QoS, "mqtt-qos", c.QoS, "MQTT quality of service level (0-2)")
	flag.DurationVar(&c.Interval, "mqtt-interval", c.Interval, "Minimum interval between published estimates")
}

func (c Config) Enabled() bool {
	return c.Broker != ""
}

// Estimate is the JSON payload published for each velocity estimate.
type Estimate struct {
	Forward    float64 `json:"forward"`    // m/s
	Rotational float64 `json:"rotational"` // deg/s
	Timestamp  float64 `json:"timestamp"`  // Unix seconds
	Source     string  `json:"source"`
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Sink publishes estimates without blocking the caller. Estimates arriving faster than
// Config.Interval are dropped.
type Sink struct {
	client   publisher
	topic    string
	qos      byte
	interval time.Duration
	source   string
	now      func() time.Time

	mutex     sync.Mutex
	last      time.Time
	lastToken mqtt.Token
}

// Connect opens the broker connection. The client reconnects automatically after losing it.
func (c Config) Connect() (*Sink, error) {
	if c.QoS > 2 {
		return nil, errors.Errorf("Invalid MQTT QoS level %v", c.QoS)
	}
	clientID := "unav-" + uuid.NewString()
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Printf("Connected to MQTT broker %v", c.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warnf("Lost connection to MQTT broker %v: %v", c.Broker, err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(c.ConnectTimeout) {
		return nil, errors.Errorf("Timed out connecting to MQTT broker %v", c.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "Failed to connect to MQTT broker %v", c.Broker)
	}
	return c.newSink(client, clientID), nil
}

func (c Config) newSink(client publisher, source string) *Sink {
	return &Sink{
		client:   client,
		topic:    c.Topic,
		qos:      byte(c.QoS),
		interval: c.Interval,
		source:   source,
		now:      time.Now,
	}
}

// Observe matches drive.Config.OnEstimate.
func (s *Sink) Observe(v kinematics.Velocity) {
	now := s.now()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return
	}
	s.last = now
	s.publish(s.topic+"/estimate", Estimate{
		Forward:    v.Forward,
		Rotational: v.Rotational,
		Timestamp:  float64(now.UnixNano()) / float64(time.Second),
		Source:     s.source,
	})
}

// PublishStats publishes the scheduler counters.
func (s *Sink) PublishStats(stats drive.ControllerStats) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.publish(s.topic+"/stats", stats)
}

func (s *Sink) publish(topic string, value interface{}) {
	if s.lastToken != nil {
		select {
		case <-s.lastToken.Done():
			if err := s.lastToken.Error(); err != nil {
				log.Warnf("MQTT publish failed: %v", err)
			}
		default:
		}
	}
	payload, err := json.Marshal(value)
	if err != nil {
		log.Warnf("Failed to encode MQTT payload for %v: %v", topic, err)
		return
	}
	s.lastToken = s.client.Publish(topic, s.qos, false, payload)
}

func (s *Sink) Close() {
	s.client.Disconnect(250)
}
