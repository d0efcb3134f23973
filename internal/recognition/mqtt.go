package recognition

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MQTTConfig drives the MQTT RPC detector.
type MQTTConfig struct {
	Broker         string
	Username       string
	Password       string
	TopicPrefix    string
	ConnectTimeout time.Duration
}

// rpcClient is the part of mqtt.Client the detector uses.
type rpcClient interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// MQTTDetector sends detection requests to a model worker over MQTT request/response topics.
type MQTTDetector struct {
	client      rpcClient
	prefix      string
	waitTimeout time.Duration
	disconnect  func()
}

type rpcRequest struct {
	RequestID string `json:"requestId"`
	Payload   string `json:"payload"`
}

type rpcResponse struct {
	Objects []DetectedObject `json:"objects"`
	NSFW    bool             `json:"is_nsfw"`
	Error   string           `json:"error"`
}

const (
	rpcRequestTopic  = "/rpc/detectObjects/request"
	rpcResponseTopic = "/rpc/detectObjects/response/"
)

// NewMQTTDetector connects to the broker and returns a detector bound to it.
func NewMQTTDetector(cfg MQTTConfig) (*MQTTDetector, error) {
	broker := strings.TrimSpace(cfg.Broker)
	if broker == "" {
		return nil, ErrDetectorDisabled
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	clientID := "profile-ml-" + uuid.New().String()
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	logrus.WithFields(logrus.Fields{"broker": broker, "client_id": clientID}).Info("connected to mqtt")

	detector := newMQTTDetector(client, cfg.TopicPrefix, timeout)
	detector.disconnect = func() { client.Disconnect(250) }
	return detector, nil
}

func newMQTTDetector(client rpcClient, prefix string, waitTimeout time.Duration) *MQTTDetector {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "/profile-ml"
	}
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	return &MQTTDetector{client: client, prefix: prefix, waitTimeout: waitTimeout}
}

func (d *MQTTDetector) Name() string { return "mqtt" }

// Enabled reports whether the broker connection is up.
func (d *MQTTDetector) Enabled() bool {
	return d != nil && d.client != nil && d.client.IsConnected()
}

// Detect publishes the image on the request topic and waits for the correlated response.
func (d *MQTTDetector) Detect(ctx context.Context, image []byte) (Detection, error) {
	if !d.Enabled() {
		return Detection{}, ErrDetectorDisabled
	}

	reqID := uuid.New().String()
	respTopic := d.prefix + rpcResponseTopic + reqID
	replies := make(chan []byte, 1)
	sub := d.client.Subscribe(respTopic, 1, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case replies <- m.Payload():
		default:
		}
	})
	if err := d.wait(sub); err != nil {
		return Detection{}, fmt.Errorf("subscribe %s: %w", respTopic, err)
	}
	defer d.client.Unsubscribe(respTopic)

	payload, err := json.Marshal(rpcRequest{RequestID: reqID, Payload: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return Detection{}, fmt.Errorf("marshal rpc request: %w", err)
	}
	if err := d.wait(d.client.Publish(d.prefix+rpcRequestTopic, 1, false, payload)); err != nil {
		return Detection{}, fmt.Errorf("publish rpc request: %w", err)
	}

	timer := time.NewTimer(d.waitTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Detection{}, ctx.Err()
	case <-timer.C:
		return Detection{}, fmt.Errorf("no rpc response on %s within %s", respTopic, d.waitTimeout)
	case raw := <-replies:
		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return Detection{}, fmt.Errorf("decode rpc response: %w", err)
		}
		if resp.Error != "" {
			return Detection{}, fmt.Errorf("model worker: %s", resp.Error)
		}
		return Detection{Objects: resp.Objects, NSFW: resp.NSFW}, nil
	}
}

// Close disconnects from the broker.
func (d *MQTTDetector) Close() {
	if d != nil && d.disconnect != nil {
		d.disconnect()
	}
}

func (d *MQTTDetector) wait(token mqtt.Token) error {
	if !token.WaitTimeout(d.waitTimeout) {
		return errors.New("mqtt operation timed out")
	}
	return token.Error()
}
