package recognition

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// BackendOptions selects which detector backends to chain. Remote backends fail over in
// order HTTP then MQTT. The fixture detector only answers while no remote backend is
// enabled; it never masks a remote failure.
type BackendOptions struct {
	HTTP           HTTPConfig
	MQTT           MQTTConfig
	DisableFixture bool
}

// NewBackend builds the detector chain and a cleanup func releasing broker connections.
func NewBackend(opts BackendOptions) (Detector, func(), error) {
	cleanup := func() {}
	var remote Detector

	if opts.HTTP.URL != "" {
		httpDetector, err := NewHTTPDetector(opts.HTTP)
		if err != nil {
			return nil, cleanup, fmt.Errorf("http detector: %w", err)
		}
		remote = httpDetector
	}

	if opts.MQTT.Broker != "" {
		mqttDetector, err := NewMQTTDetector(opts.MQTT)
		switch {
		case err != nil && remote == nil:
			return nil, cleanup, fmt.Errorf("mqtt detector: %w", err)
		case err != nil:
			logrus.WithError(err).Warn("mqtt detector unavailable, continuing with http only")
		default:
			remote = WithFailover(remote, mqttDetector)
			cleanup = mqttDetector.Close
		}
	}

	var fixture Detector
	if !opts.DisableFixture {
		fixture = NewFixtureDetector()
	}
	detector := WithFallback(remote, fixture)
	if detector == nil {
		return nil, cleanup, errors.New("no detector backend configured")
	}
	logrus.WithField("detector", detector.Name()).Info("detector backend ready")
	return detector, cleanup, nil
}
