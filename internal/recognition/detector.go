package recognition

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrDetectorDisabled is returned when no detector backend can serve a request.
var ErrDetectorDisabled = errors.New("object detector disabled")

// ErrUnreadableImage marks payloads a detector backend refused to decode.
var ErrUnreadableImage = errors.New("unreadable image payload")

// DetectedObject is one object found in an image. BBox is x, y, width, height in source pixels.
type DetectedObject struct {
	Object     string     `json:"object"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

// Detection is the raw output of a detector backend.
type Detection struct {
	Objects []DetectedObject `json:"objects"`
	NSFW    bool             `json:"is_nsfw"`
}

// Detector abstracts the object-detection model.
type Detector interface {
	Name() string
	Enabled() bool
	Detect(ctx context.Context, image []byte) (Detection, error)
}

// DefaultFixture is the fixed detection set served until a real model is wired.
func DefaultFixture() []DetectedObject {
	return []DetectedObject{
		{Object: "whip", Confidence: 0.92, BBox: [4]float64{10, 20, 100, 150}},
		{Object: "rope", Confidence: 0.85, BBox: [4]float64{150, 50, 200, 180}},
	}
}

// FixtureDetector returns the same detections for every image.
type FixtureDetector struct {
	objects []DetectedObject
	nsfw    bool
}

// NewFixtureDetector builds a fixture detector; with no objects it serves DefaultFixture.
func NewFixtureDetector(objects ...DetectedObject) *FixtureDetector {
	if len(objects) == 0 {
		objects = DefaultFixture()
	}
	return &FixtureDetector{objects: append([]DetectedObject(nil), objects...)}
}

func (f *FixtureDetector) Name() string { return "fixture" }

func (f *FixtureDetector) Enabled() bool { return f != nil }

func (f *FixtureDetector) Detect(ctx context.Context, _ []byte) (Detection, error) {
	if f == nil {
		return Detection{}, ErrDetectorDisabled
	}
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}
	return Detection{
		Objects: append([]DetectedObject(nil), f.objects...),
		NSFW:    f.nsfw,
	}, nil
}

type detectorChain struct {
	primary  Detector
	fallback Detector
	// failover also routes primary errors to the fallback, not only a disabled primary.
	failover bool
}

// WithFallback returns a detector that uses the fallback only while the primary is disabled.
// Errors from an enabled primary are returned as is.
func WithFallback(primary, fallback Detector) Detector {
	return newChain(primary, fallback, false)
}

// WithFailover returns a detector that retries a failed primary on the secondary backend.
// Unreadable payloads are never retried.
func WithFailover(primary, secondary Detector) Detector {
	return newChain(primary, secondary, true)
}

func newChain(primary, fallback Detector, failover bool) Detector {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	return &detectorChain{primary: primary, fallback: fallback, failover: failover}
}

func (c *detectorChain) Name() string {
	return c.primary.Name() + "+" + c.fallback.Name()
}

func (c *detectorChain) Enabled() bool {
	if c == nil {
		return false
	}
	return c.primary.Enabled() || c.fallback.Enabled()
}

func (c *detectorChain) Detect(ctx context.Context, image []byte) (Detection, error) {
	if c == nil {
		return Detection{}, ErrDetectorDisabled
	}
	if c.primary.Enabled() {
		detection, err := c.primary.Detect(ctx, image)
		if err == nil {
			return detection, nil
		}
		if !c.failover || errors.Is(err, ErrUnreadableImage) || ctx.Err() != nil {
			return Detection{}, err
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"detector":  c.primary.Name(),
			"secondary": c.fallback.Name(),
		}).Warn("primary detector failed, failing over")
	} else {
		logrus.WithFields(logrus.Fields{
			"detector": c.primary.Name(),
			"fallback": c.fallback.Name(),
		}).Warn("detector disabled, using fallback")
	}
	if c.fallback.Enabled() {
		return c.fallback.Detect(ctx, image)
	}
	return Detection{}, ErrDetectorDisabled
}
