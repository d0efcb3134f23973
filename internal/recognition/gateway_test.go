package recognition

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"

	"profile-ml/service/internal/apperr"
)

type stubDetector struct {
	enabled bool
	calls   atomic.Int32
	detect  func(image []byte) (Detection, error)
}

func (s *stubDetector) Name() string  { return "stub" }
func (s *stubDetector) Enabled() bool { return s.enabled }

func (s *stubDetector) Detect(_ context.Context, image []byte) (Detection, error) {
	s.calls.Add(1)
	return s.detect(image)
}

func newTestGateway(t *testing.T, detector Detector, cfg Config) *Gateway {
	t.Helper()
	taxonomy, err := DefaultTaxonomy()
	if err != nil {
		t.Fatalf("default taxonomy: %v", err)
	}
	return NewGateway(taxonomy, detector, cfg)
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestRecognizeFixtureDetections(t *testing.T) {
	gateway := newTestGateway(t, NewFixtureDetector(), Config{})
	result, err := gateway.Recognize(context.Background(), pngBytes(t, 64, 64))
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if len(result.DetectedObjects) != 2 {
		t.Fatalf("expected 2 detections got %+v", result.DetectedObjects)
	}
	want := []SuggestedTag{
		{TagID: "bdsm.impact", Confidence: 0.92, Object: "whip"},
		{TagID: "bdsm.bondage", Confidence: 0.85, Object: "rope"},
	}
	if len(result.SuggestedTags) != len(want) {
		t.Fatalf("expected %d tags got %+v", len(want), result.SuggestedTags)
	}
	for i, tag := range want {
		if result.SuggestedTags[i] != tag {
			t.Fatalf("tag %d: expected %+v got %+v", i, tag, result.SuggestedTags[i])
		}
	}
	if result.DetectedObjects[0].BBox != [4]float64{10, 20, 100, 150} {
		t.Fatalf("unexpected bbox %v", result.DetectedObjects[0].BBox)
	}
	if result.IsNSFW {
		t.Fatalf("fixture detector must not flag nsfw")
	}
}

func TestRecognizeThresholdAndTaxonomy(t *testing.T) {
	detector := NewFixtureDetector(
		DetectedObject{Object: "whip", Confidence: 0.69},
		DetectedObject{Object: "Rope", Confidence: 0.7},
		DetectedObject{Object: "teddy_bear", Confidence: 0.99},
		DetectedObject{Object: "handcuffs", Confidence: 1.5},
	)
	gateway := newTestGateway(t, detector, Config{})
	result, err := gateway.Recognize(context.Background(), pngBytes(t, 8, 8))
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if len(result.DetectedObjects) != 2 {
		t.Fatalf("expected rope and teddy_bear got %+v", result.DetectedObjects)
	}
	for _, obj := range result.DetectedObjects {
		if obj.Confidence < gateway.Threshold() {
			t.Fatalf("detection below threshold returned: %+v", obj)
		}
	}
	if len(result.SuggestedTags) != 1 || result.SuggestedTags[0].Object != "rope" {
		t.Fatalf("expected only rope to be tagged got %+v", result.SuggestedTags)
	}
	if len(result.SuggestedTags) > len(result.DetectedObjects) {
		t.Fatalf("more tags than detections")
	}
}

func TestRecognizeCustomThreshold(t *testing.T) {
	gateway := newTestGateway(t, NewFixtureDetector(), Config{Threshold: 0.9})
	result, err := gateway.Recognize(context.Background(), pngBytes(t, 8, 8))
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if len(result.DetectedObjects) != 1 || result.DetectedObjects[0].Object != "whip" {
		t.Fatalf("expected only whip above 0.9 got %+v", result.DetectedObjects)
	}
}

func TestRecognizeNoDetectionsEncodesEmptyLists(t *testing.T) {
	detector := &stubDetector{enabled: true, detect: func([]byte) (Detection, error) { return Detection{}, nil }}
	gateway := newTestGateway(t, detector, Config{})
	result, err := gateway.Recognize(context.Background(), pngBytes(t, 8, 8))
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if result.DetectedObjects == nil || result.SuggestedTags == nil {
		t.Fatalf("empty results must be non-nil slices: %+v", result)
	}
}

func TestRecognizeErrors(t *testing.T) {
	failing := &stubDetector{enabled: true, detect: func([]byte) (Detection, error) {
		return Detection{}, errors.New("model crashed")
	}}
	unreadable := &stubDetector{enabled: true, detect: func([]byte) (Detection, error) {
		return Detection{}, ErrUnreadableImage
	}}
	disabled := &stubDetector{enabled: false}

	img := pngBytes(t, 8, 8)
	tests := []struct {
		name     string
		detector Detector
		image    []byte
		kind     apperr.Kind
	}{
		{"empty payload", NewFixtureDetector(), nil, apperr.KindInput},
		{"not an image", NewFixtureDetector(), []byte("hello"), apperr.KindInput},
		{"truncated png", NewFixtureDetector(), img[:12], apperr.KindInput},
		{"detector failure", failing, img, apperr.KindInternal},
		{"unreadable image", unreadable, img, apperr.KindInput},
		{"disabled detector", disabled, img, apperr.KindInternal},
		{"no detector", nil, img, apperr.KindInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gateway := newTestGateway(t, tc.detector, Config{})
			_, err := gateway.Recognize(context.Background(), tc.image)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := apperr.KindOf(err); got != tc.kind {
				t.Fatalf("expected %s got %s (%v)", tc.kind, got, err)
			}
		})
	}
	if disabled.calls.Load() != 0 {
		t.Fatalf("disabled detector must not be called")
	}
}

func TestRecognizeBulkKeepsOrder(t *testing.T) {
	labels := []string{"whip", "rope", "collar", "diaper", "paddle"}
	detector := &stubDetector{enabled: true, detect: func(image []byte) (Detection, error) {
		info, err := readHeader(image)
		if err != nil {
			return Detection{}, err
		}
		return Detection{Objects: []DetectedObject{{Object: labels[info.Width-1], Confidence: 0.9}}}, nil
	}}
	gateway := newTestGateway(t, detector, Config{BulkConcurrency: 2})
	images := make([][]byte, len(labels))
	for i := range labels {
		images[i] = pngBytes(t, i+1, 1)
	}

	results, err := gateway.RecognizeBulk(context.Background(), images)
	if err != nil {
		t.Fatalf("recognize bulk: %v", err)
	}
	if len(results) != len(labels) {
		t.Fatalf("expected %d results got %d", len(labels), len(results))
	}
	for i, label := range labels {
		if results[i].DetectedObjects[0].Object != label {
			t.Fatalf("result %d: expected %s got %+v", i, label, results[i].DetectedObjects)
		}
	}
	if int(detector.calls.Load()) != len(labels) {
		t.Fatalf("expected %d detector calls got %d", len(labels), detector.calls.Load())
	}
}

func TestRecognizeBulkRejectsBadInput(t *testing.T) {
	gateway := newTestGateway(t, NewFixtureDetector(), Config{BulkLimit: 2})
	tests := []struct {
		name   string
		images [][]byte
	}{
		{"no images", nil},
		{"empty image", [][]byte{{1}, {}}},
		{"over limit", [][]byte{{1}, {2}, {3}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gateway.RecognizeBulk(context.Background(), tc.images)
			if apperr.KindOf(err) != apperr.KindInput || err == nil {
				t.Fatalf("expected input error got %v", err)
			}
		})
	}
}

func TestRecognizeBulkPropagatesFailure(t *testing.T) {
	bad := pngBytes(t, 2, 2)
	detector := &stubDetector{enabled: true, detect: func(image []byte) (Detection, error) {
		if bytes.Equal(image, bad) {
			return Detection{}, errors.New("boom")
		}
		return Detection{}, nil
	}}
	gateway := newTestGateway(t, detector, Config{})
	_, err := gateway.RecognizeBulk(context.Background(), [][]byte{pngBytes(t, 1, 1), bad})
	if err == nil || apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error got %v", err)
	}
	if !strings.Contains(err.Error(), "image 1") {
		t.Fatalf("error should name the failing image: %v", err)
	}
}

func TestRecognizeAndValidateAgreeOnUnreadableBytes(t *testing.T) {
	detector := &stubDetector{enabled: true, detect: func([]byte) (Detection, error) {
		return Detection{Objects: DefaultFixture()}, nil
	}}
	gateway := newTestGateway(t, detector, Config{})
	payload := []byte("hello")

	validation, err := gateway.Validate(context.Background(), payload)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validation.IsValid {
		t.Fatalf("validate accepted non-image bytes")
	}
	if _, err := gateway.Recognize(context.Background(), payload); apperr.KindOf(err) != apperr.KindInput {
		t.Fatalf("expected input error got %v", err)
	}
	if detector.calls.Load() != 0 {
		t.Fatalf("detector must not see undecodable payloads")
	}
}

func TestRecognizeBulkRejectsUndecodableImage(t *testing.T) {
	gateway := newTestGateway(t, NewFixtureDetector(), Config{})
	_, err := gateway.RecognizeBulk(context.Background(), [][]byte{pngBytes(t, 4, 4), []byte("garbage")})
	if apperr.KindOf(err) != apperr.KindInput {
		t.Fatalf("expected input error got %v", err)
	}
	if !strings.Contains(err.Error(), "image 1") {
		t.Fatalf("error should name the failing image: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		image    []byte
		cfg      Config
		valid    bool
		quality  float64
		warnings []string
	}{
		{"full hd portrait", pngBytes(t, 1080, 1350), Config{}, true, 1, []string{}},
		{"medium", pngBytes(t, 540, 600), Config{}, true, 0.5, []string{}},
		{"low resolution", pngBytes(t, 300, 400), Config{}, true, 0.28, []string{"low resolution image"}},
		{
			"below minimum", pngBytes(t, 100, 800), Config{}, false, 0.09,
			[]string{"image resolution 100x800 below minimum 200px", "low resolution image"},
		},
		{"corrupt", []byte("definitely not an image"), Config{}, false, 0, []string{"unsupported or corrupt image data"}},
		{"too large", pngBytes(t, 600, 600), Config{MaxImageBytes: 10}, false, 0.56, []string{"image exceeds 10 byte limit"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gateway := newTestGateway(t, NewFixtureDetector(), tc.cfg)
			result, err := gateway.Validate(context.Background(), tc.image)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if result.IsValid != tc.valid {
				t.Fatalf("expected valid=%v got %+v", tc.valid, result)
			}
			if result.QualityScore != tc.quality {
				t.Fatalf("expected quality %v got %v", tc.quality, result.QualityScore)
			}
			if strings.Join(result.Warnings, "|") != strings.Join(tc.warnings, "|") {
				t.Fatalf("expected warnings %q got %q", tc.warnings, result.Warnings)
			}
			if result.IsNSFW {
				t.Fatalf("validate must not flag nsfw")
			}
		})
	}
}

func TestValidateReportsFormat(t *testing.T) {
	gateway := newTestGateway(t, nil, Config{})
	result, err := gateway.Validate(context.Background(), pngBytes(t, 640, 480))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Format != "png" || result.Width != 640 || result.Height != 480 {
		t.Fatalf("unexpected header info %+v", result)
	}
}

func TestValidateEmptyPayload(t *testing.T) {
	gateway := newTestGateway(t, nil, Config{})
	_, err := gateway.Validate(context.Background(), nil)
	if err == nil || apperr.KindOf(err) != apperr.KindInput {
		t.Fatalf("expected input error got %v", err)
	}
}
