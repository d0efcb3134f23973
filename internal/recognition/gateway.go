package recognition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"profile-ml/service/internal/apperr"
	"profile-ml/service/internal/match"
	"profile-ml/service/internal/util"
)

const (
	DefaultThreshold       = 0.7
	DefaultMaxImageBytes   = 10 << 20
	DefaultMinDimension    = 200
	DefaultBulkLimit       = 20
	DefaultBulkConcurrency = 4

	lowResolutionSide = 480
	fullQualitySide   = 1080
)

// Config tunes the gateway. Zero values select the defaults above.
type Config struct {
	Threshold       float64
	MaxImageBytes   int
	MinDimension    int
	DetectorTimeout time.Duration
	BulkLimit       int
	BulkConcurrency int
}

// SuggestedTag is a taxonomy category proposed for a detected object.
type SuggestedTag struct {
	TagID      string  `json:"tagId"`
	Confidence float64 `json:"confidence"`
	Object     string  `json:"object"`
}

// Result is the outcome of recognising one image.
type Result struct {
	DetectedObjects []DetectedObject `json:"detected_objects"`
	SuggestedTags   []SuggestedTag   `json:"suggested_tags"`
	IsNSFW          bool             `json:"is_nsfw"`
}

// ValidationResult describes whether an image is usable as a profile photo.
type ValidationResult struct {
	IsValid      bool     `json:"is_valid"`
	IsNSFW       bool     `json:"is_nsfw"`
	QualityScore float64  `json:"quality_score"`
	Warnings     []string `json:"warnings"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	Format       string   `json:"format,omitempty"`
}

// Gateway maps detector output onto taxonomy tags and validates uploads.
type Gateway struct {
	taxonomy *Taxonomy
	detector Detector
	cfg      Config
}

// NewGateway wires a taxonomy and detector into a gateway.
func NewGateway(taxonomy *Taxonomy, detector Detector, cfg Config) *Gateway {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 || math.IsNaN(cfg.Threshold) {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	if cfg.MinDimension <= 0 {
		cfg.MinDimension = DefaultMinDimension
	}
	if cfg.BulkLimit <= 0 {
		cfg.BulkLimit = DefaultBulkLimit
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = DefaultBulkConcurrency
	}
	return &Gateway{taxonomy: taxonomy, detector: detector, cfg: cfg}
}

// Threshold reports the minimum confidence a detection needs to be returned.
func (g *Gateway) Threshold() float64 {
	if g == nil {
		return DefaultThreshold
	}
	return g.cfg.Threshold
}

// Taxonomy exposes the lookup table the gateway tags with.
func (g *Gateway) Taxonomy() *Taxonomy {
	if g == nil {
		return nil
	}
	return g.taxonomy
}

// DetectorName names the active detector backend.
func (g *Gateway) DetectorName() string {
	if g == nil || g.detector == nil {
		return ""
	}
	return g.detector.Name()
}

// Recognize detects objects in image and suggests a tag for each known object.
func (g *Gateway) Recognize(ctx context.Context, image []byte) (Result, error) {
	const op = "recognize"
	if len(image) == 0 {
		return Result{}, apperr.Input(op, "image data required")
	}
	header, err := readHeader(image)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"op": op, "bytes": len(image)}).Warn("image header unreadable")
		return Result{}, apperr.Input(op, "image data could not be decoded")
	}
	if g == nil || g.detector == nil || !g.detector.Enabled() {
		logrus.WithField("op", op).Error("no detector available")
		return Result{}, apperr.Internal(op, ErrDetectorDisabled)
	}

	timer := util.StartTimer()
	if g.cfg.DetectorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.DetectorTimeout)
		defer cancel()
	}

	detection, err := g.detector.Detect(ctx, image)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"op":       op,
			"detector": g.detector.Name(),
		}).Error("object detection failed")
		if errors.Is(err, ErrUnreadableImage) {
			return Result{}, apperr.Input(op, "image data could not be decoded")
		}
		return Result{}, apperr.Internal(op, err)
	}

	result := g.tag(detection)
	logrus.WithFields(logrus.Fields{
		"detector": g.detector.Name(),
		"format":   header.Format,
		"raw":      len(detection.Objects),
		"detected": len(result.DetectedObjects),
		"tags":     len(result.SuggestedTags),
		"nsfw":     result.IsNSFW,
		"duration": timer.Elapsed(),
	}).Info("objects recognized")
	return result, nil
}

func (g *Gateway) tag(detection Detection) Result {
	result := Result{
		DetectedObjects: make([]DetectedObject, 0, len(detection.Objects)),
		SuggestedTags:   make([]SuggestedTag, 0, len(detection.Objects)),
		IsNSFW:          detection.NSFW,
	}
	for _, obj := range detection.Objects {
		if math.IsNaN(obj.Confidence) || obj.Confidence < g.cfg.Threshold || obj.Confidence > 1 {
			continue
		}
		obj.Object = match.NormalizeLabel(obj.Object)
		if obj.Object == "" {
			continue
		}
		result.DetectedObjects = append(result.DetectedObjects, obj)
		if entry, ok := g.taxonomy.Lookup(obj.Object); ok {
			result.SuggestedTags = append(result.SuggestedTags, SuggestedTag{
				TagID:      entry.Category,
				Confidence: obj.Confidence,
				Object:     obj.Object,
			})
		}
	}
	return result
}

// RecognizeBulk recognises several images concurrently; results keep input order.
func (g *Gateway) RecognizeBulk(ctx context.Context, images [][]byte) ([]Result, error) {
	const op = "recognize_bulk"
	if len(images) == 0 {
		return nil, apperr.Input(op, "at least one image required")
	}
	if g == nil {
		return nil, apperr.Internal(op, ErrDetectorDisabled)
	}
	if len(images) > g.cfg.BulkLimit {
		return nil, apperr.Input(op, "at most %d images per request", g.cfg.BulkLimit)
	}
	for i, image := range images {
		if len(image) == 0 {
			return nil, apperr.Input(op, "image %d is empty", i)
		}
	}

	results := make([]Result, len(images))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.cfg.BulkConcurrency)
	for i, image := range images {
		i, image := i, image
		group.Go(func() error {
			result, err := g.Recognize(groupCtx, image)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Validate inspects an upload for format, size, resolution and privacy-sensitive metadata.
func (g *Gateway) Validate(_ context.Context, image []byte) (ValidationResult, error) {
	const op = "validate"
	if len(image) == 0 {
		return ValidationResult{}, apperr.Input(op, "image data required")
	}
	cfg := g.config()

	result := ValidationResult{IsValid: true, Warnings: []string{}}
	info, err := inspectImage(image)
	if err != nil {
		logrus.WithError(err).WithField("bytes", len(image)).Warn("image header unreadable")
		result.IsValid = false
		result.Warnings = append(result.Warnings, "unsupported or corrupt image data")
	}
	if len(image) > cfg.MaxImageBytes {
		result.IsValid = false
		result.Warnings = append(result.Warnings, fmt.Sprintf("image exceeds %d byte limit", cfg.MaxImageBytes))
	}
	if err != nil {
		return result, nil
	}

	result.Width, result.Height, result.Format = info.Width, info.Height, info.Format
	short := info.shortSide()
	result.QualityScore = qualityScore(short)
	if short < cfg.MinDimension {
		result.IsValid = false
		result.Warnings = append(result.Warnings, fmt.Sprintf("image resolution %dx%d below minimum %dpx", info.Width, info.Height, cfg.MinDimension))
	}
	if short < lowResolutionSide {
		result.Warnings = append(result.Warnings, "low resolution image")
	}
	if info.GPS {
		result.Warnings = append(result.Warnings, "image contains GPS location metadata")
	}
	if info.Serial {
		result.Warnings = append(result.Warnings, "image contains device serial metadata")
	}
	return result, nil
}

func (g *Gateway) config() Config {
	if g == nil {
		return NewGateway(nil, nil, Config{}).cfg
	}
	return g.cfg
}

func qualityScore(shortSide int) float64 {
	q := float64(shortSide) / fullQualitySide
	if q > 1 {
		q = 1
	}
	return math.Round(q*100) / 100
}
