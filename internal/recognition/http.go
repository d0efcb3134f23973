package recognition

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPConfig drives the HTTP model client.
type HTTPConfig struct {
	URL      string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
	// RetryAfter is the back-off before the single retry on 429.
	RetryAfter time.Duration
}

// HTTPDetector calls an external object-detection model over HTTP.
type HTTPDetector struct {
	httpClient *http.Client
	url        string
	apiKey     string
	cacheTTL   time.Duration
	retryAfter time.Duration
	cache      sync.Map // map[string]cacheEntry
}

type cacheEntry struct {
	at        time.Time
	detection Detection
}

type detectRequest struct {
	ImageData string `json:"image_data"`
}

// NewHTTPDetector constructs a detector if the configuration names an endpoint.
func NewHTTPDetector(cfg HTTPConfig) (*HTTPDetector, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, ErrDetectorDisabled
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	retry := cfg.RetryAfter
	if retry <= 0 {
		retry = 2 * time.Second
	}

	return &HTTPDetector{
		httpClient: &http.Client{Timeout: timeout},
		url:        endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		cacheTTL:   ttl,
		retryAfter: retry,
	}, nil
}

func (d *HTTPDetector) Name() string { return "http" }

// Enabled reports whether the detector can make outbound calls.
func (d *HTTPDetector) Enabled() bool {
	return d != nil && d.url != ""
}

// Detect sends the image to the model, serving repeated payloads from cache.
func (d *HTTPDetector) Detect(ctx context.Context, image []byte) (Detection, error) {
	if !d.Enabled() {
		return Detection{}, ErrDetectorDisabled
	}

	sum := sha256.Sum256(image)
	key := hex.EncodeToString(sum[:])
	if entry, ok := d.cache.Load(key); ok {
		cached := entry.(cacheEntry)
		if time.Since(cached.at) < d.cacheTTL {
			return copyDetection(cached.detection), nil
		}
		d.cache.Delete(key)
	}

	detection, err := d.performRequest(ctx, image)
	if err != nil {
		return Detection{}, err
	}

	d.cache.Store(key, cacheEntry{at: time.Now(), detection: copyDetection(detection)})
	return detection, nil
}

func (d *HTTPDetector) performRequest(ctx context.Context, image []byte) (Detection, error) {
	body, err := json.Marshal(detectRequest{ImageData: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return Detection{}, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := d.post(ctx, body)
	if err != nil {
		return Detection{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		// back off and retry once
		resp.Body.Close()
		select {
		case <-ctx.Done():
			return Detection{}, ctx.Err()
		case <-time.After(d.retryAfter):
		}
		resp, err = d.post(ctx, body)
		if err != nil {
			return Detection{}, err
		}
		defer resp.Body.Close()
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return Detection{}, fmt.Errorf("%w: model status %d", ErrUnreadableImage, resp.StatusCode)
	default:
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return Detection{}, fmt.Errorf("model status %d: %v", resp.StatusCode, apiErr)
	}

	var detection Detection
	if err := json.NewDecoder(resp.Body).Decode(&detection); err != nil {
		return Detection{}, fmt.Errorf("decode model response: %w", err)
	}
	if detection.Objects == nil {
		return Detection{}, errors.New("model response missing objects")
	}
	return detection, nil
}

func (d *HTTPDetector) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}
	return resp, nil
}

func copyDetection(in Detection) Detection {
	return Detection{Objects: append([]DetectedObject(nil), in.Objects...), NSFW: in.NSFW}
}
