package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"profile-ml/service/internal/recognition"
	"profile-ml/service/internal/scoring"
)

// GenerateRequest carries the raw decision set; decoding is deferred so numbers keep precision.
type GenerateRequest struct {
	Decisions json.RawMessage `json:"decisions"`
}

// ImageRequest carries one base64 image, optionally as a data URL.
type ImageRequest struct {
	ImageData string `json:"image_data"`
}

// BulkImageRequest carries several base64 images.
type BulkImageRequest struct {
	Images []string `json:"images"`
}

// Envelope is the success wrapper every data endpoint returns.
type Envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// CatalogResponse lists the archetype catalog.
type CatalogResponse struct {
	Version    string              `json:"version"`
	Default    string              `json:"default"`
	Archetypes []scoring.Archetype `json:"archetypes"`
}

// TaxonomyResponse lists the object taxonomy together with the active threshold.
type TaxonomyResponse struct {
	Version   string                        `json:"version"`
	Threshold float64                       `json:"threshold"`
	Objects   []recognition.TaxonomyListing `json:"objects"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Event is a websocket payload describing a completed generation or recognition.
type Event struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Archetype string    `json:"archetype,omitempty"`
	Images    int       `json:"images,omitempty"`
	Detected  int       `json:"detected,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventGeneration  = "generation"
	EventRecognition = "recognition"
)

var (
	errDecisionsRequired = errors.New("Decisions required")
	errDecisionsObject   = errors.New("decisions must be a JSON object")
	errImageRequired     = errors.New("Image data required")
	errImageEncoding     = errors.New("image_data must be base64 encoded")
)

func success(data any) Envelope {
	return Envelope{Status: "success", Data: data}
}

// decodeDecisions parses the raw decisions field into a non-empty DecisionSet.
func decodeDecisions(raw json.RawMessage) (scoring.DecisionSet, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errDecisionsRequired
	}
	if trimmed[0] != '{' {
		return nil, errDecisionsObject
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var decisions scoring.DecisionSet
	if err := decoder.Decode(&decisions); err != nil {
		return nil, errDecisionsObject
	}
	if len(decisions) == 0 {
		return nil, errDecisionsRequired
	}
	return decisions, nil
}

// decodeImageData accepts plain base64 or a data URL ("data:image/png;base64,...").
func decodeImageData(value string) ([]byte, error) {
	payload := strings.TrimSpace(value)
	if payload == "" {
		return nil, errImageRequired
	}
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 || !strings.Contains(payload[:idx], ";base64") {
			return nil, errImageEncoding
		}
		payload = payload[idx+1:]
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(payload); err == nil {
			if len(data) == 0 {
				return nil, errImageRequired
			}
			return data, nil
		}
	}
	return nil, errImageEncoding
}

func tagIDs(result recognition.Result) []string {
	out := make([]string, 0, len(result.SuggestedTags))
	for _, tag := range result.SuggestedTags {
		out = append(out, tag.TagID)
	}
	return out
}
