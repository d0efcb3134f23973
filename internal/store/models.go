package store

import (
	"encoding/json"
	"strings"
	"time"
)

// GenerationEvent records that a character profile was generated. Decisions and the
// profile itself are never stored, only the outcome and counters.
type GenerationEvent struct {
	ID         uint   `gorm:"primaryKey"`
	RequestID  string `gorm:"size:64;index"`
	Archetype  string `gorm:"size:64;index"`
	Dominance  int
	Submission int
	Decisions  int
	Warnings   int
	DurationMs int64
	CreatedAt  time.Time `gorm:"index"`
}

// RecognitionEvent records one recognition call over one or more images.
type RecognitionEvent struct {
	ID         uint   `gorm:"primaryKey"`
	RequestID  string `gorm:"size:64;index"`
	Detector   string `gorm:"size:64"`
	Images     int
	Detected   int
	Tags       int
	NSFW       bool
	TagIDsJSON string `gorm:"column:tag_ids_json;type:text"`
	DurationMs int64
	CreatedAt  time.Time `gorm:"index"`
}

// SetTagIDs persists the suggested tag categories as JSON.
func (e *RecognitionEvent) SetTagIDs(tagIDs []string) {
	if tagIDs == nil {
		e.TagIDsJSON = "[]"
		return
	}
	payload, _ := json.Marshal(tagIDs)
	e.TagIDsJSON = string(payload)
}

// TagIDs returns the unmarshalled tag categories.
func (e *RecognitionEvent) TagIDs() []string {
	if strings.TrimSpace(e.TagIDsJSON) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(e.TagIDsJSON), &out); err != nil {
		return nil
	}
	return out
}
