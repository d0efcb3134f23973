package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

// ArchetypeCount is the number of generated profiles per archetype.
type ArchetypeCount struct {
	Archetype string `json:"archetype"`
	Total     int64  `json:"total"`
}

// TagCount is the number of times a tag category was suggested.
type TagCount struct {
	TagID string `json:"tag_id"`
	Total int64  `json:"total"`
}

// RecognitionTotals sums recognition events.
type RecognitionTotals struct {
	Requests int64 `json:"requests"`
	Images   int64 `json:"images"`
	Detected int64 `json:"detected"`
	Tags     int64 `json:"tags"`
	NSFW     int64 `json:"nsfw"`
}

// Stats is the aggregate audit view.
type Stats struct {
	Generations int64             `json:"generations"`
	Archetypes  []ArchetypeCount  `json:"archetypes"`
	Recognition RecognitionTotals `json:"recognition"`
	Tags        []TagCount        `json:"tags"`
}

// ArchetypeCounts groups generation events by archetype, most frequent first.
// A zero since includes every event.
func (d *Database) ArchetypeCounts(since time.Time) ([]ArchetypeCount, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	query := sinceScope(d.gorm.Table("generation_events"), since).
		Select("archetype, COUNT(*) AS total").
		Group("archetype").
		Order("total DESC, archetype ASC")

	results := []ArchetypeCount{}
	if err := query.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("archetype counts: %w", err)
	}
	return results, nil
}

// RecognitionTotals sums recognition counters.
func (d *Database) RecognitionTotals(since time.Time) (RecognitionTotals, error) {
	if d == nil {
		return RecognitionTotals{}, errors.New("database is nil")
	}
	var totals RecognitionTotals
	query := sinceScope(d.gorm.Table("recognition_events"), since).
		Select("COUNT(*) AS requests, " +
			"COALESCE(SUM(images), 0) AS images, " +
			"COALESCE(SUM(detected), 0) AS detected, " +
			"COALESCE(SUM(tags), 0) AS tags, " +
			"COALESCE(SUM(CASE WHEN nsfw THEN 1 ELSE 0 END), 0) AS nsfw")
	if err := query.Scan(&totals).Error; err != nil {
		return RecognitionTotals{}, fmt.Errorf("recognition totals: %w", err)
	}
	return totals, nil
}

// TagCounts tallies suggested tag categories across recognition events.
func (d *Database) TagCounts(since time.Time) ([]TagCount, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	counts := make(map[string]int64)
	var rows []RecognitionEvent
	result := sinceScope(d.gorm.Model(&RecognitionEvent{}), since).
		Select("id", "tag_ids_json").
		FindInBatches(&rows, 500, func(_ *gorm.DB, _ int) error {
			for i := range rows {
				for _, tagID := range rows[i].TagIDs() {
					counts[tagID]++
				}
			}
			return nil
		})
	if result.Error != nil {
		return nil, fmt.Errorf("tag counts: %w", result.Error)
	}

	out := make([]TagCount, 0, len(counts))
	for tagID, total := range counts {
		out = append(out, TagCount{TagID: tagID, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].TagID < out[j].TagID
	})
	return out, nil
}

// Stats collects every aggregate in one call.
func (d *Database) Stats(since time.Time) (Stats, error) {
	var stats Stats
	var err error
	if stats.Archetypes, err = d.ArchetypeCounts(since); err != nil {
		return Stats{}, err
	}
	for _, row := range stats.Archetypes {
		stats.Generations += row.Total
	}
	if stats.Recognition, err = d.RecognitionTotals(since); err != nil {
		return Stats{}, err
	}
	if stats.Tags, err = d.TagCounts(since); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func sinceScope(query *gorm.DB, since time.Time) *gorm.DB {
	if since.IsZero() {
		return query
	}
	return query.Where("created_at >= ?", since)
}
