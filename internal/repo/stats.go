// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) and the admin stats endpoint.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/slacker/internal/domain"
)

// EventsStats returns the number of events in a channel and the greatest
// UpdatedAt among them. When the channel has no events, maxUpdatedAt is nil.
func EventsStats(ctx context.Context, db *gorm.DB, channelID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.EventRecord{}).Where("channel_id = ?", channelID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// StatusCount is one row of CountByStatus.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// CountByStatus groups all stored events by their persisted status.
func CountByStatus(ctx context.Context, db *gorm.DB) ([]StatusCount, error) {
	var out []StatusCount
	err := db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status ASC").
		Scan(&out).Error
	return out, err
}

// CountByIntent groups all stored events by intent tag. Unclassified rows
// are reported under the empty tag.
func CountByIntent(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		IntentTag string
		Count     int64
	}
	err := db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Select("intent_tag, COUNT(*) AS count").
		Group("intent_tag").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.IntentTag] = r.Count
	}
	return out, nil
}
