// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// EventRecord model, the single durable item per chat event.
//
// Error semantics:
//   - A missing row is reported as ErrNotFound.
//   - Any other gorm error is propagated unchanged.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/slacker/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertEvent writes rec as the full current state of its event_id. An
// existing row is overwritten column by column; created_at keeps its
// original value.
func UpsertEvent(ctx context.Context, db *gorm.DB, rec *domain.EventRecord) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
}

// GetEvent fetches a single event by id.
func GetEvent(ctx context.Context, db *gorm.DB, eventID string) (*domain.EventRecord, error) {
	var rec domain.EventRecord
	err := db.WithContext(ctx).Where("event_id = ?", eventID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecentByChannel returns up to limit events of a channel, newest first.
// Rows missing an author or text are not history and are left out.
func ListRecentByChannel(ctx context.Context, db *gorm.DB, channelID string, limit int) ([]domain.EventRecord, error) {
	var out []domain.EventRecord
	q := db.WithContext(ctx).
		Where("channel_id = ? AND user_id <> '' AND text <> ''", channelID).
		Order("event_time DESC, event_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListEventsPage returns a page of a channel's events, newest first.
func ListEventsPage(ctx context.Context, db *gorm.DB, channelID string, offset, limit int) ([]domain.EventRecord, error) {
	var out []domain.EventRecord
	err := db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("event_time DESC, event_id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
