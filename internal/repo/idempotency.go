// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the delivery-claim helpers the ingress
// uses to drop platform retries of an envelope it already accepted.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/slacker/internal/domain"
)

// ErrDuplicate indicates that a live claim already exists for the delivery id.
var ErrDuplicate = errors.New("duplicate")

// ClaimDelivery records deliveryID as accepted until now+ttl. An expired claim
// for the same id is replaced. A live one yields ErrDuplicate.
func ClaimDelivery(ctx context.Context, db *gorm.DB, deliveryID, eventID string, ttl time.Duration, now time.Time) (*domain.ProcessedEvent, error) {
	now = now.UTC()
	rec := &domain.ProcessedEvent{
		ID:         uuid.NewString(),
		DeliveryID: deliveryID,
		EventID:    eventID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("delivery_id = ? AND expires_at <= ?", deliveryID, now).
			Delete(&domain.ProcessedEvent{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// ReleaseDelivery drops a claim so a retry of the same delivery is accepted.
func ReleaseDelivery(ctx context.Context, db *gorm.DB, deliveryID string) error {
	return db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Delete(&domain.ProcessedEvent{}).Error
}

// PurgeExpiredDeliveries deletes claims that expired at or before now.
func PurgeExpiredDeliveries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.ProcessedEvent{})
	return res.RowsAffected, res.Error
}

// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
