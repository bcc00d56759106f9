package domain

import "time"

// ProcessedEvent records that an inbound envelope was accepted for processing,
// keyed by the platform's delivery id. Slack retries a delivery it did not see
// acknowledged in time; the record lets the ingress drop those retries until
// ExpiresAt.
type ProcessedEvent struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	DeliveryID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_processed_delivery"`
	EventID    string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (ProcessedEvent) TableName() string { return "processed_events" }
