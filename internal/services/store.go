// Package services – State Store
//
// StateStore is the single write path for event lifecycle records. The GORM
// implementation upserts one row per event_id (last writer wins, concurrent
// writers are not merged) and reads bounded channel history.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/slacker/internal/domain"
	"github.com/tbourn/slacker/internal/repo"
)

// StateStore persists message state and serves recent channel history.
type StateStore interface {
	// Save fully overwrites the record for m.EventID with the message fields
	// and, when fb is non-nil, the feedback fields.
	Save(ctx context.Context, m *domain.InboundMessage, fb *domain.FeedbackRecord) error
	// RecentHistory returns at most limit entries of the channel, oldest first.
	RecentHistory(ctx context.Context, channelID string, limit int) ([]domain.HistoryEntry, error)
}

// GormStateStore is the SQLite-backed StateStore.
type GormStateStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewGormStateStore wires a store over db.
func NewGormStateStore(db *gorm.DB) *GormStateStore {
	return &GormStateStore{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// Save implements StateStore. Errors are wrapped in *domain.StoreError.
func (s *GormStateStore) Save(ctx context.Context, m *domain.InboundMessage, fb *domain.FeedbackRecord) error {
	tr := otel.Tracer("services/StateStore")
	ctx, span := tr.Start(ctx, "Save",
		trace.WithAttributes(
			attribute.String("event.id", m.EventID),
			attribute.String("status", string(m.Status)),
			attribute.Bool("feedback", fb != nil),
		),
	)
	defer span.End()

	rec := domain.NewEventRecord(m, fb, s.now())
	if err := repo.UpsertEvent(ctx, s.DB, rec); err != nil {
		span.RecordError(err)
		return &domain.StoreError{Op: "save", Err: err}
	}
	return nil
}

// RecentHistory implements StateStore. Rows without a timestamp are skipped.
func (s *GormStateStore) RecentHistory(ctx context.Context, channelID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		return []domain.HistoryEntry{}, nil
	}
	tr := otel.Tracer("services/StateStore")
	ctx, span := tr.Start(ctx, "RecentHistory",
		trace.WithAttributes(
			attribute.String("channel.id", channelID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	rows, err := repo.ListRecentByChannel(ctx, s.DB, channelID, limit)
	if err != nil {
		span.RecordError(err)
		return nil, &domain.StoreError{Op: "history", Err: err}
	}

	// rows are newest first; walk backwards for oldest-first output
	out := make([]domain.HistoryEntry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if r.EventTime.IsZero() {
			continue
		}
		out = append(out, domain.HistoryEntry{EventID: r.EventID, UserID: r.UserID, Text: r.Text})
	}
	return out, nil
}

func (s *GormStateStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
