package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/slacker/internal/domain"
)

// Archiver writes the final state of a run: the message (already advanced to
// archived) merged with its feedback.
type Archiver struct {
	Store StateStore
}

// Archive reports whether the record was stored. Failures are logged, never
// returned.
func (a *Archiver) Archive(ctx context.Context, m *domain.InboundMessage, fb domain.FeedbackRecord) bool {
	if err := a.Store.Save(ctx, m, &fb); err != nil {
		log.Error().Err(err).
			Str("event_id", m.EventID).
			Str("feedback_status", string(fb.Status)).
			Msg("archive failed")
		return false
	}
	return true
}
