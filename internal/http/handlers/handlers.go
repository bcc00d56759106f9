package handlers

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/slacker/internal/domain"
)

// Submitter hands a normalized message to the pipeline without blocking.
// services.Dispatcher implements it.
type Submitter interface {
	Submit(m *domain.InboundMessage) error
}

// Handlers groups the HTTP endpoints. Reads go straight to the repo
// functions; writes go through the Submitter.
type Handlers struct {
	DB            *gorm.DB
	Queue         Submitter
	SigningSecret string        // empty disables signature checks
	DedupeTTL     time.Duration // how long a delivery id is remembered
	Now           func() time.Time
}

// New wires the handlers.
func New(db *gorm.DB, q Submitter, signingSecret string, dedupeTTL time.Duration) *Handlers {
	return &Handlers{
		DB:            db,
		Queue:         q,
		SigningSecret: signingSecret,
		DedupeTTL:     dedupeTTL,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}
