// Slack Events API endpoint.
//
//	POST /slack/events
//
// The handler verifies the signature, answers the url_verification
// handshake, normalizes message events, claims the delivery id so Slack
// retries are dropped, and submits the message to the pipeline. It always
// answers within Slack's three second window; processing is asynchronous.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/slacker/internal/http/middleware"
	"github.com/tbourn/slacker/internal/ingress"
	"github.com/tbourn/slacker/internal/repo"
)

// AckResponse is the body of every 200 answer to Slack.
type AckResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Ack statuses.
const (
	AckAccepted  = "accepted"
	AckDuplicate = "duplicate"
	AckIgnored   = "ignored"
)

// SlackEvents handles POST /slack/events.
func (h *Handlers) SlackEvents(c *gin.Context) {
	lg := *middleware.LoggerFrom(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "payload too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}

	if err := ingress.Verify(c.Request.Header, body, h.SigningSecret); err != nil {
		lg.Warn().Err(err).Msg("slack signature rejected")
		fail(c, http.StatusUnauthorized, ErrCodeBadSignature, "invalid request signature")
		return
	}

	parsed, err := ingress.ParseSlackEvent(body)
	if err != nil {
		lg.Warn().Err(err).Msg("unparseable slack payload")
		ok(c, http.StatusOK, AckResponse{Status: AckIgnored, Reason: err.Error()})
		return
	}

	switch parsed.Kind {
	case ingress.KindChallenge:
		ok(c, http.StatusOK, gin.H{"challenge": parsed.Challenge})
		return
	case ingress.KindIgnored:
		lg.Debug().Str("event_type", parsed.InnerType).Msg("slack event ignored")
		ok(c, http.StatusOK, AckResponse{Status: AckIgnored})
		return
	}

	msg, err := ingress.Normalize(parsed.Event)
	if err != nil {
		lg.Debug().Err(err).Str("event_type", parsed.InnerType).Msg("slack event dropped")
		ok(c, http.StatusOK, AckResponse{Status: AckIgnored, Reason: err.Error()})
		return
	}

	deliveryID := parsed.Event.DeliveryID
	if deliveryID == "" {
		deliveryID = msg.EventID
	}
	lg = lg.With().Str("event_id", msg.EventID).Str("delivery_id", deliveryID).Logger()

	ctx := c.Request.Context()
	// One message can arrive in several envelopes (message and app_mention),
	// so the event id is claimed alongside the delivery id.
	keys := []string{deliveryID}
	if msg.EventID != deliveryID {
		keys = append(keys, msg.EventID)
	}
	var claimed []string
	for _, key := range keys {
		taken, dup := h.claim(c, lg, key, msg.EventID)
		if dup {
			lg.Info().Str("claim_key", key).Msg("duplicate delivery dropped")
			ok(c, http.StatusOK, AckResponse{Status: AckDuplicate, EventID: msg.EventID})
			return
		}
		if taken {
			claimed = append(claimed, key)
		}
	}

	if err := h.Queue.Submit(&msg); err != nil {
		for _, key := range claimed {
			if rerr := repo.ReleaseDelivery(ctx, h.DB, key); rerr != nil {
				lg.Error().Err(rerr).Str("claim_key", key).Msg("release delivery claim failed")
			}
		}
		lg.Warn().Err(err).Msg("pipeline rejected event")
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeQueueFull, "pipeline is saturated, retry later")
		return
	}

	lg.Info().Msg("slack event accepted")
	ok(c, http.StatusOK, AckResponse{Status: AckAccepted, EventID: msg.EventID})
}

// claim records key as seen. It reports whether a claim was taken and
// whether key was already live. A store failure takes no claim and lets the
// event through without dedupe.
func (h *Handlers) claim(c *gin.Context, lg zerolog.Logger, key, eventID string) (claimed, duplicate bool) {
	if h.DB == nil {
		return false, false
	}
	_, err := repo.ClaimDelivery(c.Request.Context(), h.DB, key, eventID, h.DedupeTTL, h.now())
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		return false, true
	case err != nil:
		lg.Error().Err(err).Str("claim_key", key).Msg("delivery claim failed; accepting without dedupe")
		return false, false
	default:
		return true, false
	}
}
