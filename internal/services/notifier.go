package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/slacker/internal/domain"
)

// Notifier delivers a reply to a channel and reports success.
type Notifier interface {
	Notify(ctx context.Context, fb domain.FeedbackRecord, channelID string) bool
}

// SlackNotifier posts replies with chat.postMessage.
type SlackNotifier struct {
	Client *slack.Client
}

// NewSlackNotifier builds a Web API client. apiURL overrides the Slack
// endpoint (it must end in "/"); empty keeps the default.
func NewSlackNotifier(token, apiURL string, timeout time.Duration) *SlackNotifier {
	opts := []slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: timeout})}
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackNotifier{Client: slack.New(token, opts...)}
}

// Notify implements Notifier. It makes one attempt.
func (n *SlackNotifier) Notify(ctx context.Context, fb domain.FeedbackRecord, channelID string) bool {
	tr := otel.Tracer("services/Notifier")
	ctx, span := tr.Start(ctx, "Notify",
		trace.WithAttributes(
			attribute.String("channel.id", channelID),
			attribute.String("event.id", fb.EventID),
		),
	)
	defer span.End()

	var err error
	switch {
	case strings.TrimSpace(channelID) == "":
		err = errors.New("empty channel id")
	case strings.TrimSpace(fb.Summary) == "":
		err = errors.New("empty reply text")
	case n.Client == nil:
		err = errors.New("slack client not configured")
	default:
		_, _, err = n.Client.PostMessageContext(ctx, channelID, slack.MsgOptionText(fb.Summary, false))
	}
	if err != nil {
		nerr := &domain.NotificationError{ChannelID: channelID, Err: err}
		span.RecordError(nerr)
		log.Error().Err(nerr).Str("event_id", fb.EventID).Msg("notify failed")
		return false
	}
	return true
}
