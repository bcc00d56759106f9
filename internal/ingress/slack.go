package ingress

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/tbourn/slacker/internal/domain"
)

// Kind tells the handler what to do with a parsed delivery.
type Kind int

const (
	// KindIgnored is a well-formed delivery the pipeline does not handle.
	KindIgnored Kind = iota
	// KindChallenge is the url_verification handshake.
	KindChallenge
	// KindMessage carries a RawEvent for the pipeline.
	KindMessage
)

// Parsed is the result of ParseSlackEvent.
type Parsed struct {
	Kind      Kind
	Challenge string
	Event     RawEvent
	// InnerType is the inner event type, for logging ignored deliveries.
	InnerType string
}

// ErrBadSignature is returned by Verify for unsigned or forged requests.
var ErrBadSignature = errors.New("invalid slack signature")

// Verify checks the v0 request signature. An empty secret disables the check.
func Verify(header http.Header, body []byte, secret string) error {
	if secret == "" {
		return nil
	}
	sv, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return errors.Join(ErrBadSignature, err)
	}
	if _, err := sv.Write(body); err != nil {
		return errors.Join(ErrBadSignature, err)
	}
	if err := sv.Ensure(); err != nil {
		return errors.Join(ErrBadSignature, err)
	}
	return nil
}

// ParseSlackEvent decodes an Events API payload. Token verification is left
// to Verify.
func ParseSlackEvent(body []byte) (Parsed, error) {
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return Parsed{}, &domain.ValidationError{Field: "body", Reason: "is not an events api payload"}
	}

	switch ev.Type {
	case slackevents.URLVerification:
		var ch slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &ch); err != nil || ch.Challenge == "" {
			return Parsed{}, &domain.ValidationError{Field: "challenge", Reason: "is required"}
		}
		return Parsed{Kind: KindChallenge, Challenge: ch.Challenge}, nil
	case slackevents.CallbackEvent:
	default:
		return Parsed{Kind: KindIgnored, InnerType: ev.Type}, nil
	}

	var deliveryID string
	if cb, ok := ev.Data.(*slackevents.EventsAPICallbackEvent); ok {
		deliveryID = cb.EventID
	}

	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		return Parsed{Kind: KindMessage, InnerType: ev.InnerEvent.Type, Event: RawEvent{
			DeliveryID: deliveryID,
			ChannelID:  inner.Channel,
			UserID:     inner.User,
			Text:       inner.Text,
			TS:         inner.TimeStamp,
			BotID:      inner.BotID,
			SubType:    inner.SubType,
		}}, nil
	case *slackevents.AppMentionEvent:
		return Parsed{Kind: KindMessage, InnerType: ev.InnerEvent.Type, Event: RawEvent{
			DeliveryID: deliveryID,
			ChannelID:  inner.Channel,
			UserID:     inner.User,
			Text:       StripMention(inner.Text),
			TS:         inner.TimeStamp,
			BotID:      inner.BotID,
		}}, nil
	default:
		return Parsed{Kind: KindIgnored, InnerType: ev.InnerEvent.Type}, nil
	}
}

// StripMention removes a leading "<@U…>" bot mention.
func StripMention(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "<@") {
		if i := strings.Index(t, ">"); i >= 0 {
			return strings.TrimSpace(t[i+1:])
		}
	}
	return t
}
