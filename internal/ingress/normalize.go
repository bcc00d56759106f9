// Package ingress turns Slack Events API deliveries into validated
// domain.InboundMessage values. Malformed or ignorable events stop here as
// *domain.ValidationError and never reach the pipeline.
package ingress

import (
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/slacker/internal/domain"
)

// RawEvent is the subset of a Slack message event the pipeline needs.
// DeliveryID is the envelope event_id Slack reuses on retries.
type RawEvent struct {
	DeliveryID string
	ChannelID  string
	UserID     string
	Text       string
	TS         string
	BotID      string
	SubType    string
}

// Normalize validates r and builds the canonical message. The event id is
// "<channel>:<ts>" and EventTime is parsed from ts.
func Normalize(r RawEvent) (domain.InboundMessage, error) {
	switch {
	case r.BotID != "":
		return domain.InboundMessage{}, &domain.ValidationError{Field: "bot_id", Reason: "bot messages are ignored"}
	case r.SubType != "":
		return domain.InboundMessage{}, &domain.ValidationError{Field: "subtype", Reason: "subtype " + r.SubType + " is ignored"}
	case strings.TrimSpace(r.ChannelID) == "":
		return domain.InboundMessage{}, &domain.ValidationError{Field: "channel", Reason: "is required"}
	case strings.TrimSpace(r.UserID) == "":
		return domain.InboundMessage{}, &domain.ValidationError{Field: "user", Reason: "is required"}
	case strings.TrimSpace(r.Text) == "":
		return domain.InboundMessage{}, &domain.ValidationError{Field: "text", Reason: "is required"}
	}
	ts, err := ParseTS(r.TS)
	if err != nil {
		return domain.InboundMessage{}, &domain.ValidationError{Field: "ts", Reason: "is not a slack timestamp"}
	}
	return domain.InboundMessage{
		EventID:   r.ChannelID + ":" + r.TS,
		ChannelID: r.ChannelID,
		UserID:    r.UserID,
		Text:      r.Text,
		Status:    domain.StatusReceived,
		EventTime: ts,
	}, nil
}

// ParseTS parses a Slack "seconds.micros" timestamp into UTC.
func ParseTS(ts string) (time.Time, error) {
	sec, frac, _ := strings.Cut(strings.TrimSpace(ts), ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil || s <= 0 {
		return time.Time{}, strconv.ErrSyntax
	}
	var nanos int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n, err := strconv.ParseInt(frac, 10, 64)
		if err != nil || n < 0 {
			return time.Time{}, strconv.ErrSyntax
		}
		for i := len(frac); i < 9; i++ {
			n *= 10
		}
		nanos = n
	}
	return time.Unix(s, nanos).UTC(), nil
}
