// Package domain defines the message, feedback, and persistence models that
// flow through the reply pipeline. EventRecord and ProcessedEvent are mapped
// with GORM; the remaining types are in-memory values owned by one pipeline run.
package domain

import (
	"strings"
	"time"
)

// IntentTag is the closed-set classification label attached to a message.
type IntentTag string

const (
	IntentQuestion     IntentTag = "question"
	IntentConsultation IntentTag = "consultation"
	IntentChat         IntentTag = "chat"
)

// IntentTags lists every valid tag in a stable order.
var IntentTags = []IntentTag{IntentQuestion, IntentConsultation, IntentChat}

// Valid reports whether t is one of the known tags.
func (t IntentTag) Valid() bool {
	switch t {
	case IntentQuestion, IntentConsultation, IntentChat:
		return true
	}
	return false
}

// ParseIntentTag maps a case-insensitive label onto the closed set.
func ParseIntentTag(s string) (IntentTag, error) {
	t := IntentTag(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrUnknownIntent
	}
	return t, nil
}

// Status is the lifecycle state of an InboundMessage.
type Status string

const (
	StatusReceived   Status = "received"
	StatusClassified Status = "classified"
	StatusSkipped    Status = "skipped"
	StatusGenerating Status = "generating"
	StatusGenerated  Status = "generated"
	StatusArchived   Status = "archived"
	StatusNotified   Status = "notified"
	StatusError      Status = "error"
)

// statusRank orders the forward path. skipped branches off classified and
// shares the rank of generating so neither can follow the other.
var statusRank = map[Status]int{
	StatusReceived:   0,
	StatusClassified: 1,
	StatusSkipped:    2,
	StatusGenerating: 2,
	StatusGenerated:  3,
	StatusArchived:   4,
	StatusNotified:   5,
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSkipped || s == StatusNotified || s == StatusError
}

// InboundMessage is the canonical form of one chat event.
//
// Fields:
//   - EventID: "<channel_id>:<ts>", immutable once assigned.
//   - ChannelID / UserID: Slack identifiers of origin channel and author.
//   - Text: raw message content.
//   - IntentTag: empty until classified, then set exactly once.
//   - Status: lifecycle state; only moves forward (or to error).
//   - EventTime: parsed source timestamp, the ordering key for history.
type InboundMessage struct {
	EventID   string
	ChannelID string
	UserID    string
	Text      string
	IntentTag IntentTag
	Status    Status
	EventTime time.Time
}

// SetIntent assigns the classification tag. A second call fails.
func (m *InboundMessage) SetIntent(t IntentTag) error {
	if m.IntentTag != "" {
		return ErrIntentAlreadySet
	}
	if !t.Valid() {
		return ErrUnknownIntent
	}
	m.IntentTag = t
	return nil
}

// Advance moves the message to the next lifecycle state. Moving to error is
// always allowed from a non-terminal state; any other move must strictly
// increase the rank.
func (m *InboundMessage) Advance(to Status) error {
	if m.Status == to {
		return nil
	}
	if m.Status.Terminal() {
		return ErrStatusRegression
	}
	if to == StatusError {
		m.Status = to
		return nil
	}
	cur, ok1 := statusRank[m.Status]
	next, ok2 := statusRank[to]
	if !ok1 || !ok2 || next <= cur {
		return ErrStatusRegression
	}
	// skipped is only reachable from classified
	if to == StatusSkipped && m.Status != StatusClassified {
		return ErrStatusRegression
	}
	m.Status = to
	return nil
}

// FeedbackStatus is the outcome of generation.
type FeedbackStatus string

const (
	FeedbackComplete FeedbackStatus = "complete"
	FeedbackError    FeedbackStatus = "error"
)

// FeedbackRecord is the generated reply for one InboundMessage. It is created
// once by the generator and treated as read-only afterwards.
type FeedbackRecord struct {
	EventID         string
	TargetChannelID string
	Summary         string
	Status          FeedbackStatus
}

// HistoryEntry is one prior message used as generation context. EventID lets
// the caller drop the message currently being answered.
type HistoryEntry struct {
	EventID string
	UserID  string
	Text    string
}

// EventRecord is the durable State Store item, one row per event_id.
// Writes are full-row upserts; concurrent writers to the same event_id are
// not merged and the last write wins.
type EventRecord struct {
	EventID         string    `json:"event_id"                   gorm:"type:varchar(128);primaryKey"`
	UserID          string    `json:"user_id"                    gorm:"type:varchar(64);not null"`
	ChannelID       string    `json:"channel_id"                 gorm:"type:varchar(64);not null;index:idx_channel_time,priority:1"`
	Text            string    `json:"text"                       gorm:"type:text;not null"`
	Status          string    `json:"status"                     gorm:"type:varchar(16);not null;index"`
	IntentTag       string    `json:"intent_tag"                 gorm:"type:varchar(16)"`
	FeedbackSummary *string   `json:"feedback_summary,omitempty" gorm:"type:text"`
	FeedbackStatus  *string   `json:"feedback_status,omitempty"  gorm:"type:varchar(16)"`
	EventTime       time.Time `json:"event_time"                 gorm:"index:idx_channel_time,priority:2"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for EventRecord.
func (EventRecord) TableName() string { return "events" }

// NewEventRecord merges the message fields and, when present, the feedback
// fields into a single row.
func NewEventRecord(m *InboundMessage, fb *FeedbackRecord, now time.Time) *EventRecord {
	rec := &EventRecord{
		EventID:   m.EventID,
		UserID:    m.UserID,
		ChannelID: m.ChannelID,
		Text:      m.Text,
		Status:    string(m.Status),
		IntentTag: string(m.IntentTag),
		EventTime: m.EventTime,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if fb != nil {
		summary := fb.Summary
		status := string(fb.Status)
		rec.FeedbackSummary = &summary
		rec.FeedbackStatus = &status
	}
	return rec
}
