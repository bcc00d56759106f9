package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/slacker/internal/domain"
	"github.com/tbourn/slacker/internal/llm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.EventRecord{}, &domain.ProcessedEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func newMessage(id, channel, user, text string) *domain.InboundMessage {
	return &domain.InboundMessage{
		EventID:   channel + ":" + id,
		ChannelID: channel,
		UserID:    user,
		Text:      text,
		Status:    domain.StatusReceived,
		EventTime: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
	}
}

// --- fakes ---

type fakeProvider struct {
	mu      sync.Mutex
	answer  string
	err     error
	panicV  any
	calls   int
	lastReq llm.Request
}

func (f *fakeProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.panicV != nil {
		panic(f.panicV)
	}
	return f.answer, f.err
}

type stubClassifier struct {
	tag    domain.IntentTag
	err    error
	panics bool
	calls  int
}

func (s *stubClassifier) Classify(context.Context, string) (domain.IntentTag, error) {
	s.calls++
	if s.panics {
		panic("classifier exploded")
	}
	return s.tag, s.err
}

type saveCall struct {
	Status      domain.Status
	HasFeedback bool
	Feedback    domain.FeedbackRecord
}

// recordingStore wraps an optional real store and records every Save.
type recordingStore struct {
	mu       sync.Mutex
	inner    StateStore
	saves    []saveCall
	saveErr  error
	history  []domain.HistoryEntry
	histErr  error
	histArgs []int
}

func (r *recordingStore) Save(ctx context.Context, m *domain.InboundMessage, fb *domain.FeedbackRecord) error {
	r.mu.Lock()
	c := saveCall{Status: m.Status, HasFeedback: fb != nil}
	if fb != nil {
		c.Feedback = *fb
	}
	r.saves = append(r.saves, c)
	r.mu.Unlock()
	if r.saveErr != nil {
		return &domain.StoreError{Op: "save", Err: r.saveErr}
	}
	if r.inner != nil {
		return r.inner.Save(ctx, m, fb)
	}
	return nil
}

func (r *recordingStore) RecentHistory(ctx context.Context, channelID string, limit int) ([]domain.HistoryEntry, error) {
	r.mu.Lock()
	r.histArgs = append(r.histArgs, limit)
	r.mu.Unlock()
	if r.histErr != nil {
		return nil, &domain.StoreError{Op: "history", Err: r.histErr}
	}
	if r.inner != nil {
		return r.inner.RecentHistory(ctx, channelID, limit)
	}
	return r.history, nil
}

type recordingGenerator struct {
	calls   int
	history []domain.HistoryEntry
	fb      *domain.FeedbackRecord
	panics  bool
}

func (g *recordingGenerator) Generate(_ context.Context, m *domain.InboundMessage, h []domain.HistoryEntry) domain.FeedbackRecord {
	g.calls++
	g.history = h
	if g.panics {
		panic("generator exploded")
	}
	if g.fb != nil {
		return *g.fb
	}
	return domain.FeedbackRecord{EventID: m.EventID, TargetChannelID: m.ChannelID, Summary: "answer", Status: domain.FeedbackComplete}
}

type recordingNotifier struct {
	mu       sync.Mutex
	ok       bool
	calls    int
	channels []string
	texts    []string
}

func (n *recordingNotifier) Notify(_ context.Context, fb domain.FeedbackRecord, channelID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.channels = append(n.channels, channelID)
	n.texts = append(n.texts, fb.Summary)
	return n.ok
}

var errBoom = errors.New("boom")
