package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/slacker/internal/domain"
	"github.com/tbourn/slacker/internal/repo"
)

func TestGormStateStore_SaveUpsertsLastWriterWins(t *testing.T) {
	db := newTestDB(t)
	s := NewGormStateStore(db)
	ctx := context.Background()

	m := newMessage("1.0", "C1", "U1", "How do I configure the build?")
	_ = m.SetIntent(domain.IntentQuestion)
	_ = m.Advance(domain.StatusClassified)
	if err := s.Save(ctx, m, nil); err != nil {
		t.Fatalf("save classified: %v", err)
	}

	_ = m.Advance(domain.StatusGenerating)
	_ = m.Advance(domain.StatusGenerated)
	_ = m.Advance(domain.StatusArchived)
	fb := &domain.FeedbackRecord{EventID: m.EventID, TargetChannelID: "C1", Summary: "do this", Status: domain.FeedbackComplete}
	if err := s.Save(ctx, m, fb); err != nil {
		t.Fatalf("save archived: %v", err)
	}
	// replay the same final write: state must be identical
	if err := s.Save(ctx, m, fb); err != nil {
		t.Fatalf("replay save: %v", err)
	}

	rec, err := repo.GetEvent(ctx, db, m.EventID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if rec.Status != "archived" || rec.IntentTag != "question" || rec.FeedbackSummary == nil || *rec.FeedbackSummary != "do this" {
		t.Fatalf("unexpected stored state: %+v", rec)
	}
	var n int64
	db.Model(&domain.EventRecord{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected a single row, got %d", n)
	}
}

func TestGormStateStore_SaveErrorIsStoreError(t *testing.T) {
	db := newTestDB(t)
	if err := db.Callback().Create().Before("gorm:create").Register("force_err_on_events", func(tx *gorm.DB) {
		if tx.Statement != nil && strings.Contains(tx.Statement.Table, "events") {
			tx.AddError(errors.New("forced-create-error"))
		}
	}); err != nil {
		t.Fatalf("register create callback: %v", err)
	}

	s := NewGormStateStore(db)
	err := s.Save(context.Background(), newMessage("1", "C1", "U1", "x"), nil)
	var serr *domain.StoreError
	if !errors.As(err, &serr) || serr.Op != "save" {
		t.Fatalf("expected StoreError(save), got %v", err)
	}
}

func TestGormStateStore_RecentHistoryOldestFirstBounded(t *testing.T) {
	db := newTestDB(t)
	s := NewGormStateStore(db)
	ctx := context.Background()
	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	for i, text := range []string{"one", "two", "three", "four"} {
		m := newMessage(string(rune('a'+i)), "C1", "U1", text)
		m.EventTime = base.Add(time.Duration(i) * time.Minute)
		if err := s.Save(ctx, m, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// malformed row: zero timestamp is skipped rather than failing the call
	broken := newMessage("z", "C1", "U1", "no time")
	broken.EventTime = time.Time{}
	if err := s.Save(ctx, broken, nil); err != nil {
		t.Fatalf("seed broken: %v", err)
	}
	other := newMessage("o", "C2", "U2", "other channel")
	_ = s.Save(ctx, other, nil)

	got, err := s.RecentHistory(ctx, "C1", 3)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(got) > 3 {
		t.Fatalf("expected at most 3 entries, got %d", len(got))
	}
	want := []string{"two", "three", "four"}
	if len(got) != len(want) {
		t.Fatalf("RecentHistory = %+v; want texts %v", got, want)
	}
	for i := range want {
		if got[i].Text != want[i] || got[i].UserID != "U1" {
			t.Fatalf("entry %d = %+v; want text %q", i, got[i], want[i])
		}
	}

	empty, err := s.RecentHistory(ctx, "C1", 0)
	if err != nil || len(empty) != 0 {
		t.Fatalf("limit 0 should be empty, got %v %v", empty, err)
	}
}

func TestGormStateStore_RecentHistoryError(t *testing.T) {
	db := newTestDB(t)
	if err := db.Migrator().DropTable(&domain.EventRecord{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_, err := NewGormStateStore(db).RecentHistory(context.Background(), "C1", 5)
	var serr *domain.StoreError
	if !errors.As(err, &serr) || serr.Op != "history" {
		t.Fatalf("expected StoreError(history), got %v", err)
	}
}
