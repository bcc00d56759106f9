// Package services – Pipeline
//
// Pipeline drives one InboundMessage through classification, persistence,
// the skip policy, history lookup, generation, archival and notification.
// Stage failures are isolated at the stage boundary: classifier and store
// failures degrade to defaults, generation always yields a deliverable
// record, and only a failed notification becomes the run's error outcome.
// Nothing is retried and no committed side effect is rolled back.
//
// Observability: each run is a span with one child span per stage; stage
// latency and run outcomes are exported as Prometheus metrics.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/slacker/internal/domain"
	"github.com/tbourn/slacker/internal/observability"
)

// Stage names used in spans, logs and metrics.
const (
	StageClassify = "classify"
	StageSave     = "save"
	StageHistory  = "history"
	StageGenerate = "generate"
	StageArchive  = "archive"
	StageNotify   = "notify"
)

// DefaultAllowedIntents is the skip-policy allow-set used when none is given.
var DefaultAllowedIntents = []domain.IntentTag{domain.IntentQuestion, domain.IntentConsultation}

// Outcome summarizes one run.
type Outcome struct {
	EventID  string
	Status   domain.Status
	Intent   domain.IntentTag
	Feedback *domain.FeedbackRecord
	Archived bool
	Err      error
}

// PipelineConfig holds the policy knobs of a Pipeline.
type PipelineConfig struct {
	AllowedIntents []domain.IntentTag
	DefaultIntent  domain.IntentTag
	HistoryLimit   int
}

// Pipeline is the orchestrator. Collaborators are injected once at startup.
type Pipeline struct {
	Classifier Classifier
	Store      StateStore
	Generator  Generator
	Archiver   *Archiver
	Notifier   Notifier

	allowed       map[domain.IntentTag]struct{}
	defaultIntent domain.IntentTag
	historyLimit  int
}

// NewPipeline wires the stages. The Archiver writes through store.
func NewPipeline(c Classifier, store StateStore, g Generator, n Notifier, cfg PipelineConfig) *Pipeline {
	allowed := cfg.AllowedIntents
	if len(allowed) == 0 {
		allowed = DefaultAllowedIntents
	}
	set := make(map[domain.IntentTag]struct{}, len(allowed))
	for _, t := range allowed {
		set[t] = struct{}{}
	}
	def := cfg.DefaultIntent
	if !def.Valid() {
		def = domain.IntentQuestion
	}
	return &Pipeline{
		Classifier:    c,
		Store:         store,
		Generator:     g,
		Archiver:      &Archiver{Store: store},
		Notifier:      n,
		allowed:       set,
		defaultIntent: def,
		historyLimit:  cfg.HistoryLimit,
	}
}

// Allowed reports whether tag passes the skip policy.
func (p *Pipeline) Allowed(tag domain.IntentTag) bool {
	_, ok := p.allowed[tag]
	return ok
}

// Process runs m to completion. The caller owns m only until Process is
// called; the pipeline advances its status in place.
func (p *Pipeline) Process(ctx context.Context, m *domain.InboundMessage) Outcome {
	ctx, span := observability.StartStage(ctx, "Process",
		observability.EventAttributes(m.EventID, m.ChannelID, string(m.IntentTag))...)
	defer span.End()

	lg := log.With().Str("event_id", m.EventID).Str("channel_id", m.ChannelID).Logger()
	if m.Status == "" {
		m.Status = domain.StatusReceived
	}
	out := Outcome{EventID: m.EventID}

	// 1. classify
	tag, source := p.classify(ctx, m, lg)
	if m.IntentTag == "" {
		if err := m.SetIntent(tag); err != nil {
			lg.Warn().Err(err).Msg("intent rejected")
		}
	}
	out.Intent = m.IntentTag
	classifications.WithLabelValues(string(m.IntentTag), source).Inc()
	span.SetAttributes(observability.AttrIntent.String(string(m.IntentTag)))
	lg = lg.With().Str("intent", string(m.IntentTag)).Logger()
	p.advance(m, domain.StatusClassified, lg)

	// 2. persist classified state; failures are not a gate
	p.stage(ctx, StageSave, func(ctx context.Context) {
		if err := p.Store.Save(ctx, m, nil); err != nil {
			lg.Error().Err(err).Str("stage", StageSave).Msg("store save failed; continuing")
		}
	})

	// 3. skip policy
	if !p.Allowed(m.IntentTag) {
		p.advance(m, domain.StatusSkipped, lg)
		lg.Info().Msg("intent not in allow-set; skipped")
		return p.finish(span, out, m)
	}

	// 4. history, best effort
	p.advance(m, domain.StatusGenerating, lg)
	history := p.history(ctx, m, lg)

	// 5. generate, never fails
	var fb domain.FeedbackRecord
	p.stage(ctx, StageGenerate, func(ctx context.Context) {
		fb = p.generate(ctx, m, history, lg)
	})
	out.Feedback = &fb
	p.advance(m, domain.StatusGenerated, lg)

	// 6. archive final state
	p.advance(m, domain.StatusArchived, lg)
	p.stage(ctx, StageArchive, func(ctx context.Context) {
		out.Archived = p.Archiver.Archive(ctx, m, fb)
	})

	// 7. notify; failure is the run's outcome
	var delivered bool
	p.stage(ctx, StageNotify, func(ctx context.Context) {
		delivered = p.Notifier.Notify(ctx, fb, fb.TargetChannelID)
	})
	if !delivered {
		p.advance(m, domain.StatusError, lg)
		out.Err = &domain.NotificationError{ChannelID: fb.TargetChannelID, Err: ErrNotificationFailed}
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
		lg.Error().Err(out.Err).Str("stage", StageNotify).Msg("reply not delivered")
		return p.finish(span, out, m)
	}
	p.advance(m, domain.StatusNotified, lg)
	lg.Info().Str("feedback_status", string(fb.Status)).Msg("reply delivered")
	return p.finish(span, out, m)
}

// classify runs the classifier and falls back to the default tag on error or
// panic. The second result is the metrics source label.
func (p *Pipeline) classify(ctx context.Context, m *domain.InboundMessage, lg zerolog.Logger) (tag domain.IntentTag, source string) {
	if m.IntentTag != "" {
		return m.IntentTag, "preset"
	}
	p.stage(ctx, StageClassify, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := &domain.ClassificationError{Err: fmt.Errorf("panic: %v", r)}
				lg.Error().Err(err).Str("stage", StageClassify).Msg("classifier panicked; using default intent")
				tag, source = p.defaultIntent, "fallback"
			}
		}()
		if p.Classifier == nil {
			tag, source = p.defaultIntent, "fallback"
			return
		}
		t, err := p.Classifier.Classify(ctx, m.Text)
		if err != nil || !t.Valid() {
			lg.Warn().Err(err).Str("stage", StageClassify).Str("label", string(t)).Msg("classification failed; using default intent")
			tag, source = p.defaultIntent, "fallback"
			return
		}
		tag, source = t, "classifier"
	})
	return tag, source
}

// history fetches limit+1 rows so the current message can be dropped and the
// newest limit prior messages remain.
func (p *Pipeline) history(ctx context.Context, m *domain.InboundMessage, lg zerolog.Logger) []domain.HistoryEntry {
	if p.historyLimit <= 0 {
		return nil
	}
	var entries []domain.HistoryEntry
	p.stage(ctx, StageHistory, func(ctx context.Context) {
		got, err := p.Store.RecentHistory(ctx, m.ChannelID, p.historyLimit+1)
		if err != nil {
			lg.Warn().Err(err).Str("stage", StageHistory).Msg("history unavailable; generating without context")
			return
		}
		entries = make([]domain.HistoryEntry, 0, len(got))
		for _, h := range got {
			if h.EventID != m.EventID {
				entries = append(entries, h)
			}
		}
		if len(entries) > p.historyLimit {
			entries = entries[len(entries)-p.historyLimit:]
		}
	})
	return entries
}

// generate guards the Generator contract even for implementations that panic.
func (p *Pipeline) generate(ctx context.Context, m *domain.InboundMessage, h []domain.HistoryEntry, lg zerolog.Logger) (fb domain.FeedbackRecord) {
	defer func() {
		if r := recover(); r != nil {
			lg.Error().Interface("panic", r).Str("stage", StageGenerate).Msg("generator panicked")
			fb = errorFeedback(m)
		}
	}()
	if p.Generator == nil {
		return errorFeedback(m)
	}
	fb = p.Generator.Generate(ctx, m, h)
	if fb.Summary == "" {
		fb = errorFeedback(m)
	}
	return fb
}

func (p *Pipeline) advance(m *domain.InboundMessage, to domain.Status, lg zerolog.Logger) {
	if err := m.Advance(to); err != nil {
		lg.Warn().Err(err).Str("from", string(m.Status)).Str("to", string(to)).Msg("status transition rejected")
	}
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context)) {
	ctx, span := observability.StartStage(ctx, name)
	start := time.Now()
	defer func() {
		stageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		span.End()
	}()
	fn(ctx)
}

func (p *Pipeline) finish(span trace.Span, out Outcome, m *domain.InboundMessage) Outcome {
	out.Status = m.Status
	span.SetAttributes(attribute.String("status", string(out.Status)))
	pipelineRuns.WithLabelValues(string(out.Status)).Inc()
	return out
}
