// Package services – Feedback generation
//
// LLMGenerator builds a prompt from the classified message and its channel
// history and asks an llm.Provider for the reply. It never fails: any error,
// empty answer or panic becomes an error-status FeedbackRecord carrying
// ApologyMessage, so the pipeline always has something to archive and send.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/slacker/internal/domain"
	"github.com/tbourn/slacker/internal/llm"
	"github.com/tbourn/slacker/internal/sysutil"
)

// ApologyMessage is delivered when no reply could be generated.
const ApologyMessage = "Sorry, the AI service is unavailable right now. Please try again later."

// DefaultSystemPrompt instructs the model to review the exchange and give
// concrete, actionable feedback.
const DefaultSystemPrompt = `## Role
You are an engineering communication coach in a Slack workspace. Analyse the
message (and the recent conversation, when given) and give strict but
constructive feedback that helps both the asker and the people answering grow.

## Constraints
- No greetings, no emoji.
- Lead with the conclusion; use short bullet points.
- Prefer concrete improvements over reassurance.

## Criteria
1. For the asker: is the background shared, is what was tried stated, is the
   gap between expected and actual behaviour clear?
2. For answerers: do they show the way of thinking rather than only the
   answer, and point to official documentation or search keywords?

## Output format
[Score] question: X/10, answer: X/10
[For the asker]
- (concrete action)
[For answerers]
- (concrete action)`

const truncationSuffix = "…"

// Generator produces the reply for a classified message.
type Generator interface {
	Generate(ctx context.Context, m *domain.InboundMessage, history []domain.HistoryEntry) domain.FeedbackRecord
}

// LLMGenerator is the Provider-backed Generator.
type LLMGenerator struct {
	Provider      llm.Provider
	Model         string
	SystemPrompt  string // empty uses DefaultSystemPrompt
	MaxReplyRunes int    // 0 disables clipping
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, m *domain.InboundMessage, history []domain.HistoryEntry) (fb domain.FeedbackRecord) {
	tr := otel.Tracer("services/Generator")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("event.id", m.EventID),
			attribute.String("intent", string(m.IntentTag)),
			attribute.Int("history.len", len(history)),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := &domain.GenerationError{Err: fmt.Errorf("panic: %v", r)}
			span.SetStatus(codes.Error, err.Error())
			log.Error().Err(err).Str("event_id", m.EventID).Msg("generator panicked")
			fb = errorFeedback(m)
		}
	}()

	if g.Provider == nil {
		return g.fail(span, m, ErrNoProvider)
	}

	req := llm.UserPrompt(g.systemPrompt(), BuildUserPrompt(m, history))
	req.Model = g.Model
	answer, err := g.Provider.Complete(ctx, req)
	if err != nil {
		return g.fail(span, m, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return g.fail(span, m, llm.ErrEmptyResponse)
	}

	return domain.FeedbackRecord{
		EventID:         m.EventID,
		TargetChannelID: m.ChannelID,
		Summary:         sysutil.TruncateRunes(answer, g.MaxReplyRunes, truncationSuffix),
		Status:          domain.FeedbackComplete,
	}
}

func (g *LLMGenerator) fail(span trace.Span, m *domain.InboundMessage, cause error) domain.FeedbackRecord {
	err := &domain.GenerationError{Err: cause}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Warn().Err(err).Str("event_id", m.EventID).Msg("generation failed; sending apology")
	return errorFeedback(m)
}

func (g *LLMGenerator) systemPrompt() string {
	if strings.TrimSpace(g.SystemPrompt) != "" {
		return g.SystemPrompt
	}
	return DefaultSystemPrompt
}

func errorFeedback(m *domain.InboundMessage) domain.FeedbackRecord {
	return domain.FeedbackRecord{
		EventID:         m.EventID,
		TargetChannelID: m.ChannelID,
		Summary:         ApologyMessage,
		Status:          domain.FeedbackError,
	}
}

// BuildUserPrompt renders the user block: author, intent, optional history
// transcript, then the message itself.
func BuildUserPrompt(m *domain.InboundMessage, history []domain.HistoryEntry) string {
	var b strings.Builder
	b.WriteString("[Context]\n")
	fmt.Fprintf(&b, "User ID: %s\n", m.UserID)
	fmt.Fprintf(&b, "Intent: %s\n", m.IntentTag)
	if len(history) > 0 {
		b.WriteString("\n[Recent conversation, oldest first]\n")
		for _, h := range history {
			fmt.Fprintf(&b, "%s: %s\n", h.UserID, h.Text)
		}
	}
	b.WriteString("\n[Message]\n")
	b.WriteString(m.Text)
	return b.String()
}
