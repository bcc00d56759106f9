// Package services – Intent classification
//
// Two strategies sit behind the Classifier interface. HeuristicClassifier is
// an offline keyword matcher; GenerativeClassifier asks an llm.Provider for a
// one-word label and parses the free-text answer by containment. Exactly one
// is built at startup by NewClassifier.
package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/width"

	"github.com/tbourn/slacker/internal/domain"
	"github.com/tbourn/slacker/internal/llm"
)

// Classifier assigns one tag of the closed set to a message text.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.IntentTag, error)
}

// Keyword sets, matched against the folded, space-padded text. English
// words carry a leading space so they only match at a word start; "?" and
// the Japanese keywords match anywhere. Consultation is checked before
// question so "should I ...?" lands in consultation.
var (
	consultationKeywords = []string{
		"相談", "アドバイス", "どうすれば", "どうしたら", "迷って", "悩んで",
		" consult", " advice", " advise", " recommend", " should i ", " should we ",
		" what do you think", " your opinion",
	}
	questionKeywords = []string{
		"?", "教えて", "質問", "コード", "エラー", "わからない", "方法",
		" how ", " what ", " why ", " where ", " which ", " when ", " who ",
		" can you", " could you", " is there", " error", " help me",
	}
)

// HeuristicClassifier matches fixed keyword sets. It is deterministic and
// never fails.
type HeuristicClassifier struct{}

// NewHeuristicClassifier returns a ready matcher.
func NewHeuristicClassifier() *HeuristicClassifier { return &HeuristicClassifier{} }

// Classify implements Classifier.
func (h *HeuristicClassifier) Classify(_ context.Context, text string) (domain.IntentTag, error) {
	return h.match(text), nil
}

func (h *HeuristicClassifier) match(text string) domain.IntentTag {
	norm := h.normalize(text)
	for _, kw := range consultationKeywords {
		if strings.Contains(norm, kw) {
			return domain.IntentConsultation
		}
	}
	for _, kw := range questionKeywords {
		if strings.Contains(norm, kw) {
			return domain.IntentQuestion
		}
	}
	return domain.IntentChat
}

// normalize folds case and width (full-width "？" becomes "?") and pads both
// ends with a space so word keywords also match at the start and the end.
func (h *HeuristicClassifier) normalize(text string) string {
	// cases.Caser is stateful, so each call gets its own.
	s := width.Fold.String(cases.Fold().String(text))
	return " " + strings.Join(strings.Fields(s), " ") + " "
}

const classifierInstruction = `You are the intent classifier of a Slack bot.
Read the user's message and answer with exactly one word:
- "consultation" if the user asks for advice, an opinion or help with a decision.
- "question" if the user asks a question, requests work, or reports an error.
- "chat" for greetings, acknowledgements, small talk or monologue.
Do not explain. Return the single word only.`

// GenerativeClassifier asks a generative model for the label.
type GenerativeClassifier struct {
	Provider llm.Provider
	Model    string
}

// Classify implements Classifier. Transport failures are returned as
// *domain.ClassificationError; an unrecognized answer maps to chat.
func (g *GenerativeClassifier) Classify(ctx context.Context, text string) (domain.IntentTag, error) {
	tr := otel.Tracer("services/GenerativeClassifier")
	ctx, span := tr.Start(ctx, "Classify",
		trace.WithAttributes(attribute.Int("text.len", len(text))),
	)
	defer span.End()

	if g.Provider == nil {
		return "", &domain.ClassificationError{Err: ErrNoProvider}
	}
	req := llm.UserPrompt(classifierInstruction, text)
	req.Model = g.Model

	answer, err := g.Provider.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", &domain.ClassificationError{Err: err}
	}
	tag := ParseLabel(answer)
	span.SetAttributes(attribute.String("intent", string(tag)))
	return tag, nil
}

// ParseLabel maps free-text model output onto the closed tag set by
// substring containment. Anything unrecognized is chat.
func ParseLabel(answer string) domain.IntentTag {
	a := strings.ToLower(answer)
	switch {
	case strings.Contains(a, string(domain.IntentConsultation)):
		return domain.IntentConsultation
	case strings.Contains(a, string(domain.IntentQuestion)):
		return domain.IntentQuestion
	default:
		return domain.IntentChat
	}
}

// NewClassifier picks the strategy: heuristic, generative, or auto
// (generative when a provider is available, heuristic otherwise).
func NewClassifier(strategy string, p llm.Provider, model string) Classifier {
	switch strings.ToLower(strategy) {
	case "heuristic":
		return NewHeuristicClassifier()
	case "generative":
		return &GenerativeClassifier{Provider: p, Model: model}
	default:
		if p != nil {
			return &GenerativeClassifier{Provider: p, Model: model}
		}
		return NewHeuristicClassifier()
	}
}
