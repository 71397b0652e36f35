// Package extractor turns one call transcript into enriched candidate
// events via the external inference provider.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callintel-go/internal/classifier"
	"callintel-go/internal/confidence"
	"callintel-go/internal/industry"
	"callintel-go/internal/inference"
	"callintel-go/internal/logger"
	"callintel-go/internal/types"
)

// MinTranscriptLen is the precondition floor: anything shorter cannot carry
// a schedulable request and must fail loudly rather than return zero events.
const MinTranscriptLen = 20

// ErrTranscriptTooShort is a fatal precondition failure, never retried.
var ErrTranscriptTooShort = errors.New("transcript below minimum length")

// Options tune one extraction run.
type Options struct {
	// TranscriptionConfidence is the STT engine's own confidence, 0..1.
	// Zero means unknown.
	TranscriptionConfidence float64
	// ExtraContext is appended to the prompt (caller metadata, prior notes).
	ExtraContext string
}

// Engine orchestrates prompt selection, the single provider round-trip and
// per-event enrichment.
type Engine struct {
	provider   inference.Provider
	scorer     *confidence.Scorer
	classifier *classifier.Classifier
	log        *logrus.Entry
}

func NewEngine(p inference.Provider) *Engine {
	return &Engine{
		provider:   p,
		scorer:     confidence.NewScorer(),
		classifier: classifier.New(),
		log:        logger.New().WithComponent("extraction-engine"),
	}
}

// Extract runs the full per-call extraction. A malformed provider reply is
// retried exactly once, then fatal; transport failures surface as
// inference.ErrUnavailable for the caller's retry policy.
func (e *Engine) Extract(ctx context.Context, transcript, industryName string, opts *Options) (*types.ExtractionResult, error) {
	if opts == nil {
		opts = &Options{}
	}
	if len(strings.TrimSpace(transcript)) < MinTranscriptLen {
		return nil, fmt.Errorf("%w: %d chars", ErrTranscriptTooShort, len(strings.TrimSpace(transcript)))
	}

	prof := industry.Get(industryName)
	prompt := fmt.Sprintf(prof.PromptTemplate, transcript)
	if opts.ExtraContext != "" {
		prompt += "\nADDITIONAL CONTEXT:\n" + opts.ExtraContext + "\n"
	}

	events, err := e.attempt(ctx, prompt)
	if errors.Is(err, inference.ErrMalformed) {
		e.log.WithError(err).Warn("malformed inference reply, retrying once")
		events, err = e.attempt(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	result := &types.ExtractionResult{IndustryContext: prof.Name}
	sum := 0.0
	for i := range events {
		ev := &events[i]
		e.enrich(ev, transcript, prof.Name, opts.TranscriptionConfidence)
		sum += ev.Confidence
	}
	result.Events = events
	if len(events) > 0 {
		result.OverallConfidence = sum / float64(len(events))
	}
	e.log.WithFields(logrus.Fields{
		"industry": prof.Name,
		"events":   len(events),
		"overall":  result.OverallConfidence,
	}).Info("extraction complete")
	return result, nil
}

// attempt is one full round-trip: provider call, JSON recovery, decode.
// Any malformed stage fails the whole attempt so the retry re-prompts.
func (e *Engine) attempt(ctx context.Context, prompt string) ([]types.ExtractedEvent, error) {
	raw, err := e.completeOnce(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseEvents(raw)
}

// completeOnce does one provider round-trip and validates that the reply
// contains a recoverable JSON object.
func (e *Engine) completeOnce(ctx context.Context, prompt string) (string, error) {
	content, err := e.provider.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	raw := recoverJSON(content)
	if raw == "" {
		return "", fmt.Errorf("%w: no JSON object in reply", inference.ErrMalformed)
	}
	return raw, nil
}

// enrich runs classifier then scorer and folds both into the event.
func (e *Engine) enrich(ev *types.ExtractedEvent, transcript, industryName string, transcriptionConf float64) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Urgency == "" {
		ev.Urgency = types.UrgencyMedium
	}
	cls := e.classifier.Classify(ev, transcript, industryName)
	ev.Type = cls.Type
	score := e.scorer.Score(ev, transcript, industryName, transcriptionConf)
	ev.Confidence = (score.OverallConfidence + cls.Confidence) / 2
	if ev.Type == types.EventEmergency && ev.Urgency != types.UrgencyEmergency {
		ev.Urgency = types.UrgencyEmergency
	}
}

type eventEnvelope struct {
	Events []types.ExtractedEvent `json:"events"`
}

// parseEvents decodes the recovered JSON. A reply that decodes but carries
// no events array at all is malformed; an explicit empty array is a valid
// zero-event result.
func parseEvents(raw string) ([]types.ExtractedEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// some models return a bare array
		var bare []types.ExtractedEvent
		if err2 := json.Unmarshal([]byte(raw), &bare); err2 == nil {
			return bare, nil
		}
		return nil, fmt.Errorf("%w: %v", inference.ErrMalformed, err)
	}
	if env.Events == nil && !strings.Contains(raw, "events") {
		return nil, fmt.Errorf("%w: reply has no events field", inference.ErrMalformed)
	}
	return env.Events, nil
}

// recoverJSON strips markdown fences and returns the first balanced JSON
// object or array in s, or "".
func recoverJSON(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, fence := range []string{"```json", "```yaml", "```text", "```", "`json", "`"} {
		s = strings.ReplaceAll(s, fence, "")
	}
	// whichever opener appears first wins, so a bare top-level array is not
	// mistaken for its first element
	objAt := strings.IndexByte(s, '{')
	arrAt := strings.IndexByte(s, '[')
	if arrAt != -1 && (objAt == -1 || arrAt < objAt) {
		if out := balanced(s, '[', ']'); out != "" {
			return out
		}
	}
	return balanced(s, '{', '}')
}

func balanced(s string, open, closer byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}
