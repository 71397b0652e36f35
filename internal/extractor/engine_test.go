package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callintel-go/internal/inference"
	"callintel-go/internal/types"
)

// scriptedProvider replays a fixed sequence of replies.
type scriptedProvider struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedProvider) Complete(_ context.Context, _ string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", inference.ErrUnavailable
}

const goodReply = `{"events":[{"type":"service_call","title":"Leaky faucet","description":"dripping bathroom faucet needs repair","customer_name":"Ann","customer_phone":"555-2001","location":"12 Main St","proposed_datetime":"Friday at 9am","urgency":"low"}]}`

const longTranscript = "Hi, this is Ann, my bathroom faucet has been dripping for a week, can someone come fix it Friday at 9am? I'm at 12 Main St, call me back at 555-2001."

func TestExtractHappyPath(t *testing.T) {
	e := NewEngine(&scriptedProvider{replies: []string{goodReply}})
	res, err := e.Extract(context.Background(), longTranscript, "plumbing", nil)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, types.EventServiceCall, ev.Type)
	assert.Greater(t, ev.Confidence, 0.0)
	assert.LessOrEqual(t, ev.Confidence, 1.0)
	assert.InDelta(t, ev.Confidence, res.OverallConfidence, 0.0001)
	assert.Equal(t, "plumbing", res.IndustryContext)
}

func TestExtractShortTranscriptIsPrecondition(t *testing.T) {
	p := &scriptedProvider{replies: []string{goodReply}}
	e := NewEngine(p)
	_, err := e.Extract(context.Background(), "hi bye", "plumbing", nil)
	require.ErrorIs(t, err, ErrTranscriptTooShort)
	assert.Zero(t, p.calls, "provider must not be called on precondition failure")
}

func TestExtractMalformedRetriedOnce(t *testing.T) {
	p := &scriptedProvider{replies: []string{"total garbage, no json here", goodReply}}
	e := NewEngine(p)
	res, err := e.Extract(context.Background(), longTranscript, "plumbing", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
	assert.Len(t, res.Events, 1)
}

func TestExtractUndecodableJSONRetriedOnce(t *testing.T) {
	// balanced JSON that fails decoding must get the same single retry as a
	// reply with no JSON at all
	p := &scriptedProvider{replies: []string{`{"events":[{"title":123}]}`, goodReply}}
	e := NewEngine(p)
	res, err := e.Extract(context.Background(), longTranscript, "plumbing", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
	assert.Len(t, res.Events, 1)
}

func TestExtractMalformedTwiceIsFatal(t *testing.T) {
	p := &scriptedProvider{replies: []string{"garbage", "more garbage"}}
	e := NewEngine(p)
	_, err := e.Extract(context.Background(), longTranscript, "plumbing", nil)
	require.ErrorIs(t, err, inference.ErrMalformed)
	assert.Equal(t, 2, p.calls)
}

func TestExtractUnavailableNotRetriedHere(t *testing.T) {
	p := &scriptedProvider{errs: []error{inference.ErrUnavailable}}
	e := NewEngine(p)
	_, err := e.Extract(context.Background(), longTranscript, "plumbing", nil)
	require.ErrorIs(t, err, inference.ErrUnavailable)
	assert.Equal(t, 1, p.calls, "transport retry belongs to the provider, not the engine")
}

func TestExtractZeroEventsIsValid(t *testing.T) {
	e := NewEngine(&scriptedProvider{replies: []string{`{"events":[]}`}})
	res, err := e.Extract(context.Background(), longTranscript, "general", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Zero(t, res.OverallConfidence)
}

func TestExtractEmergencyEndToEnd(t *testing.T) {
	reply := `{"events":[{"type":"service_call","title":"Burst pipe","description":"burst pipe, basement flooding at 789 Pine St, needs help now","customer_name":"John","customer_phone":"555-1234","location":"789 Pine St","proposed_datetime":"now","urgency":"emergency"}]}`
	tr := "Burst pipe! Basement flooding at 789 Pine St, need help now, John, 555-1234"
	e := NewEngine(&scriptedProvider{replies: []string{reply}})
	res, err := e.Extract(context.Background(), tr, "plumbing", &Options{TranscriptionConfidence: 0.9})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, types.EventEmergency, ev.Type)
	assert.Equal(t, types.UrgencyEmergency, ev.Urgency)
	assert.NotEmpty(t, ev.Location)
	assert.GreaterOrEqual(t, ev.Confidence, 0.85)
}

func TestRecoverJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! Here you go: {"a":1} Hope that helps.`, `{"a":1}`},
		{"bare array", `[{"a":1},{"b":2}]`, `[{"a":1},{"b":2}]`},
		{"brace inside string", `{"a":"curly } inside"}`, `{"a":"curly } inside"}`},
		{"nothing", "no json at all", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recoverJSON(tt.in))
		})
	}
}

func TestParseEventsRejectsWrongShape(t *testing.T) {
	_, err := parseEvents(`{"things":[1,2,3]}`)
	assert.True(t, errors.Is(err, inference.ErrMalformed))
}
