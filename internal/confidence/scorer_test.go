package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callintel-go/internal/types"
)

func fullEvent() *types.ExtractedEvent {
	return &types.ExtractedEvent{
		Type:             types.EventServiceCall,
		Title:            "Kitchen sink leak repair",
		Description:      "Caller reports a slow leak under the kitchen sink, water pooling in the cabinet, wants repair this week",
		CustomerName:     "Maria Lopez",
		CustomerPhone:    "555-8821",
		CustomerEmail:    "maria@example.com",
		Location:         "412 Oak Street, Springfield",
		ProposedDateTime: "Thursday at 10am",
		Urgency:          types.UrgencyMedium,
	}
}

func TestScoreBounds(t *testing.T) {
	s := NewScorer()
	events := []*types.ExtractedEvent{
		fullEvent(),
		{},
		{Type: types.EventEmergency, Urgency: types.UrgencyEmergency, PriceEstimate: "$500", ProposedDateTime: "next month"},
	}
	for _, ev := range events {
		for _, ind := range []string{"plumbing", "legal", "medical", "general", "does-not-exist"} {
			res := s.Score(ev, "some transcript", ind, 0.8)
			assert.GreaterOrEqual(t, res.OverallConfidence, 0.0)
			assert.LessOrEqual(t, res.OverallConfidence, 1.0)
		}
	}
}

func TestWeightsSumToOne(t *testing.T) {
	s := NewScorer()
	for _, ind := range []string{"plumbing", "legal", "medical", "general", "real_estate", "financial"} {
		res := s.Score(fullEvent(), "transcript", ind, 0.8)
		sum := 0.0
		for _, w := range res.Weights {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 0.001, "industry %s", ind)
		assert.Len(t, res.Weights, 12, "industry %s", ind)
	}
}

func TestFullEventOutscoresEmpty(t *testing.T) {
	s := NewScorer()
	tr := "I have a leak under my kitchen sink, the pipe is dripping"
	full := s.Score(fullEvent(), tr, "plumbing", 0.9)
	empty := s.Score(&types.ExtractedEvent{}, tr, "plumbing", 0.9)
	assert.Greater(t, full.OverallConfidence, empty.OverallConfidence)
	assert.Equal(t, types.TierPoor, empty.Tier)
}

func TestTimeSpecificityOrdering(t *testing.T) {
	assert.Greater(t, timeSpecificity("Tuesday at 3:30pm"), timeSpecificity("tomorrow"))
	assert.Greater(t, timeSpecificity("tomorrow"), timeSpecificity("soon"))
	assert.Greater(t, timeSpecificity("soon"), timeSpecificity(""))
}

func TestLocationCompletenessOrdering(t *testing.T) {
	fullAddr := locationCompleteness("789 Pine St, Portland")
	street := locationCompleteness("Pine Street")
	area := locationCompleteness("downtown")
	assert.Greater(t, fullAddr, street)
	assert.Greater(t, street, area)
	assert.Greater(t, area, locationCompleteness(""))
}

func TestContactCompletenessIsFraction(t *testing.T) {
	s := NewScorer()
	ev := &types.ExtractedEvent{CustomerName: "Bob", CustomerPhone: "555-1234"}
	res := s.Score(ev, "", "general", 0.8)
	assert.InDelta(t, 2.0/3.0, res.Factors.ContactCompleteness, 0.001)
}

func TestConsistencyPenalties(t *testing.T) {
	contradictory := &types.ExtractedEvent{
		Type:             types.EventEmergency,
		Urgency:          types.UrgencyEmergency,
		ProposedDateTime: "next month",
		PriceEstimate:    "$200",
	}
	clean := &types.ExtractedEvent{
		Type:             types.EventEmergency,
		Urgency:          types.UrgencyEmergency,
		ProposedDateTime: "right now",
	}
	s := NewScorer()
	bad := s.Score(contradictory, "", "plumbing", 0.8)
	good := s.Score(clean, "", "plumbing", 0.8)
	assert.Less(t, bad.Factors.ExtractionConsistency, good.Factors.ExtractionConsistency)
	assert.GreaterOrEqual(t, bad.Factors.ExtractionConsistency, 0.1)
}

func TestRecommendationsRankWorstFirst(t *testing.T) {
	s := NewScorer()
	res := s.Score(&types.ExtractedEvent{Type: types.EventServiceCall}, "", "plumbing", 0.9)
	require.NotEmpty(t, res.Recommendations)
	assert.LessOrEqual(t, len(res.Recommendations), 3)
	// an empty event's weakest factor is the absent contact block
	assert.Contains(t, res.Recommendations[0], "contact")
}

func TestIndustryWeightSelection(t *testing.T) {
	s := NewScorer()
	// event with a great address but thin contact info: plumbing weights
	// location higher than legal does, so plumbing should score it higher
	ev := &types.ExtractedEvent{
		Type:        types.EventServiceCall,
		Description: "need the main line cleared",
		Location:    "1120 Birch Avenue, Riverton",
	}
	p := s.Score(ev, "main line backed up", "plumbing", 0.8)
	l := s.Score(ev, "main line backed up", "legal", 0.8)
	assert.Greater(t, p.Factors.LocationCompleteness*p.Weights["location_completeness"],
		l.Factors.LocationCompleteness*l.Weights["location_completeness"])
}
