// Package confidence scores extracted events on twelve deterministic
// factors, weighted per industry.
package confidence

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"callintel-go/internal/industry"
	"callintel-go/internal/logger"
	"callintel-go/internal/types"
)

// Scorer computes ConfidenceResults. It is stateless and safe for
// concurrent use.
type Scorer struct {
	log *logrus.Entry
}

func NewScorer() *Scorer {
	return &Scorer{log: logger.New().WithComponent("confidence-scorer")}
}

var (
	clockRe      = regexp.MustCompile(`\b\d{1,2}(:\d{2})?\s*(am|pm|a\.m\.|p\.m\.)\b`)
	dateWordRe   = regexp.MustCompile(`\b(today|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec|\d{1,2}/\d{1,2})\b`)
	streetRe     = regexp.MustCompile(`\b\d+\s+\w+.*\b(st|street|ave|avenue|rd|road|dr|drive|ln|lane|blvd|boulevard|ct|court|way|pl|place)\b`)
	streetNameRe = regexp.MustCompile(`\b(st|street|ave|avenue|rd|road|dr|drive|ln|lane|blvd|boulevard|ct|court|way|pl|place)\b`)
	phoneRe      = regexp.MustCompile(`\d{3}[-.\s]?\d{4}`)
	pastRe       = regexp.MustCompile(`\b(yesterday|last week|last month|ago)\b`)
)

var vagueTime = []string{"soon", "sometime", "later", "whenever", "eventually", "at some point"}

var immediateTime = []string{"now", "right away", "immediately", "asap", "as soon as possible", "today"}

// Score evaluates one event against its source transcript. Missing optional
// fields are scored low, never rejected.
func (s *Scorer) Score(ev *types.ExtractedEvent, transcript, industryName string, transcriptionConf float64) types.ConfidenceResult {
	prof := industry.Get(industryName)
	f := types.ConfidenceFactors{
		TimeSpecificity:         timeSpecificity(ev.ProposedDateTime),
		TimeRealism:             timeRealism(ev.ProposedDateTime),
		LocationCompleteness:    locationCompleteness(ev.Location),
		LocationRealism:         locationRealism(ev.Location),
		ContactCompleteness:     float64(ev.ContactFieldCount()) / 3,
		ContactRealism:          contactRealism(ev),
		DescriptionSpecificity:  descriptionSpecificity(ev.Description),
		DescriptionRealism:      descriptionRealism(ev.Description, prof),
		IndustryMatch:           industryMatch(ev, prof),
		TerminologyMatch:        terminologyMatch(transcript, prof),
		TranscriptionConfidence: clamp01OrDefault(transcriptionConf, 0.5),
		ExtractionConsistency:   consistency(ev, prof),
	}

	byKey := factorMap(f)
	overall := 0.0
	for key, w := range prof.Weights {
		overall += byKey[key] * w
	}
	overall = clamp01(overall)

	res := types.ConfidenceResult{
		Factors:           f,
		Weights:           prof.Weights,
		OverallConfidence: overall,
		Tier:              tier(overall),
		Recommendations:   recommendations(byKey),
	}
	s.log.WithFields(logrus.Fields{
		"industry":   prof.Name,
		"event_type": ev.Type,
		"overall":    overall,
		"tier":       res.Tier,
	}).Debug("scored event")
	return res
}

func timeSpecificity(v string) float64 {
	t := strings.ToLower(strings.TrimSpace(v))
	if t == "" {
		return 0.2
	}
	for _, vague := range vagueTime {
		if strings.Contains(t, vague) {
			return 0.3
		}
	}
	if containsAny(t, immediateTime) {
		// "now" / "asap" is as specific as an emergency gets
		return 0.85
	}
	hasDate := dateWordRe.MatchString(t)
	hasClock := clockRe.MatchString(t) || strings.Contains(t, "morning") || strings.Contains(t, "afternoon") || strings.Contains(t, "evening") || strings.Contains(t, "noon")
	switch {
	case hasDate && clockRe.MatchString(t):
		return 0.95
	case hasDate && hasClock:
		return 0.8
	case hasDate || hasClock:
		return 0.6
	default:
		return 0.4
	}
}

func timeRealism(v string) float64 {
	t := strings.ToLower(strings.TrimSpace(v))
	if t == "" {
		return 0.5
	}
	if pastRe.MatchString(t) {
		return 0.2
	}
	for _, vague := range vagueTime {
		if strings.Contains(t, vague) {
			return 0.6
		}
	}
	return 0.85
}

func locationCompleteness(v string) float64 {
	loc := strings.ToLower(strings.TrimSpace(v))
	switch {
	case loc == "":
		return 0.1
	case streetRe.MatchString(loc) && strings.Contains(loc, ","):
		// house number + street + something after a comma, likely a city
		return 0.95
	case streetRe.MatchString(loc):
		return 0.85
	case streetNameRe.MatchString(loc):
		return 0.6
	default:
		// bare area or landmark name
		return 0.35
	}
}

func locationRealism(v string) float64 {
	loc := strings.TrimSpace(v)
	switch {
	case loc == "":
		return 0.5
	case len(loc) < 4:
		return 0.3
	case streetRe.MatchString(strings.ToLower(loc)):
		return 0.9
	default:
		return 0.7
	}
}

func contactRealism(ev *types.ExtractedEvent) float64 {
	checks := 0
	passed := 0.0
	if ev.CustomerPhone != "" {
		checks++
		if phoneRe.MatchString(ev.CustomerPhone) {
			passed++
		}
	}
	if ev.CustomerEmail != "" {
		checks++
		if strings.Contains(ev.CustomerEmail, "@") && strings.Contains(ev.CustomerEmail, ".") {
			passed++
		}
	}
	if ev.CustomerName != "" {
		checks++
		if len(strings.TrimSpace(ev.CustomerName)) >= 2 {
			passed++
		}
	}
	if checks == 0 {
		return 0.5
	}
	return passed / float64(checks)
}

func descriptionSpecificity(v string) float64 {
	words := len(strings.Fields(v))
	switch {
	case words == 0:
		return 0.1
	case words >= 15:
		return 0.9
	case words >= 8:
		return 0.7
	case words >= 4:
		return 0.5
	default:
		return 0.3
	}
}

func descriptionRealism(v string, prof *industry.Profile) float64 {
	d := strings.ToLower(v)
	if strings.TrimSpace(d) == "" {
		return 0.3
	}
	for _, term := range prof.Terminology {
		if strings.Contains(d, term) {
			return 0.85
		}
	}
	return 0.65
}

func industryMatch(ev *types.ExtractedEvent, prof *industry.Profile) float64 {
	base := 0.3
	for _, t := range prof.TypeOrder {
		if t == ev.Type {
			base = 0.6
			break
		}
	}
	text := strings.ToLower(ev.Title + " " + ev.Description)
	hits := 0
	for _, kws := range prof.Keywords {
		for _, kw := range kws {
			if strings.Contains(text, kw) {
				hits++
			}
		}
	}
	return clamp01(base + 0.1*float64(hits))
}

func terminologyMatch(transcript string, prof *industry.Profile) float64 {
	t := strings.ToLower(transcript)
	hits := 0
	for _, term := range prof.Terminology {
		if strings.Contains(t, term) {
			hits++
		}
	}
	if hits == 0 {
		return 0.2
	}
	return clamp01(0.25 * float64(hits))
}

// consistency penalizes contradictions between fields rather than judging
// any field on its own.
func consistency(ev *types.ExtractedEvent, prof *industry.Profile) float64 {
	score := 1.0
	t := strings.ToLower(ev.ProposedDateTime)
	if ev.Urgency == types.UrgencyEmergency && t != "" && !containsAny(t, immediateTime) {
		score -= 0.3
	}
	if ev.Urgency == types.UrgencyEmergency && ev.PriceEstimate != "" {
		score -= 0.2
	}
	if ev.Type == types.EventEmergency && ev.Urgency == types.UrgencyLow {
		score -= 0.2
	}
	if ev.Urgency == types.UrgencyLow && containsAny(strings.ToLower(ev.Description), prof.EmergencyTriggers) {
		score -= 0.2
	}
	if score < 0.1 {
		score = 0.1
	}
	return score
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func tier(overall float64) types.QualityTier {
	switch {
	case overall >= 0.8:
		return types.TierExcellent
	case overall >= 0.65:
		return types.TierGood
	case overall >= 0.45:
		return types.TierFair
	default:
		return types.TierPoor
	}
}

var adviceByFactor = map[string]string{
	industry.WTimeSpecificity:         "confirm a specific date and time with the caller",
	industry.WTimeRealism:             "verify the proposed time is actually schedulable",
	industry.WLocationCompleteness:    "collect the full service address including city",
	industry.WLocationRealism:         "double-check the address as recorded",
	industry.WContactCompleteness:     "collect missing contact details (name, phone, email)",
	industry.WContactRealism:          "verify the contact details on file",
	industry.WDescriptionSpecificity:  "ask for more detail about the requested work",
	industry.WDescriptionRealism:      "confirm the request description with the caller",
	industry.WIndustryMatch:           "confirm this request belongs to your service area",
	industry.WTerminologyMatch:        "review the transcript, little industry vocabulary detected",
	industry.WTranscriptionConfidence: "review the recording, transcription quality was low",
	industry.WExtractionConsistency:   "resolve contradictory details before scheduling",
}

// recommendations returns advice for the weakest factors, worst first, at
// most three, only for factors under 0.6.
func recommendations(byKey map[string]float64) []string {
	type kv struct {
		key string
		val float64
	}
	var low []kv
	for k, v := range byKey {
		if v < 0.6 {
			low = append(low, kv{k, v})
		}
	}
	sort.Slice(low, func(i, j int) bool {
		if low[i].val != low[j].val {
			return low[i].val < low[j].val
		}
		return low[i].key < low[j].key
	})
	var out []string
	for i, item := range low {
		if i == 3 {
			break
		}
		out = append(out, adviceByFactor[item.key])
	}
	return out
}

func factorMap(f types.ConfidenceFactors) map[string]float64 {
	return map[string]float64{
		industry.WTimeSpecificity:         f.TimeSpecificity,
		industry.WTimeRealism:             f.TimeRealism,
		industry.WLocationCompleteness:    f.LocationCompleteness,
		industry.WLocationRealism:         f.LocationRealism,
		industry.WContactCompleteness:     f.ContactCompleteness,
		industry.WContactRealism:          f.ContactRealism,
		industry.WDescriptionSpecificity:  f.DescriptionSpecificity,
		industry.WDescriptionRealism:      f.DescriptionRealism,
		industry.WIndustryMatch:           f.IndustryMatch,
		industry.WTerminologyMatch:        f.TerminologyMatch,
		industry.WTranscriptionConfidence: f.TranscriptionConfidence,
		industry.WExtractionConsistency:   f.ExtractionConsistency,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp01OrDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return clamp01(v)
}
