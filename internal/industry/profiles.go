package industry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"callintel-go/internal/types"
)

// Factor weight keys. Each profile's weight vector maps these to a share of
// the overall confidence and must sum to 1.
const (
	WTimeSpecificity         = "time_specificity"
	WTimeRealism             = "time_realism"
	WLocationCompleteness    = "location_completeness"
	WLocationRealism         = "location_realism"
	WContactCompleteness     = "contact_completeness"
	WContactRealism          = "contact_realism"
	WDescriptionSpecificity  = "description_specificity"
	WDescriptionRealism      = "description_realism"
	WIndustryMatch           = "industry_match"
	WTerminologyMatch        = "terminology_match"
	WTranscriptionConfidence = "transcription_confidence"
	WExtractionConsistency   = "extraction_consistency"
)

// UrgencyModifier scales a type's keyword score when its phrase appears.
type UrgencyModifier struct {
	Phrase     string  `yaml:"phrase"`
	Multiplier float64 `yaml:"multiplier"`
}

// ServicePair is two keyword groups whose co-occurrence across a pair of
// events marks them as complementary work.
type ServicePair struct {
	First  []string `yaml:"first"`
	Second []string `yaml:"second"`
}

// Profile is the full table-driven rule set for one industry. Adding an
// industry is a data change, not a code change.
type Profile struct {
	Name              string                       `yaml:"name"`
	TypeOrder         []types.EventType            `yaml:"type_order"`
	Keywords          map[types.EventType][]string `yaml:"keywords"`
	UrgencyModifiers  []UrgencyModifier            `yaml:"urgency_modifiers"`
	EmergencyTriggers []string                     `yaml:"emergency_triggers"`
	DefaultType       types.EventType              `yaml:"default_type"`
	Weights           map[string]float64           `yaml:"weights"`
	Terminology       []string                     `yaml:"terminology"`
	SequentialVocab   []string                     `yaml:"sequential_vocab"`
	ServicePairs      []ServicePair                `yaml:"service_pairs"`
	AddressBonus      float64                      `yaml:"address_bonus"`
	TimingBonus       float64                      `yaml:"timing_bonus"`
	AutoMergeCombined bool                         `yaml:"auto_merge_combined"`
	RetentionDays     map[types.RecordCategory]int `yaml:"retention_days"`
	PromptTemplate    string                       `yaml:"prompt_template"`
}

func generalWeights() map[string]float64 {
	return map[string]float64{
		WTimeSpecificity:         0.10,
		WTimeRealism:             0.05,
		WLocationCompleteness:    0.10,
		WLocationRealism:         0.05,
		WContactCompleteness:     0.12,
		WContactRealism:          0.05,
		WDescriptionSpecificity:  0.13,
		WDescriptionRealism:      0.05,
		WIndustryMatch:           0.10,
		WTerminologyMatch:        0.05,
		WTranscriptionConfidence: 0.10,
		WExtractionConsistency:   0.10,
	}
}

var profiles = map[string]*Profile{
	"general": {
		Name:      "general",
		TypeOrder: []types.EventType{types.EventAppointment, types.EventServiceCall, types.EventMeeting, types.EventQuote, types.EventFollowUp, types.EventEmergency},
		Keywords: map[types.EventType][]string{
			types.EventAppointment: {"appointment", "schedule", "book", "visit"},
			types.EventServiceCall: {"service", "repair", "fix", "install", "maintenance"},
			types.EventMeeting:     {"meeting", "discuss", "call back", "conference"},
			types.EventQuote:       {"quote", "estimate", "price", "cost", "how much"},
			types.EventFollowUp:    {"follow up", "check back", "touch base"},
			types.EventEmergency:   {"emergency", "urgent", "right away", "immediately"},
		},
		UrgencyModifiers: []UrgencyModifier{
			{Phrase: "as soon as possible", Multiplier: 1.5},
			{Phrase: "asap", Multiplier: 1.5},
			{Phrase: "urgent", Multiplier: 1.4},
			{Phrase: "whenever", Multiplier: 0.8},
		},
		EmergencyTriggers: []string{"emergency", "life threatening", "911"},
		DefaultType:       types.EventAppointment,
		Weights:           generalWeights(),
		Terminology:       []string{"customer", "service", "schedule"},
		SequentialVocab:   []string{},
		AddressBonus:      0,
		TimingBonus:       0,
		AutoMergeCombined: false,
		RetentionDays: map[types.RecordCategory]int{
			types.RecordRecordings:     90,
			types.RecordTranscriptions: 180,
			types.RecordExtractions:    365,
			types.RecordIdentifiers:    365,
			types.RecordComplianceLogs: 2555,
		},
		PromptTemplate: genericPrompt,
	},
	"plumbing": {
		Name:      "plumbing",
		TypeOrder: []types.EventType{types.EventEmergency, types.EventServiceCall, types.EventQuote, types.EventInspection, types.EventFollowUp},
		Keywords: map[types.EventType][]string{
			types.EventEmergency:   {"burst", "flooding", "flood", "leak everywhere", "sewage backup", "no water"},
			types.EventServiceCall: {"leak", "drip", "clog", "clogged", "drain", "pipe", "faucet", "toilet", "water heater", "repair"},
			types.EventQuote:       {"quote", "estimate", "how much", "price", "cost"},
			types.EventInspection:  {"inspection", "inspect", "check the pipes", "camera"},
			types.EventFollowUp:    {"follow up", "come back", "recheck"},
		},
		UrgencyModifiers: []UrgencyModifier{
			{Phrase: "right now", Multiplier: 1.6},
			{Phrase: "asap", Multiplier: 1.5},
			{Phrase: "getting worse", Multiplier: 1.4},
			{Phrase: "whenever you can", Multiplier: 0.8},
		},
		EmergencyTriggers: []string{"burst pipe", "burst", "flooding", "flooded", "sewage backup", "water everywhere", "gas smell"},
		DefaultType:       types.EventServiceCall,
		Weights: map[string]float64{
			WTimeSpecificity:         0.08,
			WTimeRealism:             0.04,
			WLocationCompleteness:    0.16,
			WLocationRealism:         0.06,
			WContactCompleteness:     0.15,
			WContactRealism:          0.05,
			WDescriptionSpecificity:  0.12,
			WDescriptionRealism:      0.04,
			WIndustryMatch:           0.08,
			WTerminologyMatch:        0.06,
			WTranscriptionConfidence: 0.08,
			WExtractionConsistency:   0.08,
		},
		Terminology:     []string{"pipe", "drain", "valve", "fixture", "water heater", "sump pump", "main line"},
		SequentialVocab: []string{"after the repair", "once the leak is fixed", "then install"},
		ServicePairs: []ServicePair{
			{First: []string{"leak", "burst", "pipe"}, Second: []string{"water damage", "drywall", "restoration"}},
			{First: []string{"water heater"}, Second: []string{"inspection", "flush", "anode"}},
		},
		AddressBonus:      15,
		TimingBonus:       0,
		AutoMergeCombined: true,
		RetentionDays: map[types.RecordCategory]int{
			types.RecordRecordings:     90,
			types.RecordTranscriptions: 180,
		},
		PromptTemplate: plumbingPrompt,
	},
	"medical": {
		Name:      "medical",
		TypeOrder: []types.EventType{types.EventEmergency, types.EventAppointment, types.EventConsultation, types.EventFollowUp},
		Keywords: map[types.EventType][]string{
			types.EventEmergency:    {"severe pain", "bleeding", "can't breathe", "chest pain"},
			types.EventAppointment:  {"appointment", "schedule", "see the doctor", "check-up", "checkup"},
			types.EventConsultation: {"consultation", "second opinion", "discuss results"},
			types.EventFollowUp:     {"follow up", "follow-up", "recheck", "lab results"},
		},
		UrgencyModifiers: []UrgencyModifier{
			{Phrase: "getting worse", Multiplier: 1.5},
			{Phrase: "today if possible", Multiplier: 1.4},
			{Phrase: "routine", Multiplier: 0.8},
		},
		EmergencyTriggers: []string{"chest pain", "can't breathe", "unconscious", "severe bleeding"},
		DefaultType:       types.EventAppointment,
		Weights: map[string]float64{
			WTimeSpecificity:         0.14,
			WTimeRealism:             0.06,
			WLocationCompleteness:    0.04,
			WLocationRealism:         0.03,
			WContactCompleteness:     0.16,
			WContactRealism:          0.06,
			WDescriptionSpecificity:  0.13,
			WDescriptionRealism:      0.05,
			WIndustryMatch:           0.08,
			WTerminologyMatch:        0.05,
			WTranscriptionConfidence: 0.10,
			WExtractionConsistency:   0.10,
		},
		Terminology:     []string{"patient", "symptoms", "referral", "prescription", "insurance"},
		SequentialVocab: []string{"after the bloodwork", "once results are in", "then a follow-up"},
		AddressBonus:    0,
		TimingBonus:     10,
		RetentionDays: map[types.RecordCategory]int{
			types.RecordRecordings:     30,
			types.RecordTranscriptions: 60,
			types.RecordExtractions:    180,
			types.RecordIdentifiers:    180,
		},
		PromptTemplate: medicalPrompt,
	},
	"legal": {
		Name:      "legal",
		TypeOrder: []types.EventType{types.EventConsultation, types.EventMeeting, types.EventAppointment, types.EventFollowUp, types.EventEmergency},
		Keywords: map[types.EventType][]string{
			types.EventConsultation: {"consultation", "legal advice", "case review", "retainer"},
			types.EventMeeting:      {"meeting", "deposition", "mediation", "signing"},
			types.EventAppointment:  {"appointment", "schedule", "come in"},
			types.EventFollowUp:     {"follow up", "status update", "check on my case"},
			types.EventEmergency:    {"arrested", "court tomorrow", "served papers"},
		},
		UrgencyModifiers: []UrgencyModifier{
			{Phrase: "court date", Multiplier: 1.5},
			{Phrase: "deadline", Multiplier: 1.4},
			{Phrase: "statute of limitations", Multiplier: 1.4},
		},
		EmergencyTriggers: []string{"arrested", "in custody", "court tomorrow"},
		DefaultType:       types.EventConsultation,
		Weights: map[string]float64{
			WTimeSpecificity:         0.12,
			WTimeRealism:             0.05,
			WLocationCompleteness:    0.03,
			WLocationRealism:         0.02,
			WContactCompleteness:     0.18,
			WContactRealism:          0.07,
			WDescriptionSpecificity:  0.17,
			WDescriptionRealism:      0.06,
			WIndustryMatch:           0.07,
			WTerminologyMatch:        0.05,
			WTranscriptionConfidence: 0.09,
			WExtractionConsistency:   0.09,
		},
		Terminology:     []string{"case", "claim", "filing", "hearing", "counsel", "plaintiff", "defendant"},
		SequentialVocab: []string{"after the filing", "once discovery closes", "then the hearing"},
		AddressBonus:    0,
		TimingBonus:     15,
		RetentionDays: map[types.RecordCategory]int{
			types.RecordRecordings:     365,
			types.RecordTranscriptions: 730,
			types.RecordExtractions:    730,
			types.RecordIdentifiers:    730,
		},
		PromptTemplate: legalPrompt,
	},
	"real_estate": {
		Name:      "real_estate",
		TypeOrder: []types.EventType{types.EventAppointment, types.EventMeeting, types.EventInspection, types.EventQuote, types.EventFollowUp},
		Keywords: map[types.EventType][]string{
			types.EventAppointment: {"showing", "viewing", "tour", "open house", "see the property"},
			types.EventMeeting:     {"closing", "signing", "offer", "negotiation"},
			types.EventInspection:  {"inspection", "appraisal", "walkthrough", "walk-through"},
			types.EventQuote:       {"listing price", "valuation", "market analysis", "what's it worth"},
			types.EventFollowUp:    {"follow up", "keep me posted", "let me know"},
		},
		UrgencyModifiers: []UrgencyModifier{
			{Phrase: "multiple offers", Multiplier: 1.5},
			{Phrase: "closing soon", Multiplier: 1.4},
			{Phrase: "just browsing", Multiplier: 0.7},
		},
		EmergencyTriggers: []string{},
		DefaultType:       types.EventAppointment,
		Weights: map[string]float64{
			WTimeSpecificity:         0.12,
			WTimeRealism:             0.05,
			WLocationCompleteness:    0.18,
			WLocationRealism:         0.07,
			WContactCompleteness:     0.13,
			WContactRealism:          0.05,
			WDescriptionSpecificity:  0.10,
			WDescriptionRealism:      0.04,
			WIndustryMatch:           0.07,
			WTerminologyMatch:        0.05,
			WTranscriptionConfidence: 0.07,
			WExtractionConsistency:   0.07,
		},
		Terminology:       []string{"listing", "escrow", "mls", "buyer", "seller", "square feet"},
		SequentialVocab:   []string{"after the inspection", "once the appraisal is done", "then closing"},
		ServicePairs:      []ServicePair{{First: []string{"showing", "viewing", "tour"}, Second: []string{"inspection", "appraisal"}}},
		AddressBonus:      20,
		TimingBonus:       0,
		AutoMergeCombined: true,
		RetentionDays: map[types.RecordCategory]int{
			types.RecordRecordings:     180,
			types.RecordTranscriptions: 365,
		},
		PromptTemplate: genericPrompt,
	},
	"financial": {
		Name:      "financial",
		TypeOrder: []types.EventType{types.EventConsultation, types.EventMeeting, types.EventAppointment, types.EventFollowUp},
		Keywords: map[types.EventType][]string{
			types.EventConsultation: {"consultation", "portfolio review", "financial plan", "retirement"},
			types.EventMeeting:      {"meeting", "review", "quarterly", "sign the paperwork"},
			types.EventAppointment:  {"appointment", "schedule", "come in"},
			types.EventFollowUp:     {"follow up", "check in", "update"},
		},
		UrgencyModifiers: []UrgencyModifier{
			{Phrase: "tax deadline", Multiplier: 1.5},
			{Phrase: "market", Multiplier: 1.2},
		},
		EmergencyTriggers: []string{"fraud", "unauthorized transaction", "account compromised"},
		DefaultType:       types.EventConsultation,
		Weights: map[string]float64{
			WTimeSpecificity:         0.12,
			WTimeRealism:             0.05,
			WLocationCompleteness:    0.04,
			WLocationRealism:         0.03,
			WContactCompleteness:     0.17,
			WContactRealism:          0.07,
			WDescriptionSpecificity:  0.14,
			WDescriptionRealism:      0.05,
			WIndustryMatch:           0.08,
			WTerminologyMatch:        0.05,
			WTranscriptionConfidence: 0.10,
			WExtractionConsistency:   0.10,
		},
		Terminology:     []string{"account", "portfolio", "ira", "statement", "advisor"},
		SequentialVocab: []string{"after tax season", "once the transfer settles"},
		AddressBonus:    0,
		TimingBonus:     5,
		RetentionDays: map[types.RecordCategory]int{
			types.RecordRecordings:     365,
			types.RecordTranscriptions: 730,
			types.RecordExtractions:    2555,
			types.RecordIdentifiers:    2555,
		},
		PromptTemplate: genericPrompt,
	},
}

// Get returns the profile for an industry, falling back to "general" for
// unknown names. The returned profile is shared; callers must not mutate it.
func Get(name string) *Profile {
	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := profiles[key]; ok {
		return p
	}
	return profiles["general"]
}

// Names lists the registered industries.
func Names() []string {
	out := make([]string, 0, len(profiles))
	for k := range profiles {
		out = append(out, k)
	}
	return out
}

// RetentionFor resolves the window for one category, using the industry
// override when present and the general baseline otherwise.
func (p *Profile) RetentionFor(cat types.RecordCategory) int {
	if d, ok := p.RetentionDays[cat]; ok {
		return d
	}
	if d, ok := profiles["general"].RetentionDays[cat]; ok {
		return d
	}
	return 365
}

// override is the YAML shape for tuning a registered profile without a
// rebuild: weights, retention windows and merge policy are the knobs that
// get re-tuned in the field.
type override struct {
	Weights           map[string]float64           `yaml:"weights"`
	RetentionDays     map[types.RecordCategory]int `yaml:"retention_days"`
	AutoMergeCombined *bool                        `yaml:"auto_merge_combined"`
	EmergencyTriggers []string                     `yaml:"emergency_triggers"`
}

// LoadOverrides applies per-industry tuning from a YAML file keyed by
// industry name. Unknown industries in the file are an error.
func LoadOverrides(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read industry overrides: %w", err)
	}
	var parsed map[string]override
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse industry overrides: %w", err)
	}
	for name, ov := range parsed {
		p, ok := profiles[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("industry overrides: unknown industry %q", name)
		}
		if len(ov.Weights) > 0 {
			sum := 0.0
			for _, w := range ov.Weights {
				sum += w
			}
			if sum < 0.99 || sum > 1.01 {
				return fmt.Errorf("industry overrides: %s weights sum to %.3f, want 1", name, sum)
			}
			p.Weights = ov.Weights
		}
		for cat, days := range ov.RetentionDays {
			if p.RetentionDays == nil {
				p.RetentionDays = map[types.RecordCategory]int{}
			}
			p.RetentionDays[cat] = days
		}
		if ov.AutoMergeCombined != nil {
			p.AutoMergeCombined = *ov.AutoMergeCombined
		}
		if len(ov.EmergencyTriggers) > 0 {
			p.EmergencyTriggers = ov.EmergencyTriggers
		}
	}
	return nil
}
