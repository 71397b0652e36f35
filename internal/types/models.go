package types

import "time"

// EventType enumerates what kind of schedulable record a call produced.
type EventType string

const (
	EventServiceCall  EventType = "service_call"
	EventAppointment  EventType = "appointment"
	EventMeeting      EventType = "meeting"
	EventQuote        EventType = "quote"
	EventEmergency    EventType = "emergency"
	EventFollowUp     EventType = "follow_up"
	EventInspection   EventType = "inspection"
	EventConsultation EventType = "consultation"
)

// Urgency influences prioritization but is distinct from the event type.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

// ExtractedEvent is one structured, schedulable record derived from a call
// transcript. The extractor creates it, the scorer and classifier enrich it
// in place, and it is treated as immutable afterwards.
type ExtractedEvent struct {
	ID               string    `json:"id"`
	Type             EventType `json:"type"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	CustomerName     string    `json:"customer_name,omitempty"`
	CustomerPhone    string    `json:"customer_phone,omitempty"`
	CustomerEmail    string    `json:"customer_email,omitempty"`
	Location         string    `json:"location,omitempty"`
	ProposedDateTime string    `json:"proposed_datetime,omitempty"`
	Urgency          Urgency   `json:"urgency"`
	PriceEstimate    string    `json:"price_estimate,omitempty"`
	Confidence       float64   `json:"confidence"`
	ServiceType      string    `json:"service_type,omitempty"`
	Notes            string    `json:"notes,omitempty"`
}

// ContactFieldCount returns how many of name/phone/email are populated.
func (e *ExtractedEvent) ContactFieldCount() int {
	n := 0
	if e.CustomerName != "" {
		n++
	}
	if e.CustomerPhone != "" {
		n++
	}
	if e.CustomerEmail != "" {
		n++
	}
	return n
}

// ConfidenceFactors are the twelve scored dimensions, each 0..1.
type ConfidenceFactors struct {
	TimeSpecificity         float64 `json:"time_specificity"`
	TimeRealism             float64 `json:"time_realism"`
	LocationCompleteness    float64 `json:"location_completeness"`
	LocationRealism         float64 `json:"location_realism"`
	ContactCompleteness     float64 `json:"contact_completeness"`
	ContactRealism          float64 `json:"contact_realism"`
	DescriptionSpecificity  float64 `json:"description_specificity"`
	DescriptionRealism      float64 `json:"description_realism"`
	IndustryMatch           float64 `json:"industry_match"`
	TerminologyMatch        float64 `json:"terminology_match"`
	TranscriptionConfidence float64 `json:"transcription_confidence"`
	ExtractionConsistency   float64 `json:"extraction_consistency"`
}

// QualityTier buckets an overall confidence for reporting.
type QualityTier string

const (
	TierExcellent QualityTier = "excellent"
	TierGood      QualityTier = "good"
	TierFair      QualityTier = "fair"
	TierPoor      QualityTier = "poor"
)

// ConfidenceResult is the scorer's full output for one event.
type ConfidenceResult struct {
	Factors           ConfidenceFactors  `json:"factors"`
	Weights           map[string]float64 `json:"weights"`
	OverallConfidence float64            `json:"overall_confidence"`
	Tier              QualityTier        `json:"quality_tier"`
	Recommendations   []string           `json:"recommendations,omitempty"`
}

// Alternative is one ranked runner-up from classification.
type Alternative struct {
	Type       EventType `json:"type"`
	Confidence float64   `json:"confidence"`
}

// ClassificationResult is the classifier's output for one event.
type ClassificationResult struct {
	Type            EventType     `json:"type"`
	Confidence      float64       `json:"confidence"`
	Reasoning       string        `json:"reasoning"`
	Alternatives    []Alternative `json:"alternatives,omitempty"`
	IndustryContext string        `json:"industry_context"`
}

// ClusterKind describes how the events in a cluster relate.
type ClusterKind string

const (
	ClusterSingle          ClusterKind = "single"
	ClusterSequence        ClusterKind = "sequence"
	ClusterAlternatives    ClusterKind = "alternatives"
	ClusterCombinedService ClusterKind = "combined_service"
)

// EventCluster groups related events from one call around a primary event.
type EventCluster struct {
	Primary    ExtractedEvent   `json:"primary"`
	Related    []ExtractedEvent `json:"related,omitempty"`
	Kind       ClusterKind      `json:"kind"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
}

// RecommendedAction is the analyzer's call-level disposition.
type RecommendedAction string

const (
	ActionSingleAppointment    RecommendedAction = "single_appointment"
	ActionMultipleAppointments RecommendedAction = "multiple_appointments"
	ActionFollowUpCall         RecommendedAction = "follow_up_call"
	ActionClarificationNeeded  RecommendedAction = "clarification_needed"
)

// ConflictKind labels a detected inconsistency between two events.
type ConflictKind string

const (
	ConflictTiming           ConflictKind = "timing"
	ConflictLocation         ConflictKind = "location"
	ConflictCustomerIdentity ConflictKind = "customer_identity"
)

// EventConflict reports an inconsistency between a pair of events.
type EventConflict struct {
	EventA     ExtractedEvent `json:"event_a"`
	EventB     ExtractedEvent `json:"event_b"`
	Kind       ConflictKind   `json:"kind"`
	Resolution string         `json:"resolution"`
}

// PrioritizedEvent pairs an event with its scheduling priority.
type PrioritizedEvent struct {
	Event     ExtractedEvent `json:"event"`
	Score     float64        `json:"score"`
	Reasoning string         `json:"reasoning"`
}

// MultiEventAnalysis is the cross-event result for one call.
type MultiEventAnalysis struct {
	TotalEvents       int                `json:"total_events"`
	Clusters          []EventCluster     `json:"clusters"`
	RecommendedAction RecommendedAction  `json:"recommended_action"`
	Prioritized       []PrioritizedEvent `json:"prioritized"`
	Conflicts         []EventConflict    `json:"conflicts,omitempty"`
	OverallConfidence float64            `json:"overall_confidence"`
}

// ExtractionResult is what the extraction engine returns for one transcript.
type ExtractionResult struct {
	Events            []ExtractedEvent `json:"events"`
	OverallConfidence float64          `json:"overall_confidence"`
	IndustryContext   string           `json:"industry_context"`
}

// CallStatus is a call's position in the lifecycle state machine.
type CallStatus string

const (
	StatusIdle                 CallStatus = "idle"
	StatusWaitingForActivation CallStatus = "waiting_for_activation"
	StatusKeypadActivated      CallStatus = "keypad_activated"
	StatusRealTimeProcessing   CallStatus = "real_time_processing"
	StatusExtractingEvents     CallStatus = "extracting_events"
	StatusProcessingComplete   CallStatus = "processing_complete"
	StatusEmailGeneration      CallStatus = "email_generation"
	StatusEmailSent            CallStatus = "email_sent"
	StatusCompleted            CallStatus = "completed"
	StatusFailed               CallStatus = "failed"
	StatusTimeout              CallStatus = "timeout"
)

// Terminal reports whether no further transitions are allowed.
func (s CallStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// ProcessingMetrics are per-call timing/throughput counters.
type ProcessingMetrics struct {
	ActivationMs int64 `json:"activation_ms,omitempty"`
	ExtractionMs int64 `json:"extraction_ms,omitempty"`
	TotalMs      int64 `json:"total_ms,omitempty"`
}

// CallProcessingState is the coordinator's in-memory record for one call.
// The coordinator is the sole mutator.
type CallProcessingState struct {
	CallID          string            `json:"call_id"`
	UserID          string            `json:"user_id,omitempty"`
	CallerPhone     string            `json:"caller_phone,omitempty"`
	Industry        string            `json:"industry,omitempty"`
	Status          CallStatus        `json:"status"`
	ActivatedAt     time.Time         `json:"activated_at,omitempty"`
	ProcessingAt    time.Time         `json:"processing_at,omitempty"`
	CompletedAt     time.Time         `json:"completed_at,omitempty"`
	ErrorCount      int               `json:"error_count"`
	LastError       string            `json:"last_error,omitempty"`
	EventsExtracted int               `json:"events_extracted"`
	Metrics         ProcessingMetrics `json:"metrics"`
}

// RecordCategory names one class of call artifact for retention purposes.
type RecordCategory string

const (
	RecordRecordings     RecordCategory = "recordings"
	RecordTranscriptions RecordCategory = "transcriptions"
	RecordExtractions    RecordCategory = "ai_extractions"
	RecordIdentifiers    RecordCategory = "personal_identifiers"
	RecordComplianceLogs RecordCategory = "compliance_logs"
)

// DeletionMethod is how a due retention job disposes of its data.
type DeletionMethod string

const (
	MethodHardDelete DeletionMethod = "hard_delete"
	MethodAnonymize  DeletionMethod = "anonymize"
	MethodArchive    DeletionMethod = "archive"
)

// JobStatus tracks a deletion job through the sweep.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// DeletionJob schedules disposal of one record category for one call.
type DeletionJob struct {
	ID           string         `json:"id"`
	Category     RecordCategory `json:"category"`
	TargetID     string         `json:"target_id"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	Status       JobStatus      `json:"status"`
	Method       DeletionMethod `json:"method"`
	Reason       string         `json:"reason"`
}
