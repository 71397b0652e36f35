// Package coordinator drives each call through the processing lifecycle:
// activation, extraction, completion, notification, cleanup. It owns the
// per-call state table and is its sole mutator; every other stage is pure
// with respect to call state.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"callintel-go/internal/compliance"
	"callintel-go/internal/extractor"
	"callintel-go/internal/inference"
	"callintel-go/internal/logger"
	"callintel-go/internal/notify"
	"callintel-go/internal/transcription"
	"callintel-go/internal/types"
)

var (
	ErrUnknownCall       = errors.New("unknown call")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// transitions is the forward edge set of the lifecycle graph. failed and
// timeout are reachable from any non-terminal state and are handled
// separately in advance.
var transitions = map[types.CallStatus][]types.CallStatus{
	types.StatusIdle:                 {types.StatusWaitingForActivation},
	types.StatusWaitingForActivation: {types.StatusKeypadActivated},
	types.StatusKeypadActivated:      {types.StatusRealTimeProcessing},
	types.StatusRealTimeProcessing:   {types.StatusExtractingEvents},
	types.StatusExtractingEvents:     {types.StatusProcessingComplete},
	types.StatusProcessingComplete:   {types.StatusEmailGeneration, types.StatusCompleted},
	types.StatusEmailGeneration:      {types.StatusEmailSent},
	types.StatusEmailSent:            {types.StatusCompleted},
}

// Persistence is the slice of the data store the coordinator writes to.
// Failures here are logged and swallowed: in-memory state stays
// authoritative.
type Persistence interface {
	UpsertCallState(ctx context.Context, st *types.CallProcessingState) error
	SaveTranscript(ctx context.Context, callID, text string) error
	SaveEvents(ctx context.Context, callID string, events []types.ExtractedEvent) error
	AppendComplianceLog(ctx context.Context, callID, userID, entry string) error
}

// EventExtractor runs the per-transcript extraction stage.
type EventExtractor interface {
	Extract(ctx context.Context, transcript, industry string, opts *extractor.Options) (*types.ExtractionResult, error)
}

// EventAnalyzer runs the cross-event stage.
type EventAnalyzer interface {
	Analyze(events []types.ExtractedEvent, transcript, industry string) *types.MultiEventAnalysis
}

// RetentionScheduler enqueues post-completion deletion jobs.
type RetentionScheduler interface {
	ScheduleForCall(ctx context.Context, callID, industryName string) ([]types.DeletionJob, error)
}

// Config tunes the lifecycle.
type Config struct {
	// MaxCallDuration arms the only cancellation mechanism: the per-call
	// hard timer.
	MaxCallDuration time.Duration
	// GraceDelay keeps terminal calls in the table so late-arriving work
	// is still attributable.
	GraceDelay time.Duration
	// ErrorThreshold is the per-call error budget.
	ErrorThreshold int
	// StageTimeout bounds each external suspension point.
	StageTimeout time.Duration
	// NotifyRetryDelay seeds the backoff between notification attempts.
	NotifyRetryDelay time.Duration
	// Synchronous runs stage dispatch inline instead of on a goroutine.
	// Tests use it for determinism.
	Synchronous bool
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxCallDuration == 0 {
		out.MaxCallDuration = 30 * time.Minute
	}
	if out.GraceDelay == 0 {
		out.GraceDelay = 5 * time.Minute
	}
	if out.ErrorThreshold == 0 {
		out.ErrorThreshold = 3
	}
	if out.StageTimeout == 0 {
		out.StageTimeout = 60 * time.Second
	}
	if out.NotifyRetryDelay == 0 {
		out.NotifyRetryDelay = 2 * time.Second
	}
	return out
}

// CallInfo seeds a new call.
type CallInfo struct {
	CallID      string
	UserID      string
	CallerPhone string
	Industry    string
	AudioURL    string
	// Transcript, when already known, skips the transcription stage.
	Transcript string
	// TranscriptionConfidence accompanies a pre-supplied transcript.
	TranscriptionConfidence float64
}

type callEntry struct {
	state        *types.CallProcessingState
	info         CallInfo
	transcript   string
	events       []types.ExtractedEvent
	analysis     *types.MultiEventAnalysis
	maxTimer     *time.Timer
	removalTimer *time.Timer
	cleanedUp    bool
}

// Stats is a point-in-time snapshot of coordinator counters.
type Stats struct {
	ActiveCalls       int   `json:"active_calls"`
	Completed         int64 `json:"completed"`
	Failed            int64 `json:"failed"`
	TimedOut          int64 `json:"timed_out"`
	EventsExtracted   int64 `json:"events_extracted"`
	NotificationsSent int64 `json:"notifications_sent"`
}

// Coordinator is safe for concurrent use; different calls proceed
// independently.
type Coordinator struct {
	cfg        Config
	persist    Persistence
	gate       compliance.Gate
	transcribe transcription.Provider
	extract    EventExtractor
	analyze    EventAnalyzer
	dispatch   notify.Dispatcher
	retention  RetentionScheduler
	log        *logger.Logger

	mu    sync.Mutex
	calls map[string]*callEntry
	stats Stats
}

func New(cfg Config, persist Persistence, gate compliance.Gate, tp transcription.Provider,
	ex EventExtractor, an EventAnalyzer, nd notify.Dispatcher, rs RetentionScheduler) *Coordinator {
	log := logger.New()
	log.Entry = log.WithComponent("call-coordinator")
	return &Coordinator{
		cfg:        cfg.withDefaults(),
		persist:    persist,
		gate:       gate,
		transcribe: tp,
		extract:    ex,
		analyze:    an,
		dispatch:   nd,
		retention:  rs,
		log:        log,
		calls:      map[string]*callEntry{},
	}
}

// InitializeCall registers a new in-flight call and arms its max-duration
// timer.
func (c *Coordinator) InitializeCall(info CallInfo) (*types.CallProcessingState, error) {
	if info.CallID == "" {
		return nil, errors.New("call id required")
	}
	c.mu.Lock()
	if _, exists := c.calls[info.CallID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("call %s already initialized", info.CallID)
	}
	st := &types.CallProcessingState{
		CallID:      info.CallID,
		UserID:      info.UserID,
		CallerPhone: info.CallerPhone,
		Industry:    info.Industry,
		Status:      types.StatusWaitingForActivation,
	}
	entry := &callEntry{state: st, info: info, transcript: info.Transcript}
	entry.maxTimer = time.AfterFunc(c.cfg.MaxCallDuration, func() { c.forceTimeout(info.CallID) })
	c.calls[info.CallID] = entry
	snap := snapshot(st)
	c.mu.Unlock()

	// persist outside the lock: a slow store must not stall other calls
	c.persistState(snap)
	c.log.WithCall(info.CallID).WithField("industry", info.Industry).Info("call initialized")
	return snapshot(snap), nil
}

// HandleActivation runs the compliance check and moves the call into live
// processing. A denial is fatal and never retried.
func (c *Coordinator) HandleActivation(callID string) error {
	entry, err := c.entry(callID)
	if err != nil {
		return err
	}
	if c.terminal(callID) {
		return nil
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StageTimeout)
	defer cancel()
	dec, err := c.gate.Check(ctx, callID, entry.info.UserID, entry.info.CallerPhone)
	if err != nil {
		c.recordError(callID, fmt.Errorf("compliance check: %w", err))
		return err
	}
	c.appendComplianceLog(callID, entry.info.UserID, fmt.Sprintf("compliance check: compliant=%t reason=%s", dec.Compliant, dec.Reason))
	if !dec.Compliant {
		c.failCall(callID, fmt.Sprintf("compliance denied: %s", dec.Reason))
		return nil
	}

	if err := c.advance(callID, types.StatusKeypadActivated); err != nil {
		return err
	}
	c.mu.Lock()
	entry.state.ActivatedAt = time.Now().UTC()
	entry.state.Metrics.ActivationMs = time.Since(start).Milliseconds()
	c.mu.Unlock()
	return c.advance(callID, types.StatusRealTimeProcessing)
}

// HandleCallEnd dispatches the extraction stage. The coordinator resumes in
// HandleExtractionComplete rather than blocking here.
func (c *Coordinator) HandleCallEnd(callID string) error {
	entry, err := c.entry(callID)
	if err != nil {
		return err
	}
	if c.terminal(callID) {
		return nil
	}
	c.mu.Lock()
	redispatch := entry.state.Status == types.StatusExtractingEvents
	c.mu.Unlock()
	if !redispatch {
		if err := c.advance(callID, types.StatusExtractingEvents); err != nil {
			return err
		}
	}
	c.runStage(callID, "extraction", func() { c.extractionStage(callID) })
	return nil
}

func (c *Coordinator) extractionStage(callID string) {
	entry, err := c.entry(callID)
	if err != nil || c.terminal(callID) {
		return
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StageTimeout)
	defer cancel()

	c.mu.Lock()
	text := entry.transcript
	c.mu.Unlock()
	if text == "" {
		text, err = c.transcribe.Transcribe(ctx, entry.info.AudioURL)
		if err != nil {
			c.recordError(callID, fmt.Errorf("transcription: %w", err))
			return
		}
		c.mu.Lock()
		entry.transcript = text
		c.mu.Unlock()
		if perr := c.persist.SaveTranscript(ctx, callID, text); perr != nil {
			c.log.WithCall(callID).WithError(perr).Warn("transcript persist failed")
		}
	}

	res, err := c.extract.Extract(ctx, text, entry.info.Industry, &extractor.Options{
		TranscriptionConfidence: entry.info.TranscriptionConfidence,
	})
	if err != nil {
		switch {
		case errors.Is(err, extractor.ErrTranscriptTooShort):
			// precondition failure: no retry budget spent soft-failing
			c.failCall(callID, err.Error())
		case errors.Is(err, inference.ErrMalformed):
			c.failCall(callID, err.Error())
		default:
			c.recordError(callID, fmt.Errorf("extraction: %w", err))
		}
		return
	}
	if c.terminal(callID) {
		return
	}

	analysis := c.analyze.Analyze(res.Events, text, entry.info.Industry)
	c.mu.Lock()
	entry.events = res.Events
	entry.analysis = analysis
	entry.state.Metrics.ExtractionMs = time.Since(start).Milliseconds()
	c.mu.Unlock()
	if perr := c.persist.SaveEvents(ctx, callID, res.Events); perr != nil {
		c.log.WithCall(callID).WithError(perr).Warn("event persist failed")
	}
	if err := c.HandleExtractionComplete(callID, len(res.Events)); err != nil {
		c.log.WithCall(callID).WithError(err).Warn("extraction completion rejected")
	}
}

// HandleExtractionComplete moves the call out of extraction: one or more
// events trigger notification, zero events complete the call directly.
func (c *Coordinator) HandleExtractionComplete(callID string, count int) error {
	entry, err := c.entry(callID)
	if err != nil {
		return err
	}
	if c.terminal(callID) {
		return nil
	}
	c.mu.Lock()
	entry.state.EventsExtracted = count
	entry.state.ProcessingAt = time.Now().UTC()
	c.stats.EventsExtracted += int64(count)
	c.mu.Unlock()
	if err := c.advance(callID, types.StatusProcessingComplete); err != nil {
		return err
	}
	if count == 0 {
		c.log.WithCall(callID).Info("no events extracted, completing without notification")
		return c.completeCall(callID)
	}
	if err := c.advance(callID, types.StatusEmailGeneration); err != nil {
		return err
	}
	c.runStage(callID, "notification", func() { c.notificationStage(callID) })
	return nil
}

func (c *Coordinator) notificationStage(callID string) {
	entry, err := c.entry(callID)
	if err != nil || c.terminal(callID) {
		return
	}
	c.mu.Lock()
	events := entry.events
	meta := notify.CallMetadata{
		Industry:    entry.info.Industry,
		CallerPhone: entry.info.CallerPhone,
		Analysis:    entry.analysis,
	}
	if entry.analysis != nil {
		meta.RecommendedAction = entry.analysis.RecommendedAction
	}
	userID := entry.info.UserID
	c.mu.Unlock()

	// each failed send burns one error budget point; the loop keeps
	// re-sending with backoff until the send lands or recordError fails the
	// call at the threshold. Events are persisted already either way.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.NotifyRetryDelay
	bo.MaxElapsedTime = 0
	for {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StageTimeout)
		err := c.dispatch.Send(ctx, callID, userID, events, meta)
		cancel()
		if err == nil {
			break
		}
		c.recordError(callID, fmt.Errorf("notification: %w", err))
		if c.terminal(callID) {
			return
		}
		time.Sleep(bo.NextBackOff())
	}
	c.mu.Lock()
	c.stats.NotificationsSent++
	c.mu.Unlock()
	if err := c.advance(callID, types.StatusEmailSent); err != nil {
		return
	}
	if err := c.completeCall(callID); err != nil {
		c.log.WithCall(callID).WithError(err).Warn("completion failed")
	}
}

func (c *Coordinator) completeCall(callID string) error {
	if err := c.advance(callID, types.StatusCompleted); err != nil {
		return err
	}
	c.mu.Lock()
	entry := c.calls[callID]
	var industry string
	if entry != nil {
		entry.state.CompletedAt = time.Now().UTC()
		if !entry.state.ActivatedAt.IsZero() {
			entry.state.Metrics.TotalMs = entry.state.CompletedAt.Sub(entry.state.ActivatedAt).Milliseconds()
		}
		industry = entry.info.Industry
	}
	c.stats.Completed++
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StageTimeout)
	defer cancel()
	if _, err := c.retention.ScheduleForCall(ctx, callID, industry); err != nil {
		c.log.WithCall(callID).WithError(err).Warn("retention scheduling failed")
	}
	c.cleanup(callID)
	return nil
}

// advance validates and applies one transition, then best-effort persists.
// Terminal targets failed/timeout are allowed from any non-terminal state;
// everything else must follow the forward graph.
func (c *Coordinator) advance(callID string, to types.CallStatus) error {
	c.mu.Lock()
	entry, ok := c.calls[callID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	from := entry.state.Status
	if from.Terminal() {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if to != types.StatusFailed && to != types.StatusTimeout && !allowed(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	entry.state.Status = to
	st := snapshot(entry.state)
	c.mu.Unlock()

	c.log.WithCall(callID).WithFields(logrus.Fields{"from": from, "to": to}).Info("state transition")
	c.persistState(st)
	return nil
}

func allowed(from, to types.CallStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// recordError applies the soft-fail-and-continue policy: below the budget
// the call stays in its current state, at the budget it fails exactly once.
func (c *Coordinator) recordError(callID string, err error) {
	c.mu.Lock()
	entry, ok := c.calls[callID]
	if !ok || entry.state.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	entry.state.ErrorCount++
	entry.state.LastError = err.Error()
	count := entry.state.ErrorCount
	st := snapshot(entry.state)
	c.mu.Unlock()

	c.log.WithCall(callID).WithError(err).WithField("error_count", count).Warn("call error recorded")
	if count >= c.cfg.ErrorThreshold {
		c.failCall(callID, fmt.Sprintf("error budget exhausted: %s", err.Error()))
		return
	}
	c.persistState(st)
}

func (c *Coordinator) failCall(callID, reason string) {
	c.mu.Lock()
	entry, ok := c.calls[callID]
	if !ok || entry.state.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	entry.state.Status = types.StatusFailed
	entry.state.LastError = reason
	entry.state.CompletedAt = time.Now().UTC()
	st := snapshot(entry.state)
	c.stats.Failed++
	c.mu.Unlock()

	c.log.WithCall(callID).WithField("reason", reason).Warn("call failed")
	c.persistState(st)
	c.cleanup(callID)
}

// forceTimeout fires from the max-duration timer: any non-terminal call is
// moved to timeout and cleaned up; in-flight stages observe terminal state
// and stand down.
func (c *Coordinator) forceTimeout(callID string) {
	c.mu.Lock()
	entry, ok := c.calls[callID]
	if !ok || entry.state.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	entry.state.Status = types.StatusTimeout
	entry.state.LastError = "max call duration exceeded"
	entry.state.CompletedAt = time.Now().UTC()
	st := snapshot(entry.state)
	c.stats.TimedOut++
	c.mu.Unlock()

	c.log.WithCall(callID).Warn("call timed out")
	c.persistState(st)
	c.cleanup(callID)
}

// cleanup cancels the max-duration timer, releases activation-scoped
// buffers and schedules removal from the live table after the grace delay.
// Safe to call repeatedly.
func (c *Coordinator) cleanup(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.calls[callID]
	if !ok || entry.cleanedUp {
		return
	}
	entry.cleanedUp = true
	if entry.maxTimer != nil {
		entry.maxTimer.Stop()
	}
	// the raw transcript is activation-scoped; events and analysis remain
	// for late readers during the grace window
	entry.transcript = ""
	entry.removalTimer = time.AfterFunc(c.cfg.GraceDelay, func() {
		c.mu.Lock()
		delete(c.calls, callID)
		c.mu.Unlock()
	})
}

// GetState returns a copy of one call's state.
func (c *Coordinator) GetState(callID string) (*types.CallProcessingState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.calls[callID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	return snapshot(entry.state), nil
}

// GetActiveCalls lists non-terminal calls.
func (c *Coordinator) GetActiveCalls() []*types.CallProcessingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*types.CallProcessingState
	for _, entry := range c.calls {
		if !entry.state.Status.Terminal() {
			out = append(out, snapshot(entry.state))
		}
	}
	return out
}

// GetStats snapshots the counters.
func (c *Coordinator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	for _, entry := range c.calls {
		if !entry.state.Status.Terminal() {
			out.ActiveCalls++
		}
	}
	return out
}

func (c *Coordinator) entry(callID string) (*callEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.calls[callID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	return entry, nil
}

func (c *Coordinator) terminal(callID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.calls[callID]
	return !ok || entry.state.Status.Terminal()
}

func (c *Coordinator) runStage(callID, name string, fn func()) {
	if c.cfg.Synchronous {
		fn()
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.recordError(callID, fmt.Errorf("stage %s panic: %v", name, r))
			}
		}()
		fn()
	}()
}

// persistState mirrors in-memory state to the store; a failure is logged
// and otherwise ignored.
func (c *Coordinator) persistState(st *types.CallProcessingState) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StageTimeout)
	defer cancel()
	if err := c.persist.UpsertCallState(ctx, st); err != nil {
		c.log.WithCall(st.CallID).WithError(err).Warn("state persist failed")
	}
}

func (c *Coordinator) appendComplianceLog(callID, userID, entry string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StageTimeout)
	defer cancel()
	if err := c.persist.AppendComplianceLog(ctx, callID, userID, entry); err != nil {
		c.log.WithCall(callID).WithError(err).Warn("compliance log persist failed")
	}
}

func snapshot(st *types.CallProcessingState) *types.CallProcessingState {
	cp := *st
	return &cp
}
