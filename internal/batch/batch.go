// Package batch replays a manifest of recorded calls through the full call
// lifecycle with bounded concurrency.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callintel-go/internal/coordinator"
	"callintel-go/internal/dataset"
	"callintel-go/internal/logger"
	"callintel-go/internal/types"
)

// Lifecycle is the slice of the coordinator the runner drives.
type Lifecycle interface {
	InitializeCall(info coordinator.CallInfo) (*types.CallProcessingState, error)
	HandleActivation(callID string) error
	HandleCallEnd(callID string) error
	GetState(callID string) (*types.CallProcessingState, error)
}

// Result is the outcome for one manifest row.
type Result struct {
	CallID          string           `json:"call_id"`
	Status          types.CallStatus `json:"status"`
	EventsExtracted int              `json:"events_extracted"`
	DurationMs      int64            `json:"duration_ms"`
	Error           string           `json:"error,omitempty"`
}

// Report aggregates one run.
type Report struct {
	Total     int      `json:"total"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

type Config struct {
	// Concurrency caps in-flight calls; transcription and inference both
	// rate-limit upstream, so the default stays small.
	Concurrency int
	// CallTimeout bounds how long one record may take end to end.
	CallTimeout time.Duration
	// PollInterval is how often the runner checks for a terminal state.
	PollInterval time.Duration
}

type Runner struct {
	cfg   Config
	calls Lifecycle
	log   *logger.Logger
}

func NewRunner(cfg Config, calls Lifecycle) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 2 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	log := logger.New()
	log.Entry = log.WithComponent("batch-runner")
	return &Runner{cfg: cfg, calls: calls, log: log}
}

// Run processes every record and blocks until all have reached a terminal
// state, timed out, or ctx is cancelled. Results keep manifest order.
func (r *Runner) Run(ctx context.Context, records []dataset.Record) Report {
	sem := make(chan struct{}, r.cfg.Concurrency)
	results := make([]Result, len(records))
	var wg sync.WaitGroup

	r.log.WithField("total", len(records)).WithField("concurrency", r.cfg.Concurrency).Info("batch run starting")
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			results[i] = Result{CallID: rec.CallID, Error: err.Error()}
			continue
		}
		select {
		case <-ctx.Done():
			results[i] = Result{CallID: rec.CallID, Error: ctx.Err().Error()}
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, rec dataset.Record) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.runOne(ctx, rec)
		}(i, rec)
	}
	wg.Wait()

	report := Report{Total: len(records), Results: results}
	for _, res := range results {
		switch res.Status {
		case types.StatusCompleted:
			report.Completed++
		default:
			report.Failed++
		}
	}
	r.log.WithField("completed", report.Completed).WithField("failed", report.Failed).Info("batch run finished")
	return report
}

func (r *Runner) runOne(ctx context.Context, rec dataset.Record) Result {
	start := time.Now()
	res := Result{CallID: rec.CallID}
	fail := func(err error) Result {
		res.Error = err.Error()
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	if _, err := r.calls.InitializeCall(coordinator.CallInfo{
		CallID:      rec.CallID,
		UserID:      rec.UserID,
		CallerPhone: rec.CallerPhone,
		Industry:    rec.Industry,
		AudioURL:    rec.AudioURL,
		Transcript:  rec.Transcript,
	}); err != nil {
		return fail(fmt.Errorf("initialize: %w", err))
	}
	if err := r.calls.HandleActivation(rec.CallID); err != nil {
		return fail(fmt.Errorf("activation: %w", err))
	}
	if err := r.calls.HandleCallEnd(rec.CallID); err != nil {
		return fail(fmt.Errorf("call end: %w", err))
	}

	deadline := time.NewTimer(r.cfg.CallTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(r.cfg.PollInterval)
	defer tick.Stop()
	for {
		st, err := r.calls.GetState(rec.CallID)
		if err != nil {
			return fail(fmt.Errorf("state lost: %w", err))
		}
		if st.Status.Terminal() {
			res.Status = st.Status
			res.EventsExtracted = st.EventsExtracted
			if st.LastError != "" {
				res.Error = st.LastError
			}
			res.DurationMs = time.Since(start).Milliseconds()
			return res
		}
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-deadline.C:
			return fail(fmt.Errorf("no terminal state within %s", r.cfg.CallTimeout))
		case <-tick.C:
		}
	}
}
