package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"callintel-go/internal/analyzer"
	"callintel-go/internal/batch"
	"callintel-go/internal/compliance"
	"callintel-go/internal/config"
	"callintel-go/internal/coordinator"
	"callintel-go/internal/dataset"
	"callintel-go/internal/extractor"
	"callintel-go/internal/industry"
	"callintel-go/internal/inference"
	"callintel-go/internal/logger"
	"callintel-go/internal/notify"
	"callintel-go/internal/retention"
	"callintel-go/internal/store"
	"callintel-go/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfg := config.FromEnv()
	log := logger.New()
	log.WithField("service", "callintel-go").Info("starting service")

	if cfg.Industry.OverridesPath != "" {
		if err := industry.LoadOverrides(cfg.Industry.OverridesPath); err != nil {
			log.WithError(err).Fatal("industry overrides failed to load")
		}
		log.WithField("path", cfg.Industry.OverridesPath).Info("industry overrides loaded")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.WithError(err).Fatal("store open failed")
	}
	defer st.Close()

	var provider inference.Provider
	if cfg.Inference.GatewayURL == "" || os.Getenv("USE_MOCK_LLM") == "1" {
		log.Warn("no inference gateway configured, using mock provider")
		provider = &inference.Mock{}
	} else {
		provider = inference.NewClient(inference.Config{
			GatewayURL: cfg.Inference.GatewayURL,
			APIKey:     cfg.Inference.APIKey,
			Model:      cfg.Inference.Model,
			Timeout:    cfg.Inference.Timeout,
			MaxElapsed: cfg.Inference.MaxElapsed,
		})
	}

	var stt transcription.Provider
	if cfg.Transcribe.BaseURL == "" || os.Getenv("USE_MOCK_TRANSCRIBE") == "1" {
		log.Warn("no transcription gateway configured, using mock provider")
		stt = &transcription.Mock{}
	} else {
		stt = transcription.NewClient(transcription.Config{
			BaseURL:   cfg.Transcribe.BaseURL,
			CallType:  cfg.Transcribe.CallType,
			SizeLimit: cfg.Transcribe.SizeLimit,
		})
	}

	engine := extractor.NewEngine(provider)
	multi := analyzer.New()
	gate := compliance.NewClient(cfg.Compliance.URL, cfg.Pipeline.StageTimeout)
	dispatcher := notify.NewClient(cfg.Notify.URL, cfg.Pipeline.StageTimeout)

	sched := retention.New(st)
	if err := sched.Start(cfg.Retention.SweepSchedule); err != nil {
		log.WithError(err).Fatal("retention sweep schedule invalid")
	}
	defer sched.Stop()

	coord := coordinator.New(coordinator.Config{
		MaxCallDuration:  cfg.Pipeline.MaxCallDuration,
		GraceDelay:       cfg.Pipeline.GraceDelay,
		ErrorThreshold:   cfg.Pipeline.ErrorThreshold,
		StageTimeout:     cfg.Pipeline.StageTimeout,
		NotifyRetryDelay: cfg.Pipeline.NotifyRetryDelay,
	}, st, gate, stt, engine, multi, dispatcher, sched)

	runner := batch.NewRunner(batch.Config{
		Concurrency: cfg.Pipeline.BatchConcurrency,
		CallTimeout: cfg.Pipeline.MaxCallDuration,
	}, coord)

	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Info("health check")
		fmt.Fprint(w, "ok")
	})

	// synchronous single-transcript pipeline: extraction plus analysis,
	// bypassing the lifecycle
	mux.HandleFunc("/process", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "process")
		reqLog.Info("process request received")

		var req struct {
			Transcript              string  `json:"transcript"`
			AudioURL                string  `json:"audio_url"`
			Industry                string  `json:"industry"`
			TranscriptionConfidence float64 `json:"transcription_confidence"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if req.Transcript == "" && req.AudioURL == "" {
			reqLog.Warn("missing transcript and audio_url")
			http.Error(w, "transcript or audio_url required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.Pipeline.StageTimeout)
		defer cancel()

		start := time.Now()
		transcript := req.Transcript
		if transcript == "" {
			text, terr := stt.Transcribe(ctx, req.AudioURL)
			if terr != nil {
				reqLog.WithError(terr).Warn("transcription failed")
				http.Error(w, "transcription failed", http.StatusBadGateway)
				return
			}
			transcript = text
		}

		res, err := engine.Extract(ctx, transcript, req.Industry, &extractor.Options{
			TranscriptionConfidence: req.TranscriptionConfidence,
		})
		reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).Info("extraction finished")
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			reqLog.WithError(err).Warn("extraction returned error")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		analysis := multi.Analyze(res.Events, transcript, req.Industry)
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{
			"extraction": res,
			"analysis":   analysis,
		}); err != nil {
			reqLog.WithError(err).Error("failed to write response")
		}
	})

	// call lifecycle webhooks
	mux.HandleFunc("/calls/initialize", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "initialize")
		var info coordinator.CallInfo
		if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		st, err := coord.InitializeCall(info)
		if err != nil {
			reqLog.WithError(err).Warn("initialize rejected")
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, st)
	})
	mux.HandleFunc("/calls/activate", func(w http.ResponseWriter, r *http.Request) {
		lifecycleEvent(w, r, coord.HandleActivation)
	})
	mux.HandleFunc("/calls/end", func(w http.ResponseWriter, r *http.Request) {
		lifecycleEvent(w, r, coord.HandleCallEnd)
	})

	mux.HandleFunc("/calls/state", func(w http.ResponseWriter, r *http.Request) {
		callID := r.URL.Query().Get("call_id")
		if callID == "" {
			writeJSON(w, coord.GetActiveCalls())
			return
		}
		st, err := coord.GetState(callID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, st)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, coord.GetStats())
	})

	// batch replay from an xlsx manifest
	mux.HandleFunc("/batch", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "batch")
		path := r.URL.Query().Get("manifest")
		if path == "" {
			http.Error(w, "missing manifest", http.StatusBadRequest)
			return
		}
		records, err := dataset.Load(path)
		if err != nil {
			reqLog.WithError(err).Error("manifest load error")
			http.Error(w, "manifest load error", http.StatusBadRequest)
			return
		}
		summary := dataset.Summarize(records)
		reqLog.WithField("total_calls", summary.TotalCalls).Info("batch manifest loaded")
		report := runner.Run(r.Context(), records)
		writeJSON(w, map[string]any{
			"manifest": summary,
			"report":   report,
		})
	})

	// account erasure: immediate hard delete across every category
	mux.HandleFunc("/accounts/erase", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "erase")
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "missing user_id", http.StatusBadRequest)
			return
		}
		if err := sched.EraseAccount(r.Context(), userID); err != nil {
			reqLog.WithError(err).Error("erasure failed")
			http.Error(w, "erasure failed", http.StatusInternalServerError)
			return
		}
		reqLog.WithField("user_id", userID).Info("account erased")
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func lifecycleEvent(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		http.Error(w, "missing call_id", http.StatusBadRequest)
		return
	}
	if err := fn(callID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	fmt.Fprint(w, "ok")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
