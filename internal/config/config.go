// Package config collects every environment knob in one place. main calls
// godotenv.Load before FromEnv so a local .env behaves like real env vars.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     Server
	Inference  Inference
	Transcribe Transcribe
	Pipeline   Pipeline
	Store      Store
	Retention  Retention
	Industry   Industry
	Compliance Compliance
	Notify     Notify
}

type Server struct {
	Port string
}

type Inference struct {
	GatewayURL string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxElapsed time.Duration
}

type Transcribe struct {
	BaseURL   string
	CallType  string
	SizeLimit int64
}

type Pipeline struct {
	MaxCallDuration  time.Duration
	GraceDelay       time.Duration
	ErrorThreshold   int
	StageTimeout     time.Duration
	NotifyRetryDelay time.Duration
	BatchConcurrency int
}

type Store struct {
	Path string
}

type Retention struct {
	// SweepSchedule is a cron expression; the default runs hourly.
	SweepSchedule string
}

type Industry struct {
	// OverridesPath points at an optional YAML file of profile overrides.
	OverridesPath string
}

type Compliance struct {
	URL string
}

type Notify struct {
	URL string
}

func FromEnv() Config {
	return Config{
		Server: Server{
			Port: envOr("PORT", "8080"),
		},
		Inference: Inference{
			GatewayURL: envOr("INFERENCE_GATEWAY_URL", ""),
			APIKey:     os.Getenv("INFERENCE_API_KEY"),
			Model:      envOr("INFERENCE_MODEL", "gpt-4o-mini"),
			Timeout:    envDuration("INFERENCE_TIMEOUT", 25*time.Second),
			MaxElapsed: envDuration("INFERENCE_MAX_ELAPSED", 45*time.Second),
		},
		Transcribe: Transcribe{
			BaseURL:   envOr("TRANSCRIPTION_BASE_URL", ""),
			CallType:  envOr("TRANSCRIPTION_CALL_TYPE", "PNS"),
			SizeLimit: envInt64("TRANSCRIPTION_SIZE_LIMIT", 25<<20),
		},
		Pipeline: Pipeline{
			MaxCallDuration:  envDuration("MAX_CALL_DURATION", 30*time.Minute),
			GraceDelay:       envDuration("CLEANUP_GRACE_DELAY", 5*time.Minute),
			ErrorThreshold:   envInt("CALL_ERROR_THRESHOLD", 3),
			StageTimeout:     envDuration("STAGE_TIMEOUT", 60*time.Second),
			NotifyRetryDelay: envDuration("NOTIFY_RETRY_DELAY", 2*time.Second),
			BatchConcurrency: envInt("BATCH_CONCURRENCY", 3),
		},
		Store: Store{
			Path: envOr("STORE_PATH", "callintel.db"),
		},
		Retention: Retention{
			SweepSchedule: envOr("RETENTION_SWEEP_SCHEDULE", "@hourly"),
		},
		Industry: Industry{
			OverridesPath: os.Getenv("INDUSTRY_OVERRIDES_PATH"),
		},
		Compliance: Compliance{
			URL: os.Getenv("COMPLIANCE_URL"),
		},
		Notify: Notify{
			URL: os.Getenv("NOTIFY_URL"),
		},
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
