package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Store.Path != "taskrelay.db" {
		t.Fatalf("expected default store path, got %q", cfg.Store.Path)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("expected 5 max attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialBackoff != time.Second {
		t.Fatalf("expected 1s initial backoff, got %s", cfg.Retry.InitialBackoff)
	}
	if cfg.Retry.BackoffMultiplier != 2.0 {
		t.Fatalf("expected 2.0 multiplier, got %v", cfg.Retry.BackoffMultiplier)
	}
	if cfg.Activity.WaitDuration != 60*time.Second {
		t.Fatalf("expected 60s wait, got %s", cfg.Activity.WaitDuration)
	}
	if cfg.Activity.Timeout != 5*time.Minute {
		t.Fatalf("expected 5m timeout, got %s", cfg.Activity.Timeout)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Channel.Endpoint == "" {
		t.Fatalf("expected default channel endpoint")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("TASKRELAY_SERVER_ADDR", ":9090")
	t.Setenv("TASKRELAY_RETRY_MAX_ATTEMPTS", "2")
	t.Setenv("TASKRELAY_ACTIVITY_WAIT_DURATION", "5s")
	t.Setenv("TASKRELAY_CHANNEL_ACCESS_TOKEN", "tok")
	t.Setenv("TASKRELAY_WORKER_CONCURRENCY", "8")
	t.Setenv("TASKRELAY_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.Server.Addr)
	}
	if cfg.Retry.MaxAttempts != 2 {
		t.Fatalf("expected 2 max attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Activity.WaitDuration != 5*time.Second {
		t.Fatalf("expected 5s wait, got %s", cfg.Activity.WaitDuration)
	}
	if cfg.Channel.AccessToken != "tok" {
		t.Fatalf("expected access token, got %q", cfg.Channel.AccessToken)
	}
	if cfg.Worker.Concurrency != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"TASKRELAY_RETRY_MAX_ATTEMPTS":     "0",
		"TASKRELAY_ACTIVITY_WAIT_DURATION": "0s",
		"TASKRELAY_WORKER_CONCURRENCY":     "0",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, value)
			}
		})
	}
}
