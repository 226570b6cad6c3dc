package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Engine.Threshold != 0.95 || cfg.Engine.HoldMS != 600 {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Classifier.Mode != "mock" {
		t.Fatalf("expected mock classifier default, got %q", cfg.Classifier.Mode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FSPELL_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("FSPELL_BUS_USERNAME", "alice")
	t.Setenv("FSPELL_BUS_PASSWORD", "secret")
	t.Setenv("FSPELL_ENGINE_THRESHOLD", "0.85")
	t.Setenv("FSPELL_ENGINE_HOLD_MS", "400")
	t.Setenv("FSPELL_CLASSIFIER_MODE", "exec")
	t.Setenv("FSPELL_CLASSIFIER_COMMAND", "./bin/classify --model hand.onnx")
	t.Setenv("FSPELL_TRANSCRIPT_PATH", "./tmp.db")
	t.Setenv("FSPELL_TRANSCRIPT_RETENTION_MODE", "persistent")
	t.Setenv("FSPELL_TRANSCRIPT_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Engine.Threshold != 0.85 {
		t.Fatalf("expected threshold override, got %v", cfg.Engine.Threshold)
	}
	if cfg.Engine.HoldMS != 400 {
		t.Fatalf("expected hold override, got %d", cfg.Engine.HoldMS)
	}
	if cfg.Classifier.Mode != "exec" || cfg.Classifier.Command == "" {
		t.Fatalf("expected classifier override, got %+v", cfg.Classifier)
	}
	if cfg.Transcript.Path != "./tmp.db" {
		t.Fatalf("expected transcript path override")
	}
	if cfg.Transcript.RetentionMode != "persistent" {
		t.Fatalf("expected transcript retention mode override")
	}
	if cfg.Transcript.RetentionDays != 7 {
		t.Fatalf("expected transcript retention days override")
	}
}

func TestLoadClampsEngineTuning(t *testing.T) {
	t.Setenv("FSPELL_ENGINE_THRESHOLD", "0.5")
	t.Setenv("FSPELL_ENGINE_HOLD_MS", "5000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Threshold != 0.70 {
		t.Fatalf("expected threshold clamped to 0.70, got %v", cfg.Engine.Threshold)
	}
	if cfg.Engine.HoldMS != 1200 {
		t.Fatalf("expected hold clamped to 1200, got %d", cfg.Engine.HoldMS)
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("FSPELL_CLASSIFIER_MODE", "exec")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}
