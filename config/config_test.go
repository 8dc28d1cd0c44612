package config

import (
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()
	if cfg.ResultStore != "memory" || cfg.ReferenceStore != "memory" {
		t.Errorf("default stores = %q/%q, want memory/memory", cfg.ResultStore, cfg.ReferenceStore)
	}
	if cfg.TargetFPS != 3 || cfg.SampleCap != 20 {
		t.Errorf("default fps/cap = %d/%d, want 3/20", cfg.TargetFPS, cfg.SampleCap)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESULT_STORE", "postgres")
	t.Setenv("TARGET_FPS", "5")
	t.Setenv("MIN_CONFIDENCE", "0.7")
	t.Setenv("ALLOW_GENERIC_RULES", "true")

	cfg := defaults()
	applyEnv(cfg)

	if cfg.ResultStore != "postgres" {
		t.Errorf("result store = %q, want postgres", cfg.ResultStore)
	}
	if cfg.TargetFPS != 5 {
		t.Errorf("target fps = %d, want 5", cfg.TargetFPS)
	}
	if cfg.MinConfidence != 0.7 {
		t.Errorf("min confidence = %v, want 0.7", cfg.MinConfidence)
	}
	if !cfg.AllowGenericRules {
		t.Error("generic rules not enabled")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := defaults()
	cfg.ResultStore = "sqlite"
	cfg.ReferenceStore = "redis"
	cfg.TargetFPS = 0
	cfg.MinConfidence = 1.5
	cfg.SampleCap = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config validated")
	}
	for _, want := range []string{"result store", "reference store", "fps", "confidence", "sample cap"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q: %v", want, err)
		}
	}
}

func TestValidateRequiresPostgresURL(t *testing.T) {
	cfg := defaults()
	cfg.ResultStore = "postgres"
	cfg.PostgresURL = "  "
	if err := cfg.Validate(); err == nil {
		t.Error("postgres store without URL validated")
	}
}

func TestHasValidAPI(t *testing.T) {
	cfg := defaults()
	if cfg.HasValidAPI() {
		t.Error("empty API key reported valid")
	}
	cfg.APIKey = "sk-test"
	if !cfg.HasValidAPI() {
		t.Error("configured API reported invalid")
	}
}
