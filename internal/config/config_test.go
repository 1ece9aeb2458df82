package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}

	if cfg.Scheduler.Interval != 10*time.Minute {
		t.Fatalf("default interval should be 10m, got %s", cfg.Scheduler.Interval)
	}
	if len(cfg.Basin.Stations) != 3 {
		t.Fatalf("default basin should have 3 stations, got %d", len(cfg.Basin.Stations))
	}
	if cfg.Basin.PrimaryStation != "HatYai" || cfg.Basin.UpstreamStation != "Sadao" {
		t.Fatalf("unexpected default station roles: %s / %s", cfg.Basin.PrimaryStation, cfg.Basin.UpstreamStation)
	}
	if cfg.Risk.SigmoidK != 0.8 || cfg.Risk.SigmoidX0 != 9.5 {
		t.Fatalf("unexpected sigmoid defaults: k=%v x0=%v", cfg.Risk.SigmoidK, cfg.Risk.SigmoidX0)
	}
	if sum := cfg.Risk.WaterWeight + cfg.Risk.RainWeight; sum < 0.999 || sum > 1.001 {
		t.Fatalf("default weights should sum to 1, got %v", sum)
	}
	if cfg.QA.StaleAfter != 6*time.Hour {
		t.Fatalf("default stale window should be 6h, got %s", cfg.QA.StaleAfter)
	}
	if cfg.Predictor.ModelTTL != 30*time.Minute {
		t.Fatalf("default model ttl should be 30m, got %s", cfg.Predictor.ModelTTL)
	}
	if cfg.Alerting.Cooldown != 30*time.Minute {
		t.Fatalf("default alert cooldown should be 30m, got %s", cfg.Alerting.Cooldown)
	}
	if cfg.Database.Retention != 180*24*time.Hour {
		t.Fatalf("default retention should be 180 days, got %s", cfg.Database.Retention)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.Risk.WaterWeight = 0.3
	cfg.Risk.RainWeight = 0.3
	if err := cfg.Validate(); err == nil {
		t.Fatal("weights not summing to 1 should fail validation")
	}
}

func TestValidateRejectsUnknownPrimary(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.Basin.PrimaryStation = "Nowhere"
	if err := cfg.Validate(); err == nil {
		t.Fatal("primary station outside the station list should fail validation")
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.Risk.NormalMax = 80
	if err := cfg.Validate(); err == nil {
		t.Fatal("normal_max above warning_max should fail validation")
	}
}

func TestValidateRequiresLineToken(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.Alerting.Line.Enabled = true
	cfg.Alerting.Line.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled LINE channel without token should fail validation")
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := cfg.ResolveMaxPoints(0); got != cfg.Export.MaxDataPoints {
		t.Fatalf("zero override should fall back to config, got %d", got)
	}
	if got := cfg.ResolveMaxPoints(42); got != 42 {
		t.Fatalf("override should win, got %d", got)
	}
}
