package config

import (
	"strings"
	"testing"
)

func baseConfig() *Config {
	cfg := &Config{}
	cfg.State.Path = "alert_state.json"
	cfg.Scheduler.Interval = 300000000000
	cfg.Export.MaxDataPoints = 100
	return cfg
}

func TestEnabledDefaultsTrue(t *testing.T) {
	cfg := baseConfig()
	cfg.Alerts = []AlertConfig{
		{Days: 7, Type: "colocador", Condition: ">=", TargetRate: 35.5},
	}

	rules, err := cfg.Rules()
	if err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}
	if !rules[0].Enabled {
		t.Fatal("missing enabled field should default to true")
	}
}

func TestExplicitlyDisabledRule(t *testing.T) {
	disabled := false
	cfg := baseConfig()
	cfg.Alerts = []AlertConfig{
		{Days: 1, Type: "tomador", Condition: "<", TargetRate: 20, Enabled: &disabled},
	}

	rules, err := cfg.Rules()
	if err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}
	if rules[0].Enabled {
		t.Fatal("enabled=false must be preserved")
	}
}

func TestMalformedRuleRejectedWithIdentity(t *testing.T) {
	cases := []struct {
		name  string
		entry AlertConfig
	}{
		{"zero days", AlertConfig{Days: 0, Type: "colocador", Condition: ">=", TargetRate: 30}},
		{"bad type", AlertConfig{Days: 1, Type: "prestamista", Condition: ">=", TargetRate: 30}},
		{"bad condition", AlertConfig{Days: 1, Type: "colocador", Condition: "!=", TargetRate: 30}},
	}

	for _, tc := range cases {
		cfg := baseConfig()
		cfg.Alerts = []AlertConfig{tc.entry}
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		} else if !strings.Contains(err.Error(), "alerts[0]") {
			t.Errorf("%s: error should name the offending rule, got %v", tc.name, err)
		}
	}
}

func TestDuplicateRuleIDsRejected(t *testing.T) {
	cfg := baseConfig()
	cfg.Alerts = []AlertConfig{
		{Days: 7, Type: "colocador", Condition: ">=", TargetRate: 35.5},
		{Days: 7, Type: "colocador", Condition: ">=", TargetRate: 35.5},
	}

	_, err := cfg.Rules()
	if err == nil {
		t.Fatal("two entries with the same derived id must be rejected")
	}
	if !strings.Contains(err.Error(), "alerts[1]") || !strings.Contains(err.Error(), "alerts[0]") {
		t.Fatalf("error should name both colliding entries, got %v", err)
	}
}

func TestDistinctSymbolsAvoidCollision(t *testing.T) {
	cfg := baseConfig()
	cfg.Alerts = []AlertConfig{
		{Symbol: "morning", Days: 7, Type: "colocador", Condition: ">=", TargetRate: 35.5},
		{Symbol: "evening", Days: 7, Type: "colocador", Condition: ">=", TargetRate: 35.5},
	}

	if _, err := cfg.Rules(); err != nil {
		t.Fatalf("distinct symbols must keep otherwise identical rules apart: %v", err)
	}
}
