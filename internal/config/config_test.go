package config

import "testing"

func TestDefaultsAreValid(t *testing.T) {
	if err := validateConfig(GetDefaults()); err != nil {
		t.Errorf("default configuration rejected: %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"BadPort", func(c *Config) { c.Server.Port = 0 }},
		{"PortTooHigh", func(c *Config) { c.Server.Port = 70000 }},
		{"BadTechnique", func(c *Config) { c.Redaction.Technique = "caesar" }},
		{"ZeroWorkers", func(c *Config) { c.Redaction.Workers = 0 }},
		{"CustomRuleMissingExpr", func(c *Config) {
			c.Patterns.Custom = []PatternRule{{Name: "ticket"}}
		}},
		{"CustomRuleBadScope", func(c *Config) {
			c.Patterns.Custom = []PatternRule{{Name: "ticket", Expr: `TKT-\d+`, Scope: "galactic"}}
		}},
		{"BadMinPartialLength", func(c *Config) { c.Verification.MinPartialLength = 0 }},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := GetDefaults()
			tc.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateCustomRuleScopes(t *testing.T) {
	for _, scope := range []string{"", "document", "global"} {
		cfg := GetDefaults()
		cfg.Patterns.Custom = []PatternRule{{Name: "ticket", Expr: `TKT-\d+`, Scope: scope}}
		if err := validateConfig(cfg); err != nil {
			t.Errorf("scope %q rejected: %v", scope, err)
		}
	}
}
