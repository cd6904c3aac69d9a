package pattern

import (
	"errors"
	"testing"

	"github.com/textveil/textveil/internal/config"
)

func TestCatalogLoad(t *testing.T) {
	t.Run("All", func(t *testing.T) {
		c, err := Load(config.PatternsConfig{Enabled: []string{"all"}})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if c.Len() != len(builtinRules) {
			t.Errorf("Len = %d, want %d", c.Len(), len(builtinRules))
		}
		if c.Names()[0] != "email" {
			t.Errorf("first rule = %q, declaration order must hold", c.Names()[0])
		}
	})

	t.Run("Subset", func(t *testing.T) {
		c, err := Load(config.PatternsConfig{Enabled: []string{"ssn", "email"}})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		names := c.Names()
		if len(names) != 2 || names[0] != "email" || names[1] != "ssn" {
			t.Errorf("Names = %v, want [email ssn] in builtin order", names)
		}
		if _, ok := c.Rule("phone"); ok {
			t.Error("disabled rule should be absent")
		}
	})

	t.Run("CustomRule", func(t *testing.T) {
		c, err := Load(config.PatternsConfig{
			Enabled: []string{"email"},
			Custom: []config.PatternRule{
				{Name: "employee_id", Expr: `\bEMP-\d{6}\b`, Scope: "global"},
			},
		})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		rule, ok := c.Rule("employee_id")
		if !ok {
			t.Fatal("custom rule missing")
		}
		if rule.Scope != ScopeGlobal {
			t.Errorf("Scope = %s, want global", rule.Scope)
		}
		if got := rule.Render(7); got != "[EMPLOYEE_ID-REDACTED-007]" {
			t.Errorf("default placeholder rendered %q", got)
		}
	})

	t.Run("InvalidExpr", func(t *testing.T) {
		_, err := Load(config.PatternsConfig{
			Custom: []config.PatternRule{{Name: "broken", Expr: `(`}},
		})
		var invalid *InvalidPatternError
		if !errors.As(err, &invalid) {
			t.Fatalf("want InvalidPatternError, got %v", err)
		}
		if invalid.Name != "broken" {
			t.Errorf("Name = %q, want %q", invalid.Name, "broken")
		}
		if invalid.Unwrap() == nil {
			t.Error("InvalidPatternError should wrap the compile error")
		}
	})

	t.Run("DuplicateName", func(t *testing.T) {
		_, err := Load(config.PatternsConfig{
			Enabled: []string{"email"},
			Custom:  []config.PatternRule{{Name: "email", Expr: `x`}},
		})
		if err == nil {
			t.Fatal("duplicate rule name should fail")
		}
	})
}

func TestRuleRender(t *testing.T) {
	c := Default()
	rule, _ := c.Rule("email")

	if got := rule.Render(1); got != "[EMAIL-REDACTED-001]" {
		t.Errorf("Render(1) = %q", got)
	}
	if got := rule.Render(42); got != "[EMAIL-REDACTED-042]" {
		t.Errorf("Render(42) = %q", got)
	}
}

// Recognizers are total: arbitrary input yields matches or nothing, never
// a failure.
func TestBuiltinRecognizers(t *testing.T) {
	c := Default()

	cases := []struct {
		rule  string
		text  string
		match bool
	}{
		{"email", "reach me at jane.doe+test@example.co.uk today", true},
		{"email", "no at-sign here", false},
		{"phone", "call (555) 123-4567 now", true},
		{"phone", "+1 555.123.4567", true},
		{"ssn", "ssn: 123-45-6789", true},
		{"credit_card", "card 4111 1111 1111 1111", true},
		{"ip_address", "host 192.168.0.12 is up", true},
		{"date", "met on 12/31/2024", true},
		{"date", "version 1.2 released", false},
	}

	for _, tc := range cases {
		rule, ok := c.Rule(tc.rule)
		if !ok {
			t.Fatalf("missing rule %s", tc.rule)
		}
		got := rule.Pattern.MatchString(tc.text)
		if got != tc.match {
			t.Errorf("%s.MatchString(%q) = %v, want %v", tc.rule, tc.text, got, tc.match)
		}
	}
}
