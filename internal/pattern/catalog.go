// Package pattern holds the structured-identifier detectors: regex rules for
// emails, phone numbers, and similar identifiers that must be redacted even
// when no entity mapping covers them. The catalog is compiled once at startup
// and is immutable afterwards.
package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/textveil/textveil/internal/config"
)

// Scope controls whether placeholder numbering restarts per document or
// runs across a whole batch.
type Scope string

const (
	ScopeDocument Scope = "document"
	ScopeGlobal   Scope = "global"
)

// Rule is a single named detector. Recognizers are total over arbitrary
// input: no match is simply an empty result, never an error.
type Rule struct {
	Name        string
	Expr        string
	Pattern     *regexp.Regexp
	Placeholder string // template containing {n}
	Scope       Scope
}

// Render produces the numbered placeholder for the nth distinct match of
// this rule. Numbering starts at 1.
func (r *Rule) Render(n int) string {
	return strings.Replace(r.Placeholder, "{n}", fmt.Sprintf("%03d", n), 1)
}

// InvalidPatternError reports a rule whose recognizer fails to compile.
// Fatal at catalog load time.
type InvalidPatternError struct {
	Name string
	Expr string
	Err  error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern rule %q (%s): %v", e.Name, e.Expr, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

// Catalog is an ordered, read-only set of rules. Declaration order is
// significant: the matcher breaks same-length ties by it.
type Catalog struct {
	rules  []*Rule
	byName map[string]int
}

// Load builds a catalog from configuration: the built-in rules filtered by
// the enabled list ("all" enables everything), followed by custom rules in
// declaration order.
func Load(cfg config.PatternsConfig) (*Catalog, error) {
	enabled := make(map[string]bool, len(cfg.Enabled))
	all := false
	for _, name := range cfg.Enabled {
		if name == "all" {
			all = true
			continue
		}
		enabled[name] = true
	}

	c := &Catalog{byName: make(map[string]int)}

	for _, def := range builtinRules {
		if !all && !enabled[def.Name] {
			continue
		}
		if err := c.add(def.Name, def.Expr, def.Placeholder, ScopeDocument); err != nil {
			return nil, err
		}
	}

	for _, def := range cfg.Custom {
		scope := ScopeDocument
		if def.Scope == string(ScopeGlobal) {
			scope = ScopeGlobal
		}
		placeholder := def.Placeholder
		if placeholder == "" {
			placeholder = defaultPlaceholder(def.Name)
		}
		if err := c.add(def.Name, def.Expr, placeholder, scope); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Default returns a catalog with every built-in rule enabled.
func Default() *Catalog {
	c, err := Load(config.PatternsConfig{Enabled: []string{"all"}})
	if err != nil {
		// Built-in rules are compile-tested; this cannot happen.
		panic(err)
	}
	return c
}

func (c *Catalog) add(name, expr, placeholder string, scope Scope) error {
	if _, exists := c.byName[name]; exists {
		return fmt.Errorf("duplicate pattern rule: %s", name)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return &InvalidPatternError{Name: name, Expr: expr, Err: err}
	}
	c.byName[name] = len(c.rules)
	c.rules = append(c.rules, &Rule{
		Name:        name,
		Expr:        expr,
		Pattern:     re,
		Placeholder: placeholder,
		Scope:       scope,
	})
	return nil
}

// Rules returns the rules in declaration order. Callers must not mutate the
// returned slice.
func (c *Catalog) Rules() []*Rule {
	return c.rules
}

// Rule returns the named rule, if present.
func (c *Catalog) Rule(name string) (*Rule, bool) {
	idx, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return c.rules[idx], true
}

// Names returns the rule names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		names = append(names, r.Name)
	}
	return names
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

func defaultPlaceholder(name string) string {
	return "[" + strings.ToUpper(strings.ReplaceAll(name, " ", "_")) + "-REDACTED-{n}]"
}
