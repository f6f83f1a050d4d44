package detector

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Spec declares the allow/deny lists a run is evaluated against. It is
// built once per run and never mutated afterwards; concurrent readers
// are safe once Validate has been called.
type Spec struct {
	// RequiredPresent lists selectors that must exist for a terminal
	// observation to be clean. Order is irrelevant for matching but
	// preserved for deterministic reporting.
	RequiredPresent []string `yaml:"required_present" json:"required_present,omitempty"`

	// ForbiddenPresent lists selectors that must never exist.
	ForbiddenPresent []string `yaml:"forbidden_present" json:"forbidden_present,omitempty"`

	// ForbiddenText lists text fragments that must not appear in the
	// page's visible text. A fragment containing glob metacharacters
	// (*, ?, [, {) is compiled as a glob pattern matched against the
	// whole text; anything else is a case-insensitive substring match.
	ForbiddenText []string `yaml:"forbidden_text" json:"forbidden_text,omitempty"`

	// Validators are caller-supplied rules evaluated after the built-in
	// checks on every snapshot. Code-only; not loadable from config.
	Validators []Validator `yaml:"-" json:"-"`

	compiled []textMatcher
}

// Validator is a custom rule over a snapshot. Implementations should
// use KindCustom unless a built-in kind genuinely applies, and must be
// pure: same snapshot, same violations.
type Validator func(*Snapshot) []Violation

// AddValidator registers a custom rule on the spec.
func (s *Spec) AddValidator(v Validator) {
	s.Validators = append(s.Validators, v)
}

type textMatcher struct {
	fragment string
	pattern  glob.Glob // nil for plain substring fragments
}

func (m textMatcher) matches(text string) bool {
	lower := strings.ToLower(text)
	if m.pattern != nil {
		return m.pattern.Match(lower)
	}
	return strings.Contains(lower, strings.ToLower(m.fragment))
}

func isGlobFragment(fragment string) bool {
	return strings.ContainsAny(fragment, "*?[{")
}

// Validate checks the spec for configuration errors and compiles the
// forbidden-text matchers. A selector appearing in both RequiredPresent
// and ForbiddenPresent is a configuration error, not a runtime
// violation: the run must refuse to start.
func (s *Spec) Validate() error {
	forbidden := make(map[string]struct{}, len(s.ForbiddenPresent))
	for _, sel := range s.ForbiddenPresent {
		forbidden[sel] = struct{}{}
	}
	for _, sel := range s.RequiredPresent {
		if _, ok := forbidden[sel]; ok {
			return fmt.Errorf("selector %q is both required and forbidden", sel)
		}
	}

	compiled := make([]textMatcher, 0, len(s.ForbiddenText))
	for _, fragment := range s.ForbiddenText {
		if fragment == "" {
			return fmt.Errorf("forbidden_text entries must not be empty")
		}
		m := textMatcher{fragment: fragment}
		if isGlobFragment(fragment) {
			p, err := glob.Compile(strings.ToLower(fragment))
			if err != nil {
				return fmt.Errorf("invalid forbidden_text pattern %q: %w", fragment, err)
			}
			m.pattern = p
		}
		compiled = append(compiled, m)
	}
	s.compiled = compiled

	return nil
}

// textMatchers returns the compiled forbidden-text matchers, building
// them on first use when Validate was skipped (invalid glob fragments
// fall back to substring matching in that case; Validate rejects them
// up front).
func (s *Spec) textMatchers() []textMatcher {
	if s.compiled != nil || len(s.ForbiddenText) == 0 {
		return s.compiled
	}
	matchers := make([]textMatcher, 0, len(s.ForbiddenText))
	for _, fragment := range s.ForbiddenText {
		m := textMatcher{fragment: fragment}
		if isGlobFragment(fragment) {
			if p, err := glob.Compile(strings.ToLower(fragment)); err == nil {
				m.pattern = p
			}
		}
		matchers = append(matchers, m)
	}
	return matchers
}

// Selectors returns the union of forbidden and required selectors in a
// deterministic order. Drivers use it to decide which elements a
// snapshot must enumerate.
func (s *Spec) Selectors() []string {
	seen := make(map[string]struct{}, len(s.ForbiddenPresent)+len(s.RequiredPresent))
	out := make([]string, 0, len(s.ForbiddenPresent)+len(s.RequiredPresent))
	for _, sel := range s.ForbiddenPresent {
		if _, ok := seen[sel]; !ok {
			seen[sel] = struct{}{}
			out = append(out, sel)
		}
	}
	for _, sel := range s.RequiredPresent {
		if _, ok := seen[sel]; !ok {
			seen[sel] = struct{}{}
			out = append(out, sel)
		}
	}
	return out
}

// DefaultSpec returns the built-in deny list: selectors and text
// fragments that almost always indicate a broken page. Callers extend
// it with run-specific rules or replace it entirely.
func DefaultSpec() *Spec {
	return &Spec{
		ForbiddenPresent: []string{
			".error",
			".alert-danger",
			".error-message",
			"[role='alert']",
			".notification.error",
			".toast.error",
			"#error",
			".exception",
			".stack-trace",
		},
		ForbiddenText: []string{
			"404 Not Found",
			"500 Internal Server Error",
			"Access Denied",
			"Unauthorized",
			"Forbidden",
			"Something went wrong",
			"An error occurred",
			"Stack trace",
			"Failed to load",
			"Connection timeout",
			"Service unavailable",
		},
	}
}
