// Package detector implements the violation rules that make vigil a
// zero-tolerance controller: a page snapshot is evaluated against a
// declared allow/deny Spec and any deviation is reported as a
// Violation. Evaluation is a pure function of its inputs so the same
// snapshot and spec always produce the same violations.
package detector

import "fmt"

// Phase tells the detector how far the attempt has progressed.
// Required-element checks only make sense once the workflow claims to
// have reached its terminal state; mid-flight absence is expected.
type Phase string

const (
	// PhaseInFlight is used for observations taken while the workflow
	// is still executing actions.
	PhaseInFlight Phase = "in-flight"

	// PhaseTerminal is used for the single final observation taken
	// after the workflow reports completion.
	PhaseTerminal Phase = "terminal"
)

// Kind identifies which rule class a violation belongs to.
type Kind string

const (
	// KindForbiddenElement fires when a deny-listed selector is present.
	KindForbiddenElement Kind = "forbidden_element"

	// KindForbiddenText fires when a deny-listed text fragment appears
	// in the page's visible text.
	KindForbiddenText Kind = "forbidden_text"

	// KindMissingRequired fires when an allow-listed selector is absent
	// at terminal phase.
	KindMissingRequired Kind = "missing_required"

	// KindConsoleError fires when the page logged a console error or
	// warning during the attempt.
	KindConsoleError Kind = "console_error"

	// KindPageError fires when an uncaught exception reached the page.
	KindPageError Kind = "page_error"

	// KindCustom is the conventional kind for violations produced by
	// caller-supplied validators.
	KindCustom Kind = "custom"

	// KindActionFailure marks a workflow action that returned an error.
	// It is never produced by Evaluate; the guardian records it when a
	// workflow fails internally.
	KindActionFailure Kind = "action_failure"

	// KindDriverError marks a session-level failure (crash, capture
	// error). Also never produced by Evaluate.
	KindDriverError Kind = "driver_error"
)

// Violation is a single detected deviation from the Spec.
type Violation struct {
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject"`
	Detail  string `json:"detail,omitempty"`
}

// Error implements error so violations can travel through error paths
// when a single violation needs to be surfaced as a failure.
func (v Violation) Error() string {
	if v.Detail != "" {
		return fmt.Sprintf("violation (%s): %s: %s", v.Kind, v.Subject, v.Detail)
	}
	return fmt.Sprintf("violation (%s): %s", v.Kind, v.Subject)
}

// Evaluate checks a snapshot against the spec and returns every
// violation present, in detection priority order: forbidden elements
// first, then forbidden text, then console and page errors, then (at
// terminal phase only) missing required elements, then caller-supplied
// validators. The first entry is the matched rule for evidence
// purposes; the rest complete the trail.
//
// Evaluate has no side effects and no hidden state. Calling it twice
// with the same inputs returns the same result.
func Evaluate(snap *Snapshot, spec *Spec, phase Phase) []Violation {
	var out []Violation

	for _, sel := range spec.ForbiddenPresent {
		if snap.Present[sel] {
			out = append(out, Violation{
				Kind:    KindForbiddenElement,
				Subject: sel,
			})
		}
	}

	for _, m := range spec.textMatchers() {
		if m.matches(snap.Text) {
			out = append(out, Violation{
				Kind:    KindForbiddenText,
				Subject: m.fragment,
			})
		}
	}

	for _, msg := range snap.ConsoleErrors {
		out = append(out, Violation{
			Kind:    KindConsoleError,
			Subject: "console",
			Detail:  msg,
		})
	}

	for _, msg := range snap.PageErrors {
		out = append(out, Violation{
			Kind:    KindPageError,
			Subject: "page",
			Detail:  msg,
		})
	}

	if phase == PhaseTerminal {
		for _, sel := range spec.RequiredPresent {
			if !snap.Present[sel] {
				out = append(out, Violation{
					Kind:    KindMissingRequired,
					Subject: sel,
				})
			}
		}
	}

	for _, validate := range spec.Validators {
		out = append(out, validate(snap)...)
	}

	return out
}
