package detector

import "time"

// Snapshot is a point-in-time, read-only view of a driven session: the
// presence of every selector the spec cares about plus the page's
// visible text. Drivers build snapshots; the detector only reads them.
type Snapshot struct {
	// Present maps each selector from Spec.Selectors to whether at
	// least one matching element existed at capture time.
	Present map[string]bool `json:"present"`

	// Text is the page's visible text (scripts and styles stripped).
	Text string `json:"text"`

	// ConsoleErrors holds console error and warning messages the page
	// logged up to capture time.
	ConsoleErrors []string `json:"console_errors,omitempty"`

	// PageErrors holds uncaught page exceptions up to capture time.
	PageErrors []string `json:"page_errors,omitempty"`

	// Ref is an opaque artifact handle (screenshot path) associated
	// with this capture, empty when no artifact was taken.
	Ref string `json:"ref,omitempty"`

	// TakenAt records when the capture happened.
	TakenAt time.Time `json:"taken_at"`
}
