package guardian

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactWriter persists the run outcome for auditing: a JSON report
// for machines and a markdown summary for humans, next to whatever
// screenshots the run captured.
type ArtifactWriter struct {
	outputDir string
	json      bool
	markdown  bool
}

// NewArtifactWriter creates a writer from the artifact configuration.
func NewArtifactWriter(cfg ArtifactConfig) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: cfg.OutputDir,
		json:      cfg.JSON,
		markdown:  cfg.Markdown,
	}
}

// Write emits every configured format for the outcome.
func (w *ArtifactWriter) Write(o *Outcome) error {
	if err := os.MkdirAll(w.outputDir, 0750); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	if w.json {
		if err := w.writeJSON(o); err != nil {
			return err
		}
	}
	if w.markdown {
		if err := w.writeMarkdown(o); err != nil {
			return err
		}
	}
	return nil
}

func (w *ArtifactWriter) writeJSON(o *Outcome) error {
	path := filepath.Join(w.outputDir, "outcome.json")

	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write outcome JSON: %w", err)
	}
	return nil
}

func (w *ArtifactWriter) writeMarkdown(o *Outcome) error {
	path := filepath.Join(w.outputDir, "summary.md")

	var md strings.Builder
	md.WriteString("# Vigil Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Workflow:** %s\n\n", o.Workflow))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", o.Status))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", o.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", o.Duration))

	md.WriteString("## Result\n\n")
	switch o.Status {
	case StatusSuccess:
		md.WriteString(fmt.Sprintf("Succeeded on attempt %d", o.Attempt))
		if o.Result != nil {
			md.WriteString(fmt.Sprintf(" after %d actions", o.Result.ActionsRun))
			if o.Result.FinalURL != "" {
				md.WriteString(fmt.Sprintf(" (final URL: %s)", o.Result.FinalURL))
			}
		}
		md.WriteString("\n\n")
	case StatusExhausted:
		md.WriteString(fmt.Sprintf("Exhausted after %d attempts\n\n", o.Stats.Attempts))
	case StatusAborted:
		md.WriteString(fmt.Sprintf("Aborted: %s\n\n", o.Cause))
	}

	if len(o.Evidence) > 0 {
		md.WriteString("## Evidence\n\n")
		for _, ev := range o.Evidence {
			md.WriteString(fmt.Sprintf("- attempt %d: `%s` %s", ev.Attempt, ev.MatchedRule.Kind, ev.MatchedRule.Subject))
			if ev.MatchedRule.Detail != "" {
				md.WriteString(fmt.Sprintf(": %s", ev.MatchedRule.Detail))
			}
			if ev.SnapshotRef != "" {
				md.WriteString(fmt.Sprintf(" ([screenshot](%s))", ev.SnapshotRef))
			}
			md.WriteString("\n")
		}
		md.WriteString("\n")
	}

	md.WriteString("## Stats\n\n")
	md.WriteString(fmt.Sprintf("- **Attempts:** %d\n", o.Stats.Attempts))
	md.WriteString(fmt.Sprintf("- **Violations detected:** %d\n", o.Stats.ViolationsDetected))
	md.WriteString(fmt.Sprintf("- **Restarts:** %d\n", o.Stats.Restarts))
	md.WriteString(fmt.Sprintf("- **Total backoff:** %s\n", o.Stats.TotalBackoff))

	if err := os.WriteFile(path, []byte(md.String()), 0600); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}
	return nil
}
