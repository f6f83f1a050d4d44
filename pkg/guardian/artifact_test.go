package guardian

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/vigil/pkg/detector"
	"github.com/entrhq/vigil/pkg/workflow"
)

func sampleOutcome() *Outcome {
	start := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	return &Outcome{
		Status:   StatusExhausted,
		Workflow: "checkout",
		Evidence: []Evidence{
			{
				Attempt: 1,
				MatchedRule: detector.Violation{
					Kind:    detector.KindForbiddenElement,
					Subject: ".error",
				},
				SnapshotRef: "artifacts/shot-1.png",
				OccurredAt:  start.Add(2 * time.Second),
			},
			{
				Attempt: 2,
				MatchedRule: detector.Violation{
					Kind:    detector.KindForbiddenText,
					Subject: "Access Denied",
					Detail:  "matched in page text",
				},
				OccurredAt: start.Add(10 * time.Second),
			},
		},
		AttemptLog: []AttemptRecord{
			{Index: 1, Verdict: "forbidden_element"},
			{Index: 2, Verdict: "forbidden_text"},
		},
		StartTime: start,
		EndTime:   start.Add(15 * time.Second),
		Duration:  15 * time.Second,
		Stats: Stats{
			Attempts:           2,
			ViolationsDetected: 2,
			Restarts:           1,
			TotalBackoff:       3 * time.Second,
		},
	}
}

func TestArtifactWriter_WritesJSON(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(ArtifactConfig{OutputDir: dir, JSON: true})

	require.NoError(t, w.Write(sampleOutcome()))

	data, err := os.ReadFile(filepath.Join(dir, "outcome.json"))
	require.NoError(t, err)

	var decoded Outcome
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, StatusExhausted, decoded.Status)
	assert.Equal(t, "checkout", decoded.Workflow)
	require.Len(t, decoded.Evidence, 2)
	assert.Equal(t, detector.KindForbiddenElement, decoded.Evidence[0].MatchedRule.Kind)
	assert.Equal(t, "artifacts/shot-1.png", decoded.Evidence[0].SnapshotRef)
	require.Len(t, decoded.AttemptLog, 2)
}

func TestArtifactWriter_WritesMarkdown(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(ArtifactConfig{OutputDir: dir, Markdown: true})

	require.NoError(t, w.Write(sampleOutcome()))

	data, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	md := string(data)

	assert.Contains(t, md, "# Vigil Run Summary")
	assert.Contains(t, md, "**Workflow:** checkout")
	assert.Contains(t, md, "**Status:** exhausted")
	assert.Contains(t, md, "Exhausted after 2 attempts")
	assert.Contains(t, md, "forbidden_element")
	assert.Contains(t, md, "artifacts/shot-1.png")
	assert.Contains(t, md, "**Attempts:** 2")

	// JSON was not requested.
	_, err = os.Stat(filepath.Join(dir, "outcome.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestArtifactWriter_SuccessSummary(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(ArtifactConfig{OutputDir: dir, Markdown: true})

	o := &Outcome{
		Status:   StatusSuccess,
		Workflow: "checkout",
		Attempt:  2,
		Result: &workflow.Result{
			Name:       "checkout",
			ActionsRun: 4,
			FinalURL:   "https://shop.example.com/receipt",
		},
		StartTime: time.Now(),
		Stats:     Stats{Attempts: 2},
	}
	require.NoError(t, w.Write(o))

	data, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	md := string(data)

	assert.Contains(t, md, "Succeeded on attempt 2")
	assert.Contains(t, md, "after 4 actions")
	assert.Contains(t, md, "https://shop.example.com/receipt")
}

func TestArtifactWriter_CreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	w := NewArtifactWriter(ArtifactConfig{OutputDir: dir, JSON: true})

	require.NoError(t, w.Write(sampleOutcome()))

	_, err := os.Stat(filepath.Join(dir, "outcome.json"))
	assert.NoError(t, err)
}
