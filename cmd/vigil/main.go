// Package main provides the vigil command: a zero-tolerance workflow
// runner that executes a configured browser workflow under strict
// monitoring, restarting from a fresh session whenever a violation is
// detected.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/vigil/pkg/driver"
	"github.com/entrhq/vigil/pkg/guardian"
	"github.com/entrhq/vigil/pkg/workflow"
	"gopkg.in/yaml.v3"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigFile  string
	URL         string
	OutputFile  string
	Timeout     time.Duration
	Headed      bool
	ShowVersion bool
}

// RunConfig is the full yaml surface of a run: the guardian settings
// plus the workflow to execute.
type RunConfig struct {
	Guardian guardian.Config `yaml:"guardian"`
	Workflow WorkflowConfig  `yaml:"workflow"`
}

// WorkflowConfig selects and parameterizes one workflow kind.
type WorkflowConfig struct {
	// Kind is "steps", "form" or "navigation".
	Kind string `yaml:"kind"`

	Steps      workflow.Steps      `yaml:"steps"`
	Form       workflow.Form       `yaml:"form"`
	Navigation workflow.Navigation `yaml:"navigation"`
}

func main() {
	config := parseFlags()

	if config.ShowVersion {
		fmt.Printf("vigil v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Graceful shutdown: the guardian treats cancellation as an abort
	// and still writes its artifacts.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, config); err != nil {
		cancel()
		log.Printf("Run failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags.
func parseFlags() *CLIConfig {
	config := &CLIConfig{}

	flag.StringVar(&config.ConfigFile, "config", "", "Path to run configuration file (YAML)")
	flag.StringVar(&config.URL, "url", "", "URL to visit (shorthand for a single-navigation workflow)")
	flag.StringVar(&config.OutputFile, "output", "", "Output file for the run outcome (JSON)")
	flag.DurationVar(&config.Timeout, "timeout", 10*time.Minute, "Overall run timeout")
	flag.BoolVar(&config.Headed, "headed", false, "Run the browser with a visible window")
	flag.BoolVar(&config.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Vigil - Zero-Tolerance Browser Workflow Runner\n\n")
		fmt.Fprintf(os.Stderr, "Usage: vigil [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run a configured workflow\n")
		fmt.Fprintf(os.Stderr, "  vigil -config run.yaml\n\n")
		fmt.Fprintf(os.Stderr, "  # Visit a single URL under the default rules\n")
		fmt.Fprintf(os.Stderr, "  vigil -url https://example.com\n\n")
	}

	flag.Parse()
	return config
}

// run loads the configuration, wires the guardian and executes the
// workflow to its terminal outcome.
func run(ctx context.Context, cliConfig *CLIConfig) error {
	runConfig, err := loadConfig(cliConfig)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cliConfig.Headed {
		runConfig.Guardian.Headless = false
	}

	if validationErr := runConfig.Guardian.Validate(); validationErr != nil {
		return fmt.Errorf("invalid configuration: %w", validationErr)
	}

	wf, err := buildWorkflow(&runConfig.Workflow)
	if err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	factory := driver.NewPlaywrightFactory(runConfig.Guardian.DriverOptions())
	defer factory.Shutdown()

	opts := []guardian.Option{
		guardian.WithPollInterval(runConfig.Guardian.PollInterval()),
		guardian.WithScreenshotOnViolation(runConfig.Guardian.ScreenshotOnViolation),
	}
	if runConfig.Guardian.Artifacts.Enabled {
		opts = append(opts, guardian.WithArtifactWriter(guardian.NewArtifactWriter(runConfig.Guardian.Artifacts)))
	}

	g, err := guardian.New(factory, runConfig.Guardian.Spec(), runConfig.Guardian.Plan(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create guardian: %w", err)
	}

	if cliConfig.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cliConfig.Timeout)
		defer cancel()
	}

	log.Printf("Starting run...")
	log.Printf("Workflow: %s", wf.Name())
	log.Printf("Max attempts: %d", runConfig.Guardian.MaxRetries+1)

	outcome, err := g.Run(ctx, wf)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if cliConfig.OutputFile != "" {
		if writeErr := writeOutcome(cliConfig.OutputFile, outcome); writeErr != nil {
			return writeErr
		}
	}

	log.Printf("Run finished: status=%s attempts=%d duration=%s",
		outcome.Status, outcome.Stats.Attempts, outcome.Duration)

	if !outcome.Succeeded() {
		return fmt.Errorf("run did not succeed: %s", outcome.Status)
	}
	return nil
}

// loadConfig loads the run configuration from file or CLI arguments.
func loadConfig(cliConfig *CLIConfig) (*RunConfig, error) {
	if cliConfig.ConfigFile != "" {
		return loadConfigFromFile(cliConfig.ConfigFile)
	}

	if cliConfig.URL == "" {
		return nil, fmt.Errorf("either -config or -url is required")
	}

	config := &RunConfig{
		Guardian: *guardian.DefaultConfig(),
		Workflow: WorkflowConfig{
			Kind: "navigation",
			Navigation: workflow.Navigation{
				URLs: []string{cliConfig.URL},
			},
		},
	}
	return config, nil
}

// loadConfigFromFile loads the run configuration from a YAML file.
func loadConfigFromFile(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &RunConfig{Guardian: *guardian.DefaultConfig()}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// buildWorkflow constructs the configured workflow kind.
func buildWorkflow(cfg *WorkflowConfig) (workflow.Workflow, error) {
	switch cfg.Kind {
	case "steps":
		if err := cfg.Steps.Validate(); err != nil {
			return nil, err
		}
		return &cfg.Steps, nil
	case "form":
		if err := cfg.Form.Validate(); err != nil {
			return nil, err
		}
		return &cfg.Form, nil
	case "navigation":
		if err := cfg.Navigation.Validate(); err != nil {
			return nil, err
		}
		return &cfg.Navigation, nil
	default:
		return nil, fmt.Errorf("unknown workflow kind: %q (must be 'steps', 'form' or 'navigation')", cfg.Kind)
	}
}

// writeOutcome persists the outcome JSON for downstream tooling.
func writeOutcome(path string, outcome *guardian.Outcome) error {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write outcome file: %w", err)
	}
	return nil
}
