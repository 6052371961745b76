// Command conclave runs adversarial IoT risk assessments: a council of
// models drafts, an aggregator synthesizes, challengers critique, and a
// verifier routes to approval, revision, or human escalation.
//
// Usage:
//
//	conclave assess "Smart doorbell with default admin password"
//	conclave assess --file scenario.txt --observe
//	conclave kb index ./docs/iot-reports/*.txt
//	conclave audit results/assessment_iot_risk_20260101_120000.json
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/quorasec/conclave/pkg/config"
	"github.com/quorasec/conclave/pkg/logger"
	"github.com/quorasec/conclave/pkg/runner"
)

// CLI defines the command-line interface.
type CLI struct {
	Assess  AssessCmd  `cmd:"" help:"Run a risk assessment for an IoT scenario."`
	KB      KBCmd      `cmd:"" name:"kb" help:"Manage the knowledge base."`
	Audit   AuditCmd   `cmd:"" help:"Inspect the audit trail of a saved run."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)."`
	Observe   bool   `help:"Emit OpenTelemetry spans for model calls to stderr."`
}

// loadConfig applies CLI logging overrides on top of the file/env config
// and installs the logger.
func (cli *CLI) loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}

	output := os.Stderr
	cleanup := func() {}
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		output = file
		cleanup = closeFile
	}

	level, _ := logger.ParseLevel(cfg.Logging.Level)
	logger.Init(level, output, cfg.Logging.Format)
	return cfg, cleanup, nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()
	return ctx, cancel
}

// AssessCmd runs one assessment.
type AssessCmd struct {
	Scenario string `arg:"" optional:"" help:"Risk scenario text."`
	File     string `short:"f" type:"path" help:"Read the scenario from a file."`
	Output   string `short:"o" help:"Override the output directory."`
}

func (c *AssessCmd) Run(cli *CLI) error {
	cfg, cleanup, err := cli.loadConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	scenario := c.Scenario
	if c.File != "" {
		raw, err := os.ReadFile(c.File)
		if err != nil {
			return fmt.Errorf("reading scenario file: %w", err)
		}
		scenario = string(raw)
	}
	if strings.TrimSpace(scenario) == "" {
		return fmt.Errorf("no scenario given: pass it as an argument or via --file")
	}
	if c.Output != "" {
		cfg.Output.Dir = c.Output
	}

	if cli.Observe {
		shutdown, err := installTracing()
		if err != nil {
			return fmt.Errorf("enabling tracing: %w", err)
		}
		defer shutdown()
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, err := runner.New(cfg)
	if err != nil {
		return err
	}

	result, runErr := r.RunAssessment(ctx, scenario)
	if result != nil {
		printResult(result)
	}
	return runErr
}

func printResult(result *runner.Result) {
	state := result.State
	fmt.Printf("\nStatus: %s\n", state.Status)
	if draft := state.SynthesizedDraft; draft != nil && draft.Breakdown != nil {
		fmt.Printf("Risk: %d/25 (%s) = frequency %d x impact %d\n",
			draft.Breakdown.FinalRiskScore,
			draft.Breakdown.Classification,
			draft.Breakdown.FrequencyScore,
			draft.Breakdown.ImpactScore)
		fmt.Printf("Summary: %s\n", draft.Reasoning.Summary)
	}
	fmt.Printf("Revisions: %d, critiques: %d\n", state.RevisionCount, len(state.Critiques))

	if esc := state.Escalation; esc != nil {
		fmt.Printf("\nESCALATED (%s priority):\n", esc.Priority)
		for _, reason := range esc.Reasons {
			fmt.Printf("  - %s\n", reason)
		}
		if esc.ArtifactPath != "" {
			fmt.Printf("Escalation record: %s\n", esc.ArtifactPath)
		}
	}

	if len(result.FallbackEvents) > 0 {
		fmt.Printf("\nProvider substitutions: %d (diversity %.2f)\n",
			len(result.FallbackEvents), result.Heterogeneity.DiversityScore)
		for _, event := range result.FallbackEvents {
			fmt.Printf("  - %s: %s/%s -> %s/%s\n", event.Context,
				event.RequestedProvider, event.RequestedModel,
				event.ActualProvider, event.ActualModel)
		}
	}

	if result.ArtifactPath != "" {
		fmt.Printf("\nRun record: %s\n", result.ArtifactPath)
	}
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("conclave version %s\n", version)
	return nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("conclave"),
		kong.Description("Adversarial multi-model IoT risk assessment."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
