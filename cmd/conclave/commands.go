package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/quorasec/conclave/pkg/config"
	"github.com/quorasec/conclave/pkg/kb"
	"github.com/quorasec/conclave/pkg/schema"
)

// installTracing wires a stdout span exporter so every model call's span
// is visible during a run.
func installTracing() (func(), error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	return func() {
		_ = provider.Shutdown(context.Background())
	}, nil
}

// KBCmd groups knowledge base management.
type KBCmd struct {
	Index KBIndexCmd `cmd:"" help:"Index documents into the knowledge base."`
}

// KBIndexCmd chunks and indexes text files.
type KBIndexCmd struct {
	Paths     []string `arg:"" type:"existingfile" help:"Text files to index."`
	ChunkSize int      `help:"Maximum chunk size in bytes." default:"1200"`
}

func (c *KBIndexCmd) Run(cli *CLI) error {
	cfg, cleanup, err := cli.loadConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.KB.Path == "" {
		return fmt.Errorf("knowledge base is not configured: set knowledge_base.path or KB_PATH")
	}
	store, err := kb.NewChromemStore(cfg.KB.Path, cfg.KB.Collection, config.GetProviderAPIKey("openai"))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	for _, path := range c.Paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		chunks := kb.Chunk(string(raw), c.ChunkSize)
		source := filepath.Base(path)
		if err := store.Index(ctx, source, chunks); err != nil {
			return err
		}
		fmt.Printf("indexed %s (%d chunks)\n", source, len(chunks))
	}
	return nil
}

// AuditCmd summarises a saved run record: the conversation stages and
// every provider substitution.
type AuditCmd struct {
	Path string `arg:"" type:"existingfile" help:"Path to an assessment record."`
	Full bool   `help:"Print full prompts and responses."`
}

// auditRecord is the slice of the run record the audit view needs.
type auditRecord struct {
	Metadata struct {
		RunID         string `json:"run_id"`
		Status        string `json:"status"`
		RiskInput     string `json:"risk_input"`
		RevisionCount int    `json:"revision_count"`
	} `json:"metadata"`
	FallbackEvents  []schema.FallbackEvent      `json:"fallback_events"`
	ConversationLog []schema.ConversationRecord `json:"conversation_log"`
}

func (c *AuditCmd) Run(cli *CLI) error {
	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}
	var record auditRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("decoding %s: %w", c.Path, err)
	}

	fmt.Printf("Run %s: %s (revisions: %d)\n", record.Metadata.RunID, record.Metadata.Status, record.Metadata.RevisionCount)
	fmt.Printf("Scenario: %s\n\n", record.Metadata.RiskInput)

	if len(record.FallbackEvents) > 0 {
		fmt.Printf("Provider substitutions:\n")
		for _, event := range record.FallbackEvents {
			fmt.Printf("  - %s: %s/%s -> %s/%s (%s)\n", event.Context,
				event.RequestedProvider, event.RequestedModel,
				event.ActualProvider, event.ActualModel, event.Reason)
		}
		fmt.Println()
	}

	fmt.Printf("Conversation (%d exchanges):\n", len(record.ConversationLog))
	for i, entry := range record.ConversationLog {
		fmt.Printf("%3d. [rev %d] %-20s %s\n", i+1, entry.Revision, entry.Stage, entry.ModelLabel)
		if c.Full {
			fmt.Printf("     prompt:   %s\n", entry.Prompt)
			fmt.Printf("     response: %s\n", entry.Response)
		}
	}
	return nil
}
