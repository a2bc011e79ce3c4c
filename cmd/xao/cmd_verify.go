package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xao-fun/xao-go/internal/referral"
	"github.com/xao-fun/xao-go/internal/server"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [file|-]",
	Short: "Classify one referral record",
	Long: `Read a referral record as JSON from a file or stdin and print the verdict.

The record has three optional sections:
  {"activity": {...}, "timing": {...}, "interactions": {...}}`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := server.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	rec, err := readRecord(in)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	completer, err := newCompleter(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	pipeline := referral.NewPipeline(referral.NewVerifier(completer), logger,
		referral.WithMaxRetries(cfg.Verify.MaxRetries))

	v, err := pipeline.Verify(ctx, rec)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v.Result)
}

func readRecord(r io.Reader) (referral.Record, error) {
	var rec referral.Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return rec, fmt.Errorf("read referral record: %w", err)
	}
	return rec, nil
}
