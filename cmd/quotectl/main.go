// Package main is the quotectl command line tool. It validates and evaluates
// calculator configuration files offline and manages the storage schema.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quotectl",
		Short: "Work with quote calculator configuration files",
		Long: `quotectl validates and evaluates calculator configuration files without
a running server, prints the built-in templates, and applies the storage
schema migrations.`,
		SilenceUsage: true,
	}

	root.AddCommand(newValidateCmd())
	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newTemplateCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
