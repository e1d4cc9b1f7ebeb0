package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pitabwire/quotecfg/internal/definition"
	"github.com/pitabwire/quotecfg/internal/importer"
	"github.com/pitabwire/quotecfg/model"
)

var errInvalidConfig = errors.New("configuration is invalid")

func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a configuration file",
		Long: `Check a configuration file against the import schema and the semantic
component and rule checks. Warnings are printed but only fail the command
with --strict.

Examples:
  quotectl validate shop-a.json
  quotectl validate --strict shop-a.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfigFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			issues := definition.NewValidator().ValidateConfig(cfg)
			for _, ve := range issues {
				fmt.Fprintf(out, "%-7s %s: %s\n", ve.Severity, ve.Path, ve.Message)
			}

			failed := definition.HasErrors(issues) || (strict && len(issues) > 0)
			if failed {
				return fmt.Errorf("%s: %w (%d issues)", args[0], errInvalidConfig, len(issues))
			}
			fmt.Fprintf(out, "%s: ok (%d components, %d rules)\n", args[0], len(cfg.Components), len(cfg.PermutationRules))
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	return cmd
}

// readConfigFile parses a configuration file with the same rules the import
// endpoint applies.
func readConfigFile(path string) (model.CalculatorConfig, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return model.CalculatorConfig{}, fmt.Errorf("read %s: %w", path, err)
	}

	im, err := importer.New()
	if err != nil {
		return model.CalculatorConfig{}, err
	}
	cfg, err := im.Import(data)
	if err != nil {
		if env, ok := model.AsEnvelope(err); ok {
			for _, d := range env.Details {
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", d.Code, d.Field, d.Message)
			}
		}
		return model.CalculatorConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
