package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pitabwire/quotecfg/internal/evaluator"
	"github.com/pitabwire/quotecfg/model"
)

func newEvaluateCmd() *cobra.Command {
	var selects []string

	cmd := &cobra.Command{
		Use:   "evaluate <file>",
		Short: "Compute option availability for a selection",
		Long: `Evaluate the permutation rules of a configuration file against a
selection and print the availability report as JSON.

Examples:
  quotectl evaluate shop-a.json --select material=business-card-white
  quotectl evaluate shop-a.json --select finishing=lamination,folding --select spotColours=spot-yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selections, err := parseSelections(selects)
			if err != nil {
				return err
			}
			cfg, err := readConfigFile(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), evaluator.Evaluate(cfg, selections))
		},
	}

	cmd.Flags().StringArrayVarP(&selects, "select", "s", nil, "selection as component=option[,option...] (repeatable)")
	return cmd
}

// parseSelections turns "comp=a,b" flags into Selections. Repeating a
// component appends to its options.
func parseSelections(flags []string) (model.Selections, error) {
	sel := make(model.Selections, len(flags))
	for _, f := range flags {
		comp, opts, ok := strings.Cut(f, "=")
		comp = strings.TrimSpace(comp)
		if !ok || comp == "" {
			return nil, fmt.Errorf("invalid selection %q: want component=option[,option...]", f)
		}
		for _, o := range strings.Split(opts, ",") {
			if o = strings.TrimSpace(o); o != "" {
				sel[comp] = append(sel[comp], o)
			}
		}
		if _, seen := sel[comp]; !seen {
			sel[comp] = []string{}
		}
	}
	return sel, nil
}
