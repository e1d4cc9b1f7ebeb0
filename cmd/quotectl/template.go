package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pitabwire/quotecfg/internal/definition"
	"github.com/pitabwire/quotecfg/internal/importer"
)

func newTemplateCmd() *cobra.Command {
	var (
		dirs []string
		list bool
	)

	cmd := &cobra.Command{
		Use:   "template [id]",
		Short: "Print a template as an importable configuration file",
		Long: `Print a template as JSON in the import file format. Without an id the
built-in default calculator is printed. Templates from --dir override
built-ins with the same id.

Examples:
  quotectl template > default.json
  quotectl template --list --dir ./templates
  quotectl template business-cards --dir ./templates`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := definition.NewLoader()
			tmpls, err := loader.LoadCatalog(dirs)
			if err != nil {
				return err
			}
			registry := definition.NewRegistry(tmpls)
			out := cmd.OutOrStdout()

			if list {
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tCOMPONENTS\tRULES")
				for _, s := range registry.All() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", s.ID, s.Name, s.Category, s.Components, s.Rules)
				}
				return tw.Flush()
			}

			id := definition.DefaultTemplateID
			if len(args) == 1 {
				id = args[0]
			}
			t, ok := registry.Get(id)
			if !ok {
				return fmt.Errorf("template %q not found", id)
			}
			data, err := importer.Export(t.CalculatorConfig)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&dirs, "dir", nil, "additional template directories")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list templates instead of printing one")
	return cmd
}
