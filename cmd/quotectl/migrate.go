package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/quotecfg/internal/store"
)

type migrateFlags struct {
	driver  string
	dsn     string
	timeout time.Duration
}

func newMigrateCmd() *cobra.Command {
	f := &migrateFlags{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the storage schema",
		Long: `Apply, roll back, or inspect the embedded schema migrations for the
sqlite and postgres storage drivers.

Examples:
  quotectl migrate up --driver sqlite --dsn ./quotecfg.db
  quotectl migrate status --driver postgres --dsn postgres://localhost/quotecfg`,
	}

	cmd.PersistentFlags().StringVar(&f.driver, "driver", store.DriverSQLite, "storage driver (sqlite or postgres)")
	cmd.PersistentFlags().StringVar(&f.dsn, "dsn", "", "database connection string")
	cmd.PersistentFlags().DurationVar(&f.timeout, "connect-timeout", 10*time.Second, "give up connecting after this long")
	cmd.MarkPersistentFlagRequired("dsn")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.withMigrator(cmd, func(m *store.Migrator) error {
				n, err := m.Up(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Down(cmd.Context()); err != nil {
					return err
				}
				v, err := m.Version(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema now at version %d\n", v)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.withMigrator(cmd, func(m *store.Migrator) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tSOURCE")
				for _, st := range statuses {
					state, at := "pending", "-"
					if st.Applied {
						state, at = "applied", st.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", st.Version, state, at, st.Source)
				}
				return tw.Flush()
			})
		},
	})

	return cmd
}

func (f *migrateFlags) withMigrator(cmd *cobra.Command, fn func(*store.Migrator) error) error {
	h, err := store.Open(cmd.Context(), store.Options{
		Driver:         f.driver,
		DSN:            f.dsn,
		ConnectTimeout: f.timeout,
	}, zap.NewNop())
	if err != nil {
		return err
	}
	defer h.Close()

	m, err := h.Migrator()
	if err != nil {
		return err
	}
	return fn(m)
}
