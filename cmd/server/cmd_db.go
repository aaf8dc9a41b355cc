package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/optomapp/ledger-engine/api"
)

// optom migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run all pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := boot()
		if err != nil {
			return err
		}
		store, err := a.openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer store.Close()

		applied, err := store.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to migrate.")
			return nil
		}
		for _, v := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %05d\n", v)
		}
		return nil
	},
}

// optom migrate:status
var migrateStatusCmd = &cobra.Command{
	Use:   "migrate:status",
	Short: "Show the status of each migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := boot()
		if err != nil {
			return err
		}
		store, err := a.openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer store.Close()

		states, err := store.MigrationStatus(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tSOURCE")
		for _, st := range states {
			state, at := "pending", "-"
			if st.Applied {
				state, at = "applied", st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%05d\t%s\t%s\t%s\n", st.Version, state, at, st.Source)
		}
		return w.Flush()
	},
}

var (
	seedScenario string
	seedReset    bool
)

// optom seed
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo scenario into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := boot()
		if err != nil {
			return err
		}
		store, err := a.openStore(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer store.Close()

		h := api.NewHandler(store, a.log, nil)
		if seedReset {
			err = h.ResetAndLoadScenario(cmd.Context(), seedScenario)
		} else {
			err = h.LoadScenario(cmd.Context(), seedScenario)
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", seedScenario, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded scenario %s.\n", seedScenario)
		return nil
	},
}

func init() {
	ids := ""
	for i, s := range api.Scenarios() {
		if i > 0 {
			ids += ", "
		}
		ids += s.ID
	}
	seedCmd.Flags().StringVar(&seedScenario, "scenario", "optics-shop", "scenario to load ("+ids+")")
	seedCmd.Flags().BoolVar(&seedReset, "reset", false, "wipe all products and transactions first")
}
