package commands

import (
	"os"
	"time"

	"stockharvest-backend/lib/serviceutil"
	"stockharvest-backend/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var targetsIndex *string

func init() {
	targetsIndex = targetsCmd.Flags().String("index", "all", "Index name (\"all\") or path to a constituents file.")
	rootCmd.AddCommand(targetsCmd)
}

var targetsCmd = &cobra.Command{
	Use:   "targets [--index <name|file>]",
	Short: "Prints the resolved targets of an index in harvest order.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		store, database := openStore(cfg)
		defer database.Close()

		targets, err := resolveTargets(ctx, store, *targetsIndex, cfg.FuzzyNames)
		if err != nil {
			serviceutil.Fatal("failed to resolve targets", err)
		}
		lastSuccess, err := store.LastSuccess(ctx)
		if err != nil {
			serviceutil.Fatal("failed to load harvest metadata", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "BSE", "NSE", "ISIN", "Last Harvested"})
		for _, target := range targets {
			last := "never"
			if at, ok := lastSuccess[target.Key()]; ok {
				last = at.In(timezone.Location).Format(time.DateTime)
			}
			t.AppendRow(table.Row{target.Name, target.BSE, target.NSE, target.ISIN, last})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
