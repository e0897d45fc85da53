package commands

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"stockharvest-backend/lib/record"
	"stockharvest-backend/lib/serviceutil"
	"stockharvest-backend/lib/telemetry"
	"stockharvest-backend/services/harvester"
	"stockharvest-backend/services/moneycontrol"

	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	runIndex           *string
	runLimit           *int
	runOnly            *string
	runRefreshMetadata *bool
	runForceDetails    *bool
)

func init() {
	runIndex = runCmd.Flags().String("index", "all", "Index name (\"all\") or path to a constituents file.")
	runLimit = runCmd.Flags().Int("limit", 0, "Cap the number of targets harvested this run.")
	runOnly = runCmd.Flags().String("only", "", "Comma-separated section codes and/or stock ids to restrict the run to.")
	runRefreshMetadata = runCmd.Flags().Bool("refresh-metadata", false, "Re-discover company metadata before harvesting.")
	runForceDetails = runCmd.Flags().Bool("force-details", false, "Refetch extended identifiers even when cached.")
	rootCmd.AddCommand(runCmd)
}

// splitOnlyArg separates --only tokens into section codes and stock ids.
// Tokens matching a known section code select sections, everything else is
// taken as a stock id.
func splitOnlyArg(raw string, sections []harvester.Section) (sectionCodes, stockIDs []string) {
	known := map[string]bool{}
	for _, s := range sections {
		known[s.Code] = true
	}
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if known[strings.ToLower(token)] {
			sectionCodes = append(sectionCodes, strings.ToLower(token))
		} else {
			stockIDs = append(stockIDs, strings.ToUpper(token))
		}
	}
	return sectionCodes, stockIDs
}

var runCmd = &cobra.Command{
	Use:   "run [--index <name|file>] [--limit N] [--only d,RI] [--refresh-metadata]",
	Short: "Harvests corporate actions for an index into the snapshot store.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		store, database := openStore(cfg)
		defer database.Close()

		httpClient := resty.New()
		telemetry.InstrumentResty(httpClient, "services/moneycontrol/http")
		client := newRequester(cfg, httpClient)
		source := moneycontrol.New(client, cfg.Moneycontrol)

		if *runRefreshMetadata {
			refreshMetadata(ctx, store, source, *runForceDetails)
		}

		targets, err := resolveTargets(ctx, store, *runIndex, cfg.FuzzyNames)
		if err != nil {
			serviceutil.Fatal("failed to resolve targets", err)
		}
		for i := range targets {
			if targets[i].ID == "" {
				// metadata discovery keys documents by source id
				if doc, err := store.GetDocument(ctx, targets[i].Key()); err == nil && doc != nil {
					if v, ok := doc.Get("id"); ok {
						if id, ok := v.(string); ok {
							targets[i].ID = id
						}
					}
				}
			}
		}

		sectionCodes, stockIDs := splitOnlyArg(*runOnly, source.Sections())

		exceptions, err := harvester.LoadExceptions(cfg.ExceptionsFile)
		if err != nil {
			serviceutil.Fatal("failed to read exceptions file", err)
		}

		runner := harvester.NewRunner(
			store,
			source,
			harvester.NewCollector(source, seconds(cfg.PageDelaySeconds)),
			exceptions,
			harvester.RunnerOptions{
				Limit:        *runLimit,
				Only:         sectionCodes,
				OnlyTargets:  stockIDs,
				SectionDelay: seconds(cfg.SectionDelaySeconds),
			},
		)

		report, err := runner.Run(ctx, targets)
		printRunReport(report)
		if err != nil {
			serviceutil.Fatal("harvest run aborted", err)
		}

		if err := harvester.SendRunReport(cfg.Email, report); err != nil {
			slog.WarnContext(ctx, "failed to send run report email", "err", err)
		}
	},
}

// refreshMetadata sweeps the search seeds and folds the discovered entries
// into the snapshot store, enriching each with its extended identifiers.
func refreshMetadata(ctx context.Context, store *harvester.SnapshotStore, source *moneycontrol.Service, force bool) {
	entries, err := source.DiscoverMetadata(ctx)
	if err != nil {
		serviceutil.Fatal("metadata discovery failed", err)
	}
	slog.InfoContext(ctx, "discovered metadata", "entries", len(entries))

	for id, entry := range entries {
		if _, err := source.EnrichDetails(ctx, entry, force); err != nil {
			slog.WarnContext(ctx, "detail enrichment failed", "id", id, "err", err)
		}

		key := identityOf(entry)
		if key == (harvester.IdentityKey{}) {
			continue
		}
		prior, err := store.GetDocument(ctx, key)
		if err != nil {
			serviceutil.Fatal("failed to load stored document", err)
		}
		merged := harvester.MergeDocument(prior, entry)
		if err := store.PutDocument(ctx, key, merged); err != nil {
			serviceutil.Fatal("failed to persist metadata document", err)
		}
	}
}

func identityOf(entry *record.Record) harvester.IdentityKey {
	bse, nse, isin := harvester.ExtractIdentifiers(entry)
	t := harvester.Target{BSE: bse, NSE: nse, ISIN: isin}
	return t.Key()
}

func printRunReport(report harvester.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Targets", "Succeeded", "Failed", "New Items", "Duration"})
	t.AppendRow(table.Row{
		report.Targets,
		report.Succeeded,
		len(report.Failures),
		report.NewItems,
		report.Finished.Sub(report.Started).Round(time.Second),
	})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if len(report.Failures) == 0 {
		return
	}
	f := table.NewWriter()
	f.SetOutputMirror(os.Stdout)
	f.AppendHeader(table.Row{"Name", "BSE", "NSE", "Error"})
	for _, failure := range report.Failures {
		f.AppendRow(table.Row{failure.Target.Name, failure.Target.BSE, failure.Target.NSE, failure.Err})
	}
	f.SetStyle(table.StyleRounded)
	f.Render()
}
