package commands

import (
	"context"
	"log/slog"
	"time"

	"stockharvest-backend/lib/record"
	"stockharvest-backend/lib/serviceutil"
	"stockharvest-backend/services/harvester"
	"stockharvest-backend/services/screener"

	"github.com/spf13/cobra"
)

var (
	fundamentalsIndex *string
	fundamentalsLimit *int
)

func init() {
	fundamentalsIndex = fundamentalsCmd.Flags().String("index", "all", "Index name (\"all\") or path to a constituents file.")
	fundamentalsLimit = fundamentalsCmd.Flags().Int("limit", 0, "Cap the number of companies scraped this run.")
	rootCmd.AddCommand(fundamentalsCmd)
}

var fundamentalsCmd = &cobra.Command{
	Use:   "fundamentals [--index <name|file>] [--limit N]",
	Short: "Scrapes company fundamentals for an index into the snapshot store.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		store, database := openStore(cfg)
		defer database.Close()

		client := newRequester(cfg, screener.NewRestyClient())
		svc := screener.New(client, cfg.Screener)

		targets, err := resolveTargets(ctx, store, *fundamentalsIndex, cfg.FuzzyNames)
		if err != nil {
			serviceutil.Fatal("failed to resolve targets", err)
		}
		lastSuccess, err := store.LastSuccess(ctx)
		if err != nil {
			serviceutil.Fatal("failed to load harvest metadata", err)
		}
		targets = harvester.Prioritise(targets, lastSuccess)
		if *fundamentalsLimit > 0 && len(targets) > *fundamentalsLimit {
			targets = targets[:*fundamentalsLimit]
		}

		exceptions, err := harvester.LoadExceptions(cfg.ExceptionsFile)
		if err != nil {
			serviceutil.Fatal("failed to read exceptions file", err)
		}

		report := harvester.RunReport{Targets: len(targets), Started: time.Now()}
		for _, target := range targets {
			if ctx.Err() != nil {
				break
			}
			result, err := svc.HarvestCompany(ctx, target)
			if err != nil {
				exceptions.Add(target.Key())
				report.Failures = append(report.Failures, harvester.Failure{Target: target, Err: err})
				slog.WarnContext(ctx, "fundamentals scrape failed",
					"name", target.Name, "err", err)
				continue
			}
			if err := storeFundamentals(cmd.Context(), store, target, result); err != nil {
				serviceutil.Fatal("failed to persist fundamentals", err)
			}
			report.Succeeded++
		}

		report.Finished = time.Now()
		if err := exceptions.Save(); err != nil {
			slog.WarnContext(ctx, "failed to save exception list", "err", err)
		}
		printRunReport(report)
	},
}

// storeFundamentals folds a scraped company into its stored document under
// the "fundamentals" field and stamps the harvest metadata with the
// resolved slug.
func storeFundamentals(ctx context.Context, store *harvester.SnapshotStore, target harvester.Target, result screener.CompanyResult) error {
	payload := record.New()
	payload.Set("company_id", result.Metadata.CompanyID)
	payload.Set("slug", result.Metadata.Slug)
	payload.Set("slug_source", result.Metadata.SlugSource)

	ratios := make([]any, len(result.TopRatios))
	for i, r := range result.TopRatios {
		ratios[i] = r
	}
	payload.Set("top_ratios", ratios)

	sections := record.New()
	for _, name := range screener.Sections {
		rows, ok := result.Sections[name]
		if !ok {
			continue
		}
		list := make([]any, len(rows))
		for i, row := range rows {
			list[i] = row
		}
		sections.Set(name, list)
	}
	payload.Set("sections", sections)

	fresh := record.New()
	fresh.Set("fundamentals", payload)

	key := target.Key()
	prior, err := store.GetDocument(ctx, key)
	if err != nil {
		return err
	}
	if err := store.PutDocument(ctx, key, harvester.MergeDocument(prior, fresh)); err != nil {
		return err
	}
	return store.RecordHarvest(ctx, target, result.Metadata.Slug)
}
