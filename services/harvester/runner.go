package harvester

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"stockharvest-backend/lib/record"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type RunnerOptions struct {
	// Limit caps the number of targets harvested this run, 0 for all.
	Limit int
	// Only restricts the run to the named section codes. Sections left out
	// keep their previously stored data untouched.
	Only []string
	// OnlyTargets restricts the run to the named source ids,
	// case-insensitively.
	OnlyTargets []string
	// SectionDelay is slept between sections of one target.
	SectionDelay time.Duration
}

// Runner drives a full harvest pass: prioritising targets, collecting each
// section, reconciling against the stored snapshot, and recording outcomes.
type Runner struct {
	store      *SnapshotStore
	source     Source
	collector  Collector
	exceptions *ExceptionList
	opts       RunnerOptions
}

func NewRunner(store *SnapshotStore, source Source, collector Collector, exceptions *ExceptionList, opts RunnerOptions) *Runner {
	if exceptions == nil {
		exceptions = &ExceptionList{entries: map[string]bool{}}
	}
	return &Runner{
		store:      store,
		source:     source,
		collector:  collector,
		exceptions: exceptions,
		opts:       opts,
	}
}

// Failure is one target whose harvest did not complete.
type Failure struct {
	Target Target
	Err    error
}

type RunReport struct {
	Started   time.Time
	Finished  time.Time
	Targets   int
	Succeeded int
	NewItems  int
	Failures  []Failure
}

// Run harvests the given targets, oldest-first. A failed target is added to
// the exception list and the run moves on; only context cancellation stops
// the pass early.
func (r *Runner) Run(ctx context.Context, targets []Target) (RunReport, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	report := RunReport{Started: time.Now()}

	lastSuccess, err := r.store.LastSuccess(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load harvest metadata")
		return report, err
	}
	targets = filterTargets(targets, r.opts.OnlyTargets)
	targets = Prioritise(targets, lastSuccess)
	if r.opts.Limit > 0 && len(targets) > r.opts.Limit {
		targets = targets[:r.opts.Limit]
	}
	report.Targets = len(targets)
	span.SetAttributes(attribute.Int("targets", len(targets)))

	for _, target := range targets {
		if ctx.Err() != nil {
			report.Finished = time.Now()
			return report, ctx.Err()
		}

		newItems, err := r.harvestTarget(ctx, target)
		report.NewItems += newItems
		if err != nil {
			r.exceptions.Add(target.Key())
			report.Failures = append(report.Failures, Failure{Target: target, Err: err})
			slog.WarnContext(ctx, "target harvest failed",
				"target", target.ID,
				"name", target.Name,
				"err", err,
			)
			continue
		}
		report.Succeeded++
	}

	if err := r.exceptions.Save(); err != nil {
		slog.WarnContext(ctx, "failed to save exception list", "err", err)
	}

	report.Finished = time.Now()
	span.SetAttributes(
		attribute.Int("succeeded", report.Succeeded),
		attribute.Int("failed", len(report.Failures)),
		attribute.Int("new_items", report.NewItems),
	)
	return report, nil
}

func filterTargets(targets []Target, only []string) []Target {
	if len(only) == 0 {
		return targets
	}
	wanted := map[string]bool{}
	for _, id := range only {
		wanted[strings.ToUpper(id)] = true
	}
	var out []Target
	for _, t := range targets {
		if wanted[strings.ToUpper(t.ID)] {
			out = append(out, t)
		}
	}
	return out
}

func (r *Runner) sections() []Section {
	all := r.source.Sections()
	if len(r.opts.Only) == 0 {
		return all
	}
	only := map[string]bool{}
	for _, code := range r.opts.Only {
		only[code] = true
	}
	var out []Section
	for _, s := range all {
		if only[s.Code] {
			out = append(out, s)
		}
	}
	return out
}

// harvestTarget collects every selected section for one target and persists
// the reconciled document. Partial data gathered before a failure is still
// persisted, but the target is not marked successfully harvested.
func (r *Runner) harvestTarget(ctx context.Context, target Target) (int, error) {
	ctx, span := tracer.Start(ctx, "harvestTarget")
	defer span.End()
	span.SetAttributes(
		attribute.String("target", target.ID),
		attribute.String("name", target.Name),
	)

	prior := target.Prior
	if prior == nil {
		var err error
		prior, err = r.store.GetDocument(ctx, target.Key())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load prior snapshot")
			return 0, err
		}
	}

	fresh := record.New()
	if target.ID != "" {
		fresh.Set("id", target.ID)
	}
	if target.Name != "" {
		fresh.Set("name", target.Name)
	}
	key := target.Key()
	fresh.Set("bse", key.BSE)
	fresh.Set("nse", key.NSE)
	fresh.Set("isin", key.ISIN)

	newItems := 0
	var harvestErr error
	selected := r.sections()
	for i, section := range selected {
		priorItems := ExtractSectionItems(prior, section)
		result, err := r.collector.CollectSection(ctx, target, section, priorItems)
		fresh.Set(section.Code, SectionPayload(section, result))
		newItems += result.NewItems
		if err != nil {
			// keep whatever was gathered; the target is retried next run
			harvestErr = err
			break
		}

		if r.opts.SectionDelay > 0 && i < len(selected)-1 {
			timer := time.NewTimer(r.opts.SectionDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				harvestErr = ctx.Err()
			}
			if harvestErr != nil {
				break
			}
		}
	}

	// sections left out of this run keep their stored payload; a section
	// that never had one gets a placeholder so readers see a stable shape
	for _, section := range r.source.Sections() {
		if _, ok := fresh.Get(section.Code); ok {
			continue
		}
		hasPrior := false
		if prior != nil {
			_, hasPrior = prior.Get(section.Code)
		}
		if !hasPrior {
			fresh.Set(section.Code, EmptySectionPayload(section))
		}
	}

	merged := MergeDocument(prior, fresh)
	if err := r.store.PutDocument(ctx, key, merged); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist snapshot")
		return newItems, err
	}

	if harvestErr != nil {
		span.RecordError(harvestErr)
		span.SetStatus(codes.Error, "harvest incomplete")
		return newItems, harvestErr
	}

	if err := r.store.RecordHarvest(ctx, target, ""); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record harvest")
		return newItems, err
	}

	slog.DebugContext(ctx, "harvested target",
		"target", target.ID,
		"name", target.Name,
		"new_items", newItems,
	)
	return newItems, nil
}
