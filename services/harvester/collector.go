package harvester

import (
	"context"
	"log/slog"
	"time"

	"stockharvest-backend/lib/record"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/harvester")

// Collector walks a page-numbered section listing and gathers every row not
// already present in the prior snapshot.
//
// The stop-at-first-known-item shortcut assumes the endpoint returns items
// in a stable reverse-chronological order: once a previously persisted row
// shows up, everything on and after that position is taken to be already
// captured. If the upstream ever backfills older pages, rows inserted
// behind a known one will be missed.
type Collector struct {
	source Source
	// PageDelay is slept between successive pages of one section.
	pageDelay time.Duration
}

func NewCollector(source Source, pageDelay time.Duration) Collector {
	return Collector{source: source, pageDelay: pageDelay}
}

// SectionResult is the next state of one (target, section) listing.
type SectionResult struct {
	// Items is the merged listing: the rows discovered this run, newest
	// first, followed by every previously persisted row.
	Items []*record.Record

	NewItems     int
	PriorItems   int
	PagesFetched int
	// PageCount is the endpoint's last reported total page count, 0 when it
	// never said.
	PageCount int
	// HitExisting reports whether pagination stopped because a previously
	// persisted row was encountered.
	HitExisting bool
}

// CollectSection pages through one section until it hits already-known
// data, an empty page, the reported page count, or a no-more-data status.
// A page-level failure returns the rows gathered so far along with the
// error so the caller can keep prior data.
func (c Collector) CollectSection(ctx context.Context, target Target, section Section, prior []*record.Record) (SectionResult, error) {
	ctx, span := tracer.Start(ctx, "CollectSection")
	defer span.End()
	span.SetAttributes(
		attribute.String("target", target.ID),
		attribute.String("section", section.Code),
		attribute.Int("prior_items", len(prior)),
	)

	priorSet := record.NewSet()
	for _, item := range prior {
		priorSet.Add(item.Fingerprint())
	}
	seen := record.NewSet()

	var newItems []*record.Record
	result := SectionResult{PriorItems: len(prior)}

	page := 1
	for {
		fetched, err := c.source.FetchPage(ctx, target, section, page)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "page fetch failed")
			slog.WarnContext(ctx, "stopping section after page failure",
				"target", target.ID,
				"section", section.Code,
				"page", page,
				"err", err,
			)
			result.Items = append(newItems, prior...)
			result.NewItems = len(newItems)
			return result, err
		}

		if fetched.Status != StatusOK {
			break
		}
		if fetched.PageCount > 0 {
			result.PageCount = fetched.PageCount
		}

		for _, item := range fetched.Items {
			fp := item.Fingerprint()
			if priorSet.Has(fp) {
				// everything from here on was captured by an earlier run
				result.HitExisting = true
				break
			}
			if seen.Has(fp) {
				// within-run duplicate
				continue
			}
			seen.Add(fp)
			newItems = append(newItems, item)
		}
		result.PagesFetched++

		if result.HitExisting {
			break
		}
		if len(fetched.Items) == 0 {
			break
		}
		if result.PageCount > 0 && page >= result.PageCount {
			break
		}

		page++
		if c.pageDelay > 0 {
			timer := time.NewTimer(c.pageDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				result.Items = append(newItems, prior...)
				result.NewItems = len(newItems)
				return result, ctx.Err()
			}
		}
	}

	result.Items = append(newItems, prior...)
	result.NewItems = len(newItems)
	span.SetAttributes(
		attribute.Int("new_items", result.NewItems),
		attribute.Int("pages_fetched", result.PagesFetched),
		attribute.Bool("hit_existing", result.HitExisting),
	)
	return result, nil
}
