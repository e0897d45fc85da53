package screener

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"stockharvest-backend/lib/record"
	"stockharvest-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// row classification field names in a table record
const (
	fieldRowType   = "Row Type"
	fieldParentKPI = "Parent KPI"
	fieldChildKPI  = "Child KPI"
)

func buildRow(rowType, parent, child string, columns, values []string) *record.Record {
	if rowType != "Child" {
		// parents and standalone rows carry their own label as the parent
		if parent == "" {
			parent = child
		}
		child = ""
	}
	row := record.New()
	row.Set(fieldRowType, rowType)
	row.Set(fieldParentKPI, parent)
	row.Set(fieldChildKPI, child)
	for i, column := range columns {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		row.Set(column, value)
	}
	return row
}

// parseSectionTable turns one statement table into flat rows. A metric
// label ending in "+" is a parent with a fetchable breakdown; its children
// are inlined right after it.
func (s *Service) parseSectionTable(ctx context.Context, doc *goquery.Document, companyID, section string) ([]*record.Record, error) {
	table := doc.Find(fmt.Sprintf("section#%s table", section)).First()
	if table.Length() == 0 {
		return nil, nil
	}

	var columns []string
	table.Find("thead th").Each(func(i int, cell *goquery.Selection) {
		if i == 0 {
			return
		}
		columns = append(columns, textutil.NormalizeLabel(cell.Text()))
	})
	if len(columns) == 0 {
		return nil, nil
	}

	var rows []*record.Record
	var tableErr error
	table.Find("tbody tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		cells := tr.Find("td")
		if cells.Length() < 2 {
			return true
		}
		metric := textutil.NormalizeLabel(cells.First().Text())
		if metric == "" {
			return true
		}
		values := make([]string, 0, len(columns))
		cells.Slice(1, cells.Length()).Each(func(_ int, cell *goquery.Selection) {
			values = append(values, textutil.CleanMetric(cell.Text()))
		})

		if !strings.HasSuffix(metric, "+") {
			rows = append(rows, buildRow("Standalone", "", metric, columns, values))
			return true
		}

		parent := textutil.NormalizeLabel(strings.TrimSuffix(metric, "+"))
		rows = append(rows, buildRow("Parent", parent, parent, columns, values))

		schedule, err := s.fetchChildSchedule(ctx, companyID, section, parent)
		if err != nil {
			tableErr = err
			return false
		}
		if schedule == nil {
			return true
		}
		for _, childName := range schedule.Keys() {
			metrics := childMetrics(schedule, childName)
			childValues := make([]string, len(columns))
			for i, column := range columns {
				childValues[i] = textutil.CleanMetric(metricString(metrics, column))
			}
			rows = append(rows, buildRow("Child", parent, textutil.NormalizeLabel(childName), columns, childValues))
		}
		return true
	})
	if tableErr != nil {
		return nil, tableErr
	}
	return rows, nil
}

func childMetrics(schedule *record.Record, child string) *record.Record {
	raw, _ := schedule.Get(child)
	metrics, _ := raw.(*record.Record)
	return metrics
}

func metricString(metrics *record.Record, column string) string {
	if metrics == nil {
		return ""
	}
	v, _ := metrics.Get(column)
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return ""
}

// parseTopRatios reads the headline KPI list (market cap, P/E, ROE, ...)
// into name/value/unit entries.
func parseTopRatios(doc *goquery.Document) []*record.Record {
	var ratios []*record.Record
	doc.Find("ul#top-ratios li").Each(func(_ int, li *goquery.Selection) {
		name := textutil.NormalizeLabel(li.Find(".name").First().Text())
		if name == "" {
			return
		}
		value, unit := splitValueUnit(li.Find(".value").First().Text())
		ratio := record.New()
		ratio.Set("name", name)
		ratio.Set("value", value)
		ratio.Set("unit", unit)
		ratios = append(ratios, ratio)
	})
	return ratios
}

// splitValueUnit separates a KPI display value into its numeric text and a
// trailing unit token ("1,234 Cr." into "1234" and "Cr.").
func splitValueUnit(raw string) (string, string) {
	cleaned := textutil.CleanMetric(textutil.NormalizeLabel(raw))
	fields := strings.Fields(cleaned)
	if len(fields) < 2 {
		return cleaned, ""
	}
	last := fields[len(fields)-1]
	if _, err := strconv.ParseFloat(last, 64); err == nil {
		return cleaned, ""
	}
	return strings.Join(fields[:len(fields)-1], " "), last
}
