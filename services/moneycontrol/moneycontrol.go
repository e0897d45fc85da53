// Package moneycontrol harvests corporate-action listings and company
// metadata from the Moneycontrol stock API.
package moneycontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"stockharvest-backend/lib/record"
	"stockharvest-backend/lib/requester"
	"stockharvest-backend/services/harvester"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("services/moneycontrol")

const defaultBaseURL = "https://api.moneycontrol.com/mcapi/v1/stock"

// detailKeys are the extended identifier fields served by the scmas-details
// endpoint.
var detailKeys = []string{
	"SC_ISINID",
	"SC_BSEID",
	"SC_NOSHR",
	"SC_NSEID",
	"SC_TICKERNAME",
}

// sections is the corporate-action catalog. The API serves each listing
// under its own field name, which is not always the name the merged data is
// stored under ("dividends" pages are stored as "dividend", with the plural
// kept as an alias for older readers).
var sections = []harvester.Section{
	{Code: "an", ResultKey: "announcement"},
	{Code: "bm", ResultKey: "board_meeting"},
	{Code: "d", ResultKey: "dividend", Aliases: []string{"dividends"}},
	{Code: "s", ResultKey: "splits"},
	{Code: "r", ResultKey: "rights"},
	{Code: "ae", ResultKey: "agm_egm"},
}

// listFields maps a section code to the field its rows arrive under in the
// API response.
var listFields = map[string]string{
	"an": "announcement",
	"bm": "board_meeting",
	"d":  "dividends",
	"s":  "splits",
	"r":  "rights",
	"ae": "agm_egm",
}

type Options struct {
	// BaseURL overrides the production API root, used in tests.
	BaseURL string `json:"base_url"`
}

// Service implements harvester.Source against the Moneycontrol API and
// provides company metadata discovery.
type Service struct {
	client  *requester.Client
	baseURL string
}

func New(client *requester.Client, opts Options) *Service {
	base := opts.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Service{client: client, baseURL: base}
}

func (s *Service) Sections() []harvester.Section {
	return sections
}

// FetchPage requests one corporate-action page. 204 and 404 are clean
// no-more-data answers, as is a 200 whose body is not the expected JSON
// shape.
func (s *Service) FetchPage(ctx context.Context, target harvester.Target, section harvester.Section, page int) (harvester.Page, error) {
	if target.ID == "" {
		return harvester.Page{}, fmt.Errorf("target %q has no source id", target.Name)
	}

	res, err := s.client.Do(ctx, requester.Request{
		Method: "GET",
		URL:    s.baseURL + "/corporate-action",
		Params: map[string]string{
			"deviceType": "W",
			"scId":       target.ID,
			"section":    section.Code,
			"page":       strconv.Itoa(page),
			"appVersion": "161",
		},
		AllowedStatuses: []int{204, 404},
	})
	if err != nil {
		return harvester.Page{}, err
	}
	switch res.StatusCode() {
	case 204:
		return harvester.Page{Status: harvester.StatusEmpty}, nil
	case 404:
		return harvester.Page{Status: harvester.StatusNotFound}, nil
	}

	var payload record.Record
	if err := json.Unmarshal(res.Body(), &payload); err != nil {
		// the API answers some exhausted listings with 200 and an HTML body
		return harvester.Page{Status: harvester.StatusEmpty}, nil
	}
	data := asRecord(payload.Get("data"))
	if data == nil {
		return harvester.Page{Status: harvester.StatusEmpty}, nil
	}

	result := harvester.Page{Status: harvester.StatusOK}
	if n, ok := asInt(data.Get("pageCount")); ok {
		result.PageCount = n
	}
	rawItems, _ := data.Get(listFields[section.Code])
	list, _ := rawItems.([]any)
	for _, entry := range list {
		if item, ok := entry.(*record.Record); ok {
			result.Items = append(result.Items, item)
		}
	}
	return result, nil
}

// metadataFields maps search-result fields to the names they are stored
// under.
var metadataFields = [][2]string{
	{"id", "id"},
	{"did", "did"},
	{"shortName", "shortName"},
	{"name", "name"},
	{"PRODUCT_CATEGORY", "productCategory"},
	{"marketcap", "marketcap"},
}

// DiscoverMetadata walks every single-character alphanumeric search seed
// and indexes the returned companies by their source id. A failed seed is
// logged and skipped so one bad query does not lose the whole sweep.
func (s *Service) DiscoverMetadata(ctx context.Context) (map[string]*record.Record, error) {
	ctx, span := tracer.Start(ctx, "DiscoverMetadata")
	defer span.End()

	entries := map[string]*record.Record{}
	for _, seed := range "0123456789abcdefghijklmnopqrstuvwxyz" {
		if ctx.Err() != nil {
			return entries, ctx.Err()
		}
		res, err := s.client.Do(ctx, requester.Request{
			Method: "GET",
			URL:    s.baseURL + "/search",
			Params: map[string]string{"query": string(seed)},
		})
		if err != nil {
			slog.WarnContext(ctx, "search seed failed", "seed", string(seed), "err", err)
			continue
		}

		var payload record.Record
		if err := json.Unmarshal(res.Body(), &payload); err != nil {
			slog.WarnContext(ctx, "search seed returned non-JSON", "seed", string(seed))
			continue
		}
		rawList, _ := payload.Get("data")
		list, _ := rawList.([]any)
		for _, raw := range list {
			entry, ok := raw.(*record.Record)
			if !ok {
				continue
			}
			id := stringField(entry, "id")
			if id == "" {
				continue
			}
			kept := record.New()
			for _, f := range metadataFields {
				if v, ok := entry.Get(f[0]); ok {
					kept.Set(f[1], v)
				}
			}
			entries[id] = kept
		}
	}
	span.SetAttributes(attribute.Int("entries", len(entries)))
	return entries, nil
}

// EnrichDetails fills a metadata entry's extended identifier fields from
// the scmas-details endpoint. Already complete entries are left alone
// unless force is set. Reports whether the entry changed.
func (s *Service) EnrichDetails(ctx context.Context, entry *record.Record, force bool) (bool, error) {
	id := stringField(entry, "id")
	if id == "" {
		return false, fmt.Errorf("metadata entry has no id")
	}

	if !force && hasAllDetails(entry) {
		return false, nil
	}

	res, err := s.client.Do(ctx, requester.Request{
		Method:          "GET",
		URL:             s.baseURL + "/scmas-details",
		Params:          map[string]string{"scId": id},
		AllowedStatuses: []int{404},
	})
	if err != nil {
		return false, err
	}
	if res.StatusCode() == 404 {
		return false, nil
	}

	var payload record.Record
	if err := json.Unmarshal(res.Body(), &payload); err != nil {
		return false, fmt.Errorf("details for %q: %w", id, err)
	}
	data := asRecord(payload.Get("data"))
	if data == nil {
		return false, nil
	}

	changed := false
	for _, key := range detailKeys {
		value, _ := data.Get(key)
		if prev, ok := entry.Get(key); ok && prev == value {
			continue
		}
		entry.Set(key, value)
		changed = true
	}
	return changed, nil
}

func hasAllDetails(entry *record.Record) bool {
	for _, key := range detailKeys {
		v, ok := entry.Get(key)
		if !ok || v == nil || v == "" {
			return false
		}
	}
	return true
}

func stringField(entry *record.Record, key string) string {
	v, _ := entry.Get(key)
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return ""
}

func asRecord(v any, ok bool) *record.Record {
	if !ok {
		return nil
	}
	r, _ := v.(*record.Record)
	return r
}

func asInt(v any, ok bool) (int, bool) {
	if !ok {
		return 0, false
	}
	n, isNum := v.(json.Number)
	if !isNum {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0, false
		}
		i = int64(f)
	}
	return int(i), true
}
