// Package screener scrapes company fundamentals (top-ratio KPIs and the
// financial statement tables) from a Screener-style HTML site.
package screener

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockharvest-backend/lib/record"
	"stockharvest-backend/lib/requester"
	"stockharvest-backend/lib/telemetry"
	"stockharvest-backend/services/harvester"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/screener")

const defaultBaseURL = "https://www.screener.in"

// Sections are the statement tables scraped from a company page, in page
// order.
var Sections = []string{
	"quarters",
	"profit-loss",
	"balance-sheet",
	"cash-flow",
	"ratios",
}

// NewRestyClient builds the HTTP client the service expects: bot-protection
// bypass transport, a browser user-agent, and tracing.
func NewRestyClient() *resty.Client {
	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "services/screener/http")
	return client
}

type Options struct {
	// BaseURL overrides the production site root, used in tests.
	BaseURL string `json:"base_url"`
	// Consolidated selects the consolidated statement variant of each
	// company page.
	Consolidated bool `json:"consolidated"`
}

type Service struct {
	client *requester.Client
	opts   Options
}

func New(client *requester.Client, opts Options) *Service {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	return &Service{client: client, opts: opts}
}

// Metadata identifies one scraped company and how its page was reached.
type Metadata struct {
	CompanyName string
	CompanyID   string
	// Slug is the canonical slug the site redirected to.
	Slug string
	// SlugSource records which identifier produced the working slug, "BSE"
	// or "NSE".
	SlugSource string
	BSE        string
	NSE        string
	ISIN       string
}

// CompanyResult is everything scraped off one company page.
type CompanyResult struct {
	Metadata  Metadata
	TopRatios []*record.Record
	// Sections maps a section name to its table rows.
	Sections map[string][]*record.Record
}

// fetchCompanyPage loads a company page by slug and reports the canonical
// URL the site settled on.
func (s *Service) fetchCompanyPage(ctx context.Context, slug string) (string, *goquery.Document, error) {
	url := fmt.Sprintf("%s/company/%s/", s.opts.BaseURL, slug)
	if s.opts.Consolidated {
		url += "consolidated/"
	}
	res, err := s.client.Do(ctx, requester.Request{Method: "GET", URL: url})
	if err != nil {
		return "", nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return "", nil, err
	}
	finalURL := url
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalURL = res.RawResponse.Request.URL.String()
	}
	return finalURL, doc, nil
}

// SlugFromURL extracts the company slug from a canonical company URL.
func SlugFromURL(url string) string {
	cleaned := strings.TrimRight(url, "/")
	_, tail, found := strings.Cut(cleaned, "/company/")
	if !found {
		parts := strings.Split(cleaned, "/")
		return parts[len(parts)-1]
	}
	slug, _, _ := strings.Cut(tail, "/")
	return slug
}

func companyID(doc *goquery.Document) (string, error) {
	id, ok := doc.Find("div#company-info").Attr("data-company-id")
	if !ok || id == "" {
		return "", errors.New("could not locate company id on page")
	}
	return id, nil
}

// fetchChildSchedule loads the breakdown rows behind a "+"-suffixed parent
// metric. A 404 means the parent has no schedule.
func (s *Service) fetchChildSchedule(ctx context.Context, companyID, section, parent string) (*record.Record, error) {
	consolidated := ""
	if !s.opts.Consolidated {
		consolidated = "0"
	}
	res, err := s.client.Do(ctx, requester.Request{
		Method: "GET",
		URL:    fmt.Sprintf("%s/api/company/%s/schedules/", s.opts.BaseURL, companyID),
		Params: map[string]string{
			"parent":       parent,
			"section":      section,
			"consolidated": consolidated,
		},
		AllowedStatuses: []int{404},
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != 200 {
		return nil, nil
	}
	var schedule record.Record
	if err := json.Unmarshal(res.Body(), &schedule); err != nil {
		return nil, nil
	}
	return &schedule, nil
}

// HarvestCompany scrapes one company, trying each slug candidate (BSE code
// first, then NSE code) until a page resolves. A candidate that 404s falls
// through to the next; any other failure is terminal.
func (s *Service) HarvestCompany(ctx context.Context, target harvester.Target) (CompanyResult, error) {
	ctx, span := tracer.Start(ctx, "HarvestCompany")
	defer span.End()
	span.SetAttributes(attribute.String("name", target.Name))

	var candidates [][2]string
	if target.BSE != "" {
		candidates = append(candidates, [2]string{"BSE", target.BSE})
	}
	if target.NSE != "" && !strings.EqualFold(target.NSE, "NA") {
		candidates = append(candidates, [2]string{"NSE", target.NSE})
	}
	if len(candidates) == 0 {
		return CompanyResult{}, fmt.Errorf("company %q has no usable slug candidate", target.Name)
	}

	var lastErr error
	for _, candidate := range candidates {
		result, err := s.harvestBySlug(ctx, target, candidate[0], candidate[1])
		if err == nil {
			return result, nil
		}
		lastErr = err

		var statusErr *requester.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
			// unknown slug, the next identifier may still resolve
			continue
		}
		break
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "company harvest failed")
	return CompanyResult{}, lastErr
}

func (s *Service) harvestBySlug(ctx context.Context, target harvester.Target, source, slug string) (CompanyResult, error) {
	finalURL, doc, err := s.fetchCompanyPage(ctx, slug)
	if err != nil {
		return CompanyResult{}, err
	}
	id, err := companyID(doc)
	if err != nil {
		return CompanyResult{}, err
	}

	sections := map[string][]*record.Record{}
	for _, section := range Sections {
		rows, err := s.parseSectionTable(ctx, doc, id, section)
		if err != nil {
			return CompanyResult{}, err
		}
		if len(rows) > 0 {
			sections[section] = rows
		}
	}
	if len(sections) == 0 {
		return CompanyResult{}, fmt.Errorf("no statement tables on page for slug %q", slug)
	}

	return CompanyResult{
		Metadata: Metadata{
			CompanyName: target.Name,
			CompanyID:   id,
			Slug:        SlugFromURL(finalURL),
			SlugSource:  source,
			BSE:         target.BSE,
			NSE:         target.NSE,
			ISIN:        target.ISIN,
		},
		TopRatios: parseTopRatios(doc),
		Sections:  sections,
	}, nil
}
