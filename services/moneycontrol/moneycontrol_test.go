package moneycontrol

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"stockharvest-backend/lib/record"
	"stockharvest-backend/lib/requester"
	"stockharvest-backend/services/harvester"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.Handler) *Service {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := requester.New(resty.New(), nil, nil, requester.Options{RetryLimit: 1})
	return New(client, Options{BaseURL: server.URL})
}

func dividendSection(t *testing.T) harvester.Section {
	t.Helper()
	for _, s := range sections {
		if s.Code == "d" {
			return s
		}
	}
	t.Fatal("no dividend section in catalog")
	return harvester.Section{}
}

func TestFetchPageParsesListing(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/corporate-action", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "W", q.Get("deviceType"))
		require.Equal(t, "RI", q.Get("scId"))
		require.Equal(t, "d", q.Get("section"))
		require.Equal(t, "1", q.Get("page"))
		require.Equal(t, "161", q.Get("appVersion"))
		fmt.Fprint(w, `{"data":{"pageCount":3,"dividends":[{"symbol":"RI","value":2.5},{"symbol":"RI","value":1}]}}`)
	}))

	page, err := svc.FetchPage(context.Background(), harvester.Target{ID: "RI"}, dividendSection(t), 1)
	require.NoError(t, err)
	require.Equal(t, harvester.StatusOK, page.Status)
	require.Equal(t, 3, page.PageCount)
	require.Len(t, page.Items, 2)
}

func TestFetchPageTerminalStatuses(t *testing.T) {
	status := http.StatusNoContent
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	page, err := svc.FetchPage(context.Background(), harvester.Target{ID: "RI"}, dividendSection(t), 1)
	require.NoError(t, err)
	require.Equal(t, harvester.StatusEmpty, page.Status)

	status = http.StatusNotFound
	page, err = svc.FetchPage(context.Background(), harvester.Target{ID: "RI"}, dividendSection(t), 1)
	require.NoError(t, err)
	require.Equal(t, harvester.StatusNotFound, page.Status)
}

func TestFetchPageNonJSONBodyIsEmpty(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>exhausted</html>")
	}))

	page, err := svc.FetchPage(context.Background(), harvester.Target{ID: "RI"}, dividendSection(t), 1)
	require.NoError(t, err)
	require.Equal(t, harvester.StatusEmpty, page.Status)
}

func TestFetchPageRequiresSourceID(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	_, err := svc.FetchPage(context.Background(), harvester.Target{Name: "No ID"}, dividendSection(t), 1)
	require.Error(t, err)
}

func TestDiscoverMetadata(t *testing.T) {
	var queries []string
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query().Get("query")
		queries = append(queries, q)
		if q == "r" {
			fmt.Fprint(w, `{"data":[{"id":"RI","name":"Reliance Industries","PRODUCT_CATEGORY":"stock","marketcap":100},{"name":"no id, dropped"}]}`)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))

	entries, err := svc.DiscoverMetadata(context.Background())
	require.NoError(t, err)
	require.Len(t, queries, 36, "every alphanumeric seed is queried")
	require.Len(t, entries, 1)

	ri := entries["RI"]
	require.NotNil(t, ri)
	name, _ := ri.Get("name")
	require.Equal(t, "Reliance Industries", name)
	category, _ := ri.Get("productCategory")
	require.Equal(t, "stock", category)
}

func TestEnrichDetails(t *testing.T) {
	calls := 0
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scmas-details", r.URL.Path)
		require.Equal(t, "RI", r.URL.Query().Get("scId"))
		calls++
		fmt.Fprint(w, `{"data":{"SC_ISINID":"INE002A01018","SC_BSEID":"500325","SC_NOSHR":"6766","SC_NSEID":"RELIANCE","SC_TICKERNAME":"RIL"}}`)
	}))

	entry := record.New()
	entry.Set("id", "RI")

	changed, err := svc.EnrichDetails(context.Background(), entry, false)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 1, calls)

	bse, _ := entry.Get("SC_BSEID")
	require.Equal(t, "500325", bse)

	// complete entries are served from cache
	changed, err = svc.EnrichDetails(context.Background(), entry, false)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, 1, calls)

	// force goes back to the endpoint
	_, err = svc.EnrichDetails(context.Background(), entry, true)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestEnrichDetailsMissingListing(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	entry := record.New()
	entry.Set("id", "GONE")

	changed, err := svc.EnrichDetails(context.Background(), entry, false)
	require.NoError(t, err)
	require.False(t, changed)
}
