package commands

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"stockharvest-backend/lib/configutil"
	"stockharvest-backend/lib/configutil/sqlitedb"
	"stockharvest-backend/lib/proxy"
	"stockharvest-backend/lib/ratelimit"
	"stockharvest-backend/lib/record"
	"stockharvest-backend/lib/requester"
	"stockharvest-backend/lib/serviceutil"
	"stockharvest-backend/services/harvester"
	"stockharvest-backend/services/harvester/db"
	"stockharvest-backend/services/moneycontrol"
	"stockharvest-backend/services/screener"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Database  sqlitedb.Struct   `json:"database"`
	RateLimit ratelimit.Options `json:"rate_limit"`
	Request   requester.Options `json:"request"`
	// ProxyFile is an optional path to a newline-separated proxy list.
	ProxyFile string `json:"proxy_file"`
	// PageDelay and SectionDelay are extra pauses in seconds between pages
	// of one section and between sections of one target.
	PageDelaySeconds    float64 `json:"page_delay_seconds"`
	SectionDelaySeconds float64 `json:"section_delay_seconds"`
	// ExceptionsFile collects the identity keys of failed targets.
	ExceptionsFile string `json:"exceptions_file"`
	// FuzzyNames enables the name-similarity fallback for index
	// constituents that match no exchange identifier.
	FuzzyNames bool `json:"fuzzy_names"`

	Moneycontrol moneycontrol.Options  `json:"moneycontrol"`
	Screener     screener.Options      `json:"screener"`
	Email        harvester.EmailConfig `json:"email"`
}

var rootCmd = &cobra.Command{
	Use:   "harvestd",
	Short: "harvestd pulls corporate actions and fundamentals into a snapshot store.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config.json5", err)
	}
	if cfg.ExceptionsFile == "" {
		cfg.ExceptionsFile = "exceptions.txt"
	}
	return cfg
}

func openStore(cfg Config) (*harvester.SnapshotStore, *sql.DB) {
	database, err := cfg.Database.OpenDB(db.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open snapshot database", err)
	}
	return harvester.NewSnapshotStore(db.New(database)), database
}

func newRequester(cfg Config, httpClient *resty.Client) *requester.Client {
	var proxies *proxy.Rotator
	if cfg.ProxyFile != "" {
		list, err := proxy.LoadFile(cfg.ProxyFile)
		if err != nil {
			serviceutil.Fatal("failed to read proxy list", err)
		}
		proxies = proxy.New(list)
	}
	return requester.New(httpClient, ratelimit.New(cfg.RateLimit), proxies, cfg.Request)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// resolveTargets turns an index argument into the target list. "all" means
// every stored company; anything else is a path to a constituents file
// (one "BSE,NSE" pair or bare identifier per line).
func resolveTargets(ctx context.Context, store *harvester.SnapshotStore, index string, fuzzyNames bool) ([]harvester.Target, error) {
	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	var entries []*record.Record
	for _, doc := range docs {
		entries = append(entries, doc)
	}
	lookup := harvester.BuildLookup(entries)

	if strings.EqualFold(index, "all") {
		return harvester.AllTargets(lookup), nil
	}

	descriptors, err := readIndexFile(index)
	if err != nil {
		return nil, err
	}
	return harvester.ResolveTargets(descriptors, lookup, harvester.ResolveOptions{FuzzyNames: fuzzyNames})
}

func readIndexFile(path string) ([]harvester.Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve index %q: %w", path, err)
	}
	defer f.Close()

	var descriptors []harvester.Descriptor
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		descriptors = append(descriptors, harvester.ParseDescriptor(line))
	}
	return descriptors, scanner.Err()
}
