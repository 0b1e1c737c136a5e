package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

type Config struct {
	// OutFile is where the CSV is written. It is truncated at startup.
	OutFile string `envconfig:"OUT_FILE" default:"recently_sold.csv"`

	// LookbackDays bounds how far back sold records are searched.
	LookbackDays int `envconfig:"LOOKBACK_DAYS" default:"90"`

	// RegionMin and RegionMax are the inclusive region identifier range.
	RegionMin int `envconfig:"REGION_MIN" default:"243"`
	RegionMax int `envconfig:"REGION_MAX" default:"35952"`

	// Workers maps to WORKERS. 1 keeps the run strictly sequential.
	Workers int `envconfig:"WORKERS" default:"1"`

	BaseURL    string `envconfig:"BASE_URL" default:"https://www.redfin.com/stingray/do/gis-search"`
	ResultCap  int    `envconfig:"RESULT_CAP" default:"10000"`
	RegionType int    `envconfig:"REGION_TYPE" default:"6"`
	UserAgent  string `envconfig:"USER_AGENT" default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/42.0.2311.90 Safari/537.36"`

	// HTTPTimeout of 0 leaves the client without a timeout.
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"0"`

	// RateLimit is the minimum gap between requests to one host. 0 disables it.
	RateLimit time.Duration `envconfig:"RATE_LIMIT" default:"0"`

	// RespectRobots adds a robots.txt check before the search request. Off by
	// default: the search endpoint is meant for programmatic clients.
	RespectRobots bool   `envconfig:"RESPECT_ROBOTS" default:"false"`
	FetchMode     string `envconfig:"FETCH_MODE" default:"http"`
	Headless      bool   `envconfig:"HEADLESS" default:"true"`

	// Optional mirrors. Empty disables them.
	DatabaseURL string `envconfig:"DB_URL"`

	// Rows bound for Postgres are written in batches of DBBatchSize, or
	// whatever has accumulated after DBBatchTimeout.
	DBBatchSize    int           `envconfig:"DB_BATCH_SIZE" default:"100"`
	DBBatchTimeout time.Duration `envconfig:"DB_BATCH_TIMEOUT" default:"1s"`

	NATSURL     string `envconfig:"NATS_URL"`
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"sold.properties"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	// TraceExporter is "" (spans propagate but are not exported) or "stdout".
	TraceExporter string `envconfig:"TRACE_EXPORTER"`

	ProgressEvery int `envconfig:"PROGRESS_EVERY" default:"100"`
}

// Load processes environment variables and populates the Config struct.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			log.Printf("Warning: .env file found but could not be loaded: %v", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BindFlags registers command line overrides for the run parameters. Call
// fs.Parse afterwards; flags win over the environment.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.OutFile, "out", c.OutFile, "Output CSV file")
	fs.IntVar(&c.LookbackDays, "days", c.LookbackDays, "Sold-within window in days")
	fs.IntVar(&c.RegionMin, "from", c.RegionMin, "First region id (inclusive)")
	fs.IntVar(&c.RegionMax, "to", c.RegionMax, "Last region id (inclusive)")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Number of concurrent fetch workers")
}

// Validate rejects settings the run cannot honor.
func (c *Config) Validate() error {
	if c.OutFile == "" {
		return fmt.Errorf("OUT_FILE must not be empty")
	}
	if c.RegionMin > c.RegionMax {
		return fmt.Errorf("invalid region range [%d, %d]", c.RegionMin, c.RegionMax)
	}
	if c.LookbackDays < 0 {
		return fmt.Errorf("LOOKBACK_DAYS must be non-negative, got %d", c.LookbackDays)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.ResultCap < 1 {
		return fmt.Errorf("RESULT_CAP must be at least 1, got %d", c.ResultCap)
	}
	switch c.FetchMode {
	case FetchModeHTTP, FetchModeBrowser:
	default:
		return fmt.Errorf("unknown FETCH_MODE %q", c.FetchMode)
	}
	switch c.TraceExporter {
	case "", "stdout":
	default:
		return fmt.Errorf("unknown TRACE_EXPORTER %q", c.TraceExporter)
	}
	return nil
}

// Regions is the number of region identifiers in the configured range.
func (c *Config) Regions() int {
	return c.RegionMax - c.RegionMin + 1
}
