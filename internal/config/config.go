package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/amazon-listing-scraper/internal/parser"
)

const (
	TransportHTTP    = "http"
	TransportBrowser = "browser"
)

type Config struct {
	Server      ServerConfig
	Scraper     ScraperConfig
	Browser     BrowserConfig
	Marketplace Marketplace
	Output      OutputConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxPages        int
}

type ScraperConfig struct {
	PageDelayMin      time.Duration
	PageDelayMax      time.Duration
	DetailDelayMin    time.Duration
	DetailDelayMax    time.Duration
	MaxPages          int
	MaxDetails        int
	FetchDetails      bool
	Policy            string
	Transport         string
	RequestsPerMinute int
	Timeout           time.Duration
	UserAgents        []string
}

type BrowserConfig struct {
	Headless       bool
	Humanize       bool
	MaxRetries     int
	ViewportWidth  int
	ViewportHeight int
	ProxyServer    string
}

type OutputConfig struct {
	Dir      string
	CSV      bool
	Snapshot bool
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
	Group    string
	Consumer string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	market, err := MarketplaceFor(getEnvOrDefault("SCRAPER_MARKETPLACE", "IN"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
			MaxPages:        getIntOrDefault("SERVER_MAX_PAGES", 50),
		},
		Scraper: ScraperConfig{
			PageDelayMin:      getDurationOrDefault("SCRAPER_PAGE_DELAY_MIN", 3*time.Second),
			PageDelayMax:      getDurationOrDefault("SCRAPER_PAGE_DELAY_MAX", 7*time.Second),
			DetailDelayMin:    getDurationOrDefault("SCRAPER_DETAIL_DELAY_MIN", 2*time.Second),
			DetailDelayMax:    getDurationOrDefault("SCRAPER_DETAIL_DELAY_MAX", 5*time.Second),
			MaxPages:          getIntOrDefault("SCRAPER_MAX_PAGES", 20),
			MaxDetails:        getIntOrDefault("SCRAPER_MAX_DETAILS", 0),
			FetchDetails:      getBoolOrDefault("SCRAPER_FETCH_DETAILS", true),
			Policy:            getEnvOrDefault("SCRAPER_POLICY", string(parser.SponsoredOnly)),
			Transport:         getEnvOrDefault("SCRAPER_TRANSPORT", TransportHTTP),
			RequestsPerMinute: getIntOrDefault("SCRAPER_REQUESTS_PER_MINUTE", 30),
			Timeout:           getDurationOrDefault("SCRAPER_TIMEOUT", 30*time.Second),
			UserAgents:        getStringSliceOrDefault("SCRAPER_USER_AGENTS", defaultUserAgents()),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Humanize:       getBoolOrDefault("BROWSER_HUMANIZE", true),
			MaxRetries:     getIntOrDefault("BROWSER_MAX_RETRIES", 3),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Marketplace: market,
		Output: OutputConfig{
			Dir:      getEnvOrDefault("OUTPUT_DIR", "amazon_scrape_results"),
			CSV:      getBoolOrDefault("OUTPUT_CSV", true),
			Snapshot: getBoolOrDefault("OUTPUT_SNAPSHOT", false),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "amazon_listings"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:listings"),
			MaxLen:   int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 10000)),
			Group:    getEnvOrDefault("REDIS_CONSUMER_GROUP", "listing-consumer-group"),
			Consumer: getEnvOrDefault("REDIS_CONSUMER_NAME", "consumer-1"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.PageDelayMin < 0 || c.Scraper.DetailDelayMin < 0 {
		return fmt.Errorf("scraper delays must not be negative")
	}

	if c.Scraper.PageDelayMin > c.Scraper.PageDelayMax {
		return fmt.Errorf("SCRAPER_PAGE_DELAY_MIN cannot be greater than SCRAPER_PAGE_DELAY_MAX")
	}

	if c.Scraper.DetailDelayMin > c.Scraper.DetailDelayMax {
		return fmt.Errorf("SCRAPER_DETAIL_DELAY_MIN cannot be greater than SCRAPER_DETAIL_DELAY_MAX")
	}

	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be at least 1")
	}

	if c.Scraper.MaxDetails < 0 {
		return fmt.Errorf("SCRAPER_MAX_DETAILS must not be negative")
	}

	if _, err := parser.ParseAdmissionPolicy(c.Scraper.Policy); err != nil {
		return fmt.Errorf("SCRAPER_POLICY: %w", err)
	}

	switch c.Scraper.Transport {
	case TransportHTTP, TransportBrowser:
	default:
		return fmt.Errorf("SCRAPER_TRANSPORT must be %q or %q, got %q", TransportHTTP, TransportBrowser, c.Scraper.Transport)
	}

	if c.Output.Dir == "" && (c.Output.CSV || c.Output.Snapshot) {
		return fmt.Errorf("OUTPUT_DIR is required when file output is enabled")
	}

	if c.Database.Enabled && c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required when the database sink is enabled")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when the stream publisher is enabled")
	}

	return nil
}

// Site returns the parser's view of the configured marketplace.
func (c *Config) Site() parser.Site {
	return c.Marketplace.Site()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
