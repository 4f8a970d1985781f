// Package config loads and validates web connector configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

// EnvPrefix is prepended to every environment override, e.g.
// WEBCONNECTOR_CONNECTOR_BASE_URL.
const EnvPrefix = "WEBCONNECTOR"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Connector ConnectorConfig `mapstructure:"connector"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	DB        DBConfig        `mapstructure:"db"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Output    OutputConfig    `mapstructure:"output"`
}

// ConnectorConfig selects what to crawl.
type ConnectorConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Mode            string `mapstructure:"mode"`
	MintlifyCleanup bool   `mapstructure:"mintlify_cleanup"`
	BatchSize       int    `mapstructure:"batch_size"`
	// ConnectorID and CredentialID are nil when not configured; zero is a
	// valid ID.
	ConnectorID  *int64 `mapstructure:"connector_id"`
	CredentialID *int64 `mapstructure:"credential_id"`
}

// CrawlerConfig governs fetch behavior.
type CrawlerConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	DefaultRetryAfter time.Duration `mapstructure:"default_retry_after"`
	MaxRedirectHops   int           `mapstructure:"max_redirect_hops"`
	HostQPS           float64       `mapstructure:"host_qps"`
	MaxBodyBytes      int           `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the rendering sessions.
type HeadlessConfig struct {
	Headful    bool          `mapstructure:"headful"`
	NavTimeout time.Duration `mapstructure:"nav_timeout"`
}

// OAuthConfig holds optional client-credentials settings.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
}

// Enabled reports whether all three OAuth settings are present.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != "" && o.TokenURL != ""
}

// DBConfig controls access to the document index database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig enables the metrics/health listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// OutputConfig selects where emitted batches are written.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// NewViper returns a Viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional config file at path into v and unmarshals it.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Connector.ConnectorID = optionalInt64(v, "connector.connector_id")
	cfg.Connector.CredentialID = optionalInt64(v, "connector.credential_id")
	return cfg, nil
}

// optionalInt64 reads key only when a file, env var or changed flag sets it.
// Unchanged flag defaults do not count.
func optionalInt64(v *viper.Viper, key string) *int64 {
	if !v.IsSet(key) {
		return nil
	}
	id := v.GetInt64(key)
	return &id
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("connector.mode", string(crawler.ModeRecursive))
	v.SetDefault("connector.mintlify_cleanup", true)
	v.SetDefault("connector.batch_size", 16)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.probe_timeout", 3*time.Second)
	v.SetDefault("crawler.request_timeout", 30*time.Second)
	v.SetDefault("crawler.default_retry_after", 5*time.Second)
	v.SetDefault("crawler.max_redirect_hops", 5)
	v.SetDefault("crawler.host_qps", 0)
	v.SetDefault("crawler.max_body_bytes", 50<<20)
	v.SetDefault("headless.headful", false)
	v.SetDefault("headless.nav_timeout", 0)
	v.SetDefault("db.table", "document_by_connector_credential_pair")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("output.path", "-")
}

// Validate enforces the values every command needs.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Connector.BaseURL) == "" {
		errs = append(errs, errors.New("connector.base_url is required"))
	}
	if _, err := crawler.ParseMode(c.Connector.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.Connector.BatchSize <= 0 {
		errs = append(errs, errors.New("connector.batch_size must be > 0"))
	}
	if c.Crawler.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("crawler.probe_timeout must be > 0"))
	}
	if c.Crawler.RequestTimeout <= 0 {
		errs = append(errs, errors.New("crawler.request_timeout must be > 0"))
	}
	if c.Crawler.MaxRedirectHops < 0 {
		errs = append(errs, errors.New("crawler.max_redirect_hops must be >= 0"))
	}
	if c.Crawler.HostQPS < 0 {
		errs = append(errs, errors.New("crawler.host_qps must be >= 0"))
	}
	oauthSet := c.OAuth.ClientID != "" || c.OAuth.ClientSecret != "" || c.OAuth.TokenURL != ""
	if oauthSet && !c.OAuth.Enabled() {
		errs = append(errs, errors.New("oauth.client_id, oauth.client_secret and oauth.token_url must be set together"))
	}
	return errors.Join(errs...)
}

// ValidateSlim adds the requirements of the slim reconciliation command.
func (c Config) ValidateSlim() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn is required for slim reconciliation"))
	}
	if c.Connector.ConnectorID == nil || c.Connector.CredentialID == nil {
		errs = append(errs, crawler.ErrMissingPairIDs)
	}
	return errors.Join(errs...)
}
