package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete agent configuration
type Config struct {
	Home       string           `mapstructure:"home"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Probes     ProbesConfig     `mapstructure:"probes"`
	Geo        GeoConfig        `mapstructure:"geo"`
	Inventory  InventoryConfig  `mapstructure:"inventory"`
	Container  ContainerConfig  `mapstructure:"container"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Heartbeat  HeartbeatConfig  `mapstructure:"heartbeat"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Status     StatusConfig     `mapstructure:"status"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CacheConfig holds the staleness window of every cached fact family
type CacheConfig struct {
	HardwareTTL  time.Duration `mapstructure:"hardware_ttl"`
	NetworkTTL   time.Duration `mapstructure:"network_ttl"`
	IPTTL        time.Duration `mapstructure:"ip_ttl"`
	InventoryTTL time.Duration `mapstructure:"inventory_ttl"`
}

// ProbesConfig bounds every external call made while collecting facts
type ProbesConfig struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	ExporterURL    string        `mapstructure:"exporter_url"` // optional memory fallback
}

// GeoConfig lists public IP providers in priority order
type GeoConfig struct {
	Providers []GeoProvider `mapstructure:"providers"`
}

// GeoProvider is a single public IP / geolocation endpoint
type GeoProvider struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	Site    string `mapstructure:"site"`
	Charset string `mapstructure:"charset"` // "" or "utf-8", "gbk"
}

// InventoryConfig locates the model and dataset directories
type InventoryConfig struct {
	ModelDir   string   `mapstructure:"model_dir"`
	DatasetDir string   `mapstructure:"dataset_dir"`
	Exclude    []string `mapstructure:"exclude"`
}

// ContainerConfig points at the container runtime status tool
type ContainerConfig struct {
	Command string `mapstructure:"command"`
}

// AggregatorConfig tunes snapshot assembly
type AggregatorConfig struct {
	Workers int `mapstructure:"workers"`
}

// HeartbeatConfig controls the periodic snapshot upload
type HeartbeatConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retries  int           `mapstructure:"retries"`
	Gzip     bool          `mapstructure:"gzip"`
}

// NATSConfig contains NATS connection settings
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URLs          []string      `mapstructure:"urls"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Auth          AuthConfig    `mapstructure:"auth"`
	TLS           TLSConfig     `mapstructure:"tls"`
	JetStream     bool          `mapstructure:"jetstream"` // publish snapshots through JetStream
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
}

// AuthConfig contains NATS authentication settings
type AuthConfig struct {
	Type       string           `mapstructure:"type"` // "none", "token", "userpass", "creds", "pocketbase"
	Token      string           `mapstructure:"token"`
	Username   string           `mapstructure:"username"`
	Password   string           `mapstructure:"password"`
	CredsFile  string           `mapstructure:"creds_file"`
	PocketBase PocketBaseConfig `mapstructure:"pocketbase"`
}

// PocketBaseConfig locates the record holding this agent's NATS .creds file.
// The record is matched on DeviceIDField == install UUID.
type PocketBaseConfig struct {
	URL            string `mapstructure:"url"`
	AuthCollection string `mapstructure:"auth_collection"`
	Identity       string `mapstructure:"identity"`
	PasswordEnv    string `mapstructure:"password_env"`
	Collection     string `mapstructure:"collection"`
	DeviceIDField  string `mapstructure:"device_id_field"`
	CredsField     string `mapstructure:"creds_field"`
}

// TLSConfig contains TLS settings for the NATS connection
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// StatusConfig controls the local status HTTP server
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

var (
	subjectTokenRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	validLogLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validAuthTypes    = map[string]bool{"none": true, "token": true, "userpass": true, "creds": true, "pocketbase": true}
	validCharsets     = map[string]bool{"": true, "utf-8": true, "gbk": true}
)

// Load reads the configuration file at path. An empty path loads defaults
// and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FACTAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDerivedDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// CacheDir is where per-family cache files live
func (c *Config) CacheDir() string {
	return filepath.Join(c.Home, "cache")
}

// CredsFile resolves a relative nats.auth.creds_file against home
func (c *Config) CredsFile() string {
	if c.NATS.Auth.CredsFile == "" || filepath.IsAbs(c.NATS.Auth.CredsFile) {
		return c.NATS.Auth.CredsFile
	}
	return filepath.Join(c.Home, c.NATS.Auth.CredsFile)
}

// LockFile is the single-instance lock path
func (c *Config) LockFile() string {
	return filepath.Join(c.Home, "factagent.lock")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.hardware_ttl", 30*time.Minute)
	v.SetDefault("cache.network_ttl", 30*time.Minute)
	v.SetDefault("cache.ip_ttl", 30*time.Minute)
	v.SetDefault("cache.inventory_ttl", 10*time.Minute)

	v.SetDefault("probes.command_timeout", 30*time.Second)
	v.SetDefault("probes.http_timeout", 30*time.Second)
	v.SetDefault("probes.exporter_url", "")

	v.SetDefault("geo.providers", DefaultGeoProviders())

	v.SetDefault("container.command", "wei-docker")
	v.SetDefault("aggregator.workers", 1)

	v.SetDefault("heartbeat.enabled", false)
	v.SetDefault("heartbeat.interval", 1*time.Minute)
	v.SetDefault("heartbeat.timeout", 30*time.Second)
	v.SetDefault("heartbeat.retries", 3)
	v.SetDefault("heartbeat.gzip", false)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	v.SetDefault("nats.subject_prefix", "factagent")
	v.SetDefault("nats.auth.type", "none")
	v.SetDefault("nats.auth.pocketbase.auth_collection", "users")
	v.SetDefault("nats.auth.pocketbase.password_env", "FACTAGENT_PB_PASSWORD")
	v.SetDefault("nats.auth.pocketbase.collection", "nats_credentials")
	v.SetDefault("nats.auth.pocketbase.device_id_field", "device_id")
	v.SetDefault("nats.auth.pocketbase.creds_field", "creds")
	v.SetDefault("nats.jetstream", false)
	v.SetDefault("nats.tls.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.drain_timeout", 10*time.Second)

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.listen", "127.0.0.1:9464")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)

	UpdateConfigDefaults(v)
}

// DefaultGeoProviders returns the built-in provider list in priority order
func DefaultGeoProviders() []map[string]string {
	return []map[string]string{
		{"name": "chaxun", "url": "https://2023.ipchaxun.com", "site": "ipchaxun.com"},
		{"name": "pconline", "url": "https://whois.pconline.com.cn/ipJson.jsp?ip=&json=true", "site": "pconline.com.cn", "charset": "gbk"},
		{"name": "csdn", "url": "https://searchplugin.csdn.net/api/v1/ip/get?ip", "site": "csdn.net"},
	}
}

// applyDerivedDefaults fills values that depend on other settings
func applyDerivedDefaults(cfg *Config) {
	if cfg.Inventory.ModelDir == "" && cfg.Home != "" {
		cfg.Inventory.ModelDir = filepath.Join(cfg.Home, "model")
	}
	if cfg.Inventory.DatasetDir == "" && cfg.Home != "" {
		cfg.Inventory.DatasetDir = filepath.Join(cfg.Home, "dataset")
	}
	for i := range cfg.Geo.Providers {
		cfg.Geo.Providers[i].Charset = strings.ToLower(cfg.Geo.Providers[i].Charset)
	}
}

func validate(cfg *Config) error {
	if cfg.Home == "" {
		return fmt.Errorf("home is required")
	}

	if err := validateTTLs(&cfg.Cache); err != nil {
		return err
	}

	if cfg.Probes.CommandTimeout < 1*time.Second {
		return fmt.Errorf("probes.command_timeout must be at least 1 second")
	}
	if cfg.Probes.CommandTimeout > 5*time.Minute {
		return fmt.Errorf("probes.command_timeout must not exceed 5 minutes")
	}
	if cfg.Probes.HTTPTimeout < 1*time.Second {
		return fmt.Errorf("probes.http_timeout must be at least 1 second")
	}
	if cfg.Probes.ExporterURL != "" {
		if err := validateURL(cfg.Probes.ExporterURL); err != nil {
			return fmt.Errorf("probes.exporter_url: %w", err)
		}
	}

	for i, p := range cfg.Geo.Providers {
		if p.Name == "" || p.Site == "" {
			return fmt.Errorf("geo.providers[%d]: name and site are required", i)
		}
		if err := validateURL(p.URL); err != nil {
			return fmt.Errorf("geo.providers[%d]: %w", i, err)
		}
		if !validCharsets[p.Charset] {
			return fmt.Errorf("geo.providers[%d]: unsupported charset %q", i, p.Charset)
		}
	}

	if cfg.Container.Command == "" {
		return fmt.Errorf("container.command is required")
	}

	if cfg.Aggregator.Workers < 1 {
		return fmt.Errorf("aggregator.workers must be at least 1")
	}

	if err := validateHeartbeat(&cfg.Heartbeat); err != nil {
		return err
	}

	if cfg.NATS.Enabled {
		if err := validateNATS(&cfg.NATS); err != nil {
			return err
		}
	}

	if cfg.Status.Enabled && cfg.Status.Listen == "" {
		return fmt.Errorf("status.listen is required when status server is enabled")
	}

	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", cfg.Logging.Level)
	}
	if cfg.Logging.File == "" {
		return fmt.Errorf("logging.file is required")
	}

	return nil
}

func validateTTLs(c *CacheConfig) error {
	ttls := []struct {
		name string
		ttl  time.Duration
	}{
		{"cache.hardware_ttl", c.HardwareTTL},
		{"cache.network_ttl", c.NetworkTTL},
		{"cache.ip_ttl", c.IPTTL},
		{"cache.inventory_ttl", c.InventoryTTL},
	}
	for _, t := range ttls {
		if t.ttl < 10*time.Second {
			return fmt.Errorf("%s must be at least 10 seconds", t.name)
		}
	}
	return nil
}

func validateHeartbeat(h *HeartbeatConfig) error {
	if !h.Enabled {
		return nil
	}
	if err := validateURL(h.Endpoint); err != nil {
		return fmt.Errorf("heartbeat.endpoint: %w", err)
	}
	if h.Interval < 10*time.Second {
		return fmt.Errorf("heartbeat.interval must be at least 10 seconds")
	}
	if h.Timeout <= 0 {
		return fmt.Errorf("heartbeat.timeout must be positive")
	}
	if h.Retries < 0 || h.Retries > 10 {
		return fmt.Errorf("heartbeat.retries must be between 0 and 10")
	}
	return nil
}

func validateNATS(n *NATSConfig) error {
	if len(n.URLs) == 0 {
		return fmt.Errorf("nats.urls requires at least one URL")
	}
	if err := validateSubjectPrefix(n.SubjectPrefix); err != nil {
		return err
	}
	if !validAuthTypes[n.Auth.Type] {
		return fmt.Errorf("invalid nats.auth.type: %s", n.Auth.Type)
	}
	switch n.Auth.Type {
	case "token":
		if n.Auth.Token == "" {
			return fmt.Errorf("nats.auth.token is required for token auth")
		}
	case "userpass":
		if n.Auth.Username == "" || n.Auth.Password == "" {
			return fmt.Errorf("nats.auth.username and nats.auth.password are required for userpass auth")
		}
	case "creds":
		if n.Auth.CredsFile == "" {
			return fmt.Errorf("nats.auth.creds_file is required for creds auth")
		}
	case "pocketbase":
		if n.Auth.CredsFile == "" {
			return fmt.Errorf("nats.auth.creds_file is required for pocketbase auth")
		}
		pb := n.Auth.PocketBase
		if err := validateURL(pb.URL); err != nil {
			return fmt.Errorf("nats.auth.pocketbase.url: %w", err)
		}
		if pb.Identity == "" || pb.PasswordEnv == "" {
			return fmt.Errorf("nats.auth.pocketbase.identity and password_env are required")
		}
		if pb.Collection == "" || pb.DeviceIDField == "" || pb.CredsField == "" {
			return fmt.Errorf("nats.auth.pocketbase.collection, device_id_field and creds_field are required")
		}
	}
	if n.TLS.Enabled && (n.TLS.CertFile == "") != (n.TLS.KeyFile == "") {
		return fmt.Errorf("nats.tls.cert_file and nats.tls.key_file must be set together")
	}
	return nil
}

// validateSubjectPrefix allows dot-separated tokens of [a-zA-Z0-9_-]
func validateSubjectPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("nats.subject_prefix is required")
	}
	if strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") {
		return fmt.Errorf("nats.subject_prefix cannot start or end with a dot")
	}
	for _, token := range strings.Split(prefix, ".") {
		if token == "" {
			return fmt.Errorf("nats.subject_prefix: consecutive dots not allowed")
		}
		if !subjectTokenRegex.MatchString(token) {
			return fmt.Errorf("nats.subject_prefix token %q contains invalid characters", token)
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL host is required")
	}
	return nil
}
