package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Home: "/var/lib/factagent",
		Cache: CacheConfig{
			HardwareTTL:  30 * time.Minute,
			NetworkTTL:   30 * time.Minute,
			IPTTL:        30 * time.Minute,
			InventoryTTL: 10 * time.Minute,
		},
		Probes: ProbesConfig{
			CommandTimeout: 30 * time.Second,
			HTTPTimeout:    30 * time.Second,
		},
		Geo: GeoConfig{Providers: []GeoProvider{
			{Name: "chaxun", URL: "https://2023.ipchaxun.com", Site: "ipchaxun.com"},
		}},
		Container:  ContainerConfig{Command: "wei-docker"},
		Aggregator: AggregatorConfig{Workers: 1},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "test.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// TestValidate tests configuration validation rules
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errText string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing home",
			mutate:  func(c *Config) { c.Home = "" },
			wantErr: true,
			errText: "home is required",
		},
		{
			name:    "ttl too short",
			mutate:  func(c *Config) { c.Cache.InventoryTTL = time.Second },
			wantErr: true,
			errText: "cache.inventory_ttl must be at least 10 seconds",
		},
		{
			name:    "command timeout too short",
			mutate:  func(c *Config) { c.Probes.CommandTimeout = 100 * time.Millisecond },
			wantErr: true,
			errText: "at least 1 second",
		},
		{
			name:    "command timeout too long",
			mutate:  func(c *Config) { c.Probes.CommandTimeout = 10 * time.Minute },
			wantErr: true,
			errText: "must not exceed 5 minutes",
		},
		{
			name:    "bad exporter url",
			mutate:  func(c *Config) { c.Probes.ExporterURL = "ftp://localhost/metrics" },
			wantErr: true,
			errText: "scheme must be http or https",
		},
		{
			name: "geo provider without site",
			mutate: func(c *Config) {
				c.Geo.Providers = []GeoProvider{{Name: "x", URL: "https://example.com"}}
			},
			wantErr: true,
			errText: "name and site are required",
		},
		{
			name: "geo provider with unknown charset",
			mutate: func(c *Config) {
				c.Geo.Providers[0].Charset = "latin1"
			},
			wantErr: true,
			errText: "unsupported charset",
		},
		{
			name:    "no container command",
			mutate:  func(c *Config) { c.Container.Command = "" },
			wantErr: true,
			errText: "container.command is required",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Aggregator.Workers = 0 },
			wantErr: true,
			errText: "aggregator.workers",
		},
		{
			name: "heartbeat without endpoint",
			mutate: func(c *Config) {
				c.Heartbeat = HeartbeatConfig{Enabled: true, Interval: time.Minute, Timeout: time.Second}
			},
			wantErr: true,
			errText: "heartbeat.endpoint",
		},
		{
			name: "heartbeat interval too short",
			mutate: func(c *Config) {
				c.Heartbeat = HeartbeatConfig{Enabled: true, Endpoint: "https://example.com/hb", Interval: time.Second, Timeout: time.Second}
			},
			wantErr: true,
			errText: "at least 10 seconds",
		},
		{
			name: "valid heartbeat",
			mutate: func(c *Config) {
				c.Heartbeat = HeartbeatConfig{Enabled: true, Endpoint: "https://example.com/hb", Interval: time.Minute, Timeout: time.Second, Retries: 3}
			},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
			errText: "invalid logging.level",
		},
		{
			name:    "status enabled without listen",
			mutate:  func(c *Config) { c.Status = StatusConfig{Enabled: true} },
			wantErr: true,
			errText: "status.listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
			}
		})
	}
}

// TestValidateNATS tests subject prefix and auth validation
func TestValidateNATS(t *testing.T) {
	tests := []struct {
		name    string
		nats    NATSConfig
		wantErr bool
		errText string
	}{
		{
			name: "hierarchical prefix",
			nats: NATSConfig{Enabled: true, URLs: []string{"nats://localhost:4222"}, SubjectPrefix: "region.dev.facts", Auth: AuthConfig{Type: "none"}},
		},
		{
			name:    "leading dot",
			nats:    NATSConfig{Enabled: true, URLs: []string{"nats://localhost:4222"}, SubjectPrefix: ".facts", Auth: AuthConfig{Type: "none"}},
			wantErr: true,
			errText: "cannot start or end with a dot",
		},
		{
			name:    "consecutive dots",
			nats:    NATSConfig{Enabled: true, URLs: []string{"nats://localhost:4222"}, SubjectPrefix: "a..b", Auth: AuthConfig{Type: "none"}},
			wantErr: true,
			errText: "consecutive dots not allowed",
		},
		{
			name:    "invalid characters",
			nats:    NATSConfig{Enabled: true, URLs: []string{"nats://localhost:4222"}, SubjectPrefix: "fa@cts", Auth: AuthConfig{Type: "none"}},
			wantErr: true,
			errText: "contains invalid characters",
		},
		{
			name:    "token auth without token",
			nats:    NATSConfig{Enabled: true, URLs: []string{"nats://localhost:4222"}, SubjectPrefix: "facts", Auth: AuthConfig{Type: "token"}},
			wantErr: true,
			errText: "nats.auth.token is required",
		},
		{
			name:    "unknown auth",
			nats:    NATSConfig{Enabled: true, URLs: []string{"nats://localhost:4222"}, SubjectPrefix: "facts", Auth: AuthConfig{Type: "jwt"}},
			wantErr: true,
			errText: "invalid nats.auth.type",
		},
		{
			name: "tls cert without key",
			nats: NATSConfig{Enabled: true, URLs: []string{"nats://localhost:4222"}, SubjectPrefix: "facts", Auth: AuthConfig{Type: "none"},
				TLS: TLSConfig{Enabled: true, CertFile: "/etc/factagent/client.crt"}},
			wantErr: true,
			errText: "must be set together",
		},
		{
			name: "pocketbase auth",
			nats: NATSConfig{Enabled: true, URLs: []string{"nats://localhost:4222"}, SubjectPrefix: "facts",
				Auth: AuthConfig{Type: "pocketbase", CredsFile: "agent.creds", PocketBase: PocketBaseConfig{
					URL: "https://pb.example.com", Identity: "agent@example.com", PasswordEnv: "PB_PASS",
					Collection: "nats_credentials", DeviceIDField: "device_id", CredsField: "creds",
				}}},
		},
		{
			name: "pocketbase auth without url",
			nats: NATSConfig{Enabled: true, URLs: []string{"nats://localhost:4222"}, SubjectPrefix: "facts",
				Auth: AuthConfig{Type: "pocketbase", CredsFile: "agent.creds"}},
			wantErr: true,
			errText: "nats.auth.pocketbase.url",
		},
		{
			name:    "no urls",
			nats:    NATSConfig{Enabled: true, SubjectPrefix: "facts", Auth: AuthConfig{Type: "none"}},
			wantErr: true,
			errText: "at least one URL",
		},
		{
			name: "disabled nats is not validated",
			nats: NATSConfig{Enabled: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.NATS = tt.nats

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
			}
		})
	}
}

// TestLoadFromFile tests loading YAML with defaults filled in
func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
home: ` + filepath.ToSlash(dir) + `
cache:
  inventory_ttl: 5m
logging:
  level: debug
  file: ` + filepath.ToSlash(filepath.Join(dir, "agent.log")) + `
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Cache.InventoryTTL != 5*time.Minute {
		t.Errorf("InventoryTTL = %v, want 5m", cfg.Cache.InventoryTTL)
	}
	if cfg.Cache.HardwareTTL != 30*time.Minute {
		t.Errorf("HardwareTTL = %v, want 30m default", cfg.Cache.HardwareTTL)
	}
	if cfg.Probes.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v, want 30s default", cfg.Probes.HTTPTimeout)
	}
	if len(cfg.Geo.Providers) != 3 {
		t.Fatalf("Geo.Providers = %d, want 3 defaults", len(cfg.Geo.Providers))
	}
	order := []string{"chaxun", "pconline", "csdn"}
	for i, name := range order {
		if cfg.Geo.Providers[i].Name != name {
			t.Errorf("provider[%d] = %s, want %s", i, cfg.Geo.Providers[i].Name, name)
		}
	}
	if cfg.Geo.Providers[1].Charset != "gbk" {
		t.Errorf("pconline charset = %q, want gbk", cfg.Geo.Providers[1].Charset)
	}
	if cfg.Inventory.ModelDir != filepath.Join(cfg.Home, "model") {
		t.Errorf("ModelDir = %s, want under home", cfg.Inventory.ModelDir)
	}
	if cfg.CacheDir() != filepath.Join(cfg.Home, "cache") {
		t.Errorf("CacheDir() = %s", cfg.CacheDir())
	}
}

// TestLoadMissingFile tests that a missing config file is an error
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
