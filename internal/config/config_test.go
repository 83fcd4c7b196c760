package config

import (
	"strings"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		wantPanic bool
	}{
		{
			name:  "variable set",
			key:   "CAPSULE_TEST_VAR",
			value: "test_value",
		},
		{
			name:      "variable not set",
			key:       "CAPSULE_TEST_VAR_MISSING",
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.value {
				t.Errorf("requireEnv() = %v, want %v", result, tt.value)
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{"valid duration", "90s", time.Second, 90 * time.Second},
		{"invalid duration uses default", "soon", 10 * time.Second, 10 * time.Second},
		{"missing variable uses default", "", 15 * time.Second, 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("CAPSULE_TEST_DURATION", tt.value)
			}
			if got := mustDuration("CAPSULE_TEST_DURATION", tt.def); got != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetenvInt64(t *testing.T) {
	t.Setenv("CAPSULE_TEST_BYTES", "52428800")
	if got := getenvInt64("CAPSULE_TEST_BYTES", 1); got != 50<<20 {
		t.Errorf("getenvInt64() = %d, want %d", got, 50<<20)
	}
	t.Setenv("CAPSULE_TEST_BYTES", "lots")
	if got := getenvInt64("CAPSULE_TEST_BYTES", 7); got != 7 {
		t.Errorf("getenvInt64() with invalid value = %d, want default 7", got)
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected []string
	}{
		{"empty", "", nil},
		{"single", "10.0.0.0/8", []string{"10.0.0.0/8"}},
		{"spaces and quotes", ` "a" , 'b',c `, []string{"a", "b", "c"}},
		{"empty entries dropped", "a,,b, ,", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseList(tt.in)
			if len(got) != len(tt.expected) {
				t.Fatalf("parseList(%q) = %v, want %v", tt.in, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("parseList(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		LogLevel:        "info",
		JWTSecret:       "secret",
		DeliveryMode:    DeliveryAttempted,
		Transport:       TransportLog,
		SweepInterval:   time.Minute,
		SweepBatchSize:  10,
		SweepLeaseTTL:   2 * time.Minute,
		WebhookTimeout:  10 * time.Second,
		MaxMediaN:       10,
		MaxMediaSize:    1 << 20,
		DefaultTimezone: "UTC",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"confirmed delivery", func(c *Config) { c.DeliveryMode = DeliveryConfirmed }, ""},
		{"no auth source", func(c *Config) { c.JWTSecret = "" }, "CAPSULE_JWT_SECRET"},
		{"jwks only", func(c *Config) { c.JWTSecret = ""; c.JWKSURL = "https://idp/jwks" }, ""},
		{"unknown delivery mode", func(c *Config) { c.DeliveryMode = "maybe" }, "CAPSULE_DELIVERY_MODE"},
		{"webhook without url", func(c *Config) { c.Transport = TransportWebhook }, "CAPSULE_NOTIFY_WEBHOOK_URL"},
		{"unknown transport", func(c *Config) { c.Transport = "pigeon" }, "CAPSULE_NOTIFY_TRANSPORT"},
		{"zero interval", func(c *Config) { c.SweepInterval = 0 }, "CAPSULE_SWEEP_INTERVAL"},
		{"zero lease ttl", func(c *Config) { c.SweepLeaseTTL = 0 }, "CAPSULE_SWEEP_LEASE_TTL"},
		{"lease shorter than a send", func(c *Config) { c.SweepLeaseTTL = 5 * time.Second }, "CAPSULE_SWEEP_LEASE_TTL"},
		{"zero media count", func(c *Config) { c.MaxMediaN = 0 }, "media limits"},
		{"bad timezone", func(c *Config) { c.DefaultTimezone = "Mars/Olympus" }, "CAPSULE_DEFAULT_TIMEZONE"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "CAPSULE_LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	c := validConfig()
	c.RedisPassword = "redis-pass"
	c.PromptsAPIKey = "sk-live"
	c.DatabaseURL = "postgres://capsule:hunter2@db:5432/capsule?sslmode=disable"

	r := c.Redacted()
	if r.JWTSecret == "secret" || r.RedisPassword == "redis-pass" || r.PromptsAPIKey == "sk-live" {
		t.Errorf("secrets leaked: %+v", r)
	}
	if strings.Contains(r.DatabaseURL, "hunter2") {
		t.Errorf("database password leaked: %s", r.DatabaseURL)
	}
	if r.DatabaseURL != "postgres://capsule:***@db:5432/capsule?sslmode=disable" {
		t.Errorf("DatabaseURL = %s", r.DatabaseURL)
	}
	if c.JWTSecret != "secret" {
		t.Error("Redacted() mutated the original config")
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("CAPSULE_DATABASE_URL", "postgres://u:p@localhost:5432/capsule")
	t.Setenv("CAPSULE_REDIS_ADDR", "localhost:6379")
	t.Setenv("CAPSULE_JWT_SECRET", "s3cr3t")
	t.Setenv("CAPSULE_DELIVERY_MODE", "CONFIRMED")
	t.Setenv("CAPSULE_ALLOWED_CIDRS", "127.0.0.1, 10.0.0.0/8")
	t.Setenv("CAPSULE_MAX_MEDIA_FILES", "5")

	cfg := Load()
	if cfg.DeliveryMode != DeliveryConfirmed {
		t.Errorf("DeliveryMode = %q, want %q", cfg.DeliveryMode, DeliveryConfirmed)
	}
	if len(cfg.AllowedCIDRS) != 2 {
		t.Errorf("AllowedCIDRS = %v, want 2 entries", cfg.AllowedCIDRS)
	}
	if cfg.MaxMediaN != 5 {
		t.Errorf("MaxMediaN = %d, want 5", cfg.MaxMediaN)
	}
	if cfg.Transport != TransportLog {
		t.Errorf("Transport = %q, want default %q", cfg.Transport, TransportLog)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %v, want 5m", cfg.SweepInterval)
	}
	if cfg.DBWarnThreshold != 3 {
		t.Errorf("DBWarnThreshold = %d, want default 3", cfg.DBWarnThreshold)
	}
}

func TestLoadPanicsWithoutDatabase(t *testing.T) {
	t.Setenv("CAPSULE_DATABASE_URL", "")
	defer func() {
		if r := recover(); r == nil {
			t.Error("Load() should panic without CAPSULE_DATABASE_URL")
		}
	}()
	Load()
}
