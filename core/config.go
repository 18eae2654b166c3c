package core

import (
	"fmt"
	"strings"
	"time"
)

type RegistryConfig struct {
	BaseURL         string `koanf:"base_url" mapstructure:"base_url"`
	APIKey          string `koanf:"api_key" mapstructure:"api_key"`
	TimeoutSeconds  int    `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxAttempts     int    `koanf:"max_attempts" mapstructure:"max_attempts"`
	RetryBaseMillis int    `koanf:"retry_base_millis" mapstructure:"retry_base_millis"`
	MaxJitterMillis int    `koanf:"max_jitter_millis" mapstructure:"max_jitter_millis"`
}

func (c RegistryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c RegistryConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMillis) * time.Millisecond
}

func (c RegistryConfig) MaxJitter() time.Duration {
	return time.Duration(c.MaxJitterMillis) * time.Millisecond
}

type WebhookConfig struct {
	PublicKey        string `koanf:"public_key" mapstructure:"public_key"`
	ToleranceSeconds int    `koanf:"tolerance_seconds" mapstructure:"tolerance_seconds"`
	SignatureHeader  string `koanf:"signature_header" mapstructure:"signature_header"`
	TimestampHeader  string `koanf:"timestamp_header" mapstructure:"timestamp_header"`
	PrimaryURL       string `koanf:"primary_url" mapstructure:"primary_url"`
	FailoverURL      string `koanf:"failover_url" mapstructure:"failover_url"`
	MaxBodyBytes     int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

func (c WebhookConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}

type BrandConfig struct {
	EntityType        string `koanf:"entity_type" mapstructure:"entity_type"`
	DefaultVertical   string `koanf:"default_vertical" mapstructure:"default_vertical"`
	DefaultCountry    string `koanf:"default_country" mapstructure:"default_country"`
	FirstCheckMinutes int    `koanf:"first_check_minutes" mapstructure:"first_check_minutes"`
}

// CampaignConfig carries the tenant-facing texts of the campaign declaration.
type CampaignConfig struct {
	UseCase       string `koanf:"use_case" mapstructure:"use_case"`
	Description   string `koanf:"description" mapstructure:"description"`
	MessageFlow   string `koanf:"message_flow" mapstructure:"message_flow"`
	OptInMessage  string `koanf:"opt_in_message" mapstructure:"opt_in_message"`
	OptOutMessage string `koanf:"opt_out_message" mapstructure:"opt_out_message"`
	HelpMessage   string `koanf:"help_message" mapstructure:"help_message"`
}

type PollerConfig struct {
	Disabled        bool `koanf:"disabled" mapstructure:"disabled"`
	IntervalSeconds int  `koanf:"interval_seconds" mapstructure:"interval_seconds"`
	RecheckMinutes  int  `koanf:"recheck_minutes" mapstructure:"recheck_minutes"`
	BatchSize       int  `koanf:"batch_size" mapstructure:"batch_size"`
}

func (c PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type QueueConfig struct {
	MaxAttempts         int `koanf:"max_attempts" mapstructure:"max_attempts"`
	RetryInitialSeconds int `koanf:"retry_initial_seconds" mapstructure:"retry_initial_seconds"`
	RetryMaxSeconds     int `koanf:"retry_max_seconds" mapstructure:"retry_max_seconds"`
	LeaseSeconds        int `koanf:"lease_seconds" mapstructure:"lease_seconds"`
	PollIntervalMillis  int `koanf:"poll_interval_millis" mapstructure:"poll_interval_millis"`
	Concurrency         int `koanf:"concurrency" mapstructure:"concurrency"`
}

func (c QueueConfig) Lease() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

func (c QueueConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type HTTPConfig struct {
	ListenAddr     string `koanf:"listen_addr" mapstructure:"listen_addr"`
	DisableMetrics bool   `koanf:"disable_metrics" mapstructure:"disable_metrics"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Registry    RegistryConfig `koanf:"registry" mapstructure:"registry"`
	Webhooks    WebhookConfig  `koanf:"webhooks" mapstructure:"webhooks"`
	Brand       BrandConfig    `koanf:"brand" mapstructure:"brand"`
	Campaign    CampaignConfig `koanf:"campaign" mapstructure:"campaign"`
	Poller      PollerConfig   `koanf:"poller" mapstructure:"poller"`
	Queue       QueueConfig    `koanf:"queue" mapstructure:"queue"`
	Database    DatabaseConfig `koanf:"database" mapstructure:"database"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "tendlc",
		Registry: RegistryConfig{
			BaseURL:         "https://api.telnyx.com/v2",
			TimeoutSeconds:  30,
			MaxAttempts:     3,
			RetryBaseMillis: 1000,
			MaxJitterMillis: 1000,
		},
		Webhooks: WebhookConfig{
			ToleranceSeconds: 300,
			SignatureHeader:  "telnyx-signature-ed25519",
			TimestampHeader:  "telnyx-timestamp",
			MaxBodyBytes:     1 << 20,
		},
		Brand: BrandConfig{
			EntityType:        "NON_PROFIT",
			DefaultVertical:   "NGO",
			DefaultCountry:    "US",
			FirstCheckMinutes: 15,
		},
		Campaign: CampaignConfig{
			UseCase:       "NOTIFICATIONS",
			Description:   "Organization notifications, reminders and updates sent to members who opted in.",
			MessageFlow:   "Members opt in by texting START or JOIN to the organization number, or by checking an SMS consent box when signing up.",
			OptInMessage:  "You are subscribed to notifications. Msg frequency varies. Msg&data rates may apply. Reply HELP for help, STOP to cancel.",
			OptOutMessage: "You have been unsubscribed and will receive no further messages. Reply START to resubscribe.",
			HelpMessage:   "Reply STOP to unsubscribe. Msg&data rates may apply. Contact the organization for support.",
		},
		Poller: PollerConfig{
			IntervalSeconds: 300,
			RecheckMinutes:  30,
			BatchSize:       100,
		},
		Queue: QueueConfig{
			MaxAttempts:         8,
			RetryInitialSeconds: 5,
			RetryMaxSeconds:     600,
			LeaseSeconds:        60,
			PollIntervalMillis:  500,
			Concurrency:         1,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:tendlc.db?cache=shared&_foreign_keys=on",
		},
		HTTP: HTTPConfig{
			ListenAddr: ":8080",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Registry.MaxAttempts < 1 {
		return fmt.Errorf("core: registry.max_attempts must be at least 1")
	}
	if c.Registry.TimeoutSeconds < 1 {
		return fmt.Errorf("core: registry.timeout_seconds must be positive")
	}
	if c.Webhooks.ToleranceSeconds < 1 {
		return fmt.Errorf("core: webhooks.tolerance_seconds must be positive")
	}
	if strings.TrimSpace(c.Webhooks.SignatureHeader) == "" || strings.TrimSpace(c.Webhooks.TimestampHeader) == "" {
		return fmt.Errorf("core: webhooks signature and timestamp headers are required")
	}
	if strings.TrimSpace(c.Campaign.UseCase) == "" {
		return fmt.Errorf("core: campaign.use_case is required")
	}
	if c.Poller.IntervalSeconds < 1 {
		return fmt.Errorf("core: poller.interval_seconds must be positive")
	}
	if c.Poller.RecheckMinutes < 1 || c.Brand.FirstCheckMinutes < 1 {
		return fmt.Errorf("core: recheck delays must be positive")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("core: queue.max_attempts must be at least 1")
	}
	return nil
}
