// Package config provides application configuration loading.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys are separated by a double underscore: INCIDENTBOT_DATABASE__URL.
const EnvPrefix = "INCIDENTBOT_"

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Log         LogConfig         `koanf:"log"`
	JWT         JWTConfig         `koanf:"jwt"`
	Auth        AuthConfig        `koanf:"auth"`
	CORS        CORSConfig        `koanf:"cors"`
	Slack       SlackConfig       `koanf:"slack"`
	Incidents   IncidentsConfig   `koanf:"incidents"`
	Reminders   RemindersConfig   `koanf:"reminders"`
	Extras      ExtrasConfig      `koanf:"extras"`
	PagerDuty   PagerDutyConfig   `koanf:"pagerduty"`
	Statuspage  StatuspageConfig  `koanf:"statuspage"`
	Jira        JiraConfig        `koanf:"jira"`
	Confluence  ConfluenceConfig  `koanf:"confluence"`
	StatusFeeds StatusFeedsConfig `koanf:"status_feeds"`
}

type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type JWTConfig struct {
	SecretKey           string        `koanf:"secret_key"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
}

// AuthConfig describes the bootstrap admin account created on startup.
type AuthConfig struct {
	AdminEmail    string `koanf:"admin_email"`
	AdminPassword string `koanf:"admin_password"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type SlackConfig struct {
	Enabled         bool     `koanf:"enabled"`
	BotToken        string   `koanf:"bot_token"`
	SigningSecret   string   `koanf:"signing_secret"`
	APIURL          string   `koanf:"api_url"`
	DigestChannel   string   `koanf:"digest_channel"`
	AutoInviteUsers []string `koanf:"auto_invite_users"`
	MeetingLink     string   `koanf:"meeting_link"`
	RateLimit       float64  `koanf:"rate_limit"`
	PrivateChannels bool     `koanf:"private_channels"`
}

type RoleConfig struct {
	Name        string `koanf:"name"`
	Description string `koanf:"description"`
	Required    bool   `koanf:"required"`
}

type IncidentsConfig struct {
	ChannelPrefix        string       `koanf:"channel_prefix"`
	ChannelNameLimit     int          `koanf:"channel_name_limit"`
	Statuses             []string     `koanf:"statuses"`
	InitialStatus        string       `koanf:"initial_status"`
	ResolvedStatus       string       `koanf:"resolved_status"`
	Severities           []string     `koanf:"severities"`
	DefaultSeverity      string       `koanf:"default_severity"`
	QualifyingSeverities []string     `koanf:"qualifying_severities"`
	Roles                []RoleConfig `koanf:"roles"`
}

type RemindersConfig struct {
	Interval       time.Duration `koanf:"interval"`
	GracePeriod    time.Duration `koanf:"grace_period"`
	StaleThreshold time.Duration `koanf:"stale_threshold"`
}

// ExtrasConfig tunes the background worker pool running deferred creation steps.
type ExtrasConfig struct {
	NumWorkers        int           `koanf:"num_workers"`
	QueueSize         int           `koanf:"queue_size"`
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	Timeout           time.Duration `koanf:"timeout"`
}

type PagerDutyConfig struct {
	Enabled   bool   `koanf:"enabled"`
	APIToken  string `koanf:"api_token"`
	FromEmail string `koanf:"from_email"`
	ServiceID string `koanf:"service_id"`
	APIURL    string `koanf:"api_url"`
	// AutoPage maps a severity to escalation policy IDs paged on creation.
	AutoPage map[string][]string `koanf:"auto_page"`
}

type StatuspageConfig struct {
	Enabled    bool   `koanf:"enabled"`
	APIKey     string `koanf:"api_key"`
	PageID     string `koanf:"page_id"`
	APIURL     string `koanf:"api_url"`
	URL        string `koanf:"url"`
	AutoCreate bool   `koanf:"auto_create"`
}

type JiraConfig struct {
	Enabled   bool     `koanf:"enabled"`
	URL       string   `koanf:"url"`
	Username  string   `koanf:"username"`
	APIToken  string   `koanf:"api_token"`
	Project   string   `koanf:"project"`
	IssueType string   `koanf:"issue_type"`
	Labels    []string `koanf:"labels"`
	// AutoCreate opens a ticket for every new incident.
	AutoCreate bool `koanf:"auto_create"`
	// StatusMapping maps incident statuses to Jira transition names.
	StatusMapping map[string]string `koanf:"status_mapping"`
}

type ConfluenceConfig struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url"`
	Username string `koanf:"username"`
	APIToken string `koanf:"api_token"`
	Space    string `koanf:"space"`
	ParentID string `koanf:"parent_id"`
}

type StatusFeedsConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Providers []FeedConfig  `koanf:"providers"`
	DaysBack  int           `koanf:"days_back"`
	Timeout   time.Duration `koanf:"timeout"`
}

type FeedConfig struct {
	Name string `koanf:"name"`
	URL  string `koanf:"url"`
}

// Default returns the configuration used when nothing overrides a key.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "3000",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  60 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
			MigrationsPath:  "migrations",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			AccessTokenDuration: 12 * time.Hour,
		},
		Slack: SlackConfig{
			RateLimit: 1,
		},
		Incidents: IncidentsConfig{
			ChannelPrefix:        "inc",
			ChannelNameLimit:     80,
			Statuses:             []string{"investigating", "identified", "monitoring", "resolved"},
			InitialStatus:        "investigating",
			ResolvedStatus:       "resolved",
			Severities:           []string{"sev1", "sev2", "sev3", "sev4"},
			DefaultSeverity:      "sev4",
			QualifyingSeverities: []string{"sev1", "sev2"},
			Roles: []RoleConfig{
				{
					Name:        "incident_commander",
					Description: "Owns the incident: coordinates responders, makes decisions and keeps stakeholders informed.",
					Required:    true,
				},
				{
					Name:        "technical_lead",
					Description: "Leads the technical investigation and proposes remediation steps.",
				},
				{
					Name:        "communications_liaison",
					Description: "Drafts status updates and handles communication outside the incident channel.",
				},
			},
		},
		Reminders: RemindersConfig{
			Interval:       30 * time.Minute,
			GracePeriod:    10 * time.Minute,
			StaleThreshold: 30 * time.Minute,
		},
		Extras: ExtrasConfig{
			NumWorkers:        2,
			QueueSize:         100,
			MaxAttempts:       3,
			InitialBackoff:    time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
			Timeout:           2 * time.Minute,
		},
		PagerDuty: PagerDutyConfig{
			AutoPage: map[string][]string{},
		},
		Statuspage: StatuspageConfig{
			APIURL: "https://api.statuspage.io/v1",
		},
		Jira: JiraConfig{
			IssueType:     "Task",
			StatusMapping: map[string]string{},
		},
		StatusFeeds: StatusFeedsConfig{
			DaysBack: 1,
			Timeout:  10 * time.Second,
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks required values and lifecycle consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if c.Slack.Enabled {
		if c.Slack.BotToken == "" {
			errs = append(errs, errors.New("slack.bot_token is required when slack is enabled"))
		}
		if c.Slack.SigningSecret == "" {
			errs = append(errs, errors.New("slack.signing_secret is required when slack is enabled"))
		}
	}
	if c.PagerDuty.Enabled && (c.PagerDuty.APIToken == "" || c.PagerDuty.FromEmail == "") {
		errs = append(errs, errors.New("pagerduty.api_token and pagerduty.from_email are required when pagerduty is enabled"))
	}
	if c.Statuspage.Enabled && (c.Statuspage.APIKey == "" || c.Statuspage.PageID == "") {
		errs = append(errs, errors.New("statuspage.api_key and statuspage.page_id are required when statuspage is enabled"))
	}
	if c.Jira.Enabled && (c.Jira.URL == "" || c.Jira.Project == "") {
		errs = append(errs, errors.New("jira.url and jira.project are required when jira is enabled"))
	}
	if c.Confluence.Enabled && (c.Confluence.URL == "" || c.Confluence.Space == "") {
		errs = append(errs, errors.New("confluence.url and confluence.space are required when confluence is enabled"))
	}

	errs = append(errs, c.Incidents.validate()...)

	if c.Reminders.Interval < time.Second {
		errs = append(errs, errors.New("reminders.interval must be at least 1s"))
	}

	return errors.Join(errs...)
}

func (c *IncidentsConfig) validate() []error {
	var errs []error

	if c.ChannelNameLimit <= len(c.ChannelPrefix)+len("-200601021504-") {
		errs = append(errs, fmt.Errorf("incidents.channel_name_limit %d leaves no room for a description", c.ChannelNameLimit))
	}
	if !slices.Contains(c.Statuses, c.InitialStatus) {
		errs = append(errs, fmt.Errorf("incidents.initial_status %q is not a configured status", c.InitialStatus))
	}
	if !slices.Contains(c.Statuses, c.ResolvedStatus) {
		errs = append(errs, fmt.Errorf("incidents.resolved_status %q is not a configured status", c.ResolvedStatus))
	}
	if !slices.Contains(c.Severities, c.DefaultSeverity) {
		errs = append(errs, fmt.Errorf("incidents.default_severity %q is not a configured severity", c.DefaultSeverity))
	}
	for _, s := range c.QualifyingSeverities {
		if !slices.Contains(c.Severities, s) {
			errs = append(errs, fmt.Errorf("incidents.qualifying_severities: unknown severity %q", s))
		}
	}

	seen := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if r.Name == "" {
			errs = append(errs, errors.New("incidents.roles: role name is required"))
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("incidents.roles: duplicate role %q", r.Name))
		}
		seen[r.Name] = true
	}

	return errs
}
