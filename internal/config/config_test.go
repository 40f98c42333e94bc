package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(`
database:
  url: postgres://file/db
jwt:
  secret_key: from-file
reminders:
  interval: 15m
incidents:
  qualifying_severities: [sev1]
`), 0o600)
	require.NoError(t, err)

	t.Setenv("INCIDENTBOT_DATABASE__URL", "postgres://env/db")
	t.Setenv("INCIDENTBOT_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "from-file", cfg.JWT.SecretKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 15*time.Minute, cfg.Reminders.Interval)
	assert.Equal(t, []string{"sev1"}, cfg.Incidents.QualifyingSeverities)

	// untouched keys keep defaults
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "investigating", cfg.Incidents.InitialStatus)
	assert.Equal(t, 10*time.Minute, cfg.Reminders.GracePeriod)
}

func TestLoad_MissingRequired(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url is required")
	assert.Contains(t, err.Error(), "jwt.secret_key is required")
}

func TestValidate_Lifecycle(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "unknown initial status",
			mutate:  func(c *Config) { c.Incidents.InitialStatus = "open" },
			wantErr: `initial_status "open"`,
		},
		{
			name:    "unknown resolved status",
			mutate:  func(c *Config) { c.Incidents.ResolvedStatus = "closed" },
			wantErr: `resolved_status "closed"`,
		},
		{
			name:    "unknown default severity",
			mutate:  func(c *Config) { c.Incidents.DefaultSeverity = "p1" },
			wantErr: `default_severity "p1"`,
		},
		{
			name:    "qualifying severity not configured",
			mutate:  func(c *Config) { c.Incidents.QualifyingSeverities = []string{"sev9"} },
			wantErr: `unknown severity "sev9"`,
		},
		{
			name: "duplicate role",
			mutate: func(c *Config) {
				c.Incidents.Roles = append(c.Incidents.Roles, RoleConfig{Name: "technical_lead"})
			},
			wantErr: `duplicate role "technical_lead"`,
		},
		{
			name:    "channel limit too small",
			mutate:  func(c *Config) { c.Incidents.ChannelNameLimit = 10 },
			wantErr: "leaves no room",
		},
		{
			name:    "slack without token",
			mutate:  func(c *Config) { c.Slack.Enabled = true },
			wantErr: "slack.bot_token is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.URL = "postgres://localhost/db"
			cfg.JWT.SecretKey = "secret"
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_DefaultsAreConsistent(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "postgres://localhost/db"
	cfg.JWT.SecretKey = "secret"

	assert.NoError(t, cfg.Validate())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "database.url", envKey("INCIDENTBOT_DATABASE__URL"))
	assert.Equal(t, "database.max_open_conns", envKey("INCIDENTBOT_DATABASE__MAX_OPEN_CONNS"))
	assert.Equal(t, "slack.bot_token", envKey("INCIDENTBOT_SLACK__BOT_TOKEN"))
}
