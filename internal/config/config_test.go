package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg := FromViper(newTestViper())

	assert.Equal(t, 8000, cfg.ProxyPort)
	assert.Equal(t, 8080, cfg.DashboardPort)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 120*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
	assert.Equal(t, "http://localhost:8090", cfg.AgentURL)
	assert.Equal(t, DefaultBroadcastTopic, cfg.BroadcastChannel)
	assert.Contains(t, cfg.JiraFields, "timetracking")
	assert.NotContains(t, cfg.JiraFields, "")
	require.NoError(t, cfg.Validate())
}

func TestFromViperOverrides(t *testing.T) {
	v := newTestViper()
	v.Set("agent.url", "https://agent.example.com")
	v.Set("dashboard.page_size", 25)
	v.Set("jira.fields", " summary, ,status ")

	cfg := FromViper(v)
	assert.Equal(t, "https://agent.example.com", cfg.AgentURL)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, []string{"summary", "status"}, cfg.JiraFields)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero page size", func(c *Config) { c.PageSize = 0 }},
		{"zero refresh interval", func(c *Config) { c.RefreshInterval = 0 }},
		{"negative fetch timeout", func(c *Config) { c.FetchTimeout = -time.Second }},
		{"zero cache size", func(c *Config) { c.CacheSize = 0 }},
		{"unknown auth", func(c *Config) { c.AuthType = "oauth" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromViper(newTestViper())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "Local"}
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())

	cfg.Timezone = "Nowhere/Invalid"
	assert.Equal(t, time.Local, cfg.Location())
}
