package config

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Default agent identity advertised on the A2A agent card
const (
	DashboardAgentName    = "JiraDashboardAgent"
	DefaultBroadcastTopic = "jira-data-channel"
	GenericFetchError     = "Error fetching Jira data."
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerHost    string
	ProxyPort     int
	DashboardPort int
	AgentPort     int

	// Agent configuration
	AgentName    string
	AgentVersion string
	AgentURL     string

	// Jira configuration
	JiraBaseURL    string
	JiraUsername   string
	JiraAPIToken   string
	JiraJQL        string
	JiraFields     []string
	JiraSearchPath string

	// Proxy configuration
	CacheTTL         time.Duration
	CacheSize        int
	BroadcastEnabled bool
	BroadcastChannel string
	CORSOrigin       string

	// Authentication for inbound requests
	AuthType  string // "", "jwt" or "apikey"
	JWTSecret string
	APIKey    string

	// Dashboard configuration
	ProxyURL        string
	PageSize        int
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	Timezone        string
	DateLayout      string
	TodoStatusLabel string
	OpenStatusLabel string
	DoneStatusLabel string
	SnapshotPath    string

	// LLM configuration
	LLMEnabled     bool
	LLMProvider    string // "openai", "azure"
	LLMModel       string
	LLMAPIKey      string
	LLMServiceURL  string
	LLMMaxTokens   int
	LLMTimeout     int // in seconds
	LLMTemperature float64
}

var (
	v        *viper.Viper
	initOnce sync.Once
)

// GetViper returns the shared viper instance, loading .env files and defaults on first use
func GetViper() *viper.Viper {
	initOnce.Do(func() {
		loadDotEnv()
		v = viper.New()
		setDefaults(v)
		v.SetConfigName("jiradash")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.jiradash")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				log.Printf("Failed to read config file: %v", err)
			}
		} else {
			log.Printf("Loaded configuration from %s", v.ConfigFileUsed())
		}
	})
	return v
}

// loadDotEnv loads environment variables from the nearest .env file
func loadDotEnv() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			log.Printf("Loaded configuration from %s file", path)
			return
		}
	}
	log.Println("No .env file found or error loading it. Using environment variables or defaults.")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("proxy.port", 8000)
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("agent.port", 8090)

	v.SetDefault("agent.name", DashboardAgentName)
	v.SetDefault("agent.version", "1.0.0")
	v.SetDefault("agent.url", "")

	v.SetDefault("jira.base_url", "https://your-jira-instance.atlassian.net")
	v.SetDefault("jira.username", "")
	v.SetDefault("jira.api_token", "")
	v.SetDefault("jira.jql", "ORDER BY created DESC")
	v.SetDefault("jira.fields", "id,key,summary,priority,status,created,updated,project,assignee,reporter,issuetype,resolutiondate,timetracking")
	v.SetDefault("jira.search_path", "rest/api/3/search")

	v.SetDefault("proxy.cache_ttl", "60s")
	v.SetDefault("proxy.cache_size", 256)
	v.SetDefault("proxy.broadcast_enabled", true)
	v.SetDefault("proxy.broadcast_channel", DefaultBroadcastTopic)
	v.SetDefault("proxy.cors_origin", "*")

	v.SetDefault("auth.type", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.api_key", "")

	v.SetDefault("dashboard.proxy_url", "http://localhost:8000/api/fetch-jira-data")
	v.SetDefault("dashboard.page_size", 100)
	v.SetDefault("dashboard.refresh_interval", "120s")
	v.SetDefault("dashboard.fetch_timeout", "30s")
	v.SetDefault("dashboard.timezone", "Local")
	v.SetDefault("dashboard.date_layout", "1/2/2006")
	v.SetDefault("dashboard.todo_status", "À faire")
	v.SetDefault("dashboard.open_status", "Ouvert")
	v.SetDefault("dashboard.done_status", "Terminé")
	v.SetDefault("dashboard.snapshot_path", "jiradash.db")

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.service_url", "")
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.timeout", 30)
	v.SetDefault("llm.temperature", 0.0)
}

// NewConfig creates a new configuration from the shared viper instance
func NewConfig() *Config {
	return FromViper(GetViper())
}

// FromViper builds a Config from the given viper instance
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		ServerHost:    v.GetString("server.host"),
		ProxyPort:     v.GetInt("proxy.port"),
		DashboardPort: v.GetInt("dashboard.port"),
		AgentPort:     v.GetInt("agent.port"),

		AgentName:    v.GetString("agent.name"),
		AgentVersion: v.GetString("agent.version"),
		AgentURL:     v.GetString("agent.url"),

		JiraBaseURL:    v.GetString("jira.base_url"),
		JiraUsername:   v.GetString("jira.username"),
		JiraAPIToken:   v.GetString("jira.api_token"),
		JiraJQL:        v.GetString("jira.jql"),
		JiraFields:     splitList(v.GetString("jira.fields")),
		JiraSearchPath: v.GetString("jira.search_path"),

		CacheTTL:         v.GetDuration("proxy.cache_ttl"),
		CacheSize:        v.GetInt("proxy.cache_size"),
		BroadcastEnabled: v.GetBool("proxy.broadcast_enabled"),
		BroadcastChannel: v.GetString("proxy.broadcast_channel"),
		CORSOrigin:       v.GetString("proxy.cors_origin"),

		AuthType:  v.GetString("auth.type"),
		JWTSecret: v.GetString("auth.jwt_secret"),
		APIKey:    v.GetString("auth.api_key"),

		ProxyURL:        v.GetString("dashboard.proxy_url"),
		PageSize:        v.GetInt("dashboard.page_size"),
		RefreshInterval: v.GetDuration("dashboard.refresh_interval"),
		FetchTimeout:    v.GetDuration("dashboard.fetch_timeout"),
		Timezone:        v.GetString("dashboard.timezone"),
		DateLayout:      v.GetString("dashboard.date_layout"),
		TodoStatusLabel: v.GetString("dashboard.todo_status"),
		OpenStatusLabel: v.GetString("dashboard.open_status"),
		DoneStatusLabel: v.GetString("dashboard.done_status"),
		SnapshotPath:    v.GetString("dashboard.snapshot_path"),

		LLMEnabled:     v.GetBool("llm.enabled"),
		LLMProvider:    v.GetString("llm.provider"),
		LLMModel:       v.GetString("llm.model"),
		LLMAPIKey:      v.GetString("llm.api_key"),
		LLMServiceURL:  v.GetString("llm.service_url"),
		LLMMaxTokens:   v.GetInt("llm.max_tokens"),
		LLMTimeout:     v.GetInt("llm.timeout"),
		LLMTemperature: v.GetFloat64("llm.temperature"),
	}

	if cfg.AgentURL == "" {
		cfg.AgentURL = fmt.Sprintf("http://%s:%d", cfg.ServerHost, cfg.AgentPort)
	}
	return cfg
}

// Validate reports configuration values the services cannot run with
func (c *Config) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("dashboard.page_size must be positive, got %d", c.PageSize)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("dashboard.refresh_interval must be positive, got %s", c.RefreshInterval)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("dashboard.fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("proxy.cache_size must be positive, got %d", c.CacheSize)
	}
	switch c.AuthType {
	case "", "jwt", "apikey":
	default:
		return fmt.Errorf("unsupported auth type: %s", c.AuthType)
	}
	return nil
}

// Location resolves the configured dashboard timezone, falling back to local time
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Unknown timezone %q, using local time", c.Timezone)
		return time.Local
	}
	return loc
}

// splitList splits a comma-separated config value, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
