package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Panel    PanelConfig    `yaml:"panel"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`

	// PublicURL is the base URL game servers use to fetch match configs
	// and post stat callbacks. It must be reachable from the servers.
	PublicURL string `yaml:"public_url"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// PanelConfig holds match panel behavior settings
type PanelConfig struct {
	MapList        []string `yaml:"maplist"`
	DefaultMapList []string `yaml:"default_maplist"`

	// Per-user creation limits; negative disables the limit.
	UserMaxServers int `yaml:"user_max_servers"`
	UserMaxTeams   int `yaml:"user_max_teams"`
	UserMaxMatches int `yaml:"user_max_matches"`

	AdminsAccessAllMatches bool `yaml:"admins_access_all_matches"`

	LogoDir         string `yaml:"logo_dir"`
	MatchTitleText  string `yaml:"match_title_text"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with all defaults applied, for tests and
// tooling that run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/get5panel/get5panel.db"
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}

	if len(cfg.Panel.MapList) == 0 {
		cfg.Panel.MapList = []string{
			"de_cache", "de_cbble", "de_dust2", "de_inferno", "de_mirage",
			"de_nuke", "de_overpass", "de_season", "de_train",
		}
	}
	if len(cfg.Panel.DefaultMapList) == 0 {
		cfg.Panel.DefaultMapList = []string{
			"de_cache", "de_cbble", "de_inferno", "de_mirage",
			"de_nuke", "de_overpass", "de_train",
		}
	}
	if cfg.Panel.UserMaxServers == 0 {
		cfg.Panel.UserMaxServers = 10
	}
	if cfg.Panel.UserMaxTeams == 0 {
		cfg.Panel.UserMaxTeams = 100
	}
	if cfg.Panel.UserMaxMatches == 0 {
		cfg.Panel.UserMaxMatches = 1000
	}
	if cfg.Panel.MatchTitleText == "" {
		cfg.Panel.MatchTitleText = "Map {MAPNUMBER} of {MAXMAPS}"
	}
}
