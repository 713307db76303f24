package config

import (
	"time"

	"github.com/syncpower/musicnews/auth"
	"github.com/syncpower/musicnews/catalog"
	"github.com/syncpower/musicnews/scraper"
)

// Page list backends.
const (
	PageSourceFile   = "file"
	PageSourceSQLite = "sqlite"
)

// DefaultAllowedOrigin is the only origin the public routes allow.
const DefaultAllowedOrigin = "https://syncpower.vercel.app"

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	Cache   CacheConfig   `yaml:"cache"`
	Catalog CatalogConfig `yaml:"catalog"`
	Auth    AuthConfig    `yaml:"auth"`
	Pages   PagesConfig   `yaml:"pages"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	AllowedOrigin string `yaml:"allowed_origin"`
	// EnableMetaAPI mounts the page management routes when the page list
	// lives in SQLite.
	EnableMetaAPI bool `yaml:"enable_meta_api"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"user_agent"`
}

// ParseTimeout returns the timeout as time.Duration.
func (h HTTPConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(h.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// CacheConfig configures the merged article cache.
type CacheConfig struct {
	TTL string `yaml:"ttl"`
}

// ParseTTL returns the TTL as time.Duration.
func (c CacheConfig) ParseTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// CatalogConfig configures the article search API.
type CatalogConfig struct {
	Endpoint   string   `yaml:"endpoint"`
	APIKey     string   `yaml:"api_key"`
	TagID      int      `yaml:"tag_id"`
	PageSize   int      `yaml:"page_size"`
	SortType   string   `yaml:"sort_type"`
	Labels     []string `yaml:"labels"`
	MaxPages   int      `yaml:"max_pages"`
	LatestSize int      `yaml:"latest_size"`
}

// Client returns the catalog client settings.
func (c CatalogConfig) Client() catalog.Config {
	return catalog.Config{
		Endpoint: c.Endpoint,
		APIKey:   c.APIKey,
		TagID:    c.TagID,
		PageSize: c.PageSize,
		SortType: c.SortType,
		Labels:   c.Labels,
		MaxPages: c.MaxPages,
	}
}

// AuthConfig configures the token endpoint.
type AuthConfig struct {
	URL          string `yaml:"url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Service returns the token service settings.
func (a AuthConfig) Service() auth.Config {
	return auth.Config{
		URL:          a.URL,
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
	}
}

// PagesConfig configures where the static page list comes from and how the
// pages are parsed.
type PagesConfig struct {
	Source    string             `yaml:"source"` // "file" or "sqlite"
	File      string             `yaml:"file"`
	Database  string             `yaml:"database"`
	Selectors scraper.PageConfig `yaml:"selectors"`
}

// Default returns a Config with the production defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			AllowedOrigin: DefaultAllowedOrigin,
		},
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Timeout: "15s",
		},
		Cache: CacheConfig{TTL: "1h"},
		Catalog: CatalogConfig{
			Endpoint:   catalog.DefaultEndpoint,
			TagID:      catalog.DefaultTagID,
			PageSize:   catalog.DefaultPageSize,
			SortType:   catalog.DefaultSortType,
			Labels:     append([]string(nil), catalog.DefaultLabels...),
			MaxPages:   catalog.DefaultMaxPages,
			LatestSize: 10,
		},
		Auth: AuthConfig{URL: auth.DefaultURL},
		Pages: PagesConfig{
			Source:    PageSourceFile,
			File:      "config/staticNewsUrls.json",
			Database:  "./musicnews.db",
			Selectors: scraper.NewPageConfig(),
		},
	}
}
