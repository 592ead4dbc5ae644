// Package scrape drives the dashboard in a real browser, captures every
// conversation's message container, and archives the reconstructions. It
// can also replay stored captures without a browser.
package scrape

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/convarch/capture"
	"github.com/hazyhaar/convarch/reconstruct"
)

// Config is the top-level scraper configuration.
type Config struct {
	Dashboard DashboardConfig `yaml:"dashboard"`
	Browser   BrowserConfig   `yaml:"browser"`
	Capture   CaptureConfig   `yaml:"capture"`
	Engine    EngineConfig    `yaml:"engine"`
	Limits    LimitsConfig    `yaml:"limits"`
}

// DashboardConfig describes the target dashboard's layout.
type DashboardConfig struct {
	// URL is the dashboard entry point. Required for scraping.
	URL string `yaml:"url"`
	// LoginPath is the URL fragment marking the login page.
	LoginPath string `yaml:"login_path"`
	// InboxPath is navigated to directly when the inbox link is missing.
	InboxPath string `yaml:"inbox_path"`
	// InboxLinkHint is the href fragment of the inbox navigation link.
	InboxLinkHint string `yaml:"inbox_link_hint"`
	// ChatListHint is the id fragment of inbox conversation rows.
	ChatListHint string `yaml:"chat_list_hint"`
	// ClientLinkHint is the href fragment of the client profile link in a
	// conversation header; the client id is the link's numeric parameter.
	ClientLinkHint string `yaml:"client_link_hint"`
}

// BrowserConfig controls the Chrome session.
type BrowserConfig struct {
	Remote     string        `yaml:"remote"`
	Headless   bool          `yaml:"headless"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// CaptureConfig tunes container detection and node extraction.
type CaptureConfig struct {
	ImageClasses        []string `yaml:"image_classes"`
	HostedMediaHosts    []string `yaml:"hosted_media_hosts"`
	HostedMediaSuffixes []string `yaml:"hosted_media_suffixes"`
	MinTextLen          int      `yaml:"min_text_len"`
	MaxTextLen          int      `yaml:"max_text_len"`
	MaxLabelLen         int      `yaml:"max_label_len"`
	DateLayouts         []string `yaml:"date_layouts"`
	ExcludeMarkers      []string `yaml:"exclude_markers"`
	MinChildren         int      `yaml:"min_children"`
}

// EngineConfig tunes node classification.
type EngineConfig struct {
	Signatures  reconstruct.Signatures `yaml:"signatures"`
	DateLayouts []string               `yaml:"date_layouts"`
	TimePattern string                 `yaml:"time_pattern"`
	Placeholder string                 `yaml:"placeholder"`
}

// LimitsConfig bounds a run.
type LimitsConfig struct {
	// MaxConversations caps how many inbox entries one run scrapes.
	MaxConversations int `yaml:"max_conversations"`
	// LoginTimeout bounds the wait for the interactive login.
	LoginTimeout time.Duration `yaml:"login_timeout"`
	// PollInterval is the login probe cadence.
	PollInterval time.Duration `yaml:"poll_interval"`
	// SettleDelay is the wait after opening a conversation before its
	// messages are read; the container renders asynchronously.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// ListTimeout bounds the wait for the inbox list to render.
	ListTimeout time.Duration `yaml:"list_timeout"`
	// Workers is the replay worker count.
	Workers int `yaml:"workers"`
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("scrape: parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Dashboard.LoginPath == "" {
		c.Dashboard.LoginPath = "/login"
	}
	if c.Dashboard.InboxPath == "" {
		c.Dashboard.InboxPath = "/Messaging/inbox"
	}
	if c.Dashboard.InboxLinkHint == "" {
		c.Dashboard.InboxLinkHint = "/Messaging/inbox"
	}
	if c.Dashboard.ChatListHint == "" {
		c.Dashboard.ChatListHint = "chatList"
	}
	if c.Dashboard.ClientLinkHint == "" {
		c.Dashboard.ClientLinkHint = "/Clients?client="
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Limits.MaxConversations <= 0 {
		c.Limits.MaxConversations = 5
	}
	if c.Limits.LoginTimeout <= 0 {
		c.Limits.LoginTimeout = 10 * time.Minute
	}
	if c.Limits.PollInterval <= 0 {
		c.Limits.PollInterval = time.Second
	}
	if c.Limits.SettleDelay <= 0 {
		c.Limits.SettleDelay = 3 * time.Second
	}
	if c.Limits.ListTimeout <= 0 {
		c.Limits.ListTimeout = 10 * time.Second
	}
	if c.Limits.Workers <= 0 {
		c.Limits.Workers = 4
	}
}

// validateForScrape checks the fields only a live browser run needs.
func (c *Config) validateForScrape() error {
	if c.Dashboard.URL == "" {
		return fmt.Errorf("scrape: dashboard.url is required")
	}
	u, err := url.Parse(c.Dashboard.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("scrape: dashboard.url %q is not a valid URL", c.Dashboard.URL)
	}
	return nil
}

// CaptureOptions maps the capture section onto capture.Options.
func (c *Config) CaptureOptions() capture.Options {
	return capture.Options{
		ImageClasses:        c.Capture.ImageClasses,
		HostedMediaHosts:    c.Capture.HostedMediaHosts,
		HostedMediaSuffixes: c.Capture.HostedMediaSuffixes,
		MinTextLen:          c.Capture.MinTextLen,
		MaxTextLen:          c.Capture.MaxTextLen,
		MaxLabelLen:         c.Capture.MaxLabelLen,
		DateLayouts:         c.Capture.DateLayouts,
		ExcludeMarkers:      c.Capture.ExcludeMarkers,
		MinChildren:         c.Capture.MinChildren,
	}
}

// EngineOptions maps the engine section onto reconstruct.Options; the
// archive service consumes these when rebuilding conversations.
func (c *Config) EngineOptions() reconstruct.Options {
	return reconstruct.Options{
		Signatures:       c.Engine.Signatures,
		DateLayouts:      c.Engine.DateLayouts,
		TimeLabelPattern: c.Engine.TimePattern,
		PlaceholderText:  c.Engine.Placeholder,
	}
}
