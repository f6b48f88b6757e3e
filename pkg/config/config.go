package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the loader reads
const EnvPrefix = "GROKFAV_"

// Config holds all configuration options for the favorites harvester
type Config struct {
	// Browser attachment
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Gallery harvesting
	Harvest HarvestConfig `yaml:"harvest" json:"harvest"`

	// Queue execution and the download facility
	Download DownloadConfig `yaml:"download" json:"download"`

	// Transfer-level retry inside the download facility
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Unfavorite pass
	Reversal ReversalConfig `yaml:"reversal" json:"reversal"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// Jitter is an inclusive [Min, Max] bound for a randomized wait
type Jitter struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// Valid reports whether the bound is non-negative and ordered
func (j Jitter) Valid() bool {
	return j.Min >= 0 && j.Max >= j.Min
}

// BrowserConfig controls the automated browser attached to the gallery
type BrowserConfig struct {
	GalleryURL        string        `yaml:"gallery_url" json:"gallery_url"`
	UserDataDir       string        `yaml:"user_data_dir" json:"user_data_dir"`
	BrowserPath       string        `yaml:"browser_path" json:"browser_path"`
	Headless          bool          `yaml:"headless" json:"headless"`
	NoSandbox         bool          `yaml:"no_sandbox" json:"no_sandbox"`
	Stealth           bool          `yaml:"stealth" json:"stealth"`
	ViewportWidth     int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height" json:"viewport_height"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	EvalTimeout       time.Duration `yaml:"eval_timeout" json:"eval_timeout"`
}

// HarvestConfig holds the scroll/convergence tuning for the harvester
type HarvestConfig struct {
	ContextSegment        string  `yaml:"context_segment" json:"context_segment"`
	MediaSelector         string  `yaml:"media_selector" json:"media_selector"`
	GallerySelector       string  `yaml:"gallery_selector" json:"gallery_selector"`
	RemoveControlSelector string  `yaml:"remove_control_selector" json:"remove_control_selector"`
	ReadyAttempts         int     `yaml:"ready_attempts" json:"ready_attempts"`
	MaxPasses             int     `yaml:"max_passes" json:"max_passes"`
	MaxPaginationCycles   int     `yaml:"max_pagination_cycles" json:"max_pagination_cycles"`
	StabilityThreshold    int     `yaml:"stability_threshold" json:"stability_threshold"`
	ScrollStepFloor       int     `yaml:"scroll_step_floor" json:"scroll_step_floor"`
	ScrollStepRatio       float64 `yaml:"scroll_step_ratio" json:"scroll_step_ratio"`

	InitialSettle time.Duration `yaml:"initial_settle" json:"initial_settle"`
	ReadyDelay    Jitter        `yaml:"ready_delay" json:"ready_delay"`
	NudgeDelay    Jitter        `yaml:"nudge_delay" json:"nudge_delay"`
	SettleDelay   Jitter        `yaml:"settle_delay" json:"settle_delay"`
	PageDelay     Jitter        `yaml:"page_delay" json:"page_delay"`
	PostPageDelay Jitter        `yaml:"post_page_delay" json:"post_page_delay"`
}

// DownloadConfig holds queue execution and facility configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	QueueSize           int           `yaml:"queue_size" json:"queue_size"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	PaceDelay           time.Duration `yaml:"pace_delay" json:"pace_delay"`
	RetryDelay          time.Duration `yaml:"retry_delay" json:"retry_delay"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
	MaxDrainCycles      int           `yaml:"max_drain_cycles" json:"max_drain_cycles"`
	ProgressInterval    int           `yaml:"progress_interval" json:"progress_interval"`
	UserAgent           string        `yaml:"user_agent" json:"user_agent"`
	MaxFileSize         int64         `yaml:"max_file_size" json:"max_file_size"`
}

// RetryConfig holds transfer-level retry configuration
type RetryConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	SessionRoot       string `yaml:"session_root" json:"session_root"`
	OverwriteExisting bool   `yaml:"overwrite_existing" json:"overwrite_existing"`
	ReportFormat      string `yaml:"report_format" json:"report_format"`
}

// ReversalConfig controls the unfavorite pass
type ReversalConfig struct {
	Mode              string        `yaml:"mode" json:"mode"`
	ClickDelay        time.Duration `yaml:"click_delay" json:"click_delay"`
	FocusDelay        time.Duration `yaml:"focus_delay" json:"focus_delay"`
	ScrollDelay       time.Duration `yaml:"scroll_delay" json:"scroll_delay"`
	ScrollStepRatio   float64       `yaml:"scroll_step_ratio" json:"scroll_step_ratio"`
	MaxScrollAttempts int           `yaml:"max_scroll_attempts" json:"max_scroll_attempts"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	Desktop    bool `yaml:"desktop" json:"desktop"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			GalleryURL:        "https://grok.com/imagine/favorites",
			UserDataDir:       defaultUserDataDir(),
			Headless:          false,
			Stealth:           true,
			ViewportWidth:     1440,
			ViewportHeight:    900,
			NavigationTimeout: 60 * time.Second,
			EvalTimeout:       15 * time.Second,
		},
		Harvest: HarvestConfig{
			ContextSegment:        "/imagine",
			MediaSelector:         `img[alt*="Generated image"][src], video[src]`,
			GallerySelector:       `[data-testid="drop-container"], [data-testid="favorites-scroll"], [data-radix-scroll-area-viewport]`,
			RemoveControlSelector: `button[aria-label="Unsave"]`,
			ReadyAttempts:         60,
			MaxPasses:             320,
			MaxPaginationCycles:   20,
			StabilityThreshold:    3,
			ScrollStepFloor:       280,
			ScrollStepRatio:       0.9,
			InitialSettle:         300 * time.Millisecond,
			ReadyDelay:            Jitter{Min: 250 * time.Millisecond, Max: 450 * time.Millisecond},
			NudgeDelay:            Jitter{Min: 400 * time.Millisecond, Max: 600 * time.Millisecond},
			SettleDelay:           Jitter{Min: 520 * time.Millisecond, Max: 840 * time.Millisecond},
			PageDelay:             Jitter{Min: 900 * time.Millisecond, Max: 1300 * time.Millisecond},
			PostPageDelay:         Jitter{Min: 600 * time.Millisecond, Max: 900 * time.Millisecond},
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			QueueSize:           256,
			DownloadTimeout:     60 * time.Second,
			PaceDelay:           350 * time.Millisecond,
			RetryDelay:          1 * time.Second,
			MaxRetries:          3,
			MaxDrainCycles:      10,
			ProgressInterval:    10,
			UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			MaxFileSize:         0, // 0 means no limit
		},
		Retry: RetryConfig{
			Enabled:      true,
			MaxAttempts:  2,
			BaseDelay:    500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			BurstSize:         10,
		},
		Output: OutputConfig{
			BaseDirectory:     "./downloads",
			SessionRoot:       "grok-favorites",
			OverwriteExisting: false,
			ReportFormat:      "json",
		},
		Reversal: ReversalConfig{
			Mode:              "prompt",
			ClickDelay:        120 * time.Millisecond,
			FocusDelay:        200 * time.Millisecond,
			ScrollDelay:       400 * time.Millisecond,
			ScrollStepRatio:   0.85,
			MaxScrollAttempts: 100,
		},
		Notifications: NotificationConfig{
			Enabled:    true,
			Desktop:    false,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   "",
			Format: "console",
		},
	}
}

func defaultUserDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "grokfav", "browser-profile")
	}
	return filepath.Join(os.TempDir(), "grokfav-browser-profile")
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := getEnv("GALLERY_URL"); v != "" {
		c.Browser.GalleryURL = v
	}
	if v := getEnv("USER_DATA_DIR"); v != "" {
		c.Browser.UserDataDir = v
	}
	if v := getEnv("BROWSER_PATH"); v != "" {
		c.Browser.BrowserPath = v
	}
	if v := getEnv("HEADLESS"); v != "" {
		c.Browser.Headless = parseBool(v)
	}
	if v := getEnv("NO_SANDBOX"); v != "" {
		c.Browser.NoSandbox = parseBool(v)
	}

	if v := getEnv("OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := getEnv("REPORT_FORMAT"); v != "" {
		c.Output.ReportFormat = strings.ToLower(v)
	}

	if err := envInt("CONCURRENT_DOWNLOADS", &c.Download.ConcurrentDownloads); err != nil {
		errs = append(errs, err)
	}
	if err := envInt("MAX_RETRIES", &c.Download.MaxRetries); err != nil {
		errs = append(errs, err)
	}
	if err := envInt("REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute); err != nil {
		errs = append(errs, err)
	}
	if v := getEnv("USER_AGENT"); v != "" {
		c.Download.UserAgent = v
	}

	if v := getEnv("UNFAVORITE"); v != "" {
		c.Reversal.Mode = v
	}

	if v := getEnv("NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = parseBool(v)
	}
	if v := getEnv("DESKTOP_NOTIFICATIONS"); v != "" {
		c.Notifications.Desktop = parseBool(v)
	}

	if v := getEnv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getEnv("LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

func getEnv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func envInt(name string, target *int) error {
	raw := getEnv(name)
	if raw == "" {
		return nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	if val > 0 {
		*target = val
	}
	return nil
}

func parseBool(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".grokfav.yaml",
		".grokfav.yml",
		filepath.Join(home, ".config", "grokfav", "config.yaml"),
		filepath.Join(home, ".config", "grokfav", "config.yml"),
		filepath.Join(home, ".grokfav.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Browser
	if u, err := url.Parse(c.Browser.GalleryURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("gallery URL must be an absolute URL"))
	}
	if c.Browser.EvalTimeout <= 0 {
		errs = append(errs, errors.New("eval timeout must be positive"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}

	// Harvest
	h := c.Harvest
	if h.MediaSelector == "" {
		errs = append(errs, errors.New("media selector is required"))
	}
	if h.ReadyAttempts <= 0 || h.MaxPasses <= 0 {
		errs = append(errs, errors.New("ready attempts and max passes must be positive"))
	}
	if h.MaxPaginationCycles < 0 {
		errs = append(errs, errors.New("max pagination cycles cannot be negative"))
	}
	if h.StabilityThreshold <= 0 {
		errs = append(errs, errors.New("stability threshold must be positive"))
	}
	if h.ScrollStepFloor <= 0 || h.ScrollStepRatio <= 0 {
		errs = append(errs, errors.New("scroll step floor and ratio must be positive"))
	}
	for name, j := range map[string]Jitter{
		"ready_delay":     h.ReadyDelay,
		"nudge_delay":     h.NudgeDelay,
		"settle_delay":    h.SettleDelay,
		"page_delay":      h.PageDelay,
		"post_page_delay": h.PostPageDelay,
	} {
		if !j.Valid() {
			errs = append(errs, fmt.Errorf("harvest %s must satisfy 0 <= min <= max", name))
		}
	}

	// Download
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.Download.MaxDrainCycles <= 0 {
		errs = append(errs, errors.New("max drain cycles must be positive"))
	}
	if c.Download.PaceDelay < 0 || c.Download.RetryDelay < 0 {
		errs = append(errs, errors.New("pace and retry delays cannot be negative"))
	}

	// Retry
	if c.Retry.Enabled && c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive when retry is enabled"))
	}

	// Rate limiting
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	// Output
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.SessionRoot == "" {
		errs = append(errs, errors.New("session root is required"))
	}
	validFormats := map[string]bool{"json": true, "yaml": true, "none": true}
	if !validFormats[strings.ToLower(c.Output.ReportFormat)] {
		errs = append(errs, errors.New("report format must be json, yaml or none"))
	}

	// Reversal
	if c.Reversal.Mode == "" {
		errs = append(errs, errors.New("reversal mode is required"))
	}
	if c.Reversal.MaxScrollAttempts <= 0 {
		errs = append(errs, errors.New("reversal max scroll attempts must be positive"))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	validLogFormats := map[string]bool{"console": true, "json": true}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, errors.New("log format must be console or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["url"].(string); ok && v != "" {
		c.Browser.GalleryURL = v
	}
	if v, ok := flags["user-data-dir"].(string); ok && v != "" {
		c.Browser.UserDataDir = v
	}
	if v, ok := flags["browser-path"].(string); ok && v != "" {
		c.Browser.BrowserPath = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["no-sandbox"].(bool); ok {
		c.Browser.NoSandbox = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentDownloads = v
	}
	if v, ok := flags["rate-limit"].(int); ok && v > 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v, ok := flags["unfavorite"].(string); ok && v != "" {
		c.Reversal.Mode = v
	}
	if v, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".grokfav.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
