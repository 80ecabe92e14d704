package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"stockwatch/internal/domain"
	"stockwatch/internal/templatefmt"

	"github.com/caarlos0/env/v9"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultSourceTimeoutSec  = 30
	defaultSourceMinBody     = 512
	defaultBrowserWaitSec    = 30
	defaultArchiveDir        = "data"
	defaultArchivePagesDir   = "debug_pages"
	defaultQueueURL          = "nats://127.0.0.1:4222"
	defaultQueueAckWaitSec   = 30
	defaultQueueNackDelayMS  = 1000
	defaultQueueMaxDeliver   = 5
	defaultQueueMaxPending   = 256
	defaultRetryInitialMS    = 500
	defaultRetryMaxMS        = 5000
	defaultRetryMaxAttempts  = 3
	defaultTelegramTimeout   = 10
	fallbackSnoozeStartHour  = 0
	fallbackSnoozeEndHour    = 6
	queueStreamName          = "STOCKWATCH_ALERTS"
	queueSubjectName         = "stockwatch.alerts"
	queueConsumerName        = "stockwatch-delivery"
	queueDeliverGroupName    = "stockwatch-workers"
	messageTemplateProbeName = "notify.telegram.message_template"
)

// DefaultMessageTemplate renders the four mandatory alert fields: product
// name, current stock, threshold, and human-readable local timestamp.
const DefaultMessageTemplate = "⚠️ Stock alert\nProduct: {{.Product}}\nStock: {{.Stock}}\nThreshold: {{.Threshold}}\nTime: {{fmtTime .At}}"

// Config holds runtime settings and the monitored-product catalog.
// Params: TOML sections from one config file plus env secret overrides.
// Returns: validated runtime configuration.
type Config struct {
	Service ServiceConfig    `toml:"service"`
	Log     LogConfig        `toml:"log"`
	Source  SourceConfig     `toml:"source"`
	Archive ArchiveConfig    `toml:"archive"`
	Monitor MonitorConfig    `toml:"monitor"`
	Notify  NotifyConfig     `toml:"notify"`
	Product []domain.Product `toml:"product"`
}

// ServiceConfig contains process-level settings.
// Params: service name for logs and snapshot metadata.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name string `toml:"name"`
}

// LogConfig groups log sink settings.
// Params: console and file sink sections.
// Returns: logging runtime options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig configures one log output sink.
// Params: enable flag, level, format, and file path for file sinks.
// Returns: sink behavior settings.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// SourceConfig identifies the external storefront and the client identity
// every acquisition strategy must present to it.
// Params: target URL, user agent, auth cookie pair, transport limits, and browser fallback settings.
// Returns: acquisition runtime options.
type SourceConfig struct {
	URL          string        `toml:"url"`
	UserAgent    string        `toml:"user_agent"`
	CookieName   string        `toml:"cookie_name"`
	CookieValue  string        `toml:"cookie_value"`
	TimeoutSec   int           `toml:"timeout_sec"`
	MinBodyBytes int           `toml:"min_body_bytes"`
	Browser      BrowserConfig `toml:"browser"`
}

// BrowserConfig controls the browser-rendering fallback strategy.
// Params: enable flag and render wait budget.
// Returns: fallback strategy settings.
type BrowserConfig struct {
	Enabled bool `toml:"enabled"`
	WaitSec int  `toml:"wait_sec"`
}

// Timeout returns the per-request transport timeout.
// Params: none.
// Returns: timeout duration for one strategy attempt.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// ArchiveConfig controls debug page dumps and reading snapshots.
// Params: enable flag, snapshot directory, and raw page directory.
// Returns: archive collaborator settings.
type ArchiveConfig struct {
	Enabled  bool   `toml:"enabled"`
	Dir      string `toml:"dir"`
	PagesDir string `toml:"pages_dir"`
}

// MonitorConfig drives the polling cadence and alert debouncing.
// Params: interval minutes, cooldown seconds, and quiet-hours window bounds.
// Returns: schedule and alert-engine settings.
type MonitorConfig struct {
	IntervalMin int `toml:"interval_min"`
	CooldownSec int `toml:"cooldown_sec"`
	SnoozeStart int `toml:"snooze_start"`
	SnoozeEnd   int `toml:"snooze_end"`
}

// Cooldown returns the per-product alert debounce window.
// Params: none.
// Returns: cooldown duration.
func (m MonitorConfig) Cooldown() time.Duration {
	return time.Duration(m.CooldownSec) * time.Second
}

// Interval returns the fixed polling interval.
// Params: none.
// Returns: interval duration.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMin) * time.Minute
}

// NotifyConfig groups outbound notification settings.
// Params: telegram transport and optional async queue sections.
// Returns: notification runtime options.
type NotifyConfig struct {
	Telegram TelegramNotifier `toml:"telegram"`
	Queue    QueueConfig      `toml:"queue"`
}

// TelegramNotifier configures the Telegram delivery channel.
// Params: bot credentials, chat routing, message template, and retry policy.
// Returns: telegram sender settings.
type TelegramNotifier struct {
	Enabled         bool        `toml:"enabled"`
	BotToken        string      `toml:"bot_token"`
	ChatID          string      `toml:"chat_id"`
	APIBase         string      `toml:"api_base"`
	TimeoutSec      int         `toml:"timeout_sec"`
	MessageTemplate string      `toml:"message_template"`
	Retry           NotifyRetry `toml:"retry"`
}

// NotifyRetry configures bounded retry with capped backoff for one channel.
// Params: enable flag, attempt budget, and backoff bounds in milliseconds.
// Returns: retry policy settings.
type NotifyRetry struct {
	Enabled        bool `toml:"enabled"`
	MaxAttempts    int  `toml:"max_attempts"`
	InitialMS      int  `toml:"initial_ms"`
	MaxMS          int  `toml:"max_ms"`
	LogEachAttempt bool `toml:"log_each_attempt"`
}

// QueueConfig configures the optional best-effort JetStream delivery queue.
// Params: connection URL and ack/redelivery policy; stream routing keys are runtime-fixed.
// Returns: queue runtime options.
type QueueConfig struct {
	Enabled       bool   `toml:"enabled"`
	URL           string `toml:"url"`
	AckWaitSec    int    `toml:"ack_wait_sec"`
	NackDelayMS   int    `toml:"nack_delay_ms"`
	MaxDeliver    int    `toml:"max_deliver"`
	MaxAckPending int    `toml:"max_ack_pending"`

	// Runtime-fixed routing keys, not decoded from TOML.
	Stream       string `toml:"-"`
	Subject      string `toml:"-"`
	ConsumerName string `toml:"-"`
	DeliverGroup string `toml:"-"`
}

// envOverrides carries secret values injected from environment.
// Params: env tags for credentials that should stay out of the config file.
// Returns: override values applied after TOML decode.
type envOverrides struct {
	TelegramBotToken  string `env:"STOCKWATCH_TELEGRAM_BOT_TOKEN"`
	SourceCookieValue string `env:"STOCKWATCH_SOURCE_COOKIE_VALUE"`
}

// Load reads, overrides, defaults, and validates one TOML config file.
// Params: config file path.
// Returns: validated config or load/validation error.
func Load(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays secret fields from environment variables.
// Params: cfg pointer to decoded snapshot.
// Returns: env parse error.
func applyEnvOverrides(cfg *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env overrides: %w", err)
	}
	if strings.TrimSpace(overrides.TelegramBotToken) != "" {
		cfg.Notify.Telegram.BotToken = overrides.TelegramBotToken
	}
	if strings.TrimSpace(overrides.SourceCookieValue) != "" {
		cfg.Source.CookieValue = overrides.SourceCookieValue
	}
	return nil
}

// applyDefaults fills omitted config fields with safe defaults.
// Params: cfg pointer to decoded snapshot.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "stockwatch"
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if cfg.Source.TimeoutSec <= 0 {
		cfg.Source.TimeoutSec = defaultSourceTimeoutSec
	}
	if cfg.Source.MinBodyBytes <= 0 {
		cfg.Source.MinBodyBytes = defaultSourceMinBody
	}
	if cfg.Source.Browser.WaitSec <= 0 {
		cfg.Source.Browser.WaitSec = defaultBrowserWaitSec
	}

	if strings.TrimSpace(cfg.Archive.Dir) == "" {
		cfg.Archive.Dir = defaultArchiveDir
	}
	if strings.TrimSpace(cfg.Archive.PagesDir) == "" {
		cfg.Archive.PagesDir = defaultArchivePagesDir
	}

	if strings.TrimSpace(cfg.Notify.Telegram.MessageTemplate) == "" {
		cfg.Notify.Telegram.MessageTemplate = DefaultMessageTemplate
	}
	if cfg.Notify.Telegram.TimeoutSec <= 0 {
		cfg.Notify.Telegram.TimeoutSec = defaultTelegramTimeout
	}
	if cfg.Notify.Telegram.Retry.Enabled {
		if cfg.Notify.Telegram.Retry.InitialMS <= 0 {
			cfg.Notify.Telegram.Retry.InitialMS = defaultRetryInitialMS
		}
		if cfg.Notify.Telegram.Retry.MaxMS <= 0 {
			cfg.Notify.Telegram.Retry.MaxMS = defaultRetryMaxMS
		}
		if cfg.Notify.Telegram.Retry.MaxAttempts <= 0 {
			cfg.Notify.Telegram.Retry.MaxAttempts = defaultRetryMaxAttempts
		}
	}

	if strings.TrimSpace(cfg.Notify.Queue.URL) == "" {
		cfg.Notify.Queue.URL = defaultQueueURL
	}
	if cfg.Notify.Queue.AckWaitSec <= 0 {
		cfg.Notify.Queue.AckWaitSec = defaultQueueAckWaitSec
	}
	if cfg.Notify.Queue.NackDelayMS <= 0 {
		cfg.Notify.Queue.NackDelayMS = defaultQueueNackDelayMS
	}
	if cfg.Notify.Queue.MaxDeliver == 0 {
		cfg.Notify.Queue.MaxDeliver = defaultQueueMaxDeliver
	}
	if cfg.Notify.Queue.MaxAckPending <= 0 {
		cfg.Notify.Queue.MaxAckPending = defaultQueueMaxPending
	}
	cfg.Notify.Queue.Stream = queueStreamName
	cfg.Notify.Queue.Subject = queueSubjectName
	cfg.Notify.Queue.ConsumerName = queueConsumerName
	cfg.Notify.Queue.DeliverGroup = queueDeliverGroupName
}

// validateConfig checks required fields and cross-field consistency.
// Params: config snapshot after defaults.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Source.URL) == "" {
		return errors.New("source.url is required")
	}
	parsed, err := url.Parse(cfg.Source.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("source.url %q must be an absolute URL", cfg.Source.URL)
	}
	if strings.TrimSpace(cfg.Source.UserAgent) == "" {
		return errors.New("source.user_agent is required")
	}
	if strings.TrimSpace(cfg.Source.CookieName) == "" {
		return errors.New("source.cookie_name is required")
	}
	if strings.TrimSpace(cfg.Source.CookieValue) == "" {
		return errors.New("source.cookie_value is required")
	}

	if cfg.Monitor.IntervalMin <= 0 {
		return errors.New("monitor.interval_min must be >0")
	}
	if cfg.Monitor.CooldownSec < 0 {
		return errors.New("monitor.cooldown_sec must be >=0")
	}

	if err := domain.ValidateCatalog(cfg.Product); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	if cfg.Notify.Telegram.Enabled {
		if strings.TrimSpace(cfg.Notify.Telegram.BotToken) == "" {
			return errors.New("notify.telegram.bot_token is required (config or STOCKWATCH_TELEGRAM_BOT_TOKEN)")
		}
		if strings.TrimSpace(cfg.Notify.Telegram.ChatID) == "" {
			return errors.New("notify.telegram.chat_id is required")
		}
	}
	if err := validateMessageTemplate(cfg.Notify.Telegram.MessageTemplate); err != nil {
		return fmt.Errorf("notify.telegram.message_template: %w", err)
	}

	if cfg.Notify.Queue.Enabled && strings.TrimSpace(cfg.Notify.Queue.URL) == "" {
		return errors.New("notify.queue.url is required when queue is enabled")
	}

	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}
	return nil
}

// validateMessageTemplate compiles the alert template and checks the four
// mandatory fields survive rendering.
// Params: template body.
// Returns: parse/render error or missing-field error.
func validateMessageTemplate(body string) error {
	compiled, err := templatefmt.ParseMessageTemplate(messageTemplateProbeName, body)
	if err != nil {
		return err
	}
	probe := domain.Alert{
		Product:   "probe-product-417",
		Stock:     31337,
		Threshold: 24601,
		At:        time.Date(2026, 3, 14, 15, 9, 26, 0, time.Local),
	}
	rendered, err := templatefmt.RenderMessage(compiled, probe)
	if err != nil {
		return fmt.Errorf("render probe alert: %w", err)
	}
	required := map[string]string{
		"product name":  probe.Product,
		"current stock": "31337",
		"threshold":     "24601",
		"timestamp":     templatefmt.FormatTime(probe.At),
	}
	for field, marker := range required {
		if !strings.Contains(rendered, marker) {
			return fmt.Errorf("rendered message must include %s", field)
		}
	}
	return nil
}

// validateLogSink checks one log sink section.
// Params: section name, sink settings, and whether a path is required.
// Returns: validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}
	switch sink.Format {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format %q is not supported", name, sink.Format)
	}
	switch strings.ToLower(sink.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level %q is not supported", name, sink.Level)
	}
	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}
	return nil
}

// NormalizeQuietHours validates the quiet-hours pair and substitutes the
// hardcoded fallback window when any bound is out of range.
// Params: configured snooze start/end hours.
// Returns: effective start/end pair and whether the fallback replaced the input.
func NormalizeQuietHours(start, end int) (int, int, bool) {
	if start < 0 || start >= 24 || end <= 0 || end > 24 {
		return fallbackSnoozeStartHour, fallbackSnoozeEndHour, true
	}
	return start, end, false
}
