package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultLogLevel = "info"

	DefaultServerAddr      = ":3000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxUploadBytes  = 10 << 20

	DefaultDatabasePath = ".data/civicbot.db"
	DefaultStateDir     = ".data"
	DefaultUploadsDir   = ".data/uploads"

	DefaultAIDailyLimit = 5

	DefaultLLMModel       = "llama3.1-8b"
	DefaultLLMBaseURL     = "https://api.cerebras.ai/v1"
	DefaultLLMTemperature = 0.3
	DefaultLLMMaxTokens   = 300
	DefaultLLMTimeout     = 5 * time.Second

	DefaultGeocoderBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultGeocoderUserAgent = "BengaluruInfraAgent/1.0"
	DefaultGeocoderZoom      = 14
	DefaultGeocoderCity      = "Bengaluru"
	DefaultGeocoderTimeout   = 3 * time.Second
	DefaultGeocoderCacheTTL  = 24 * time.Hour

	DefaultSMTPHost     = "localhost"
	DefaultSMTPPort     = 1025
	DefaultEmailFrom    = "reports@civicbot.local"
	DefaultEmailTimeout = 10 * time.Second
	DefaultDisclaimer   = "This report was submitted by a citizen through an automated civic reporting service."

	DefaultTweetDailyLimit   = 10
	DefaultCivicHandle       = "@GBA_office"
	DefaultICCCHandle        = "@ICCCBengaluru"
	DefaultTwitterAPIBaseURL = "https://api.twitter.com"
	DefaultTwitterUploadURL  = "https://upload.twitter.com"
	DefaultTwitterTimeout    = 10 * time.Second
	DefaultMediaMaxBytes     = 5 << 20
	DefaultMediaMaxPixels    = 4096

	DefaultRecencyWindow    = 2 * time.Hour
	DefaultMaxRepliesPerRun = 5
	DefaultReplyDelay       = 2 * time.Minute
	DefaultMaxResults       = 20
	DefaultLedgerRetention  = 7 * 24 * time.Hour

	DefaultStepTimeout       = 30 * time.Second
	DefaultBackgroundTimeout = 2 * time.Minute

	DefaultBudgetsPath = "data/seed/budgets.json"
)

// DefaultStaleHandles are civic handles that models still produce but are no longer monitored.
var DefaultStaleHandles = []string{"@BBMPCOMM", "@BBMP_MAYOR", "@bbmpcommr"}

// DefaultMonitoredHandles are the authority accounts whose mentions are watched.
var DefaultMonitoredHandles = []string{"@GBA_office", "@ICCCBengaluru"}

// DefaultTasks are the scheduled tasks known to the service.
var DefaultTasks = map[string]any{
	"monitor_twitter":  map[string]any{"enabled": false, "schedule": "0 */15 * * * *"},
	"sql_maintenance":  map[string]any{"enabled": true, "schedule": "0 30 3 * * *"},
	"state_compaction": map[string]any{"enabled": true, "schedule": "0 5 * * * *"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.write_timeout", DefaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("server.admin_token", "")

	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("state.backend", "file")
	v.SetDefault("state.dir", DefaultStateDir)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.dir", DefaultUploadsDir)
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "")
	v.SetDefault("storage.s3_prefix", "reports/")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_access_key", "")
	v.SetDefault("storage.s3_secret_key", "")

	v.SetDefault("ai.classification_enabled", false)
	v.SetDefault("ai.daily_limit", DefaultAIDailyLimit)
	v.SetDefault("ai.timezone", "Local")

	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.gateway_url", "")
	v.SetDefault("llm.base_url", DefaultLLMBaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.temperature", DefaultLLMTemperature)
	v.SetDefault("llm.max_tokens", DefaultLLMMaxTokens)
	v.SetDefault("llm.timeout", DefaultLLMTimeout)
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.retry_delay", time.Second)

	v.SetDefault("geocoder.base_url", DefaultGeocoderBaseURL)
	v.SetDefault("geocoder.user_agent", DefaultGeocoderUserAgent)
	v.SetDefault("geocoder.zoom", DefaultGeocoderZoom)
	v.SetDefault("geocoder.city", DefaultGeocoderCity)
	v.SetDefault("geocoder.timeout", DefaultGeocoderTimeout)
	v.SetDefault("geocoder.cache_ttl", DefaultGeocoderCacheTTL)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.transport", "smtp")
	v.SetDefault("email.host", DefaultSMTPHost)
	v.SetDefault("email.port", DefaultSMTPPort)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.sendgrid_api_key", "")
	v.SetDefault("email.from", DefaultEmailFrom)
	v.SetDefault("email.to", []string{})
	v.SetDefault("email.disclaimer", DefaultDisclaimer)
	v.SetDefault("email.timeout", DefaultEmailTimeout)

	v.SetDefault("twitter.simulate", true)
	v.SetDefault("twitter.auto_tweet", false)
	v.SetDefault("twitter.daily_limit", DefaultTweetDailyLimit)
	v.SetDefault("twitter.consumer_key", "")
	v.SetDefault("twitter.consumer_secret", "")
	v.SetDefault("twitter.access_token", "")
	v.SetDefault("twitter.access_secret", "")
	v.SetDefault("twitter.civic_handle", DefaultCivicHandle)
	v.SetDefault("twitter.iccc_handle", DefaultICCCHandle)
	v.SetDefault("twitter.stale_handles", DefaultStaleHandles)
	v.SetDefault("twitter.api_base_url", DefaultTwitterAPIBaseURL)
	v.SetDefault("twitter.upload_base_url", DefaultTwitterUploadURL)
	v.SetDefault("twitter.timeout", DefaultTwitterTimeout)
	v.SetDefault("twitter.media_max_bytes", DefaultMediaMaxBytes)
	v.SetDefault("twitter.media_max_pixels", DefaultMediaMaxPixels)

	v.SetDefault("monitor.handles", DefaultMonitoredHandles)
	v.SetDefault("monitor.recency_window", DefaultRecencyWindow)
	v.SetDefault("monitor.max_replies_per_run", DefaultMaxRepliesPerRun)
	v.SetDefault("monitor.reply_delay", DefaultReplyDelay)
	v.SetDefault("monitor.max_results", DefaultMaxResults)
	v.SetDefault("monitor.ledger_retention", DefaultLedgerRetention)

	v.SetDefault("pipeline.step_timeout", DefaultStepTimeout)
	v.SetDefault("pipeline.background_timeout", DefaultBackgroundTimeout)

	v.SetDefault("budgets.path", DefaultBudgetsPath)

	v.SetDefault("scheduler.tasks", DefaultTasks)
}

// legacyEnv binds the environment variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"server.addr":               "PORT",
	"database.path":             "DATABASE_PATH",
	"storage.dir":               "FILE_STORAGE_DIR",
	"ai.classification_enabled": "ENABLE_CLASSIFICATION",
	"ai.daily_limit":            "AI_DAILY_LIMIT",
	"llm.gateway_url":           "MCP_BASE_URL",
	"email.enabled":             "ENABLE_EMAIL",
	"email.host":                "SMTP_HOST",
	"email.port":                "SMTP_PORT",
	"email.username":            "SMTP_USER",
	"email.password":            "SMTP_PASS",
	"email.from":                "FROM_EMAIL",
	"email.to":                  "NOTIFY_TO",
	"email.disclaimer":          "DISCLAIMER_TEXT",
	"email.sendgrid_api_key":    "SENDGRID_API_KEY",
	"twitter.simulate":          "SIMULATE_TWITTER",
	"twitter.auto_tweet":        "AUTO_TWEET",
	"twitter.daily_limit":       "TWITTER_DAILY_LIMIT",
	"twitter.consumer_key":      "TWITTER_CONSUMER_KEY",
	"twitter.consumer_secret":   "TWITTER_CONSUMER_SECRET",
	"twitter.access_token":      "TWITTER_ACCESS_TOKEN",
	"twitter.access_secret":     "TWITTER_ACCESS_SECRET",
	"monitor.handles":           "MONITORED_TWITTER_HANDLES",
}
