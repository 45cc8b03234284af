package config

import "time"

// Config holds the configuration of every civicbot component. Values come from
// defaults, an optional YAML file and the environment (see LoadConfig).
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	State     StateConfig     `mapstructure:"state"`
	Storage   StorageConfig   `mapstructure:"storage"`
	AI        AIConfig        `mapstructure:"ai"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Geocoder  GeocoderConfig  `mapstructure:"geocoder"`
	Email     EmailConfig     `mapstructure:"email"`
	Twitter   TwitterConfig   `mapstructure:"twitter"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Budgets   BudgetsConfig   `mapstructure:"budgets"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log level and format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"min=1024"`
	AdminToken      string        `mapstructure:"admin_token"`
}

// DatabaseConfig points at the SQLite reports database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// StateConfig selects where bookkeeping records (AI usage, rate limits, ledger) live.
type StateConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=file database"`
	Dir     string `mapstructure:"dir"     validate:"required_if=Backend file"`
}

// StorageConfig selects where uploaded photos are kept.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"     validate:"oneof=local s3"`
	Dir        string `mapstructure:"dir"         validate:"required_if=Backend local"`
	S3Bucket   string `mapstructure:"s3_bucket"   validate:"required_if=Backend s3"`
	S3Region   string `mapstructure:"s3_region"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint" validate:"omitempty,url"`
	// Static keys are optional; the default AWS credential chain applies when empty.
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key" validate:"required_with=S3AccessKey"`
}

// AIConfig governs AI classification and its daily cap.
type AIConfig struct {
	ClassificationEnabled bool   `mapstructure:"classification_enabled"`
	DailyLimit            int    `mapstructure:"daily_limit" validate:"min=0"`
	Timezone              string `mapstructure:"timezone"    validate:"required"`
}

// LLMConfig selects and configures the language model backend.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"     validate:"oneof=none gateway openai gemini"`
	GatewayURL  string        `mapstructure:"gateway_url"  validate:"required_if=Provider gateway,omitempty,url"`
	BaseURL     string        `mapstructure:"base_url"     validate:"omitempty,url"`
	APIKey      string        `mapstructure:"api_key"      validate:"required_if=Provider openai,required_if=Provider gemini"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"  validate:"min=0,max=2"`
	MaxTokens   int           `mapstructure:"max_tokens"   validate:"min=0"`
	Timeout     time.Duration `mapstructure:"timeout"      validate:"min=100ms,max=2m"`
	MaxRetries  int           `mapstructure:"max_retries"  validate:"min=0,max=5"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// GeocoderConfig configures reverse geocoding.
type GeocoderConfig struct {
	BaseURL   string        `mapstructure:"base_url"   validate:"required,url"`
	UserAgent string        `mapstructure:"user_agent" validate:"required"`
	Zoom      int           `mapstructure:"zoom"       validate:"min=0,max=18"`
	City      string        `mapstructure:"city"`
	Timeout   time.Duration `mapstructure:"timeout"    validate:"min=100ms"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// EmailConfig configures authority notification.
type EmailConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Transport      string        `mapstructure:"transport"        validate:"oneof=smtp sendgrid"`
	Host           string        `mapstructure:"host"             validate:"required_if=Transport smtp"`
	Port           int           `mapstructure:"port"             validate:"min=1,max=65535"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	SendGridAPIKey string        `mapstructure:"sendgrid_api_key"`
	From           string        `mapstructure:"from"             validate:"required,email"`
	To             []string      `mapstructure:"to"               validate:"dive,email"`
	Disclaimer     string        `mapstructure:"disclaimer"`
	Timeout        time.Duration `mapstructure:"timeout"          validate:"min=1s"`
}

// TwitterConfig configures tweet composition and posting.
type TwitterConfig struct {
	// Simulate is decoded by LoadConfig: only the literal "false" turns it off.
	Simulate       bool          `mapstructure:"-"`
	AutoTweet      bool          `mapstructure:"auto_tweet"`
	DailyLimit     int           `mapstructure:"daily_limit"      validate:"min=0"`
	ConsumerKey    string        `mapstructure:"consumer_key"`
	ConsumerSecret string        `mapstructure:"consumer_secret"`
	AccessToken    string        `mapstructure:"access_token"`
	AccessSecret   string        `mapstructure:"access_secret"`
	CivicHandle    string        `mapstructure:"civic_handle"     validate:"required,startswith=@"`
	ICCCHandle     string        `mapstructure:"iccc_handle"      validate:"omitempty,startswith=@"`
	StaleHandles   []string      `mapstructure:"stale_handles"    validate:"dive,startswith=@"`
	APIBaseURL     string        `mapstructure:"api_base_url"     validate:"required,url"`
	UploadBaseURL  string        `mapstructure:"upload_base_url"  validate:"required,url"`
	Timeout        time.Duration `mapstructure:"timeout"          validate:"min=1s"`
	MediaMaxBytes  int           `mapstructure:"media_max_bytes"  validate:"min=1024"`
	MediaMaxPixels int           `mapstructure:"media_max_pixels" validate:"min=64"`
}

// HasCredentials reports whether all four OAuth 1.0a credentials are set.
func (c TwitterConfig) HasCredentials() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// MonitorConfig configures the mention monitor.
type MonitorConfig struct {
	Handles          []string      `mapstructure:"handles"            validate:"dive,startswith=@"`
	RecencyWindow    time.Duration `mapstructure:"recency_window"     validate:"min=1m"`
	MaxRepliesPerRun int           `mapstructure:"max_replies_per_run" validate:"min=0"`
	ReplyDelay       time.Duration `mapstructure:"reply_delay"`
	MaxResults       int           `mapstructure:"max_results"        validate:"min=5,max=100"`
	LedgerRetention  time.Duration `mapstructure:"ledger_retention"   validate:"min=1h"`
}

// PipelineConfig bounds background pipeline work.
type PipelineConfig struct {
	StepTimeout       time.Duration `mapstructure:"step_timeout"       validate:"min=1s"`
	BackgroundTimeout time.Duration `mapstructure:"background_timeout" validate:"min=1s"`
}

// BudgetsConfig points at the transparency budget seed file.
type BudgetsConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a task on a cron schedule (seconds field optional).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
