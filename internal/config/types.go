package config

// Config is the whole file. Durations are Go duration strings ("10s", "1m").
// Only the logging section is applied on hot reload; everything else is read
// once at startup.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	HTTP         HTTPConfig         `json:"http"`
	Content      ContentConfig      `json:"content"`
	Bridge       BridgeConfig       `json:"bridge"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Conversation ConversationConfig `json:"conversation"`
	Billing      BillingConfig      `json:"billing"`
	Storage      StorageConfig      `json:"storage"`
	Secrets      SecretsConfig      `json:"secrets"`
	Logging      LoggingConfig      `json:"logging"`
}

// TelegramConfig. Token may be an "ssm:/path" reference.
type TelegramConfig struct {
	Token           string `json:"token"`
	APIURL          string `json:"api_url,omitempty"`
	WebhookURL      string `json:"webhook_url"`
	WebhookSecret   string `json:"webhook_secret,omitempty"`
	RegisterWebhook bool   `json:"register_webhook"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	LogChatID       int64  `json:"log_chat_id,omitempty"`
}

type HTTPConfig struct {
	Addr         string      `json:"addr"`
	WebhookPath  string      `json:"webhook_path,omitempty"`
	MaxBodyBytes int64       `json:"max_body_bytes,omitempty"`
	ReadTimeout  string      `json:"read_timeout,omitempty"`
	WriteTimeout string      `json:"write_timeout,omitempty"`
	IdleTimeout  string      `json:"idle_timeout,omitempty"`
	DedupWindow  string      `json:"dedup_window,omitempty"` // "0s" disables
	Pprof        PprofConfig `json:"pprof"`
}

// PprofConfig mounts profiling endpoints on the public listener. They are
// only mounted when Token is set.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"` // do not log
	Prefix  string `json:"prefix,omitempty"`
}

// ContentConfig. APIKey may be an "ssm:/path" reference.
type ContentConfig struct {
	APIKey     string `json:"api_key"`
	Model      string `json:"model,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty"`
}

type BridgeConfig struct {
	QueueSize   int    `json:"queue_size,omitempty"`
	MaxInFlight int    `json:"max_in_flight,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
	GracePeriod string `json:"grace_period,omitempty"`
}

type SchedulerConfig struct {
	Enabled          bool             `json:"enabled"`
	Timezone         string           `json:"timezone,omitempty"`
	DailyPlanAt      string           `json:"daily_plan_at,omitempty"`
	Reminders        []ReminderConfig `json:"reminders,omitempty"`
	RecipientTimeout string           `json:"recipient_timeout,omitempty"`
	HistoryDays      int              `json:"history_days,omitempty"`
	MaxPending       int              `json:"max_pending,omitempty"`
}

type ReminderConfig struct {
	Name string `json:"name"`
	At   string `json:"at"`
	Kind string `json:"kind,omitempty"`
}

type ConversationConfig struct {
	IdleTTL      string `json:"idle_ttl,omitempty"`
	PruneEvery   string `json:"prune_every,omitempty"`
	RouteTimeout string `json:"route_timeout,omitempty"`
}

// BillingConfig holds URL templates; "{id}" is replaced by the recipient id.
type BillingConfig struct {
	CheckoutURL string `json:"checkout_url"`
	PortalURL   string `json:"portal_url,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SecretsConfig controls how "ssm:" references are resolved.
type SecretsConfig struct {
	Region  string `json:"region,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
