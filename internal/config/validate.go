package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks what the process cannot start without, plus every
// duration field. Secret references are not resolved here.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken))
	}
	if strings.TrimSpace(cfg.Content.APIKey) == "" {
		errs = append(errs, fmt.Errorf("content.api_key is required (or set %s)", EnvOpenAIKey))
	}
	if cfg.Telegram.RegisterWebhook && strings.TrimSpace(cfg.Telegram.WebhookURL) == "" {
		errs = append(errs, fmt.Errorf("telegram.webhook_url is required when register_webhook is set (or set %s)", EnvWebhookURL))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver))
	}

	durations := map[string]string{
		"telegram.send_timeout":       cfg.Telegram.SendTimeout,
		"http.read_timeout":           cfg.HTTP.ReadTimeout,
		"http.write_timeout":          cfg.HTTP.WriteTimeout,
		"http.idle_timeout":           cfg.HTTP.IdleTimeout,
		"http.dedup_window":           cfg.HTTP.DedupWindow,
		"content.timeout":             cfg.Content.Timeout,
		"bridge.timeout":              cfg.Bridge.Timeout,
		"bridge.grace_period":         cfg.Bridge.GracePeriod,
		"scheduler.recipient_timeout": cfg.Scheduler.RecipientTimeout,
		"conversation.idle_ttl":       cfg.Conversation.IdleTTL,
		"conversation.prune_every":    cfg.Conversation.PruneEvery,
		"conversation.route_timeout":  cfg.Conversation.RouteTimeout,
		"storage.busy_timeout":        cfg.Storage.BusyTimeout,
		"secrets.timeout":             cfg.Secrets.Timeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Scheduler.Timezone) != "" {
		if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	seen := map[string]bool{}
	for i, r := range cfg.Scheduler.Reminders {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("scheduler.reminders[%d]: name is required", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("scheduler.reminders[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
		if strings.TrimSpace(r.At) == "" {
			errs = append(errs, fmt.Errorf("scheduler.reminders[%d]: at is required", i))
		}
	}
	return errors.Join(errs...)
}
