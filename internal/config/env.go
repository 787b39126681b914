package config

import (
	"os"
	"strings"
)

// Environment variables that override file values when set and non-empty.
const (
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIModel   = "OPENAI_MODEL"
	EnvWebhookURL    = "WEBHOOK_URL"
	EnvPort          = "PORT"
)

// ApplyEnv overrides cfg from the environment using lookup. It returns the
// names of the variables that were applied.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) []string {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var applied []string
	set := func(name string, dst *string, conv func(string) string) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return
		}
		if conv != nil {
			v = conv(v)
		}
		*dst = v
		applied = append(applied, name)
	}

	set(EnvTelegramToken, &cfg.Telegram.Token, nil)
	set(EnvOpenAIKey, &cfg.Content.APIKey, nil)
	set(EnvOpenAIModel, &cfg.Content.Model, nil)
	set(EnvWebhookURL, &cfg.Telegram.WebhookURL, nil)
	set(EnvPort, &cfg.HTTP.Addr, func(port string) string {
		if strings.Contains(port, ":") {
			return port
		}
		return ":" + port
	})
	return applied
}
