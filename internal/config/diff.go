package config

import (
	"reflect"
	"strings"

	logx "biteiq/pkg/logx"
)

// SummarizeChange compares two configs section by section. changed lists
// every section that differs; restart lists the changed sections that only
// take effect after a restart (everything but logging). attrs are safe to
// log and never include secrets.
func SummarizeChange(oldCfg, newCfg *Config) (changed, restart []string, attrs []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	sections := []struct {
		name string
		a, b any
	}{
		{"telegram", oldCfg.Telegram, newCfg.Telegram},
		{"http", oldCfg.HTTP, newCfg.HTTP},
		{"content", oldCfg.Content, newCfg.Content},
		{"bridge", oldCfg.Bridge, newCfg.Bridge},
		{"scheduler", oldCfg.Scheduler, newCfg.Scheduler},
		{"conversation", oldCfg.Conversation, newCfg.Conversation},
		{"billing", oldCfg.Billing, newCfg.Billing},
		{"storage", oldCfg.Storage, newCfg.Storage},
		{"secrets", oldCfg.Secrets, newCfg.Secrets},
		{"logging", oldCfg.Logging, newCfg.Logging},
	}
	for _, s := range sections {
		if reflect.DeepEqual(s.a, s.b) {
			continue
		}
		changed = append(changed, s.name)
		if s.name != "logging" {
			restart = append(restart, s.name)
		}
	}

	if len(changed) > 0 {
		attrs = append(attrs, logx.String("changed", strings.Join(changed, ",")))
	}
	if len(restart) > 0 {
		attrs = append(attrs, logx.String("restart_required", strings.Join(restart, ",")))
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		lg := newCfg.Logging
		attrs = append(attrs,
			logx.String("logging.level", lg.Level),
			logx.Bool("logging.console", lg.Console),
			logx.Bool("logging.file_enabled", lg.File.Enabled),
			logx.Bool("logging.telegram_enabled", lg.Telegram.Enabled),
		)
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		attrs = append(attrs, logx.Bool("telegram.token_changed", true))
	}
	if oldCfg.Content.APIKey != newCfg.Content.APIKey {
		attrs = append(attrs, logx.Bool("content.api_key_changed", true))
	}
	return changed, restart, attrs
}
