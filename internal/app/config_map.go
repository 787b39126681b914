package app

import (
	"fmt"
	"strings"
	"time"

	"biteiq/internal/bridge"
	"biteiq/internal/config"
	"biteiq/internal/content"
	"biteiq/internal/ingress"
	"biteiq/internal/notifier"
	"biteiq/internal/storage"
	"biteiq/internal/transport/telegram/adapter"
	logx "biteiq/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	lg := cfg.Logging
	return logx.Config{
		Level:   lg.Level,
		Console: lg.Console,
		File: logx.FileConfig{
			Enabled: lg.File.Enabled,
			Path:    lg.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lg.Telegram.Enabled && cfg.Telegram.LogChatID != 0,
			ChatID:     cfg.Telegram.LogChatID,
			ThreadID:   lg.Telegram.ThreadID,
			MinLevel:   lg.Telegram.MinLevel,
			RatePerSec: lg.Telegram.RatePerSec,
		},
	}
}

func mapAdapter(cfg *config.Config, offline bool) adapter.Config {
	return adapter.Config{
		Token:       cfg.Telegram.Token,
		APIURL:      cfg.Telegram.APIURL,
		SendTimeout: config.DurationOr(cfg.Telegram.SendTimeout, 10*time.Second),
		RatePerSec:  float64(cfg.Telegram.RatePerSec),
		Offline:     offline,
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	path := strings.TrimSpace(sc.Path)
	if driver == "sqlite" && path == "" {
		path = "./data/biteiq.db"
	}
	if driver != "sqlite" && driver != "memory" {
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return storage.Config{
		Driver:      driver,
		Path:        path,
		BusyTimeout: config.DurationOr(sc.BusyTimeout, 5*time.Second),
	}, nil
}

func mapContent(cfg *config.Config) content.Config {
	return content.Config{
		APIKey:     cfg.Content.APIKey,
		Model:      cfg.Content.Model,
		BaseURL:    cfg.Content.BaseURL,
		Timeout:    config.DurationOr(cfg.Content.Timeout, 45*time.Second),
		MaxRetries: cfg.Content.MaxRetries,
	}
}

func mapBridge(cfg *config.Config) bridge.Config {
	return bridge.Config{
		QueueSize:   cfg.Bridge.QueueSize,
		MaxInFlight: cfg.Bridge.MaxInFlight,
		Timeout:     config.DurationOr(cfg.Bridge.Timeout, 90*time.Second),
		GracePeriod: config.DurationOr(cfg.Bridge.GracePeriod, 5*time.Second),
	}
}

func mapNotifier(cfg *config.Config, loc *time.Location) notifier.Config {
	sc := cfg.Scheduler
	nc := notifier.Config{
		DailyPlanAt:      sc.DailyPlanAt,
		RecipientTimeout: config.DurationOr(sc.RecipientTimeout, 90*time.Second),
		HistoryDays:      sc.HistoryDays,
		Location:         loc,
		MaxPending:       sc.MaxPending,
	}
	if len(sc.Reminders) > 0 {
		nc.Reminders = make([]notifier.Reminder, 0, len(sc.Reminders))
		for _, r := range sc.Reminders {
			kind := r.Kind
			if kind == "" {
				kind = r.Name
			}
			nc.Reminders = append(nc.Reminders, notifier.Reminder{Name: r.Name, At: r.At, Kind: kind})
		}
	}
	return nc
}

func mapIngress(cfg *config.Config) ingress.Config {
	h := cfg.HTTP
	return ingress.Config{
		Addr:         h.Addr,
		WebhookPath:  h.WebhookPath,
		Secret:       cfg.Telegram.WebhookSecret,
		MaxBodyBytes: h.MaxBodyBytes,
		DedupWindow:  config.DurationOr(h.DedupWindow, 0),
		ReadTimeout:  config.DurationOr(h.ReadTimeout, 10*time.Second),
		WriteTimeout: config.DurationOr(h.WriteTimeout, 10*time.Second),
		IdleTimeout:  config.DurationOr(h.IdleTimeout, 60*time.Second),
		Pprof: ingress.PprofConfig{
			Enabled: h.Pprof.Enabled,
			Token:   h.Pprof.Token,
			Prefix:  h.Pprof.Prefix,
		},
	}
}

// webhookURL joins the public base URL and the webhook path.
func webhookURL(cfg *config.Config) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.Telegram.WebhookURL), "/")
	if base == "" {
		return ""
	}
	path := cfg.HTTP.WebhookPath
	if path == "" {
		path = "/webhook"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}
