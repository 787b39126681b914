package logx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	kit "biteiq/internal/transport"
)

type captureSender struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
}

func (c *captureSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	c.to = append(c.to, to)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}
func (c *captureSender) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (c *captureSender) AnswerCallback(context.Context, string, string) error { return nil }
func (c *captureSender) Typing(context.Context, kit.ChatTarget) error         { return nil }

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := FromZerolog(zerolog.New(&buf)).With(String("comp", "bridge"))
	l.Info("hello", Int64("recipient", 42), Err(nil))

	out := buf.String()
	for _, want := range []string{`"comp":"bridge"`, `"recipient":42`, `"message":"hello"`, `"caller":"logx_test.go`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, `"err"`) {
		t.Fatalf("nil error must not be rendered: %q", out)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("dropped")
	Nop().With(String("a", "b")).Warn("dropped")
}

func TestTelegramSinkForwardsWarnings(t *testing.T) {
	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, ChatID: 99, MinLevel: "warn", RatePerSec: 100},
	})
	defer svc.Close()

	sender := &captureSender{}
	svc.SetSender(sender)

	log.Info("below threshold")
	log.Warn("delivery failed", Int64("recipient", 7))

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1: %v", len(sender.sent), sender.sent)
	}
	if sender.to[0].ChatID != 99 {
		t.Fatalf("chat = %d", sender.to[0].ChatID)
	}
	if !strings.HasPrefix(sender.sent[0], "[WARN] delivery failed") || !strings.Contains(sender.sent[0], "- recipient=7") {
		t.Fatalf("unexpected message %q", sender.sent[0])
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()

	got := formatTelegramJSON([]byte(`{"level":"error","message":"boom","time":"x","b":"2","a":1}` + "\n"))
	want := "[ERROR] boom\n- a=1\n- b=2"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := formatTelegramJSON([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("raw fallback = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"nope":    zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("parseLevel(%q) = %v want %v", in, got, want)
		}
	}
}
