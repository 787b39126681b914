// Package adapter is the Telegram side of the bot: it decodes webhook
// updates and delivers outbound messages through telebot.
package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"biteiq/internal/domain"
	kit "biteiq/internal/transport"
	logx "biteiq/pkg/logx"
)

type Config struct {
	Token       string
	APIURL      string // empty means the public Bot API
	SendTimeout time.Duration
	RatePerSec  float64
	// Offline skips the getMe check at construction.
	Offline bool
}

// Adapter implements kit.Deliverer and kit.CommandMenuUpdater.
type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	menuMu   sync.Mutex
	menuHash uint64
}

var (
	_ kit.Deliverer          = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Client:  &http.Client{Timeout: cfg.SendTimeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Adapter{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "telegram.adapter")),
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
	}, nil
}

// Username is the bot's username as reported by getMe (empty when offline).
func (a *Adapter) Username() string {
	if a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.limiter.Wait(ctx)
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitText(text, textLimit, opt.ParseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := a.wait(ctx); err != nil {
			return first, &domain.DeliveryError{ChatID: to.ChatID, Op: "send", Err: err}
		}
		sendOpt := &tele.SendOptions{
			ParseMode:             tele.ParseMode(opt.ParseMode),
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		// Markup goes on the first chunk only.
		if i == 0 {
			sendOpt.ReplyMarkup = markup(opt.Keyboard)
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return first, &domain.DeliveryError{ChatID: to.ChatID, Op: "send", Err: err}
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitText(text, textLimit, opt.ParseMode)

	if err := a.wait(ctx); err != nil {
		return &domain.DeliveryError{ChatID: ref.ChatID, Op: "edit", Err: err}
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(m, chunks[0], &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		ReplyMarkup:           markup(opt.Keyboard),
	})
	if err != nil && !errors.Is(err, tele.ErrSameMessageContent) {
		return &domain.DeliveryError{ChatID: ref.ChatID, Op: "edit", Err: err}
	}
	if len(chunks) == 1 {
		return nil
	}

	// Overflow becomes follow-up messages.
	rest := strings.Join(chunks[1:], "\n")
	_, err = a.SendText(ctx, kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, rest, &kit.SendOptions{
		ParseMode:      opt.ParseMode,
		DisablePreview: opt.DisablePreview,
	})
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if callbackID == "" {
		return nil
	}
	if err := a.wait(ctx); err != nil {
		return &domain.DeliveryError{Op: "answer_callback", Err: err}
	}
	if err := a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text}); err != nil {
		return &domain.DeliveryError{Op: "answer_callback", Err: err}
	}
	return nil
}

func (a *Adapter) Typing(ctx context.Context, to kit.ChatTarget) error {
	if err := a.wait(ctx); err != nil {
		return &domain.DeliveryError{ChatID: to.ChatID, Op: "typing", Err: err}
	}
	if err := a.bot.Notify(&tele.Chat{ID: to.ChatID}, tele.Typing); err != nil {
		return &domain.DeliveryError{ChatID: to.ChatID, Op: "typing", Err: err}
	}
	return nil
}

// UpdateMenuCommands publishes the command list (setMyCommands). It only
// calls the API when the list changed since the last successful call.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(d))
		h.Write([]byte{0})
		out = append(out, tele.Command{Text: c.Command, Description: d})
		if len(out) >= 100 {
			break
		}
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	if err := a.bot.SetCommands(out); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}

// SetWebhook registers publicURL with the Bot API. An empty secret disables
// the secret-token header.
func (a *Adapter) SetWebhook(ctx context.Context, publicURL, secret string) error {
	publicURL = strings.TrimSpace(publicURL)
	if publicURL == "" {
		return errors.New("webhook url is empty")
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	err := a.bot.SetWebhook(&tele.Webhook{
		Endpoint:       &tele.WebhookEndpoint{PublicURL: publicURL},
		SecretToken:    secret,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return err
	}
	a.log.Info("webhook registered", logx.String("url", publicURL))
	return nil
}

func markup(kb kit.Keyboard) *tele.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	rows := make([][]tele.InlineButton, 0, len(kb))
	for _, row := range kb {
		btns := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.InlineButton{Text: b.Text, Data: b.Data, URL: b.URL})
		}
		if len(btns) > 0 {
			rows = append(rows, btns)
		}
	}
	rm.InlineKeyboard = rows
	return rm
}
