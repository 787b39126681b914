// Package router turns normalized inbound events into replies: commands,
// inline-button callbacks and free text, with the subscription gate in
// front of every paid content call.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"biteiq/internal/conversation"
	"biteiq/internal/domain"
	"biteiq/internal/eventbus"
	kit "biteiq/internal/transport"
	logx "biteiq/pkg/logx"
)

type Deps struct {
	Store    domain.RecordStore
	Content  domain.ContentProvider
	Out      kit.Deliverer
	Billing  domain.Billing
	Sessions *conversation.Machine
	Bus      eventbus.Bus
	Log      logx.Logger

	// Location decides what "today" is. Defaults to UTC.
	Location *time.Location
	// HistoryDays is how far back recent meals are avoided. Defaults to 7.
	HistoryDays int
	// Timeout bounds one event. Zero leaves it to the caller.
	Timeout time.Duration
	Now     func() time.Time
}

type Router struct {
	d   Deps
	log logx.Logger

	commands  map[string]Command
	callbacks map[string]CallbackRoute
	prefixed  []CallbackRoute

	handle HandlerFunc
}

// Request is one event in flight through the middleware chain.
type Request struct {
	Event   kit.InboundEvent
	Chat    kit.ChatTarget
	Session *conversation.Session
	Logger  logx.Logger
}

func New(d Deps) (*Router, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("router: store is required")
	case d.Content == nil:
		return nil, errors.New("router: content provider is required")
	case d.Out == nil:
		return nil, errors.New("router: deliverer is required")
	}
	if d.Sessions == nil {
		d.Sessions = conversation.New(30 * time.Minute)
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.HistoryDays <= 0 {
		d.HistoryDays = 7
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}

	r := &Router{
		d:         d,
		log:       d.Log.With(logx.String("comp", "router")),
		commands:  map[string]Command{},
		callbacks: map[string]CallbackRoute{},
	}
	r.registerCommands()
	r.registerCallbacks()
	r.handle = Chain(r.dispatch,
		MWRequestLog(r.log),
		MWApology(r.log, d.Out),
		MWPanicRecover(r.log),
		MWTimeout(d.Timeout),
	)
	return r, nil
}

// Handle routes one event. Events nothing handles are logged and return
// nil. Handler failures have already been reported to the recipient when
// Handle returns them.
func (r *Router) Handle(ctx context.Context, ev kit.InboundEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req := &Request{
		Event: ev,
		Chat:  kit.ChatTarget{ChatID: ev.ChatID},
		Logger: r.log.With(
			logx.Int64("recipient_id", ev.RecipientID),
			logx.Int64("update_id", ev.UpdateID),
		),
	}
	if req.Chat.ChatID == 0 {
		req.Chat.ChatID = ev.RecipientID
	}
	return r.handle(ctx, req)
}

func (r *Router) dispatch(ctx context.Context, req *Request) error {
	sess, release, err := r.d.Sessions.Acquire(ctx, req.Event.RecipientID)
	if err != nil {
		return err
	}
	defer release()
	req.Session = sess

	switch req.Event.Kind {
	case kit.EventCommand:
		return r.onCommand(ctx, req)
	case kit.EventCallback:
		return r.onCallback(ctx, req)
	case kit.EventText:
		return r.onText(ctx, req)
	default:
		return &domain.RoutingError{Kind: string(req.Event.Kind), Payload: req.Event.Payload}
	}
}

func (r *Router) today() time.Time { return r.d.Now().In(r.d.Location) }

// send replies in MarkdownV2.
func (r *Router) send(ctx context.Context, req *Request, text string, kb kit.Keyboard) error {
	_, err := r.d.Out.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: kit.ParseModeMarkdownV2, Keyboard: kb})
	return err
}

func (r *Router) sendPlain(ctx context.Context, req *Request, text string, kb kit.Keyboard) error {
	_, err := r.d.Out.SendText(ctx, req.Chat, text, &kit.SendOptions{Keyboard: kb})
	return err
}

// notice edits the message a callback came from, or replies to a command.
func (r *Router) notice(ctx context.Context, req *Request, text string) error {
	ev := req.Event
	if ev.Kind == kit.EventCallback && ev.MessageID != 0 {
		return r.d.Out.EditText(ctx, kit.MessageRef{ChatID: req.Chat.ChatID, MessageID: ev.MessageID}, text,
			&kit.SendOptions{ParseMode: kit.ParseModeMarkdownV2})
	}
	return r.send(ctx, req, text, nil)
}

// recipient returns the stored recipient, or ok=false when unknown.
func (r *Router) recipient(ctx context.Context, id int64) (domain.Recipient, bool, error) {
	rec, err := r.d.Store.Recipient(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Recipient{ID: id}, false, nil
	}
	if err != nil {
		return domain.Recipient{}, false, fmt.Errorf("load recipient: %w", err)
	}
	return rec, true, nil
}

// gate reports whether the recipient may use paid content. When not, it
// has already told them with lockedText.
func (r *Router) gate(ctx context.Context, req *Request, lockedText string, edit bool) (bool, error) {
	active, err := r.d.Store.SubscriptionActive(ctx, req.Event.RecipientID)
	if err != nil {
		return false, fmt.Errorf("subscription check: %w", err)
	}
	if active {
		return true, nil
	}
	req.Logger.Debug("paid action gated")
	if edit {
		return false, r.notice(ctx, req, lockedText)
	}
	return false, r.send(ctx, req, lockedText, nil)
}

func (r *Router) ensureRecipient(ctx context.Context, ev kit.InboundEvent) error {
	return r.d.Store.EnsureRecipient(ctx, ev.RecipientID, ev.Username, ev.FirstName)
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
