package router

import (
	"context"
	"sort"

	"biteiq/internal/domain"
	"biteiq/internal/render"
)

type Command struct {
	Name        string
	Description string
	// Hidden commands work but are not published in the platform menu.
	Hidden bool
	Handle HandlerFunc
}

func (r *Router) registerCommands() {
	for _, c := range []Command{
		{Name: "start", Description: "Set up your nutrition profile", Handle: r.cmdStart},
		{Name: "menu", Description: "Open the main menu", Handle: r.cmdMenu},
		{Name: "help", Description: "What this bot does", Handle: r.cmdHelp},
		{Name: "tomorrow", Description: "Get tomorrow's plan", Handle: r.cmdTomorrow},
		{Name: "subscribe", Description: "Unlock plans, recipes and questions", Handle: r.cmdSubscribe},
	} {
		r.commands[c.Name] = c
	}
}

func (r *Router) onCommand(ctx context.Context, req *Request) error {
	c, ok := r.commands[req.Event.Command]
	if !ok {
		return &domain.RoutingError{Kind: "command", Payload: req.Event.Command}
	}
	return c.Handle(ctx, req)
}

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	if err := r.ensureRecipient(ctx, req.Event); err != nil {
		return err
	}
	if err := r.send(ctx, req, startIntro(req.Event.FirstName), nil); err != nil {
		return err
	}
	return r.send(ctx, req, render.Escape("📋 Type /menu anytime to open your main options."), nil)
}

func (r *Router) cmdMenu(ctx context.Context, req *Request) error {
	rec, _, err := r.recipient(ctx, req.Event.RecipientID)
	if err != nil {
		return err
	}
	subscribed, err := r.d.Store.SubscriptionActive(ctx, req.Event.RecipientID)
	if err != nil {
		return err
	}
	return r.send(ctx, req, "📋 *Menu*", render.MenuKeyboard(rec.RemindersEnabled, subscribed))
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	return r.send(ctx, req, helpText, nil)
}

func (r *Router) cmdTomorrow(ctx context.Context, req *Request) error {
	return r.tomorrowPlan(ctx, req)
}

func (r *Router) cmdSubscribe(ctx context.Context, req *Request) error {
	return r.checkout(ctx, req)
}

func (r *Router) checkout(ctx context.Context, req *Request) error {
	if r.d.Billing == nil {
		return r.send(ctx, req, checkoutErrorText, nil)
	}
	url, err := r.d.Billing.CheckoutURL(ctx, req.Event.RecipientID)
	if err != nil || isBlank(url) {
		req.Logger.Error("checkout link failed", logErr(err))
		return r.send(ctx, req, checkoutErrorText, nil)
	}
	return r.sendPlain(ctx, req, "💳 Subscribe here:\n"+url, nil)
}

func (r *Router) manageSubscription(ctx context.Context, req *Request) error {
	active, err := r.d.Store.SubscriptionActive(ctx, req.Event.RecipientID)
	if err != nil {
		return err
	}
	if !active {
		return r.send(ctx, req, "No active subscription found\\.", nil)
	}
	if r.d.Billing == nil {
		return r.send(ctx, req, portalErrorText, nil)
	}
	url, err := r.d.Billing.PortalURL(ctx, req.Event.RecipientID)
	if err != nil || isBlank(url) {
		req.Logger.Error("portal link failed", logErr(err))
		return r.send(ctx, req, portalErrorText, nil)
	}
	return r.sendPlain(ctx, req, "🔧 Manage your subscription:\n"+url, nil)
}

// Commands lists the published commands in name order.
func (r *Router) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
