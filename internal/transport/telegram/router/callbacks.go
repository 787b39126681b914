package router

import (
	"context"
	"strings"

	"biteiq/internal/conversation"
	"biteiq/internal/domain"
	"biteiq/internal/render"
	logx "biteiq/pkg/logx"
)

type CallbackRoute struct {
	// Action is the exact callback payload, or its prefix when Prefix is set.
	Action string
	Prefix bool
	Handle func(ctx context.Context, req *Request, arg string) error
}

func (r *Router) registerCallbacks() {
	for _, cb := range []CallbackRoute{
		{Action: render.CallbackRemindersOn, Handle: r.cbReminders(true)},
		{Action: render.CallbackRemindersOff, Handle: r.cbReminders(false)},
		{Action: render.CallbackTomorrow, Handle: r.cbTomorrow},
		{Action: render.CallbackRequestRecipe, Handle: r.cbRequestRecipe},
		{Action: render.CallbackAskQuestion, Handle: r.cbAskQuestion},
		{Action: render.CallbackSubscribe, Handle: r.cbSubscribe},
		{Action: render.CallbackManageSub, Handle: r.cbManageSub},
		{Action: render.CallbackRecipePrefix, Prefix: true, Handle: r.cbRecipe},
	} {
		if cb.Prefix {
			r.prefixed = append(r.prefixed, cb)
			continue
		}
		r.callbacks[cb.Action] = cb
	}
}

func (r *Router) onCallback(ctx context.Context, req *Request) error {
	// Acknowledge first.
	if err := r.d.Out.AnswerCallback(ctx, req.Event.CallbackID, ""); err != nil {
		req.Logger.Debug("callback answer failed", logx.Err(err))
	}

	data := req.Event.Payload
	if cb, ok := r.callbacks[data]; ok {
		return cb.Handle(ctx, req, "")
	}
	for _, cb := range r.prefixed {
		if rest, ok := strings.CutPrefix(data, cb.Action); ok {
			return cb.Handle(ctx, req, rest)
		}
	}

	if err := r.sendPlain(ctx, req, unknownOptionText, nil); err != nil {
		return err
	}
	return &domain.RoutingError{Kind: "callback", Payload: data}
}

func (r *Router) cbReminders(on bool) func(context.Context, *Request, string) error {
	return func(ctx context.Context, req *Request, _ string) error {
		if err := r.ensureRecipient(ctx, req.Event); err != nil {
			return err
		}
		if err := r.d.Store.SetReminders(ctx, req.Event.RecipientID, on); err != nil {
			return err
		}
		if on {
			return r.notice(ctx, req, remindersOnText)
		}
		return r.notice(ctx, req, remindersOffText)
	}
}

func (r *Router) cbTomorrow(ctx context.Context, req *Request, _ string) error {
	return r.tomorrowPlan(ctx, req)
}

func (r *Router) cbRequestRecipe(ctx context.Context, req *Request, _ string) error {
	ok, err := r.gate(ctx, req, lockedRecipesText, true)
	if !ok || err != nil {
		return err
	}
	req.Session.Expect(conversation.AwaitingRecipeTitle)
	return r.send(ctx, req, recipePromptText, nil)
}

func (r *Router) cbAskQuestion(ctx context.Context, req *Request, _ string) error {
	ok, err := r.gate(ctx, req, lockedQuestionsText, true)
	if !ok || err != nil {
		return err
	}
	req.Session.Expect(conversation.AwaitingQuestion)
	return r.send(ctx, req, questionPromptText, nil)
}

func (r *Router) cbSubscribe(ctx context.Context, req *Request, _ string) error {
	return r.checkout(ctx, req)
}

func (r *Router) cbManageSub(ctx context.Context, req *Request, _ string) error {
	return r.manageSubscription(ctx, req)
}

func (r *Router) cbRecipe(ctx context.Context, req *Request, title string) error {
	ok, err := r.gate(ctx, req, lockedRecipesText, true)
	if !ok || err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Meal"
	}
	return r.recipe(ctx, req, title)
}
