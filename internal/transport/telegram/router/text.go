package router

import (
	"context"
	"strings"

	"biteiq/internal/conversation"
	"biteiq/internal/domain"
	"biteiq/internal/render"
	logx "biteiq/pkg/logx"
)

var nutritionKeywords = []string{
	"diet", "calorie", "protein", "carb", "fat", "meal", "weight", "nutrition", "kcal",
	"recipe", "breakfast", "lunch", "dinner",
}

func onTopic(text string) bool {
	t := strings.ToLower(text)
	for _, k := range nutritionKeywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

func (r *Router) onText(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(req.Event.Payload)

	// A pending expectation is consumed by whatever arrives next.
	switch req.Session.Consume() {
	case conversation.AwaitingRecipeTitle:
		ok, err := r.gate(ctx, req, lockedUseRecipeText, false)
		if !ok || err != nil {
			return err
		}
		return r.recipe(ctx, req, text)
	case conversation.AwaitingQuestion:
		ok, err := r.gate(ctx, req, lockedQuestionsText, false)
		if !ok || err != nil {
			return err
		}
		return r.answer(ctx, req, text)
	}

	if p, ok := ParseProfile(text); ok {
		return r.onboard(ctx, req, p)
	}

	if !onTopic(text) {
		return r.send(ctx, req, offTopicText, nil)
	}

	ok, err := r.gate(ctx, req, lockedChatText, false)
	if !ok || err != nil {
		return err
	}
	return r.answer(ctx, req, text)
}

func (r *Router) recipe(ctx context.Context, req *Request, title string) error {
	var profile *domain.Profile
	rec, known, err := r.recipient(ctx, req.Event.RecipientID)
	if err != nil {
		return err
	}
	if known && rec.Profile.Complete() {
		profile = &rec.Profile
	}
	body, err := r.d.Content.Recipe(ctx, title, profile)
	if err != nil {
		return err
	}
	return r.send(ctx, req, render.Recipe(title, body), nil)
}

func (r *Router) answer(ctx context.Context, req *Request, question string) error {
	ans, err := r.d.Content.Answer(ctx, question)
	if err != nil {
		return err
	}
	return r.send(ctx, req, render.Escape(ans), nil)
}

func (r *Router) onboard(ctx context.Context, req *Request, p domain.Profile) error {
	ev := req.Event
	if err := r.ensureRecipient(ctx, ev); err != nil {
		return err
	}
	if err := r.d.Store.UpsertProfile(ctx, ev.RecipientID, p); err != nil {
		return err
	}
	req.Logger.Info("profile saved")

	if err := r.send(ctx, req, render.Escape("🔥 Great, "+p.Name+"! Preparing your personalized plan…"), nil); err != nil {
		return err
	}
	if err := r.d.Out.Typing(ctx, req.Chat); err != nil {
		req.Logger.Debug("typing action failed", logx.Err(err))
	}

	if err := r.planFor(ctx, req, p, domain.DayToday, r.today(), render.TitlePersonalized); err != nil {
		return err
	}
	return r.sendPlain(ctx, req, optInText, render.ReminderOptInKeyboard())
}
