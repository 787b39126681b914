package router

import (
	"context"
	"errors"
	"time"

	"biteiq/internal/domain"
	"biteiq/internal/render"
	logx "biteiq/pkg/logx"
)

func (r *Router) tomorrowPlan(ctx context.Context, req *Request) error {
	rec, known, err := r.recipient(ctx, req.Event.RecipientID)
	if err != nil {
		return err
	}
	if !known || !rec.Profile.Complete() {
		return r.notice(ctx, req, noProfileText)
	}
	ok, err := r.gate(ctx, req, lockedTomorrowText, true)
	if !ok || err != nil {
		return err
	}
	return r.planFor(ctx, req, rec.Profile, domain.DayTomorrow, r.today().AddDate(0, 0, 1), render.TitleTomorrow)
}

// planFor generates, stores and delivers one plan. A failed generation
// falls back to the default plan so the recipient always gets one.
func (r *Router) planFor(ctx context.Context, req *Request, p domain.Profile, dayLabel string, day time.Time, title string) error {
	id := req.Event.RecipientID
	since := r.today().AddDate(0, 0, -r.d.HistoryDays)
	recent, err := r.d.Store.RecentMeals(ctx, id, since)
	if err != nil {
		req.Logger.Warn("recent meals unavailable", logx.Err(err))
		recent = nil
	}

	plan, err := r.d.Content.Plan(ctx, p, dayLabel, recent)
	if err != nil {
		var gen *domain.GenerationError
		if !errors.As(err, &gen) {
			return err
		}
		req.Logger.Warn("plan generation failed, using default plan", logx.String("day", dayLabel), logx.Err(err))
		plan = domain.DefaultPlan()
	}

	if err := r.d.Store.SavePlan(ctx, id, day, plan); err != nil {
		req.Logger.Warn("plan not saved", logx.Err(err))
	}
	if err := r.d.Store.AddMealHistory(ctx, id, r.today(), plan.MealTitles()); err != nil {
		req.Logger.Warn("meal history not saved", logx.Err(err))
	}
	return r.send(ctx, req, render.Plan(title, p.Name, plan), render.RecipeKeyboard(plan.Meals))
}
