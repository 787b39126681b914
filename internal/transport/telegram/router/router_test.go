package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"biteiq/internal/bridge"
	"biteiq/internal/domain"
	"biteiq/internal/eventbus"
	"biteiq/internal/render"
	kit "biteiq/internal/transport"
	logx "biteiq/pkg/logx"
)

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestInactiveRecipientIsGated(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.r.Handle(ctx, text(42, "How much protein do I need?")))
	require.NoError(t, h.r.Handle(ctx, callback(42, render.CallbackRecipePrefix+"Oats")))
	require.NoError(t, h.r.Handle(ctx, callback(42, render.CallbackRequestRecipe)))
	require.NoError(t, h.r.Handle(ctx, callback(42, render.CallbackAskQuestion)))

	require.Zero(t, h.content.calls())
	msgs := h.out.all()
	require.Len(t, msgs, 4)
	require.Equal(t, lockedChatText, msgs[0].Text)
	for _, m := range msgs[1:] {
		require.True(t, strings.Contains(m.Text, "/subscribe"), "got %q", m.Text)
		require.True(t, m.Edit)
	}

	// Gated prompts never arm the conversation.
	require.NoError(t, h.r.Handle(ctx, text(42, "Pancakes")))
	require.Zero(t, h.content.calls())
	require.Equal(t, offTopicText, h.out.all()[4].Text)
}

func TestOnboardingFromProfileText(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.r.Handle(ctx, text(7, "Ana,29,F,165,60,medium,none,55")))

	rec, err := h.store.Recipient(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, domain.Profile{Name: "Ana", Age: 29, Gender: "F", HeightCM: 165, WeightKG: 60, Activity: "medium", Diet: "none", GoalKG: 55}, rec.Profile)

	require.Equal(t, []string{domain.DayToday}, h.content.plans)
	_, saved := h.store.SavedPlan(7, fixedNow)
	require.True(t, saved)
	recent, err := h.store.RecentMeals(ctx, 7, fixedNow.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Oats", "Tofu Stir Fry"}, recent)

	msgs := h.out.all()
	require.Len(t, msgs, 3)
	require.Contains(t, msgs[0].Text, "Great, Ana")
	require.Contains(t, msgs[1].Text, render.Bold(render.TitlePersonalized))
	require.Equal(t, render.RecipeKeyboard([]domain.Meal{{Meal: "Breakfast", Title: "Oats"}, {Meal: "Dinner", Title: "Tofu Stir Fry"}}), msgs[1].Keyboard)
	require.Equal(t, optInText, msgs[2].Text)
	require.Equal(t, render.ReminderOptInKeyboard(), msgs[2].Keyboard)
	require.Equal(t, 1, h.out.typing)
}

func TestOnboardingFallsBackToDefaultPlan(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.content.planErr = &domain.GenerationError{Op: "plan", Err: errors.New("timeout")}

	require.NoError(t, h.r.Handle(context.Background(), text(7, "Ana\n29\nF\n165 cm\n60kg\nmedium\nnone\n55")))
	p, ok := h.store.SavedPlan(7, fixedNow)
	require.True(t, ok)
	require.Equal(t, domain.DefaultPlan(), p)
	require.Contains(t, h.out.all()[1].Text, "Greek Yogurt Bowl")
}

func TestPendingRecipeTitleIsConsumedOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.subscribe(t, 7)
	ctx := context.Background()

	require.NoError(t, h.r.Handle(ctx, callback(7, render.CallbackRequestRecipe)))
	require.NoError(t, h.r.Handle(ctx, text(7, "Shakshuka")))
	require.Equal(t, []string{"Shakshuka"}, h.content.recipes)

	// Next text is routed normally again.
	require.NoError(t, h.r.Handle(ctx, text(7, "Is dinner at 9pm too late?")))
	require.Equal(t, []string{"Shakshuka"}, h.content.recipes)
	require.Equal(t, []string{"Is dinner at 9pm too late?"}, h.content.questions)
}

func TestPendingQuestion(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.subscribe(t, 9)
	ctx := context.Background()

	require.NoError(t, h.r.Handle(ctx, callback(9, render.CallbackAskQuestion)))
	require.NoError(t, h.r.Handle(ctx, text(9, "hello?")))
	require.Equal(t, []string{"hello?"}, h.content.questions)
	msgs := h.out.all()
	require.Equal(t, questionPromptText, msgs[0].Text)
	require.Equal(t, render.Escape("Yes, in moderation."), msgs[1].Text)
}

func TestRecipeCallbackTitle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.subscribe(t, 3)
	ctx := context.Background()

	require.NoError(t, h.r.Handle(ctx, callback(3, "recipe|Salmon & Quinoa")))
	require.NoError(t, h.r.Handle(ctx, callback(3, "recipe|  ")))
	require.Equal(t, []string{"Salmon & Quinoa", "Meal"}, h.content.recipes)
	require.ElementsMatch(t, []string{"cb-recipe|Salmon & Quinoa", "cb-recipe|  "}, h.out.answered)
}

func TestUnknownCallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.r.Handle(context.Background(), callback(3, "bogus")))
	msgs := h.out.all()
	require.Len(t, msgs, 1, "routing misses get no apology")
	require.Equal(t, unknownOptionText, msgs[0].Text)
	require.Equal(t, []string{"cb-bogus"}, h.out.answered)
}

func TestUnknownCommandIsSilent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.r.Handle(context.Background(), command(3, "nope")))
	require.Empty(t, h.out.all())
}

func TestRoutingMissIsNotABridgeFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	br := bridge.New(bridge.Config{}, logx.Nop(), bus)
	require.NoError(t, br.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		br.Stop(ctx)
	}()

	for _, ev := range []kit.InboundEvent{command(5, "nosuchcmd"), callback(5, "bogus")} {
		ev := ev
		sub, err := br.Submit("update", func(ctx context.Context) error { return h.r.Handle(ctx, ev) })
		require.NoError(t, err)
		require.NoError(t, sub.Result().Err)
	}
	for {
		select {
		case e := <-events:
			require.NotEqual(t, eventbus.BridgeFailed, e.Type)
		default:
			return
		}
	}
}

func TestRemindersToggleEditsMessage(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.r.Handle(ctx, callback(5, render.CallbackRemindersOn)))
	rec, err := h.store.Recipient(ctx, 5)
	require.NoError(t, err)
	require.True(t, rec.RemindersEnabled)

	require.NoError(t, h.r.Handle(ctx, callback(5, render.CallbackRemindersOff)))
	rec, _ = h.store.Recipient(ctx, 5)
	require.False(t, rec.RemindersEnabled)

	msgs := h.out.all()
	require.Equal(t, remindersOnText, msgs[0].Text)
	require.Equal(t, remindersOffText, msgs[1].Text)
	require.True(t, msgs[0].Edit && msgs[1].Edit)
}

func TestTomorrowPlan(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.r.Handle(ctx, command(8, "tomorrow")))
	require.Equal(t, noProfileText, h.out.all()[0].Text)

	require.NoError(t, h.store.UpsertProfile(ctx, 8, domain.Profile{Name: "Bo", Age: 40}))
	require.NoError(t, h.r.Handle(ctx, command(8, "tomorrow")))
	require.Equal(t, lockedTomorrowText, h.out.all()[1].Text)
	require.Zero(t, h.content.calls())

	h.subscribe(t, 8)
	require.NoError(t, h.store.AddMealHistory(ctx, 8, fixedNow.AddDate(0, 0, -2), []string{"Lentil Soup"}))
	require.NoError(t, h.r.Handle(ctx, callback(8, render.CallbackTomorrow)))
	require.Equal(t, []string{domain.DayTomorrow}, h.content.plans)
	require.Equal(t, []string{"Lentil Soup"}, h.content.avoid[0])
	_, ok := h.store.SavedPlan(8, fixedNow.AddDate(0, 0, 1))
	require.True(t, ok)
	last := h.out.all()[2]
	require.False(t, last.Edit)
	require.Contains(t, last.Text, render.Bold(render.TitleTomorrow))
}

func TestStartMenuHelpSubscribe(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.r.Handle(ctx, command(11, "start")))
	_, err := h.store.Recipient(ctx, 11)
	require.NoError(t, err)
	require.NoError(t, h.r.Handle(ctx, command(11, "menu")))
	require.NoError(t, h.r.Handle(ctx, command(11, "help")))
	require.NoError(t, h.r.Handle(ctx, command(11, "subscribe")))
	require.NoError(t, h.r.Handle(ctx, callback(11, render.CallbackManageSub)))

	msgs := h.out.all()
	require.Len(t, msgs, 6)
	require.True(t, strings.HasPrefix(msgs[0].Text, "👋 *Welcome to BiteIQBot*, Ana"))
	require.Contains(t, msgs[0].Text, "06:00\\.")
	require.Equal(t, render.MenuKeyboard(false, false), msgs[2].Keyboard)
	require.Equal(t, helpText, msgs[3].Text)
	require.Equal(t, "💳 Subscribe here:\nhttps://pay.example.com/checkout?ref=11", msgs[4].Text)
	require.False(t, msgs[4].Markdown)
	require.Equal(t, "No active subscription found\\.", msgs[5].Text)

	h.subscribe(t, 11)
	require.NoError(t, h.r.Handle(ctx, callback(11, render.CallbackManageSub)))
	require.Equal(t, "🔧 Manage your subscription:\nhttps://pay.example.com/portal?ref=11", h.out.all()[6].Text)
}

func TestCheckoutFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.r.d.Billing = fakeBilling{fail: true}
	require.NoError(t, h.r.Handle(context.Background(), callback(1, render.CallbackSubscribe)))
	require.Equal(t, checkoutErrorText, h.out.all()[0].Text)
}

func TestPanicBecomesApology(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.subscribe(t, 2)
	h.content.panicOn = "recipe"

	err := h.r.Handle(context.Background(), callback(2, "recipe|Oats"))
	require.Error(t, err)
	msgs := h.out.all()
	require.Equal(t, apologyText, msgs[len(msgs)-1].Text)

	// The session lock was released.
	h.content.panicOn = ""
	require.NoError(t, h.r.Handle(context.Background(), callback(2, "recipe|Oats")))
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cmds := h.r.MenuCommands()
	var names []string
	for _, c := range cmds {
		names = append(names, c.Command)
	}
	require.Equal(t, []string{"help", "menu", "start", "subscribe", "tomorrow"}, names)
}
