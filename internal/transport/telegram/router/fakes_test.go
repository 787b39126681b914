package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"biteiq/internal/conversation"
	"biteiq/internal/domain"
	"biteiq/internal/storage"
	kit "biteiq/internal/transport"
	logx "biteiq/pkg/logx"
)

type sent struct {
	ChatID   int64
	Text     string
	Markdown bool
	Keyboard kit.Keyboard
	Edit     bool
}

type fakeOut struct {
	mu       sync.Mutex
	msgs     []sent
	answered []string
	typing   int
}

func (f *fakeOut) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{ChatID: to.ChatID, Text: text}
	if opt != nil {
		s.Markdown = opt.ParseMode == kit.ParseModeMarkdownV2
		s.Keyboard = opt.Keyboard
	}
	f.msgs = append(f.msgs, s)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.msgs)}, nil
}

func (f *fakeOut) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{ChatID: ref.ChatID, Text: text, Markdown: opt != nil && opt.ParseMode != "", Edit: true})
	return nil
}

func (f *fakeOut) AnswerCallback(_ context.Context, id string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeOut) Typing(context.Context, kit.ChatTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeOut) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

type fakeContent struct {
	mu        sync.Mutex
	plans     []string // day labels
	avoid     [][]string
	recipes   []string
	questions []string
	planErr   error
	panicOn   string
}

func (f *fakeContent) Plan(_ context.Context, _ domain.Profile, day string, avoid []string) (domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, day)
	f.avoid = append(f.avoid, avoid)
	if f.planErr != nil {
		return domain.Plan{}, f.planErr
	}
	return domain.Plan{
		Meals: []domain.Meal{
			{Meal: "Breakfast", Title: "Oats", Calories: 350},
			{Meal: "Dinner", Title: "Tofu Stir Fry", Calories: 600},
		},
		TotalCalories: 950,
		Tip:           "Drink water.",
	}, nil
}

func (f *fakeContent) Recipe(_ context.Context, title string, _ *domain.Profile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "recipe" {
		panic("recipe exploded")
	}
	f.recipes = append(f.recipes, title)
	return "Ingredients:\n- stuff\nSteps:\n1. cook\nTip:\nenjoy", nil
}

func (f *fakeContent) Answer(_ context.Context, q string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, q)
	return "Yes, in moderation.", nil
}

func (f *fakeContent) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plans) + len(f.recipes) + len(f.questions)
}

type fakeBilling struct{ fail bool }

func (f fakeBilling) CheckoutURL(_ context.Context, id int64) (string, error) {
	if f.fail {
		return "", errors.New("billing down")
	}
	return "https://pay.example.com/checkout?ref=" + itoa(id), nil
}

func (f fakeBilling) PortalURL(_ context.Context, id int64) (string, error) {
	return "https://pay.example.com/portal?ref=" + itoa(id), nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

var fixedNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type harness struct {
	r       *Router
	store   *storage.Memory
	out     *fakeOut
	content *fakeContent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: storage.NewMemory(), out: &fakeOut{}, content: &fakeContent{}}
	r, err := New(Deps{
		Store:    h.store,
		Content:  h.content,
		Out:      h.out,
		Billing:  fakeBilling{},
		Sessions: conversation.New(time.Hour),
		Log:      logx.Nop(),
		Now:      func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	h.r = r
	return h
}

func (h *harness) subscribe(t *testing.T, id int64) {
	t.Helper()
	ctx := context.Background()
	if err := h.store.EnsureRecipient(ctx, id, "", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := h.store.SetSubscription(ctx, id, true, time.Time{}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
}

func text(id int64, s string) kit.InboundEvent {
	return kit.InboundEvent{Kind: kit.EventText, RecipientID: id, ChatID: id, Payload: s}
}

func command(id int64, name string) kit.InboundEvent {
	return kit.InboundEvent{Kind: kit.EventCommand, RecipientID: id, ChatID: id, Command: name, FirstName: "Ana", Payload: "/" + name}
}

func callback(id int64, data string) kit.InboundEvent {
	return kit.InboundEvent{Kind: kit.EventCallback, RecipientID: id, ChatID: id, Payload: data, CallbackID: "cb-" + data, MessageID: 55}
}
