package render

import (
	"strings"
	"testing"

	"biteiq/internal/domain"
)

func TestEscape(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"plain", "plain"},
		{"Salmon & Quinoa", "Salmon & Quinoa"},
		{"1.5 kg (approx)!", `1\.5 kg \(approx\)\!`},
		{`a_b*c\d`, `a\_b\*c\\d`},
		{"x-y=z|{}#+~>`[]", "x\\-y\\=z\\|\\{\\}\\#\\+\\~\\>\\`\\[\\]"},
	}
	for _, tc := range cases {
		if got := Escape(tc.in); got != tc.want {
			t.Fatalf("Escape(%q) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestPlan(t *testing.T) {
	t.Parallel()

	got := Plan(TitlePersonalized, "Ana", domain.DefaultPlan())
	for _, want := range []string{
		"🥗 *Your Personalized Meal Plan* – *Ana*",
		"🍳 *Breakfast*: Greek Yogurt Bowl",
		`_Yogurt, berries, nuts\._`,
		"🔥 *380 kcal*",
		"📊 *Total:* 1500 kcal",
		`💡 *Tip:* Drink water before meals\.`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("plan text missing %q:\n%s", want, got)
		}
	}
}

func TestPlanUnknownMealEmoji(t *testing.T) {
	t.Parallel()

	got := Plan(TitleDaily, "Bo", domain.Plan{Meals: []domain.Meal{{Meal: "Brunch", Title: "Eggs"}}})
	if !strings.Contains(got, "🍴 *Brunch*: Eggs") {
		t.Fatalf("got:\n%s", got)
	}
	if strings.Contains(got, "Total") || strings.Contains(got, "Tip") {
		t.Fatalf("empty total/tip should be omitted:\n%s", got)
	}
}

func TestRecipe(t *testing.T) {
	t.Parallel()

	got := Recipe("Chicken Salad", "**Ingredients:** chicken.\nSteps: mix.")
	want := "👩‍🍳 *Recipe for Chicken Salad*\n" + divider + "\n" + `\*Ingredients:\* chicken\.` + "\nSteps: mix\\.\n" + divider
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestRecipeKeyboard(t *testing.T) {
	t.Parallel()

	kb := RecipeKeyboard(domain.DefaultPlan().Meals)
	if len(kb) != 3 {
		t.Fatalf("rows = %d", len(kb))
	}
	if b := kb[2][0]; b.Text != "🍽️ Dinner Recipe" || b.Data != "recipe|Salmon & Quinoa" {
		t.Fatalf("dinner button = %+v", b)
	}

	kb = RecipeKeyboard([]domain.Meal{{Meal: "Snack", Title: "Nuts"}, {Meal: "Lunch"}})
	if len(kb) != 1 || kb[0][0].Data != "recipe|Lunch" {
		t.Fatalf("lunch fallback title = %+v", kb)
	}

	kb = RecipeKeyboard(nil)
	if len(kb) != 1 || kb[0][0].Data != CallbackRequestRecipe {
		t.Fatalf("empty plan keyboard = %+v", kb)
	}
}

func TestMenuKeyboard(t *testing.T) {
	t.Parallel()

	kb := MenuKeyboard(true, false)
	if kb[3][0].Data != CallbackRemindersOff || kb[4][0].Data != CallbackSubscribe {
		t.Fatalf("menu = %+v", kb)
	}
	kb = MenuKeyboard(false, true)
	if kb[3][0].Data != CallbackRemindersOn || kb[4][0].Data != CallbackManageSub {
		t.Fatalf("menu = %+v", kb)
	}
}

func TestReminder(t *testing.T) {
	t.Parallel()

	cases := []struct{ kind, name, want string }{
		{ReminderBreakfast, "Ana", `🥣 Good morning, Ana\! Time for breakfast\.`},
		{ReminderHydration, "", `💧 Quick hydration check, there\! Take a moment to drink water\.`},
		{ReminderLunch, "Bo", `🍱 Lunchtime, Bo\! Refuel smart\.`},
		{ReminderDinner, "Bo", `🌇 Dinner time, Bo\! Keep it light\.`},
		{"snack", "Cy", `🔔 Hey Cy, gentle reminder to eat mindfully\.`},
	}
	for _, tc := range cases {
		if got := Reminder(tc.kind, tc.name); got != tc.want {
			t.Fatalf("Reminder(%q) = %q want %q", tc.kind, got, tc.want)
		}
	}
}
