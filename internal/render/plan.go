package render

import (
	"regexp"
	"strconv"
	"strings"

	"biteiq/internal/domain"
	"biteiq/internal/transport"
)

const divider = "━━━━━━━━━━━━━━━"

const (
	TitlePersonalized = "Your Personalized Meal Plan"
	TitleTomorrow     = "Your Plan for Tomorrow"
	TitleDaily        = "Your Fresh Daily Plan"
)

var mealEmoji = map[string]string{
	"Breakfast": "🍳",
	"Lunch":     "🥗",
	"Dinner":    "🍽️",
	"Snack":     "🥤",
}

// Plan renders a meal plan under a title line naming the recipient.
func Plan(title, name string, p domain.Plan) string {
	lines := []string{"🥗 " + Bold(title) + " – " + Bold(name), divider}
	for _, m := range p.Meals {
		meal := m.Meal
		if strings.TrimSpace(meal) == "" {
			meal = "Meal"
		}
		emoji, ok := mealEmoji[meal]
		if !ok {
			emoji = "🍴"
		}
		lines = append(lines,
			"\n"+emoji+" "+Bold(meal)+": "+Escape(m.Title),
			italic(m.Description),
			"🔥 "+Bold(strconv.Itoa(m.Calories)+" kcal"),
		)
	}
	lines = append(lines, "\n"+divider)
	if p.TotalCalories > 0 {
		lines = append(lines, "📊 "+Bold("Total:")+" "+Escape(strconv.Itoa(p.TotalCalories))+" kcal")
	}
	if strings.TrimSpace(p.Tip) != "" {
		lines = append(lines, "💡 "+Bold("Tip:")+" "+Escape(p.Tip))
	}
	return strings.Join(lines, "\n")
}

var doubleStar = regexp.MustCompile(`\*\*`)

// Recipe renders generated recipe text under a header.
func Recipe(title, content string) string {
	content = strings.TrimSpace(doubleStar.ReplaceAllString(content, "*"))
	return strings.Join([]string{
		"👩‍🍳 *Recipe for " + Escape(title) + "*",
		divider,
		Escape(content),
		divider,
	}, "\n")
}

// RecipeKeyboard offers one recipe button per main meal, or a generic
// recipe request when the plan has none.
func RecipeKeyboard(meals []domain.Meal) transport.Keyboard {
	var kb transport.Keyboard
	for _, m := range meals {
		switch m.Meal {
		case "Breakfast", "Lunch", "Dinner":
		default:
			continue
		}
		title := strings.TrimSpace(m.Title)
		if title == "" {
			title = m.Meal
		}
		kb = append(kb, []transport.Button{{
			Text: mealEmoji[m.Meal] + " " + m.Meal + " Recipe",
			Data: CallbackRecipePrefix + title,
		}})
	}
	if len(kb) == 0 {
		kb = append(kb, []transport.Button{{Text: "👩‍🍳 Get a Recipe", Data: CallbackRequestRecipe}})
	}
	return kb
}
