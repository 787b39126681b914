package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"biteiq/internal/domain"
)

const answerSystemPrompt = "You are a concise nutrition coach. Answer in <= 60 words. " +
	"Only respond to nutrition/meal related questions."

func planPrompt(p domain.Profile, dayLabel string, avoid []string) string {
	var extra string
	if strings.EqualFold(dayLabel, domain.DayTomorrow) {
		extra = "Make tomorrow's plan different from today's meals while keeping nutrition similar."
	}
	if len(avoid) > 0 {
		extra += " Avoid these recent meals: " + strings.Join(avoid, ", ") + "."
	}
	return "You are a concise nutrition coach. Return ONLY valid JSON, no markdown. " +
		"Keys: meals(list), total_calories(int), tip(string). " +
		"Each meal item: meal('Breakfast'/'Lunch'/'Dinner' or 'Snack'), title, description, calories(int). " +
		"Keep descriptions short (<20 words). " +
		"PROFILE: " + profileLine(p) + ". DAY: " + dayLabel + ". " +
		"Include Breakfast, Lunch, Dinner (one Snack optional). " + extra
}

func profileLine(p domain.Profile) string {
	return fmt.Sprintf("name=%s, age=%d, gender=%s, height_cm=%s, weight_kg=%s, activity=%s, diet=%s, goal_kg=%s",
		p.Name, p.Age, p.Gender, num(p.HeightCM), num(p.WeightKG), p.Activity, p.Diet, num(p.GoalKG))
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func recipePrompt(title string, p *domain.Profile) string {
	var who string
	if p != nil {
		who = fmt.Sprintf("User: %s, Age %d, Diet %s. ", p.Name, p.Age, p.Diet)
	}
	return "Write a short healthy recipe with EXACTLY these sections and labels:\n" +
		"Ingredients:\n" +
		"Steps:\n" +
		"Tip:\n" +
		"Under 120 words total. No extra commentary.\n" +
		who + "Meal: " + title
}

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*|\\s*```$")

// ParsePlan decodes a generated plan, tolerating a surrounding code fence.
// A plan without meals is an error. A missing total is computed.
func ParsePlan(raw string) (domain.Plan, error) {
	body := codeFence.ReplaceAllString(strings.TrimSpace(raw), "")
	var p domain.Plan
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return domain.Plan{}, fmt.Errorf("decode plan json: %w", err)
	}
	if len(p.Meals) == 0 {
		return domain.Plan{}, errors.New("plan has no meals")
	}
	if p.TotalCalories <= 0 {
		for _, m := range p.Meals {
			p.TotalCalories += m.Calories
		}
	}
	return p, nil
}
