// Package domain holds the bot's data model and the narrow interfaces to the
// services it depends on.
package domain

import (
	"context"
	"strings"
	"time"
)

type Profile struct {
	Name     string
	Age      int
	Gender   string
	HeightCM float64
	WeightKG float64
	Activity string
	Diet     string
	GoalKG   float64
}

// Complete reports whether onboarding produced a usable profile.
func (p Profile) Complete() bool { return strings.TrimSpace(p.Name) != "" }

type Recipient struct {
	ID                 int64
	Username           string
	FirstName          string
	Profile            Profile
	RemindersEnabled   bool
	SubscriptionActive bool
}

// DisplayName is the profile name, else the platform first name, else "there".
func (r Recipient) DisplayName() string {
	if n := strings.TrimSpace(r.Profile.Name); n != "" {
		return n
	}
	if n := strings.TrimSpace(r.FirstName); n != "" {
		return n
	}
	return "there"
}

type Meal struct {
	Meal        string `json:"meal"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Calories    int    `json:"calories"`
}

type Plan struct {
	Meals         []Meal `json:"meals"`
	TotalCalories int    `json:"total_calories"`
	Tip           string `json:"tip"`
}

// DefaultPlan is served when the generator is unavailable.
func DefaultPlan() Plan {
	return Plan{
		Meals: []Meal{
			{Meal: "Breakfast", Title: "Greek Yogurt Bowl", Description: "Yogurt, berries, nuts.", Calories: 380},
			{Meal: "Lunch", Title: "Chicken Salad", Description: "Chicken, greens, olive oil.", Calories: 500},
			{Meal: "Dinner", Title: "Salmon & Quinoa", Description: "Salmon, quinoa, veg.", Calories: 620},
		},
		TotalCalories: 1500,
		Tip:           "Drink water before meals.",
	}
}

// MealTitles lists the non-empty meal titles of p in order.
func (p Plan) MealTitles() []string {
	out := make([]string, 0, len(p.Meals))
	for _, m := range p.Meals {
		if t := strings.TrimSpace(m.Title); t != "" {
			out = append(out, t)
		}
	}
	return out
}

const (
	DayToday    = "today"
	DayTomorrow = "tomorrow"
)

// RecordStore persists recipients, plans and meal history.
type RecordStore interface {
	EnsureRecipient(ctx context.Context, id int64, username, firstName string) error
	Recipient(ctx context.Context, id int64) (Recipient, error)
	ListRecipients(ctx context.Context) ([]Recipient, error)
	ListReminderRecipients(ctx context.Context) ([]Recipient, error)
	UpsertProfile(ctx context.Context, id int64, p Profile) error
	SetReminders(ctx context.Context, id int64, enabled bool) error
	SubscriptionActive(ctx context.Context, id int64) (bool, error)
	SavePlan(ctx context.Context, id int64, day time.Time, p Plan) error
	AddMealHistory(ctx context.Context, id int64, day time.Time, titles []string) error
	RecentMeals(ctx context.Context, id int64, since time.Time) ([]string, error)
}

// ContentProvider generates plans, recipes and answers.
type ContentProvider interface {
	Plan(ctx context.Context, p Profile, dayLabel string, avoid []string) (Plan, error)
	Recipe(ctx context.Context, title string, p *Profile) (string, error)
	Answer(ctx context.Context, question string) (string, error)
}

// Billing returns links for the external subscription flow.
type Billing interface {
	CheckoutURL(ctx context.Context, id int64) (string, error)
	PortalURL(ctx context.Context, id int64) (string, error)
}
