package render

import "strings"

const (
	ReminderBreakfast = "breakfast"
	ReminderHydration = "hydration"
	ReminderLunch     = "lunch"
	ReminderDinner    = "dinner"
)

// Reminder renders the static reminder text for kind. Unknown kinds get a
// generic nudge.
func Reminder(kind, name string) string {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	switch kind {
	case ReminderBreakfast:
		return "🥣 " + Escape("Good morning, "+name+"!") + ` Time for breakfast\.`
	case ReminderHydration:
		return "💧 " + Escape("Quick hydration check, "+name+"!") + ` Take a moment to drink water\.`
	case ReminderLunch:
		return "🍱 " + Escape("Lunchtime, "+name+"!") + ` Refuel smart\.`
	case ReminderDinner:
		return "🌇 " + Escape("Dinner time, "+name+"!") + ` Keep it light\.`
	default:
		return "🔔 " + Escape("Hey "+name+", gentle reminder to eat mindfully.")
	}
}
