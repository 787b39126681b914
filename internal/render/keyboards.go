package render

import "biteiq/internal/transport"

// Callback payloads carried by inline buttons.
const (
	CallbackRemindersOn   = "rem_start"
	CallbackRemindersOff  = "rem_stop"
	CallbackTomorrow      = "menu_tomorrow"
	CallbackRequestRecipe = "req_recipe"
	CallbackAskQuestion   = "ask_q"
	CallbackSubscribe     = "subscribe"
	CallbackManageSub     = "manage_sub"

	CallbackRecipePrefix = "recipe|"
)

func MenuKeyboard(remindersOn, subscribed bool) transport.Keyboard {
	rem := transport.Button{Text: "🔔 Activate reminders", Data: CallbackRemindersOn}
	if remindersOn {
		rem = transport.Button{Text: "🔕 Stop reminders", Data: CallbackRemindersOff}
	}
	sub := transport.Button{Text: "💳 Subscribe", Data: CallbackSubscribe}
	if subscribed {
		sub = transport.Button{Text: "💳 Manage subscription", Data: CallbackManageSub}
	}
	return transport.Keyboard{
		{{Text: "🍽️ Tomorrow's Plan", Data: CallbackTomorrow}},
		{{Text: "👩‍🍳 Get a Recipe", Data: CallbackRequestRecipe}},
		{{Text: "❓ Ask a question", Data: CallbackAskQuestion}},
		{rem},
		{sub},
	}
}

func ReminderOptInKeyboard() transport.Keyboard {
	return transport.Keyboard{
		{{Text: "✅ Yes — meal & hydration reminders", Data: CallbackRemindersOn}},
		{{Text: "❌ No thanks", Data: CallbackRemindersOff}},
	}
}
