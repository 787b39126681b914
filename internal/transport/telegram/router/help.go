package router

import (
	"strings"

	"biteiq/internal/render"
	logx "biteiq/pkg/logx"
)

const helpText = "*What I do:*\n" +
	"\\- Generate daily personalized meal plans\n" +
	"\\- Send simple reminders \\(meals \\+ hydration\\)\n" +
	"\\- Provide minimal, recipe\\-style answers\n\n" +
	"*Quick commands:*\n" +
	"/menu – open menu\n" +
	"/tomorrow – get tomorrow's plan"

const (
	checkoutErrorText = "❌ Sorry, there was an error creating your checkout session\\. Please try again later\\."
	portalErrorText   = "❌ Error creating portal session\\."

	noProfileText       = "Please set up your profile first with /start\\."
	remindersOnText     = "🔔 Reminders ON: 08:00, 10:00, 13:00, 15:00, 18:00\\."
	remindersOffText    = "🔕 Reminders OFF\\. You'll still receive the daily 06:00 plan\\."
	recipePromptText    = "👩‍🍳 Type the meal name you'd like a recipe for\\."
	questionPromptText  = "❓ Send your nutrition question \\(short\\)\\."
	lockedTomorrowText  = "🔒 Please /subscribe to get tomorrow's plan\\."
	lockedRecipesText   = "🔒 Please /subscribe to get recipes\\."
	lockedUseRecipeText = "🔒 Please /subscribe to use recipes\\."
	lockedQuestionsText = "🔒 Please /subscribe to ask questions\\."
	lockedChatText      = "🔒 Please /subscribe to chat with your coach\\."
	optInText           = "🔔 Enable day reminders?"
	unknownOptionText   = "Unknown option"
)

const offTopicText = "💬 I'm your nutrition coach — I answer only diet \\& meal questions\\.\n" +
	"Send your profile \\(8 details\\) to get started\\."

func startIntro(firstName string) string {
	if strings.TrimSpace(firstName) == "" {
		firstName = "there"
	}
	return "👋 *Welcome to BiteIQBot*, " + render.Escape(firstName) + render.Escape(
		" — your smart nutrition coach! 🥗\n\n"+
			"To personalize your plan, please send the following 8 details "+
			"(each on a new line or separated by commas):\n\n"+
			"1️⃣ Name\n"+
			"2️⃣ Age\n"+
			"3️⃣ Gender (M/F)\n"+
			"4️⃣ Height (cm)\n"+
			"5️⃣ Weight (kg)\n"+
			"6️⃣ Activity level (low / medium / high)\n"+
			"7️⃣ Dietary restrictions (or 'none')\n"+
			"8️⃣ Goal weight (kg)\n\n"+
			"📅 Your daily plan will be automatically sent at 06:00.")
}

func logErr(err error) logx.Field {
	if err == nil {
		return logx.String("err", "empty link")
	}
	return logx.Err(err)
}
