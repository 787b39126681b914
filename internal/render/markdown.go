// Package render turns plans, recipes and reminders into Telegram MarkdownV2
// text and inline keyboards.
package render

import (
	"strings"
)

var mdEscaper = strings.NewReplacer(
	`\`, `\\`,
	"_", `\_`,
	"*", `\*`,
	"[", `\[`,
	"]", `\]`,
	"(", `\(`,
	")", `\)`,
	"~", `\~`,
	"`", "\\`",
	">", `\>`,
	"#", `\#`,
	"+", `\+`,
	"-", `\-`,
	"=", `\=`,
	"|", `\|`,
	"{", `\{`,
	"}", `\}`,
	".", `\.`,
	"!", `\!`,
)

// Escape makes s safe to embed in a MarkdownV2 message.
func Escape(s string) string { return mdEscaper.Replace(s) }

// Bold escapes s and wraps it in bold markers.
func Bold(s string) string { return "*" + Escape(s) + "*" }

func italic(s string) string { return "_" + Escape(s) + "_" }
