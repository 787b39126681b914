package router

import (
	"testing"

	"biteiq/internal/domain"
)

func TestParseProfile(t *testing.T) {
	t.Parallel()

	ana := domain.Profile{Name: "Ana", Age: 29, Gender: "F", HeightCM: 165, WeightKG: 60, Activity: "medium", Diet: "none", GoalKG: 55}
	tests := []struct {
		name string
		in   string
		want domain.Profile
		ok   bool
	}{
		{name: "commas", in: "Ana,29,F,165,60,medium,none,55", want: ana, ok: true},
		{name: "lines with units", in: "Ana\n29 years\nF\n165cm\n60 kg\nmedium\nnone\n55kg", want: ana, ok: true},
		{name: "decimals", in: "Ana, 29, F, 165.5, 60.2, medium, none, 55.5", want: domain.Profile{Name: "Ana", Age: 29, Gender: "F", HeightCM: 165.5, WeightKG: 60.2, Activity: "medium", Diet: "none", GoalKG: 55.5}, ok: true},
		{name: "blank parts dropped", in: "Ana,,29,F,165,60,medium,none,55,", want: ana, ok: true},
		{name: "seven fields", in: "Ana,29,F,165,60,medium,none"},
		{name: "nine fields", in: "Ana,29,F,165,60,medium,none,55,extra"},
		{name: "age without digits", in: "Ana,old,F,165,60,medium,none,55"},
		{name: "bad float", in: "Ana,29,F,1.6.5,60,medium,none,55"},
		{name: "question", in: "what should I eat for dinner?"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseProfile(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("got %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestOnTopic(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{
		"How many CALORIES in rice?": true,
		"best breakfast ideas":       true,
		"tell me a joke":             false,
		"":                           false,
	} {
		if got := onTopic(in); got != want {
			t.Fatalf("onTopic(%q) = %v", in, got)
		}
	}
}

func TestSanitizeCommand(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"Start":          "start",
		"manage-sub":     "manage_sub",
		"  two  words ":  "two_words",
		"9lives":         "cmd_9lives",
		"!!!":            "",
		"a__b":           "a_b",
	} {
		if got := sanitizeCommand(in); got != want {
			t.Fatalf("sanitizeCommand(%q) = %q, want %q", in, got, want)
		}
	}
}
