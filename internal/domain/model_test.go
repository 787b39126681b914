package domain

import (
	"errors"
	"io"
	"testing"
)

func TestDisplayName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		r    Recipient
		want string
	}{
		{"profile", Recipient{FirstName: "A", Profile: Profile{Name: "Ana"}}, "Ana"},
		{"first name", Recipient{FirstName: "Bo"}, "Bo"},
		{"fallback", Recipient{FirstName: "  "}, "there"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.r.DisplayName(); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestDefaultPlan(t *testing.T) {
	t.Parallel()

	p := DefaultPlan()
	sum := 0
	for _, m := range p.Meals {
		sum += m.Calories
	}
	if sum != p.TotalCalories || p.TotalCalories != 1500 {
		t.Fatalf("calories %d total %d", sum, p.TotalCalories)
	}
	titles := p.MealTitles()
	if len(titles) != 3 || titles[2] != "Salmon & Quinoa" {
		t.Fatalf("titles = %v", titles)
	}
}

func TestErrorsUnwrap(t *testing.T) {
	t.Parallel()

	var err error = &GenerationError{Op: "plan", Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("GenerationError should unwrap")
	}
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Op != "plan" {
		t.Fatalf("errors.As failed")
	}
	d := &DeliveryError{ChatID: 7, Op: "send", Err: io.EOF}
	if d.Error() != "deliver send to 7: EOF" {
		t.Fatalf("DeliveryError = %q", d.Error())
	}
}
