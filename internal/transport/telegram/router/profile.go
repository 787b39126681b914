package router

import (
	"strconv"
	"strings"

	"biteiq/internal/domain"
)

// ParseProfile reads the eight onboarding fields: name, age, gender, height
// (cm), weight (kg), activity, diet and goal weight (kg). Fields are split on
// commas when the text has any, else on lines. Numeric fields ignore units
// and other decoration.
func ParseProfile(text string) (domain.Profile, bool) {
	var raw []string
	if strings.Contains(text, ",") {
		raw = strings.Split(text, ",")
	} else {
		raw = strings.Split(text, "\n")
	}
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 8 {
		return domain.Profile{}, false
	}

	age, err := strconv.Atoi(keep(parts[1], false))
	if err != nil {
		return domain.Profile{}, false
	}
	var nums [3]float64
	for i, idx := range []int{3, 4, 7} {
		f, err := strconv.ParseFloat(keep(parts[idx], true), 64)
		if err != nil {
			return domain.Profile{}, false
		}
		nums[i] = f
	}
	return domain.Profile{
		Name:     parts[0],
		Age:      age,
		Gender:   parts[2],
		HeightCM: nums[0],
		WeightKG: nums[1],
		Activity: parts[5],
		Diet:     parts[6],
		GoalKG:   nums[2],
	}, true
}

// keep drops everything but ASCII digits, and dots when dot is set.
func keep(s string, dot bool) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || (dot && r == '.') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
