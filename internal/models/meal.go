package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Meal identifies one of the three daily meals served by the mess.
type Meal string

const (
	MealBreakfast Meal = "breakfast"
	MealLunch     Meal = "lunch"
	MealDinner    Meal = "dinner"
)

// AllMeals lists meals in serving order.
var AllMeals = []Meal{MealBreakfast, MealLunch, MealDinner}

// Valid returns true when the meal is a supported value.
func (m Meal) Valid() bool {
	switch m {
	case MealBreakfast, MealLunch, MealDinner:
		return true
	default:
		return false
	}
}

// ParseMeal matches a meal name case-insensitively.
func ParseMeal(raw string) (Meal, bool) {
	m := Meal(strings.ToLower(strings.TrimSpace(raw)))
	return m, m.Valid()
}

// MealSet is the set of meals a plan offers. Plans store their meal list as
// free text ("Breakfast, Lunch"); ParseMealSet normalises that once at the
// repository boundary so nothing downstream substring-matches meal names.
type MealSet map[Meal]struct{}

// ParseMealSet builds a set from a comma-separated meal list, ignoring
// unknown tokens and case.
func ParseMealSet(raw string) MealSet {
	set := MealSet{}
	for _, part := range strings.Split(raw, ",") {
		if meal, ok := ParseMeal(part); ok {
			set[meal] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set offers the given meal.
func (s MealSet) Has(meal Meal) bool {
	_, ok := s[meal]
	return ok
}

// Meals returns the set members in serving order.
func (s MealSet) Meals() []Meal {
	out := make([]Meal, 0, len(s))
	for meal := range s {
		out = append(out, meal)
	}
	sort.Slice(out, func(i, j int) bool { return mealOrder(out[i]) < mealOrder(out[j]) })
	return out
}

// String renders the set as stored in the plans table.
func (s MealSet) String() string {
	meals := s.Meals()
	parts := make([]string, len(meals))
	for i, meal := range meals {
		parts[i] = string(meal)
	}
	return strings.Join(parts, ",")
}

// MarshalJSON renders the set as an ordered array of meal names.
func (s MealSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Meals())
}

// UnmarshalJSON accepts an array of meal names.
func (s *MealSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set := MealSet{}
	for _, name := range names {
		meal, ok := ParseMeal(name)
		if !ok {
			return fmt.Errorf("unknown meal %q", name)
		}
		set[meal] = struct{}{}
	}
	*s = set
	return nil
}

func mealOrder(m Meal) int {
	switch m {
	case MealBreakfast:
		return 0
	case MealLunch:
		return 1
	default:
		return 2
	}
}

// MealWindow is one meal's serving interval in minutes since local midnight.
// Grace extends the effective interval on both sides of the normal one.
type MealWindow struct {
	Meal         Meal
	Start        int
	End          int
	GraceMinutes int
}

// NewMealWindow parses "HH:MM" bounds into a window.
func NewMealWindow(meal Meal, start, end string, graceMinutes int) (MealWindow, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return MealWindow{}, fmt.Errorf("%s start: %w", meal, err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return MealWindow{}, fmt.Errorf("%s end: %w", meal, err)
	}
	if endMin <= startMin {
		return MealWindow{}, fmt.Errorf("%s window ends before it starts", meal)
	}
	if graceMinutes < 0 {
		graceMinutes = 0
	}
	return MealWindow{Meal: meal, Start: startMin, End: endMin, GraceMinutes: graceMinutes}, nil
}

func parseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// contains reports whether the minute-of-day falls in the effective interval.
func (w MealWindow) contains(minute int) bool {
	return minute >= w.Start-w.GraceMinutes && minute <= w.End+w.GraceMinutes
}

// normalDistance is zero inside the normal interval and grows linearly outside.
func (w MealWindow) normalDistance(minute int) int {
	if minute < w.Start {
		return w.Start - minute
	}
	if minute > w.End {
		return minute - w.End
	}
	return 0
}

// ResolveMeal maps a wall-clock instant to the meal being served. When grace
// periods make effective intervals overlap, the meal whose normal interval is
// closest wins; outside every window the second return is false.
func ResolveMeal(now time.Time, windows []MealWindow) (Meal, bool) {
	minute := now.Hour()*60 + now.Minute()

	best := -1
	bestDistance := 0
	for i, w := range windows {
		if !w.contains(minute) {
			continue
		}
		d := w.normalDistance(minute)
		if best == -1 || d < bestDistance {
			best = i
			bestDistance = d
		}
	}
	if best == -1 {
		return "", false
	}
	return windows[best].Meal, true
}

// CalendarDate truncates an instant to its calendar day in the instant's own
// location. The result is normalised to UTC midnight for storage; a scan at
// 23:55 local time lands on that local day regardless of the UTC date.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
