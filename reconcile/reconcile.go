// Package reconcile compares a candidate plan against nutrition targets and,
// when it misses, computes corrected per-meal targets that sum back to the
// daily goal.
package reconcile

import (
	"math"

	"dietagent"
)

const (
	// CalorieTolerance and GramTolerance are absolute, inclusive bounds on
	// |target - actual| for a plan to be accepted.
	CalorieTolerance = 1.0
	GramTolerance    = 1.0

	// residualThreshold is the smallest rounding residual pushed onto the last meal.
	residualThreshold = 0.1
)

// macro selects one field of dietagent.Macros so every step below runs once
// per macro without repeating itself.
type macro struct {
	tolerance float64
	get       func(dietagent.Macros) float64
	set       func(*dietagent.Macros, float64)
}

var macros = []macro{
	{
		tolerance: CalorieTolerance,
		get:       func(m dietagent.Macros) float64 { return m.Calories },
		set:       func(m *dietagent.Macros, v float64) { m.Calories = v },
	},
	{
		tolerance: GramTolerance,
		get:       func(m dietagent.Macros) float64 { return m.Protein },
		set:       func(m *dietagent.Macros, v float64) { m.Protein = v },
	},
	{
		tolerance: GramTolerance,
		get:       func(m dietagent.Macros) float64 { return m.Carbs },
		set:       func(m *dietagent.Macros, v float64) { m.Carbs = v },
	},
	{
		tolerance: GramTolerance,
		get:       func(m dietagent.Macros) float64 { return m.Fat },
		set:       func(m *dietagent.Macros, v float64) { m.Fat = v },
	},
}

// Plan reconciles plan against targets. It returns nil when every macro total
// is within tolerance (the plan is accepted). Otherwise the returned
// Rejection carries the global diffs and, for each meal, the values it should
// carry so that the plan sums to the targets within 0.1 per macro.
//
// An empty plan is always rejected, with an empty target list.
func Plan(targets dietagent.NutritionTargets, plan dietagent.CandidatePlan) *dietagent.Rejection {
	goal := targets.Macros()
	actual := plan.Totals()
	diffs := goal.Sub(actual)

	if len(plan.Meals) == 0 {
		return &dietagent.Rejection{
			Diffs:          diffs,
			Actual:         actual,
			PerMealTargets: []dietagent.PerMealTarget{},
		}
	}

	if withinTolerance(diffs) {
		return nil
	}

	perMeal := make([]dietagent.PerMealTarget, len(plan.Meals))
	for i, meal := range plan.Meals {
		perMeal[i] = dietagent.PerMealTarget{
			MealIndex: i,
			MealName:  meal.Name,
			MealType:  meal.Type,
		}
	}

	for _, m := range macros {
		distribute(m, plan.Meals, m.get(goal), m.get(actual), m.get(diffs), perMeal)
	}

	return &dietagent.Rejection{
		Diffs:          diffs,
		Actual:         actual,
		PerMealTargets: perMeal,
	}
}

func withinTolerance(diffs dietagent.Macros) bool {
	for _, m := range macros {
		if math.Abs(m.get(diffs)) > m.tolerance {
			return false
		}
	}
	return true
}

// distribute spreads diff over the meals in proportion to each meal's share
// of total, then folds the rounding residual into the last meals.
func distribute(m macro, meals []dietagent.CandidateMeal, goal, total, diff float64, out []dietagent.PerMealTarget) {
	n := float64(len(meals))

	var sum float64
	for i, meal := range meals {
		value := m.get(meal.Macros())

		share := 1 / n
		if total != 0 {
			share = value / total
		}

		corrected := clamp(round1(value + diff*share))
		m.set(&out[i].Targets, corrected)
		sum += corrected
	}

	// The residual goes to the last meal. A negative part that the last meal
	// cannot take without going below zero moves on to the meal before it.
	residual := round1(goal - sum)
	for i := len(out) - 1; i >= 0 && math.Abs(residual) >= residualThreshold; i-- {
		target := &out[i].Targets
		before := m.get(*target)
		after := clamp(round1(before + residual))
		m.set(target, after)
		residual = round1(residual - (after - before))
	}
}

// round1 rounds half away from zero to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return v
}
