package mock

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"dietagent"
	"dietagent/generator"
)

// DefaultSkew makes the first draft overshoot every target by 10%, so a run
// always goes through one correction.
const DefaultSkew = 0.1

var catalog = map[string][]string{
	"breakfast": {"Greek yogurt parfait", "Spinach feta omelette", "Overnight oats with berries", "Smoked salmon bagel"},
	"lunch":     {"Chicken quinoa bowl", "Lentil and roasted vegetable salad", "Turkey avocado wrap", "Tuna nicoise"},
	"dinner":    {"Baked cod with sweet potato", "Beef and broccoli stir fry", "Chickpea coconut curry", "Herb roast chicken with rice"},
	"snack":     {"Apple with peanut butter", "Cottage cheese and pineapple", "Hummus and carrot sticks", "Trail mix", "Protein shake"},
}

// Generator is a deterministic dietagent.PlanGenerator. The first draft
// splits the targets evenly across the meal slots, scaled by 1+skew. A
// correction is followed exactly: each meal takes its corrected targets.
type Generator struct {
	skew float64

	mu    sync.Mutex
	calls int
}

func NewGenerator(skew float64) *Generator {
	return &Generator{skew: skew}
}

// Calls returns how many times Generate has been called.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *Generator) Generate(ctx context.Context, targets dietagent.NutritionTargets, correction *dietagent.Rejection) (dietagent.CandidatePlan, error) {
	if err := ctx.Err(); err != nil {
		return dietagent.CandidatePlan{}, err
	}

	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()

	if correction == nil || len(correction.PerMealTargets) == 0 {
		slog.Info("GENERATOR: Mock drafting plan", "call", call, "meals", targets.MealsPerDay, "skew", g.skew)
		return g.draft(targets), nil
	}

	slog.Info("GENERATOR: Mock applying correction", "call", call, "meals", len(correction.PerMealTargets))
	return follow(correction), nil
}

func (g *Generator) draft(targets dietagent.NutritionTargets) dietagent.CandidatePlan {
	slots := generator.MealSlots(targets.MealsPerDay)
	if len(slots) == 0 {
		return dietagent.CandidatePlan{}
	}

	n := float64(len(slots))
	scale := 1 + g.skew
	names := pickNames(slots, targets.PreviousMealNames)

	perMealCalories := make([]float64, len(slots))
	for i := range slots {
		perMealCalories[i] = float64(targets.Calories) / n * scale
	}
	calories := splitCalories(perMealCalories)

	plan := dietagent.CandidatePlan{Meals: make([]dietagent.CandidateMeal, len(slots))}
	for i, slot := range slots {
		plan.Meals[i] = dietagent.CandidateMeal{
			Name:     names[i],
			Type:     slot,
			Calories: calories[i],
			Protein:  round1(targets.Protein / n * scale),
			Carbs:    round1(targets.Carbs / n * scale),
			Fat:      round1(targets.Fat / n * scale),
		}
	}
	return plan
}

func follow(correction *dietagent.Rejection) dietagent.CandidatePlan {
	perMealCalories := make([]float64, len(correction.PerMealTargets))
	for i, pm := range correction.PerMealTargets {
		perMealCalories[i] = pm.Targets.Calories
	}
	calories := splitCalories(perMealCalories)

	plan := dietagent.CandidatePlan{Meals: make([]dietagent.CandidateMeal, len(correction.PerMealTargets))}
	for i, pm := range correction.PerMealTargets {
		plan.Meals[i] = dietagent.CandidateMeal{
			Name:     pm.MealName,
			Type:     pm.MealType,
			Calories: calories[i],
			Protein:  pm.Targets.Protein,
			Carbs:    pm.Targets.Carbs,
			Fat:      pm.Targets.Fat,
		}
	}
	return plan
}

// splitCalories rounds each value to an integer and lets the last meal absorb
// the rounding, so the integers sum to the rounded total.
func splitCalories(values []float64) []int {
	out := make([]int, len(values))
	if len(values) == 0 {
		return out
	}

	var total float64
	assigned := 0
	for i, v := range values {
		total += v
		if i < len(values)-1 {
			out[i] = int(math.Round(v))
			assigned += out[i]
		}
	}
	out[len(out)-1] = max(int(math.Round(total))-assigned, 0)
	return out
}

// pickNames chooses a distinct catalog dish for each slot, skipping names in avoid.
func pickNames(slots []string, avoid []string) []string {
	used := make(map[string]bool, len(avoid)+len(slots))
	for _, name := range avoid {
		used[strings.ToLower(strings.TrimSpace(name))] = true
	}

	names := make([]string, len(slots))
	for i, slot := range slots {
		names[i] = slot + " " + strconv.Itoa(i+1)
		for _, dish := range catalog[slot] {
			if !used[strings.ToLower(dish)] {
				names[i] = dish
				break
			}
		}
		used[strings.ToLower(names[i])] = true
	}
	return names
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
