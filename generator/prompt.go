// Package generator holds what every model-backed PlanGenerator shares: the
// system prompt, rendering of targets and corrections into model input, the
// JSON schema of a plan and parsing of model output back into a CandidatePlan.
package generator

import (
	"fmt"
	"strings"

	"dietagent"
)

// SubmitToolName is the tool a model calls to hand back a plan.
const SubmitToolName = "submit_meal_plan"

// SubmitToolDescription describes SubmitToolName to the model.
const SubmitToolDescription = "Submit the complete one-day meal plan. Call exactly once with every meal."

// SystemPrompt sets up the model as a nutritionist and fixes the output contract.
const SystemPrompt = `You are a registered nutritionist who writes one-day meal plans.

GOAL
Build a plan whose meals add up to the user's daily calorie and macro targets.

OUTPUT CONTRACT
- Return the plan through the submit_meal_plan tool when it is available. Otherwise return ONE JSON object only (no markdown, no code fences, no commentary).
- Shape:
{
  "meals": [
    {
      "name": string,            // unique, descriptive dish name
      "type": string,            // the meal slot, e.g. "breakfast"
      "calories": integer,       // kcal, >= 0
      "protein": number,         // grams, >= 0
      "carbs": number,           // grams, >= 0
      "fat": number,             // grams, >= 0
      "ingredients": [ { "name": string, "quantity": string } ],
      "steps": [ string ]
    }
  ]
}

RULES
- Produce exactly one meal per requested slot, in slot order.
- The sum of every meal's calories, protein, carbs and fat must match the daily targets within 1 unit.
- Every ingredient must respect the dietary restrictions.
- Never reuse a meal name the user asked you to avoid.
- Macro values must be consistent with the listed ingredients and quantities.
- When you receive corrected per-meal targets, keep the same dishes and change portions so each meal hits its corrected values.`

// MealSlots names the meal slots for a day with n meals.
func MealSlots(n int) []string {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []string{"lunch"}
	case n == 2:
		return []string{"breakfast", "dinner"}
	}

	slots := []string{"breakfast", "lunch", "dinner"}
	for i := 3; i < n; i++ {
		slots = append(slots, "snack")
	}
	return slots
}

// RenderRequest describes the targets for a first attempt.
func RenderRequest(targets dietagent.NutritionTargets) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create a one-day meal plan with exactly %d meal(s).\n\n", targets.MealsPerDay)

	b.WriteString("DAILY TARGETS\n")
	fmt.Fprintf(&b, "- calories: %d kcal\n", targets.Calories)
	fmt.Fprintf(&b, "- protein: %.1f g\n", targets.Protein)
	fmt.Fprintf(&b, "- carbs: %.1f g\n", targets.Carbs)
	fmt.Fprintf(&b, "- fat: %.1f g\n", targets.Fat)

	b.WriteString("\nMEAL SLOTS\n")
	for i, slot := range MealSlots(targets.MealsPerDay) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, slot)
	}

	if targets.MealsPerDay > 0 {
		n := float64(targets.MealsPerDay)
		fmt.Fprintf(&b, "\nAn even split is about %.0f kcal, %.1f g protein, %.1f g carbs and %.1f g fat per meal.\n",
			float64(targets.Calories)/n, targets.Protein/n, targets.Carbs/n, targets.Fat/n)
	}

	if style := strings.TrimSpace(targets.DietStyle); style != "" {
		fmt.Fprintf(&b, "\nDIET STYLE: %s\n", style)
	}
	if restrictions := targets.Restrictions(); len(restrictions) > 0 {
		fmt.Fprintf(&b, "\nDIETARY RESTRICTIONS (apply to every ingredient): %s\n", strings.Join(restrictions, ", "))
	}
	if len(targets.PreviousMealNames) > 0 {
		fmt.Fprintf(&b, "\nDO NOT REUSE THESE MEAL NAMES: %s\n", strings.Join(targets.PreviousMealNames, "; "))
	}

	return b.String()
}

// RenderCorrection turns a rejection into instructions for the next attempt.
func RenderCorrection(rej *dietagent.Rejection) string {
	if rej == nil {
		return ""
	}

	var b strings.Builder

	b.WriteString("CORRECTION REQUIRED\n")
	b.WriteString("Your previous plan missed the daily targets (target minus actual):\n")
	fmt.Fprintf(&b, "- calories: %+.1f kcal (plan had %.1f)\n", rej.Diffs.Calories, rej.Actual.Calories)
	fmt.Fprintf(&b, "- protein: %+.1f g (plan had %.1f)\n", rej.Diffs.Protein, rej.Actual.Protein)
	fmt.Fprintf(&b, "- carbs: %+.1f g (plan had %.1f)\n", rej.Diffs.Carbs, rej.Actual.Carbs)
	fmt.Fprintf(&b, "- fat: %+.1f g (plan had %.1f)\n", rej.Diffs.Fat, rej.Actual.Fat)

	if len(rej.PerMealTargets) == 0 {
		b.WriteString("\nThe previous plan had no meals. Produce a complete plan for every slot.\n")
		return b.String()
	}

	b.WriteString("\nKeep the same dishes and adjust portions so each meal carries exactly these values:\n")
	for _, pm := range rej.PerMealTargets {
		fmt.Fprintf(&b, "%d. %s (%s): %.0f kcal, %.1f g protein, %.1f g carbs, %.1f g fat\n",
			pm.MealIndex+1, pm.MealName, pm.MealType,
			pm.Targets.Calories, pm.Targets.Protein, pm.Targets.Carbs, pm.Targets.Fat)
	}
	b.WriteString("\nRecompute ingredient quantities to match, then return the full corrected plan.\n")

	return b.String()
}

// RenderUserMessage is the full user turn: the request, followed by the
// correction when there is one.
func RenderUserMessage(targets dietagent.NutritionTargets, correction *dietagent.Rejection) string {
	msg := RenderRequest(targets)
	if correction != nil {
		msg += "\n" + RenderCorrection(correction)
	}
	return msg
}
