package dietagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidTargets is returned when NutritionTargets fail field validation.
	ErrInvalidTargets = errors.New("invalid nutrition targets")

	// ErrMalformedPlan is returned when a candidate plan is not structurally valid.
	ErrMalformedPlan = errors.New("malformed candidate plan")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PlanGenerator produces a candidate plan either from the original targets
// (correction == nil) or steered by the most recent rejection.
type PlanGenerator interface {
	Generate(ctx context.Context, targets NutritionTargets, correction *Rejection) (CandidatePlan, error)
}

// Macros holds the four tracked nutrition values. Calories are kcal, the rest grams.
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Sub returns m - o for every macro.
func (m Macros) Sub(o Macros) Macros {
	return Macros{
		Calories: m.Calories - o.Calories,
		Protein:  m.Protein - o.Protein,
		Carbs:    m.Carbs - o.Carbs,
		Fat:      m.Fat - o.Fat,
	}
}

// NutritionTargets is the immutable input of one plan-generation run.
type NutritionTargets struct {
	Calories            int      `json:"calories" validate:"gte=0"`
	Protein             float64  `json:"protein" validate:"gte=0"`
	Carbs               float64  `json:"carbs" validate:"gte=0"`
	Fat                 float64  `json:"fat" validate:"gte=0"`
	MealsPerDay         int      `json:"meals_per_day" validate:"gte=1"`
	DietStyle           string   `json:"diet_style,omitempty"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty" validate:"dive,required"`
	PreviousMealNames   []string `json:"previous_meal_names,omitempty"`
}

// Validate checks the numeric bounds of the targets.
func (t NutritionTargets) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTargets, err)
	}
	return nil
}

// Macros returns the targets as a Macros value.
func (t NutritionTargets) Macros() Macros {
	return Macros{
		Calories: float64(t.Calories),
		Protein:  t.Protein,
		Carbs:    t.Carbs,
		Fat:      t.Fat,
	}
}

// Restrictions returns the dietary restrictions as a sorted set: trimmed,
// lower-cased and without duplicates.
func (t NutritionTargets) Restrictions() []string {
	seen := make(map[string]struct{}, len(t.DietaryRestrictions))
	out := make([]string, 0, len(t.DietaryRestrictions))
	for _, r := range t.DietaryRestrictions {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// CandidateMeal is one meal of a candidate plan. Ingredients and steps are
// carried through untouched.
type CandidateMeal struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Calories    int             `json:"calories"`
	Protein     float64         `json:"protein"`
	Carbs       float64         `json:"carbs"`
	Fat         float64         `json:"fat"`
	Ingredients json.RawMessage `json:"ingredients,omitempty"`
	Steps       json.RawMessage `json:"steps,omitempty"`
}

// Macros returns the meal's nutrition values.
func (m CandidateMeal) Macros() Macros {
	return Macros{
		Calories: float64(m.Calories),
		Protein:  m.Protein,
		Carbs:    m.Carbs,
		Fat:      m.Fat,
	}
}

// CandidatePlan is an ordered list of meals. Its length is not required to
// match NutritionTargets.MealsPerDay.
type CandidatePlan struct {
	Meals []CandidateMeal `json:"meals"`
}

// Totals sums every macro over all meals.
func (p CandidatePlan) Totals() Macros {
	var t Macros
	for _, m := range p.Meals {
		t.Calories += float64(m.Calories)
		t.Protein += m.Protein
		t.Carbs += m.Carbs
		t.Fat += m.Fat
	}
	return t
}

// Validate checks that the plan has at least one meal and that every meal is well formed.
func (p CandidatePlan) Validate() error {
	if len(p.Meals) == 0 {
		return fmt.Errorf("%w: plan has no meals", ErrMalformedPlan)
	}
	return p.ValidateMeals()
}

// ValidateMeals checks every meal for a name and non-negative values. An
// empty plan passes.
func (p CandidatePlan) ValidateMeals() error {
	for i, m := range p.Meals {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: meal %d has no name", ErrMalformedPlan, i)
		}
		if m.Calories < 0 || m.Protein < 0 || m.Carbs < 0 || m.Fat < 0 {
			return fmt.Errorf("%w: meal %d (%s) has negative values", ErrMalformedPlan, i, m.Name)
		}
	}
	return nil
}

// MealNames returns the names of the plan's meals in order.
func (p CandidatePlan) MealNames() []string {
	names := make([]string, 0, len(p.Meals))
	for _, m := range p.Meals {
		names = append(names, m.Name)
	}
	return names
}

// PerMealTarget is the corrected set of values one meal should carry in the
// next candidate.
type PerMealTarget struct {
	MealIndex int    `json:"meal_index"`
	MealName  string `json:"meal_name"`
	MealType  string `json:"meal_type"`
	Targets   Macros `json:"targets"`
}

// Rejection is the failing verdict of reconciliation and doubles as the
// correction directive for the next generation attempt.
type Rejection struct {
	Diffs          Macros          `json:"diffs"`
	Actual         Macros          `json:"actual"`
	PerMealTargets []PerMealTarget `json:"per_meal_targets"`
}
