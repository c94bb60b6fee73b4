package dietagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNutritionTargets_Validate(t *testing.T) {
	tests := []struct {
		name    string
		targets NutritionTargets
		wantErr bool
	}{
		{name: "valid", targets: NutritionTargets{Calories: 2000, Protein: 150, Carbs: 200, Fat: 60, MealsPerDay: 3}},
		{name: "all zero macros", targets: NutritionTargets{MealsPerDay: 1}},
		{name: "negative calories", targets: NutritionTargets{Calories: -1, MealsPerDay: 1}, wantErr: true},
		{name: "negative protein", targets: NutritionTargets{Protein: -0.5, MealsPerDay: 1}, wantErr: true},
		{name: "negative carbs", targets: NutritionTargets{Carbs: -1, MealsPerDay: 1}, wantErr: true},
		{name: "negative fat", targets: NutritionTargets{Fat: -1, MealsPerDay: 1}, wantErr: true},
		{name: "no meals", targets: NutritionTargets{Calories: 2000}, wantErr: true},
		{name: "blank restriction", targets: NutritionTargets{MealsPerDay: 2, DietaryRestrictions: []string{"vegan", ""}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.targets.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTargets)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNutritionTargets_Restrictions(t *testing.T) {
	targets := NutritionTargets{DietaryRestrictions: []string{" Vegan", "gluten-free", "vegan", "  "}}
	assert.Equal(t, []string{"gluten-free", "vegan"}, targets.Restrictions())
	assert.Empty(t, NutritionTargets{}.Restrictions())
}

func TestCandidatePlan_Totals(t *testing.T) {
	plan := CandidatePlan{Meals: []CandidateMeal{
		{Name: "a", Calories: 900, Protein: 60, Carbs: 90, Fat: 25},
		{Name: "b", Calories: 900, Protein: 60.5, Carbs: 90, Fat: 25.25},
	}}

	assert.Equal(t, Macros{Calories: 1800, Protein: 120.5, Carbs: 180, Fat: 50.25}, plan.Totals())
	assert.Equal(t, Macros{}, CandidatePlan{}.Totals())

	targets := NutritionTargets{Calories: 2000, Protein: 150, Carbs: 200, Fat: 60}
	assert.Equal(t, Macros{Calories: 200, Protein: 29.5, Carbs: 20, Fat: 9.75}, targets.Macros().Sub(plan.Totals()))
}

func TestCandidatePlan_Validate(t *testing.T) {
	tests := []struct {
		name        string
		plan        CandidatePlan
		errContains string
	}{
		{name: "valid", plan: CandidatePlan{Meals: []CandidateMeal{{Name: "Oats", Calories: 400, Protein: 20, Carbs: 60, Fat: 8}}}},
		{name: "zero values allowed", plan: CandidatePlan{Meals: []CandidateMeal{{Name: "Water"}}}},
		{name: "empty", plan: CandidatePlan{}, errContains: "plan has no meals"},
		{name: "unnamed", plan: CandidatePlan{Meals: []CandidateMeal{{Name: " "}}}, errContains: "meal 0 has no name"},
		{name: "negative calories", plan: CandidatePlan{Meals: []CandidateMeal{{Name: "x", Calories: -5}}}, errContains: "negative values"},
		{name: "negative fat", plan: CandidatePlan{Meals: []CandidateMeal{{Name: "ok"}, {Name: "x", Fat: -0.1}}}, errContains: "meal 1 (x) has negative values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedPlan)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}

	assert.NoError(t, CandidatePlan{}.ValidateMeals(), "an empty plan has no malformed meals")
}

func TestCandidatePlan_MealNames(t *testing.T) {
	plan := CandidatePlan{Meals: []CandidateMeal{{Name: "Oats"}, {Name: "Curry"}}}
	assert.Equal(t, []string{"Oats", "Curry"}, plan.MealNames())
	assert.Empty(t, CandidatePlan{}.MealNames())
}
