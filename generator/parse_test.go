package generator

import (
	"testing"

	"dietagent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoMealJSON = `{"meals":[
  {"name":"Greek yogurt bowl","type":"breakfast","calories":650,"protein":45,"carbs":70.5,"fat":18,
   "ingredients":[{"name":"greek yogurt","quantity":"300 g"}],"steps":["Mix."]},
  {"name":"Salmon rice","type":"dinner","calories":849.6,"protein":55.5,"carbs":80,"fat":30}
]}`

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected dietagent.CandidatePlan
	}{
		{
			name:  "plain JSON",
			input: twoMealJSON,
			expected: dietagent.CandidatePlan{Meals: []dietagent.CandidateMeal{
				{
					Name: "Greek yogurt bowl", Type: "breakfast", Calories: 650, Protein: 45, Carbs: 70.5, Fat: 18,
					Ingredients: []byte(`[{"name":"greek yogurt","quantity":"300 g"}]`),
					Steps:       []byte(`["Mix."]`),
				},
				{Name: "Salmon rice", Type: "dinner", Calories: 850, Protein: 55.5, Carbs: 80, Fat: 30},
			}},
		},
		{
			name:  "fenced with commentary",
			input: "Here is your plan:\n```json\n{\"meals\":[{\"name\":\"Omelette {cheese}\",\"type\":\"breakfast\",\"calories\":500,\"protein\":30,\"carbs\":5,\"fat\":35}]}\n```\nEnjoy!",
			expected: dietagent.CandidatePlan{Meals: []dietagent.CandidateMeal{
				{Name: "Omelette {cheese}", Type: "breakfast", Calories: 500, Protein: 30, Carbs: 5, Fat: 35},
			}},
		},
		{
			name:  "names are trimmed",
			input: `{"meals":[{"name":"  Tofu stir fry ","type":" lunch","calories":0,"protein":0,"carbs":0,"fat":0}]}`,
			expected: dietagent.CandidatePlan{Meals: []dietagent.CandidateMeal{
				{Name: "Tofu stir fry", Type: "lunch"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan([]byte(tt.input))
			require.NoError(t, err)
			require.Len(t, plan.Meals, len(tt.expected.Meals))
			for i := range tt.expected.Meals {
				want, got := tt.expected.Meals[i], plan.Meals[i]
				assert.Equal(t, want.Name, got.Name)
				assert.Equal(t, want.Type, got.Type)
				assert.Equal(t, want.Macros(), got.Macros())
				if want.Ingredients != nil {
					assert.JSONEq(t, string(want.Ingredients), string(got.Ingredients))
				}
				if want.Steps != nil {
					assert.JSONEq(t, string(want.Steps), string(got.Steps))
				}
			}
		})
	}
}

func TestParsePlan_Malformed(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedError string
	}{
		{name: "no JSON", input: "I cannot help with that.", expectedError: "no JSON object"},
		{name: "unterminated object", input: `{"meals":[{"name":"x"`, expectedError: "no JSON object"},
		{name: "wrong types", input: `{"meals":"none"}`, expectedError: "cannot unmarshal"},
		{name: "empty plan", input: `{"meals":[]}`, expectedError: "no meals"},
		{name: "missing meals key", input: `{"plan":[]}`, expectedError: "no meals"},
		{
			name:          "missing macros",
			input:         `{"meals":[{"name":"Soup","type":"lunch","calories":300,"carbs":20}]}`,
			expectedError: "meal 0 (Soup) is missing protein, fat",
		},
		{
			name:          "negative macro",
			input:         `{"meals":[{"name":"Soup","type":"lunch","calories":300,"protein":-2,"carbs":20,"fat":5}]}`,
			expectedError: "negative values",
		},
		{
			name:          "unnamed meal",
			input:         `{"meals":[{"name":" ","type":"lunch","calories":300,"protein":2,"carbs":20,"fat":5}]}`,
			expectedError: "has no name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, dietagent.ErrMalformedPlan)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "bare", input: `{"a":1}`, want: `{"a":1}`, wantOK: true},
		{name: "nested", input: `x {"a":{"b":[{}]}} y {"c":2}`, want: `{"a":{"b":[{}]}}`, wantOK: true},
		{name: "escaped quote", input: `{"a":"he said \"}\""}`, want: `{"a":"he said \"}\""}`, wantOK: true},
		{name: "none", input: `[1,2,3]`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSONObject(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
