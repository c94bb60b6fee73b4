package generator

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"dietagent"
)

type wireMeal struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Calories    *float64        `json:"calories"`
	Protein     *float64        `json:"protein"`
	Carbs       *float64        `json:"carbs"`
	Fat         *float64        `json:"fat"`
	Ingredients json.RawMessage `json:"ingredients,omitempty"`
	Steps       json.RawMessage `json:"steps,omitempty"`
}

type wirePlan struct {
	Meals []wireMeal `json:"meals"`
}

// ParsePlan decodes model output into a structurally valid CandidatePlan.
// Code fences and text around the JSON object are ignored. Calories are
// rounded to the nearest integer. Every failure wraps dietagent.ErrMalformedPlan.
func ParsePlan(data []byte) (dietagent.CandidatePlan, error) {
	obj, ok := extractJSONObject(string(data))
	if !ok {
		return dietagent.CandidatePlan{}, fmt.Errorf("%w: no JSON object in model output", dietagent.ErrMalformedPlan)
	}

	var wp wirePlan
	if err := json.Unmarshal([]byte(obj), &wp); err != nil {
		return dietagent.CandidatePlan{}, fmt.Errorf("%w: %v", dietagent.ErrMalformedPlan, err)
	}

	plan := dietagent.CandidatePlan{Meals: make([]dietagent.CandidateMeal, 0, len(wp.Meals))}
	for i, m := range wp.Meals {
		if missing := m.missing(); len(missing) > 0 {
			return dietagent.CandidatePlan{}, fmt.Errorf("%w: meal %d (%s) is missing %s",
				dietagent.ErrMalformedPlan, i, m.Name, strings.Join(missing, ", "))
		}
		plan.Meals = append(plan.Meals, dietagent.CandidateMeal{
			Name:        strings.TrimSpace(m.Name),
			Type:        strings.TrimSpace(m.Type),
			Calories:    int(math.Round(*m.Calories)),
			Protein:     *m.Protein,
			Carbs:       *m.Carbs,
			Fat:         *m.Fat,
			Ingredients: m.Ingredients,
			Steps:       m.Steps,
		})
	}

	if err := plan.Validate(); err != nil {
		return dietagent.CandidatePlan{}, err
	}
	return plan, nil
}

func (m wireMeal) missing() []string {
	var out []string
	if m.Calories == nil {
		out = append(out, "calories")
	}
	if m.Protein == nil {
		out = append(out, "protein")
	}
	if m.Carbs == nil {
		out = append(out, "carbs")
	}
	if m.Fat == nil {
		out = append(out, "fat")
	}
	return out
}

// extractJSONObject returns the first balanced top-level JSON object in s,
// skipping braces inside strings.
func extractJSONObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
