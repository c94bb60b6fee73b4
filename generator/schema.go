package generator

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

// PlanSchema is the JSON schema of a plan payload. It is the input schema of
// the submit tool and the structured output format for models that accept one.
func PlanSchema() *jsonschema.Schema {
	zero := 0.0
	number := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "number", Minimum: &zero, Description: desc}
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"meals": {
				Type:        "array",
				Description: "One entry per meal slot, in slot order.",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"name":     {Type: "string", Description: "Dish name"},
						"type":     {Type: "string", Description: "Meal slot, e.g. breakfast"},
						"calories": {Type: "integer", Minimum: &zero, Description: "Energy in kcal"},
						"protein":  number("Protein in grams"),
						"carbs":    number("Carbohydrates in grams"),
						"fat":      number("Fat in grams"),
						"ingredients": {
							Type: "array",
							Items: &jsonschema.Schema{
								Type: "object",
								Properties: map[string]*jsonschema.Schema{
									"name":     {Type: "string"},
									"quantity": {Type: "string"},
								},
								Required: []string{"name", "quantity"},
							},
						},
						"steps": {
							Type:  "array",
							Items: &jsonschema.Schema{Type: "string"},
						},
					},
					Required: []string{"name", "type", "calories", "protein", "carbs", "fat"},
				},
			},
		},
		Required: []string{"meals"},
	}
}

// SchemaMap round-trips a schema through its JSON form so it can be handed to
// APIs that take a plain document.
func SchemaMap(s *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return m, nil
}
