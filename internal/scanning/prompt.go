package scanning

import "github.com/google/generative-ai-go/genai"

// Generation parameters for the extraction model. These are fixed for every
// scan; they are not user tunable.
const (
	extractionTemperature     float32 = 1.0
	extractionTopK            int32   = 40
	extractionTopP            float32 = 0.95
	extractionMaxOutputTokens int32   = 8192
	extractionResponseMIME            = "application/json"
)

// Units the model may emit for a grocery item
var allowedUnits = []string{"G", "ML", "PC"}

// extractionInstruction is the system prompt shared by all model providers
const extractionInstruction = `Your job is to find grocery items in receipt text and generate a structured output. You are given a string containing raw receipt text. Return a structured output of all grocery food and drink items in the string and their associated data. The structured output should include the date of purchase listed on the receipt if found. Date of purchase should have format "MM/DD/YYYY" if found or "NULL" if not found.

Each item must have a name. You may edit abbreviated or contracted item names to be more recognizable.
Each item may optionally have quantity and unit as well, if found. Quantity should be a whole number. Unit should be one of the given units appropriate for a whole number quantity. Make conversions where they make sense (eg. 0.543 KG = 543 G). The default quantity is 1. The default unit is PC (piece).
Each item must have days_till_expiry. You should generate this value as a conservative estimate of how many days until the food item expires, assuming it is stored under recommended conditions.`

// ExtractionPrompt is the request template sent with every receipt.
// It is built once and must be treated as read-only.
type ExtractionPrompt struct {
	SystemInstruction string
	Schema            *genai.Schema
	ResponseMIMEType  string
	Temperature       float32
	TopK              int32
	TopP              float32
	MaxOutputTokens   int32
}

var defaultPrompt = buildPrompt()

// DefaultPrompt returns the process-wide extraction prompt
func DefaultPrompt() *ExtractionPrompt {
	return defaultPrompt
}

func buildPrompt() *ExtractionPrompt {
	return &ExtractionPrompt{
		SystemInstruction: extractionInstruction,
		Schema:            extractionSchema(),
		ResponseMIMEType:  extractionResponseMIME,
		Temperature:       extractionTemperature,
		TopK:              extractionTopK,
		TopP:              extractionTopP,
		MaxOutputTokens:   extractionMaxOutputTokens,
	}
}

func extractionSchema() *genai.Schema {
	item := &genai.Schema{
		Type:        genai.TypeObject,
		Description: "A grocery item",
		Properties: map[string]*genai.Schema{
			"name": {
				Type:        genai.TypeString,
				Description: "Name of the grocery item",
			},
			"quantity": {
				Type:        genai.TypeInteger,
				Description: "Quantity of the grocery item",
				Nullable:    true,
			},
			"unit": {
				Type:        genai.TypeString,
				Format:      "enum",
				Description: "Unit of measurement for the item",
				Enum:        allowedUnits,
				Nullable:    true,
			},
			// Required so the model always commits to an estimate; long-lived
			// items are dropped to "no expiry" when mapped to inventory.
			"days_till_expiry": {
				Type:        genai.TypeInteger,
				Description: "Estimated number of days until item expires",
			},
		},
		Required: []string{"name", "days_till_expiry"},
	}

	return &genai.Schema{
		Type:        genai.TypeObject,
		Description: "List of grocery food and drink items",
		Properties: map[string]*genai.Schema{
			"grocery_items": {
				Type:        genai.TypeArray,
				Description: "List of grocery food and drink items",
				Items:       item,
			},
			"date_of_purchase": {
				Type:        genai.TypeString,
				Description: "The purchase date of the receipt",
				Nullable:    true,
			},
		},
		Required: []string{"grocery_items"},
	}
}

// JSONSchema renders the response schema as a plain JSON Schema document,
// for providers that accept one instead of a genai.Schema.
func (p *ExtractionPrompt) JSONSchema() map[string]any {
	return schemaToJSON(p.Schema)
}

func schemaToJSON(s *genai.Schema) map[string]any {
	out := map[string]any{}
	switch s.Type {
	case genai.TypeObject:
		out["type"] = "object"
	case genai.TypeArray:
		out["type"] = "array"
	case genai.TypeString:
		out["type"] = "string"
	case genai.TypeInteger:
		out["type"] = "integer"
	case genai.TypeNumber:
		out["type"] = "number"
	case genai.TypeBoolean:
		out["type"] = "boolean"
	}
	if s.Nullable {
		out["type"] = []any{out["type"], "null"}
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Items != nil {
		out["items"] = schemaToJSON(s.Items)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = schemaToJSON(prop)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}
