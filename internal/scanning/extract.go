package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Extractor turns raw receipt text into a validated ExtractionPayload
type Extractor struct {
	generator Generator
}

// NewExtractor creates a new Extractor backed by the given model
func NewExtractor(generator Generator) *Extractor {
	return &Extractor{generator: generator}
}

// Extract asks the model for structured grocery items. A single attempt is
// made; failures are returned as ModelInvocationError or SchemaViolationError.
func (e *Extractor) Extract(ctx context.Context, rawText string) (*ExtractionPayload, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, ErrEmptyInput
	}

	reply, err := e.generator.Generate(ctx, rawText)
	if err != nil {
		return nil, &ModelInvocationError{Err: err}
	}

	return parseExtractionJSON(reply)
}

// parseExtractionJSON decodes and validates a model reply
func parseExtractionJSON(text string) (*ExtractionPayload, error) {
	text, err := trimToJSONObject(text)
	if err != nil {
		return nil, &ModelInvocationError{Err: err}
	}
	if !json.Valid([]byte(text)) {
		return nil, &ModelInvocationError{Err: errors.New("reply is not valid JSON")}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, &SchemaViolationError{Field: "reply", Index: -1, Reason: "is not a JSON object"}
	}

	itemsRaw, ok := fields["grocery_items"]
	if !ok || isJSONNull(itemsRaw) {
		return nil, &SchemaViolationError{Field: "grocery_items", Index: -1, Reason: "is missing"}
	}

	payload := &ExtractionPayload{}
	if err := json.Unmarshal(itemsRaw, &payload.GroceryItems); err != nil {
		return nil, &SchemaViolationError{Field: "grocery_items", Index: -1, Reason: fmt.Sprintf("is malformed: %v", err)}
	}
	if payload.GroceryItems == nil {
		payload.GroceryItems = []GroceryItemPayload{}
	}

	if dateRaw, ok := fields["date_of_purchase"]; ok && !isJSONNull(dateRaw) {
		var date string
		if err := json.Unmarshal(dateRaw, &date); err != nil {
			return nil, &SchemaViolationError{Field: "date_of_purchase", Index: -1, Reason: "is not a string"}
		}
		payload.DateOfPurchase = &date
	}

	for i, item := range payload.GroceryItems {
		if err := ValidateItem(i, item); err != nil {
			return nil, err
		}
	}

	return payload, nil
}

// ValidateItem checks a single grocery item against the extraction schema
func ValidateItem(index int, item GroceryItemPayload) error {
	if strings.TrimSpace(item.Name) == "" {
		return &SchemaViolationError{Field: "name", Index: index, Reason: "is missing"}
	}
	if item.Quantity != nil && *item.Quantity < 0 {
		return &SchemaViolationError{Field: "quantity", Index: index, Reason: fmt.Sprintf("is negative (%d)", *item.Quantity)}
	}
	if item.DaysTillExpiry == nil {
		return &SchemaViolationError{Field: "days_till_expiry", Index: index, Reason: "is missing"}
	}
	if item.Unit != nil && !slices.Contains(allowedUnits, *item.Unit) {
		return &SchemaViolationError{Field: "unit", Index: index, Reason: fmt.Sprintf("has unknown value %q", *item.Unit)}
	}
	return nil
}

// trimToJSONObject strips markdown code fences and anything outside the
// outermost braces
func trimToJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in reply")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in reply")
	}

	return text[startIdx : endIdx+1], nil
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
