package scanning

import "context"

// OCRResult holds the text recognised on a receipt.
// Found is false when the service reported no text region at all.
type OCRResult struct {
	Text  string
	Found bool
}

// GroceryItemPayload is one item as emitted by the extraction model
type GroceryItemPayload struct {
	Name           string  `json:"name"`
	Quantity       *int    `json:"quantity,omitempty"`
	Unit           *string `json:"unit,omitempty"`
	DaysTillExpiry *int    `json:"days_till_expiry"`
}

// ExtractionPayload is the structured reply for one receipt
type ExtractionPayload struct {
	GroceryItems   []GroceryItemPayload `json:"grocery_items"`
	DateOfPurchase *string              `json:"date_of_purchase,omitempty"`
}

// TextDetector defines the interface for OCR backends
type TextDetector interface {
	// DetectText runs document text detection on a base64 encoded image
	DetectText(ctx context.Context, encodedImage string) (*OCRResult, error)
}

// Generator defines the interface for generative model backends
type Generator interface {
	// Generate sends the receipt text as the user turn and returns the raw reply
	Generate(ctx context.Context, receiptText string) (string, error)
	// Close closes the generator and releases resources
	Close() error
}
