package scanning

import "fmt"

// ErrEmptyInput is returned when extraction is asked to work on blank text
var ErrEmptyInput = &EmptyInputError{}

// EncodingError reports that the receipt image could not be read or converted
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding receipt image: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// OCRTransportError reports a failed round-trip to the text-detection service.
// StatusCode is zero when the request never got a response.
type OCRTransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *OCRTransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ocr request failed (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("ocr request failed: %v", e.Err)
}

func (e *OCRTransportError) Unwrap() error { return e.Err }

// ModelInvocationError reports a failed generative model call or a reply that is not JSON
type ModelInvocationError struct {
	Err error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("invoking extraction model: %v", e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// SchemaViolationError reports JSON that does not satisfy the extraction schema.
// Index is the offending grocery item, or -1 for payload-level fields.
type SchemaViolationError struct {
	Field  string
	Index  int
	Reason string
}

func (e *SchemaViolationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("schema violation: grocery_items[%d].%s %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("schema violation: %s %s", e.Field, e.Reason)
}

// EmptyInputError reports blank receipt text handed to the extractor
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "receipt text is empty"
}
