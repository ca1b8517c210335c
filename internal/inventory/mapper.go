package inventory

import (
	"strings"
	"time"

	"github.com/zombor/chopify/internal/scanning"
)

// PerishabilityCutoffDays is the shelf life from which an item is treated as
// non-perishable and gets no expiry date.
const PerishabilityCutoffDays = 30

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Mapper converts validated extraction payloads into inventory items
type Mapper struct {
	timeSource TimeSource
}

// NewMapper creates a new Mapper using the wall clock for "today"
func NewMapper() *Mapper {
	return &Mapper{timeSource: &defaultTimeSource{}}
}

// NewMapperWithTimeSource creates a new Mapper with a custom clock for testing
func NewMapperWithTimeSource(timeSource TimeSource) *Mapper {
	return &Mapper{timeSource: timeSource}
}

// Map turns one receipt's payload into inventory items, in emission order.
// All items share the receipt's purchase date as their date added.
func (m *Mapper) Map(payload *scanning.ExtractionPayload) ([]Item, error) {
	if payload == nil {
		return nil, &scanning.SchemaViolationError{Field: "grocery_items", Index: -1, Reason: "is missing"}
	}

	items := make([]Item, 0, len(payload.GroceryItems))
	if len(payload.GroceryItems) == 0 {
		return items, nil
	}

	dateAdded, err := m.resolvePurchaseDate(payload.DateOfPurchase)
	if err != nil {
		return nil, err
	}

	for i, gi := range payload.GroceryItems {
		if err := scanning.ValidateItem(i, gi); err != nil {
			return nil, err
		}

		item := Item{
			Name:            gi.Name,
			Quantity:        1,
			MeasurementUnit: UnitPieces,
			DateAdded:       dateAdded,
		}
		if gi.Quantity != nil {
			item.Quantity = *gi.Quantity
		}
		if gi.Unit != nil {
			item.MeasurementUnit = Unit(*gi.Unit)
		}

		if days := *gi.DaysTillExpiry; days < PerishabilityCutoffDays {
			expiry, err := AddDays(dateAdded, days)
			if err != nil {
				return nil, err
			}
			item.ExpiryDate = &expiry
		}

		items = append(items, item)
	}

	return items, nil
}

// resolvePurchaseDate picks the receipt's own date when the model found one,
// and today otherwise. The model reports a missing date as "NULL".
func (m *Mapper) resolvePurchaseDate(reported *string) (string, error) {
	if reported == nil {
		return FormatDate(m.timeSource.Now()), nil
	}

	date := strings.TrimSpace(*reported)
	if date == "" || strings.EqualFold(date, "NULL") {
		return FormatDate(m.timeSource.Now()), nil
	}

	if _, err := ParseDate(date); err != nil {
		return "", &scanning.SchemaViolationError{
			Field:  "date_of_purchase",
			Index:  -1,
			Reason: "is not a MM/DD/YYYY date",
		}
	}
	return date, nil
}
