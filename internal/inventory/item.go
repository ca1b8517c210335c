package inventory

// Unit is the measurement unit of an inventory or grocery item
type Unit string

const (
	UnitGrams       Unit = "G"
	UnitMillilitres Unit = "ML"
	UnitPieces      Unit = "PC"
)

// Item is one tracked inventory entry. Items produced from a receipt scan
// have no ID until they are saved.
type Item struct {
	ID              string  `json:"inventoryID,omitempty"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	MeasurementUnit Unit    `json:"measurementUnit"`
	DateAdded       string  `json:"dateAdded"`  // MM/DD/YYYY
	ExpiryDate      *string `json:"expiryDate"` // MM/DD/YYYY, nil when not perishable
}

// GroceryItem is an entry on the shared grocery list
type GroceryItem struct {
	ID              string `json:"groceryID,omitempty"`
	Name            string `json:"name"`
	Quantity        int    `json:"quantity"`
	MeasurementUnit Unit   `json:"measurementUnit"`
	DateAdded       string `json:"dateAdded"`
	Checked         bool   `json:"checked"`
}
