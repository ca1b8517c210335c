package pantry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/chopify/internal/inventory"
)

// ErrInvalidItem is returned when an item fails basic validation
var ErrInvalidItem = errors.New("invalid item")

// Scanner turns a receipt image into inventory items
type Scanner interface {
	Run(ctx context.Context, image []byte, contentType string) ([]inventory.Item, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt scans, the inventory and the grocery list
type Service struct {
	store      inventory.Store
	scanner    Scanner
	timeSource TimeSource
}

// NewService creates a new Service with the default time source
func NewService(store inventory.Store, scanner Scanner) *Service {
	return NewServiceWithDeps(store, scanner, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(store inventory.Store, scanner Scanner, timeSrc TimeSource) *Service {
	return &Service{
		store:      store,
		scanner:    scanner,
		timeSource: timeSrc,
	}
}

// ScanReceipt scans a receipt and returns the items found on it.
// Nothing is saved; the caller reviews the items and saves them with SaveItems.
func (s *Service) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) ([]inventory.Item, error) {
	items, err := s.scanner.Run(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}
	return items, nil
}

// SaveItems stores reviewed items in the inventory, assigning each an ID.
// The items of one call are saved together or not at all.
func (s *Service) SaveItems(items []inventory.Item) ([]*inventory.Item, error) {
	saved := make([]*inventory.Item, 0, len(items))
	for i := range items {
		item := items[i]
		if err := s.normalizeItem(&item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		saved = append(saved, &item)
	}

	if err := s.store.CreateItems(saved); err != nil {
		return nil, fmt.Errorf("saving items: %w", err)
	}
	return saved, nil
}

// GetItem retrieves an inventory item by ID
func (s *Service) GetItem(id string) (*inventory.Item, error) {
	item, err := s.store.GetItem(id)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns the whole inventory
func (s *Service) ListItems() ([]*inventory.Item, error) {
	items, err := s.store.ListItems()
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// UpdateItem replaces an inventory item
func (s *Service) UpdateItem(id string, item *inventory.Item) error {
	item.ID = id
	if err := s.normalizeItem(item); err != nil {
		return err
	}
	if err := s.store.UpdateItem(item); err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	return nil
}

// DeleteItem removes an inventory item
func (s *Service) DeleteItem(id string) error {
	if err := s.store.DeleteItem(id); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// AddGroceryItem puts an item on the grocery list
func (s *Service) AddGroceryItem(item *inventory.GroceryItem) error {
	if err := s.normalizeGroceryItem(item); err != nil {
		return err
	}
	if err := s.store.CreateGroceryItem(item); err != nil {
		return fmt.Errorf("saving grocery item: %w", err)
	}
	return nil
}

// GetGroceryItem retrieves a grocery item by ID
func (s *Service) GetGroceryItem(id string) (*inventory.GroceryItem, error) {
	item, err := s.store.GetGroceryItem(id)
	if err != nil {
		return nil, fmt.Errorf("getting grocery item: %w", err)
	}
	return item, nil
}

// ListGroceryItems returns the grocery list
func (s *Service) ListGroceryItems() ([]*inventory.GroceryItem, error) {
	items, err := s.store.ListGroceryItems()
	if err != nil {
		return nil, fmt.Errorf("listing grocery items: %w", err)
	}
	return items, nil
}

// UpdateGroceryItem replaces a grocery item
func (s *Service) UpdateGroceryItem(id string, item *inventory.GroceryItem) error {
	item.ID = id
	if err := s.normalizeGroceryItem(item); err != nil {
		return err
	}
	if err := s.store.UpdateGroceryItem(item); err != nil {
		return fmt.Errorf("updating grocery item: %w", err)
	}
	return nil
}

// DeleteGroceryItem removes a grocery item
func (s *Service) DeleteGroceryItem(id string) error {
	if err := s.store.DeleteGroceryItem(id); err != nil {
		return fmt.Errorf("deleting grocery item: %w", err)
	}
	return nil
}

func (s *Service) normalizeItem(item *inventory.Item) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if item.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidItem)
	}
	if err := checkUnit(&item.MeasurementUnit); err != nil {
		return err
	}
	if item.DateAdded == "" {
		item.DateAdded = inventory.FormatDate(s.timeSource.Now())
	} else if _, err := inventory.ParseDate(item.DateAdded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if item.ExpiryDate != nil {
		if _, err := inventory.ParseDate(*item.ExpiryDate); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidItem, err)
		}
	}
	return nil
}

func (s *Service) normalizeGroceryItem(item *inventory.GroceryItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if item.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidItem)
	}
	if err := checkUnit(&item.MeasurementUnit); err != nil {
		return err
	}
	if item.DateAdded == "" {
		item.DateAdded = inventory.FormatDate(s.timeSource.Now())
	}
	return nil
}

// checkUnit defaults an empty unit to pieces and rejects unknown ones
func checkUnit(unit *inventory.Unit) error {
	switch *unit {
	case "":
		*unit = inventory.UnitPieces
	case inventory.UnitGrams, inventory.UnitMillilitres, inventory.UnitPieces:
	default:
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidItem, *unit)
	}
	return nil
}
