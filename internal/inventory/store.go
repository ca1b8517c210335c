package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	inventoryBucketName = "inventory"
	groceryBucketName   = "grocery_list"
)

// ErrNotFound is returned when an item does not exist
var ErrNotFound = errors.New("item not found")

// Store defines the interface for inventory and grocery list persistence
type Store interface {
	// CreateItem assigns a new ID to the item and saves it
	CreateItem(item *Item) error

	// CreateItems saves a batch of inventory items in one transaction.
	// Either every item is saved or none is.
	CreateItems(items []*Item) error

	// GetItem retrieves an inventory item by ID
	GetItem(id string) (*Item, error)

	// ListItems returns all inventory items
	ListItems() ([]*Item, error)

	// UpdateItem overwrites an existing inventory item
	UpdateItem(item *Item) error

	// DeleteItem removes an inventory item
	DeleteItem(id string) error

	// CreateGroceryItem assigns a new ID to the grocery item and saves it
	CreateGroceryItem(item *GroceryItem) error

	// GetGroceryItem retrieves a grocery item by ID
	GetGroceryItem(id string) (*GroceryItem, error)

	// ListGroceryItems returns the whole grocery list
	ListGroceryItems() ([]*GroceryItem, error)

	// UpdateGroceryItem overwrites an existing grocery item
	UpdateGroceryItem(item *GroceryItem) error

	// DeleteGroceryItem removes a grocery item
	DeleteGroceryItem(id string) error

	// Close closes the database connection
	Close() error
}

// BoltStore implements the Store interface using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the database file at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{inventoryBucketName, groceryBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// CreateItem saves a new inventory item under a fresh UUID
func (b *BoltStore) CreateItem(item *Item) error {
	item.ID = uuid.NewString()
	return put(b.db, inventoryBucketName, item.ID, item)
}

// CreateItems saves every item under a fresh UUID in a single transaction.
// IDs are only left set when the batch commits.
func (b *BoltStore) CreateItems(items []*Item) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(inventoryBucketName))
		for _, item := range items {
			item.ID = uuid.NewString()
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("marshaling item: %w", err)
			}
			if err := bucket.Put([]byte(item.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, item := range items {
			item.ID = ""
		}
		return err
	}
	return nil
}

// GetItem retrieves an inventory item by ID
func (b *BoltStore) GetItem(id string) (*Item, error) {
	var item Item
	if err := get(b.db, inventoryBucketName, id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns all inventory items
func (b *BoltStore) ListItems() ([]*Item, error) {
	return list[Item](b.db, inventoryBucketName)
}

// UpdateItem overwrites an existing inventory item
func (b *BoltStore) UpdateItem(item *Item) error {
	return replace(b.db, inventoryBucketName, item.ID, item)
}

// DeleteItem removes an inventory item
func (b *BoltStore) DeleteItem(id string) error {
	return remove(b.db, inventoryBucketName, id)
}

// CreateGroceryItem saves a new grocery item under a fresh UUID
func (b *BoltStore) CreateGroceryItem(item *GroceryItem) error {
	item.ID = uuid.NewString()
	return put(b.db, groceryBucketName, item.ID, item)
}

// GetGroceryItem retrieves a grocery item by ID
func (b *BoltStore) GetGroceryItem(id string) (*GroceryItem, error) {
	var item GroceryItem
	if err := get(b.db, groceryBucketName, id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListGroceryItems returns the whole grocery list
func (b *BoltStore) ListGroceryItems() ([]*GroceryItem, error) {
	return list[GroceryItem](b.db, groceryBucketName)
}

// UpdateGroceryItem overwrites an existing grocery item
func (b *BoltStore) UpdateGroceryItem(item *GroceryItem) error {
	return replace(b.db, groceryBucketName, item.ID, item)
}

// DeleteGroceryItem removes a grocery item
func (b *BoltStore) DeleteGroceryItem(id string) error {
	return remove(b.db, groceryBucketName, id)
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func put(db *bbolt.DB, bucketName, id string, v any) error {
	return db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(id), data)
	})
}

// replace writes v only if id already exists
func replace(db *bbolt.DB, bucketName, id string, v any) error {
	return db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if id == "" || bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		return bucket.Put([]byte(id), data)
	})
}

func get(db *bbolt.DB, bucketName, id string, v any) error {
	return db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, v)
	})
}

func list[T any](db *bbolt.DB, bucketName string) ([]*T, error) {
	items := make([]*T, 0)
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func remove(db *bbolt.DB, bucketName, id string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}
