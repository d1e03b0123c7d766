package model

import "time"

// Store is a physical or online retailer, keyed by the place identifier
// returned from the maps lookup. At most one Store exists per PlaceID.
type Store struct {
	ID        string    `json:"id" db:"id"`
	PlaceID   string    `json:"place_id" db:"place_id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address,omitempty" db:"address"`
	Latitude  *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64  `json:"longitude,omitempty" db:"longitude"`
	Website   string    `json:"website,omitempty" db:"website"`
	Online    bool      `json:"online" db:"online"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Product is a catalog entry. Name is unique; EstimatedPrice is derived
// from the product's price rows and is nil until a price exists.
type Product struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description,omitempty" db:"description"`
	MatchKey       string    `json:"match_key,omitempty" db:"match_key"`
	EstimatedPrice *float64  `json:"estimated_price" db:"estimated_price"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Price links a product to a store. The (ProductID, StoreID) pair is
// unique; repeated submissions overwrite amount, currency and timestamp.
type Price struct {
	ID        int64     `json:"id" db:"id"`
	ProductID string    `json:"product_id" db:"product_id"`
	StoreID   string    `json:"store_id" db:"store_id"`
	Amount    float64   `json:"amount" db:"amount"`
	Currency  string    `json:"currency" db:"currency"`
	UpdatedAt time.Time `json:"last_updated" db:"updated_at"`

	// Store details joined in for price listings.
	Store *Store `json:"store,omitempty" db:"-"`
}

// PlaceCandidate is a single result from the place lookup service.
type PlaceCandidate struct {
	PlaceID   string   `json:"place_id"`
	Name      string   `json:"name,omitempty"`
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// StoreProductCount is one row of the per-store product aggregation.
type StoreProductCount struct {
	StoreID      string `json:"store_id"`
	StoreName    string `json:"store_name"`
	ProductCount int    `json:"product_count"`
}

// Device is a registered client device with its synced shopping list.
type Device struct {
	DeviceID     string    `json:"device_id" db:"device_id"`
	Platform     string    `json:"platform" db:"platform"`
	PushToken    string    `json:"push_token,omitempty" db:"push_token"`
	ShoppingList []string  `json:"shopping_list" db:"shopping_list"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
