package catalog

import (
	"context"
	"fmt"

	"github.com/kenmarshall/brite-shopping-api/internal/model"
	"github.com/kenmarshall/brite-shopping-api/internal/storage"

	"github.com/google/uuid"
)

// Storage defines the persistence operations the catalog needs.
type Storage interface {
	InsertStore(ctx context.Context, store *model.Store) error
	GetStoreByPlaceID(ctx context.Context, placeID string) (*model.Store, bool)
	InsertProduct(ctx context.Context, p *model.Product) error
	GetProductByName(ctx context.Context, name string) (*model.Product, bool)
	GetProduct(ctx context.Context, id string) (*model.Product, bool)
	UpsertPrice(ctx context.Context, productID, storeID string, amount float64, currency string) (*model.Price, error)
	RecomputeEstimatedPrice(ctx context.Context, productID string) (*float64, error)
}

// Service implements the dedup-and-upsert rules that keep product, store
// and price records consistent. All dedup is exact-key: stores by place
// identifier, products by name, prices by (product, store) pair. Races
// between identical writers are settled by the storage layer's unique
// indexes; the loser re-reads the winner's row.
type Service struct {
	storage      Storage
	baseCurrency string
}

// NewService creates a catalog service. baseCurrency is the currency
// code applied when a price submission omits one.
func NewService(storage Storage, baseCurrency string) *Service {
	return &Service{
		storage:      storage,
		baseCurrency: baseCurrency,
	}
}

// StoreInfo is an inbound store reference, normally a place candidate
// the client picked from a store search. "store" is accepted as a legacy
// alias for "name".
type StoreInfo struct {
	PlaceID   string   `json:"place_id"`
	Name      string   `json:"name"`
	Store     string   `json:"store"`
	Address   string   `json:"address"`
	Website   string   `json:"website"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Online    bool     `json:"online"`
}

// StoreName returns the store's display name from whichever field the
// client supplied.
func (si *StoreInfo) StoreName() string {
	if si.Name != "" {
		return si.Name
	}
	return si.Store
}

// ProductData is the descriptive portion of a product submission.
type ProductData struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MatchKey    string `json:"match_key"`
}

// ResolveOrCreateStore returns the store for the candidate's place
// identifier, creating it if absent. Fields of an existing store are
// left untouched so curated data is never clobbered by lookup results.
func (s *Service) ResolveOrCreateStore(ctx context.Context, info StoreInfo) (*model.Store, error) {
	if info.PlaceID == "" {
		return nil, &ValidationError{Message: "Store place_id is required"}
	}
	if info.StoreName() == "" {
		return nil, &ValidationError{Message: "Store name is required"}
	}

	if existing, ok := s.storage.GetStoreByPlaceID(ctx, info.PlaceID); ok {
		return existing, nil
	}

	store := &model.Store{
		ID:        uuid.NewString(),
		PlaceID:   info.PlaceID,
		Name:      info.StoreName(),
		Address:   info.Address,
		Website:   info.Website,
		Latitude:  info.Latitude,
		Longitude: info.Longitude,
		Online:    info.Online,
	}

	if err := s.storage.InsertStore(ctx, store); err != nil {
		// A concurrent writer won the race; their row is authoritative.
		if storage.IsUniqueViolation(err) {
			if existing, ok := s.storage.GetStoreByPlaceID(ctx, info.PlaceID); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("create store: %w", err)
	}

	return store, nil
}

// ResolveOrCreateProduct returns the product with the exact given name,
// creating it if absent. The estimated price of a new product stays
// unset until a price is recorded.
func (s *Service) ResolveOrCreateProduct(ctx context.Context, data ProductData) (*model.Product, error) {
	if data.Name == "" {
		return nil, &ValidationError{Message: "Product name is required"}
	}

	if existing, ok := s.storage.GetProductByName(ctx, data.Name); ok {
		return existing, nil
	}

	product := &model.Product{
		ID:          uuid.NewString(),
		Name:        data.Name,
		Description: data.Description,
		MatchKey:    data.MatchKey,
	}

	if err := s.storage.InsertProduct(ctx, product); err != nil {
		if storage.IsUniqueViolation(err) {
			if existing, ok := s.storage.GetProductByName(ctx, data.Name); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

// UpsertPrice records amount/currency for the (product, store) pair,
// overwriting any previous row, then recomputes the product's estimated
// price from all of its rows. The price write commits before the
// recompute reads.
func (s *Service) UpsertPrice(ctx context.Context, productID, storeID string, amount float64, currency string) (*model.Price, error) {
	if amount <= 0 {
		return nil, &ValidationError{Message: "Price is required and must be a number"}
	}
	if currency == "" {
		currency = s.baseCurrency
	}

	price, err := s.storage.UpsertPrice(ctx, productID, storeID, amount, currency)
	if err != nil {
		return nil, fmt.Errorf("upsert price: %w", err)
	}

	if _, err := s.storage.RecomputeEstimatedPrice(ctx, productID); err != nil {
		// The price row is already committed; the next upsert or an
		// explicit recompute converges the derived field.
		return nil, fmt.Errorf("recompute estimated price: %w", err)
	}

	return price, nil
}

// CreateProductRequest is the payload of a full product submission.
// Price is decoded as any so a non-numeric value can be rejected with a
// specific message instead of a generic bind error.
type CreateProductRequest struct {
	ProductData *ProductData `json:"product_data"`
	StoreInfo   *StoreInfo   `json:"store_info"`
	Price       any          `json:"price"`
	Currency    string       `json:"currency"`
}

// CreateProductResult reports the records a submission resolved to.
type CreateProductResult struct {
	Product *model.Product
	Store   *model.Store
	Price   *model.Price
}

// CreateProduct runs the product-creation sequence: validate, resolve or
// create the store, resolve or create the product, upsert the price.
// Steps are not transactional; a store or product created by an earlier
// step is kept even if a later step fails.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*CreateProductResult, error) {
	if req.ProductData == nil || req.ProductData.Name == "" {
		return nil, &ValidationError{Message: "Product data with name is required"}
	}
	if req.StoreInfo == nil {
		return nil, &ValidationError{Message: "Store info is required"}
	}
	if req.StoreInfo.PlaceID == "" {
		return nil, &ValidationError{Message: "Store place_id is required"}
	}
	// Positivity is checked here too so a bad price is rejected before
	// the store and product writes.
	amount, ok := numericPrice(req.Price)
	if !ok || amount <= 0 {
		return nil, &ValidationError{Message: "Price is required and must be a number"}
	}

	store, err := s.ResolveOrCreateStore(ctx, *req.StoreInfo)
	if err != nil {
		return nil, err
	}

	product, err := s.ResolveOrCreateProduct(ctx, *req.ProductData)
	if err != nil {
		return nil, err
	}

	price, err := s.UpsertPrice(ctx, product.ID, store.ID, amount, req.Currency)
	if err != nil {
		return nil, err
	}

	return &CreateProductResult{
		Product: product,
		Store:   store,
		Price:   price,
	}, nil
}

// AddPriceForProduct records a price for an existing product at the
// store described by info, resolving or creating the store first.
func (s *Service) AddPriceForProduct(ctx context.Context, productID string, info *StoreInfo, amount any, currency string) (*model.Price, error) {
	product, ok := s.storage.GetProduct(ctx, productID)
	if !ok {
		return nil, &NotFoundError{Message: "Product not found"}
	}
	if info == nil {
		return nil, &ValidationError{Message: "Store info is required"}
	}
	value, ok := numericPrice(amount)
	if !ok || value <= 0 {
		return nil, &ValidationError{Message: "Price is required and must be a number"}
	}

	store, err := s.ResolveOrCreateStore(ctx, *info)
	if err != nil {
		return nil, err
	}

	return s.UpsertPrice(ctx, product.ID, store.ID, value, currency)
}

// numericPrice accepts the JSON number decodings for a price value.
func numericPrice(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
