package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kenmarshall/brite-shopping-api/internal/catalog"
	"github.com/kenmarshall/brite-shopping-api/internal/model"
	"github.com/kenmarshall/brite-shopping-api/internal/places"

	"github.com/gin-gonic/gin"
)

// StorageReader defines the read side of storage needed by handlers.
type StorageReader interface {
	GetAllProducts(ctx context.Context) []*model.Product
	GetProduct(ctx context.Context, id string) (*model.Product, bool)
	GetPricesForProduct(ctx context.Context, productID string) []*model.Price
	GetLowestPrice(ctx context.Context, productID string) (*model.Price, bool)
	GetAllStores(ctx context.Context) []*model.Store
	GetStore(ctx context.Context, id string) (*model.Store, bool)
	GetStoreProductCounts(ctx context.Context) []model.StoreProductCount
	UpsertDevice(ctx context.Context, d *model.Device) (*model.Device, error)
	GetShoppingList(ctx context.Context, deviceID string) []string
	SetShoppingList(ctx context.Context, deviceID string, list []string) error
}

// CatalogService defines the write operations handlers delegate to.
type CatalogService interface {
	CreateProduct(ctx context.Context, req catalog.CreateProductRequest) (*catalog.CreateProductResult, error)
	AddPriceForProduct(ctx context.Context, productID string, info *catalog.StoreInfo, amount any, currency string) (*model.Price, error)
}

// Handlers contains all API handlers
type Handlers struct {
	storage StorageReader
	catalog CatalogService
	gateway places.Gateway
}

// NewHandlers creates a new handlers instance
func NewHandlers(storage StorageReader, catalogSvc CatalogService, gateway places.Gateway) *Handlers {
	return &Handlers{
		storage: storage,
		catalog: catalogSvc,
		gateway: gateway,
	}
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// SearchStores looks up store candidates by name or address via the
// place lookup gateway.
func (h *Handlers) SearchStores(c *gin.Context) {
	name := c.Query("name")
	address := c.Query("address")

	if name == "" && address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "A 'name' or 'address' query parameter is required"})
		return
	}

	results, err := h.gateway.Search(c.Request.Context(), places.Query{Name: name, Address: address})
	if err != nil {
		respondError(c, err)
		return
	}

	if len(results) == 0 {
		var msg string
		if name != "" {
			msg = fmt.Sprintf("No store found with name: %s", name)
		} else {
			msg = fmt.Sprintf("No location found for address: %s", address)
		}
		c.JSON(http.StatusNotFound, gin.H{"message": msg, "stores": []model.PlaceCandidate{}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stores": results})
}

// GetStores returns all persisted stores.
func (h *Handlers) GetStores(c *gin.Context) {
	stores := h.storage.GetAllStores(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"count":  len(stores),
		"stores": stores,
	})
}

// GetStore returns a single store by ID.
func (h *Handlers) GetStore(c *gin.Context) {
	store, ok := h.storage.GetStore(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Store not found"})
		return
	}
	c.JSON(http.StatusOK, store)
}

// GetStoreSummary returns per-store product counts.
func (h *Handlers) GetStoreSummary(c *gin.Context) {
	counts := h.storage.GetStoreProductCounts(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"stores": counts})
}

// CreateProduct runs the full product submission: resolve or create the
// store and product, then upsert the price.
func (h *Handlers) CreateProduct(c *gin.Context) {
	var req catalog.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON payload"})
		return
	}

	result, err := h.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "Product created successfully",
		"product_id": result.Product.ID,
		"store_id":   result.Store.ID,
	})
}

// GetProducts returns all products.
func (h *Handlers) GetProducts(c *gin.Context) {
	products := h.storage.GetAllProducts(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"count":    len(products),
		"products": products,
	})
}

// GetProduct returns a single product by ID.
func (h *Handlers) GetProduct(c *gin.Context) {
	product, ok := h.storage.GetProduct(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// GetProductPrices returns all prices for a product with store details,
// cheapest first.
func (h *Handlers) GetProductPrices(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.storage.GetProduct(c.Request.Context(), id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
		return
	}

	prices := h.storage.GetPricesForProduct(c.Request.Context(), id)
	if prices == nil {
		prices = []*model.Price{}
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id": id,
		"count":      len(prices),
		"prices":     prices,
	})
}

// GetLowestPrice returns the cheapest known price for a product.
func (h *Handlers) GetLowestPrice(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.storage.GetProduct(c.Request.Context(), id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
		return
	}

	price, ok := h.storage.GetLowestPrice(c.Request.Context(), id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "No prices recorded for this product"})
		return
	}
	c.JSON(http.StatusOK, price)
}

// AddProductPrice records a price for an existing product at a store.
func (h *Handlers) AddProductPrice(c *gin.Context) {
	var req struct {
		StoreInfo *catalog.StoreInfo `json:"store_info"`
		Price     any                `json:"price"`
		Currency  string             `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON payload"})
		return
	}

	price, err := h.catalog.AddPriceForProduct(c.Request.Context(), c.Param("id"), req.StoreInfo, req.Price, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, price)
}

// RegisterDevice registers or refreshes a device profile.
func (h *Handlers) RegisterDevice(c *gin.Context) {
	var req struct {
		DeviceID  string `json:"device_id"`
		Platform  string `json:"platform"`
		PushToken string `json:"push_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON payload"})
		return
	}

	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "device_id is required"})
		return
	}

	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	switch platform {
	case "ios", "android", "web":
	default:
		platform = "unknown"
	}

	device, err := h.storage.UpsertDevice(c.Request.Context(), &model.Device{
		DeviceID:  deviceID,
		Platform:  platform,
		PushToken: strings.TrimSpace(req.PushToken),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, device)
}

// GetShoppingList returns the shopping list for a device.
func (h *Handlers) GetShoppingList(c *gin.Context) {
	list := h.storage.GetShoppingList(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"shopping_list": list})
}

// SyncShoppingList overwrites the shopping list for a device.
func (h *Handlers) SyncShoppingList(c *gin.Context) {
	var req struct {
		ShoppingList []string `json:"shopping_list"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ShoppingList == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "shopping_list must be an array"})
		return
	}

	if err := h.storage.SetShoppingList(c.Request.Context(), c.Param("id"), req.ShoppingList); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Shopping list synced",
		"count":   len(req.ShoppingList),
	})
}

// respondError maps error kinds to HTTP responses. Unexpected errors are
// logged and surfaced as a generic 500.
func respondError(c *gin.Context, err error) {
	var validationErr *catalog.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"message": validationErr.Message})
		return
	}

	var notFoundErr *catalog.NotFoundError
	if errors.As(err, &notFoundErr) {
		c.JSON(http.StatusNotFound, gin.H{"message": notFoundErr.Message})
		return
	}

	var gatewayErr *places.GatewayError
	if errors.As(err, &gatewayErr) {
		c.JSON(http.StatusBadGateway, gin.H{"message": gatewayErr.Message})
		return
	}

	log.Printf("[api] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "An internal server error occurred"})
}
