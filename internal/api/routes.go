package api

import (
	"github.com/kenmarshall/brite-shopping-api/internal/places"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, storage StorageReader, catalogSvc CatalogService, gateway places.Gateway, apiKey string) {
	handlers := NewHandlers(storage, catalogSvc, gateway)

	r.Use(APIKeyAuth(apiKey))

	// Health check (handle both GET and HEAD)
	r.GET("/health", handlers.HealthCheck)
	r.HEAD("/health", handlers.HealthCheck)

	// Stores
	stores := r.Group("/stores")
	{
		stores.GET("", handlers.GetStores)
		stores.GET("/search", handlers.SearchStores)
		stores.GET("/summary", handlers.GetStoreSummary)
		stores.GET("/:id", handlers.GetStore)
	}

	// Products
	products := r.Group("/products")
	{
		products.GET("", handlers.GetProducts)
		products.POST("", handlers.CreateProduct)
		products.GET("/:id", handlers.GetProduct)
		products.GET("/:id/prices", handlers.GetProductPrices)
		products.POST("/:id/prices", handlers.AddProductPrice)
		products.GET("/:id/lowest-price", handlers.GetLowestPrice)
	}

	// Devices
	devices := r.Group("/devices")
	{
		devices.POST("", handlers.RegisterDevice)
		devices.GET("/:id/shopping-list", handlers.GetShoppingList)
		devices.PUT("/:id/shopping-list", handlers.SyncShoppingList)
	}
}
