package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kenmarshall/brite-shopping-api/internal/api"
	"github.com/kenmarshall/brite-shopping-api/internal/catalog"
	"github.com/kenmarshall/brite-shopping-api/internal/model"
	"github.com/kenmarshall/brite-shopping-api/internal/places"
	"github.com/kenmarshall/brite-shopping-api/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	candidates []model.PlaceCandidate
	err        error
}

func (f *fakeGateway) Search(ctx context.Context, q places.Query) ([]model.PlaceCandidate, error) {
	return f.candidates, f.err
}

func newTestRouter(t *testing.T, gateway places.Gateway, apiKey string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	router := gin.New()
	api.SetupRoutes(router, store, catalog.NewService(store, "JMD"), gateway, apiKey)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestSearchStoresRequiresQueryParam(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{}, "")

	rr := doJSON(t, router, http.MethodGet, "/stores/search", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "A 'name' or 'address' query parameter is required", body["message"])
}

func TestSearchStoresEmptyResultIs404(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{candidates: []model.PlaceCandidate{}}, "")

	rr := doJSON(t, router, http.MethodGet, "/stores/search?name=Hi-Lo", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "No store found with name: Hi-Lo", body["message"])
	require.Empty(t, body["stores"])
}

func TestSearchStoresReturnsCandidates(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{candidates: []model.PlaceCandidate{
		{PlaceID: "P1", Name: "Hi-Lo", Address: "1 Main St"},
	}}, "")

	rr := doJSON(t, router, http.MethodGet, "/stores/search?name=Hi-Lo", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	stores := body["stores"].([]any)
	require.Len(t, stores, 1)
	require.Equal(t, "P1", stores[0].(map[string]any)["place_id"])
}

func TestSearchStoresGatewayFailureIs502(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{err: &places.GatewayError{Message: "The provided API key is invalid."}}, "")

	rr := doJSON(t, router, http.MethodGet, "/stores/search?name=Hi-Lo", "")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "The provided API key is invalid.", body["message"])
}

func TestCreateProductValidation(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{}, "")

	cases := []struct {
		name string
		body string
		msg  string
	}{
		{
			name: "missing product data",
			body: `{"store_info":{"place_id":"P1","store":"Hi-Lo"},"price":250}`,
			msg:  "Product data with name is required",
		},
		{
			name: "missing store info",
			body: `{"product_data":{"name":"Beans"},"price":250}`,
			msg:  "Store info is required",
		},
		{
			name: "missing place id",
			body: `{"product_data":{"name":"Beans"},"store_info":{"store":"Hi-Lo"},"price":250}`,
			msg:  "Store place_id is required",
		},
		{
			name: "missing price",
			body: `{"product_data":{"name":"Beans"},"store_info":{"place_id":"P1","store":"Hi-Lo"}}`,
			msg:  "Price is required and must be a number",
		},
		{
			name: "non-numeric price",
			body: `{"product_data":{"name":"Beans"},"store_info":{"place_id":"P1","store":"Hi-Lo"},"price":"250"}`,
			msg:  "Price is required and must be a number",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, router, http.MethodPost, "/products", tc.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			body := decodeBody(t, rr)
			require.Equal(t, tc.msg, body["message"])
		})
	}
}

func TestCreateProductFlow(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{}, "")

	payload := `{"product_data":{"name":"Grace Kidney Beans"},"store_info":{"place_id":"P1","store":"Hi-Lo"},"price":250,"currency":"JMD"}`
	rr := doJSON(t, router, http.MethodPost, "/products", payload)
	require.Equal(t, http.StatusCreated, rr.Code)
	first := decodeBody(t, rr)
	require.Equal(t, "Product created successfully", first["message"])
	productID := first["product_id"].(string)
	storeID := first["store_id"].(string)
	require.NotEmpty(t, productID)
	require.NotEmpty(t, storeID)

	// Same submission with a new price: same IDs, price row updated.
	payload = `{"product_data":{"name":"Grace Kidney Beans"},"store_info":{"place_id":"P1","store":"Hi-Lo"},"price":275,"currency":"JMD"}`
	rr = doJSON(t, router, http.MethodPost, "/products", payload)
	require.Equal(t, http.StatusCreated, rr.Code)
	second := decodeBody(t, rr)
	require.Equal(t, productID, second["product_id"])
	require.Equal(t, storeID, second["store_id"])

	rr = doJSON(t, router, http.MethodGet, "/products/"+productID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	product := decodeBody(t, rr)
	require.Equal(t, 275.0, product["estimated_price"])

	rr = doJSON(t, router, http.MethodGet, "/products/"+productID+"/prices", "")
	require.Equal(t, http.StatusOK, rr.Code)
	prices := decodeBody(t, rr)
	require.Equal(t, 1.0, prices["count"])
}

func TestGetProductPricesUnknownProduct(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{}, "")

	rr := doJSON(t, router, http.MethodGet, "/products/nope/prices", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAddProductPriceAndLowest(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{}, "")

	payload := `{"product_data":{"name":"Rice 2kg"},"store_info":{"place_id":"P1","store":"Hi-Lo"},"price":500}`
	rr := doJSON(t, router, http.MethodPost, "/products", payload)
	require.Equal(t, http.StatusCreated, rr.Code)
	productID := decodeBody(t, rr)["product_id"].(string)

	rr = doJSON(t, router, http.MethodPost, "/products/"+productID+"/prices",
		`{"store_info":{"place_id":"P2","name":"Shoppers Fair"},"price":480}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	price := decodeBody(t, rr)
	require.Equal(t, 480.0, price["amount"])
	require.Equal(t, "JMD", price["currency"])

	rr = doJSON(t, router, http.MethodGet, "/products/"+productID+"/lowest-price", "")
	require.Equal(t, http.StatusOK, rr.Code)
	lowest := decodeBody(t, rr)
	require.Equal(t, 480.0, lowest["amount"])

	rr = doJSON(t, router, http.MethodGet, "/stores/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decodeBody(t, rr)
	require.Len(t, summary["stores"], 2)
}

func TestDeviceEndpoints(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{}, "")

	rr := doJSON(t, router, http.MethodPost, "/devices", `{"device_id":"dev-1","platform":"ios"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/devices", `{"platform":"ios"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "device_id is required", decodeBody(t, rr)["message"])

	rr = doJSON(t, router, http.MethodPut, "/devices/dev-1/shopping-list", `{"shopping_list":["beans","rice"]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPut, "/devices/dev-1/shopping-list", `{"shopping_list":"beans"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/devices/dev-1/shopping-list", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, []any{"beans", "rice"}, body["shopping_list"])
}

func TestAPIKeyMiddleware(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{}, "secret")

	// Health is exempt.
	rr := doJSON(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "Missing or invalid API key", decodeBody(t, rr)["message"])

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
