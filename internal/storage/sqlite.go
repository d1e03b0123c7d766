package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kenmarshall/brite-shopping-api/internal/model"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore persists stores, products, prices and devices.
// Dedup correctness relies on the unique indexes created in migrate:
// writers that lose a race get a constraint violation and re-read.
type SQLiteStore struct {
	db      *sql.DB
	dataDir string
}

// NewSQLite opens (creating if needed) the database under dataDir and
// runs migrations.
func NewSQLite(dataDir string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataDir, "brite-shopping.db")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Open database with WAL mode and foreign keys enabled
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		dataDir: dataDir,
	}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate creates tables and indexes
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		place_id TEXT NOT NULL,
		name TEXT NOT NULL,
		address TEXT,
		latitude REAL,
		longitude REAL,
		website TEXT,
		online INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		match_key TEXT,
		estimated_price REAL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS prices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		amount REAL NOT NULL,
		currency TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (product_id) REFERENCES products(id),
		FOREIGN KEY (store_id) REFERENCES stores(id)
	);

	CREATE TABLE IF NOT EXISTS devices (
		device_id TEXT PRIMARY KEY,
		platform TEXT NOT NULL DEFAULT 'unknown',
		push_token TEXT,
		shopping_list TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_stores_place_id ON stores(place_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_name ON products(name);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_prices_product_store ON prices(product_id, store_id);
	CREATE INDEX IF NOT EXISTS idx_prices_product_id ON prices(product_id);
	CREATE INDEX IF NOT EXISTS idx_products_match_key ON products(match_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// IsUniqueViolation reports whether err is a unique-constraint failure,
// i.e. a concurrent writer already persisted the same key.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// ---- stores ----

// InsertStore persists a new store. Returns a unique-violation error if a
// store with the same place_id already exists.
func (s *SQLiteStore) InsertStore(ctx context.Context, store *model.Store) error {
	now := time.Now()
	store.CreatedAt = now
	store.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, place_id, name, address, latitude, longitude, website, online, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, store.ID, store.PlaceID, store.Name, nullString(store.Address),
		store.Latitude, store.Longitude, nullString(store.Website),
		boolToInt(store.Online), now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("insert store: %w", err)
	}
	return nil
}

// GetStoreByPlaceID returns the store with the given place identifier.
func (s *SQLiteStore) GetStoreByPlaceID(ctx context.Context, placeID string) (*model.Store, bool) {
	return s.getStore(ctx, "place_id", placeID)
}

// GetStore returns a store by ID.
func (s *SQLiteStore) GetStore(ctx context.Context, id string) (*model.Store, bool) {
	return s.getStore(ctx, "id", id)
}

func (s *SQLiteStore) getStore(ctx context.Context, column, value string) (*model.Store, bool) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, place_id, name, address, latitude, longitude, website, online, created_at, updated_at
		FROM stores WHERE `+column+` = ?
	`, value)

	store, err := scanStore(row)
	if err != nil {
		return nil, false
	}
	return store, true
}

// GetAllStores returns all stores, most recently updated first.
func (s *SQLiteStore) GetAllStores(ctx context.Context) []*model.Store {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, place_id, name, address, latitude, longitude, website, online, created_at, updated_at
		FROM stores
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return []*model.Store{}
	}
	defer rows.Close()

	var stores []*model.Store
	for rows.Next() {
		store, err := scanStore(rows)
		if err != nil {
			continue
		}
		stores = append(stores, store)
	}
	return stores
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStore(row rowScanner) (*model.Store, error) {
	st := &model.Store{}
	var created, updated int64
	var address, website sql.NullString
	var lat, lng sql.NullFloat64
	var online int

	err := row.Scan(&st.ID, &st.PlaceID, &st.Name, &address, &lat, &lng, &website, &online, &created, &updated)
	if err != nil {
		return nil, err
	}

	if address.Valid {
		st.Address = address.String
	}
	if website.Valid {
		st.Website = website.String
	}
	if lat.Valid {
		st.Latitude = &lat.Float64
	}
	if lng.Valid {
		st.Longitude = &lng.Float64
	}
	st.Online = online != 0
	st.CreatedAt = time.Unix(created, 0)
	st.UpdatedAt = time.Unix(updated, 0)
	return st, nil
}

// ---- products ----

// InsertProduct persists a new product. Returns a unique-violation error
// if a product with the same name already exists.
func (s *SQLiteStore) InsertProduct(ctx context.Context, p *model.Product) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, match_key, estimated_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, nullString(p.Description), nullString(p.MatchKey),
		p.EstimatedPrice, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetProductByName returns the product with the exact given name.
func (s *SQLiteStore) GetProductByName(ctx context.Context, name string) (*model.Product, bool) {
	return s.getProduct(ctx, "name", name)
}

// GetProduct returns a product by ID.
func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.Product, bool) {
	return s.getProduct(ctx, "id", id)
}

func (s *SQLiteStore) getProduct(ctx context.Context, column, value string) (*model.Product, bool) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, match_key, estimated_price, created_at, updated_at
		FROM products WHERE `+column+` = ?
	`, value)

	p, err := scanProduct(row)
	if err != nil {
		return nil, false
	}
	return p, true
}

// GetAllProducts returns all products, most recently updated first.
func (s *SQLiteStore) GetAllProducts(ctx context.Context) []*model.Product {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, match_key, estimated_price, created_at, updated_at
		FROM products
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return []*model.Product{}
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			continue
		}
		products = append(products, p)
	}
	return products
}

func scanProduct(row rowScanner) (*model.Product, error) {
	p := &model.Product{}
	var created, updated int64
	var description, matchKey sql.NullString
	var estimated sql.NullFloat64

	err := row.Scan(&p.ID, &p.Name, &description, &matchKey, &estimated, &created, &updated)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		p.Description = description.String
	}
	if matchKey.Valid {
		p.MatchKey = matchKey.String
	}
	if estimated.Valid {
		p.EstimatedPrice = &estimated.Float64
	}
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	return p, nil
}

// ---- prices ----

// UpsertPrice creates the (product, store) price row or overwrites its
// amount, currency and timestamp. Returns the persisted row.
func (s *SQLiteStore) UpsertPrice(ctx context.Context, productID, storeID string, amount float64, currency string) (*model.Price, error) {
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prices (product_id, store_id, amount, currency, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(product_id, store_id) DO UPDATE SET
			amount = excluded.amount,
			currency = excluded.currency,
			updated_at = excluded.updated_at
	`, productID, storeID, amount, currency, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("upsert price: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, store_id, amount, currency, updated_at
		FROM prices WHERE product_id = ? AND store_id = ?
	`, productID, storeID)

	p := &model.Price{}
	var updated int64
	if err := row.Scan(&p.ID, &p.ProductID, &p.StoreID, &p.Amount, &p.Currency, &updated); err != nil {
		return nil, fmt.Errorf("read back price: %w", err)
	}
	p.UpdatedAt = time.Unix(updated, 0)
	return p, nil
}

// GetPricesForProduct returns all price rows for a product enriched with
// store details, cheapest first.
func (s *SQLiteStore) GetPricesForProduct(ctx context.Context, productID string) []*model.Price {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.product_id, p.store_id, p.amount, p.currency, p.updated_at,
		       s.id, s.place_id, s.name, s.address, s.latitude, s.longitude, s.website, s.online, s.created_at, s.updated_at
		FROM prices p
		JOIN stores s ON s.id = p.store_id
		WHERE p.product_id = ?
		ORDER BY p.amount ASC
	`, productID)
	if err != nil {
		return []*model.Price{}
	}
	defer rows.Close()

	var prices []*model.Price
	for rows.Next() {
		p := &model.Price{Store: &model.Store{}}
		var priceUpdated, storeCreated, storeUpdated int64
		var address, website sql.NullString
		var lat, lng sql.NullFloat64
		var online int

		err := rows.Scan(
			&p.ID, &p.ProductID, &p.StoreID, &p.Amount, &p.Currency, &priceUpdated,
			&p.Store.ID, &p.Store.PlaceID, &p.Store.Name, &address, &lat, &lng, &website, &online, &storeCreated, &storeUpdated,
		)
		if err != nil {
			continue
		}

		if address.Valid {
			p.Store.Address = address.String
		}
		if website.Valid {
			p.Store.Website = website.String
		}
		if lat.Valid {
			p.Store.Latitude = &lat.Float64
		}
		if lng.Valid {
			p.Store.Longitude = &lng.Float64
		}
		p.Store.Online = online != 0
		p.UpdatedAt = time.Unix(priceUpdated, 0)
		p.Store.CreatedAt = time.Unix(storeCreated, 0)
		p.Store.UpdatedAt = time.Unix(storeUpdated, 0)
		prices = append(prices, p)
	}
	return prices
}

// GetLowestPrice returns the cheapest price row for a product.
func (s *SQLiteStore) GetLowestPrice(ctx context.Context, productID string) (*model.Price, bool) {
	prices := s.GetPricesForProduct(ctx, productID)
	if len(prices) == 0 {
		return nil, false
	}
	return prices[0], true
}

// RecomputeEstimatedPrice sets the product's estimated price to the mean
// of its current price rows, or NULL when none exist. Returns the new
// value. Safe to call repeatedly; last write wins.
func (s *SQLiteStore) RecomputeEstimatedPrice(ctx context.Context, productID string) (*float64, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE products SET
			estimated_price = (SELECT AVG(amount) FROM prices WHERE product_id = ?),
			updated_at = ?
		WHERE id = ?
	`, productID, time.Now().Unix(), productID)
	if err != nil {
		return nil, fmt.Errorf("recompute estimated price: %w", err)
	}

	var estimated sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `SELECT estimated_price FROM products WHERE id = ?`, productID).Scan(&estimated)
	if err != nil {
		return nil, fmt.Errorf("read back estimated price: %w", err)
	}
	if !estimated.Valid {
		return nil, nil
	}
	return &estimated.Float64, nil
}

// GetStoreProductCounts returns how many products each store carries a
// price for, busiest store first.
func (s *SQLiteStore) GetStoreProductCounts(ctx context.Context) []model.StoreProductCount {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, COUNT(p.product_id) AS product_count
		FROM stores s
		JOIN prices p ON p.store_id = s.id
		GROUP BY s.id, s.name
		ORDER BY product_count DESC
	`)
	if err != nil {
		return []model.StoreProductCount{}
	}
	defer rows.Close()

	var counts []model.StoreProductCount
	for rows.Next() {
		var c model.StoreProductCount
		if err := rows.Scan(&c.StoreID, &c.StoreName, &c.ProductCount); err != nil {
			continue
		}
		counts = append(counts, c)
	}
	return counts
}

// ---- devices ----

// UpsertDevice registers a device or refreshes its platform and push
// token, preserving the shopping list and created_at on update.
func (s *SQLiteStore) UpsertDevice(ctx context.Context, d *model.Device) (*model.Device, error) {
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, platform, push_token, shopping_list, created_at, updated_at)
		VALUES (?, ?, ?, '[]', ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			platform = excluded.platform,
			push_token = excluded.push_token,
			updated_at = excluded.updated_at
	`, d.DeviceID, d.Platform, nullString(d.PushToken), now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}

	return s.getDevice(ctx, d.DeviceID)
}

func (s *SQLiteStore) getDevice(ctx context.Context, deviceID string) (*model.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT device_id, platform, push_token, shopping_list, created_at, updated_at
		FROM devices WHERE device_id = ?
	`, deviceID)

	d := &model.Device{}
	var pushToken sql.NullString
	var listJSON string
	var created, updated int64
	if err := row.Scan(&d.DeviceID, &d.Platform, &pushToken, &listJSON, &created, &updated); err != nil {
		return nil, err
	}
	if pushToken.Valid {
		d.PushToken = pushToken.String
	}
	d.ShoppingList = []string{}
	_ = json.Unmarshal([]byte(listJSON), &d.ShoppingList)
	d.CreatedAt = time.Unix(created, 0)
	d.UpdatedAt = time.Unix(updated, 0)
	return d, nil
}

// GetShoppingList returns the shopping list for a device. An unknown
// device yields an empty list.
func (s *SQLiteStore) GetShoppingList(ctx context.Context, deviceID string) []string {
	d, err := s.getDevice(ctx, deviceID)
	if err != nil {
		return []string{}
	}
	return d.ShoppingList
}

// SetShoppingList overwrites the shopping list for a device, creating
// the device row if it does not exist yet.
func (s *SQLiteStore) SetShoppingList(ctx context.Context, deviceID string, list []string) error {
	listJSON, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal shopping list: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, shopping_list, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			shopping_list = excluded.shopping_list,
			updated_at = excluded.updated_at
	`, deviceID, string(listJSON), now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("set shopping list: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
