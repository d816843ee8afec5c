package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the catalog-backed StockLedger.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const productColumns = `id, name, price, image_url, stock, minimum_stock_threshold, created_at`

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError("product", id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) GetProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	found := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		found[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	result := make([]domain.Product, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *SQLiteStore) Decrement(ctx context.Context, orderID string, items []domain.OrderItem) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO stock_movements (order_id, kind) VALUES (?, ?) ON CONFLICT(order_id) DO NOTHING`,
		orderID, movementDecrement)
	if err != nil {
		return false, fmt.Errorf("failed to record stock movement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	for _, item := range items {
		var stock sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, item.ProductID).Scan(&stock)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !stock.Valid) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to read stock for %s: %w", item.ProductID, err)
		}

		taken := min(int64(item.Qty), stock.Int64)
		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock - ? WHERE id = ?`, taken, item.ProductID); err != nil {
			return false, fmt.Errorf("failed to update stock for %s: %w", item.ProductID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_movement_items (order_id, product_id, qty) VALUES (?, ?, ?)
			ON CONFLICT(order_id, product_id) DO UPDATE SET qty = qty + excluded.qty`,
			orderID, item.ProductID, taken); err != nil {
			return false, fmt.Errorf("failed to record taken stock for %s: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit stock movement: %w", err)
	}
	return true, nil
}

// Restock puts back the quantities recorded by the order's decrement. An
// order with no movement yet gets a RESTOCK row so a late Decrement is
// skipped.
func (s *SQLiteStore) Restock(ctx context.Context, orderID string, _ []domain.OrderItem) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var kind movementKind
	err = tx.QueryRowContext(ctx, `SELECT kind FROM stock_movements WHERE order_id = ?`, orderID).Scan(&kind)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stock_movements (order_id, kind) VALUES (?, ?)`, orderID, movementRestock); err != nil {
			return false, fmt.Errorf("failed to record stock movement: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("failed to commit stock movement: %w", err)
		}
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to read stock movement: %w", err)
	case kind != movementDecrement:
		return false, nil
	}

	taken, err := takenItems(ctx, tx, orderID)
	if err != nil {
		return false, err
	}
	for _, item := range taken {
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock + ? WHERE id = ? AND stock IS NOT NULL`,
			item.Qty, item.ProductID); err != nil {
			return false, fmt.Errorf("failed to update stock for %s: %w", item.ProductID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE stock_movements SET kind = ?, updated_at = CURRENT_TIMESTAMP WHERE order_id = ?`,
		movementRestock, orderID); err != nil {
		return false, fmt.Errorf("failed to record stock movement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit stock movement: %w", err)
	}
	return true, nil
}

// takenItems is read fully before any update runs on the same connection.
func takenItems(ctx context.Context, tx *sql.Tx, orderID string) ([]domain.OrderItem, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, qty FROM stock_movement_items WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query taken stock: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Qty); err != nil {
			return nil, fmt.Errorf("failed to scan taken stock: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) SetProduct(ctx context.Context, p domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	var stock sql.NullInt64
	if p.Stock != nil {
		stock = sql.NullInt64{Int64: int64(*p.Stock), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			image_url = excluded.image_url,
			stock = excluded.stock,
			minimum_stock_threshold = excluded.minimum_stock_threshold`,
		p.ID, p.Name, p.Price, p.ImageURL, stock, p.Threshold(), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	var stock sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &stock, &p.MinimumStockThreshold, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	if stock.Valid {
		p.Stock = domain.TrackedStock(int(stock.Int64))
	}
	return p, nil
}
