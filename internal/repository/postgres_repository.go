package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresRepository stores orders, return requests and the outbox.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials, log *slog.Logger) (*PostgresRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	log.Info("connected to postgres", "host", cred.Host, "db", cred.DBName)
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// withTx runs fn in a transaction and appends event to the outbox before commit.
func (r *PostgresRepository) withTx(ctx context.Context, event *OutboxEvent, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if event != nil {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
			event.ID, event.AggregateID, event.EventType, event.Payload, event.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, customer_name, customer_phone, customer_address, customer_pincode, customer_landmark,
	items, total_amount, payment_method, payment_status, order_status, tracking_events, version, created_at, updated_at`

func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.Order, event *OutboxEvent) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	trackingJSON, err := json.Marshal(order.TrackingEvents)
	if err != nil {
		return fmt.Errorf("failed to marshal tracking events: %w", err)
	}

	return r.withTx(ctx, event, func(tx *sql.Tx) error {
		query := `INSERT INTO orders (` + orderColumns + `)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

		_, insertErr := tx.ExecContext(ctx, query,
			order.ID,
			order.UserID,
			order.Customer.Name,
			order.Customer.Phone,
			order.Customer.Address,
			order.Customer.Pincode,
			order.Customer.Landmark,
			itemsJSON,
			order.TotalAmount,
			string(order.PaymentMethod),
			order.PaymentStatus,
			order.OrderStatus,
			trackingJSON,
			order.Version,
			order.CreatedAt,
			order.UpdatedAt)
		if insertErr != nil {
			return fmt.Errorf("insert order: %w", insertErr)
		}
		return nil
	})
}

func (r *PostgresRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError("order", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *PostgresRepository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PostgresRepository) ListOrdersByPhone(ctx context.Context, phone string) ([]*domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_phone = $1 ORDER BY created_at DESC`, phone)
}

func (r *PostgresRepository) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (r *PostgresRepository) listOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *PostgresRepository) UpdateOrder(ctx context.Context, order *domain.Order, event *OutboxEvent) error {
	trackingJSON, err := json.Marshal(order.TrackingEvents)
	if err != nil {
		return fmt.Errorf("failed to marshal tracking events: %w", err)
	}

	err = r.withTx(ctx, event, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET payment_status = $3, order_status = $4, tracking_events = $5, updated_at = $6, version = version + 1
			WHERE id = $1 AND version = $2`,
			order.ID, order.Version, order.PaymentStatus, order.OrderStatus, trackingJSON, order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 1 {
			return nil
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return domain.NotFoundError("order", order.ID.String())
		}
		return fmt.Errorf("%w: order %s", domain.ErrVersionConflict, order.ID)
	})
	if err != nil {
		return err
	}

	order.Version++
	return nil
}

func (r *PostgresRepository) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.NotFoundError("order", id.String())
	}
	return nil
}

func (r *PostgresRepository) UserReports(ctx context.Context) ([]domain.UserReport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*), COALESCE(SUM(total_amount), 0), MAX(created_at)
		FROM orders
		WHERE user_id <> ''
		GROUP BY user_id
		ORDER BY SUM(total_amount) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query user reports: %w", err)
	}
	defer rows.Close()

	reports := make([]domain.UserReport, 0)
	for rows.Next() {
		var rep domain.UserReport
		if err := rows.Scan(&rep.UserID, &rep.OrderCount, &rep.TotalAmount, &rep.LastOrderAt); err != nil {
			return nil, fmt.Errorf("scan user report: %w", err)
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return reports, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON, trackingJSON []byte
	var method string

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Customer.Name,
		&order.Customer.Phone,
		&order.Customer.Address,
		&order.Customer.Pincode,
		&order.Customer.Landmark,
		&itemsJSON,
		&order.TotalAmount,
		&method,
		&order.PaymentStatus,
		&order.OrderStatus,
		&trackingJSON,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.PaymentMethod = domain.PaymentMethod(method)

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(trackingJSON, &order.TrackingEvents); err != nil {
		return nil, fmt.Errorf("unmarshal tracking events: %w", err)
	}
	return &order, nil
}

const returnColumns = `id, order_id, user_id, items, reason, refund_amount, status, admin_notes, reviewed_by, reviewed_at, created_at`

func (r *PostgresRepository) CreateReturn(ctx context.Context, req *domain.ReturnRequest, event *OutboxEvent) error {
	itemsJSON, err := json.Marshal(req.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal return items: %w", err)
	}

	return r.withTx(ctx, event, func(tx *sql.Tx) error {
		_, insertErr := tx.ExecContext(ctx, `INSERT INTO return_requests (`+returnColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			req.ID, req.OrderID, req.UserID, itemsJSON, req.Reason, req.RefundAmount,
			req.Status, req.AdminNotes, req.ReviewedBy, req.ReviewedAt, req.CreatedAt)
		if insertErr != nil {
			var pqErr *pq.Error
			if errors.As(insertErr, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("%w: order %s", domain.ErrDuplicateReturn, req.OrderID)
			}
			return fmt.Errorf("insert return request: %w", insertErr)
		}
		return nil
	})
}

func (r *PostgresRepository) GetReturnByID(ctx context.Context, id uuid.UUID) (*domain.ReturnRequest, error) {
	return r.getReturn(ctx, `SELECT `+returnColumns+` FROM return_requests WHERE id = $1`, id, "return request")
}

func (r *PostgresRepository) GetReturnByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.ReturnRequest, error) {
	return r.getReturn(ctx, `SELECT `+returnColumns+` FROM return_requests WHERE order_id = $1`, orderID, "return request for order")
}

func (r *PostgresRepository) getReturn(ctx context.Context, query string, id uuid.UUID, entity string) (*domain.ReturnRequest, error) {
	req, err := scanReturn(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError(entity, id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("query return request: %w", err)
	}
	return req, nil
}

func (r *PostgresRepository) ListReturnsByUserID(ctx context.Context, userID string) ([]*domain.ReturnRequest, error) {
	return r.listReturns(ctx, `SELECT `+returnColumns+` FROM return_requests WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PostgresRepository) ListReturns(ctx context.Context, status *domain.ReturnStatus) ([]*domain.ReturnRequest, error) {
	if status == nil {
		return r.listReturns(ctx, `SELECT `+returnColumns+` FROM return_requests ORDER BY created_at DESC`)
	}
	return r.listReturns(ctx, `SELECT `+returnColumns+` FROM return_requests WHERE status = $1 ORDER BY created_at DESC`, *status)
}

func (r *PostgresRepository) listReturns(ctx context.Context, query string, args ...any) ([]*domain.ReturnRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query return requests: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.ReturnRequest, 0)
	for rows.Next() {
		req, err := scanReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ResolveReturn(ctx context.Context, req *domain.ReturnRequest, event *OutboxEvent) error {
	return r.withTx(ctx, event, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE return_requests
			SET status = $2, admin_notes = $3, reviewed_by = $4, reviewed_at = $5
			WHERE id = $1 AND status = 'PENDING'`,
			req.ID, req.Status, req.AdminNotes, req.ReviewedBy, req.ReviewedAt)
		if err != nil {
			return fmt.Errorf("update return request: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 1 {
			return nil
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM return_requests WHERE id = $1)`, req.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check return exists: %w", err)
		}
		if !exists {
			return domain.NotFoundError("return request", req.ID.String())
		}
		return fmt.Errorf("%w: return %s", domain.ErrAlreadyResolved, req.ID)
	})
}

func scanReturn(row rowScanner) (*domain.ReturnRequest, error) {
	var req domain.ReturnRequest
	var itemsJSON []byte
	var reviewedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.OrderID,
		&req.UserID,
		&itemsJSON,
		&req.Reason,
		&req.RefundAmount,
		&req.Status,
		&req.AdminNotes,
		&req.ReviewedBy,
		&reviewedAt,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		req.ReviewedAt = &t
	}
	if err := json.Unmarshal(itemsJSON, &req.Items); err != nil {
		return nil, fmt.Errorf("unmarshal return items: %w", err)
	}
	return &req, nil
}

func (r *PostgresRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		e := &OutboxEvent{}
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *PostgresRepository) MarkEventAsProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}
