package source

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/caddydash/lifecycle/internal/models"
)

// SQLSource reads the orders table from postgres or mysql/mariadb.
type SQLSource struct {
	db     *sql.DB
	driver string
}

// OpenSQL accepts postgres DSNs as-is and normalizes mariadb:// / mysql://
// URLs into the driver format.
func OpenSQL(driver, dsn string) (*SQLSource, error) {
	switch driver {
	case "postgres":
	case "mysql":
		var err error
		dsn, err = toMySQLDSN(dsn)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &SQLSource{db: db, driver: driver}, nil
}

func (s *SQLSource) Close() error { return s.db.Close() }

const orderColumns = `order_id, order_number, order_date, order_status,
	coupon_code, order_total, order_discount, order_refunded, order_tax,
	shipping_charge, customer_name, customer_email, payment_method,
	product_name, product_sku, product_unit_price, product_quantity`

func (s *SQLSource) All(ctx context.Context) ([]models.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders ORDER BY order_date`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *SQLSource) Between(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE order_date >= $1 AND order_date <= $2 ORDER BY order_date`
	if s.driver == "mysql" {
		q = strings.NewReplacer("$1", "?", "$2", "?").Replace(q)
	}
	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]models.Order, error) {
	var out []models.Order
	for rows.Next() {
		var o models.Order
		var coupon, name, email sql.NullString
		var total sql.NullFloat64
		if err := rows.Scan(
			&o.OrderID, &o.OrderNumber, &o.OrderDate, &o.OrderStatus,
			&coupon, &total, &o.OrderDiscount, &o.OrderRefunded, &o.OrderTax,
			&o.Shipping, &name, &email, &o.PaymentMethod,
			&o.ProductName, &o.ProductSKU, &o.UnitPrice, &o.Quantity,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.CouponCode = coupon.String
		o.CustomerName = name.String
		o.CustomerEmail = email.String
		if total.Valid {
			o.OrderTotal = total.Float64
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pw, _ := u.User.Password()
			pass = pw
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("dsn missing user/host/db")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC", user, pass, host, db), nil
	}
	return dsn, nil
}
