package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caddydash/lifecycle/internal/models"
)

// HTTPClient is satisfied by *http.Client; tests inject fakes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource reads a ledger exposed as a JSON API.
type HTTPSource struct {
	c   HTTPClient
	url string
}

func NewHTTPSource(timeout time.Duration, ordersURL string) *HTTPSource {
	return &HTTPSource{c: &http.Client{Timeout: timeout}, url: ordersURL}
}

type orderResp []struct {
	OrderID       string  `json:"order_id"`
	OrderNumber   string  `json:"order_number"`
	OrderDate     string  `json:"order_date"`
	OrderStatus   string  `json:"order_status"`
	CouponCode    string  `json:"coupon_code"`
	OrderTotal    float64 `json:"order_total"`
	OrderDiscount float64 `json:"order_discount"`
	OrderRefunded float64 `json:"order_refunded"`
	OrderTax      float64 `json:"order_tax"`
	Shipping      float64 `json:"shipping_charge"`
	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email"`
	PaymentMethod string  `json:"payment_method"`
	ProductName   string  `json:"product_name"`
	ProductSKU    string  `json:"product_sku"`
	UnitPrice     float64 `json:"product_unit_price"`
	Quantity      int     `json:"product_quantity"`
}

func (s *HTTPSource) All(ctx context.Context) ([]models.Order, error) {
	return s.fetch(ctx, s.url)
}

func (s *HTTPSource) Between(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	u := s.url
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	u += sep + "from=" + url.QueryEscape(from.UTC().Format(time.RFC3339)) +
		"&to=" + url.QueryEscape(to.UTC().Format(time.RFC3339))
	return s.fetch(ctx, u)
}

func (s *HTTPSource) fetch(ctx context.Context, u string) ([]models.Order, error) {
	var resp orderResp
	if err := getJSONWithRetry(ctx, s.c, u, &resp); err != nil {
		return nil, err
	}
	out := make([]models.Order, 0, len(resp))
	for _, r := range resp {
		d, err := parseOrderDate(r.OrderDate)
		if err != nil {
			continue
		}
		out = append(out, models.Order{
			OrderID:       strings.TrimSpace(r.OrderID),
			OrderNumber:   strings.TrimSpace(r.OrderNumber),
			OrderDate:     d,
			OrderStatus:   r.OrderStatus,
			CouponCode:    r.CouponCode,
			OrderTotal:    r.OrderTotal,
			OrderDiscount: r.OrderDiscount,
			OrderRefunded: r.OrderRefunded,
			OrderTax:      r.OrderTax,
			Shipping:      r.Shipping,
			CustomerName:  strings.TrimSpace(r.CustomerName),
			CustomerEmail: strings.ToLower(strings.TrimSpace(r.CustomerEmail)),
			PaymentMethod: r.PaymentMethod,
			ProductName:   r.ProductName,
			ProductSKU:    r.ProductSKU,
			UnitPrice:     r.UnitPrice,
			Quantity:      r.Quantity,
		})
	}
	return out, nil
}

func parseOrderDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func getJSONWithRetry(ctx context.Context, c HTTPClient, u string, dst any) error {
	if u == "" {
		return errors.New("empty orders url")
	}
	var lastErr error
	for i := 0; i < 3; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := c.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			defer resp.Body.Close()
			return json.NewDecoder(resp.Body).Decode(dst)
		}
		if err != nil {
			lastErr = err
		} else {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			lastErr = fmt.Errorf("non-2xx: %d body=%s", resp.StatusCode, string(b))
		}
		// exponential backoff + jitter
		sleep := time.Duration((1<<i)*100) * time.Millisecond
		sleep += time.Duration(rand.Intn(150)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return lastErr
}
