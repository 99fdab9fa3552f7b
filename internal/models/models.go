package models

import "time"

// Order is one row of the external order ledger. The ledger is read-only to
// this service; customer_name is the join key across all analytics, email is
// informational only.
type Order struct {
	OrderID       string
	OrderNumber   string
	OrderDate     time.Time
	OrderStatus   string
	CouponCode    string
	OrderTotal    float64
	OrderDiscount float64
	OrderRefunded float64
	OrderTax      float64
	Shipping      float64
	CustomerName  string
	CustomerEmail string
	PaymentMethod string
	ProductName   string
	ProductSKU    string
	UnitPrice     float64
	Quantity      int

	// NormalizedTotal is the min-max scaled order total, filled in by the
	// ingest step. Zero for every row when all totals are equal.
	NormalizedTotal float64
}

// CustomerFeature is the per-customer RFM record. One per distinct customer
// name, rebuilt wholesale on every refresh.
type CustomerFeature struct {
	CustomerName         string
	CustomerEmail        string
	LastOrderDate        time.Time
	Frequency            int
	Monetary             float64
	Recency              float64 // fractional days vs. the reference instant
	AvgDaysBetweenOrders float64
}

// SegmentLabel holds the population-relative RFM scores and the rule-derived
// segment for one customer.
type SegmentLabel struct {
	R        int
	F        int
	M        int
	RFMScore string
	Segment  string
	Churned  bool // recency > churn threshold at refresh time
}

// Segment names, closed set. Rule priority is strict first-match.
const (
	SegmentLoyal   = "Loyal Customer"
	SegmentActive  = "Active Customer"
	SegmentAverage = "Average Customer"
	SegmentAtRisk  = "At Risk"
	SegmentNew     = "New Customer"
)

// CohortRow is one line of the cohort revenue matrix: slot 0 is the cohort
// size, slots 1..12 are summed revenue by month offset.
type CohortRow struct {
	Cohort       string    `json:"cohort"`
	RevenueRates []float64 `json:"revenue_rates"`
}

// CohortMetrics are the derived per-cohort economics.
type CohortMetrics struct {
	Cohort             string  `json:"cohort"`
	CohortSize         int     `json:"cohort_size"`
	PurchaseFrequency  float64 `json:"purchase_frequency"`
	AOV                float64 `json:"aov"`
	RevenuePerCustomer float64 `json:"revenue_per_customer"`
	LTV                float64 `json:"ltv"`
}

// CohortResult is the full cohort analysis output for one date window.
type CohortResult struct {
	Cohorts       []string            `json:"cohorts"`
	RevenueMatrix [][]float64         `json:"revenue_matrix"`
	MonthLabels   []string            `json:"month_labels"`
	Metrics       []CohortMetrics     `json:"cohort_metrics"`
	Customers     map[string][]string `json:"export_data"`
}

// LTVOverTime holds the cumulative revenue buckets measured from the
// customer's first order.
type LTVOverTime struct {
	Days30 float64 `json:"30_days"`
	Days90 float64 `json:"90_days"`
	Year1  float64 `json:"1_year"`
	Years2 float64 `json:"2_years"`
	Years5 float64 `json:"5_years"`
}

// CustomerProfile is the on-demand per-customer view.
type CustomerProfile struct {
	CustomerName         string      `json:"customer_name"`
	CustomerEmail        string      `json:"customer_email"`
	FirstOrderDate       string      `json:"first_order_date"`
	LastOrderDate        string      `json:"last_order_date"`
	LTV                  float64     `json:"ltv"`
	LifetimeMonths       float64     `json:"lifetime_months"`
	AvgDaysBetweenOrders float64     `json:"avg_days_between_orders"`
	EstNextOrderDate     string      `json:"est_next_order_date"`
	IsTop10LTV           bool        `json:"is_top_10_ltv"`
	IsTop10Lifetime      bool        `json:"is_top_10_lifetime"`
	LTVOverTime          LTVOverTime `json:"ltv_over_time"`
	Segment              string      `json:"rfm_segment"`
	ChurnRate            float64     `json:"churn_rate"` // percentage
}

// SegmentCount is one slice of the segment distribution.
type SegmentCount struct {
	Segment    string  `json:"segment"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}
