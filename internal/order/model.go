package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses, in lifecycle order.
const (
	StatusPending   = "pending"
	StatusPreparing = "preparing"
	StatusReady     = "ready"
	StatusCompleted = "completed"
)

var validStatuses = map[string]bool{
	StatusPending:   true,
	StatusPreparing: true,
	StatusReady:     true,
	StatusCompleted: true,
}

func ValidStatus(s string) bool { return validStatuses[s] }

type Order struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	// OrderNumber is nil when the numbering column is absent from the
	// deployed schema; a missing number is a valid state, not an error.
	OrderNumber       *int64          `json:"order_number"`
	CustomerName      string          `json:"customer_name"`
	CustomerFirstName string          `json:"customer_first_name,omitempty"`
	CustomerLastName  string          `json:"customer_last_name,omitempty"`
	CustomerPhone     string          `json:"customer_phone"`
	CustomerEmail     string          `json:"customer_email,omitempty"`
	Comments          string          `json:"comments,omitempty"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Tax               decimal.Decimal `json:"tax"`
	Tip               decimal.Decimal `json:"tip"`
	TipPercent        decimal.Decimal `json:"tip_percent"`
	Total             decimal.Decimal `json:"total"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

type Item struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	// UnitPrice is stored as NUMERIC in Postgres
	UnitPrice decimal.Decimal `json:"unit_price"`
}
