package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
)

var (
	// ErrSessionNotPaid means the session exists but has not settled yet.
	// Callers must not create an order for it and must not retry as a failure.
	ErrSessionNotPaid = errors.New("checkout session not paid")
	// ErrInvalidDraft means the session lacks the required customer fields.
	ErrInvalidDraft = errors.New("invalid order draft")
)

const maxCommentsLen = 400

// ItemDraft is one purchased line, not yet persisted.
type ItemDraft struct {
	SourceID  string          `json:"source_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Draft is the normalized, in-memory order derived from a checkout session.
type Draft struct {
	SessionID         string
	CustomerName      string
	CustomerFirstName string
	CustomerLastName  string
	CustomerPhone     string // digits only, >= 10
	CustomerEmail     string
	Comments          string
	Subtotal          decimal.Decimal
	Tax               decimal.Decimal
	Tip               decimal.Decimal
	TipPercent        decimal.Decimal
	Total             decimal.Decimal
	Items             []ItemDraft
}

// metadata cart shape written by the storefront at checkout time
type metaCartAddon struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
}

type metaCartItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity"`
	Price    json.Number     `json:"price"`
	Addons   []metaCartAddon `json:"addons"`
}

// BuildDraft resolves a checkout session and normalizes it into a Draft.
// Returns ErrSessionNotPaid for sessions that have not settled, and
// ErrInvalidDraft when no customer name or a usable phone can be derived.
func BuildDraft(ctx context.Context, p Provider, sessionID string) (*Draft, error) {
	s, err := p.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		s.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotPaid, sessionID, s.PaymentStatus)
	}

	meta := s.Metadata
	if meta == nil {
		meta = map[string]string{}
	}

	name := strings.TrimSpace(meta["customer_name"])
	phoneRaw := meta["customer_phone"]
	email := meta["customer_email"]
	if s.CustomerDetails != nil {
		if name == "" {
			name = strings.TrimSpace(s.CustomerDetails.Name)
		}
		if phoneRaw == "" {
			phoneRaw = s.CustomerDetails.Phone
		}
		if email == "" {
			email = s.CustomerDetails.Email
		}
	}

	phone := NormalizePhone(phoneRaw)
	if name == "" {
		return nil, fmt.Errorf("%w: missing customer name", ErrInvalidDraft)
	}
	if len(phone) < 10 {
		return nil, fmt.Errorf("%w: phone %q normalizes to fewer than 10 digits", ErrInvalidDraft, phoneRaw)
	}

	comments := meta["comments"]
	if r := []rune(comments); len(r) > maxCommentsLen {
		comments = string(r[:maxCommentsLen])
	}

	tax := parseAmount(meta["tax"])
	tip := parseAmount(meta["tip"])
	tipPercent := parseAmount(meta["tip_percent"])

	total := decimal.NewFromInt(s.AmountTotal).Div(decimal.NewFromInt(100)).Round(2)
	subtotal := total.Sub(tax).Sub(tip).Round(2)

	items, ok := itemsFromMetadata(meta["items"])
	if !ok {
		// no structured cart on the session; reconstruct from the
		// provider's line items instead
		items, err = itemsFromLineItems(ctx, p, sessionID)
		if err != nil {
			return nil, err
		}
	}

	return &Draft{
		SessionID:         s.ID,
		CustomerName:      name,
		CustomerFirstName: strings.TrimSpace(meta["customer_first_name"]),
		CustomerLastName:  strings.TrimSpace(meta["customer_last_name"]),
		CustomerPhone:     phone,
		CustomerEmail:     email,
		Comments:          comments,
		Subtotal:          subtotal,
		Tax:               tax,
		Tip:               tip,
		TipPercent:        tipPercent,
		Total:             total,
		Items:             items,
	}, nil
}

// NormalizePhone strips everything but digits.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseAmount reads a decimal amount from metadata, clamping negatives and
// garbage to zero. Amounts in metadata are major units ("1.50").
func parseAmount(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

func itemsFromMetadata(raw string) ([]ItemDraft, bool) {
	if raw == "" {
		return nil, false
	}
	var cart []metaCartItem
	if err := json.Unmarshal([]byte(raw), &cart); err != nil || len(cart) == 0 {
		return nil, false
	}
	var items []ItemDraft
	for _, ci := range cart {
		qty := ci.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, ItemDraft{
			SourceID:  ci.ID,
			Name:      ci.Name,
			Quantity:  qty,
			UnitPrice: numberToDecimal(ci.Price),
		})
		for _, ad := range ci.Addons {
			items = append(items, ItemDraft{
				SourceID:  fmt.Sprintf("%s-addon-%s", ci.ID, ad.ID),
				Name:      "Addon: " + ad.Name,
				Quantity:  qty,
				UnitPrice: numberToDecimal(ad.Price),
			})
		}
	}
	return items, true
}

func itemsFromLineItems(ctx context.Context, p Provider, sessionID string) ([]ItemDraft, error) {
	lineItems, err := p.ListLineItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list line items for %s: %w", sessionID, err)
	}
	var items []ItemDraft
	for _, li := range lineItems {
		desc := li.Description
		lower := strings.ToLower(desc)
		// tax and tip travel as synthetic line items on the session;
		// their amounts already live on the draft totals
		if strings.Contains(lower, "sales tax") || strings.Contains(lower, "tip") {
			continue
		}
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		var unit decimal.Decimal
		if li.Price != nil {
			unit = decimal.NewFromInt(li.Price.UnitAmount).Div(decimal.NewFromInt(100)).Round(2)
		} else {
			unit = decimal.NewFromInt(li.AmountTotal).Div(decimal.NewFromInt(100 * qty)).Round(2)
		}
		items = append(items, ItemDraft{
			SourceID:  li.ID,
			Name:      desc,
			Quantity:  qty,
			UnitPrice: unit,
		})
	}
	return items, nil
}

func numberToDecimal(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}
