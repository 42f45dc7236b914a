package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
)

type fakeProvider struct {
	session       *stripe.CheckoutSession
	sessionErr    error
	lineItems     []*stripe.LineItem
	lineItemsErr  error
	lineItemCalls int
}

func (f *fakeProvider) GetSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f.session, nil
}

func (f *fakeProvider) ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error) {
	f.lineItemCalls++
	if f.lineItemsErr != nil {
		return nil, f.lineItemsErr
	}
	return f.lineItems, nil
}

func (f *fakeProvider) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	return stripe.Event{}, nil
}

func paidSession(id string, amountCents int64, meta map[string]string) *stripe.CheckoutSession {
	return &stripe.CheckoutSession{
		ID:            id,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal:   amountCents,
		Metadata:      meta,
	}
}

func TestBuildDraft_FromMetadata(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{session: paidSession("sess_123", 2150, map[string]string{
		"customer_name":  "Jo Lee",
		"customer_phone": "555-111-2222",
		"tax":            "1.50",
	})}

	d, err := BuildDraft(context.Background(), p, "sess_123")
	if err != nil {
		t.Fatalf("BuildDraft: %v", err)
	}
	if d.CustomerName != "Jo Lee" {
		t.Errorf("name=%q", d.CustomerName)
	}
	if d.CustomerPhone != "5551112222" {
		t.Errorf("phone=%q", d.CustomerPhone)
	}
	if !d.Total.Equal(decimal.RequireFromString("21.50")) {
		t.Errorf("total=%s", d.Total)
	}
	if !d.Tax.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("tax=%s", d.Tax)
	}
	if !d.Subtotal.Equal(decimal.RequireFromString("20.00")) {
		t.Errorf("subtotal=%s", d.Subtotal)
	}
}

func TestBuildDraft_SubtotalProperty(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cents            int64
		tax, tip         string
		wantSubtotal     string
	}{
		{2150, "1.50", "", "20.00"},
		{5000, "3.33", "5.00", "41.67"},
		{1000, "", "", "10.00"},
		{999, "0.99", "1.01", "7.99"},
	}
	for _, tc := range cases {
		meta := map[string]string{
			"customer_name":  "Jo Lee",
			"customer_phone": "5551112222",
		}
		if tc.tax != "" {
			meta["tax"] = tc.tax
		}
		if tc.tip != "" {
			meta["tip"] = tc.tip
		}
		p := &fakeProvider{session: paidSession("sess_x", tc.cents, meta)}
		d, err := BuildDraft(context.Background(), p, "sess_x")
		if err != nil {
			t.Fatalf("cents=%d: %v", tc.cents, err)
		}
		if got := d.Total.Sub(d.Tax).Sub(d.Tip).Round(2); !d.Subtotal.Equal(got) {
			t.Errorf("cents=%d: subtotal=%s, total-tax-tip=%s", tc.cents, d.Subtotal, got)
		}
		if !d.Subtotal.Equal(decimal.RequireFromString(tc.wantSubtotal)) {
			t.Errorf("cents=%d: subtotal=%s, want %s", tc.cents, d.Subtotal, tc.wantSubtotal)
		}
	}
}

func TestBuildDraft_UnpaidSession(t *testing.T) {
	t.Parallel()

	s := paidSession("sess_unpaid", 2000, map[string]string{
		"customer_name":  "Jo Lee",
		"customer_phone": "5551112222",
	})
	s.PaymentStatus = stripe.CheckoutSessionPaymentStatusUnpaid

	_, err := BuildDraft(context.Background(), &fakeProvider{session: s}, "sess_unpaid")
	if !errors.Is(err, ErrSessionNotPaid) {
		t.Fatalf("err=%v, want ErrSessionNotPaid", err)
	}
}

func TestBuildDraft_NoPaymentRequired(t *testing.T) {
	t.Parallel()

	s := paidSession("sess_free", 0, map[string]string{
		"customer_name":  "Jo Lee",
		"customer_phone": "5551112222",
	})
	s.PaymentStatus = stripe.CheckoutSessionPaymentStatusNoPaymentRequired

	if _, err := BuildDraft(context.Background(), &fakeProvider{session: s}, "sess_free"); err != nil {
		t.Fatalf("no_payment_required should build a draft: %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"(555) 123-4567":  "5551234567",
		"+1 555 111 2222": "15551112222",
		"555.111.2222":    "5551112222",
		"abc":             "",
		"":                "",
	}
	for raw, want := range cases {
		if got := NormalizePhone(raw); got != want {
			t.Errorf("NormalizePhone(%q)=%q, want %q", raw, got, want)
		}
	}
}

func TestBuildDraft_RejectsShortPhone(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{session: paidSession("sess_short", 2000, map[string]string{
		"customer_name":  "Jo Lee",
		"customer_phone": "555-1234",
	})}
	_, err := BuildDraft(context.Background(), p, "sess_short")
	if !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("err=%v, want ErrInvalidDraft", err)
	}
}

func TestBuildDraft_RejectsMissingName(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{session: paidSession("sess_anon", 2000, map[string]string{
		"customer_phone": "5551112222",
	})}
	_, err := BuildDraft(context.Background(), p, "sess_anon")
	if !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("err=%v, want ErrInvalidDraft", err)
	}
}

func TestBuildDraft_CustomerDetailsFallback(t *testing.T) {
	t.Parallel()

	s := paidSession("sess_cd", 2000, nil)
	s.CustomerDetails = &stripe.CheckoutSessionCustomerDetails{
		Name:  "Ana Diaz",
		Phone: "+1 (555) 999-0000",
		Email: "ana@example.com",
	}

	d, err := BuildDraft(context.Background(), &fakeProvider{session: s}, "sess_cd")
	if err != nil {
		t.Fatalf("BuildDraft: %v", err)
	}
	if d.CustomerName != "Ana Diaz" || d.CustomerPhone != "15559990000" || d.CustomerEmail != "ana@example.com" {
		t.Errorf("draft=%+v", d)
	}
}

func TestBuildDraft_ItemsFromMetadataCart(t *testing.T) {
	t.Parallel()

	cart := `[{"id":"itm_1","name":"Carnitas Burrito","quantity":2,"price":10.50,
	           "addons":[{"id":"ad_1","name":"Extra Guac","price":1.75}]},
	          {"id":"itm_2","name":"Horchata","quantity":1,"price":3.25}]`
	p := &fakeProvider{session: paidSession("sess_cart", 2750, map[string]string{
		"customer_name":  "Jo Lee",
		"customer_phone": "5551112222",
		"items":          cart,
	})}

	d, err := BuildDraft(context.Background(), p, "sess_cart")
	if err != nil {
		t.Fatalf("BuildDraft: %v", err)
	}
	if len(d.Items) != 3 {
		t.Fatalf("items=%d, want 3 (2 mains + 1 addon)", len(d.Items))
	}
	addon := d.Items[1]
	if addon.SourceID != "itm_1-addon-ad_1" {
		t.Errorf("addon source id=%q", addon.SourceID)
	}
	if !strings.HasPrefix(addon.Name, "Addon: ") {
		t.Errorf("addon name=%q", addon.Name)
	}
	if addon.Quantity != 2 {
		t.Errorf("addon quantity=%d, want parent quantity 2", addon.Quantity)
	}
	if p.lineItemCalls != 0 {
		t.Errorf("line items listed %d times, metadata cart should win", p.lineItemCalls)
	}
}

func TestBuildDraft_LineItemFallbackExcludesTaxAndTip(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		session: paidSession("sess_li", 2750, map[string]string{
			"customer_name":  "Jo Lee",
			"customer_phone": "5551112222",
			"items":          "{not json",
		}),
		lineItems: []*stripe.LineItem{
			{ID: "li_1", Description: "Carnitas Burrito", Quantity: 2, Price: &stripe.Price{UnitAmount: 1050}},
			{ID: "li_2", Description: "Sales Tax", Quantity: 1, AmountTotal: 150},
			{ID: "li_3", Description: "Tip", Quantity: 1, AmountTotal: 300},
			{ID: "li_4", Description: "Horchata", Quantity: 1, AmountTotal: 325},
		},
	}

	d, err := BuildDraft(context.Background(), p, "sess_li")
	if err != nil {
		t.Fatalf("BuildDraft: %v", err)
	}
	if len(d.Items) != 2 {
		t.Fatalf("items=%d, want 2 (tax and tip rows excluded)", len(d.Items))
	}
	if !d.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.50")) {
		t.Errorf("unit price=%s", d.Items[0].UnitPrice)
	}
	if !d.Items[1].UnitPrice.Equal(decimal.RequireFromString("3.25")) {
		t.Errorf("unit price=%s (derived from amount total)", d.Items[1].UnitPrice)
	}
}

func TestBuildDraft_TruncatesComments(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 500)
	p := &fakeProvider{session: paidSession("sess_c", 2000, map[string]string{
		"customer_name":  "Jo Lee",
		"customer_phone": "5551112222",
		"comments":       long,
	})}

	d, err := BuildDraft(context.Background(), p, "sess_c")
	if err != nil {
		t.Fatalf("BuildDraft: %v", err)
	}
	if len(d.Comments) != 400 {
		t.Errorf("comments length=%d, want 400", len(d.Comments))
	}
}

func TestBuildDraft_ProviderFailurePropagates(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{sessionErr: fmt.Errorf("stripe: connection refused")}
	if _, err := BuildDraft(context.Background(), p, "sess_down"); err == nil {
		t.Fatal("expected error when the provider is unreachable")
	}
}
