package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lromero-dev/takeout-orders/internal/checkout"
)

// DraftFunc produces the normalized draft for a session on demand. The
// creator only calls it after the existence check misses, so duplicate
// triggers never hit the payment provider twice.
type DraftFunc func(ctx context.Context) (*checkout.Draft, error)

type Service struct {
	store Store
	log   *slog.Logger
}

func NewService(store Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// Materialize turns a paid checkout session into a durable order exactly
// once. Both the provider webhook and the client's ensure call land here;
// the returned bool reports whether this invocation created the order.
//
// An unpaid session is a no-op success: (nil, nil, false, nil).
func (s *Service) Materialize(ctx context.Context, sessionID string, produce DraftFunc) (*Order, []Item, bool, error) {
	if sessionID == "" {
		return nil, nil, false, ErrInvalidSession
	}

	// primary idempotency guard
	existing, items, err := s.store.GetBySessionID(ctx, sessionID)
	if err == nil {
		return existing, items, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, nil, false, fmt.Errorf("check existing order: %w", err)
	}

	draft, err := produce(ctx)
	if err != nil {
		if errors.Is(err, checkout.ErrSessionNotPaid) {
			s.log.Info("session_not_paid", "session_id", sessionID)
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}

	num, err := nextOrderNumber(ctx, s.store)
	if err != nil {
		return nil, nil, false, fmt.Errorf("allocate order number: %w", err)
	}

	o := &Order{
		ID:                uuid.NewString(),
		SessionID:         sessionID,
		OrderNumber:       num,
		CustomerName:      draft.CustomerName,
		CustomerFirstName: draft.CustomerFirstName,
		CustomerLastName:  draft.CustomerLastName,
		CustomerPhone:     draft.CustomerPhone,
		CustomerEmail:     draft.CustomerEmail,
		Comments:          draft.Comments,
		Subtotal:          draft.Subtotal,
		Tax:               draft.Tax,
		Tip:               draft.Tip,
		TipPercent:        draft.TipPercent,
		Total:             draft.Total,
		Status:            StatusPending,
		CreatedAt:         time.Now().UTC(),
	}

	if err := s.store.InsertOrder(ctx, o); err != nil {
		// a concurrent trigger may have won the race between the existence
		// check and our insert; the unique index on session_id rejects the
		// loser, who must converge on the winner's row
		if won, wonItems, lookupErr := s.store.GetBySessionID(ctx, sessionID); lookupErr == nil {
			if isUniqueViolation(err) {
				s.log.Info("create_race_resolved", "session_id", sessionID, "order_id", won.ID)
			}
			return won, wonItems, false, nil
		}
		return nil, nil, false, fmt.Errorf("insert order: %w", err)
	}

	created := make([]Item, 0, len(draft.Items))
	for _, it := range draft.Items {
		created = append(created, Item{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			SourceID:  it.SourceID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	if len(created) > 0 {
		if err := s.store.InsertItems(ctx, created); err != nil {
			// the order row is the payment record; keep it and let the
			// items be backfilled rather than rolling anything back
			s.log.Error("order_items_insert_failed", "session_id", sessionID, "order_id", o.ID, "error", err)
			created = nil
		}
	}

	if full, fullItems, err := s.store.GetBySessionID(ctx, sessionID); err == nil {
		return full, fullItems, true, nil
	}
	return o, created, true, nil
}
