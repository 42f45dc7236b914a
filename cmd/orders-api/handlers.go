package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/lromero-dev/takeout-orders/internal/checkout"
	"github.com/lromero-dev/takeout-orders/internal/order"
)

// ensureOrderRequest is the client's "make sure my order exists" payload,
// sent after the checkout redirect.
// swagger:model EnsureOrderRequest
type ensureOrderRequest struct {
	SessionID string `json:"session_id" example:"cs_test_a1b2c3"`
}

// updateStatusRequest payload for status transitions.
// swagger:model UpdateStatusRequest
type updateStatusRequest struct {
	Status string `json:"status" example:"preparing"`
}

// webhookHandler receives provider events. Signature verification comes
// before anything else; only checkout.session.completed materializes an
// order, every other event type is acknowledged untouched.
func webhookHandler(svc *order.Service, p checkout.Provider, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
			return
		}

		event, err := p.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			log.Error("webhook_signature_invalid", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}

		if event.Type != stripe.EventTypeCheckoutSessionCompleted {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil || sess.ID == "" {
			log.Error("webhook_payload_malformed", "event_id", event.ID, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event payload"})
			return
		}

		_, _, created, err := svc.Materialize(c.Request.Context(), sess.ID, func(ctx context.Context) (*checkout.Draft, error) {
			return checkout.BuildDraft(ctx, p, sess.ID)
		})
		if err != nil {
			if errors.Is(err, checkout.ErrInvalidDraft) {
				// redelivery cannot fix a session without customer data
				log.Error("webhook_draft_invalid", "session_id", sess.ID, "error", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session data"})
				return
			}
			log.Error("webhook_order_failed", "session_id", sess.ID, "error", err)
			// non-2xx so the provider redelivers the event
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order creation failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"received": true, "created": created})
	}
}

// ensureOrderHandler lets the redirected client force materialization
// without waiting for the webhook to land.
func ensureOrderHandler(svc *order.Service, p checkout.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ensureOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
			return
		}

		o, items, created, err := svc.Materialize(c.Request.Context(), req.SessionID, func(ctx context.Context) (*checkout.Draft, error) {
			return checkout.BuildDraft(ctx, p, req.SessionID)
		})
		if err != nil {
			if errors.Is(err, checkout.ErrInvalidDraft) || errors.Is(err, order.ErrInvalidSession) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order creation failed"})
			return
		}

		// order stays null while the session is unpaid; the client polls again
		c.JSON(http.StatusOK, gin.H{"order": o, "items": items, "created": created})
	}
}

func getOrderHandler(st order.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, items, err := st.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeLookupErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o, "items": items})
	}
}

func getOrderBySessionHandler(st order.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, items, err := st.GetBySessionID(c.Request.Context(), c.Param("session_id"))
		if err != nil {
			writeLookupErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o, "items": items})
	}
}

// lookupByPhoneHandler finds a customer's recent orders. Only the last 30
// days are searched.
func lookupByPhoneHandler(st order.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		digits := checkout.NormalizePhone(c.Param("phone"))
		if digits == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "phone must contain digits"})
			return
		}
		since := time.Now().UTC().AddDate(0, 0, -30)
		orders, err := st.FindByPhone(c.Request.Context(), digits, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		if orders == nil {
			orders = []order.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
	}
}

func updateOrderStatusHandler(st order.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil || !order.ValidStatus(req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of pending, preparing, ready, completed"})
			return
		}
		if err := st.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
			writeLookupErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
	}
}

func healthHandler(db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func writeLookupErr(c *gin.Context, err error) {
	if errors.Is(err, order.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
}
