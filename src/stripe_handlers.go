package main

import (
	"ccr/src/payments"
	"ccr/src/types"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// translateStripeEvent maps a verified provider event onto the closed set
// the reconciler understands. Returns nil for event types the engine does
// not care about.
func translateStripeEvent(event *stripe.Event) *types.PaymentEvent {
	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			log.Printf("[Stripe] Error parsing CheckoutSession: %s\n", err.Error())
			return nil
		}
		pe := types.PaymentEvent{
			EventID:   event.ID,
			Type:      types.EVENT_CHECKOUT_COMPLETED,
			SessionID: cs.ID,
			Payload:   types.JSONB{"stripe_type": string(event.Type)},
		}
		if cs.PaymentIntent != nil {
			pe.PaymentIntentID = cs.PaymentIntent.ID
		}
		return &pe
	case "checkout.session.expired":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			log.Printf("[Stripe] Error parsing CheckoutSession: %s\n", err.Error())
			return nil
		}
		return &types.PaymentEvent{
			EventID:   event.ID,
			Type:      types.EVENT_CHECKOUT_EXPIRED,
			SessionID: cs.ID,
			Payload:   types.JSONB{"stripe_type": string(event.Type)},
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			log.Printf("[Stripe] Error parsing Charge: %s\n", err.Error())
			return nil
		}
		pe := types.PaymentEvent{
			EventID: event.ID,
			Type:    types.EVENT_REFUND_COMPLETED,
			Payload: types.JSONB{"stripe_type": string(event.Type)},
		}
		if ch.PaymentIntent != nil {
			pe.PaymentIntentID = ch.PaymentIntent.ID
		}
		return &pe
	}
	return nil
}

func stripeWebhookRoute(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		whsecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
		event, err := webhook.ConstructEvent(payload, ctx.GetHeader("Stripe-Signature"), whsecret)
		if err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[StripeEvent] %s\n", event.Type)
		pe := translateStripeEvent(&event)
		if pe == nil {
			ctx.Status(http.StatusOK)
			return
		}
		if err := payments.Apply(pe, time.Now().UTC()); err != nil {
			// Non-2xx makes the provider redeliver; the journal makes the
			// retry safe.
			log.Printf("Error applying event %s: %s\n", pe.EventID, err.Error())
			ctx.Status(http.StatusInternalServerError)
			return
		}
		ctx.Status(http.StatusOK)
	})
	return apiv1
}
