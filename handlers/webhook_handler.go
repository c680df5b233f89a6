package handlers

import (
	"context"
	"log"
	"time"

	config "github.com/edusoko/course_market/configs"
	"github.com/edusoko/course_market/settlement"
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v82/webhook"
)

var dispatcher *settlement.Dispatcher

// InitWebhookHandler installs the event dispatcher used by the webhook route.
func InitWebhookHandler(d *settlement.Dispatcher) {
	dispatcher = d
}

// HandleStripeWebhook verifies the gateway signature and acknowledges
// immediately; the event is processed asynchronously because the gateway's
// delivery timeout is short and its retry policy re-sends on any non-2xx.
func HandleStripeWebhook(c *fiber.Ctx) error {
	secret := config.Config("STRIPE_WEBHOOK_SECRET")
	sig := c.Get("Stripe-Signature")

	event, err := webhook.ConstructEventWithOptions(c.Body(), sig, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Printf("Webhook signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid webhook signature"})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := dispatcher.Dispatch(ctx, event); err != nil {
			// The 200 is already on the wire; this log line is the only
			// trace of a dropped settlement, so it must be loud.
			log.Printf("🔥 CRITICAL: webhook event %s (%s) failed after ack: %v", event.ID, event.Type, err)
		}
	}()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
