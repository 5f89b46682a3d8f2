package controllers

import (
	"context"
	"log"
	"time"

	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
	"github.com/ManuelReschke/PayFox/internal/pkg/reconcile"
	"github.com/gofiber/fiber/v2"
)

var (
	paymentProviders map[string]payment.Provider
	reconcileEngine  *reconcile.Engine
)

// InitializePaymentControllers builds the provider set once from
// configuration and wires the reconciliation engine. dedupeCache may be
// nil when Redis is unavailable.
func InitializePaymentControllers(cfg payment.Config, repos *repository.Repositories, dedupeCache reconcile.DedupeCache) {
	paymentProviders = make(map[string]payment.Provider)
	for _, id := range []string{"stripe", "wechat", "creem"} {
		p, err := payment.New(id, cfg)
		if err != nil {
			// Only reachable if the id list above drifts from the registry.
			panic(err)
		}
		paymentProviders[id] = p
	}
	reconcileEngine = reconcile.NewEngine(repos.Reconciliation, repos.Order, dedupeCache)
}

func paymentProvider(id string) (payment.Provider, bool) {
	p, ok := paymentProviders[id]
	return p, ok
}

// HandlePaymentWebhook is the single intake for provider webhooks. The
// body is passed on as raw bytes: signatures are byte-exact and any
// re-serialization before verification would be a correctness bug.
// Responses carry status codes only, never verification internals.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	prov, ok := paymentProvider(c.Params("provider"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_provider"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	event, err := prov.HandleWebhook(payment.WebhookRequest{Body: rawBody, Headers: headers})
	if err != nil {
		if payment.IsNonRetryable(err) {
			log.Printf("webhook %s rejected: %v", prov.ID(), err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_webhook"})
		}
		log.Printf("webhook %s verification error: %v", prov.ID(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res := reconcileEngine.ProcessEvent(ctx, event)
	counter.AddWebhookOutcome(prov.ID(), res.Outcome.String())
	switch res.Outcome {
	case reconcile.OutcomeApplied:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	case reconcile.OutcomeAlreadyApplied:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	case reconcile.OutcomeIgnored:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	case reconcile.OutcomeRejected:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "event_rejected"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}
}

// HandleWebhookStats reports per-provider webhook outcome counters.
func HandleWebhookStats(c *fiber.Ctx) error {
	outcomes, err := counter.WebhookOutcomes()
	if err != nil {
		log.Printf("webhook stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"outcomes": outcomes})
}
