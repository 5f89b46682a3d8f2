package counter

import (
	"context"
	"strconv"

	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
)

const webhookOutcomesKey = "payment:counters:webhook_outcomes"

// AddWebhookOutcome increments the running counter for a webhook
// processing outcome, keyed by provider. Counting is best effort and
// a no-op without Redis; it must never influence the webhook response.
func AddWebhookOutcome(provider, outcome string) {
	client := cache.GetClient()
	if client == nil {
		return
	}
	field := provider + ":" + outcome
	client.HIncrBy(context.Background(), webhookOutcomesKey, field, 1)
}

// WebhookOutcomes returns all outcome counters as provider:outcome -> count.
func WebhookOutcomes() (map[string]int64, error) {
	client := cache.GetClient()
	if client == nil {
		return map[string]int64{}, nil
	}
	raw, err := client.HGetAll(context.Background(), webhookOutcomesKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}
