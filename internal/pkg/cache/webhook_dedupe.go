package cache

import (
	"fmt"
	"log"
	"time"
)

// How long a settled dedupe key is remembered. Providers stop
// redelivering long before this; the database constraint remains the
// authority for anything older.
const webhookDedupeTTL = 72 * time.Hour

// WebhookDedupe is a best-effort, Redis-backed fast path in front of
// the database dedupe constraint. Cache failures are logged and
// swallowed: a miss only costs one no-op insert attempt.
type WebhookDedupe struct{}

// NewWebhookDedupe returns the shared Redis-backed dedupe fast path.
func NewWebhookDedupe() *WebhookDedupe {
	return &WebhookDedupe{}
}

func (d *WebhookDedupe) Seen(provider, key string) bool {
	client := GetClient()
	if client == nil {
		return false
	}
	n, err := client.Exists(ctx, dedupeKey(provider, key)).Result()
	if err != nil {
		log.Printf("webhook dedupe cache read failed: %v", err)
		return false
	}
	return n > 0
}

func (d *WebhookDedupe) MarkSeen(provider, key string) {
	client := GetClient()
	if client == nil {
		return
	}
	if err := client.Set(ctx, dedupeKey(provider, key), 1, webhookDedupeTTL).Err(); err != nil {
		log.Printf("webhook dedupe cache write failed: %v", err)
	}
}

func dedupeKey(provider, key string) string {
	return fmt.Sprintf("webhook:dedupe:%s:%s", provider, key)
}
