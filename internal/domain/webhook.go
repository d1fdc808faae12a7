package domain

import (
	"encoding/json"
	"time"
)

// WebhookTopicAppUninstalled is handled specially throughout: the webhook
// orchestrator forwards it unauthenticated because the shop may already be
// mid-deletion.
const WebhookTopicAppUninstalled = "app/uninstalled"

// GDPR mandatory webhook topics.
const (
	WebhookTopicCustomersDataRequest = "customers/data_request"
	WebhookTopicCustomersRedact      = "customers/redact"
	WebhookTopicShopRedact           = "shop/redact"
)

// WebhookJob is the unit of async work submitted to the job queue when a
// verified webhook is dispatched.
type WebhookJob struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	ShopDomain string          `json:"shop_domain"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
