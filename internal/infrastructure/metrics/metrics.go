// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts counts authentication attempts per protocol and outcome.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_auth_attempts_total",
		Help: "Authentication attempts by protocol and outcome.",
	}, []string{"protocol", "outcome"})

	// TokenRefreshes counts refresh attempts by terminal outcome.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_token_refreshes_total",
		Help: "Access token refresh attempts by outcome.",
	}, []string{"outcome"})

	// WebhookJobs counts dispatched webhook jobs by status.
	WebhookJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_webhook_jobs_total",
		Help: "Webhook jobs by dispatch status.",
	}, []string{"status"})

	// GraphQLRetries counts Admin API calls retried after a token refresh.
	GraphQLRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_graphql_auth_retries_total",
		Help: "GraphQL requests retried after an authentication failure.",
	})
)
