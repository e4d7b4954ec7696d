package store

import (
	"context"
	"errors"
	"time"

	"metrosched/internal/config"
	"metrosched/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Fleet snapshot
	LoadSnapshot(ctx context.Context, tenantID string) (*model.Snapshot, error)

	// Schedules. SaveSchedule replaces any previously persisted schedule for
	// the same (tenant, date) and reports whether one was overwritten.
	// Concurrent saves for the same date are serialized by the backend.
	SaveSchedule(ctx context.Context, sched model.Schedule) (overwrote bool, err error)
	GetSchedule(ctx context.Context, tenantID, date string) (model.Schedule, error)
	ListSchedules(ctx context.Context, tenantID string, limit int) ([]model.Schedule, error)

	// Scoring policy overrides per tenant
	GetPolicy(ctx context.Context, tenantID string) (config.Policy, bool, error)
	SavePolicy(ctx context.Context, tenantID string, p config.Policy) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID string, limit int) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status string, limit int) ([]map[string]any, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")
