package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"metrosched/internal/config"
	"metrosched/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	snapshots map[string]*model.Snapshot     // tenant -> fleet snapshot
	schedules map[string]map[string]model.Schedule // tenant -> date -> schedule
	dates     map[string][]string            // tenant -> dates in save order
	policies  map[string]config.Policy       // tenant -> override
	subs      map[string][]model.Subscription
	// Webhooks queue state
	deliveries         map[string]*memDelivery
	deliveriesByTenant map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		snapshots:          map[string]*model.Snapshot{},
		schedules:          map[string]map[string]model.Schedule{},
		dates:              map[string][]string{},
		policies:           map[string]config.Policy{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling state
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	DeliveredAt   *time.Time
}

// PutSnapshot installs the fleet snapshot served to a tenant. The server
// seeds a demo fleet at startup when no database is configured.
func (m *Memory) PutSnapshot(tenantID string, snap *model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[tenantID] = snap
}

func (m *Memory) LoadSnapshot(ctx context.Context, tenantID string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	// Callers may mutate what they get back (simulations), so hand out a copy.
	return snap.Clone(), nil
}

func (m *Memory) SaveSchedule(ctx context.Context, sched model.Schedule) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byDate := m.schedules[sched.TenantID]
	if byDate == nil {
		byDate = map[string]model.Schedule{}
		m.schedules[sched.TenantID] = byDate
	}
	_, overwrote := byDate[sched.TargetDate]
	byDate[sched.TargetDate] = sched
	if !overwrote {
		m.dates[sched.TenantID] = append(m.dates[sched.TenantID], sched.TargetDate)
	}
	return overwrote, nil
}

func (m *Memory) GetSchedule(ctx context.Context, tenantID, date string) (model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[tenantID][date]
	if !ok {
		return model.Schedule{}, ErrNotFound
	}
	return s, nil
}

// ListSchedules returns schedules ordered by target date ascending.
func (m *Memory) ListSchedules(ctx context.Context, tenantID string, limit int) ([]model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dates := append([]string(nil), m.dates[tenantID]...)
	sort.Strings(dates)
	if limit > 0 && len(dates) > limit {
		dates = dates[len(dates)-limit:]
	}
	out := make([]model.Schedule, 0, len(dates))
	for _, d := range dates {
		out = append(out, m.schedules[tenantID][d])
	}
	return out, nil
}

func (m *Memory) GetPolicy(ctx context.Context, tenantID string) (config.Policy, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[tenantID]
	return p, ok, nil
}

func (m *Memory) SavePolicy(ctx context.Context, tenantID string, p config.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[tenantID] = p
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID string, limit int) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]model.Subscription(nil), list...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	if len(out) == len(arr) {
		return ErrNotFound
	}
	m.subs[tenantID] = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.iterDeliveryIDs() {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(1 * time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
	}
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status string, limit int) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveriesByTenant[tenantID] {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
		if !d.NextAttemptAt.IsZero() {
			item["nextAttemptAt"] = d.NextAttemptAt
		}
		if d.LastError != "" {
			item["lastError"] = d.LastError
		}
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = "pending"
	d.NextAttemptAt = time.Now()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) iterDeliveryIDs() []string {
	ids := []string{}
	for _, lst := range m.deliveriesByTenant {
		ids = append(ids, lst...)
	}
	return ids
}
