package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"metrosched/internal/config"
	"metrosched/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// LoadSnapshot assembles the fleet snapshot from the normalized tables. Each
// run reads a consistent view inside one repeatable-read transaction.
func (p *Postgres) LoadSnapshot(ctx context.Context, tenantID string) (*model.Snapshot, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	snap := &model.Snapshot{
		TakenAt:      time.Now().UTC(),
		Certificates: map[int][]model.FitnessCertificate{},
		JobCards:     map[int][]model.JobCard{},
		Branding:     map[int][]model.BrandingCampaign{},
		Mileage:      map[int]model.MileageRecord{},
		Cleaning:     map[int][]model.CleaningSlot{},
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, rake_number, coalesce(manufacturer,''), coalesce(model,''), coalesce(commissioned_year,0), depot, status, mileage_km, last_cleaned_at, branding_priority, bay_occupied FROM trainsets WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t model.Trainset
		var cleaned sql.NullTime
		if err := rows.Scan(&t.ID, &t.RakeNumber, &t.Manufacturer, &t.Model, &t.CommissionedYear, &t.Depot, &t.Status, &t.MileageKM, &cleaned, &t.BrandingPriority, &t.BayOccupied); err != nil {
			rows.Close()
			return nil, err
		}
		if cleaned.Valid {
			t.LastCleanedAt = cleaned.Time
		}
		snap.Trainsets = append(snap.Trainsets, t)
	}
	rows.Close()
	if len(snap.Trainsets) == 0 {
		return nil, ErrNotFound
	}

	rows, err = tx.QueryContext(ctx, `SELECT id, trainset_id, cert_type, valid_from, valid_to FROM fitness_certificates WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c model.FitnessCertificate
		if err := rows.Scan(&c.ID, &c.TrainsetID, &c.Type, &c.ValidFrom, &c.ValidTo); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Certificates[c.TrainsetID] = append(snap.Certificates[c.TrainsetID], c)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT id, trainset_id, coalesce(job_type,''), priority, coalesce(priority_num,0), status, due_date FROM job_cards WHERE tenant_id=$1 AND status <> 'closed'`, tenantID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var j model.JobCard
		var due sql.NullTime
		if err := rows.Scan(&j.ID, &j.TrainsetID, &j.Type, &j.Priority, &j.PriorityN, &j.Status, &due); err != nil {
			rows.Close()
			return nil, err
		}
		if due.Valid {
			j.DueDate = due.Time
		}
		snap.JobCards[j.TrainsetID] = append(snap.JobCards[j.TrainsetID], j)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT id, trainset_id, coalesce(advertiser,''), priority, target_hours, achieved_hours, starts_at, ends_at FROM branding_campaigns WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var b model.BrandingCampaign
		if err := rows.Scan(&b.ID, &b.TrainsetID, &b.Advertiser, &b.Priority, &b.TargetHours, &b.AchievedHours, &b.StartsAt, &b.EndsAt); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Branding[b.TrainsetID] = append(snap.Branding[b.TrainsetID], b)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT trainset_id, cumulative_km, brake_wear_pct, bogie_wear_pct, hvac_hours FROM mileage_records WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var m model.MileageRecord
		if err := rows.Scan(&m.TrainsetID, &m.CumulativeKM, &m.BrakeWearPct, &m.BogieWearPct, &m.HVACHours); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Mileage[m.TrainsetID] = m
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT id, trainset_id, status, starts_at, ends_at FROM cleaning_slots WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var s model.CleaningSlot
		if err := rows.Scan(&s.ID, &s.TrainsetID, &s.Status, &s.StartsAt, &s.EndsAt); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Cleaning[s.TrainsetID] = append(snap.Cleaning[s.TrainsetID], s)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT id, name, depot, position, occupied, shunting_cost, coalesce(trainset_id,0) FROM stabling_bays WHERE tenant_id=$1 ORDER BY position`, tenantID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var b model.StablingBay
		if err := rows.Scan(&b.ID, &b.Name, &b.Depot, &b.Position, &b.Occupied, &b.ShuntingCost, &b.TrainsetID); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Bays = append(snap.Bays, b)
	}
	rows.Close()

	return snap, tx.Commit()
}

// SaveSchedule upserts on (tenant_id, target_date). The unique constraint is
// what serializes concurrent saves for the same date; xmax reveals whether
// the insert turned into an update.
func (p *Postgres) SaveSchedule(ctx context.Context, sched model.Schedule) (bool, error) {
	payload, err := json.Marshal(sched)
	if err != nil {
		return false, err
	}
	var overwrote bool
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO schedules (id, tenant_id, target_date, status, strategy, solution_status, objective_value, coverage, payload, generated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (tenant_id, target_date) DO UPDATE SET
			id=EXCLUDED.id, status=EXCLUDED.status, strategy=EXCLUDED.strategy,
			solution_status=EXCLUDED.solution_status, objective_value=EXCLUDED.objective_value,
			coverage=EXCLUDED.coverage, payload=EXCLUDED.payload, generated_at=EXCLUDED.generated_at
		RETURNING (xmax <> 0)`,
		sched.ID, sched.TenantID, sched.TargetDate, sched.Status, sched.Strategy,
		sched.SolutionStatus, sched.ObjectiveValue, sched.Summary.Coverage, payload, sched.GeneratedAt,
	).Scan(&overwrote)
	return overwrote, err
}

func (p *Postgres) GetSchedule(ctx context.Context, tenantID, date string) (model.Schedule, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM schedules WHERE tenant_id=$1 AND target_date=$2`, tenantID, date).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schedule{}, ErrNotFound
	}
	if err != nil {
		return model.Schedule{}, err
	}
	var s model.Schedule
	if err := json.Unmarshal(payload, &s); err != nil {
		return model.Schedule{}, err
	}
	return s, nil
}

func (p *Postgres) ListSchedules(ctx context.Context, tenantID string, limit int) ([]model.Schedule, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT payload FROM (
			SELECT payload, target_date FROM schedules WHERE tenant_id=$1 ORDER BY target_date DESC LIMIT $2
		) recent ORDER BY target_date ASC`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Schedule{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var s model.Schedule
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetPolicy(ctx context.Context, tenantID string) (config.Policy, bool, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM scoring_policies WHERE tenant_id=$1`, tenantID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return config.Policy{}, false, nil
	}
	if err != nil {
		return config.Policy{}, false, err
	}
	var pol config.Policy
	if err := json.Unmarshal(payload, &pol); err != nil {
		return config.Policy{}, false, err
	}
	return pol, true, nil
}

func (p *Postgres) SavePolicy(ctx context.Context, tenantID string, pol config.Policy) error {
	payload, err := json.Marshal(pol)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO scoring_policies (tenant_id, payload, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (tenant_id) DO UPDATE SET payload=EXCLUDED.payload, updated_at=now()`, tenantID, payload)
	return err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	events, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.TenantID, s.URL, events, s.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, secret FROM subscriptions WHERE tenant_id=$1 AND events ? $2`, tenantID, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		s := model.Subscription{TenantID: tenantID}
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID string, limit int) ([]model.Subscription, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s := model.Subscription{TenantID: tenantID}
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FetchDueWebhookDeliveries claims a batch of due rows. The select and the
// lease bump run in one transaction: SKIP LOCKED keeps concurrent workers off
// the same rows while the claim is written, and pushing next_attempt_at out
// keeps the rows claimed after commit. A worker that dies mid-delivery just
// lets the lease lapse and the rows come due again.
func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 20
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id::text, tenant_id, subscription_id::text, event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries
		WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		ORDER BY next_attempt_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, d := range out {
		if _, err := tx.ExecContext(ctx,
			`UPDATE webhook_deliveries SET next_attempt_at = now() + interval '1 minute' WHERE id = $1::uuid`, d.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$2, delivered_at=now() WHERE id=$1`, id, responseCode)
		return err
	}
	next := time.Now().Add(1 * time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2, response_code=$3, next_attempt_at=$4 WHERE id=$1`,
		id, lastError, responseCode, next)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, response_code=$3 WHERE id=$1`, id, lastError, responseCode)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status string, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, status, attempts, url, last_error FROM webhook_deliveries WHERE tenant_id=$1 AND status=$2 ORDER BY created_at DESC LIMIT $3`, tenantID, status, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, status, attempts, url, last_error FROM webhook_deliveries WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var id, eventType, st, url string
		var attempts int
		var lastErr sql.NullString
		if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &lastErr); err != nil {
			return nil, err
		}
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if lastErr.Valid && lastErr.String != "" {
			item["lastError"] = lastErr.String
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
