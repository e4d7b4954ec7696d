package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"metrosched/internal/analytics"
	"metrosched/internal/config"
	"metrosched/internal/model"
	"metrosched/internal/opt"
	"metrosched/internal/sim"
	"metrosched/internal/store"
	"metrosched/internal/webhooks"
)

// GenerateHandler handles POST /v1/schedules/generate
func (s *Server) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}
	if err := validateGenerateRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid generate request", err.Error(), r.URL.Path)
		return
	}

	snap, err := s.Store.LoadSnapshot(r.Context(), req.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "No fleet data", "no trainsets found for tenant", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Snapshot load failed", err.Error(), r.URL.Path)
		return
	}

	engine := opt.NewEngine(s.policyFor(r.Context(), req.TenantID), s.Log)
	sched, err := engine.Generate(r.Context(), snap, req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Schedule generation failed", err.Error(), r.URL.Path)
		return
	}

	overwrote, err := s.Store.SaveSchedule(r.Context(), sched)
	if err != nil {
		// The computed schedule is still good; hand it back with a warning
		// instead of throwing the solver's work away. No events are emitted
		// for a schedule that was never persisted.
		s.Log.WithError(err).WithField("date", sched.TargetDate).Error("schedule save failed")
		sched.Reasoning.Alerts = append(sched.Reasoning.Alerts,
			fmt.Sprintf("schedule could not be persisted (%v); regenerate to retry", err))
		writeJSON(w, http.StatusOK, sched)
		return
	}

	eventType := webhooks.EventScheduleGenerated
	if overwrote {
		eventType = webhooks.EventScheduleOverwritten
	}
	s.Pub.Emit(r.Context(), req.TenantID, eventType, map[string]any{
		"scheduleId": sched.ID,
		"date":       sched.TargetDate,
		"coverage":   sched.Summary.Coverage,
		"strategy":   sched.Strategy,
	})
	evt := SSEEvent{Type: eventType, Data: map[string]any{
		"scheduleId": sched.ID,
		"date":       sched.TargetDate,
		"coverage":   sched.Summary.Coverage,
		"inducted":   len(sched.InductionList),
	}}
	s.Broker.Publish(sched.TargetDate, evt)
	s.Broker.Publish("all", evt)

	status := http.StatusCreated
	if overwrote {
		status = http.StatusOK
	}
	writeJSON(w, status, sched)
}

// SchedulesHandler handles GET /v1/schedules
func (s *Server) SchedulesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListSchedules(r.Context(), tenant, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List schedules failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ScheduleByDateHandler handles GET /v1/schedules/{date} and
// GET /v1/schedules/{date}/stream (SSE).
func (s *Server) ScheduleByDateHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/schedules/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing date", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	date := parts[0]
	if len(parts) > 1 && parts[1] == "stream" {
		s.streamSchedule(w, r, date)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid date", "expected YYYY-MM-DD", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	sched, err := s.Store.GetSchedule(r.Context(), tenant, date)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Schedule not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get schedule failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) streamSchedule(w http.ResponseWriter, r *http.Request, date string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(date)
	defer s.Broker.Unsubscribe(date, ch)
	// initial heartbeat
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"date\":\"%s\",\"ts\":\"%s\"}\n\n", date, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"date\":\"%s\",\"ts\":\"%s\"}\n\n", date, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// SimulateHandler handles POST /v1/simulate
func (s *Server) SimulateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	if !s.simLimiter.Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "too many simulation requests", r.URL.Path)
		return
	}
	var body struct {
		Scenario    model.Scenario    `json:"scenario"`
		Constraints model.Constraints `json:"constraints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateScenario(&body.Scenario); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid scenario", err.Error(), r.URL.Path)
		return
	}
	if body.Constraints.RequiredTrainsets <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid constraints", "constraints.requiredTrainsets must be > 0", r.URL.Path)
		return
	}

	snap, err := s.Store.LoadSnapshot(r.Context(), p.Tenant)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "No fleet data", "no trainsets found for tenant", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Snapshot load failed", err.Error(), r.URL.Path)
		return
	}

	simulator := sim.New(opt.NewEngine(s.policyFor(r.Context(), p.Tenant), s.Log))
	res, err := simulator.Run(r.Context(), snap, body.Constraints, body.Scenario)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Simulation failed", err.Error(), r.URL.Path)
		return
	}
	s.Pub.Emit(r.Context(), p.Tenant, webhooks.EventSimulationCompleted, map[string]any{
		"scenarioId":    res.ScenarioID,
		"date":          body.Scenario.TargetDate,
		"impact":        res.Impact.PerformanceImpact,
		"coverageDelta": res.Impact.CoverageDelta,
	})
	writeJSON(w, http.StatusOK, res)
}

// ConstraintsValidateHandler handles POST /v1/constraints/validate
func (s *Server) ConstraintsValidateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var cons model.Constraints
	if err := json.NewDecoder(r.Body).Decode(&cons); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	fleetSize := 0
	if snap, err := s.Store.LoadSnapshot(r.Context(), tenant); err == nil {
		fleetSize = len(snap.Trainsets)
	}
	writeJSON(w, http.StatusOK, opt.ValidateConstraints(cons, fleetSize))
}

// AnalyticsPerformanceHandler handles GET /v1/analytics/performance
func (s *Server) AnalyticsPerformanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	scheds, err := s.Store.ListSchedules(r.Context(), tenant, 0)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Analytics failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Performance(scheds))
}

// AnalyticsTrainsetHandler handles GET /v1/analytics/trainsets/{id}
func (s *Server) AnalyticsTrainsetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/analytics/trainsets/")
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid trainset id", "", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	scheds, err := s.Store.ListSchedules(r.Context(), tenant, 0)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Analytics failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Trainset(id, scheds))
}

// PolicyHandler handles GET/PUT /v1/admin/policy
func (s *Server) PolicyHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"policy": s.policyFor(r.Context(), p.Tenant)})
	case http.MethodPut:
		var body struct {
			Policy *config.Policy `json:"policy"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Policy == nil {
			writeProblem(w, http.StatusBadRequest, "Missing policy", "", r.URL.Path)
			return
		}
		pol := *body.Policy
		if err := pol.Validate(); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid policy", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SavePolicy(r.Context(), p.Tenant, pol); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			_, req.TenantID = s.withTenant(r)
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		sub.Secret = ""
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, err := s.Store.ListSubscriptions(r.Context(), tenant, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" || r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	if err := s.Store.DeleteSubscription(r.Context(), tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := r.URL.Query().Get("status")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "retry" || r.Method != http.MethodPost {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, parts[0]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Delivery not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Retry failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// SolveMetricsHandler handles GET /v1/admin/solve-metrics?date=YYYY-MM-DD
func (s *Server) SolveMetricsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		writeProblem(w, http.StatusBadRequest, "Missing date", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": opt.GetSolveStats(p.Tenant, date)})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
