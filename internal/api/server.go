package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"metrosched/internal/auth"
	"metrosched/internal/config"
	"metrosched/internal/store"
	"metrosched/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Policy config.Policy
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Log    *logrus.Logger

	// simLimiter throttles what-if runs; they are the most expensive calls.
	simLimiter *rate.Limiter
}

// NewServer creates a Server. If DATABASE_URL is unset, uses an in-memory
// store seeded with a demo fleet.
func NewServer(log *logrus.Logger) (*Server, error) {
	if log == nil {
		log = logrus.New()
	}
	pol, err := config.Load(os.Getenv("POLICY_FILE"))
	if err != nil {
		return nil, err
	}

	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		mem := store.NewMemory()
		size := 25
		if v := os.Getenv("FLEET_SIZE"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				size = n
			}
		}
		mem.PutSnapshot("t_demo", store.SeedFleet(size, time.Now().UTC()))
		log.WithField("fleet_size", size).Info("using in-memory store with seeded demo fleet")
		s = mem
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			log.WithError(err).Warn("redis broker init failed, using in-memory broker")
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	rps := 5.0
	burst := 10
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}

	return &Server{
		Store:      s,
		Policy:     pol,
		Pub:        webhooks.NewPublisher(s),
		Auth:       auth.NewVerifierFromEnv(),
		Broker:     broker,
		Log:        log,
		simLimiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// policyFor layers any persisted tenant override on top of the server policy.
func (s *Server) policyFor(ctx context.Context, tenant string) config.Policy {
	if p, ok, err := s.Store.GetPolicy(ctx, tenant); err == nil && ok {
		return p
	}
	return s.Policy
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
