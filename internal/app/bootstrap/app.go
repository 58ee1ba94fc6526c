package bootstrap

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/paasforest/proconnect-access/internal/access"
	"github.com/paasforest/proconnect-access/internal/api/router"
	appconfig "github.com/paasforest/proconnect-access/internal/config"
	"github.com/paasforest/proconnect-access/internal/deposits"
	"github.com/paasforest/proconnect-access/internal/events"
	"github.com/paasforest/proconnect-access/internal/http/handlers"
	"github.com/paasforest/proconnect-access/internal/leads"
	"github.com/paasforest/proconnect-access/internal/notify"
	"github.com/paasforest/proconnect-access/internal/observability/metrics"
	"github.com/paasforest/proconnect-access/internal/premium"
	"github.com/paasforest/proconnect-access/internal/providers"
	"github.com/paasforest/proconnect-access/internal/reconciliation"
	"github.com/paasforest/proconnect-access/internal/storage"
	"github.com/paasforest/proconnect-access/internal/worker"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

// feedLookback is how far back the first bank feed poll reaches after start.
const feedLookback = 24 * time.Hour

// Deps are the external clients. Any of them may be nil; the matching
// feature then falls back to in-memory storage or is disabled.
type Deps struct {
	Pool     *pgxpool.Pool
	SQL      *sql.DB
	Redis    *redis.Client
	AWS      *aws.Config
	Registry *prometheus.Registry
}

// App is the wired service.
type App struct {
	Handler   http.Handler
	Scheduler *worker.Scheduler
	Deliverer *events.Deliverer
	Deposits  *deposits.Service
}

// OpenDatabases connects the pgx pool used by repositories and the
// database/sql handle used for reporting.
func OpenDatabases(ctx context.Context, url string) (*pgxpool.Pool, *sql.DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: sql open: %w", err)
	}
	db.SetMaxOpenConns(5)
	return pool, db, nil
}

// Build wires repositories, services, handlers and background jobs.
func Build(cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	var (
		leadRepo     leads.Repository
		providerRepo providers.Repository
		depositRepo  deposits.Repository
		txEvents     deposits.TxEventWriter
		processed    reconciliation.ProcessedStore
	)
	if deps.Pool != nil {
		leadRepo = leads.NewPostgresRepository(deps.Pool)
		providerRepo = providers.NewPostgresRepository(deps.Pool)
		pgDeposits := deposits.NewPostgresRepository(deps.Pool)
		depositRepo, txEvents = pgDeposits, pgDeposits
		processed = events.NewProcessedStore(deps.Pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		leadRepo = leads.NewInMemoryRepository()
		providerRepo = providers.NewInMemoryRepository()
		depositRepo = deposits.NewInMemoryRepository()
		processed = events.NewMemoryProcessedStore()
	}

	delivery := buildDelivery(cfg, deps.AWS, providerRepo, processed, logger)
	var (
		publisher events.Publisher
		deliverer *events.Deliverer
	)
	if deps.Pool != nil {
		outbox := events.NewOutboxStore(deps.Pool)
		publisher = outbox
		deliverer = events.NewDeliverer(outbox, delivery, logger).WithInterval(cfg.OutboxInterval)
	} else {
		publisher = events.NewInlinePublisher(delivery, logger)
	}

	pricing := access.Pricing{CreditPriceCents: int64(cfg.CreditPriceCents), CategorySurcharges: cfg.CategorySurcharges}
	accessSvc := access.NewService(leadRepo, providerRepo, pricing, logger).
		WithMetrics(metrics.NewAccessMetrics(reg))

	depositSvc := deposits.NewService(depositRepo, providerRepo, publisher, deposits.ServiceConfig{
		Prices: deposits.Prices{
			CreditCents:          int64(cfg.CreditPriceCents),
			PremiumMonthlyCents:  int64(cfg.PremiumMonthlyCents),
			PremiumLifetimeCents: int64(cfg.PremiumLifetimeCents),
		},
		Banking:       bankingDetails(cfg),
		Policy:        deposits.ParseActivationPolicy(cfg.ActivationPolicy),
		DefaultRegion: cfg.DefaultRegion,
	}, logger).
		WithMetrics(metrics.NewDepositMetrics(reg)).
		WithVelocity(deposits.NewVelocityChecker(deps.Redis, deposits.VelocityConfig{
			MaxPerWindow: cfg.DepositMaxPerWindow,
			Window:       time.Duration(cfg.DepositWindowHours) * time.Hour,
		}, logger))
	if txEvents != nil {
		depositSvc.WithTxEvents(txEvents)
	}
	if deps.AWS != nil {
		if proofs := storage.NewProofStore(s3.NewFromConfig(*deps.AWS, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		}), cfg.ProofBucket, logger); proofs != nil {
			depositSvc.WithPresigner(proofs.WithTTL(cfg.ProofURLTTL))
		}
	}

	processor := reconciliation.NewProcessor(depositSvc, processed, logger)

	var feed worker.FeedPoller
	if cfg.BankFeedURL != "" {
		feed = reconciliation.NewPoller(
			reconciliation.NewFeedClient(cfg.BankFeedURL, cfg.BankFeedToken),
			processor, time.Now().UTC().Add(-feedLookback), logger)
	}
	scheduler := worker.NewScheduler(feed, depositSvc, premium.NewActivator(providerRepo, logger), logger)
	if err := scheduler.Setup(worker.Schedules{
		Reconcile:   cfg.ReconcileSchedule,
		Repair:      cfg.RepairSchedule,
		PremiumTidy: cfg.ExpirySchedule,
	}); err != nil {
		return nil, err
	}

	var reporter handlers.DepositReporter
	if deps.SQL != nil {
		reporter = deposits.NewReporter(deps.SQL)
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		Leads:              handlers.NewLeadsHandler(accessSvc, logger),
		Deposits:           handlers.NewDepositsHandler(depositSvc, logger),
		AdminDeposits:      handlers.NewAdminDepositsHandler(depositSvc, reporter, logger),
		Profile:            handlers.NewProfileHandler(providerRepo, logger),
		BankWebhook:        http.HandlerFunc(reconciliation.NewWebhookHandler(cfg.BankWebhookSecret, processor, logger).Handle),
		Health:             healthHandler(deps),
		ProviderAuthSecret: cfg.ProviderJWTSecret,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	return &App{Handler: handler, Scheduler: scheduler, Deliverer: deliverer, Deposits: depositSvc}, nil
}

func bankingDetails(cfg *appconfig.Config) deposits.BankingDetails {
	return deposits.BankingDetails{
		BankName:      cfg.BankName,
		AccountNumber: cfg.BankAccountNumber,
		BranchCode:    cfg.BankBranchCode,
		AccountHolder: cfg.BankAccountHolder,
	}
}

// buildDelivery picks the email sender (SendGrid, then SES, then a logging
// stub) and adds the SQS forwarder when a queue is configured. Per-sink
// progress is kept in marks so outbox retries do not repeat emails.
func buildDelivery(cfg *appconfig.Config, awsCfg *aws.Config, lookup notify.ProviderLookup, marks notify.DeliveryMarks, logger *logging.Logger) events.DeliveryHandler {
	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		sender = sg
	} else if awsCfg != nil && cfg.SESFromEmail != "" {
		sender = notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	sinks := []notify.Sink{{Name: "email", Handler: notify.NewService(sender, lookup, notify.Config{
		OpsEmail: cfg.OpsEmail,
		Banking:  bankingDetails(cfg),
	}, logger)}}
	if awsCfg != nil && strings.TrimSpace(cfg.NotifyQueueURL) != "" {
		sinks = append(sinks, notify.Sink{Name: "sqs", Handler: notify.NewSQSForwarder(sqs.NewFromConfig(*awsCfg), cfg.NotifyQueueURL)})
	}
	return notify.NewFanout(marks, sinks...)
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		status := http.StatusOK
		if deps.Pool != nil {
			checks["postgres"] = "ok"
			if err := deps.Pool.Ping(ctx); err != nil {
				checks["postgres"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		if deps.Redis != nil {
			checks["redis"] = "ok"
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				// velocity checks fail open, so Redis does not gate readiness
				checks["redis"] = err.Error()
			}
		}
		body := map[string]any{"status": "ok", "checks": checks}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
