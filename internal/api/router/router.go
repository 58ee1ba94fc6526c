package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/paasforest/proconnect-access/internal/http/handlers"
	httpmiddleware "github.com/paasforest/proconnect-access/internal/http/middleware"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger        *logging.Logger
	Leads         *handlers.LeadsHandler
	Deposits      *handlers.DepositsHandler
	AdminDeposits *handlers.AdminDepositsHandler
	Profile       *handlers.ProfileHandler
	BankWebhook   http.Handler
	Health        http.HandlerFunc

	ProviderAuthSecret string
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	health := cfg.Health
	if health == nil {
		health = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.BankWebhook != nil {
			public.Post("/webhooks/bank", cfg.BankWebhook.ServeHTTP)
		}
	})

	// Provider endpoints
	r.Group(func(p chi.Router) {
		p.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		p.Use(httpmiddleware.ProviderJWT(cfg.ProviderAuthSecret))
		if cfg.Leads != nil {
			p.Route("/leads/{leadID}", func(r chi.Router) {
				r.Get("/", cfg.Leads.GetLead)
				r.Get("/visibility", cfg.Leads.GetVisibility)
				r.Post("/unlock", cfg.Leads.Unlock)
			})
		}
		if cfg.Profile != nil {
			p.Get("/provider/profile", cfg.Profile.GetProfile)
			p.Get("/provider/ledger", cfg.Profile.GetLedger)
		}
		if cfg.Deposits != nil {
			p.Post("/deposits", cfg.Deposits.CreateDeposit)
			p.Get("/deposits/{depositID}", cfg.Deposits.GetDeposit)
			p.Post("/deposits/{depositID}/proof", cfg.Deposits.RequestProofUpload)
			p.Get("/premium-status", cfg.Deposits.PremiumStatus)
		}
	})

	// Admin endpoints
	if cfg.AdminDeposits != nil {
		r.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/deposits/{depositID}/action", cfg.AdminDeposits.Action)
			admin.Post("/admin/providers/{providerID}/velocity/reset", cfg.AdminDeposits.ResetVelocity)
			admin.Route("/admin/deposits", func(r chi.Router) {
				r.Get("/", cfg.AdminDeposits.ListDeposits)
				r.Get("/stats", cfg.AdminDeposits.Stats)
				r.Get("/{depositID}", cfg.AdminDeposits.GetDeposit)
			})
		})
	}

	return r
}
