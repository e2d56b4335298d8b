package router

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/casavoz/call-platform/internal/analysis"
	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/internal/http/handlers"
	httpmiddleware "github.com/casavoz/call-platform/internal/http/middleware"
	"github.com/casavoz/call-platform/internal/livecall"
	"github.com/casavoz/call-platform/internal/properties"
	"github.com/casavoz/call-platform/internal/recordings"
	"github.com/casavoz/call-platform/internal/reporting"
	"github.com/casavoz/call-platform/internal/stream"
	"github.com/casavoz/call-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger               *logging.Logger
	ConversationsHandler *conversations.Handler
	AnalysisHandler      *analysis.Handler
	ReportingHandler     *reporting.Handler
	PropertiesHandler    *properties.Handler
	StreamHandler        *stream.Handler
	RecordingsHandler    *recordings.Handler
	AdminAuthSecret      string
	MetricsHandler       http.Handler
	CORSAllowedOrigins   []string

	// Admin dashboard dependencies (optional)
	DB        *sql.DB
	LiveStore *livecall.Store
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (Twilio webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/healthz", healthz)
		public.Get("/readyz", readyz(cfg.DB))
		if cfg.StreamHandler != nil {
			public.Route("/voice", func(r chi.Router) {
				// Twilio can be configured with either method
				r.Get("/twiml", cfg.StreamHandler.Twiml)
				r.Post("/twiml", cfg.StreamHandler.Twiml)
				r.Get("/stream", cfg.StreamHandler.HandleStream)
				r.Post("/status", cfg.StreamHandler.Status)
			})
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Platform API
	r.Group(func(api chi.Router) {
		if cfg.ConversationsHandler != nil {
			api.Route("/conversations", func(r chi.Router) {
				r.Post("/", cfg.ConversationsHandler.Create)
				r.Get("/by-sid/{callSID}", cfg.ConversationsHandler.GetByCallSID)
				r.Route("/{conversationID}", func(r chi.Router) {
					r.Get("/", cfg.ConversationsHandler.Get)
					r.Delete("/", cfg.ConversationsHandler.Delete)
					r.Post("/finalize", cfg.ConversationsHandler.Finalize)
					r.Post("/messages", cfg.ConversationsHandler.AppendMessage)
					r.Get("/messages", cfg.ConversationsHandler.ListMessages)
					if cfg.AnalysisHandler != nil {
						r.Put("/analysis", cfg.AnalysisHandler.Upsert)
						r.Get("/analysis", cfg.AnalysisHandler.Get)
						r.Post("/analyze", cfg.AnalysisHandler.Enqueue)
					}
				})
			})
		}
		if cfg.AnalysisHandler != nil {
			api.Get("/analysis-jobs/{jobID}", cfg.AnalysisHandler.JobStatus)
		}
		if cfg.ReportingHandler != nil {
			api.Route("/reports", func(r chi.Router) {
				r.Get("/hot-leads", cfg.ReportingHandler.HotLeads)
				r.Get("/statistics", cfg.ReportingHandler.Statistics)
			})
		}
		if cfg.PropertiesHandler != nil {
			api.Route("/properties", func(r chi.Router) {
				r.Get("/", cfg.PropertiesHandler.List)
				r.Get("/search", cfg.PropertiesHandler.Search)
			})
		}
	})

	// Admin routes (protected by JWT)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.DB != nil {
				handlers.RegisterAdminRoutes(admin, cfg.DB, cfg.LiveStore, cfg.Logger)
			}
			if cfg.RecordingsHandler != nil {
				admin.Get("/recordings/{callSID}", cfg.RecordingsHandler.Get)
			}
		})
	}

	return r
}
