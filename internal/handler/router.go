package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Raymond9734/drip-campaign-engine/internal/metrics"
)

// Routes bundles the handlers mounted by NewRouter. Nil handlers leave
// their routes unmounted.
type Routes struct {
	Campaigns *CampaignHandler
	Segments  *SegmentHandler
	Customers *CustomerHandler
	Webhooks  *WebhookHandler
	Health    *HealthHandler

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	RequestTimeout time.Duration
	Logger         *slog.Logger

	// TwilioAuthToken turns on signature checks for the Twilio webhooks.
	// TwilioWebhookBaseURL is the public origin those webhooks are reached on.
	TwilioAuthToken      string
	TwilioWebhookBaseURL string
}

// NewRouter builds the API router
func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(routes.Logger))
	r.Use(LoggingMiddleware(routes.Logger))
	r.Use(CORSMiddleware)
	if routes.Metrics != nil {
		r.Use(routes.Metrics.Middleware)
	}
	if routes.RequestTimeout > 0 {
		r.Use(middleware.Timeout(routes.RequestTimeout))
	}

	if routes.Health != nil {
		r.Get("/health", routes.Health.Health)
	}
	if routes.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", routes.MetricsHandler)
	}

	if h := routes.Campaigns; h != nil {
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.CreateCampaign)
			r.Get("/", h.ListCampaigns)
			r.Get("/{id}", h.GetCampaign)
			r.Post("/{id}/activate", h.ActivateCampaign)
			r.Post("/{id}/pause", h.PauseCampaign)
			r.Post("/{id}/archive", h.ArchiveCampaign)
			r.Post("/{id}/process", h.ProcessCampaign)
			r.Post("/{id}/enroll", h.EnrollCustomers)
			r.Get("/{id}/runs", h.ListRuns)
			r.Get("/{id}/messages", h.ListMessages)
			r.Post("/{id}/personalized-preview", h.PreviewPersonalized)
		})
	}

	if h := routes.Segments; h != nil {
		r.Post("/segments/preview", h.PreviewSegment)
		r.Get("/catalog", h.Catalog)
	}

	if h := routes.Customers; h != nil {
		r.Get("/customers/{id}", h.GetCustomer)
		r.Post("/customers/{id}/opt-out", h.OptOut)
	}

	if h := routes.Webhooks; h != nil {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/delivery", h.Delivery)
			r.Post("/sendgrid-events", h.SendGridEvents)

			r.Group(func(r chi.Router) {
				if routes.TwilioAuthToken != "" {
					r.Use(TwilioSignatureMiddleware(routes.TwilioAuthToken, routes.TwilioWebhookBaseURL, routes.Logger))
				}
				r.Post("/sms-inbound", h.InboundSMS)
				r.Post("/twilio-status", h.TwilioStatus)
			})
		})
	}

	return r
}
