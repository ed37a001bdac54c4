package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lienzolab/storefront/internal/httpx/middlewares"
)

// RouterConfig carries the router-level knobs: browser origins for CORS and
// the rate limit applied to the payment endpoints.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(handler *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/cart", handler.CreateCart)
		r.Get("/cart/{id}", handler.GetCart)
		r.Put("/cart/{id}", handler.PutCart)
		r.Delete("/cart/{id}", handler.DeleteCart)

		r.Post("/checkout", handler.Checkout)

		// Payment endpoints get a per-IP rate limit: each call costs a
		// remote gateway round-trip.
		r.Group(func(r chi.Router) {
			r.Use(middlewares.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
			r.Post("/payments/transactions", handler.CreateTransaction)
			r.Post("/payments/commit", handler.CommitTransaction)
		})

		r.Get("/orders/{id}", handler.GetOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/orders", handler.ListOrders)
			r.Patch("/orders/{id}", handler.UpdateOrderStatus)
			r.Post("/orders/delete", handler.DeleteOrders)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
