// Package api wires the HTTP handlers into the storefront router.
package api

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/api/handlers"
	"storefront/internal/auth"
	"storefront/internal/metrics"
	"storefront/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Deps struct {
	Products   repository.ProductRepository
	Categories repository.CategoryRepository
	Profiles   repository.ProfileRepository
	Carts      repository.CartRepository
	Orders     repository.OrderRepository
	Movements  repository.StockMovementRepository
	Dashboard  repository.DashboardRepository

	Checkout    handlers.OrderPlacer
	Auth        handlers.AuthService
	Verifier    *auth.Verifier
	Uploader    handlers.ImageUploader
	Invalidator handlers.StockInvalidator

	// Ping reports database health for /health.
	Ping func(ctx context.Context) error

	Metrics         *metrics.ServerMetrics
	Gatherer        prometheus.Gatherer
	Logger          *zap.Logger
	AuthRedirectURL string
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	products := handlers.NewProductHandler(d.Products, d.Categories, d.Movements, d.Uploader)
	categories := handlers.NewCategoryHandler(d.Categories, d.Uploader)
	carts := handlers.NewCartHandler(d.Carts)
	checkout := handlers.NewCheckoutHandler(d.Checkout)
	orders := handlers.NewOrderHandler(d.Orders, d.Movements, d.Invalidator)
	profiles := handlers.NewProfileHandler(d.Profiles)
	dashboard := handlers.NewDashboardHandler(d.Dashboard)
	authn := handlers.NewAuthHandler(d.Auth, d.Profiles, d.AuthRedirectURL, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.Get("/health", health(d.Ping))
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(handlers.Authenticate(d.Verifier))

		r.Get("/home", products.Home)
		r.Get("/categories", categories.List)
		r.Get("/products", products.List)
		r.Get("/products/{id}", products.GetByID)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authn.Login)
			r.Post("/signup", authn.Signup)
			r.Post("/logout", authn.Logout)
			r.Post("/forgot-password", authn.ForgotPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(handlers.RequireUser)

			r.Get("/profile", profiles.Get)
			r.Put("/profile", profiles.Update)

			r.Get("/cart", carts.List)
			r.Post("/cart", carts.Add)
			r.Patch("/cart/{lineID}", carts.Update)
			r.Delete("/cart/{lineID}", carts.Remove)

			r.Get("/checkout", checkout.Quote)
			r.Post("/checkout", checkout.PlaceOrder)

			r.Get("/orders", orders.ListMine)
			r.Get("/orders/{id}", orders.GetMine)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(handlers.RequireUser)
			r.Use(handlers.RequireAdmin(d.Profiles))

			r.Get("/dashboard", dashboard.Stats)

			r.Get("/products", products.AdminList)
			r.Post("/products", products.Create)
			r.Put("/products/{id}", products.Update)
			r.Delete("/products/{id}", products.Delete)
			r.Patch("/products/{id}/stock", products.AdjustStock)
			r.Get("/products/{id}/movements", products.Movements)

			r.Post("/categories", categories.Create)
			r.Put("/categories/{id}", categories.Update)
			r.Delete("/categories/{id}", categories.Delete)

			r.Get("/orders", orders.ListAll)
			r.Patch("/orders/{id}/status", orders.UpdateStatus)
			r.Get("/orders/{id}/movements", orders.Movements)

			r.Get("/users", profiles.ListUsers)
		})
	})

	return r
}

func health(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded","db":"down"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
