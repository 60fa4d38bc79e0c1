package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/mesapos/api/internal/config"
	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/handler"
	"github.com/mesapos/api/internal/invoice"
	mw "github.com/mesapos/api/internal/middleware"
	"github.com/mesapos/api/internal/service"
	"github.com/mesapos/api/internal/ws"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Tables    *service.TableService
	Inventory *service.InventoryService
	Staff     *service.StaffService
	Orders    *service.OrderService
	Sales     *service.SaleService

	Renderer *invoice.Renderer
	// Invoices may be nil when email delivery is not configured.
	Invoices service.InvoiceQueue
	// Media serves uploaded files; nil when blobs live elsewhere.
	Media http.Handler
	Hub   *ws.Hub
}

// New creates a Chi router with all application routes wired up.
// Applies authentication, branch scoping, and role-based middleware as needed.
func New(cfg *config.Config, d Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	authHandler := handler.NewAuthHandler(d.Staff, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", ws.ServeWS(d.Hub, cfg.JWTSecret))

	if d.Media != nil {
		prefix := mediaPrefix(cfg.BlobBaseURL)
		r.Handle(prefix+"/*", http.StripPrefix(prefix, d.Media))
	}

	loc := cfg.Location()

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleAdmin))
			r.Route("/staff", handler.NewStaffHandler(d.Staff).RegisterRoutes)
		})

		// Catalog reads are open to every role; writes gate themselves.
		handler.NewProductHandler(d.Inventory).RegisterRoutes(r)
		r.Route("/tables", handler.NewTableHandler(d.Tables).RegisterRoutes)
		r.Route("/orders", handler.NewOrderHandler(d.Orders).RegisterRoutes)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleSeller, enum.RoleAdmin))

			saleHandler := handler.NewSaleHandler(d.Sales, d.Renderer, d.Invoices, loc)
			r.Route("/checkouts", saleHandler.RegisterCheckoutRoutes)
			r.Route("/sales", saleHandler.RegisterRoutes)

			reportsHandler := handler.NewReportsHandler(d.Sales, loc)
			r.Route("/reports", reportsHandler.RegisterRoutes)
		})
	})

	log.Debug().Msg("router initialized with all handlers")
	return r
}

// mediaPrefix is the path uploaded files are served under. Absolute base
// URLs point at another host, so the local mount falls back to /media.
func mediaPrefix(baseURL string) string {
	if strings.HasPrefix(baseURL, "/") && len(baseURL) > 1 {
		return strings.TrimSuffix(baseURL, "/")
	}
	return "/media"
}
