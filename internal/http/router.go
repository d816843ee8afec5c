package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

type Services struct {
	Carts        CartService
	Orders       OrderService
	Returns      ReturnService
	AdminOrders  AdminOrderService
	AdminReturns AdminReturnService
}

// NewRouter wires every route behind the shared middleware stack and wraps
// the result in an otelhttp handler.
func NewRouter(cfg RouterConfig, svc Services, m *metrics.Metrics, gatherer prometheus.Gatherer, log *slog.Logger) http.Handler {
	carts := NewCartHandler(svc.Carts, cfg.RequestTimeout, cfg.MaxRequestBodySize, log)
	orders := NewOrdersHandler(svc.Orders, svc.Returns, cfg.RequestTimeout, cfg.MaxRequestBodySize, log)
	admin := NewAdminHandler(svc.AdminOrders, svc.AdminReturns, cfg.RequestTimeout, cfg.MaxRequestBodySize, log)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(m.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(MockAuthMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", carts.GetCart)
				r.Delete("/", carts.ClearCart)
				r.Post("/items", carts.AddItem)
				r.Put("/items/{product_id}", carts.UpdateQuantity)
				r.Delete("/items/{product_id}", carts.RemoveItem)
			})

			r.Post("/checkout", orders.Checkout)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orders.ListOrders)
				r.Get("/{order_id}", orders.GetOrder)
				r.Post("/{order_id}/returns", orders.FileReturn)
			})

			r.Get("/returns", orders.ListReturns)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/orders", admin.ListOrders)
			r.Get("/orders/{order_id}", admin.GetOrder)
			r.Patch("/orders/{order_id}/status", admin.UpdateStatus)
			r.Patch("/orders/{order_id}/payment", admin.UpdatePayment)
			r.Post("/orders/{order_id}/restock", admin.Restock)
			r.Delete("/orders/{order_id}", admin.DeleteOrder)

			r.Get("/returns", admin.ListReturns)
			r.Patch("/returns/{return_id}/approve", admin.ApproveReturn)
			r.Patch("/returns/{return_id}/reject", admin.RejectReturn)

			r.Get("/reports", admin.Reports)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
