package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mahendraputra/storefront-backend/api/controllers"
	cartcontrollers "github.com/mahendraputra/storefront-backend/api/controllers/cart"
	"github.com/mahendraputra/storefront-backend/api/middleware"
	"github.com/mahendraputra/storefront-backend/pkg/config"
	"github.com/mahendraputra/storefront-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	engines cartcontrollers.EngineProvider,
	pingers map[string]controllers.Pinger,
	promRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/", cartcontrollers.Fetch(engines, logg))
		r.Delete("/", cartcontrollers.Clear(engines, logg))
		r.Post("/refresh", cartcontrollers.Refresh(engines, logg))

		r.Route("/items", func(r chi.Router) {
			r.Post("/", cartcontrollers.AddItem(engines, logg))
			r.Patch("/{key}", cartcontrollers.UpdateItem(engines, logg))
			r.Delete("/{key}", cartcontrollers.RemoveItem(engines, logg))
		})

		r.Post("/selection", cartcontrollers.Selection(engines, logg))
		r.Post("/voucher", cartcontrollers.ApplyVoucher(engines, logg))
		r.Delete("/voucher", cartcontrollers.RemoveVoucher(engines, logg))
	})

	return r
}
