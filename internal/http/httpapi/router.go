package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"server/internal/http/handlers"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/ratelimit"
)

// NewRouter wires the API surface. Only the generation-start routes sit
// behind the rate limiter; polling and finalize are not admission-limited.
func NewRouter(app *handlers.App, limiter ratelimit.Limiter, resolver geoip.CountryResolver, log zerolog.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(log),
		middleware.AdminAuth(app.Cfg.AdminAPIToken),
	)

	r.Get("/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/styles", app.Styles)
		r.Get("/job/{id}", app.JobStatus)
		r.Post("/likeness", app.Likeness)
		r.Post("/lock", app.Lock)
		r.Post("/upscale", app.Finalize)
		r.Get("/final/{id}", app.Final)
		r.Head("/final/{id}", app.Final)
		r.Post("/report-error", app.ReportError)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter, resolver, log))
			r.Post("/generate", app.Generate)
			r.Post("/regenerate", app.Regenerate)
		})
	})

	return r
}
