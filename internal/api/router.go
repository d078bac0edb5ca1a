package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/ttsgateway/internal/api/handlers"
	"github.com/nikhilbhutani/ttsgateway/internal/api/middleware"
	"github.com/nikhilbhutani/ttsgateway/internal/cache"
	"github.com/nikhilbhutani/ttsgateway/internal/config"
	"github.com/nikhilbhutani/ttsgateway/internal/tts"
)

// Deps are the services behind the HTTP surface. Redis, Jobs and Queue are
// optional.
type Deps struct {
	TTS   handlers.Synthesizer
	Redis handlers.Pinger
	Jobs  *cache.JobStore
	Queue handlers.JobQueue
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
	rl   *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
		rl:   middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateBurst),
	}
}

// Close stops background work started by the router.
func (rt *Router) Close() {
	rt.rl.Stop()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))

	health := handlers.NewHealthHandler(rt.deps.Redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	ttsH := handlers.NewTTSHandler(rt.deps.TTS, func(provider string) tts.ProviderConfig {
		return tts.ConfigFor(rt.cfg.TTS, provider)
	}, rt.deps.Jobs, rt.deps.Queue)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.rl.Limit)

		r.Route("/tts", func(r chi.Router) {
			r.Post("/", ttsH.Speak)
			r.Get("/providers", ttsH.Providers)
			r.Post("/jobs", ttsH.CreateJob)
			r.Get("/jobs/{id}", ttsH.GetJob)
			r.Get("/jobs/{id}/audio", ttsH.JobAudio)
		})
	})

	return r
}
