package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/minimind-ai/minimind/internal/api/handlers"
	mw "github.com/minimind-ai/minimind/internal/api/middleware"
	"github.com/minimind-ai/minimind/internal/buildconfig"
	"github.com/minimind-ai/minimind/internal/config"
	"github.com/minimind-ai/minimind/internal/domain"
	"github.com/minimind-ai/minimind/internal/llm"
	"github.com/minimind-ai/minimind/internal/service"
	"github.com/minimind-ai/minimind/internal/store"
	"github.com/minimind-ai/minimind/internal/world"
)

// Deps carries the already-wired collaborators the API observes. The loops,
// scheduler and world are built in main because they reference each other;
// the router never constructs them.
type Deps struct {
	Registry  *service.Registry
	Scheduler *service.Scheduler
	World     *world.World
	Storage   domain.Storage
	Logger    *zap.Logger
}

// App holds the router and request metrics for lifecycle management.
type App struct {
	Router       *chi.Mux
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(deps Deps) *App {
	agentHandler := handlers.NewAgentHandler(deps.Registry)
	memoryHandler := handlers.NewMemoryHandler(deps.Registry)
	noteHandler := handlers.NewNoteHandler(deps.Registry)
	schedulerHandler := handlers.NewSchedulerHandler(deps.Scheduler)
	worldHandler := handlers.NewWorldHandler(deps.World)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		startTime: time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)                                                 // Generate/extract request ID first
	r.Use(middleware.RealIP)                                            // Extract real IP
	r.Use(metricsCollector.Middleware)                                  // Collect metrics
	r.Use(mw.Logging(deps.Logger))                                      // Log all requests
	r.Use(middleware.Recoverer)                                         // Recover from panics
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst())) // Rate limiting

	// Health (no auth)
	r.Get("/health", healthHandler(deps.Storage))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		// With no key configured the API is open, for local single-user runs.
		if key := config.APIKey(); key != "" {
			r.Use(mw.APIKeyAuth(key))
		}

		r.Get("/scheduler", schedulerHandler.Status)
		r.Get("/world", worldHandler.Rooms)

		// Agents
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", agentHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", agentHandler.Status)
				r.Get("/context", memoryHandler.GetContext)
				r.Get("/recall", memoryHandler.Recall)
				r.Post("/observe", memoryHandler.Observe)
				r.Post("/compact", memoryHandler.Compact)

				// Notes
				r.Route("/notes", func(r chi.Router) {
					r.Get("/", noteHandler.List)
					r.Post("/", noteHandler.Create)
					r.Get("/search", noteHandler.Search)
				})
			})
		})
	})

	return app
}

// NewRouter returns just the chi.Mux for callers that manage no lifecycle.
func NewRouter(deps Deps) *chi.Mux {
	return NewApp(deps).Router
}

func healthHandler(storage domain.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := storage.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.Storage         = (*store.SQLiteStore)(nil)
	_ domain.Storage         = (*store.PostgresStore)(nil)
	_ domain.InferenceClient = (*llm.OllamaClient)(nil)
	_ domain.InferenceClient = (*llm.OpenAIClient)(nil)
	_ domain.InferenceClient = (*llm.MockClient)(nil)
	_ domain.Summarizer      = (*service.SchedulerSummarizer)(nil)
)
