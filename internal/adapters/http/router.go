package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/agrodemarc/internal/pkg/metrics"
)

// requestTimeout bounds every /v1 call. Device point capture waits for a fix
// for at most the configured position timeout, which stays below this.
const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(TracingMiddleware(nil))
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Walking capture pushes a fix every few seconds per device, so the
	// budget is wider than a browse-only API needs.
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
	app.Use(DeprecationMiddleware(legacyRoutes))

	// Health & readiness, no timeout
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	with := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, requestTimeout) }

	// Capture sessions
	v1.Post("/sessions", with(StartSessionHandler(deps)))
	v1.Get("/sessions/:id", with(GetSessionHandler(deps)))
	v1.Delete("/sessions/:id", with(CloseSessionHandler(deps)))
	v1.Post("/sessions/:id/points", with(AddPointHandler(deps)))
	v1.Delete("/sessions/:id/points/last", with(RemoveLastPointHandler(deps)))
	v1.Delete("/sessions/:id/points", with(ClearPointsHandler(deps)))
	v1.Post("/sessions/:id/walking", with(ToggleWalkingHandler(deps)))
	v1.Put("/sessions/:id/mode", with(SetModeHandler(deps)))
	v1.Post("/sessions/:id/fixes", with(PushFixHandler(deps)))
	v1.Post("/sessions/:id/save", with(SaveSessionHandler(deps)))
	v1.Get("/sessions/:id/frame", with(FrameHandler(deps)))

	// Saved demarcations
	v1.Get("/demarcations", with(DemarcationsInBoundsHandler(deps)))
	v1.Get("/demarcations/:id", with(GetDemarcationHandler(deps)))
	v1.Get("/demarcations/:id/geojson", with(DemarcationGeoJSONHandler(deps)))
	v1.Get("/demarcations/:id/kml", with(DemarcationKMLHandler(deps)))
	v1.Delete("/demarcations/:id", with(DeleteDemarcationHandler(deps)))
	v1.Get("/producers/:id/demarcations", with(ProducerDemarcationsHandler(deps)))
	v1.Post("/measure", with(MeasureHandler(deps)))

	// Deprecated alias
	v1.Get("/areas/:id", with(GetDemarcationHandler(deps)))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, deps.DocsPath)

	// Live map frames need the event bus.
	if deps.NATS != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
	}
}
