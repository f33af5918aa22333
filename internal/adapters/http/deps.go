package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/agrodemarc/internal/adapters/positioning"
	"github.com/samirrijal/agrodemarc/internal/adapters/render"
	"github.com/samirrijal/agrodemarc/internal/core/usecases"
)

// Pinger is a backing service the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Demarcations *usecases.DemarcationService
	Positions    *positioning.Hub
	Renderer     *render.MapRenderer
	NATS         *nats.Conn
	DB           Pinger
	Cache        Pinger
	// DocsPath is the OpenAPI document served at /docs/openapi.yaml.
	DocsPath string
}
