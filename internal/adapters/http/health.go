package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

const readyProbeTimeout = 3 * time.Second

var errNATSDisconnected = errors.New("disconnected")

// HealthHandler reports liveness plus the number of open capture sessions.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		open := 0
		if deps.Demarcations != nil {
			open = deps.Demarcations.Sessions()
		}
		return c.JSON(fiber.Map{
			"status":   "healthy",
			"uptime":   time.Since(startedAt).Round(time.Second).String(),
			"version":  "dev",
			"sessions": open,
		})
	}
}

// probe is one readiness dependency. A nil check means "not configured",
// which only fails readiness for required probes.
type probe struct {
	name     string
	required bool
	check    func(context.Context) error
}

func readinessProbes(deps *Dependencies) []probe {
	probes := []probe{{name: "database", required: true}, {name: "nats"}, {name: "cache"}}
	if deps.DB != nil {
		probes[0].check = deps.DB.Ping
	}
	if nc := deps.NATS; nc != nil {
		probes[1].check = func(context.Context) error {
			if !nc.IsConnected() {
				return errNATSDisconnected
			}
			return nil
		}
	}
	if deps.Cache != nil {
		probes[2].check = deps.Cache.Ping
	}
	return probes
}

// ReadyHandler pings the store, NATS and cache concurrently. Each probe
// shares one deadline so a hung dependency cannot stall the response.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyProbeTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			checks = make(map[string]string)
			ready  = true
		)
		record := func(p probe, err error) {
			mu.Lock()
			defer mu.Unlock()
			switch {
			case p.check == nil:
				checks[p.name] = "not configured"
				if p.required {
					ready = false
				}
			case errors.Is(err, errNATSDisconnected):
				checks[p.name] = err.Error()
				ready = false
			case err != nil:
				checks[p.name] = "error: " + err.Error()
				ready = false
			default:
				checks[p.name] = "ok"
			}
		}

		var g errgroup.Group
		for _, p := range readinessProbes(deps) {
			g.Go(func() error {
				var err error
				if p.check != nil {
					err = p.check(ctx)
				}
				record(p, err)
				return nil
			})
		}
		_ = g.Wait()

		status, code := "ready", fiber.StatusOK
		if !ready {
			status, code = "not ready", fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
