// Package health provides liveness and readiness endpoints for the service.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// DBPinger checks database connectivity. database.DB satisfies it.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// Status represents a health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const checkTimeout = 5 * time.Second

// EnginePinger checks reachability of the workflow engine API.
type EnginePinger interface {
	Ping(ctx context.Context) error
}

// CheckResult is the result of a single dependency check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response is a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Checker runs dependency checks and serves the probe endpoints
type Checker struct {
	db        DBPinger
	redis     *redis.Client
	engine    EnginePinger
	startTime time.Time
	version   string
	mu        sync.RWMutex
	ready     bool
}

// NewChecker creates a new health checker. Any nil dependency is reported as
// degraded rather than unhealthy, so optional components don't fail readiness.
func NewChecker(db DBPinger, redisClient *redis.Client, engine EnginePinger, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redisClient,
		engine:    engine,
		startTime: time.Now(),
		version:   version,
	}
}

// SetReady marks the service as ready to receive traffic
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns whether the service is ready
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Register mounts the probe endpoints on the given group
func (c *Checker) Register(g *echo.Group) {
	g.GET("/health/live", c.LivenessHandler)
	g.GET("/health/ready", c.ReadinessHandler)
	g.GET("/health", c.HealthHandler)
}

// LivenessHandler reports whether the process is up
func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// ReadinessHandler reports whether the service can accept traffic
func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
			},
		})
	}
	return c.HealthHandler(ctx)
}

// HealthHandler runs all dependency checks and reports the aggregate status
func (c *Checker) HealthHandler(ctx echo.Context) error {
	checks := c.runChecks(ctx.Request().Context())
	overall := overallStatus(checks)

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return ctx.JSON(statusCode, Response{
		Status:     overall,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now(),
	})
}

func (c *Checker) runChecks(ctx context.Context) map[string]CheckResult {
	return map[string]CheckResult{
		"database": c.checkDatabase(ctx),
		"redis":    c.checkRedis(ctx),
		"engine":   c.checkEngine(ctx),
	}
}

func (c *Checker) checkDatabase(ctx context.Context) CheckResult {
	if c.db == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "database not configured"}
	}
	return timedCheck(ctx, c.db.PingContext)
}

// Redis only serves conversation memory seeding, so its loss degrades the
// service rather than taking it out of rotation.
func (c *Checker) checkRedis(ctx context.Context) CheckResult {
	if c.redis == nil {
		return CheckResult{Status: StatusDegraded, Message: "redis not configured"}
	}
	result := timedCheck(ctx, func(ctx context.Context) error {
		return c.redis.Ping(ctx).Err()
	})
	if result.Status == StatusUnhealthy {
		result.Status = StatusDegraded
	}
	return result
}

func (c *Checker) checkEngine(ctx context.Context) CheckResult {
	if c.engine == nil {
		return CheckResult{Status: StatusDegraded, Message: "engine not configured"}
	}
	return timedCheck(ctx, c.engine.Ping)
}

func timedCheck(ctx context.Context, fn func(context.Context) error) CheckResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
			Latency: time.Since(start).String(),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Latency: time.Since(start).String(),
	}
}

func overallStatus(checks map[string]CheckResult) Status {
	overall := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}
