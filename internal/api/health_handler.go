package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/leadflow/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// EngineStatus is the view of the automation engine the health check needs.
type EngineStatus interface {
	IsHealthy() bool
	LastRunAt() time.Time
}

// HealthChecker reports the health of the database, Redis and the
// automation engine's due-timer loop.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	engine      EngineStatus
	// staleAfter marks the engine degraded when its last sweep is older.
	staleAfter time.Duration
	startTime  time.Time
}

// NewHealthChecker creates a new HealthChecker.
// Any dependency can be nil; the check will report "not configured" for nil deps.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		startTime:   time.Now(),
	}
}

// SetEngine adds the automation engine check. Sweeps older than staleAfter
// report degraded.
func (hc *HealthChecker) SetEngine(e EngineStatus, staleAfter time.Duration) {
	hc.engine = e
	hc.staleAfter = staleAfter
}

const healthVersion = "1.0.0"

// HandleHealth returns the health status of all components. The HTTP status
// is always 200; use /health/ready when a 503 is needed.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}

	httputil.JSON(w, httpStatus, map[string]any{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

type namedCheck struct {
	name string
	run  func(ctx context.Context) ComponentCheck
}

func (hc *HealthChecker) namedChecks() []namedCheck {
	return []namedCheck{
		{"database", hc.checkDatabase},
		{"redis", hc.checkRedis},
		{"engine", func(context.Context) ComponentCheck { return hc.checkEngine() }},
	}
}

// runAllChecks runs every check concurrently.
func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	all := hc.namedChecks()
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, len(all))
	for _, c := range all {
		go func(c namedCheck) { ch <- result{c.name, c.run(ctx)} }(c)
	}

	checks := make(map[string]ComponentCheck, len(all))
	for range all {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return notConfigured
	}
	return pingCheck(ctx, 3*time.Second, time.Second, hc.db.PingContext)
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return notConfigured
	}
	return pingCheck(ctx, 2*time.Second, 500*time.Millisecond, func(ctx context.Context) error {
		return hc.redisClient.Ping(ctx).Err()
	})
}

var notConfigured = ComponentCheck{Status: "down", Message: "not configured"}

// pingCheck times ping under timeout. Responses slower than slowAfter report
// degraded.
func pingCheck(ctx context.Context, timeout, slowAfter time.Duration, ping func(context.Context) error) ComponentCheck {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := ping(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > slowAfter {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// checkEngine reports whether the due-timer loop is running and sweeping.
func (hc *HealthChecker) checkEngine() ComponentCheck {
	if hc.engine == nil {
		return notConfigured
	}
	if !hc.engine.IsHealthy() {
		return ComponentCheck{Status: "down", Message: "last due sweep failed"}
	}
	last := hc.engine.LastRunAt()
	if last.IsZero() {
		return ComponentCheck{Status: "up", Message: "awaiting first sweep"}
	}
	age := time.Since(last)
	if hc.staleAfter > 0 && age > hc.staleAfter {
		return ComponentCheck{Status: "degraded", Message: fmt.Sprintf("last sweep %s ago", age.Round(time.Second))}
	}
	return ComponentCheck{Status: "up", Message: fmt.Sprintf("last sweep %s ago", age.Round(time.Second))}
}

// determineOverallStatus is "unhealthy" when a configured database is down,
// "degraded" when any configured check is down or slow, else "healthy".
// Rule evaluation needs the database; Redis and the timer only degrade it.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	failing := func(c ComponentCheck) bool { return c.Status == "down" && c != notConfigured }
	if db, ok := checks["database"]; ok && failing(db) {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "degraded" || failing(c) {
			return "degraded"
		}
	}
	return "healthy"
}

// formatUptime produces a human-readable uptime string like "3d 4h 12m 5s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
