package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus is the verdict of one dependency or of the whole service
type HealthStatus string

// Statuses ordered from best to worst
const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusHealthy:
		return 0
	case HealthStatusDegraded:
		return 1
	default:
		return 2
	}
}

// HealthCheck is the outcome of probing one dependency
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// HealthReport is served by the health endpoint
type HealthReport struct {
	Status    HealthStatus   `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Service   string         `json:"service"`
	Version   string         `json:"version"`
	Checks    []HealthCheck  `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// HealthChecker probes one dependency
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
}

type namedChecker struct {
	name    string
	checker HealthChecker
}

// HealthManager runs the registered checkers and folds them into a report.
// The worst check decides the service status.
type HealthManager struct {
	service string
	version string
	timeout time.Duration

	mu       sync.RWMutex
	checkers []namedChecker
}

// NewHealthManager creates a manager whose checks each get five seconds
func NewHealthManager(service, version string) *HealthManager {
	return &HealthManager{service: service, version: version, timeout: 5 * time.Second}
}

// RegisterChecker adds checker under name, replacing an earlier one
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	for i := range hm.checkers {
		if hm.checkers[i].name == name {
			hm.checkers[i].checker = checker
			return
		}
	}
	hm.checkers = append(hm.checkers, namedChecker{name: name, checker: checker})
	sort.Slice(hm.checkers, func(i, j int) bool { return hm.checkers[i].name < hm.checkers[j].name })
}

// CheckHealth probes every dependency in parallel. Checks are reported in
// name order.
func (hm *HealthManager) CheckHealth(ctx context.Context) *HealthReport {
	hm.mu.RLock()
	checkers := append([]namedChecker(nil), hm.checkers...)
	hm.mu.RUnlock()

	results := make([]HealthCheck, len(checkers))
	var wg sync.WaitGroup
	for i, nc := range checkers {
		wg.Add(1)
		go func(i int, nc namedChecker) {
			defer wg.Done()
			results[i] = hm.run(ctx, nc)
		}(i, nc)
	}
	wg.Wait()

	report := &HealthReport{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Service:   hm.service,
		Version:   hm.version,
		Checks:    results,
		Summary:   make(map[string]int),
	}
	for _, check := range results {
		report.Summary[string(check.Status)]++
		if check.Status.severity() > report.Status.severity() {
			report.Status = check.Status
		}
	}
	return report
}

func (hm *HealthManager) run(ctx context.Context, nc namedChecker) HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	started := time.Now()
	check := nc.checker.Check(ctx)
	check.Name = nc.name
	check.LastChecked = started
	check.Duration = time.Since(started)
	return check
}

// HTTPHandler serves the report. Only an unhealthy service answers 503.
func (hm *HealthManager) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hm.CheckHealth(r.Context())

		code := http.StatusOK
		if report.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// DatabaseHealthChecker pings the pool and reports its usage. A pool with
// every connection in use is degraded.
type DatabaseHealthChecker struct {
	db *sql.DB
}

// NewDatabaseHealthChecker creates a checker for db
func NewDatabaseHealthChecker(db *sql.DB) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{db: db}
}

// Check pings db
func (d *DatabaseHealthChecker) Check(ctx context.Context) HealthCheck {
	if err := d.db.PingContext(ctx); err != nil {
		return HealthCheck{Status: HealthStatusUnhealthy, Message: "ping failed: " + err.Error()}
	}

	stats := d.db.Stats()
	check := HealthCheck{
		Status:  HealthStatusHealthy,
		Message: "ok",
		Details: map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
			"wait_duration":    stats.WaitDuration.String(),
		},
	}
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		check.Status = HealthStatusDegraded
		check.Message = "all pool connections in use"
	}
	return check
}

// PingHealthChecker wraps a ping function. When the dependency is optional a
// failure degrades the service instead of failing it.
type PingHealthChecker struct {
	ping     func(ctx context.Context) error
	optional bool
}

// NewPingHealthChecker creates a checker around ping
func NewPingHealthChecker(ping func(ctx context.Context) error, optional bool) *PingHealthChecker {
	return &PingHealthChecker{ping: ping, optional: optional}
}

// Check calls the ping function
func (p *PingHealthChecker) Check(ctx context.Context) HealthCheck {
	err := p.ping(ctx)
	switch {
	case err == nil:
		return HealthCheck{Status: HealthStatusHealthy, Message: "ok"}
	case p.optional:
		return HealthCheck{Status: HealthStatusDegraded, Message: err.Error()}
	default:
		return HealthCheck{Status: HealthStatusUnhealthy, Message: err.Error()}
	}
}
