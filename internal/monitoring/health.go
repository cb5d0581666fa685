// Package monitoring runs the health checks behind the preview server's
// /health endpoint.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/postcard/internal/catalog"
	"github.com/conneroisu/postcard/internal/logging"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Critical    bool                   `json:"critical"`
}

// HealthChecker defines the interface for health check functions
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
	Name() string
	IsCritical() bool
}

// HealthCheckFunc is a function that implements HealthChecker
type HealthCheckFunc struct {
	name     string
	checkFn  func(ctx context.Context) HealthCheck
	critical bool
}

// Check executes the health check function
func (h *HealthCheckFunc) Check(ctx context.Context) HealthCheck {
	return h.checkFn(ctx)
}

// Name returns the health check name
func (h *HealthCheckFunc) Name() string {
	return h.name
}

// IsCritical returns whether this check is critical
func (h *HealthCheckFunc) IsCritical() bool {
	return h.critical
}

// NewHealthCheckFunc creates a new health check function
func NewHealthCheckFunc(
	name string,
	critical bool,
	checkFn func(ctx context.Context) HealthCheck,
) *HealthCheckFunc {
	return &HealthCheckFunc{
		name:     name,
		checkFn:  checkFn,
		critical: critical,
	}
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status      HealthStatus           `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Version     string                 `json:"version,omitempty"`
	Uptime      time.Duration          `json:"uptime"`
	Checks      map[string]HealthCheck `json:"checks"`
	Summary     HealthSummary          `json:"summary"`
	SystemInfo  SystemInfo             `json:"system_info"`
	Environment string                 `json:"environment,omitempty"`
}

// HealthSummary provides a summary of health check results
type HealthSummary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
	Degraded  int `json:"degraded"`
	Unknown   int `json:"unknown"`
	Critical  int `json:"critical"`
}

// SystemInfo provides system information
type SystemInfo struct {
	Hostname  string    `json:"hostname"`
	Platform  string    `json:"platform"`
	GoVersion string    `json:"go_version"`
	StartTime time.Time `json:"start_time"`
	PID       int       `json:"pid"`
}

// HealthMonitor runs registered checks on demand. Nothing is cached, so a
// response always reflects the disk at request time.
type HealthMonitor struct {
	checks      map[string]HealthChecker
	mutex       sync.RWMutex
	logger      logging.Logger
	timeout     time.Duration
	version     string
	environment string
	started     time.Time
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(version, environment string, logger logging.Logger) *HealthMonitor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &HealthMonitor{
		checks:      make(map[string]HealthChecker),
		logger:      logger.WithComponent("health_monitor"),
		timeout:     5 * time.Second,
		version:     version,
		environment: environment,
		started:     time.Now(),
	}
}

// RegisterCheck registers a health check
func (hm *HealthMonitor) RegisterCheck(checker HealthChecker) {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()
	hm.checks[checker.Name()] = checker
}

// GetHealth runs every check concurrently and aggregates the results.
func (hm *HealthMonitor) GetHealth(ctx context.Context) HealthResponse {
	hm.mutex.RLock()
	checkers := make([]HealthChecker, 0, len(hm.checks))
	for _, c := range hm.checks {
		checkers = append(checkers, c)
	}
	hm.mutex.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	results := make(map[string]HealthCheck, len(checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, checker := range checkers {
		wg.Add(1)
		go func(checker HealthChecker) {
			defer wg.Done()
			result := checker.Check(ctx)
			result.Name = checker.Name()
			result.Critical = checker.IsCritical()
			if result.Status != HealthStatusHealthy {
				hm.logger.Warn(ctx, nil, "Health check not healthy",
					"check", result.Name, "status", string(result.Status), "message", result.Message)
			}
			mu.Lock()
			results[result.Name] = result
			mu.Unlock()
		}(checker)
	}
	wg.Wait()

	return HealthResponse{
		Status:      overallStatus(results),
		Timestamp:   time.Now().UTC(),
		Version:     hm.version,
		Uptime:      time.Since(hm.started),
		Checks:      results,
		Summary:     summarize(results),
		SystemInfo:  getSystemInfo(hm.started),
		Environment: hm.environment,
	}
}

func summarize(checks map[string]HealthCheck) HealthSummary {
	summary := HealthSummary{Total: len(checks)}
	for _, check := range checks {
		switch check.Status {
		case HealthStatusHealthy:
			summary.Healthy++
		case HealthStatusUnhealthy:
			summary.Unhealthy++
		case HealthStatusDegraded:
			summary.Degraded++
		default:
			summary.Unknown++
		}
		if check.Critical {
			summary.Critical++
		}
	}
	return summary
}

// overallStatus is unhealthy when a critical check fails and degraded when
// any other check is not healthy.
func overallStatus(checks map[string]HealthCheck) HealthStatus {
	status := HealthStatusHealthy
	for _, check := range checks {
		switch {
		case check.Status == HealthStatusUnhealthy && check.Critical:
			return HealthStatusUnhealthy
		case check.Status != HealthStatusHealthy:
			status = HealthStatusDegraded
		}
	}
	return status
}

// HTTPHandler returns an HTTP handler for health checks
func (hm *HealthMonitor) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.GetHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		switch health.Status {
		case HealthStatusHealthy, HealthStatusDegraded:
			w.WriteHeader(http.StatusOK)
		case HealthStatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(health); err != nil {
			hm.logger.Error(r.Context(), err, "Failed to encode health response")
		}
	}
}

// Predefined health checks

// EmailsDirHealthChecker checks that the emails directory is readable.
func EmailsDirHealthChecker(dir string) HealthChecker {
	return NewHealthCheckFunc("emails_dir", true, func(ctx context.Context) HealthCheck {
		start := time.Now()
		check := HealthCheck{LastChecked: start, Metadata: map[string]interface{}{"path": dir}}

		info, err := os.Stat(dir)
		switch {
		case err != nil:
			check.Status = HealthStatusUnhealthy
			check.Message = fmt.Sprintf("Emails directory unavailable: %v", err)
		case !info.IsDir():
			check.Status = HealthStatusUnhealthy
			check.Message = "Emails path is not a directory"
		default:
			if _, err := os.ReadDir(dir); err != nil {
				check.Status = HealthStatusUnhealthy
				check.Message = fmt.Sprintf("Cannot read emails directory: %v", err)
			} else {
				check.Status = HealthStatusHealthy
				check.Message = "Emails directory is readable"
			}
		}

		check.Duration = time.Since(start)
		return check
	})
}

// PreviewFilesHealthChecker reports preview files that fail to parse.
func PreviewFilesHealthChecker(list func(ctx context.Context) catalog.Catalog) HealthChecker {
	return NewHealthCheckFunc("preview_files", false, func(ctx context.Context) HealthCheck {
		start := time.Now()
		check := HealthCheck{LastChecked: start}

		c := list(ctx)
		var invalid []string
		for _, e := range c {
			if e.Error != "" {
				invalid = append(invalid, e.Name)
			}
		}
		sort.Strings(invalid)

		check.Metadata = map[string]interface{}{
			"templates": len(c),
			"previews":  len(c.Paths()),
		}
		if len(invalid) > 0 {
			check.Status = HealthStatusDegraded
			check.Message = fmt.Sprintf("%d invalid preview file(s)", len(invalid))
			check.Metadata["invalid"] = invalid
		} else {
			check.Status = HealthStatusHealthy
			check.Message = "All preview files parse"
		}
		check.Duration = time.Since(start)
		return check
	})
}

// ReloadStats exposes live-reload channel counters.
type ReloadStats interface {
	Subscribers() int
	Generation() uint64
}

// LiveReloadHealthChecker reports live-reload subscribers. It is always
// healthy when reloading is enabled; a disabled channel is degraded.
func LiveReloadHealthChecker(stats ReloadStats, enabled bool) HealthChecker {
	return NewHealthCheckFunc("live_reload", false, func(ctx context.Context) HealthCheck {
		start := time.Now()
		check := HealthCheck{
			Status:      HealthStatusHealthy,
			Message:     "Live reload is active",
			LastChecked: start,
			Metadata: map[string]interface{}{
				"subscribers": stats.Subscribers(),
				"generation":  stats.Generation(),
			},
		}
		if !enabled {
			check.Status = HealthStatusDegraded
			check.Message = "Live reload is disabled"
		}
		check.Duration = time.Since(start)
		return check
	})
}

// GoroutineHealthChecker checks for goroutine leaks
func GoroutineHealthChecker() HealthChecker {
	return NewHealthCheckFunc("goroutines", false, func(ctx context.Context) HealthCheck {
		start := time.Now()

		goroutines := runtime.NumGoroutine()

		status := HealthStatusHealthy
		message := "Goroutine count is normal"

		if goroutines > 1000 {
			status = HealthStatusDegraded
			message = fmt.Sprintf("High goroutine count: %d", goroutines)
		}

		if goroutines > 10000 {
			status = HealthStatusUnhealthy
			message = fmt.Sprintf("Very high goroutine count: %d", goroutines)
		}

		return HealthCheck{
			Status:      status,
			Message:     message,
			LastChecked: start,
			Duration:    time.Since(start),
			Metadata: map[string]interface{}{
				"count": goroutines,
			},
		}
	})
}

func getSystemInfo(started time.Time) SystemInfo {
	hostname, _ := os.Hostname()

	return SystemInfo{
		Hostname:  hostname,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion: runtime.Version(),
		StartTime: started,
		PID:       os.Getpid(),
	}
}
