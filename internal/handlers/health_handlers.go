package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/caching"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/repositories"
)

// HealthHandlers handles health check and monitoring endpoints.
type HealthHandlers struct {
	store    repositories.OrderStore
	cacheSvc caching.CacheService
	version  string
}

// NewHealthHandlers creates a new health handlers instance. cacheSvc may
// be nil when redis is not configured.
func NewHealthHandlers(store repositories.OrderStore, cacheSvc caching.CacheService, version string) *HealthHandlers {
	return &HealthHandlers{store: store, cacheSvc: cacheSvc, version: version}
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
}

// HealthCheck handles GET /health.
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
		Version:   h.version,
	}

	if err := h.store.Ping(ctx); err != nil {
		health.Services["store"] = "unhealthy"
		health.Status = "degraded"
	} else {
		health.Services["store"] = "healthy"
	}

	if h.cacheSvc != nil {
		if err := h.cacheSvc.Ping(ctx); err != nil {
			health.Services["redis"] = "unhealthy"
			health.Status = "degraded"
		} else {
			health.Services["redis"] = "healthy"
		}
	}

	code := http.StatusOK
	if health.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, health)
}

// ReadinessCheck handles GET /health/ready: the store must answer before
// the instance takes traffic.
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// DetailedHealthCheck handles GET /health/detailed with runtime numbers.
func (h *HealthHandlers) DetailedHealthCheck(c echo.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":    h.version,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"goroutines": runtime.NumGoroutine(),
		"heap_bytes": mem.HeapAlloc,
		"num_gc":     mem.NumGC,
	})
}
