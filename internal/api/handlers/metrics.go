package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the Prometheus scrape endpoint.
type MetricsHandler struct {
	registry *prometheus.Registry
}

// NewMetricsHandler creates a new MetricsHandler over the given registry.
func NewMetricsHandler(registry *prometheus.Registry) *MetricsHandler {
	return &MetricsHandler{registry: registry}
}

// RegisterPublicRoutes registers the metrics endpoint without authentication.
func (h *MetricsHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
}
