package handlers

import (
	"context"
	"time"

	"splitcoord/internal/chain"
	"splitcoord/internal/config"
	"splitcoord/internal/db"

	"github.com/gofiber/fiber/v3"
)

// Version is the application version, set at build time via ldflags.
var Version = "dev"

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db      *db.DB
	gateway *chain.Gateway
	config  *config.Config
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(database *db.DB, gateway *chain.Gateway, cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		db:      database,
		gateway: gateway,
		config:  cfg,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	Timestamp int64             `json:"timestamp"`
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/health/live", h.Liveness)
	app.Get("/health/ready", h.Readiness)
}

// Health returns the full health status
// @Summary Health check
// @Description Returns the health status of the API and its dependencies
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c fiber.Ctx) error {
	services := make(map[string]string)
	overallStatus := "healthy"

	dbStatus := h.checkDatabase()
	services["database"] = dbStatus
	if dbStatus != "up" {
		overallStatus = "degraded"
	}

	chainStatus := h.checkChain()
	services["chain"] = chainStatus
	if chainStatus != "up" {
		overallStatus = "degraded"
	}

	services["api"] = "up"

	return c.JSON(HealthResponse{
		Status:    overallStatus,
		Version:   Version,
		Services:  services,
		Timestamp: time.Now().Unix(),
	})
}

// Liveness returns liveness probe status
// @Summary Liveness probe
// @Description Kubernetes liveness probe endpoint
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health/live [get]
func (h *HealthHandler) Liveness(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "alive",
	})
}

// Readiness returns readiness probe status
// @Summary Readiness probe
// @Description Kubernetes readiness probe endpoint
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Success 503 {object} map[string]string
// @Router /health/ready [get]
func (h *HealthHandler) Readiness(c fiber.Ctx) error {
	if dbStatus := h.checkDatabase(); dbStatus != "up" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "not_ready",
			"reason":   "database_unavailable",
			"database": dbStatus,
		})
	}

	// In production, readiness requires an executor key so write operations
	// (createSplit/settleSplit) are actually possible.
	if h.config != nil && h.config.IsProduction() && h.config.Executor.PrivateKeyHex == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"reason": "executor_not_configured",
		})
	}

	if chainStatus := h.checkChain(); chainStatus != "up" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"reason": "chain_unavailable",
			"chain":  chainStatus,
		})
	}

	return c.JSON(fiber.Map{
		"status": "ready",
	})
}

// checkDatabase verifies database connectivity
func (h *HealthHandler) checkDatabase() string {
	if h.db == nil {
		return "not_configured"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return "down"
	}
	return "up"
}

// checkChain verifies the JSON-RPC chain provider is reachable.
func (h *HealthHandler) checkChain() string {
	if h.gateway == nil {
		return "not_configured"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := h.gateway.BlockNumber(ctx); err != nil {
		return "unreachable"
	}
	return "up"
}
