package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	metrics "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Metrics"
	interfaces "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Repository/Interfaces"
)

// ConnectionStatus reports whether an optional dependency is connected
type ConnectionStatus interface {
	IsConnected() bool
}

// HealthController handles health and metrics requests
type HealthController struct {
	sensorRepo interfaces.SensorRepository
	metrics    *metrics.Metrics
	mqtt       ConnectionStatus
}

// NewHealthController creates a new health controller. mqtt may be nil when
// ingestion is disabled.
func NewHealthController(sensorRepo interfaces.SensorRepository, metrics *metrics.Metrics, mqtt ConnectionStatus) *HealthController {
	return &HealthController{
		sensorRepo: sensorRepo,
		metrics:    metrics,
		mqtt:       mqtt,
	}
}

// RegisterRoutes registers the health routes with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
	router.GET("/metrics", gin.WrapH(c.metrics.Handler()))
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// HealthReady is always ready: the registry lives in memory and MQTT
// ingestion is optional, so its state is reported but never gating.
func (c *HealthController) HealthReady(ctx *gin.Context) {
	mqttConnected := false
	if c.mqtt != nil {
		mqttConnected = c.mqtt.IsConnected()
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"sensors": c.sensorRepo.Count(),
		"mqtt":    mqttConnected,
	})
}
