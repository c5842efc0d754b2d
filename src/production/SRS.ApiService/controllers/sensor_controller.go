package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Logger"
	metrics "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Metrics"
	api_models "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Models/api"
	interfaces "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Repository/Interfaces"
	"gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.ApiService/middleware"
)

// SensorController handles the sensor registry endpoints
type SensorController struct {
	sensorRepo interfaces.SensorRepository
	logger     *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewSensorController creates a new sensor controller
func NewSensorController(sensorRepo interfaces.SensorRepository, logger *logger.Logger, metrics *metrics.Metrics) *SensorController {
	return &SensorController{
		sensorRepo: sensorRepo,
		logger:     logger.WithComponent("sensor_controller"),
		metrics:    metrics,
		now:        time.Now,
	}
}

// WithClock replaces the time source used to stamp updates
func (c *SensorController) WithClock(now func() time.Time) *SensorController {
	c.now = now
	return c
}

// RegisterRoutes registers the sensor routes with Gin
func (c *SensorController) RegisterRoutes(router *gin.Engine) {
	router.GET("/", c.Welcome)

	sensors := router.Group("/api/sensors")
	{
		sensors.GET("", c.ListSensors)
		sensors.GET("/:id", c.GetSensor)
		sensors.POST("/:id/data", c.AddSensorData)
	}
}

func (c *SensorController) Welcome(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, api_models.MessageResponse{Message: api_models.WelcomeMessage})
}

func (c *SensorController) ListSensors(ctx *gin.Context) {
	sensors, err := c.sensorRepo.ListSensors(ctx)
	if err != nil {
		c.internalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, sensors)
}

func (c *SensorController) GetSensor(ctx *gin.Context) {
	sensor, err := c.sensorRepo.GetSensor(ctx, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, interfaces.ErrSensorNotFound) {
			ctx.JSON(http.StatusNotFound, api_models.MessageResponse{Message: api_models.SensorNotFoundMessage})
			return
		}
		c.internalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, sensor)
}

// AddSensorData overwrites a sensor's reading with whatever JSON value was
// sent. Only the presence of value is checked, and before the id is resolved.
func (c *SensorController) AddSensorData(ctx *gin.Context) {
	id := ctx.Param("id")

	var req api_models.SensorDataRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !isEmptyOrNonObjectBody(err) {
		ctx.JSON(http.StatusBadRequest, api_models.MessageResponse{Message: api_models.InvalidBodyMessage})
		return
	}

	if !req.HasValue() {
		ctx.JSON(http.StatusBadRequest, api_models.MessageResponse{Message: api_models.ValueRequiredMessage})
		return
	}

	sensor, err := c.sensorRepo.UpdateSensorValue(ctx, id, req.Value, c.now())
	if err != nil {
		if errors.Is(err, interfaces.ErrSensorNotFound) {
			ctx.JSON(http.StatusNotFound, api_models.MessageResponse{Message: api_models.SensorNotFoundMessage})
			return
		}
		c.internalError(ctx, err)
		return
	}

	c.metrics.SensorUpdates.WithLabelValues(strconv.Itoa(sensor.ID), metrics.SourceHTTP).Inc()
	c.logger.WithRequestID(middleware.GetRequestIDFromGinContext(ctx)).Logger.Debug().
		Int("sensor_id", sensor.ID).
		RawJSON("value", sensor.Value).
		Msg("Sensor value updated")

	ctx.JSON(http.StatusOK, sensor)
}

// isEmptyOrNonObjectBody reports errors for bodies that are valid but carry no
// value key: an empty body, or JSON that is not an object
func isEmptyOrNonObjectBody(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.Is(err, io.EOF) || errors.As(err, &typeErr)
}

func (c *SensorController) internalError(ctx *gin.Context, err error) {
	_ = ctx.Error(err)
	ctx.JSON(http.StatusInternalServerError, api_models.MessageResponse{Message: api_models.InternalErrorMessage})
}
