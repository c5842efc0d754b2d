package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.ApiService/controllers"
	"gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.ApiService/middleware"
	config "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Config"
	logger "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Logger"
	metrics "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Metrics"
	api_models "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Models/api"
	interfaces "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Repository/Interfaces"
)

// Dependencies groups what the HTTP layer needs from the container
type Dependencies struct {
	Config     *config.Config
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	SensorRepo interfaces.SensorRepository
	MQTT       controllers.ConnectionStatus

	// Now stamps sensor updates; defaults to time.Now
	Now func() time.Time
}

// New builds the Gin engine with middleware and all routes registered
func New(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.Metrics(deps.Metrics))
	router.Use(gin.CustomRecovery(func(ctx *gin.Context, recovered interface{}) {
		deps.Logger.Logger.Error().
			Str("request_id", middleware.GetRequestIDFromGinContext(ctx)).
			Interface("panic", recovered).
			Msg("Recovered from panic")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, api_models.MessageResponse{Message: api_models.InternalErrorMessage})
	}))

	// Configure CORS from config
	corsCfg := deps.Config.CORS
	corsConfig := cors.Config{
		AllowMethods:     corsCfg.AllowedMethods,
		AllowHeaders:     corsCfg.AllowedHeaders,
		ExposeHeaders:    corsCfg.ExposedHeaders,
		AllowCredentials: corsCfg.AllowCredentials,
		MaxAge:           time.Duration(corsCfg.MaxAge) * time.Second,
	}
	if len(corsCfg.AllowedOrigins) == 1 && corsCfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = corsCfg.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, api_models.MessageResponse{Message: api_models.RouteNotFoundMessage})
	})

	sensorController := controllers.NewSensorController(deps.SensorRepo, deps.Logger, deps.Metrics)
	if deps.Now != nil {
		sensorController.WithClock(deps.Now)
	}
	healthController := controllers.NewHealthController(deps.SensorRepo, deps.Metrics, deps.MQTT)

	sensorController.RegisterRoutes(router)
	healthController.RegisterRoutes(router)

	return router
}
