package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	config "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Config"
	srsingestor "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.IngestorService/ingestor"
	logger "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Logger"
	metrics "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Metrics"
	implementation "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Repository/Interfaces"
)

// Container manages dependencies and their lifecycle
type Container struct {
	config     *config.Config
	logger     *logger.Logger
	metrics    *metrics.Metrics
	sensorRepo *implementation.InMemorySensorRepository
	ingestor   *srsingestor.Ingestor

	// Mutex for thread-safe access
	mu sync.Mutex

	// Cleanup functions, run in reverse order on Shutdown
	cleanupFuncs []func() error
}

// NewApiContainer loads configuration from the environment and builds a container
func NewApiContainer() (*Container, error) {
	cfg, err := config.LoadApiConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load API configuration: %w", err)
	}

	return NewContainer(cfg, logger.NewLogger(&cfg.Logging))
}

// NewContainer builds a container from an already loaded configuration.
// The registry is seeded here, once per process.
func NewContainer(cfg *config.Config, log *logger.Logger) (*Container, error) {
	sensorRepo, err := implementation.NewInMemorySensorRepository(implementation.DefaultSensors(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to seed sensor registry: %w", err)
	}

	return &Container{
		config:     cfg,
		logger:     log,
		metrics:    metrics.NewMetrics(),
		sensorRepo: sensorRepo,
	}, nil
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetMetrics returns the metrics registry
func (c *Container) GetMetrics() *metrics.Metrics {
	return c.metrics
}

// GetSensorRepository returns the sensor registry
func (c *Container) GetSensorRepository() interfaces.SensorRepository {
	return c.sensorRepo
}

// GetIngestor returns the MQTT ingestor, or nil when it has not been started
func (c *Container) GetIngestor() *srsingestor.Ingestor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ingestor
}

// StartIngestor starts MQTT ingestion when it is enabled in configuration
func (c *Container) StartIngestor(ctx context.Context) error {
	if !c.config.MQTT.Enabled {
		c.logger.Info("MQTT ingestion disabled")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ingestor != nil {
		return nil
	}

	ing := srsingestor.New(c.config.MQTT, c.sensorRepo, c.metrics, c.logger)
	if err := ing.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MQTT ingestor: %w", err)
	}
	c.ingestor = ing
	c.cleanupFuncs = append(c.cleanupFuncs, func() error {
		ing.Stop()
		return nil
	})

	c.logger.Logger.Info().Str("broker", c.config.GetMQTTBrokerURL()).Msg("MQTT ingestion started")
	return nil
}

// AddCleanupFunc adds a cleanup function
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown runs the registered cleanup functions in reverse order
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	var firstErr error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	c.logger.Info("Container shutdown complete")
	return firstErr
}
