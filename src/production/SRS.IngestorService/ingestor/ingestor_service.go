package srsingestor

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Config"
	logger "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Logger"
	metrics "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Metrics"
	interfaces "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Repository/Interfaces"
)

// Message outcomes, used as metric labels and error types
const (
	ResultAccepted       = "accepted"
	ResultInvalidTopic   = "invalid_topic"
	ResultInvalidPayload = "invalid_payload"
	ResultUnknownSensor  = "unknown_sensor"
	ResultFailed         = "failed"
)

var (
	errInvalidTopic   = errors.New("topic does not match <prefix>/<sensor_id>/data")
	errMissingValue   = errors.New("payload has no value")
	errNonNumberValue = errors.New("value is not a number")
)

// Reading is one sensor value received over MQTT
type Reading struct {
	SensorID   string
	Value      float64
	Topic      string
	ReceivedAt time.Time
}

// Ingestor subscribes to sensor topics and applies readings to the registry
type Ingestor struct {
	cfg        config.MQTTConfig
	sensorRepo interfaces.SensorRepository
	metrics    *metrics.Metrics
	mqttClient mqtt.Client
	msgCh      chan Reading
	wg         sync.WaitGroup
	logger     *logger.Logger
	now        func() time.Time

	// guards msgCh against sends after Stop
	mu     sync.RWMutex
	closed bool
}

func New(cfg config.MQTTConfig, sensorRepo interfaces.SensorRepository, metrics *metrics.Metrics, logger *logger.Logger) *Ingestor {
	return &Ingestor{
		cfg:        cfg,
		sensorRepo: sensorRepo,
		metrics:    metrics,
		msgCh:      make(chan Reading, 1024),
		logger:     logger.WithComponent("mqtt_ingestor"),
		now:        time.Now,
	}
}

func (i *Ingestor) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(i.brokerURL()).
		SetClientID(i.cfg.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(i.cfg.KeepAlive).
		SetPingTimeout(i.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if i.cfg.BrokerUser != "" {
		opts.SetUsername(i.cfg.BrokerUser)
		opts.SetPassword(i.cfg.BrokerPass)
	}

	if i.cfg.UseTLS {
		tlsCfg, err := i.tlsConfig(i.cfg.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		i.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		topic := i.subscriptionTopic()
		i.logger.Logger.Info().Str("topic", topic).Msg("MQTT connected, subscribing to topic")
		if token := c.Subscribe(topic, 1, i.onMessage); token.Wait() && token.Error() != nil {
			i.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		}
	}

	i.mqttClient = mqtt.NewClient(opts)

	i.startWorker(ctx)

	// With ConnectRetry the token only completes once connected, so don't block startup on it
	token := i.mqttClient.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			i.logger.Logger.Error().Err(token.Error()).Msg("MQTT connect failed")
		}
	}()

	return nil
}

func (i *Ingestor) Stop() {
	if i.mqttClient != nil && i.mqttClient.IsConnected() {
		i.mqttClient.Disconnect(500)
	}

	i.mu.Lock()
	if !i.closed {
		i.closed = true
		close(i.msgCh)
	}
	i.mu.Unlock()

	i.wg.Wait()
}

func (i *Ingestor) IsConnected() bool {
	return i != nil && i.mqttClient != nil && i.mqttClient.IsConnected()
}

func (i *Ingestor) onMessage(_ mqtt.Client, m mqtt.Message) {
	i.logger.Logger.Debug().Str("topic", m.Topic()).Str("payload", string(m.Payload())).Msg("Received MQTT message")

	reading, err := ParseReading(m.Topic(), m.Payload())
	if err != nil {
		result := ResultInvalidPayload
		if errors.Is(err, errInvalidTopic) {
			result = ResultInvalidTopic
		}
		i.reject(m.Topic(), sensorIDFromTopic(m.Topic()), result, err)
		return
	}
	reading.ReceivedAt = i.now()

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return
	}

	select {
	case i.msgCh <- reading:
	default:
		i.reject(m.Topic(), reading.SensorID, ResultFailed, fmt.Errorf("ingest queue full"))
	}
}

func (i *Ingestor) startWorker(ctx context.Context) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.applyReadings(ctx)
	}()
}

// applyReadings drains the queue until it is closed or ctx is done
func (i *Ingestor) applyReadings(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rd, ok := <-i.msgCh:
			if !ok {
				return
			}
			i.apply(ctx, rd)
		}
	}
}

func (i *Ingestor) apply(ctx context.Context, rd Reading) {
	sensor, err := i.sensorRepo.UpdateSensorValue(ctx, rd.SensorID, rd.raw(), rd.ReceivedAt)
	if err != nil {
		result := ResultFailed
		if errors.Is(err, interfaces.ErrSensorNotFound) {
			result = ResultUnknownSensor
		}
		i.reject(rd.Topic, rd.SensorID, result, err)
		return
	}

	i.metrics.IngestedMessages.WithLabelValues(ResultAccepted).Inc()
	i.metrics.SensorUpdates.WithLabelValues(strconv.Itoa(sensor.ID), metrics.SourceMQTT).Inc()
	i.logger.Logger.Debug().Int("sensor_id", sensor.ID).Float64("value", rd.Value).Msg("Sensor value ingested")
}

func (i *Ingestor) reject(topic, sensorID, result string, err error) {
	i.metrics.IngestedMessages.WithLabelValues(result).Inc()
	i.logger.Logger.Warn().Err(err).Str("topic", topic).Str("result", result).Msg("Dropping MQTT message")
	i.publishError(sensorID, result, err.Error())
}

// ParseReading extracts the sensor id from a <prefix>/<sensor_id>/data topic
// and the value from either {"value": n} or a bare JSON number
func ParseReading(topic string, payload []byte) (Reading, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "data" || parts[len(parts)-2] == "" {
		return Reading{}, fmt.Errorf("%w: %s", errInvalidTopic, topic)
	}

	value, err := parseValue(payload)
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		SensorID: parts[len(parts)-2],
		Value:    value,
		Topic:    topic,
	}, nil
}

// raw renders the reading the way the HTTP API stores submitted values
func (rd Reading) raw() json.RawMessage {
	return json.RawMessage(strconv.FormatFloat(rd.Value, 'f', -1, 64))
}

func parseValue(payload []byte) (float64, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return 0, errMissingValue
	}

	raw := json.RawMessage(trimmed)
	if trimmed[0] == '{' {
		var body struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return 0, fmt.Errorf("decode payload: %w", err)
		}
		if len(body.Value) == 0 || string(body.Value) == "null" {
			return 0, errMissingValue
		}
		raw = body.Value
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, errNonNumberValue
	}
	return value, nil
}

func sensorIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return "unknown"
}

func (i *Ingestor) subscriptionTopic() string {
	if i.cfg.SharedGroup != "" {
		return fmt.Sprintf("$share/%s/%s", i.cfg.SharedGroup, i.cfg.Topic)
	}
	return i.cfg.Topic
}

func (i *Ingestor) brokerURL() string {
	scheme := "tcp"
	if i.cfg.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, i.cfg.BrokerHost, i.cfg.BrokerPort)
}

func (i *Ingestor) tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}

// publishError sends feedback to the sensor on sensors/<id>/errors
func (i *Ingestor) publishError(sensorID, errorType, message string) {
	if i.mqttClient == nil || !i.mqttClient.IsConnected() {
		return
	}

	errorPayload := map[string]interface{}{
		"error_type": errorType,
		"message":    message,
		"sensor_id":  sensorID,
		"timestamp":  i.now().UTC(),
	}

	payloadJSON, err := json.Marshal(errorPayload)
	if err != nil {
		i.logger.Logger.Error().Err(err).Msg("Failed to marshal error payload")
		return
	}

	errorTopic := fmt.Sprintf("sensors/%s/errors", sensorID)
	token := i.mqttClient.Publish(errorTopic, 1, false, payloadJSON)
	if token.Wait() && token.Error() != nil {
		i.logger.Logger.Error().Err(token.Error()).Str("topic", errorTopic).Msg("Failed to publish error")
	}
}
