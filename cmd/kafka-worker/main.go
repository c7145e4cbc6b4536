package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/configs"
	"github.com/enterprise/fraudscore/internal/queue"
)

// =============================================================================
// Fraud alert compliance export pipeline.
// =============================================================================
// Real-time decisions are made in cmd/api-server (cmd/worker only
// re-aggregates behavior profiles). This worker does not score anything — it tails the
// fraud_alerts table via Debezium CDC and exports every alert for
// compliance audit, SIEM forwarding, and dashboard consumption.
// =============================================================================

// DebeziumMessage is a single CDC event from Debezium.
type DebeziumMessage struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Source DebeziumSource  `json:"source"`
	Op     string          `json:"op"` // c=create, u=update, d=delete, r=snapshot
	TsMs   int64           `json:"ts_ms"`
}

// DebeziumSource carries CDC provenance metadata.
type DebeziumSource struct {
	Connector string `json:"connector"`
	DB        string `json:"db"`
	Table     string `json:"table"`
	TxID      int64  `json:"txId"`
	LSN       int64  `json:"lsn"`
}

// FraudAlertCDC mirrors the fraud_alerts row shape as delivered by CDC.
type FraudAlertCDC struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transaction_id"`
	UserID        string  `json:"user_id"`
	AlertType     string  `json:"alert_type"`
	Severity      string  `json:"severity"`
	FraudScore    float64 `json:"fraud_score"`
	Reason        string  `json:"reason"`
	Action        string  `json:"action"`
	Reviewed      bool    `json:"reviewed"`
	DetectedAt    string  `json:"detected_at"`
}

// ComplianceEvent is the normalized export record.
type ComplianceEvent struct {
	EventType     string    `json:"event_type"`
	AlertID       string    `json:"alert_id"`
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Severity      string    `json:"severity"`
	Action        string    `json:"action"`
	FraudScore    float64   `json:"fraud_score"`
	Reviewed      bool      `json:"reviewed"`
	Timestamp     time.Time `json:"timestamp"`
	CDCTimestamp  int64     `json:"cdc_timestamp_ms"`
}

// ExportMetrics tracks the live export volume by severity and action.
type ExportMetrics struct {
	mu                  sync.RWMutex
	AlertsExported      int64
	SeverityDistribution map[string]int64
	ActionDistribution   map[string]int64
	LastEventTime        time.Time
	windowStart          time.Time
	windowCount          int64
	EventsPerSecond      float64
}

func NewExportMetrics() *ExportMetrics {
	return &ExportMetrics{
		SeverityDistribution: make(map[string]int64),
		ActionDistribution:   make(map[string]int64),
		windowStart:          time.Now(),
	}
}

func (m *ExportMetrics) RecordEvent(event *ComplianceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastEventTime = time.Now()
	m.windowCount++
	m.AlertsExported++
	m.SeverityDistribution[event.Severity]++
	m.ActionDistribution[event.Action]++

	elapsed := time.Since(m.windowStart).Seconds()
	if elapsed > 0 {
		m.EventsPerSecond = float64(m.windowCount) / elapsed
	}
	if elapsed > 60 {
		m.windowStart = time.Now()
		m.windowCount = 0
	}
}

func (m *ExportMetrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"alerts_exported":       m.AlertsExported,
		"events_per_second":     m.EventsPerSecond,
		"severity_distribution": m.SeverityDistribution,
		"action_distribution":   m.ActionDistribution,
		"last_event_time":       m.LastEventTime,
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENVIRONMENT") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Info().Msg("starting fraud alert compliance export pipeline")

	cfg := configs.Load()

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		kafkaBrokers = "localhost:9092"
	}
	brokers := strings.Split(kafkaBrokers, ",")

	kafkaGroupID := os.Getenv("KAFKA_GROUP_ID")
	if kafkaGroupID == "" {
		kafkaGroupID = "fraud-alert-export"
	}

	kafkaTopics := os.Getenv("KAFKA_TOPICS")
	if kafkaTopics == "" {
		kafkaTopics = "fraudscore.public.fraud_alerts"
	}
	topics := strings.Split(kafkaTopics, ",")

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer cacheClient.Close()

	metrics := NewExportMetrics()

	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	consumerConfig.Consumer.Return.Errors = true
	consumerConfig.Version = sarama.V3_0_0_0

	var consumerGroup sarama.ConsumerGroup
	for i := 0; i < 30; i++ {
		consumerGroup, err = sarama.NewConsumerGroup(brokers, kafkaGroupID, consumerConfig)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("failed to connect to kafka, retrying")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer group after retries")
	}
	defer consumerGroup.Close()

	handler := &ComplianceExportHandler{metrics: metrics, cacheClient: cacheClient}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received, stopping compliance export pipeline")
		cancel()
	}()

	go handler.startMetricsReporter(ctx)

	log.Info().Strs("brokers", brokers).Strs("topics", topics).Str("group_id", kafkaGroupID).Msg("compliance export pipeline started")

	for {
		if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
			log.Error().Err(err).Msg("error from consumer")
		}
		if ctx.Err() != nil {
			log.Info().Msg("context cancelled, shutting down")
			return
		}
	}
}

// ComplianceExportHandler processes fraud_alerts CDC events.
type ComplianceExportHandler struct {
	metrics     *ExportMetrics
	cacheClient *queue.CacheClient
}

func (h *ComplianceExportHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("compliance export session started")
	return nil
}

func (h *ComplianceExportHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("compliance export session ended")
	return nil
}

func (h *ComplianceExportHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.processMessage(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *ComplianceExportHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	var debeziumMsg DebeziumMessage
	if err := json.Unmarshal(message.Value, &debeziumMsg); err != nil {
		log.Error().Err(err).Msg("failed to parse debezium message")
		return
	}
	if debeziumMsg.After == nil {
		return
	}

	var alert FraudAlertCDC
	if err := json.Unmarshal(debeziumMsg.After, &alert); err != nil {
		log.Error().Err(err).Msg("failed to parse fraud alert from CDC payload")
		return
	}

	event := h.toComplianceEvent(&debeziumMsg, &alert)
	h.metrics.RecordEvent(event)
	h.logEvent(event)
	h.export(ctx, event)
}

func (h *ComplianceExportHandler) toComplianceEvent(msg *DebeziumMessage, alert *FraudAlertCDC) *ComplianceEvent {
	eventType := "alert_created"
	switch msg.Op {
	case "u":
		eventType = "alert_reviewed"
	case "r":
		eventType = "alert_snapshot"
	}

	return &ComplianceEvent{
		EventType:     eventType,
		AlertID:       alert.ID,
		TransactionID: alert.TransactionID,
		UserID:        alert.UserID,
		Severity:      alert.Severity,
		Action:        alert.Action,
		FraudScore:    alert.FraudScore,
		Reviewed:      alert.Reviewed,
		Timestamp:     time.Now(),
		CDCTimestamp:  msg.TsMs,
	}
}

func (h *ComplianceExportHandler) logEvent(event *ComplianceEvent) {
	logger := log.Info()
	if event.Severity == "CRITICAL" || event.Severity == "HIGH" {
		logger = log.Warn()
	}
	logger.
		Str("event", event.EventType).
		Str("alert_id", event.AlertID).
		Str("severity", event.Severity).
		Str("action", event.Action).
		Float64("fraud_score", event.FraudScore).
		Msg("fraud alert exported")
}

func (h *ComplianceExportHandler) export(ctx context.Context, event *ComplianceEvent) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return
	}

	key := "compliance:recent_alerts"
	if err := h.cacheClient.LPush(ctx, key, string(eventJSON)); err != nil {
		log.Error().Err(err).Msg("failed to push compliance event to cache")
		return
	}
	if err := h.cacheClient.LTrim(ctx, key, 0, 999); err != nil {
		log.Error().Err(err).Msg("failed to trim compliance event list")
	}
}

func (h *ComplianceExportHandler) startMetricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snapshot := h.metrics.Snapshot()
			log.Info().
				Int64("exported", snapshot["alerts_exported"].(int64)).
				Float64("events_per_sec", snapshot["events_per_second"].(float64)).
				Msg("compliance export metrics")
		case <-ctx.Done():
			return
		}
	}
}
