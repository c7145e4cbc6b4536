package queue

import "time"

// TransactionScoredEvent is the audit-trail record that
// AuditStreamClient.Publish appends to the fraud-scoring stream; the
// Coordinator does not publish these events itself. It is intentionally
// flatter than models.Transaction — it is an export format, not storage.
type TransactionScoredEvent struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	FraudStatus   string    `json:"fraud_status"`
	FraudScore    float64   `json:"fraud_score"`
	RiskLevel     string    `json:"risk_level"`
	TriggeredRules []string `json:"triggered_rules,omitempty"`
	DetectionMethod string  `json:"detection_method"`
	ScoredAt      time.Time `json:"scored_at"`
}

// AggregationJob is the message published to the behavior-reaggregation
// stream; it carries nothing but the user to re-profile.
type AggregationJob struct {
	UserID      string    `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}
