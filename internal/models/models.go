package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User represents a registered account holder.
type User struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	PhoneNumber       string    `json:"phone_number"`
	Name              string    `json:"name"`
	PasswordHash      string    `json:"-"`
	TrustScore        float64   `json:"trust_score"`
	AccountLocked     bool      `json:"account_locked"`
	Enabled           bool      `json:"enabled"`
	TotalTransactions int       `json:"total_transactions"`
	FraudCount        int       `json:"fraud_count"`
	RegistrationDate  time.Time `json:"registration_date"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ClampTrustScore enforces the [0,100] invariant on TrustScore.
func (u *User) ClampTrustScore() {
	if u.TrustScore < 0 {
		u.TrustScore = 0
	}
	if u.TrustScore > 100 {
		u.TrustScore = 100
	}
}

// TransactionType enum values.
const (
	TransactionTypeQRCode = "QR_CODE"
	TransactionTypeUPI    = "UPI"
	TransactionTypeCard   = "CARD"
	TransactionTypeWallet = "WALLET"
)

// TransactionStatus enum values.
const (
	TransactionStatusPending  = "PENDING"
	TransactionStatusApproved = "APPROVED"
	TransactionStatusReview   = "REVIEW"
	TransactionStatusHold     = "HOLD"
	TransactionStatusDeclined = "DECLINED"
	TransactionStatusBlocked  = "BLOCKED"
	TransactionStatusUnknown  = "UNKNOWN"
)

// FraudStatus enum values.
const (
	FraudStatusUnknown    = "UNKNOWN"
	FraudStatusSafe       = "SAFE"
	FraudStatusSuspicious = "SUSPICIOUS"
	FraudStatusFraud      = "FRAUD"
)

// Location captures where a transaction originated.
type Location struct {
	IP        string  `json:"ip,omitempty"`
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

func (l Location) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *Location) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Device captures the originating device of a transaction.
type Device struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}

func (d Device) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *Device) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, d)
}

// Transaction is a single payment attempt moving through the scoring pipeline.
type Transaction struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	Amount            float64   `json:"amount"`
	Currency          string    `json:"currency"`
	TransactionType   string    `json:"transaction_type"`
	TransactionTime   time.Time `json:"transaction_time"`
	Merchant          string    `json:"merchant,omitempty"`
	MerchantCategory  string    `json:"merchant_category,omitempty"`
	Location          Location  `json:"location"`
	Device            Device    `json:"device"`
	QRCodeID          string    `json:"qr_code_id,omitempty"`

	Status      string  `json:"status"`
	FraudStatus string  `json:"fraud_status"`
	FraudScore  float64 `json:"fraud_score"`
	FraudReason string  `json:"fraud_reason,omitempty"`

	// Enrichment, populated by the Coordinator before scoring.
	TimeSinceLastTransaction float64 `json:"time_since_last_transaction,omitempty"`
	TransactionsInLastHour   int     `json:"transactions_in_last_hour"`
	TransactionsInLastDay    int     `json:"transactions_in_last_day"`
	AvgTransactionAmount     float64 `json:"avg_transaction_amount"`
	UnusualAmount            bool    `json:"unusual_amount"`
	UnusualTime              bool    `json:"unusual_time"`
	UnusualLocation          bool    `json:"unusual_location"`
	UnusualDevice            bool    `json:"unusual_device"`
	VelocityScore            float64 `json:"velocity_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StringSet is an ordered, bounded list of distinct strings persisted as JSONB.
type StringSet []string

func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(s)
}

func (s *StringSet) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// IntSet is an ordered, bounded list of distinct ints persisted as JSONB.
type IntSet []int

func (s IntSet) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]int{})
	}
	return json.Marshal(s)
}

func (s *IntSet) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// UserBehavior is the derived, single-writer behavioral profile for a user.
type UserBehavior struct {
	UserID uuid.UUID `json:"user_id"`

	AvgAmount float64 `json:"avg_amount"`
	MaxAmount float64 `json:"max_amount"`
	MinAmount float64 `json:"min_amount"`
	StdDev    float64 `json:"std_dev"`

	TxPerDay   float64 `json:"tx_per_day"`
	TxPerWeek  float64 `json:"tx_per_week"`
	TxPerMonth float64 `json:"tx_per_month"`

	TopHours         IntSet    `json:"top_hours"`
	TopWeekdays      IntSet    `json:"top_weekdays"`
	TopCities        StringSet `json:"top_cities"`
	FrequentCountries StringSet `json:"frequent_countries"`
	KnownDevices     StringSet `json:"known_devices"`
	KnownIPs         StringSet `json:"known_ips"`
	TopMerchants     StringSet `json:"top_merchants"`
	TopCategories    StringSet `json:"top_categories"`

	ConsistencyScore float64 `json:"consistency_score"`
	DiversityScore   float64 `json:"diversity_score"`
	VelocityPattern  float64 `json:"velocity_pattern"`

	FailedAttempts       int `json:"failed_attempts"`
	Chargebacks          int `json:"chargebacks"`
	DisputedTransactions int `json:"disputed_transactions"`
	DataPointsCount      int `json:"data_points_count"`

	LastUpdated time.Time `json:"last_updated"`
}

// NewUserBehavior returns the neutral-default profile assigned on first reference.
func NewUserBehavior(userID uuid.UUID) *UserBehavior {
	return &UserBehavior{
		UserID:           userID,
		ConsistencyScore: 0.5,
		DiversityScore:   0.5,
		VelocityPattern:  0.5,
		TopHours:         IntSet{},
		TopWeekdays:      IntSet{},
		TopCities:        StringSet{},
		FrequentCountries: StringSet{},
		KnownDevices:     StringSet{},
		KnownIPs:         StringSet{},
		TopMerchants:     StringSet{},
		TopCategories:    StringSet{},
		LastUpdated:      time.Time{},
	}
}

// AlertType enum values.
const (
	AlertTypeRuleBased = "RULE_BASED"
	AlertTypeMLBased   = "ML_BASED"
	AlertTypeHybrid    = "HYBRID"
	AlertTypeError     = "ERROR"
)

// AlertSeverity enum values.
const (
	AlertSeverityLow      = "LOW"
	AlertSeverityMedium   = "MEDIUM"
	AlertSeverityHigh     = "HIGH"
	AlertSeverityCritical = "CRITICAL"
)

// AlertAction enum values.
const (
	AlertActionBlock            = "BLOCK"
	AlertActionReview           = "REVIEW"
	AlertActionAllowWithWarning = "ALLOW_WITH_WARNING"
)

// FraudAlert is a persisted record of a scoring outcome warranting review.
type FraudAlert struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	AlertType     string    `json:"alert_type"`
	Severity      string    `json:"severity"`
	FraudScore    float64   `json:"fraud_score"`
	Reason        string    `json:"reason"`
	RulesFired    StringSet `json:"rules_fired"`
	MLFeatures    JSONB     `json:"ml_features,omitempty"`
	Action        string    `json:"action"`

	Reviewed       bool      `json:"reviewed"`
	ReviewedBy     string    `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	ConfirmedFraud bool      `json:"confirmed_fraud"`

	DetectedAt time.Time `json:"detected_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// JSONB is a helper type for PostgreSQL JSONB columns holding free-form maps.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// RuleResult is the outcome of evaluating the fixed rule set against a transaction.
type RuleResult struct {
	RuleScore      float64
	TriggeredRules []string
	Reasons        []string
	IsFraud        bool
	UnusualAmount  bool
	UnusualTime    bool
	UnusualLocation bool
	UnusualDevice  bool
	HighVelocity   bool
	NewDevice      bool
}

// FeatureVector is the fixed 20-dimensional input to the ModelScorer.
type FeatureVector [20]float64

// ModelResult is the outcome of a ModelScorer invocation.
type ModelResult struct {
	FraudProbability float64
	Method           string // "MODEL" or "RULE" (soft-timeout fallback)
}

// DetectionMethod enum values used on Decision/FraudAlert.
const (
	DetectionMethodRule  = "RULE"
	DetectionMethodModel = "MODEL"
	DetectionMethodHybrid = "HYBRID"
	DetectionMethodError = "ERROR"
)

// RiskLevel enum values.
const (
	RiskLevelLow      = "LOW"
	RiskLevelMedium   = "MEDIUM"
	RiskLevelHigh     = "HIGH"
	RiskLevelCritical = "CRITICAL"
)

// Recommendation enum values.
const (
	RecommendationApprove = "APPROVE"
	RecommendationReview  = "REVIEW"
	RecommendationDecline = "DECLINE"
)

// Decision is the Decider's combined verdict for a transaction.
type Decision struct {
	FraudScore      float64
	RuleScore       float64
	ModelScore      float64
	RiskLevel       string
	FraudStatus     string
	Recommendation  string
	Status          string
	DetectionMethod string
	PrimaryReason   string
	TriggeredRules  []string
	Flags           RuleResult
}

// VelocityCounts is a read-out of the user's recent transaction counts.
type VelocityCounts struct {
	LastHour int
	LastDay  int
}
