package rules

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise/fraudscore/internal/models"
)

func baseTransaction() *models.Transaction {
	return &models.Transaction{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Amount:          50,
		Currency:        "USD",
		TransactionTime: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC), // 2pm, not in the unusual window
		Location:        models.Location{Country: "US"},
		Device:          models.Device{ID: "device-1"},
	}
}

func baseUser() *models.User {
	return &models.User{
		ID:               uuid.New(),
		TrustScore:       80,
		RegistrationDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func baseBehavior() *models.UserBehavior {
	return &models.UserBehavior{
		AvgAmount:         60,
		StdDev:            10,
		FrequentCountries: models.StringSet{"US"},
		KnownDevices:      models.StringSet{"device-1"},
	}
}

func TestEvaluate_CleanTransactionTriggersNoRules(t *testing.T) {
	e := New(DefaultConfig())
	result := e.Evaluate(baseTransaction(), baseUser(), baseBehavior(), models.VelocityCounts{LastHour: 1, LastDay: 3})

	if len(result.TriggeredRules) != 0 {
		t.Errorf("expected no triggered rules, got %v", result.TriggeredRules)
	}
	if result.RuleScore != 0 {
		t.Errorf("RuleScore = %v, want 0", result.RuleScore)
	}
	if result.IsFraud {
		t.Error("a clean transaction should not be flagged as fraud")
	}
}

func TestEvaluate_HighAmountDeviatesFromBehavior(t *testing.T) {
	e := New(DefaultConfig())
	tx := baseTransaction()
	tx.Amount = 500 // avg 60, stddev 10: well past avg+3*stddev
	behavior := baseBehavior()

	result := e.Evaluate(tx, baseUser(), behavior, models.VelocityCounts{})

	if !contains(toStringSet(result.TriggeredRules), "HIGH_AMOUNT") {
		t.Errorf("expected HIGH_AMOUNT to trigger, got %v", result.TriggeredRules)
	}
	if !result.UnusualAmount {
		t.Error("UnusualAmount flag should be set")
	}
}

func TestEvaluate_HighVelocity(t *testing.T) {
	e := New(DefaultConfig())
	result := e.Evaluate(baseTransaction(), baseUser(), baseBehavior(), models.VelocityCounts{LastHour: 25})

	if !result.HighVelocity {
		t.Error("HighVelocity flag should be set when LastHour exceeds the configured threshold")
	}
	if !contains(toStringSet(result.TriggeredRules), "HIGH_VELOCITY") {
		t.Errorf("expected HIGH_VELOCITY to trigger, got %v", result.TriggeredRules)
	}
}

func TestEvaluate_UnusualTimeWindow(t *testing.T) {
	e := New(DefaultConfig())
	tx := baseTransaction()
	tx.TransactionTime = time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC) // 3:30am

	result := e.Evaluate(tx, baseUser(), baseBehavior(), models.VelocityCounts{})
	if !result.UnusualTime {
		t.Error("a 3:30am transaction should trigger UNUSUAL_TIME")
	}
}

func TestEvaluate_UnfamiliarCountry(t *testing.T) {
	e := New(DefaultConfig())
	tx := baseTransaction()
	tx.Location.Country = "RU"

	result := e.Evaluate(tx, baseUser(), baseBehavior(), models.VelocityCounts{})
	if !result.UnusualLocation {
		t.Error("a country absent from FrequentCountries should trigger UNUSUAL_LOCATION")
	}
}

func TestEvaluate_NewDevice(t *testing.T) {
	e := New(DefaultConfig())
	tx := baseTransaction()
	tx.Device.ID = "never-seen-before"

	result := e.Evaluate(tx, baseUser(), baseBehavior(), models.VelocityCounts{})
	if !result.NewDevice || !result.UnusualDevice {
		t.Error("an unrecognized device ID should trigger NEW_DEVICE")
	}
}

func TestEvaluate_LowTrustScore(t *testing.T) {
	e := New(DefaultConfig())
	user := baseUser()
	user.TrustScore = 30

	result := e.Evaluate(baseTransaction(), user, baseBehavior(), models.VelocityCounts{})
	if !contains(toStringSet(result.TriggeredRules), "LOW_TRUST_SCORE") {
		t.Errorf("expected LOW_TRUST_SCORE to trigger, got %v", result.TriggeredRules)
	}
}

func TestEvaluate_NewAccount(t *testing.T) {
	e := New(DefaultConfig())
	tx := baseTransaction()
	user := baseUser()
	user.RegistrationDate = tx.TransactionTime.Add(-3 * 24 * time.Hour)

	result := e.Evaluate(tx, user, baseBehavior(), models.VelocityCounts{})
	if !contains(toStringSet(result.TriggeredRules), "NEW_ACCOUNT") {
		t.Errorf("expected NEW_ACCOUNT to trigger, got %v", result.TriggeredRules)
	}
}

func TestEvaluate_AmountLimitExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTransactionAmount = 1000
	e := New(cfg)

	tx := baseTransaction()
	tx.Amount = 1500

	result := e.Evaluate(tx, baseUser(), nil, models.VelocityCounts{})
	if !contains(toStringSet(result.TriggeredRules), "AMOUNT_LIMIT_EXCEEDED") {
		t.Errorf("expected AMOUNT_LIMIT_EXCEEDED to trigger, got %v", result.TriggeredRules)
	}
}

func TestEvaluate_RuleScoreIsClampedToOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTransactionAmount = 10
	cfg.MaxTransactionsPerHour = 1
	cfg.MaxTransactionsPerDay = 1
	e := New(cfg)

	tx := baseTransaction()
	tx.Amount = 999999
	tx.TransactionTime = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	tx.Location.Country = "RU"
	tx.Device.ID = "unknown-device"

	user := baseUser()
	user.TrustScore = 10
	user.RegistrationDate = tx.TransactionTime

	behavior := baseBehavior()
	behavior.FailedAttempts = 10

	result := e.Evaluate(tx, user, behavior, models.VelocityCounts{LastHour: 99, LastDay: 99})

	if result.RuleScore > 1 {
		t.Errorf("RuleScore must be clamped to 1, got %v", result.RuleScore)
	}
	if !result.IsFraud {
		t.Error("such a heavily flagged transaction should be IsFraud")
	}
}

func TestEvaluate_RuleOrderIsDeterministic(t *testing.T) {
	e := New(DefaultConfig())
	tx := baseTransaction()
	tx.Amount = 999999
	tx.Location.Country = "RU"
	tx.Device.ID = "unknown-device"

	behavior := baseBehavior()

	first := e.Evaluate(tx, baseUser(), behavior, models.VelocityCounts{})
	second := e.Evaluate(tx, baseUser(), behavior, models.VelocityCounts{})

	if len(first.TriggeredRules) != len(second.TriggeredRules) {
		t.Fatalf("triggered rule count should be stable across runs")
	}
	for i := range first.TriggeredRules {
		if first.TriggeredRules[i] != second.TriggeredRules[i] {
			t.Errorf("rule order differs at index %d: %v vs %v", i, first.TriggeredRules, second.TriggeredRules)
		}
	}
}

func TestBehaviorDeviation(t *testing.T) {
	tx := baseTransaction()
	tx.Amount = 100

	if dev := BehaviorDeviation(tx, nil); dev != 0 {
		t.Errorf("BehaviorDeviation with nil behavior = %v, want 0", dev)
	}

	behavior := &models.UserBehavior{AvgAmount: 50, StdDev: 10}
	if dev := BehaviorDeviation(tx, behavior); dev != 5 {
		t.Errorf("BehaviorDeviation = %v, want 5", dev)
	}
}

func toStringSet(v []string) models.StringSet { return models.StringSet(v) }
