// Package experiment assigns accounts to a control/test RuleEngine rule
// subset and tracks each group's outcomes, so a new rule weighting can be
// rolled out to a traffic slice before it governs every transaction.
package experiment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/internal/models"
)

// Manager owns the set of running experiments and their accumulated results.
type Manager struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	results     map[string]*Results
}

// Experiment is a single rule-set rollout under test.
type Experiment struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Status       Status           `json:"status"`
	ControlRules []string         `json:"control_rules"` // rule IDs active for the control group
	TestRules    []string         `json:"test_rules"`    // rule IDs active for the test group
	TrafficSplit float64          `json:"traffic_split"` // fraction of traffic routed to the test group
	StartTime    time.Time        `json:"start_time"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Status is an experiment's lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Results tracks per-group outcomes for a running experiment.
type Results struct {
	ExperimentID string      `json:"experiment_id"`
	Control      GroupStats  `json:"control"`
	Test         GroupStats  `json:"test"`
	StartTime    time.Time   `json:"start_time"`
	LastUpdated  time.Time   `json:"last_updated"`
}

// GroupStats accumulates one group's scoring outcomes.
type GroupStats struct {
	TotalTransactions int            `json:"total_transactions"`
	TotalAmount       float64        `json:"total_amount"`
	AvgFraudScore     float64        `json:"avg_fraud_score"`
	RiskDistribution  map[string]int `json:"risk_distribution"`
	FlaggedCount      int            `json:"flagged_count"`
	BlockedCount      int            `json:"blocked_count"`
	RulesTriggered    map[string]int `json:"rules_triggered"`
	scoreSum          float64
}

// Assignment is the group a given account was routed to.
type Assignment struct {
	ExperimentID string `json:"experiment_id"`
	Group        string `json:"group"` // "control" or "test"
}

// NewManager creates an empty experiment Manager.
func NewManager() *Manager {
	return &Manager{
		experiments: make(map[string]*Experiment),
		results:     make(map[string]*Results),
	}
}

func freshResults(experimentID string) *Results {
	return &Results{
		ExperimentID: experimentID,
		Control:      GroupStats{RiskDistribution: make(map[string]int), RulesTriggered: make(map[string]int)},
		Test:         GroupStats{RiskDistribution: make(map[string]int), RulesTriggered: make(map[string]int)},
		StartTime:    time.Now(),
		LastUpdated:  time.Now(),
	}
}

// Create registers a new experiment in draft status.
func (m *Manager) Create(exp *Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	if exp.TrafficSplit < 0 || exp.TrafficSplit > 1 {
		return fmt.Errorf("traffic_split must be between 0.0 and 1.0")
	}

	exp.Status = StatusDraft
	exp.CreatedAt = time.Now()
	exp.UpdatedAt = time.Now()

	m.experiments[exp.ID] = exp
	m.results[exp.ID] = freshResults(exp.ID)

	log.Info().
		Str("experiment_id", exp.ID).
		Str("name", exp.Name).
		Float64("traffic_split", exp.TrafficSplit).
		Msg("experiment created")

	return nil
}

// Start moves an experiment to running and resets its results.
func (m *Manager) Start(experimentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, exists := m.experiments[experimentID]
	if !exists {
		return fmt.Errorf("experiment not found: %s", experimentID)
	}
	if exp.Status == StatusRunning {
		return fmt.Errorf("experiment is already running")
	}

	exp.Status = StatusRunning
	exp.StartTime = time.Now()
	exp.UpdatedAt = time.Now()
	m.results[experimentID] = freshResults(experimentID)

	log.Info().Str("experiment_id", experimentID).Msg("experiment started")
	return nil
}

// Stop marks an experiment completed.
func (m *Manager) Stop(experimentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, exists := m.experiments[experimentID]
	if !exists {
		return fmt.Errorf("experiment not found: %s", experimentID)
	}

	exp.Status = StatusCompleted
	now := time.Now()
	exp.EndTime = &now
	exp.UpdatedAt = now

	log.Info().Str("experiment_id", experimentID).Msg("experiment stopped")
	return nil
}

// Pause suspends an experiment without resetting results.
func (m *Manager) Pause(experimentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, exists := m.experiments[experimentID]
	if !exists {
		return fmt.Errorf("experiment not found: %s", experimentID)
	}

	exp.Status = StatusPaused
	exp.UpdatedAt = time.Now()

	log.Info().Str("experiment_id", experimentID).Msg("experiment paused")
	return nil
}

// Delete removes an experiment and its results.
func (m *Manager) Delete(experimentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.experiments[experimentID]; !exists {
		return fmt.Errorf("experiment not found: %s", experimentID)
	}

	delete(m.experiments, experimentID)
	delete(m.results, experimentID)
	return nil
}

// Get returns a single experiment.
func (m *Manager) Get(experimentID string) (*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, exists := m.experiments[experimentID]
	if !exists {
		return nil, fmt.Errorf("experiment not found: %s", experimentID)
	}
	return exp, nil
}

// All returns every known experiment.
func (m *Manager) All() []*Experiment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	experiments := make([]*Experiment, 0, len(m.experiments))
	for _, exp := range m.experiments {
		experiments = append(experiments, exp)
	}
	return experiments
}

// Assign deterministically routes userID to the control or test group of a
// running experiment, via consistent hashing so the same user always lands
// in the same group for the life of the experiment.
func (m *Manager) Assign(experimentID string, userID uuid.UUID) (*Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, exists := m.experiments[experimentID]
	if !exists {
		return nil, fmt.Errorf("experiment not found: %s", experimentID)
	}
	if exp.Status != StatusRunning {
		return nil, fmt.Errorf("experiment is not running")
	}

	hash := sha256.Sum256([]byte(experimentID + ":" + userID.String()))
	hashHex := hex.EncodeToString(hash[:])

	hashValue := 0.0
	for i := 0; i < 8; i++ {
		hashValue = hashValue*16 + float64(hexCharToInt(hashHex[i]))
	}
	hashValue /= math.Pow(16, 8)

	assignment := &Assignment{ExperimentID: experimentID, Group: "control"}
	if hashValue < exp.TrafficSplit {
		assignment.Group = "test"
	}
	return assignment, nil
}

// RuleSetFor returns the rule IDs active for the group an Assignment named.
func (m *Manager) RuleSetFor(experimentID string, assignment *Assignment) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, exists := m.experiments[experimentID]
	if !exists {
		return nil, fmt.Errorf("experiment not found: %s", experimentID)
	}
	if assignment.Group == "test" {
		return exp.TestRules, nil
	}
	return exp.ControlRules, nil
}

// RecordOutcome folds a scored transaction's decision into its group's
// running statistics.
func (m *Manager) RecordOutcome(experimentID string, assignment *Assignment, dec models.Decision, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results, exists := m.results[experimentID]
	if !exists {
		return
	}

	stats := &results.Control
	if assignment.Group == "test" {
		stats = &results.Test
	}

	stats.TotalTransactions++
	stats.TotalAmount += amount
	stats.scoreSum += dec.FraudScore
	stats.AvgFraudScore = stats.scoreSum / float64(stats.TotalTransactions)
	stats.RiskDistribution[dec.RiskLevel]++

	switch dec.RiskLevel {
	case models.RiskLevelHigh:
		stats.FlaggedCount++
	case models.RiskLevelCritical:
		stats.BlockedCount++
	}

	for _, ruleID := range dec.TriggeredRules {
		stats.RulesTriggered[ruleID]++
	}

	results.LastUpdated = time.Now()
}

// Results returns an experiment's accumulated statistics.
func (m *Manager) Results(experimentID string) (*Results, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results, exists := m.results[experimentID]
	if !exists {
		return nil, fmt.Errorf("results not found for experiment: %s", experimentID)
	}
	return results, nil
}

// Significance reports whether the test group's outcomes differ from
// control's by more than sampling noise would explain.
type Significance struct {
	IsSignificant      bool    `json:"is_significant"`
	ConfidenceLevel    float64 `json:"confidence_level"`
	PValue             float64 `json:"p_value"`
	ScoreDifference    float64 `json:"score_difference"`
	ScoreDifferencePct float64 `json:"score_difference_pct"`
	FlagRateDifference float64 `json:"flag_rate_difference"`
	SampleSizeControl  int     `json:"sample_size_control"`
	SampleSizeTest     int     `json:"sample_size_test"`
	Recommendation     string  `json:"recommendation"`
}

// Significance computes a two-proportion z-test over the flag rates of the
// two groups.
func (m *Manager) Significance(experimentID string) (*Significance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results, exists := m.results[experimentID]
	if !exists {
		return nil, fmt.Errorf("results not found for experiment: %s", experimentID)
	}
	return calculateSignificance(results), nil
}

func calculateSignificance(results *Results) *Significance {
	sig := &Significance{
		SampleSizeControl: results.Control.TotalTransactions,
		SampleSizeTest:    results.Test.TotalTransactions,
		ConfidenceLevel:   0.95,
	}

	const minSampleSize = 100
	if sig.SampleSizeControl < minSampleSize || sig.SampleSizeTest < minSampleSize {
		sig.Recommendation = fmt.Sprintf("need at least %d samples in each group, have control=%d test=%d",
			minSampleSize, sig.SampleSizeControl, sig.SampleSizeTest)
		return sig
	}

	sig.ScoreDifference = results.Test.AvgFraudScore - results.Control.AvgFraudScore
	if results.Control.AvgFraudScore > 0 {
		sig.ScoreDifferencePct = (sig.ScoreDifference / results.Control.AvgFraudScore) * 100
	}

	controlFlagRate := float64(results.Control.FlaggedCount+results.Control.BlockedCount) / float64(results.Control.TotalTransactions)
	testFlagRate := float64(results.Test.FlaggedCount+results.Test.BlockedCount) / float64(results.Test.TotalTransactions)
	sig.FlagRateDifference = testFlagRate - controlFlagRate

	pooled := float64(results.Control.FlaggedCount+results.Control.BlockedCount+results.Test.FlaggedCount+results.Test.BlockedCount) /
		float64(results.Control.TotalTransactions+results.Test.TotalTransactions)

	if pooled > 0 && pooled < 1 {
		stderr := math.Sqrt(pooled * (1 - pooled) * (1/float64(results.Control.TotalTransactions) + 1/float64(results.Test.TotalTransactions)))
		if stderr > 0 {
			z := math.Abs(sig.FlagRateDifference) / stderr
			sig.PValue = 2 * (1 - normalCDF(z))
			sig.IsSignificant = sig.PValue < 0.05
		}
	}

	switch {
	case !sig.IsSignificant:
		sig.Recommendation = "results are not statistically significant, continue running the experiment"
	case sig.ScoreDifference > 0:
		sig.Recommendation = fmt.Sprintf("test group shows %.1f%% higher fraud scores", sig.ScoreDifferencePct)
	default:
		sig.Recommendation = fmt.Sprintf("test group shows %.1f%% lower fraud scores", math.Abs(sig.ScoreDifferencePct))
	}

	return sig
}

func normalCDF(x float64) float64 {
	return 0.5 * (1 + erf(x/math.Sqrt2))
}

// erf is Abramowitz & Stegun formula 7.1.26, accurate to ~1.5e-7.
func erf(x float64) float64 {
	const a1, a2, a3, a4, a5, p = 0.254829592, -0.284496736, 1.421413741, -1.453152027, 1.061405429, 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return sign * y
}

func hexCharToInt(c byte) float64 {
	switch {
	case c >= '0' && c <= '9':
		return float64(c - '0')
	case c >= 'a' && c <= 'f':
		return float64(c - 'a' + 10)
	case c >= 'A' && c <= 'F':
		return float64(c - 'A' + 10)
	default:
		return 0
	}
}

// Export serializes an experiment along with its results and significance
// analysis, for compliance/audit download.
func (m *Manager) Export(experimentID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, expExists := m.experiments[experimentID]
	results, resExists := m.results[experimentID]
	if !expExists || !resExists {
		return nil, fmt.Errorf("experiment not found: %s", experimentID)
	}

	export := struct {
		Experiment    *Experiment    `json:"experiment"`
		Results       *Results       `json:"results"`
		Significance  *Significance  `json:"significance"`
		ExportedAt    time.Time      `json:"exported_at"`
	}{
		Experiment:   exp,
		Results:      results,
		Significance: calculateSignificance(results),
		ExportedAt:   time.Now(),
	}

	return json.MarshalIndent(export, "", "  ")
}
