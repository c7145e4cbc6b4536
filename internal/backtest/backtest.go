// Package backtest replays a historical transaction sample through the
// current RuleEngine/ModelScorer/Decider without writing to the Store or
// running the BehaviorAggregator or feedback loop: it answers "what would today's
// pipeline have decided" for transactions that already ran through an
// earlier configuration.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/internal/decision"
	"github.com/enterprise/fraudscore/internal/mlmodel"
	"github.com/enterprise/fraudscore/internal/models"
	"github.com/enterprise/fraudscore/internal/rules"
	"github.com/enterprise/fraudscore/internal/store"
)

// Service replays historical transactions through the live scoring stack.
type Service struct {
	store   store.Store
	rules   *rules.Engine
	model   mlmodel.Scorer
	decider *decision.Decider
}

// New creates a backtest Service.
func New(s store.Store, ruleEngine *rules.Engine, model mlmodel.Scorer, decider *decision.Decider) *Service {
	return &Service{store: s, rules: ruleEngine, model: model, decider: decider}
}

// Request scopes a backtest run to a user and a time window.
type Request struct {
	UserID     uuid.UUID `json:"user_id" binding:"required"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	SampleSize int       `json:"sample_size,omitempty"`
}

// RuleCount is how many backtested transactions a rule fired on.
type RuleCount struct {
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// TransactionResult compares a historical decision to what the current
// pipeline would produce for the same transaction.
type TransactionResult struct {
	TransactionID      uuid.UUID `json:"transaction_id"`
	OriginalFraudScore float64   `json:"original_fraud_score"`
	BacktestFraudScore float64   `json:"backtest_fraud_score"`
	OriginalStatus     string    `json:"original_status"`
	BacktestStatus     string    `json:"backtest_status"`
	TriggeredRules     []string  `json:"triggered_rules"`
	ScoreDiff          float64   `json:"score_diff"`
}

// Result is the outcome of a backtest run.
type Result struct {
	TotalTransactions  int                  `json:"total_transactions"`
	ProcessedCount     int                  `json:"processed_count"`
	FailedCount        int                  `json:"failed_count"`
	AverageFraudScore  float64              `json:"average_fraud_score"`
	RiskDistribution   map[string]int       `json:"risk_distribution"`
	TopTriggeredRules  []RuleCount          `json:"top_triggered_rules"`
	ProcessingTimeMs   int64                `json:"processing_time_ms"`
	TransactionResults []TransactionResult  `json:"transaction_results,omitempty"`
	Comparison         *ComparisonSummary   `json:"comparison,omitempty"`
}

// ComparisonSummary aggregates how the backtest diverged from the live
// decisions that were actually recorded.
type ComparisonSummary struct {
	MatchingStatus     int     `json:"matching_status"`
	DifferentStatus    int     `json:"different_status"`
	AvgScoreDifference float64 `json:"avg_score_difference"`
	UpgradedRisk       int     `json:"upgraded_risk"`
	DowngradedRisk     int     `json:"downgraded_risk"`
}

// Run replays req.UserID's transactions in [StartDate, EndDate] through the
// live RuleEngine/ModelScorer/Decider, with no writes to the Store, cache,
// or aggregation queue.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	limit := req.SampleSize
	if limit <= 0 {
		limit = 500
	}

	history, err := s.store.FindByUserIDOrderByTimeDesc(ctx, req.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction history: %w", err)
	}

	user, err := s.store.FindUserByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found: %s", req.UserID)
	}

	behaviorProfile, err := s.store.FindBehaviorByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load behavior profile: %w", err)
	}

	inWindow := make([]*models.Transaction, 0, len(history))
	for _, tx := range history {
		if !req.StartDate.IsZero() && tx.TransactionTime.Before(req.StartDate) {
			continue
		}
		if !req.EndDate.IsZero() && tx.TransactionTime.After(req.EndDate) {
			continue
		}
		inWindow = append(inWindow, tx)
	}

	result := &Result{
		TotalTransactions: len(inWindow),
		RiskDistribution:  make(map[string]int),
	}

	ruleTriggers := make(map[string]int)
	var totalScore float64
	comparison := &ComparisonSummary{}
	var scoreDiffSum float64
	var scoreDiffCount int

	for _, tx := range inWindow {
		velocity := velocityAsOf(history, tx)

		ruleResult := s.rules.Evaluate(tx, user, behaviorProfile, velocity)
		modelResult := s.model.Score(ctx, tx, behaviorProfile, velocity, ruleResult)
		dec := s.decider.DecidePre(ruleResult, modelResult)

		result.ProcessedCount++
		totalScore += dec.FraudScore
		result.RiskDistribution[dec.RiskLevel]++
		for _, ruleID := range dec.TriggeredRules {
			ruleTriggers[ruleID]++
		}

		txResult := TransactionResult{
			TransactionID:      tx.ID,
			OriginalFraudScore: tx.FraudScore,
			BacktestFraudScore: dec.FraudScore,
			OriginalStatus:     tx.Status,
			BacktestStatus:     dec.Status,
			TriggeredRules:     dec.TriggeredRules,
			ScoreDiff:          dec.FraudScore - tx.FraudScore,
		}
		result.TransactionResults = append(result.TransactionResults, txResult)

		if tx.Status == dec.Status {
			comparison.MatchingStatus++
		} else {
			comparison.DifferentStatus++
			if txResult.ScoreDiff > 0 {
				comparison.UpgradedRisk++
			} else {
				comparison.DowngradedRisk++
			}
		}
		scoreDiffSum += absFloat(txResult.ScoreDiff)
		scoreDiffCount++
	}

	if result.ProcessedCount > 0 {
		result.AverageFraudScore = totalScore / float64(result.ProcessedCount)
	}
	if scoreDiffCount > 0 {
		comparison.AvgScoreDifference = scoreDiffSum / float64(scoreDiffCount)
		result.Comparison = comparison
	}

	for ruleID, count := range ruleTriggers {
		result.TopTriggeredRules = append(result.TopTriggeredRules, RuleCount{RuleID: ruleID, Count: count})
	}
	sort.Slice(result.TopTriggeredRules, func(i, j int) bool {
		return result.TopTriggeredRules[i].Count > result.TopTriggeredRules[j].Count
	})
	if len(result.TopTriggeredRules) > 10 {
		result.TopTriggeredRules = result.TopTriggeredRules[:10]
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	log.Info().
		Str("user_id", req.UserID.String()).
		Int("total", result.TotalTransactions).
		Int("processed", result.ProcessedCount).
		Float64("avg_fraud_score", result.AverageFraudScore).
		Int64("processing_ms", result.ProcessingTimeMs).
		Msg("backtest completed")

	return result, nil
}

// velocityAsOf recomputes the velocity counts that would have been visible
// at tx's time, from the rest of the user's history.
func velocityAsOf(history []*models.Transaction, tx *models.Transaction) models.VelocityCounts {
	var lastHour, lastDay int
	for _, h := range history {
		if h.ID == tx.ID {
			continue
		}
		if h.TransactionTime.After(tx.TransactionTime) {
			continue
		}
		age := tx.TransactionTime.Sub(h.TransactionTime)
		if age <= time.Hour {
			lastHour++
		}
		if age <= 24*time.Hour {
			lastDay++
		}
	}
	return models.VelocityCounts{LastHour: lastHour, LastDay: lastDay}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
