// Package decision combines rule and model scores into a single terminal
// decision for a transaction.
package decision

import (
	"github.com/enterprise/fraudscore/internal/models"
)

const (
	modelWeight = 0.6
	ruleWeight  = 0.4

	bandCritical = 0.9
	bandHigh     = 0.7
	bandMedium   = 0.4
)

// Decider combines a RuleEngine and ModelScorer result into a terminal
// Decision.
type Decider struct{}

// New creates a Decider. It holds no state; combination is a pure function
// of its inputs.
func New() *Decider {
	return &Decider{}
}

// ErrorDecision is returned whenever the scoring pipeline fails anywhere
// upstream of the Decider.
func ErrorDecision() models.Decision {
	return models.Decision{
		FraudScore:      0.5,
		RiskLevel:       models.RiskLevelMedium,
		Status:          models.TransactionStatusUnknown,
		Recommendation:  models.RecommendationReview,
		DetectionMethod: models.DetectionMethodError,
		PrimaryReason:   "Transaction could not be scored",
	}
}

// DecidePre combines scores for the pre-transaction (authorization) path.
// It never returns a BLOCKED status — that status is reserved for
// post-transaction re-verification.
func (d *Decider) DecidePre(ruleResult models.RuleResult, modelResult models.ModelResult) models.Decision {
	dec := d.combine(ruleResult, modelResult)

	switch {
	case dec.FraudScore >= bandHigh:
		dec.Status = models.TransactionStatusDeclined
	case dec.FraudScore >= bandMedium:
		dec.Status = models.TransactionStatusReview
	default:
		dec.Status = models.TransactionStatusApproved
	}

	return dec
}

// DecidePost combines scores for the post-transaction (re-verification)
// path, which can additionally hold or block. Below the high band the
// transaction's status is left as-is (empty Status here means "keep");
// only the fraud status is refreshed.
func (d *Decider) DecidePost(ruleResult models.RuleResult, modelResult models.ModelResult) models.Decision {
	dec := d.combine(ruleResult, modelResult)

	switch {
	case dec.FraudScore >= bandCritical:
		dec.Status = models.TransactionStatusBlocked
	case dec.FraudScore >= bandHigh:
		dec.Status = models.TransactionStatusHold
	case dec.FraudScore >= bandMedium:
		dec.FraudStatus = models.FraudStatusSuspicious
	default:
		dec.FraudStatus = models.FraudStatusSafe
	}

	return dec
}

func (d *Decider) combine(ruleResult models.RuleResult, modelResult models.ModelResult) models.Decision {
	fraudScore := modelWeight*modelResult.FraudProbability + ruleWeight*ruleResult.RuleScore

	dec := models.Decision{
		FraudScore:      fraudScore,
		RuleScore:       ruleResult.RuleScore,
		ModelScore:      modelResult.FraudProbability,
		DetectionMethod: detectionMethod(modelResult),
		TriggeredRules:  ruleResult.TriggeredRules,
		Flags:           ruleResult,
		PrimaryReason:   primaryReason(ruleResult, modelResult),
	}

	switch {
	case fraudScore >= bandCritical:
		dec.RiskLevel = models.RiskLevelCritical
		dec.FraudStatus = models.FraudStatusFraud
		dec.Recommendation = models.RecommendationDecline
	case fraudScore >= bandHigh:
		dec.RiskLevel = models.RiskLevelHigh
		dec.FraudStatus = models.FraudStatusFraud
		dec.Recommendation = models.RecommendationDecline
	case fraudScore >= bandMedium:
		dec.RiskLevel = models.RiskLevelMedium
		dec.FraudStatus = models.FraudStatusSuspicious
		dec.Recommendation = models.RecommendationReview
	default:
		dec.RiskLevel = models.RiskLevelLow
		dec.FraudStatus = models.FraudStatusSafe
		dec.Recommendation = models.RecommendationApprove
	}

	return dec
}

func detectionMethod(modelResult models.ModelResult) string {
	if modelResult.Method == models.DetectionMethodRule {
		return models.DetectionMethodRule
	}
	return models.DetectionMethodHybrid
}

func primaryReason(ruleResult models.RuleResult, modelResult models.ModelResult) string {
	if len(ruleResult.Reasons) > 0 {
		return ruleResult.Reasons[0]
	}
	if modelResult.FraudProbability >= bandHigh {
		return "ML model detected suspicious patterns"
	}
	return "Transaction appears normal"
}
