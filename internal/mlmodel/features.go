package mlmodel

import (
	"math"

	"github.com/enterprise/fraudscore/internal/models"
)

const maxAmountForLog = 100000.0

// ExtractFeatures builds the fixed 20-dimensional feature vector the
// default network consumes, and any pluggable ModelScorer implementation
// must accept.
func ExtractFeatures(tx *models.Transaction, behavior *models.UserBehavior, velocity models.VelocityCounts, rules models.RuleResult) models.FeatureVector {
	var f models.FeatureVector

	f[0] = clamp01(math.Log1p(tx.Amount) / math.Log(maxAmountForLog))

	if behavior != nil && behavior.AvgAmount > 0 {
		f[1] = tx.Amount / behavior.AvgAmount
	} else {
		f[1] = 1
	}

	f[2] = float64(tx.TransactionTime.Hour()) / 24
	f[3] = float64(tx.TransactionTime.Weekday()) / 7
	f[4] = boolFeature(rules.UnusualTime)
	f[5] = clamp01(float64(velocity.LastHour) / 10)
	f[6] = clamp01(float64(velocity.LastDay) / 50)
	f[7] = tx.VelocityScore
	f[8] = boolFeature(rules.UnusualLocation)
	f[9] = (tx.Location.Latitude + 180) / 360
	f[10] = (tx.Location.Longitude + 180) / 360
	f[11] = boolFeature(rules.UnusualDevice)
	f[12] = boolFeature(tx.Device.Type == "MOBILE")
	f[13] = boolFeature(tx.TransactionType == models.TransactionTypeQRCode)
	f[14] = boolFeature(tx.TransactionType == models.TransactionTypeUPI)

	if behavior != nil {
		f[15] = behavior.ConsistencyScore
	} else {
		f[15] = 0.5
	}

	if behavior != nil {
		f[16] = clamp01(float64(behavior.FailedAttempts) / 10)
		f[17] = clamp01(float64(behavior.Chargebacks) / 5)
	}

	if tx.TimeSinceLastTransaction > 0 {
		f[18] = clamp01(tx.TimeSinceLastTransaction / 86400)
	} else {
		f[18] = 1
	}

	f[19] = boolFeature(tx.MerchantCategory != "")

	return f
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
