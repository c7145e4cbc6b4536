// Package rules implements the deterministic fraud rule engine: a pure
// function of (transaction, user, behavior profile, velocity counts) that
// never touches the Store itself.
package rules

import (
	"math"
	"time"

	"github.com/enterprise/fraudscore/internal/models"
)

// Config holds the tunable thresholds the rule set reads.
type Config struct {
	MaxTransactionAmount float64
	MaxTransactionsPerHour int
	MaxTransactionsPerDay  int
}

// DefaultConfig returns the thresholds named in the rule table.
func DefaultConfig() Config {
	return Config{
		MaxTransactionAmount:   10000,
		MaxTransactionsPerHour: 10,
		MaxTransactionsPerDay:  50,
	}
}

// rule is one entry of the fixed, ordered rule table. fire returns whether
// the rule's condition holds, and it is evaluated with access to the whole
// scoring context so weight and ID stay co-located with the predicate.
type rule struct {
	id     string
	weight float64
	fire   func(ctx *evalContext) bool
	reason func(ctx *evalContext) string
}

type evalContext struct {
	tx       *models.Transaction
	user     *models.User
	behavior *models.UserBehavior
	velocity models.VelocityCounts
	cfg      Config
}

// Engine evaluates the fixed rule set in the order below — this order is
// also the order rule IDs appear in triggeredRules, independent of which
// rule happened to be evaluated first internally.
type Engine struct {
	cfg   Config
	rules []rule
}

// New creates a RuleEngine with the given thresholds.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, rules: ruleTable()}
}

func ruleTable() []rule {
	return []rule{
		{
			id:     "HIGH_AMOUNT",
			weight: 0.30,
			fire: func(c *evalContext) bool {
				if c.behavior != nil && c.behavior.AvgAmount > 0 {
					stdDev := c.behavior.StdDev
					if stdDev == 0 {
						stdDev = c.behavior.AvgAmount * 0.5
					}
					return c.tx.Amount > c.behavior.AvgAmount+3*stdDev
				}
				return c.tx.Amount > 5000
			},
			reason: func(c *evalContext) string { return "Transaction amount significantly exceeds usual spending pattern" },
		},
		{
			id:     "HIGH_VELOCITY",
			weight: 0.25,
			fire: func(c *evalContext) bool {
				return c.velocity.LastHour > c.cfg.MaxTransactionsPerHour || c.velocity.LastDay > c.cfg.MaxTransactionsPerDay
			},
			reason: func(c *evalContext) string { return "Unusually high number of recent transactions" },
		},
		{
			id:     "UNUSUAL_TIME",
			weight: 0.15,
			fire: func(c *evalContext) bool {
				h := c.tx.TransactionTime.Hour()
				return h >= 2 && h < 6
			},
			reason: func(c *evalContext) string { return "Transaction occurred during an unusual hour" },
		},
		{
			id:     "UNUSUAL_LOCATION",
			weight: 0.20,
			fire: func(c *evalContext) bool {
				if c.tx.Location.Country == "" || c.behavior == nil {
					return false
				}
				return !contains(c.behavior.FrequentCountries, c.tx.Location.Country)
			},
			reason: func(c *evalContext) string { return "Transaction originated from an unfamiliar location" },
		},
		{
			id:     "NEW_DEVICE",
			weight: 0.15,
			fire: func(c *evalContext) bool {
				if c.tx.Device.ID == "" || c.behavior == nil {
					return false
				}
				return !contains(c.behavior.KnownDevices, c.tx.Device.ID)
			},
			reason: func(c *evalContext) string { return "Transaction made from a previously unseen device" },
		},
		{
			id:     "LOW_TRUST_SCORE",
			weight: 0.20,
			fire: func(c *evalContext) bool {
				return c.user != nil && c.user.TrustScore < 50
			},
			reason: func(c *evalContext) string { return "User has a low trust score" },
		},
		{
			id:     "NEW_ACCOUNT",
			weight: 0.10,
			fire: func(c *evalContext) bool {
				if c.user == nil {
					return false
				}
				return c.tx.TransactionTime.Sub(c.user.RegistrationDate) <= 7*24*time.Hour
			},
			reason: func(c *evalContext) string { return "Account was registered recently" },
		},
		{
			id:     "MULTIPLE_FAILED_ATTEMPTS",
			weight: 0.15,
			fire: func(c *evalContext) bool {
				return c.behavior != nil && c.behavior.FailedAttempts > 3
			},
			reason: func(c *evalContext) string { return "User has multiple recent failed attempts" },
		},
		{
			id:     "ROUND_AMOUNT",
			weight: 0.05,
			fire: func(c *evalContext) bool {
				if c.tx.Amount < 500 {
					return false
				}
				amountCents := int64(math.Round(c.tx.Amount))
				return amountCents%1000 == 0 || amountCents%500 == 0
			},
			reason: func(c *evalContext) string { return "Transaction amount is a suspiciously round number" },
		},
		{
			id:     "AMOUNT_LIMIT_EXCEEDED",
			weight: 0.40,
			fire: func(c *evalContext) bool {
				return c.tx.Amount > c.cfg.MaxTransactionAmount
			},
			reason: func(c *evalContext) string { return "Transaction amount exceeds the configured limit" },
		},
	}
}

func contains(set models.StringSet, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

// Evaluate is the RuleEngine's pure scoring function.
func (e *Engine) Evaluate(tx *models.Transaction, user *models.User, behavior *models.UserBehavior, velocity models.VelocityCounts) models.RuleResult {
	ctx := &evalContext{tx: tx, user: user, behavior: behavior, velocity: velocity, cfg: e.cfg}

	var sum float64
	var triggered []string
	var reasons []string
	result := models.RuleResult{}

	for _, r := range e.rules {
		if !r.fire(ctx) {
			continue
		}
		sum += r.weight
		triggered = append(triggered, r.id)
		reasons = append(reasons, r.reason(ctx))

		switch r.id {
		case "HIGH_AMOUNT":
			result.UnusualAmount = true
		case "UNUSUAL_TIME":
			result.UnusualTime = true
		case "UNUSUAL_LOCATION":
			result.UnusualLocation = true
		case "NEW_DEVICE":
			result.UnusualDevice = true
			result.NewDevice = true
		case "HIGH_VELOCITY":
			result.HighVelocity = true
		}
	}

	if sum > 1 {
		sum = 1
	}

	result.RuleScore = sum
	result.TriggeredRules = triggered
	result.Reasons = reasons
	result.IsFraud = sum >= 0.7
	return result
}

// BehaviorDeviation is the normalized distance of the transaction amount
// from the user's mean spend, exposed for diagnostics and feature
// extraction alongside rule evaluation.
func BehaviorDeviation(tx *models.Transaction, behavior *models.UserBehavior) float64 {
	if behavior == nil || behavior.StdDev == 0 {
		return 0
	}
	return math.Abs(tx.Amount-behavior.AvgAmount) / behavior.StdDev
}
