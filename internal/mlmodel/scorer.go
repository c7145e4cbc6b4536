package mlmodel

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/internal/models"
)

// neutralScore is returned whenever the scorer cannot produce a real
// result; it is interpreted as "no opinion" by the Decider.
const neutralScore = 0.5

// Scorer is the pluggable ModelScorer contract: any deterministic function
// of the feature vector satisfies it. The default implementation wraps a
// feed-forward Network; test doubles can substitute a fixed function.
type Scorer interface {
	Score(ctx context.Context, tx *models.Transaction, behavior *models.UserBehavior, velocity models.VelocityCounts, rules models.RuleResult) models.ModelResult
	Fit(features []models.FeatureVector, labels []float64) error
}

// NetworkScorer is the default Scorer backed by a two-hidden-layer
// feed-forward network.
type NetworkScorer struct {
	net      *Network
	modelPath string
}

// NewNetworkScorer loads a persisted network from modelPath, falling back
// to a freshly initialized one when absent or unreadable.
func NewNetworkScorer(modelPath string) *NetworkScorer {
	net, err := LoadNetwork(modelPath)
	if err != nil {
		log.Info().Str("path", modelPath).Msg("mlmodel: no persisted model found, initializing fresh network")
		net = NewNetwork()
	}
	return &NetworkScorer{net: net, modelPath: modelPath}
}

// Score computes the fraud probability for a transaction. On any internal
// failure it returns the neutral 0.5 score rather than propagating an
// error, per the ModelScorer contract.
func (s *NetworkScorer) Score(ctx context.Context, tx *models.Transaction, behavior *models.UserBehavior, velocity models.VelocityCounts, rules models.RuleResult) (result models.ModelResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("mlmodel: recovered from scoring failure")
			result = NeutralResult()
		}
	}()

	features := ExtractFeatures(tx, behavior, velocity, rules)
	prob := s.net.Forward(features)
	return models.ModelResult{FraudProbability: prob, Method: models.DetectionMethodModel}
}

// Fit is an optional training hook; the default network does not learn
// on-line, so this is a safe no-op that preserves the scoring contract.
func (s *NetworkScorer) Fit(features []models.FeatureVector, labels []float64) error {
	return nil
}

// Persist writes the current network weights to the configured model path.
func (s *NetworkScorer) Persist() error {
	return s.net.Save(s.modelPath)
}

// NeutralResult is the fallback Score returns when it recovers from an
// internal failure.
func NeutralResult() models.ModelResult {
	return models.ModelResult{FraudProbability: neutralScore, Method: models.DetectionMethodRule}
}
