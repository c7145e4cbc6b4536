// Package coordinator is the transaction-processing entry point: it loads
// inputs, runs enrichment, invokes the RuleEngine and ModelScorer, calls the
// Decider, persists results through the FeedbackApplier, and schedules
// asynchronous behavior re-aggregation.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/internal/decision"
	"github.com/enterprise/fraudscore/internal/feedback"
	"github.com/enterprise/fraudscore/internal/mlmodel"
	"github.com/enterprise/fraudscore/internal/models"
	"github.com/enterprise/fraudscore/internal/rules"
	"github.com/enterprise/fraudscore/internal/store"
)

// modelScoreTimeout is the ModelScorer's soft time budget. If it is
// exceeded the Coordinator proceeds with rule-only scoring.
const modelScoreTimeout = 200 * time.Millisecond

var (
	// ErrValidation signals a malformed request caught before the pipeline runs.
	ErrValidation = errors.New("validation failed")
	// ErrUserNotFound signals the requesting user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// TransactionRequest is the inbound request to score a new transaction.
type TransactionRequest struct {
	UserID           uuid.UUID
	Amount           float64
	Currency         string
	TransactionType  string
	Merchant         string
	MerchantCategory string
	Location         models.Location
	Device           models.Device
	QRCodeID         string
}

// BehaviorAnalysis mirrors the rule engine's flags in the response surface.
type BehaviorAnalysis struct {
	UnusualAmount        bool
	UnusualTime          bool
	UnusualLocation      bool
	UnusualDevice        bool
	HighVelocity         bool
	DeviationFromNormal  float64
}

// FraudAnalysis is the diagnostic detail attached to a TransactionResponse.
type FraudAnalysis struct {
	MLScore          float64
	RuleBasedScore   float64
	RiskLevel        string
	TriggeredRules   []string
	Recommendation   string
	BehaviorAnalysis BehaviorAnalysis
}

// TransactionResponse is the Coordinator's synchronous reply.
type TransactionResponse struct {
	TransactionID uuid.UUID
	UserID        uuid.UUID
	Amount        float64
	Currency      string
	Type          string
	Status        string
	FraudStatus   string
	FraudScore    float64
	FraudReason   string
	Approved      bool
	Message       string
	Time          time.Time
	FraudAnalysis FraudAnalysis
}

// Coordinator wires the Store, RuleEngine, ModelScorer, Decider, and
// FeedbackApplier into the end-to-end scoring pipeline.
type Coordinator struct {
	store      store.Store
	rules      *rules.Engine
	model      mlmodel.Scorer
	decider    *decision.Decider
	feedback   *feedback.Applier
	aggregator AggregationScheduler
}

// New creates a Coordinator from its component dependencies.
func New(s store.Store, ruleEngine *rules.Engine, model mlmodel.Scorer, decider *decision.Decider, applier *feedback.Applier, aggregator AggregationScheduler) *Coordinator {
	return &Coordinator{
		store:      s,
		rules:      ruleEngine,
		model:      model,
		decider:    decider,
		feedback:   applier,
		aggregator: aggregator,
	}
}

// ProcessTransaction is the synchronous, pre-transaction scoring entry point.
func (c *Coordinator) ProcessTransaction(ctx context.Context, req TransactionRequest) (*TransactionResponse, error) {
	if req.Amount <= 0 {
		return nil, ErrValidation
	}

	user, err := c.store.FindUserByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if user.AccountLocked {
		return &TransactionResponse{
			UserID:      user.ID,
			Amount:      req.Amount,
			Currency:    req.Currency,
			Type:        req.TransactionType,
			Status:      models.TransactionStatusDeclined,
			FraudReason: "Account is locked",
			Approved:    false,
			Message:     "Account is locked",
			Time:        time.Now(),
		}, nil
	}

	tx := &models.Transaction{
		UserID:           user.ID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		TransactionType:  req.TransactionType,
		TransactionTime:  time.Now(),
		Merchant:         req.Merchant,
		MerchantCategory: req.MerchantCategory,
		Location:         req.Location,
		Device:           req.Device,
		QRCodeID:         req.QRCodeID,
		Status:           models.TransactionStatusPending,
		FraudStatus:      models.FraudStatusUnknown,
	}

	dec, behaviorProfile, err := c.scoreAndDecide(ctx, tx, user, false)
	if err != nil {
		return c.errorResponse(tx, err), nil
	}

	response := c.buildResponse(tx, dec, behaviorProfile)

	c.aggregator.Schedule(user.ID)

	return response, nil
}

// VerifyQRTransaction locates the user's most recent transaction matching
// qrCodeID and re-scores it in post-transaction mode.
func (c *Coordinator) VerifyQRTransaction(ctx context.Context, userID uuid.UUID, qrCodeID string) (*TransactionResponse, error) {
	tx, err := c.store.FindMostRecentByQRCodeID(ctx, userID, qrCodeID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrValidation
	}

	user, err := c.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	dec, behaviorProfile, err := c.scoreAndDecide(ctx, tx, user, true)
	if err != nil {
		return c.errorResponse(tx, err), nil
	}

	response := c.buildResponse(tx, dec, behaviorProfile)
	if user != nil {
		c.aggregator.Schedule(user.ID)
	}
	return response, nil
}

// scoreAndDecide runs enrichment, RuleEngine, ModelScorer, the Decider, and
// the FeedbackApplier for tx, persisting results along the way. It returns
// the behavior profile used for scoring so callers can surface the same
// behavioral context (e.g. BehaviorDeviation) in their response.
func (c *Coordinator) scoreAndDecide(ctx context.Context, tx *models.Transaction, user *models.User, post bool) (models.Decision, *models.UserBehavior, error) {
	behaviorProfile, velocity, err := c.enrich(ctx, tx)
	if err != nil {
		return models.Decision{}, nil, err
	}

	if !post {
		if err := c.store.SaveTransaction(ctx, tx); err != nil {
			return models.Decision{}, nil, err
		}
	}

	ruleResult := c.rules.Evaluate(tx, user, behaviorProfile, velocity)
	tx.VelocityScore = behaviorVelocityScore(behaviorProfile)

	modelResult := c.scoreWithTimeout(ctx, tx, behaviorProfile, velocity, ruleResult)

	var dec models.Decision
	if post {
		dec = c.decider.DecidePost(ruleResult, modelResult)
	} else {
		dec = c.decider.DecidePre(ruleResult, modelResult)
	}

	if post {
		err = c.feedback.ApplyPost(ctx, tx, user, dec)
	} else {
		err = c.feedback.Apply(ctx, tx, user, dec)
	}
	if err != nil {
		log.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("coordinator: feedback application failed")
	}

	return dec, behaviorProfile, nil
}

func behaviorVelocityScore(b *models.UserBehavior) float64 {
	if b == nil {
		return 0
	}
	return b.VelocityPattern
}

// scoreWithTimeout invokes the ModelScorer under a soft time budget; if it
// does not return in time the Coordinator proceeds with rule-only scoring.
func (c *Coordinator) scoreWithTimeout(ctx context.Context, tx *models.Transaction, behavior *models.UserBehavior, velocity models.VelocityCounts, ruleResult models.RuleResult) models.ModelResult {
	resultCh := make(chan models.ModelResult, 1)
	scoreCtx, cancel := context.WithTimeout(ctx, modelScoreTimeout)
	defer cancel()

	go func() {
		resultCh <- c.model.Score(scoreCtx, tx, behavior, velocity, ruleResult)
	}()

	select {
	case result := <-resultCh:
		return result
	case <-scoreCtx.Done():
		log.Warn().Str("transaction_id", tx.ID.String()).Msg("coordinator: model scorer exceeded soft time budget, falling back to rule-only")
		return models.ModelResult{FraudProbability: ruleResult.RuleScore, Method: models.DetectionMethodRule}
	}
}

// enrich loads recent history once and populates the transaction's
// enrichment fields.
func (c *Coordinator) enrich(ctx context.Context, tx *models.Transaction) (*models.UserBehavior, models.VelocityCounts, error) {
	history, err := c.store.FindByUserIDOrderByTimeDesc(ctx, tx.UserID, 200)
	if err != nil {
		return nil, models.VelocityCounts{}, err
	}

	now := tx.TransactionTime
	if now.IsZero() {
		now = time.Now()
	}

	var mostRecent *models.Transaction
	var lastHour, lastDay int
	var acceptedSum float64
	var acceptedCount int

	for _, h := range history {
		if h.ID == tx.ID {
			continue
		}
		if mostRecent == nil || h.TransactionTime.After(mostRecent.TransactionTime) {
			mostRecent = h
		}
		if now.Sub(h.TransactionTime) <= time.Hour {
			lastHour++
		}
		if now.Sub(h.TransactionTime) <= 24*time.Hour {
			lastDay++
		}
		if h.FraudStatus == models.FraudStatusSafe || h.Status == models.TransactionStatusApproved {
			acceptedSum += h.Amount
			acceptedCount++
		}
	}

	if mostRecent != nil {
		tx.TimeSinceLastTransaction = now.Sub(mostRecent.TransactionTime).Seconds()
	}
	tx.TransactionsInLastHour = lastHour
	tx.TransactionsInLastDay = lastDay

	if acceptedCount > 0 {
		tx.AvgTransactionAmount = acceptedSum / float64(acceptedCount)
	} else {
		tx.AvgTransactionAmount = tx.Amount
	}

	behaviorProfile, err := c.store.FindBehaviorByUserID(ctx, tx.UserID)
	if err != nil {
		return nil, models.VelocityCounts{}, err
	}

	velocity := models.VelocityCounts{LastHour: lastHour, LastDay: lastDay}
	return behaviorProfile, velocity, nil
}

func (c *Coordinator) errorResponse(tx *models.Transaction, err error) *TransactionResponse {
	log.Error().Err(err).Msg("coordinator: pipeline failure, applying ERROR decision")
	dec := decision.ErrorDecision()
	if applyErr := c.feedback.Apply(context.Background(), tx, nil, dec); applyErr != nil {
		log.Error().Err(applyErr).Msg("coordinator: failed to persist ERROR decision")
	}
	return c.buildResponse(tx, dec, nil)
}

func (c *Coordinator) buildResponse(tx *models.Transaction, dec models.Decision, behaviorProfile *models.UserBehavior) *TransactionResponse {
	approved := dec.Status == models.TransactionStatusApproved
	return &TransactionResponse{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Type:          tx.TransactionType,
		Status:        tx.Status,
		FraudStatus:   tx.FraudStatus,
		FraudScore:    dec.FraudScore,
		FraudReason:   dec.PrimaryReason,
		Approved:      approved,
		Message:       statusMessage(tx.Status),
		Time:          tx.TransactionTime,
		FraudAnalysis: FraudAnalysis{
			MLScore:        dec.ModelScore,
			RuleBasedScore: dec.RuleScore,
			RiskLevel:      dec.RiskLevel,
			TriggeredRules: dec.TriggeredRules,
			Recommendation: dec.Recommendation,
			BehaviorAnalysis: BehaviorAnalysis{
				UnusualAmount:       dec.Flags.UnusualAmount,
				UnusualTime:         dec.Flags.UnusualTime,
				UnusualLocation:     dec.Flags.UnusualLocation,
				UnusualDevice:       dec.Flags.UnusualDevice,
				HighVelocity:        dec.Flags.HighVelocity,
				DeviationFromNormal: rules.BehaviorDeviation(tx, behaviorProfile),
			},
		},
	}
}

func statusMessage(status string) string {
	switch status {
	case models.TransactionStatusApproved:
		return "Transaction approved"
	case models.TransactionStatusReview:
		return "Transaction flagged for manual review"
	case models.TransactionStatusHold:
		return "Transaction placed on hold pending review"
	case models.TransactionStatusDeclined:
		return "Transaction declined"
	case models.TransactionStatusBlocked:
		return "Transaction blocked, account locked"
	default:
		return "Transaction could not be scored"
	}
}
