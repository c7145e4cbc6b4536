// Package feedback applies the side effects of a Decision: transaction
// fraud fields, alert creation, trust score adjustment, and account locks.
package feedback

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/internal/models"
	"github.com/enterprise/fraudscore/internal/store"
)

const alertThreshold = 0.4

// Applier applies FeedbackApplier side effects. Trust-score, fraud-counter,
// and lock-flag updates go through the Store's row-locked update so two
// concurrent decisions for the same user, even from different server
// instances, cannot interleave reads/writes of those fields.
type Applier struct {
	store store.Store
}

// New creates a FeedbackApplier backed by the given Store.
func New(s store.Store) *Applier {
	return &Applier{store: s}
}

// Apply writes the decision's effects for a pre-transaction (authorization)
// decision.
func (a *Applier) Apply(ctx context.Context, tx *models.Transaction, user *models.User, dec models.Decision) error {
	return a.apply(ctx, tx, user, dec, false)
}

// ApplyPost writes the decision's effects for a post-transaction
// (re-verification) decision, which can additionally lock the account.
func (a *Applier) ApplyPost(ctx context.Context, tx *models.Transaction, user *models.User, dec models.Decision) error {
	return a.apply(ctx, tx, user, dec, true)
}

func (a *Applier) apply(ctx context.Context, tx *models.Transaction, user *models.User, dec models.Decision, post bool) error {
	// Idempotency: if tx already carries this exact decision's fraud status
	// and score, a prior call already ran steps 2-4 for it. This catches the
	// sub-alertThreshold case too, where no FraudAlert is ever created and
	// so its absence can't be used as the repeat-call signal.
	previousFraudStatus := tx.FraudStatus
	previousFraudScore := tx.FraudScore
	alreadyApplied := previousFraudStatus != "" && previousFraudStatus == dec.FraudStatus && previousFraudScore == dec.FraudScore

	// 1. Write fraud fields into the transaction.
	tx.FraudScore = dec.FraudScore
	tx.FraudStatus = dec.FraudStatus
	tx.FraudReason = dec.PrimaryReason
	if dec.Status != "" {
		tx.Status = dec.Status
	}
	tx.UnusualAmount = dec.Flags.UnusualAmount
	tx.UnusualTime = dec.Flags.UnusualTime
	tx.UnusualLocation = dec.Flags.UnusualLocation
	tx.UnusualDevice = dec.Flags.UnusualDevice

	if err := a.store.SaveTransaction(ctx, tx); err != nil {
		log.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("feedback: failed to persist transaction")
		return err
	}

	if alreadyApplied {
		return nil
	}

	// An alert already present for this transaction means a prior
	// application of this decision already ran steps 2-4.
	existing, err := a.store.FindAlertByTransactionID(ctx, tx.ID)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("feedback: failed to check existing alert")
	}
	if existing != nil {
		return nil
	}

	// 2. Emit an alert if warranted. Failure here does not roll back the
	// transaction write above.
	if dec.FraudScore >= alertThreshold {
		alert := buildAlert(tx, dec)
		if err := a.store.SaveFraudAlert(ctx, alert); err != nil {
			log.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("feedback: failed to save alert")
		}
	}

	if user == nil {
		return nil
	}

	// 3 & 4. Adjust trust score, fraud counter, and lock state under the
	// user row's lock so concurrent decisions for the same user never
	// interleave.
	err = a.store.UpdateUserLocked(ctx, user.ID, func(locked *models.User) error {
		applyTrustDelta(locked, dec.FraudScore)
		if post && dec.FraudScore >= 0.9 {
			locked.AccountLocked = true
			locked.Enabled = false
		}
		*user = *locked
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("feedback: failed to persist user")
	}

	return nil
}

func applyTrustDelta(user *models.User, fraudScore float64) {
	switch {
	case fraudScore >= 0.7:
		user.TrustScore -= 20
		user.FraudCount++
	case fraudScore >= 0.4:
		user.TrustScore -= 5
	default:
		user.TrustScore += 0.5
	}
}

func buildAlert(tx *models.Transaction, dec models.Decision) *models.FraudAlert {
	severity, action := severityBand(dec.FraudScore)
	return &models.FraudAlert{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		AlertType:     dec.DetectionMethod,
		Severity:      severity,
		FraudScore:    dec.FraudScore,
		Reason:        dec.PrimaryReason,
		RulesFired:    models.StringSet(dec.TriggeredRules),
		Action:        action,
	}
}

func severityBand(fraudScore float64) (severity, action string) {
	switch {
	case fraudScore >= 0.9:
		return models.AlertSeverityCritical, models.AlertActionBlock
	case fraudScore >= 0.7:
		return models.AlertSeverityHigh, models.AlertActionReview
	case fraudScore >= 0.5:
		return models.AlertSeverityMedium, models.AlertActionReview
	default:
		return models.AlertSeverityLow, models.AlertActionAllowWithWarning
	}
}
