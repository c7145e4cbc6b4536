// Package review is the human-in-the-loop surface over FraudAlert: analysts
// list unreviewed alerts and record whether they confirmed fraud.
package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise/fraudscore/internal/models"
)

// ErrAlertNotFound is returned when the referenced alert does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// AlertStore is the subset of store.Store the review service needs, plus
// the out-of-core SaveAlertReview mutation.
type AlertStore interface {
	FindAlertByID(ctx context.Context, id uuid.UUID) (*models.FraudAlert, error)
	FindAlertsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.FraudAlert, error)
	FindUnreviewedAlerts(ctx context.Context, limit int) ([]*models.FraudAlert, error)
	SaveAlertReview(ctx context.Context, alert *models.FraudAlert) error
}

// Service is the alert review service.
type Service struct {
	store AlertStore
}

// New creates a review Service backed by the given AlertStore.
func New(s AlertStore) *Service {
	return &Service{store: s}
}

// ReviewDecision is an analyst's verdict on an alert.
type ReviewDecision struct {
	ReviewedBy     string
	ConfirmedFraud bool
}

// Pending returns up to limit unreviewed alerts, most recent first.
func (s *Service) Pending(ctx context.Context, limit int) ([]*models.FraudAlert, error) {
	return s.store.FindUnreviewedAlerts(ctx, limit)
}

// ForUser returns a user's alert history.
func (s *Service) ForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.FraudAlert, error) {
	return s.store.FindAlertsByUserID(ctx, userID, limit)
}

// Review records an analyst's decision on an alert.
func (s *Service) Review(ctx context.Context, alertID uuid.UUID, decision ReviewDecision) (*models.FraudAlert, error) {
	alert, err := s.store.FindAlertByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}

	now := time.Now()
	alert.Reviewed = true
	alert.ReviewedBy = decision.ReviewedBy
	alert.ReviewedAt = &now
	alert.ConfirmedFraud = decision.ConfirmedFraud

	if err := s.store.SaveAlertReview(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}
