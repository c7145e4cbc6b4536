package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enterprise/fraudscore/internal/models"
)

const alertSelect = `SELECT id, transaction_id, user_id, alert_type, severity, fraud_score, reason,
	rules_fired, ml_features, action, reviewed, reviewed_by, reviewed_at, confirmed_fraud,
	detected_at, created_at
	FROM fraud_alerts`

func scanAlertRow(row rowScanner, a *models.FraudAlert) error {
	return row.Scan(
		&a.ID, &a.TransactionID, &a.UserID, &a.AlertType, &a.Severity, &a.FraudScore, &a.Reason,
		&a.RulesFired, &a.MLFeatures, &a.Action, &a.Reviewed, &a.ReviewedBy, &a.ReviewedAt, &a.ConfirmedFraud,
		&a.DetectedAt, &a.CreatedAt,
	)
}

// SaveFraudAlert inserts a new alert, or is a no-op if one already exists for
// this transaction — alerts are keyed on transactionId so re-applying the
// same decision never double-creates one.
func (s *PostgresStore) SaveFraudAlert(ctx context.Context, a *models.FraudAlert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.DetectedAt.IsZero() {
		a.DetectedAt = time.Now()
	}
	a.CreatedAt = time.Now()

	query := `INSERT INTO fraud_alerts (
		id, transaction_id, user_id, alert_type, severity, fraud_score, reason,
		rules_fired, ml_features, action, reviewed, reviewed_by, reviewed_at, confirmed_fraud,
		detected_at, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	ON CONFLICT (transaction_id) DO NOTHING`
	_, err := s.db.Pool.Exec(ctx, query,
		a.ID, a.TransactionID, a.UserID, a.AlertType, a.Severity, a.FraudScore, a.Reason,
		a.RulesFired, a.MLFeatures, a.Action, a.Reviewed, a.ReviewedBy, a.ReviewedAt, a.ConfirmedFraud,
		a.DetectedAt, a.CreatedAt,
	)
	return err
}

func (s *PostgresStore) FindAlertByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.FraudAlert, error) {
	row := s.db.Pool.QueryRow(ctx, alertSelect+` WHERE transaction_id = $1`, transactionID)
	a := &models.FraudAlert{}
	if err := scanAlertRow(row, a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) FindAlertByID(ctx context.Context, id uuid.UUID) (*models.FraudAlert, error) {
	row := s.db.Pool.QueryRow(ctx, alertSelect+` WHERE id = $1`, id)
	a := &models.FraudAlert{}
	if err := scanAlertRow(row, a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) FindAlertsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.FraudAlert, error) {
	rows, err := s.db.Pool.Query(ctx, alertSelect+` WHERE user_id = $1 ORDER BY detected_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *PostgresStore) FindUnreviewedAlerts(ctx context.Context, limit int) ([]*models.FraudAlert, error) {
	rows, err := s.db.Pool.Query(ctx, alertSelect+` WHERE reviewed = false ORDER BY detected_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// SaveAlertReview persists the (out-of-core) alert review endpoint's
// mutation of reviewed/confirmedFraud fields.
func (s *PostgresStore) SaveAlertReview(ctx context.Context, a *models.FraudAlert) error {
	query := `UPDATE fraud_alerts SET reviewed=$2, reviewed_by=$3, reviewed_at=$4, confirmed_fraud=$5 WHERE id=$1`
	_, err := s.db.Pool.Exec(ctx, query, a.ID, a.Reviewed, a.ReviewedBy, a.ReviewedAt, a.ConfirmedFraud)
	return err
}

func scanAlerts(rows pgx.Rows) ([]*models.FraudAlert, error) {
	var out []*models.FraudAlert
	for rows.Next() {
		a := &models.FraudAlert{}
		if err := scanAlertRow(rows, a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
