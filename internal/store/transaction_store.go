package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enterprise/fraudscore/internal/models"
)

func (s *PostgresStore) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	row := s.db.Pool.QueryRow(ctx, transactionSelect+` WHERE id = $1`, id)
	return scanOneTransaction(row)
}

func (s *PostgresStore) FindByUserIDOrderByTimeDesc(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	query := transactionSelect + ` WHERE user_id = $1 ORDER BY transaction_time DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *PostgresStore) FindMostRecentByQRCodeID(ctx context.Context, userID uuid.UUID, qrCodeID string) (*models.Transaction, error) {
	row := s.db.Pool.QueryRow(ctx, transactionSelect+
		` WHERE user_id = $1 AND qr_code_id = $2 ORDER BY transaction_time DESC LIMIT 1`, userID, qrCodeID)
	return scanOneTransaction(row)
}

func (s *PostgresStore) CountTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := s.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND transaction_time >= $2`,
		userID, since).Scan(&count)
	return count, err
}

func (s *PostgresStore) FindDistinctDevicesByUserID(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT DISTINCT device->>'id' FROM transactions WHERE user_id = $1 AND device->>'id' IS NOT NULL`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (s *PostgresStore) FindDistinctCountriesByUserID(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT DISTINCT location->>'country' FROM transactions WHERE user_id = $1 AND location->>'country' IS NOT NULL`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (s *PostgresStore) CountFraudulentTransactions(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND fraud_status = $2`,
		userID, models.FraudStatusFraud).Scan(&count)
	return count, err
}

// SaveTransaction upserts a transaction, inserting when ID is unset and
// updating the mutable scoring fields otherwise.
func (s *PostgresStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	now := time.Now()
	tx.UpdatedAt = now

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
		tx.CreatedAt = now
		query := `INSERT INTO transactions (
			id, user_id, amount, currency, transaction_type, transaction_time,
			merchant, merchant_category, location, device, qr_code_id,
			status, fraud_status, fraud_score, fraud_reason,
			time_since_last_transaction, transactions_in_last_hour, transactions_in_last_day,
			avg_transaction_amount, unusual_amount, unusual_time, unusual_location, unusual_device,
			velocity_score, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`
		_, err := s.db.Pool.Exec(ctx, query,
			tx.ID, tx.UserID, tx.Amount, tx.Currency, tx.TransactionType, tx.TransactionTime,
			tx.Merchant, tx.MerchantCategory, tx.Location, tx.Device, nullIfEmpty(tx.QRCodeID),
			tx.Status, tx.FraudStatus, tx.FraudScore, tx.FraudReason,
			tx.TimeSinceLastTransaction, tx.TransactionsInLastHour, tx.TransactionsInLastDay,
			tx.AvgTransactionAmount, tx.UnusualAmount, tx.UnusualTime, tx.UnusualLocation, tx.UnusualDevice,
			tx.VelocityScore, tx.CreatedAt, tx.UpdatedAt,
		)
		return err
	}

	query := `UPDATE transactions SET
		status=$2, fraud_status=$3, fraud_score=$4, fraud_reason=$5,
		time_since_last_transaction=$6, transactions_in_last_hour=$7, transactions_in_last_day=$8,
		avg_transaction_amount=$9, unusual_amount=$10, unusual_time=$11, unusual_location=$12,
		unusual_device=$13, velocity_score=$14, updated_at=$15
		WHERE id=$1`
	_, err := s.db.Pool.Exec(ctx, query,
		tx.ID, tx.Status, tx.FraudStatus, tx.FraudScore, tx.FraudReason,
		tx.TimeSinceLastTransaction, tx.TransactionsInLastHour, tx.TransactionsInLastDay,
		tx.AvgTransactionAmount, tx.UnusualAmount, tx.UnusualTime, tx.UnusualLocation,
		tx.UnusualDevice, tx.VelocityScore, tx.UpdatedAt,
	)
	return err
}

const transactionSelect = `SELECT id, user_id, amount, currency, transaction_type, transaction_time,
	merchant, merchant_category, location, device, qr_code_id,
	status, fraud_status, fraud_score, fraud_reason,
	time_since_last_transaction, transactions_in_last_hour, transactions_in_last_day,
	avg_transaction_amount, unusual_amount, unusual_time, unusual_location, unusual_device,
	velocity_score, created_at, updated_at
	FROM transactions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransactionRow(row rowScanner, tx *models.Transaction) error {
	var qrCodeID *string
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.Amount, &tx.Currency, &tx.TransactionType, &tx.TransactionTime,
		&tx.Merchant, &tx.MerchantCategory, &tx.Location, &tx.Device, &qrCodeID,
		&tx.Status, &tx.FraudStatus, &tx.FraudScore, &tx.FraudReason,
		&tx.TimeSinceLastTransaction, &tx.TransactionsInLastHour, &tx.TransactionsInLastDay,
		&tx.AvgTransactionAmount, &tx.UnusualAmount, &tx.UnusualTime, &tx.UnusualLocation, &tx.UnusualDevice,
		&tx.VelocityScore, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if qrCodeID != nil {
		tx.QRCodeID = *qrCodeID
	}
	return nil
}

func scanOneTransaction(row pgx.Row) (*models.Transaction, error) {
	tx := &models.Transaction{}
	if err := scanTransactionRow(row, tx); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return tx, nil
}

func scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for rows.Next() {
		tx := &models.Transaction{}
		if err := scanTransactionRow(rows, tx); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
