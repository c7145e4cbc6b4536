package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enterprise/fraudscore/internal/models"
)

// PostgresStore implements Store against a PostgreSQL database.
type PostgresStore struct {
	db *Database
}

// NewPostgresStore creates a Store backed by the given database pool.
func NewPostgresStore(db *Database) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(ctx, `SELECT id, email, phone_number, name, password_hash, trust_score,
		account_locked, enabled, total_transactions, fraud_count, registration_date, created_at, updated_at
		FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(ctx, `SELECT id, email, phone_number, name, password_hash, trust_score,
		account_locked, enabled, total_transactions, fraud_count, registration_date, created_at, updated_at
		FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) FindUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.scanUser(ctx, `SELECT id, email, phone_number, name, password_hash, trust_score,
		account_locked, enabled, total_transactions, fraud_count, registration_date, created_at, updated_at
		FROM users WHERE phone_number = $1`, phone)
}

func (s *PostgresStore) scanUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	u := &models.User{}
	err := s.db.Pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PhoneNumber, &u.Name, &u.PasswordHash, &u.TrustScore,
		&u.AccountLocked, &u.Enabled, &u.TotalTransactions, &u.FraudCount,
		&u.RegistrationDate, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// SaveUser upserts a user, inserting when ID is unset and updating otherwise.
func (s *PostgresStore) SaveUser(ctx context.Context, user *models.User) error {
	user.ClampTrustScore()
	now := time.Now()
	user.UpdatedAt = now

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
		user.CreatedAt = now
		if user.RegistrationDate.IsZero() {
			user.RegistrationDate = now
		}
		query := `INSERT INTO users (id, email, phone_number, name, password_hash, trust_score,
			account_locked, enabled, total_transactions, fraud_count, registration_date, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
		_, err := s.db.Pool.Exec(ctx, query, user.ID, user.Email, user.PhoneNumber, user.Name,
			user.PasswordHash, user.TrustScore, user.AccountLocked, user.Enabled,
			user.TotalTransactions, user.FraudCount, user.RegistrationDate, user.CreatedAt, user.UpdatedAt)
		return err
	}

	query := `UPDATE users SET email=$2, phone_number=$3, name=$4, password_hash=$5, trust_score=$6,
		account_locked=$7, enabled=$8, total_transactions=$9, fraud_count=$10, updated_at=$11
		WHERE id=$1`
	_, err := s.db.Pool.Exec(ctx, query, user.ID, user.Email, user.PhoneNumber, user.Name,
		user.PasswordHash, user.TrustScore, user.AccountLocked, user.Enabled,
		user.TotalTransactions, user.FraudCount, user.UpdatedAt)
	return err
}

// UpdateUserLocked loads the user row with SELECT ... FOR UPDATE inside a
// transaction, applies fn to the locked copy, and writes it back before
// committing. This serializes concurrent trust-score/counter/lock-flag
// updates for the same user across server instances, not just within one.
func (s *PostgresStore) UpdateUserLocked(ctx context.Context, userID uuid.UUID, fn func(user *models.User) error) error {
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		u := &models.User{}
		err := tx.QueryRow(ctx, `SELECT id, email, phone_number, name, password_hash, trust_score,
			account_locked, enabled, total_transactions, fraud_count, registration_date, created_at, updated_at
			FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(
			&u.ID, &u.Email, &u.PhoneNumber, &u.Name, &u.PasswordHash, &u.TrustScore,
			&u.AccountLocked, &u.Enabled, &u.TotalTransactions, &u.FraudCount,
			&u.RegistrationDate, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}

		if err := fn(u); err != nil {
			return err
		}
		u.ClampTrustScore()
		u.UpdatedAt = time.Now()

		_, err = tx.Exec(ctx, `UPDATE users SET email=$2, phone_number=$3, name=$4, password_hash=$5,
			trust_score=$6, account_locked=$7, enabled=$8, total_transactions=$9, fraud_count=$10, updated_at=$11
			WHERE id=$1`, u.ID, u.Email, u.PhoneNumber, u.Name, u.PasswordHash, u.TrustScore,
			u.AccountLocked, u.Enabled, u.TotalTransactions, u.FraudCount, u.UpdatedAt)
		return err
	})
}

func (s *PostgresStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE phone_number = $1)`, phone).Scan(&exists)
	return exists, err
}
