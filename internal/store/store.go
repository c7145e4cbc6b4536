// Package store is the persistence abstraction for users, transactions,
// behavior profiles, and alerts. It performs reads and writes only; no
// scoring policy lives here.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise/fraudscore/internal/models"
)

// Store is the set of operations the scoring pipeline consumes. Every
// lookup returns a present-or-absent result: a nil pointer with a nil error
// means "not found", never a sentinel error.
type Store interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByPhone(ctx context.Context, phone string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)

	// UpdateUserLocked loads the user row under a row lock, applies fn to it,
	// and persists the result in the same transaction. Callers use it to
	// serialize read-modify-write updates (trust score, fraud counter,
	// account lock) against concurrent decisions for the same user.
	UpdateUserLocked(ctx context.Context, userID uuid.UUID, fn func(user *models.User) error) error

	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByUserIDOrderByTimeDesc(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error)
	FindMostRecentByQRCodeID(ctx context.Context, userID uuid.UUID, qrCodeID string) (*models.Transaction, error)
	CountTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	FindDistinctDevicesByUserID(ctx context.Context, userID uuid.UUID) ([]string, error)
	FindDistinctCountriesByUserID(ctx context.Context, userID uuid.UUID) ([]string, error)
	CountFraudulentTransactions(ctx context.Context, userID uuid.UUID) (int, error)
	SaveTransaction(ctx context.Context, tx *models.Transaction) error

	FindBehaviorByUserID(ctx context.Context, userID uuid.UUID) (*models.UserBehavior, error)
	SaveBehavior(ctx context.Context, behavior *models.UserBehavior) error

	SaveFraudAlert(ctx context.Context, alert *models.FraudAlert) error
	FindAlertByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.FraudAlert, error)
	FindAlertByID(ctx context.Context, id uuid.UUID) (*models.FraudAlert, error)
	FindAlertsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.FraudAlert, error)
	FindUnreviewedAlerts(ctx context.Context, limit int) ([]*models.FraudAlert, error)
}
