package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enterprise/fraudscore/internal/models"
)

const behaviorSelect = `SELECT user_id, avg_amount, max_amount, min_amount, std_dev,
	tx_per_day, tx_per_week, tx_per_month,
	top_hours, top_weekdays, top_cities, frequent_countries, known_devices, known_ips,
	top_merchants, top_categories, consistency_score, diversity_score, velocity_pattern,
	failed_attempts, chargebacks, disputed_transactions, data_points_count, last_updated
	FROM user_behaviors`

func (s *PostgresStore) FindBehaviorByUserID(ctx context.Context, userID uuid.UUID) (*models.UserBehavior, error) {
	row := s.db.Pool.QueryRow(ctx, behaviorSelect+` WHERE user_id = $1`, userID)
	b := &models.UserBehavior{}
	err := row.Scan(
		&b.UserID, &b.AvgAmount, &b.MaxAmount, &b.MinAmount, &b.StdDev,
		&b.TxPerDay, &b.TxPerWeek, &b.TxPerMonth,
		&b.TopHours, &b.TopWeekdays, &b.TopCities, &b.FrequentCountries, &b.KnownDevices, &b.KnownIPs,
		&b.TopMerchants, &b.TopCategories, &b.ConsistencyScore, &b.DiversityScore, &b.VelocityPattern,
		&b.FailedAttempts, &b.Chargebacks, &b.DisputedTransactions, &b.DataPointsCount, &b.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// SaveBehavior overwrites the user's behavior profile wholesale, the only
// writer being the BehaviorAggregator.
func (s *PostgresStore) SaveBehavior(ctx context.Context, b *models.UserBehavior) error {
	b.LastUpdated = time.Now()
	query := `INSERT INTO user_behaviors (
		user_id, avg_amount, max_amount, min_amount, std_dev,
		tx_per_day, tx_per_week, tx_per_month,
		top_hours, top_weekdays, top_cities, frequent_countries, known_devices, known_ips,
		top_merchants, top_categories, consistency_score, diversity_score, velocity_pattern,
		failed_attempts, chargebacks, disputed_transactions, data_points_count, last_updated
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
	ON CONFLICT (user_id) DO UPDATE SET
		avg_amount=EXCLUDED.avg_amount, max_amount=EXCLUDED.max_amount, min_amount=EXCLUDED.min_amount,
		std_dev=EXCLUDED.std_dev, tx_per_day=EXCLUDED.tx_per_day, tx_per_week=EXCLUDED.tx_per_week,
		tx_per_month=EXCLUDED.tx_per_month, top_hours=EXCLUDED.top_hours, top_weekdays=EXCLUDED.top_weekdays,
		top_cities=EXCLUDED.top_cities, frequent_countries=EXCLUDED.frequent_countries,
		known_devices=EXCLUDED.known_devices, known_ips=EXCLUDED.known_ips,
		top_merchants=EXCLUDED.top_merchants, top_categories=EXCLUDED.top_categories,
		consistency_score=EXCLUDED.consistency_score, diversity_score=EXCLUDED.diversity_score,
		velocity_pattern=EXCLUDED.velocity_pattern, failed_attempts=EXCLUDED.failed_attempts,
		chargebacks=EXCLUDED.chargebacks, disputed_transactions=EXCLUDED.disputed_transactions,
		data_points_count=EXCLUDED.data_points_count, last_updated=EXCLUDED.last_updated`
	_, err := s.db.Pool.Exec(ctx, query,
		b.UserID, b.AvgAmount, b.MaxAmount, b.MinAmount, b.StdDev,
		b.TxPerDay, b.TxPerWeek, b.TxPerMonth,
		b.TopHours, b.TopWeekdays, b.TopCities, b.FrequentCountries, b.KnownDevices, b.KnownIPs,
		b.TopMerchants, b.TopCategories, b.ConsistencyScore, b.DiversityScore, b.VelocityPattern,
		b.FailedAttempts, b.Chargebacks, b.DisputedTransactions, b.DataPointsCount, b.LastUpdated,
	)
	return err
}
