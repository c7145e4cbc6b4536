// Package analytics reports on fraud_alerts and transactions: daily fraud
// summaries, risk distribution, triggered-rule frequency, and system
// health. Daily summaries and user risk profiles are cached briefly to
// absorb dashboard polling; the other reports query on every call.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/internal/queue"
	"github.com/enterprise/fraudscore/internal/store"
)

// Service provides fraud analytics and reporting.
type Service struct {
	db    *store.Database
	cache *queue.CacheClient
}

// New creates an analytics Service.
func New(db *store.Database, cache *queue.CacheClient) *Service {
	return &Service{db: db, cache: cache}
}

// FraudSummary is a single day's aggregate fraud metrics.
type FraudSummary struct {
	Date              string  `json:"date"`
	TotalTransactions int     `json:"total_transactions"`
	FlaggedCount      int     `json:"flagged_count"`
	BlockedCount      int     `json:"blocked_count"`
	DeclinedCount     int     `json:"declined_count"`
	AvgFraudScore     float64 `json:"avg_fraud_score"`
	TotalAmount       float64 `json:"total_amount"`
}

// GetDailySummary returns the fraud summary for a specific date, cached for
// 5 minutes for the current day and an hour for historical dates.
func (s *Service) GetDailySummary(ctx context.Context, date time.Time) (*FraudSummary, error) {
	cacheKey := fmt.Sprintf("analytics:daily_summary:%s", date.Format("2006-01-02"))
	var cached FraudSummary
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'REVIEW' OR status = 'HOLD'),
			COUNT(*) FILTER (WHERE status = 'BLOCKED'),
			COUNT(*) FILTER (WHERE status = 'DECLINED'),
			COALESCE(AVG(fraud_score), 0),
			COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE transaction_time >= $1 AND transaction_time < $2
	`

	summary := &FraudSummary{Date: date.Format("2006-01-02")}
	err := s.db.Pool.QueryRow(ctx, query, startOfDay, endOfDay).Scan(
		&summary.TotalTransactions, &summary.FlaggedCount, &summary.BlockedCount,
		&summary.DeclinedCount, &summary.AvgFraudScore, &summary.TotalAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily summary: %w", err)
	}

	if s.cache != nil {
		ttl := 5 * time.Minute
		if time.Since(date) > 24*time.Hour {
			ttl = time.Hour
		}
		if err := s.cache.Set(ctx, cacheKey, summary, ttl); err != nil {
			log.Warn().Err(err).Msg("analytics: failed to cache daily summary")
		}
	}

	return summary, nil
}

// SummaryRange returns daily summaries for every day in [start, end].
func (s *Service) SummaryRange(ctx context.Context, start, end time.Time) ([]*FraudSummary, error) {
	var summaries []*FraudSummary
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		summary, err := s.GetDailySummary(ctx, d)
		if err != nil {
			log.Warn().Err(err).Time("date", d).Msg("analytics: failed to summarize date")
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// UserRiskProfile is a user's aggregate fraud exposure.
type UserRiskProfile struct {
	UserID            uuid.UUID `json:"user_id"`
	TrustScore        float64   `json:"trust_score"`
	TotalTransactions int       `json:"total_transactions"`
	AlertCount        int       `json:"alert_count"`
	AvgFraudScore     float64   `json:"avg_fraud_score"`
	MaxFraudScore     float64   `json:"max_fraud_score"`
}

// GetUserRiskProfile reports a user's aggregate risk exposure, cached for 5 minutes.
func (s *Service) GetUserRiskProfile(ctx context.Context, userID uuid.UUID) (*UserRiskProfile, error) {
	cacheKey := fmt.Sprintf("analytics:user_risk:%s", userID.String())
	var cached UserRiskProfile
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	profile := &UserRiskProfile{UserID: userID}

	err := s.db.Pool.QueryRow(ctx, `SELECT trust_score FROM users WHERE id = $1`, userID).Scan(&profile.TrustScore)
	if err != nil {
		return nil, fmt.Errorf("failed to load user trust score: %w", err)
	}

	err = s.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(fraud_score), 0), COALESCE(MAX(fraud_score), 0)
		FROM transactions WHERE user_id = $1
	`, userID).Scan(&profile.TotalTransactions, &profile.AvgFraudScore, &profile.MaxFraudScore)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions: %w", err)
	}

	err = s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM fraud_alerts WHERE user_id = $1`, userID).Scan(&profile.AlertCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, profile, 5*time.Minute); err != nil {
			log.Warn().Err(err).Msg("analytics: failed to cache user risk profile")
		}
	}

	return profile, nil
}

// RiskDistribution is the count of alerts per severity band over a period.
type RiskDistribution struct {
	Period string         `json:"period"`
	Levels map[string]int `json:"levels"`
	Total  int            `json:"total"`
}

// GetSeverityDistribution returns the distribution of alert severities over
// the trailing `days` days.
func (s *Service) GetSeverityDistribution(ctx context.Context, days int) (*RiskDistribution, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM fraud_alerts
		WHERE detected_at >= NOW() - ($1::text || ' days')::interval
		GROUP BY severity
		ORDER BY CASE severity
			WHEN 'CRITICAL' THEN 1 WHEN 'HIGH' THEN 2 WHEN 'MEDIUM' THEN 3 WHEN 'LOW' THEN 4 END
	`

	rows, err := s.db.Pool.Query(ctx, query, fmt.Sprintf("%d", days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dist := &RiskDistribution{Period: fmt.Sprintf("%d days", days), Levels: make(map[string]int)}
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		dist.Levels[level] = count
		dist.Total += count
	}
	return dist, rows.Err()
}

// RuleCount is the number of alerts a given rule contributed to.
type RuleCount struct {
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// GetTopTriggeredRules returns the rules most frequently present on
// alerts raised in the trailing `days` days.
func (s *Service) GetTopTriggeredRules(ctx context.Context, days, limit int) ([]RuleCount, error) {
	query := `
		SELECT rule_id, COUNT(DISTINCT transaction_id) AS count
		FROM (
			SELECT transaction_id, jsonb_array_elements_text(rules_fired) AS rule_id
			FROM fraud_alerts
			WHERE detected_at >= NOW() - ($1::text || ' days')::interval
		) t
		GROUP BY rule_id
		ORDER BY count DESC
		LIMIT $2
	`

	rows, err := s.db.Pool.Query(ctx, query, fmt.Sprintf("%d", days), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []RuleCount
	for rows.Next() {
		var rc RuleCount
		if err := rows.Scan(&rc.RuleID, &rc.Count); err != nil {
			return nil, err
		}
		rules = append(rules, rc)
	}
	return rules, rows.Err()
}

// HourlyVolume is transaction count and value for a single hour of day.
type HourlyVolume struct {
	Hour        int     `json:"hour"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
}

// GetHourlyVolume returns transaction volume bucketed by hour for a given day.
func (s *Service) GetHourlyVolume(ctx context.Context, date time.Time) ([]HourlyVolume, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	query := `
		SELECT EXTRACT(HOUR FROM transaction_time)::int, COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE transaction_time >= $1 AND transaction_time < $2
		GROUP BY EXTRACT(HOUR FROM transaction_time)
		ORDER BY 1
	`

	rows, err := s.db.Pool.Query(ctx, query, startOfDay, endOfDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var volumes []HourlyVolume
	for rows.Next() {
		var hv HourlyVolume
		if err := rows.Scan(&hv.Hour, &hv.Count, &hv.TotalAmount); err != nil {
			return nil, err
		}
		volumes = append(volumes, hv)
	}
	return volumes, rows.Err()
}

// SystemMetrics is a point-in-time operational snapshot.
type SystemMetrics struct {
	Timestamp           time.Time `json:"timestamp"`
	DBConnectionsActive int       `json:"db_connections_active"`
	DBConnectionsIdle   int       `json:"db_connections_idle"`
	AuditQueueDepth     int       `json:"audit_queue_depth"`
}

// GetSystemMetrics reports database pool statistics. It does not read the
// audit stream, so AuditQueueDepth is always zero.
func (s *Service) GetSystemMetrics(ctx context.Context, audit *queue.AuditStreamClient) *SystemMetrics {
	metrics := &SystemMetrics{Timestamp: time.Now()}

	dbStats := s.db.Stats()
	metrics.DBConnectionsActive = int(dbStats.AcquiredConns())
	metrics.DBConnectionsIdle = int(dbStats.IdleConns())

	return metrics
}
