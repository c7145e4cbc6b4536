// Package behavior recomputes a user's behavioral profile from their
// transaction history. It is the sole writer of UserBehavior; the rest of
// the pipeline reads it as an immutable snapshot.
package behavior

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/internal/models"
	"github.com/enterprise/fraudscore/internal/store"
)

const (
	topHours      = 3
	topWeekdays   = 3
	topCities     = 5
	topMerchants  = 10
	topCategories = 5

	velocityNormalizer = 604800.0 // seconds in a week
)

// Aggregator recomputes UserBehavior profiles from accepted transactions.
type Aggregator struct {
	store store.Store
}

// New creates a BehaviorAggregator backed by the given Store.
func New(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// Update recomputes and persists the behavioral profile for userID. If the
// user has no accepted transactions, the existing profile is left
// unchanged. The aggregator is idempotent and safe to run concurrently or
// out of order; it always reads the latest committed history.
func (a *Aggregator) Update(ctx context.Context, userID uuid.UUID) error {
	history, err := a.store.FindByUserIDOrderByTimeDesc(ctx, userID, 0)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("behavior: failed to load history")
		return err
	}

	accepted := acceptedOnly(history)
	if len(accepted) == 0 {
		return nil
	}

	existing, err := a.store.FindBehaviorByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("behavior: failed to load existing profile")
		return err
	}
	if existing == nil {
		existing = models.NewUserBehavior(userID)
	}

	profile := a.recompute(userID, accepted, existing)

	if err := a.store.SaveBehavior(ctx, profile); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("behavior: failed to save profile")
		return err
	}
	return nil
}

func acceptedOnly(history []*models.Transaction) []*models.Transaction {
	out := make([]*models.Transaction, 0, len(history))
	for _, tx := range history {
		if tx.FraudStatus == models.FraudStatusSafe || tx.Status == models.TransactionStatusApproved {
			out = append(out, tx)
		}
	}
	return out
}

func (a *Aggregator) recompute(userID uuid.UUID, accepted []*models.Transaction, existing *models.UserBehavior) *models.UserBehavior {
	now := time.Now()

	amounts := make([]float64, len(accepted))
	for i, tx := range accepted {
		amounts[i] = tx.Amount
	}
	avg, min, max, stdDev := descriptiveStats(amounts)

	hourCounts := map[int]int{}
	weekdayCounts := map[int]int{}
	cityCounts := map[string]int{}
	merchantCounts := map[string]int{}
	categoryCounts := map[string]int{}
	countrySet := map[string]struct{}{}
	deviceSet := map[string]struct{}{}
	ipSet := map[string]struct{}{}

	var dayCount, weekCount, monthCount int

	for _, tx := range accepted {
		hourCounts[tx.TransactionTime.Hour()]++
		weekdayCounts[int(tx.TransactionTime.Weekday())]++
		if tx.Location.City != "" {
			cityCounts[tx.Location.City]++
		}
		if tx.Merchant != "" {
			merchantCounts[tx.Merchant]++
		}
		if tx.MerchantCategory != "" {
			categoryCounts[tx.MerchantCategory]++
		}
		if tx.Location.Country != "" {
			countrySet[tx.Location.Country] = struct{}{}
		}
		if tx.Device.ID != "" {
			deviceSet[tx.Device.ID] = struct{}{}
		}
		if tx.Location.IP != "" {
			ipSet[tx.Location.IP] = struct{}{}
		}

		switch {
		case now.Sub(tx.TransactionTime) <= 24*time.Hour:
			dayCount++
			fallthrough
		case now.Sub(tx.TransactionTime) <= 7*24*time.Hour:
			weekCount++
			fallthrough
		case now.Sub(tx.TransactionTime) <= 30*24*time.Hour:
			monthCount++
		}
	}

	profile := &models.UserBehavior{
		UserID:    userID,
		AvgAmount: avg,
		MaxAmount: max,
		MinAmount: min,
		StdDev:    stdDev,

		TxPerDay:   float64(dayCount),
		TxPerWeek:  float64(weekCount),
		TxPerMonth: float64(monthCount),

		TopHours:          topIntKeys(hourCounts, topHours),
		TopWeekdays:       topIntKeys(weekdayCounts, topWeekdays),
		TopCities:         topStringKeys(cityCounts, topCities),
		FrequentCountries: stringSetOf(countrySet),
		KnownDevices:      stringSetOf(deviceSet),
		KnownIPs:          stringSetOf(ipSet),
		TopMerchants:      topStringKeys(merchantCounts, topMerchants),
		TopCategories:     topStringKeys(categoryCounts, topCategories),

		ConsistencyScore: consistencyScore(len(accepted), avg, stdDev),
		DiversityScore:   diversityScore(len(merchantCounts), len(categoryCounts)),
		VelocityPattern:  velocityPattern(accepted),

		FailedAttempts:       existing.FailedAttempts,
		Chargebacks:          existing.Chargebacks,
		DisputedTransactions: existing.DisputedTransactions,
		DataPointsCount:      len(accepted),

		LastUpdated: now,
	}

	return profile
}

func descriptiveStats(amounts []float64) (avg, min, max, stdDev float64) {
	if len(amounts) == 0 {
		return 0, 0, 0, 0
	}
	min, max = amounts[0], amounts[0]
	sum := 0.0
	for _, v := range amounts {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	avg = sum / float64(len(amounts))

	var sqDiffSum float64
	for _, v := range amounts {
		d := v - avg
		sqDiffSum += d * d
	}
	stdDev = math.Sqrt(sqDiffSum / float64(len(amounts)))
	return avg, min, max, stdDev
}

func consistencyScore(size int, avg, stdDev float64) float64 {
	if size < 10 {
		return 0.5
	}
	if avg == 0 {
		return 0.5
	}
	ratio := stdDev / avg
	if ratio > 1 {
		ratio = 1
	}
	score := 1 - ratio
	if score < 0 {
		score = 0
	}
	return score
}

func diversityScore(uniqueMerchants, uniqueCategories int) float64 {
	m := float64(uniqueMerchants) / 20
	if m > 1 {
		m = 1
	}
	c := float64(uniqueCategories) / 10
	if c > 1 {
		c = 1
	}
	return (m + c) / 2
}

// velocityPattern is the mean of absolute inter-arrival intervals between
// consecutive transactions in time-descending order, normalized to [0,1].
func velocityPattern(accepted []*models.Transaction) float64 {
	if len(accepted) < 2 {
		return 0.5
	}
	sorted := make([]*models.Transaction, len(accepted))
	copy(sorted, accepted)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TransactionTime.After(sorted[j].TransactionTime)
	})

	var sum float64
	count := 0
	for i := 1; i < len(sorted); i++ {
		delta := sorted[i-1].TransactionTime.Sub(sorted[i].TransactionTime).Seconds()
		if delta < 0 {
			delta = -delta
		}
		sum += delta
		count++
	}
	mean := sum / float64(count)
	normalized := mean / velocityNormalizer
	if normalized > 1 {
		normalized = 1
	}
	if normalized < 0 {
		normalized = 0
	}
	return normalized
}

func topIntKeys(counts map[int]int, k int) models.IntSet {
	keys := make([]int, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > k {
		keys = keys[:k]
	}
	return models.IntSet(keys)
}

func topStringKeys(counts map[string]int, k int) models.StringSet {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > k {
		keys = keys[:k]
	}
	return models.StringSet(keys)
}

func stringSetOf(set map[string]struct{}) models.StringSet {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return models.StringSet(out)
}
