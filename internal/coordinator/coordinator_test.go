package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise/fraudscore/internal/decision"
	"github.com/enterprise/fraudscore/internal/feedback"
	"github.com/enterprise/fraudscore/internal/mlmodel"
	"github.com/enterprise/fraudscore/internal/models"
	"github.com/enterprise/fraudscore/internal/rules"
	"github.com/enterprise/fraudscore/internal/store"
)

type fakeStore struct {
	users        map[uuid.UUID]*models.User
	transactions map[uuid.UUID]*models.Transaction
	history      []*models.Transaction
	alerts       map[uuid.UUID]*models.FraudAlert
	byQR         *models.Transaction
	behaviors    map[uuid.UUID]*models.UserBehavior
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[uuid.UUID]*models.User),
		transactions: make(map[uuid.UUID]*models.Transaction),
		alerts:       make(map[uuid.UUID]*models.FraudAlert),
		behaviors:    make(map[uuid.UUID]*models.UserBehavior),
	}
}

func (f *fakeStore) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return f.users[id], nil
}
func (f *fakeStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, nil
}
func (f *fakeStore) FindUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return nil, nil
}
func (f *fakeStore) SaveUser(ctx context.Context, user *models.User) error {
	f.users[user.ID] = user
	return nil
}
func (f *fakeStore) UpdateUserLocked(ctx context.Context, userID uuid.UUID, fn func(user *models.User) error) error {
	u, ok := f.users[userID]
	if !ok || u == nil {
		return nil
	}
	return fn(u)
}
func (f *fakeStore) ExistsByEmail(ctx context.Context, email string) (bool, error) { return false, nil }
func (f *fakeStore) ExistsByPhone(ctx context.Context, phone string) (bool, error) { return false, nil }
func (f *fakeStore) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return f.transactions[id], nil
}
func (f *fakeStore) FindByUserIDOrderByTimeDesc(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	return f.history, nil
}
func (f *fakeStore) FindMostRecentByQRCodeID(ctx context.Context, userID uuid.UUID, qrCodeID string) (*models.Transaction, error) {
	return f.byQR, nil
}
func (f *fakeStore) CountTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return 0, nil
}
func (f *fakeStore) FindDistinctDevicesByUserID(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) FindDistinctCountriesByUserID(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) CountFraudulentTransactions(ctx context.Context, userID uuid.UUID) (int, error) {
	return 0, nil
}
func (f *fakeStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	f.transactions[tx.ID] = tx
	return nil
}
func (f *fakeStore) FindBehaviorByUserID(ctx context.Context, userID uuid.UUID) (*models.UserBehavior, error) {
	return f.behaviors[userID], nil
}
func (f *fakeStore) SaveBehavior(ctx context.Context, behavior *models.UserBehavior) error { return nil }
func (f *fakeStore) SaveFraudAlert(ctx context.Context, alert *models.FraudAlert) error {
	f.alerts[alert.TransactionID] = alert
	return nil
}
func (f *fakeStore) FindAlertByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.FraudAlert, error) {
	return f.alerts[transactionID], nil
}
func (f *fakeStore) FindAlertByID(ctx context.Context, id uuid.UUID) (*models.FraudAlert, error) {
	return nil, nil
}
func (f *fakeStore) FindAlertsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.FraudAlert, error) {
	return nil, nil
}
func (f *fakeStore) FindUnreviewedAlerts(ctx context.Context, limit int) ([]*models.FraudAlert, error) {
	return nil, nil
}

// fakeScorer is a deterministic Scorer test double.
type fakeScorer struct {
	prob  float64
	delay time.Duration
}

func (s *fakeScorer) Score(ctx context.Context, tx *models.Transaction, behavior *models.UserBehavior, velocity models.VelocityCounts, rules models.RuleResult) models.ModelResult {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return models.ModelResult{FraudProbability: s.prob, Method: models.DetectionMethodModel}
}
func (s *fakeScorer) Fit(features []models.FeatureVector, labels []float64) error { return nil }

// fakeScheduler records scheduled userIDs without doing any async work.
type fakeScheduler struct {
	scheduled []uuid.UUID
}

func (f *fakeScheduler) Schedule(userID uuid.UUID) {
	f.scheduled = append(f.scheduled, userID)
}

func newCoordinator(s store.Store, scorer mlmodel.Scorer, scheduler *fakeScheduler) *Coordinator {
	return New(s, rules.New(rules.DefaultConfig()), scorer, decision.New(), feedback.New(s), scheduler)
}

func TestProcessTransaction_RejectsNonPositiveAmount(t *testing.T) {
	s := newFakeStore()
	c := newCoordinator(s, &fakeScorer{prob: 0.1}, &fakeScheduler{})

	_, err := c.ProcessTransaction(context.Background(), TransactionRequest{UserID: uuid.New(), Amount: 0})
	if err != ErrValidation {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestProcessTransaction_UnknownUser(t *testing.T) {
	s := newFakeStore()
	c := newCoordinator(s, &fakeScorer{prob: 0.1}, &fakeScheduler{})

	_, err := c.ProcessTransaction(context.Background(), TransactionRequest{UserID: uuid.New(), Amount: 10})
	if err != ErrUserNotFound {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestProcessTransaction_LockedAccountIsDeclinedWithoutScoring(t *testing.T) {
	s := newFakeStore()
	user := &models.User{ID: uuid.New(), AccountLocked: true, TrustScore: 50}
	s.users[user.ID] = user
	scheduler := &fakeScheduler{}
	c := newCoordinator(s, &fakeScorer{prob: 0.1}, scheduler)

	resp, err := c.ProcessTransaction(context.Background(), TransactionRequest{UserID: user.ID, Amount: 50})
	if err != nil {
		t.Fatalf("ProcessTransaction() error: %v", err)
	}
	if resp.Status != models.TransactionStatusDeclined {
		t.Errorf("Status = %q, want DECLINED", resp.Status)
	}
	if len(scheduler.scheduled) != 0 {
		t.Error("a locked-account decline should not schedule behavior re-aggregation")
	}
}

func TestProcessTransaction_CleanTransactionApproves(t *testing.T) {
	s := newFakeStore()
	user := &models.User{ID: uuid.New(), TrustScore: 90}
	s.users[user.ID] = user
	scheduler := &fakeScheduler{}
	c := newCoordinator(s, &fakeScorer{prob: 0.05}, scheduler)

	resp, err := c.ProcessTransaction(context.Background(), TransactionRequest{UserID: user.ID, Amount: 25, Currency: "USD"})
	if err != nil {
		t.Fatalf("ProcessTransaction() error: %v", err)
	}
	if !resp.Approved {
		t.Errorf("expected approval, got status %q", resp.Status)
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0] != user.ID {
		t.Errorf("expected behavior re-aggregation scheduled for %v, got %v", user.ID, scheduler.scheduled)
	}
	if len(s.transactions) != 1 {
		t.Errorf("expected the transaction to be persisted, got %d", len(s.transactions))
	}
}

func TestProcessTransaction_DeviationFromNormalUsesBehaviorDeviation(t *testing.T) {
	s := newFakeStore()
	user := &models.User{ID: uuid.New(), TrustScore: 90}
	s.users[user.ID] = user
	s.behaviors[user.ID] = &models.UserBehavior{AvgAmount: 100, StdDev: 20}
	c := newCoordinator(s, &fakeScorer{prob: 0.05}, &fakeScheduler{})

	resp, err := c.ProcessTransaction(context.Background(), TransactionRequest{UserID: user.ID, Amount: 25, Currency: "USD"})
	if err != nil {
		t.Fatalf("ProcessTransaction() error: %v", err)
	}

	// rules.BehaviorDeviation = |25 - 100| / 20 = 3.75
	wantDeviation := 3.75
	if got := resp.FraudAnalysis.BehaviorAnalysis.DeviationFromNormal; got != wantDeviation {
		t.Errorf("DeviationFromNormal = %v, want %v", got, wantDeviation)
	}
}

func TestProcessTransaction_HighRiskDeclines(t *testing.T) {
	s := newFakeStore()
	user := &models.User{ID: uuid.New(), TrustScore: 90}
	s.users[user.ID] = user
	c := newCoordinator(s, &fakeScorer{prob: 0.99}, &fakeScheduler{})

	resp, err := c.ProcessTransaction(context.Background(), TransactionRequest{UserID: user.ID, Amount: 9000})
	if err != nil {
		t.Fatalf("ProcessTransaction() error: %v", err)
	}
	if resp.Approved {
		t.Error("a high model score should not be approved")
	}
	if resp.Status != models.TransactionStatusDeclined {
		t.Errorf("Status = %q, want DECLINED", resp.Status)
	}
}

func TestProcessTransaction_ModelTimeoutFallsBackToRuleOnlyScoring(t *testing.T) {
	s := newFakeStore()
	user := &models.User{ID: uuid.New(), TrustScore: 90}
	s.users[user.ID] = user
	slow := &fakeScorer{prob: 0.99, delay: time.Second}
	c := newCoordinator(s, slow, &fakeScheduler{})

	start := time.Now()
	resp, err := c.ProcessTransaction(context.Background(), TransactionRequest{UserID: user.ID, Amount: 25})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("ProcessTransaction() error: %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("ProcessTransaction took %v, want it to fall back well under the model's 1s delay", elapsed)
	}
	if resp.FraudAnalysis.MLScore == 0.99 {
		t.Error("expected the slow model's score to be discarded in favor of the rule-only fallback")
	}
}

func TestVerifyQRTransaction_NotFound(t *testing.T) {
	s := newFakeStore()
	c := newCoordinator(s, &fakeScorer{prob: 0.1}, &fakeScheduler{})

	_, err := c.VerifyQRTransaction(context.Background(), uuid.New(), "qr-123")
	if err != ErrValidation {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestVerifyQRTransaction_ReScoresAndCanBlock(t *testing.T) {
	s := newFakeStore()
	user := &models.User{ID: uuid.New(), TrustScore: 10}
	s.users[user.ID] = user
	tx := &models.Transaction{ID: uuid.New(), UserID: user.ID, Amount: 20000, QRCodeID: "qr-1", Status: models.TransactionStatusApproved}
	s.byQR = tx
	s.transactions[tx.ID] = tx

	scheduler := &fakeScheduler{}
	c := newCoordinator(s, &fakeScorer{prob: 1.0}, scheduler)

	resp, err := c.VerifyQRTransaction(context.Background(), user.ID, "qr-1")
	if err != nil {
		t.Fatalf("VerifyQRTransaction() error: %v", err)
	}
	if resp.Status != models.TransactionStatusBlocked {
		t.Errorf("Status = %q, want BLOCKED", resp.Status)
	}
	if !user.AccountLocked {
		t.Error("a blocked QR re-verification should lock the account")
	}
	if len(scheduler.scheduled) != 1 {
		t.Error("expected behavior re-aggregation to be scheduled")
	}
}
