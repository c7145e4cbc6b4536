package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise/fraudscore/internal/models"
)

type fakeStore struct {
	transactions map[uuid.UUID]*models.Transaction
	alerts       map[uuid.UUID]*models.FraudAlert // keyed by transaction ID
	users        map[uuid.UUID]*models.User
	saveAlertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		transactions: make(map[uuid.UUID]*models.Transaction),
		alerts:       make(map[uuid.UUID]*models.FraudAlert),
		users:        make(map[uuid.UUID]*models.User),
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
	return nil, nil
}
func (f *fakeStore) FindMostRecentByQRCodeID(ctx context.Context, userID uuid.UUID, qrCodeID string) (*models.Transaction, error) {
	return nil, nil
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
	return nil, nil
}
func (f *fakeStore) SaveBehavior(ctx context.Context, behavior *models.UserBehavior) error { return nil }
func (f *fakeStore) SaveFraudAlert(ctx context.Context, alert *models.FraudAlert) error {
	if f.saveAlertErr != nil {
		return f.saveAlertErr
	}
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

func TestApply_LowScoreNoAlertRaisesTrust(t *testing.T) {
	s := newFakeStore()
	a := New(s)

	user := &models.User{ID: uuid.New(), TrustScore: 75}
	s.users[user.ID] = user
	tx := &models.Transaction{ID: uuid.New(), UserID: user.ID, Amount: 20}
	dec := models.Decision{FraudScore: 0.1, PrimaryReason: "Transaction appears normal"}

	if err := a.Apply(context.Background(), tx, user, dec); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if _, exists := s.alerts[tx.ID]; exists {
		t.Error("no alert should be raised below the alert threshold")
	}
	if user.TrustScore <= 75 {
		t.Errorf("TrustScore should increase for a clean transaction, got %v", user.TrustScore)
	}
	if s.transactions[tx.ID].FraudScore != 0.1 {
		t.Errorf("persisted transaction FraudScore = %v, want 0.1", s.transactions[tx.ID].FraudScore)
	}
}

func TestApply_HighScoreRaisesAlertAndPenalizesTrust(t *testing.T) {
	s := newFakeStore()
	a := New(s)

	user := &models.User{ID: uuid.New(), TrustScore: 75}
	s.users[user.ID] = user
	tx := &models.Transaction{ID: uuid.New(), UserID: user.ID, Amount: 5000}
	dec := models.Decision{
		FraudScore:      0.85,
		PrimaryReason:   "Unusually high number of recent transactions",
		DetectionMethod: models.DetectionMethodHybrid,
		TriggeredRules:  []string{"HIGH_VELOCITY"},
	}

	if err := a.Apply(context.Background(), tx, user, dec); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	alert, exists := s.alerts[tx.ID]
	if !exists {
		t.Fatal("expected an alert to be raised above the alert threshold")
	}
	if alert.Severity != models.AlertSeverityHigh {
		t.Errorf("Severity = %q, want HIGH", alert.Severity)
	}
	if user.TrustScore != 55 {
		t.Errorf("TrustScore = %v, want 55 (75 - 20)", user.TrustScore)
	}
	if user.FraudCount != 1 {
		t.Errorf("FraudCount = %d, want 1", user.FraudCount)
	}
}

func TestApply_IsIdempotentWhenAlertAlreadyExists(t *testing.T) {
	s := newFakeStore()
	a := New(s)

	user := &models.User{ID: uuid.New(), TrustScore: 75}
	s.users[user.ID] = user
	tx := &models.Transaction{ID: uuid.New(), UserID: user.ID, Amount: 5000}
	dec := models.Decision{FraudScore: 0.85}

	s.alerts[tx.ID] = &models.FraudAlert{TransactionID: tx.ID}

	if err := a.Apply(context.Background(), tx, user, dec); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if user.TrustScore != 75 {
		t.Errorf("TrustScore should not change when an alert already exists, got %v", user.TrustScore)
	}
}

func TestApply_IsIdempotentBelowAlertThreshold(t *testing.T) {
	s := newFakeStore()
	a := New(s)

	user := &models.User{ID: uuid.New(), TrustScore: 75}
	s.users[user.ID] = user
	tx := &models.Transaction{ID: uuid.New(), UserID: user.ID, Amount: 20}
	dec := models.Decision{FraudScore: 0.1, FraudStatus: models.FraudStatusSafe, PrimaryReason: "Transaction appears normal"}

	if err := a.Apply(context.Background(), tx, user, dec); err != nil {
		t.Fatalf("first Apply() error: %v", err)
	}
	afterFirst := user.TrustScore

	if err := a.Apply(context.Background(), tx, user, dec); err != nil {
		t.Fatalf("second Apply() error: %v", err)
	}

	if _, exists := s.alerts[tx.ID]; exists {
		t.Error("no alert should be raised below the alert threshold")
	}
	if user.TrustScore != afterFirst {
		t.Errorf("TrustScore = %v, want unchanged at %v after a repeat Apply() of the same decision", user.TrustScore, afterFirst)
	}
}

func TestApplyPost_CriticalScoreLocksAccount(t *testing.T) {
	s := newFakeStore()
	a := New(s)

	user := &models.User{ID: uuid.New(), TrustScore: 50, Enabled: true}
	s.users[user.ID] = user
	tx := &models.Transaction{ID: uuid.New(), UserID: user.ID, Amount: 9999}
	dec := models.Decision{FraudScore: 0.95}

	if err := a.ApplyPost(context.Background(), tx, user, dec); err != nil {
		t.Fatalf("ApplyPost() error: %v", err)
	}
	if !user.AccountLocked {
		t.Error("a 0.95 fraud score on post-verification should lock the account")
	}
	if user.Enabled {
		t.Error("a locked account should also be disabled")
	}
}

func TestApply_NilUserSkipsTrustAdjustment(t *testing.T) {
	s := newFakeStore()
	a := New(s)

	tx := &models.Transaction{ID: uuid.New(), UserID: uuid.New(), Amount: 20}
	dec := models.Decision{FraudScore: 0.1}

	if err := a.Apply(context.Background(), tx, nil, dec); err != nil {
		t.Fatalf("Apply() with nil user should not error: %v", err)
	}
}

func TestSeverityBand(t *testing.T) {
	cases := []struct {
		score        float64
		wantSeverity string
		wantAction   string
	}{
		{0.95, models.AlertSeverityCritical, models.AlertActionBlock},
		{0.75, models.AlertSeverityHigh, models.AlertActionReview},
		{0.55, models.AlertSeverityMedium, models.AlertActionReview},
		{0.2, models.AlertSeverityLow, models.AlertActionAllowWithWarning},
	}
	for _, tc := range cases {
		severity, action := severityBand(tc.score)
		if severity != tc.wantSeverity || action != tc.wantAction {
			t.Errorf("severityBand(%v) = (%q, %q), want (%q, %q)", tc.score, severity, action, tc.wantSeverity, tc.wantAction)
		}
	}
}
