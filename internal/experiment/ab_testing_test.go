package experiment

import (
	"testing"

	"github.com/google/uuid"

	"github.com/enterprise/fraudscore/internal/models"
)

func TestCreate_AssignsIDAndDraftStatus(t *testing.T) {
	m := NewManager()
	exp := &Experiment{Name: "widen-velocity-window", TrafficSplit: 0.5}

	if err := m.Create(exp); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if exp.ID == "" {
		t.Error("expected a generated experiment ID")
	}
	if exp.Status != StatusDraft {
		t.Errorf("Status = %q, want draft", exp.Status)
	}
}

func TestCreate_RejectsInvalidTrafficSplit(t *testing.T) {
	m := NewManager()
	if err := m.Create(&Experiment{Name: "bad", TrafficSplit: 1.5}); err == nil {
		t.Error("expected an error for a traffic split above 1.0")
	}
	if err := m.Create(&Experiment{Name: "bad", TrafficSplit: -0.1}); err == nil {
		t.Error("expected an error for a negative traffic split")
	}
}

func TestLifecycle_StartStopPauseDelete(t *testing.T) {
	m := NewManager()
	exp := &Experiment{Name: "lifecycle", TrafficSplit: 0.5}
	if err := m.Create(exp); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := m.Start(exp.ID); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	got, err := m.Get(exp.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}

	if err := m.Start(exp.ID); err == nil {
		t.Error("expected an error starting an already-running experiment")
	}

	if err := m.Pause(exp.ID); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}
	got, _ = m.Get(exp.ID)
	if got.Status != StatusPaused {
		t.Errorf("Status = %q, want paused", got.Status)
	}

	if err := m.Stop(exp.ID); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	got, _ = m.Get(exp.ID)
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.EndTime == nil {
		t.Error("expected EndTime to be set after Stop")
	}

	if err := m.Delete(exp.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := m.Get(exp.ID); err == nil {
		t.Error("expected an error getting a deleted experiment")
	}
}

func TestAll_ReturnsEveryExperiment(t *testing.T) {
	m := NewManager()
	if err := m.Create(&Experiment{Name: "a", TrafficSplit: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(&Experiment{Name: "b", TrafficSplit: 0.5}); err != nil {
		t.Fatal(err)
	}

	all := m.All()
	if len(all) != 2 {
		t.Errorf("len(All()) = %d, want 2", len(all))
	}
}

func TestAssign_UnknownExperimentErrors(t *testing.T) {
	m := NewManager()
	if _, err := m.Assign("missing", uuid.New()); err == nil {
		t.Error("expected an error for an unknown experiment")
	}
}

func TestAssign_NotRunningErrors(t *testing.T) {
	m := NewManager()
	exp := &Experiment{Name: "draft-only", TrafficSplit: 0.5}
	if err := m.Create(exp); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Assign(exp.ID, uuid.New()); err == nil {
		t.Error("expected an error assigning into a non-running experiment")
	}
}

func TestAssign_ZeroSplitAlwaysControl(t *testing.T) {
	m := NewManager()
	exp := &Experiment{Name: "all-control", TrafficSplit: 0}
	if err := m.Create(exp); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(exp.ID); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		a, err := m.Assign(exp.ID, uuid.New())
		if err != nil {
			t.Fatalf("Assign() error: %v", err)
		}
		if a.Group != "control" {
			t.Errorf("Group = %q, want control for a zero traffic split", a.Group)
		}
	}
}

func TestAssign_FullSplitAlwaysTest(t *testing.T) {
	m := NewManager()
	exp := &Experiment{Name: "all-test", TrafficSplit: 1}
	if err := m.Create(exp); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(exp.ID); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		a, err := m.Assign(exp.ID, uuid.New())
		if err != nil {
			t.Fatalf("Assign() error: %v", err)
		}
		if a.Group != "test" {
			t.Errorf("Group = %q, want test for a full traffic split", a.Group)
		}
	}
}

func TestAssign_IsDeterministicPerUser(t *testing.T) {
	m := NewManager()
	exp := &Experiment{Name: "sticky", TrafficSplit: 0.5}
	if err := m.Create(exp); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(exp.ID); err != nil {
		t.Fatal(err)
	}

	userID := uuid.New()
	first, err := m.Assign(exp.ID, userID)
	if err != nil {
		t.Fatalf("Assign() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := m.Assign(exp.ID, userID)
		if err != nil {
			t.Fatalf("Assign() error: %v", err)
		}
		if again.Group != first.Group {
			t.Errorf("Assign() returned %q on repeat call, want stable %q", again.Group, first.Group)
		}
	}
}

func TestAssign_SplitsDifferentExperimentsIndependently(t *testing.T) {
	m := NewManager()
	expA := &Experiment{Name: "a", TrafficSplit: 1}
	expB := &Experiment{Name: "b", TrafficSplit: 0}
	if err := m.Create(expA); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(expB); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(expA.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(expB.ID); err != nil {
		t.Fatal(err)
	}

	userID := uuid.New()
	a, err := m.Assign(expA.ID, userID)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Assign(expB.ID, userID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Group != "test" || b.Group != "control" {
		t.Errorf("got a=%q b=%q, want a=test b=control (same user, independent experiments)", a.Group, b.Group)
	}
}

func TestRuleSetFor_ReturnsGroupsCorrespondingRules(t *testing.T) {
	m := NewManager()
	exp := &Experiment{
		Name:         "rule-subset",
		TrafficSplit: 0.5,
		ControlRules: []string{"HIGH_AMOUNT", "HIGH_VELOCITY"},
		TestRules:    []string{"HIGH_AMOUNT", "HIGH_VELOCITY", "NEW_DEVICE"},
	}
	if err := m.Create(exp); err != nil {
		t.Fatal(err)
	}

	control, err := m.RuleSetFor(exp.ID, &Assignment{ExperimentID: exp.ID, Group: "control"})
	if err != nil {
		t.Fatalf("RuleSetFor(control) error: %v", err)
	}
	if len(control) != 2 {
		t.Errorf("len(control rules) = %d, want 2", len(control))
	}

	test, err := m.RuleSetFor(exp.ID, &Assignment{ExperimentID: exp.ID, Group: "test"})
	if err != nil {
		t.Fatalf("RuleSetFor(test) error: %v", err)
	}
	if len(test) != 3 {
		t.Errorf("len(test rules) = %d, want 3", len(test))
	}
}

func TestRecordOutcome_AccumulatesPerGroupStats(t *testing.T) {
	m := NewManager()
	exp := &Experiment{Name: "tracked", TrafficSplit: 0.5}
	if err := m.Create(exp); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(exp.ID); err != nil {
		t.Fatal(err)
	}

	control := &Assignment{ExperimentID: exp.ID, Group: "control"}
	test := &Assignment{ExperimentID: exp.ID, Group: "test"}

	m.RecordOutcome(exp.ID, control, models.Decision{FraudScore: 0.2, RiskLevel: models.RiskLevelLow}, 50)
	m.RecordOutcome(exp.ID, control, models.Decision{FraudScore: 0.8, RiskLevel: models.RiskLevelHigh, TriggeredRules: []string{"HIGH_AMOUNT"}}, 150)
	m.RecordOutcome(exp.ID, test, models.Decision{FraudScore: 0.95, RiskLevel: models.RiskLevelCritical, TriggeredRules: []string{"HIGH_AMOUNT", "HIGH_VELOCITY"}}, 300)

	results, err := m.Results(exp.ID)
	if err != nil {
		t.Fatalf("Results() error: %v", err)
	}

	if results.Control.TotalTransactions != 2 {
		t.Errorf("Control.TotalTransactions = %d, want 2", results.Control.TotalTransactions)
	}
	wantAvg := (0.2 + 0.8) / 2
	if results.Control.AvgFraudScore != wantAvg {
		t.Errorf("Control.AvgFraudScore = %v, want %v", results.Control.AvgFraudScore, wantAvg)
	}
	if results.Control.FlaggedCount != 1 {
		t.Errorf("Control.FlaggedCount = %d, want 1", results.Control.FlaggedCount)
	}
	if results.Control.TotalAmount != 200 {
		t.Errorf("Control.TotalAmount = %v, want 200", results.Control.TotalAmount)
	}

	if results.Test.TotalTransactions != 1 {
		t.Errorf("Test.TotalTransactions = %d, want 1", results.Test.TotalTransactions)
	}
	if results.Test.BlockedCount != 1 {
		t.Errorf("Test.BlockedCount = %d, want 1", results.Test.BlockedCount)
	}
	if results.Test.RulesTriggered["HIGH_AMOUNT"] != 1 || results.Test.RulesTriggered["HIGH_VELOCITY"] != 1 {
		t.Errorf("Test.RulesTriggered = %v, want both HIGH_AMOUNT and HIGH_VELOCITY at 1", results.Test.RulesTriggered)
	}
}

func TestSignificance_BelowMinimumSampleSizeIsInconclusive(t *testing.T) {
	m := NewManager()
	exp := &Experiment{Name: "small-sample", TrafficSplit: 0.5}
	if err := m.Create(exp); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(exp.ID); err != nil {
		t.Fatal(err)
	}

	control := &Assignment{ExperimentID: exp.ID, Group: "control"}
	m.RecordOutcome(exp.ID, control, models.Decision{FraudScore: 0.1, RiskLevel: models.RiskLevelLow}, 10)

	sig, err := m.Significance(exp.ID)
	if err != nil {
		t.Fatalf("Significance() error: %v", err)
	}
	if sig.IsSignificant {
		t.Error("expected IsSignificant = false below the minimum sample size")
	}
	if sig.SampleSizeControl != 1 {
		t.Errorf("SampleSizeControl = %d, want 1", sig.SampleSizeControl)
	}
}

func TestSignificance_LargeFlagRateGapIsSignificant(t *testing.T) {
	m := NewManager()
	exp := &Experiment{Name: "big-gap", TrafficSplit: 0.5}
	if err := m.Create(exp); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(exp.ID); err != nil {
		t.Fatal(err)
	}

	results, err := m.Results(exp.ID)
	if err != nil {
		t.Fatal(err)
	}

	// 200 samples per group: control flags 10%, test flags 30%.
	results.Control.TotalTransactions = 200
	results.Control.FlaggedCount = 20
	results.Control.scoreSum = 0.1 * 200
	results.Control.AvgFraudScore = 0.1

	results.Test.TotalTransactions = 200
	results.Test.FlaggedCount = 60
	results.Test.scoreSum = 0.3 * 200
	results.Test.AvgFraudScore = 0.3

	sig, err := m.Significance(exp.ID)
	if err != nil {
		t.Fatalf("Significance() error: %v", err)
	}
	if !sig.IsSignificant {
		t.Errorf("expected IsSignificant = true, got Significance=%+v", sig)
	}
	if sig.PValue >= 0.05 {
		t.Errorf("PValue = %v, want < 0.05", sig.PValue)
	}
	if sig.ScoreDifference <= 0 {
		t.Errorf("ScoreDifference = %v, want > 0 (test scores higher than control)", sig.ScoreDifference)
	}
	if sig.FlagRateDifference <= 0 {
		t.Errorf("FlagRateDifference = %v, want > 0", sig.FlagRateDifference)
	}
}

func TestExport_ProducesValidJSONWithSignificance(t *testing.T) {
	m := NewManager()
	exp := &Experiment{Name: "exportable", TrafficSplit: 0.5}
	if err := m.Create(exp); err != nil {
		t.Fatal(err)
	}

	data, err := m.Export(exp.ID)
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected a non-empty export payload")
	}
}

func TestExport_UnknownExperimentErrors(t *testing.T) {
	m := NewManager()
	if _, err := m.Export("missing"); err == nil {
		t.Error("expected an error exporting an unknown experiment")
	}
}

func TestErf_OddFunctionAroundZero(t *testing.T) {
	if got := erf(0); got > 1.5e-7 || got < -1.5e-7 {
		t.Errorf("erf(0) = %v, want 0 within the approximation's 1.5e-7 accuracy", got)
	}
	pos := erf(1)
	neg := erf(-1)
	if pos <= 0 {
		t.Errorf("erf(1) = %v, want > 0", pos)
	}
	if pos+neg > 1e-9 || pos+neg < -1e-9 {
		t.Errorf("erf(1) + erf(-1) = %v, want ~0", pos+neg)
	}
}

func TestNormalCDF_KnownPoints(t *testing.T) {
	if got := normalCDF(0); got < 0.49 || got > 0.51 {
		t.Errorf("normalCDF(0) = %v, want ~0.5", got)
	}
	if got := normalCDF(1.96); got < 0.974 || got > 0.976 {
		t.Errorf("normalCDF(1.96) = %v, want ~0.975", got)
	}
}
