package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newBuiltinEngine(t *testing.T, epsilon float64) *Engine {
	t.Helper()
	engine, err := NewDefaultEngine(epsilon)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(0)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestBuiltinRulesLoad(t *testing.T) {
	engine := newBuiltinEngine(t, 0)

	loaded := engine.GetLoadedRules()
	if len(loaded) != 5 {
		t.Fatalf("expected 5 rules, got %d", len(loaded))
	}

	want := []string{
		domain.RuleAmountAnomaly,
		domain.RuleBalanceInconsistency,
		domain.RuleZeroBalanceDrain,
		domain.RuleHighFrequency,
		domain.RuleRiskyType,
	}
	for i, id := range want {
		if loaded[i].ID != id {
			t.Errorf("rule %d: expected %s, got %s", i, id, loaded[i].ID)
		}
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(0)
	defer engine.Close()

	t.Run("SyntaxError", func(t *testing.T) {
		err := engine.LoadRule(&domain.RuleConfig{ID: "invalid", Expression: "this is not valid CEL !!!", Enabled: true})
		if err == nil {
			t.Error("expected error for invalid CEL expression")
		}
	})

	t.Run("NonBoolOutput", func(t *testing.T) {
		err := engine.LoadRule(&domain.RuleConfig{ID: "double", Expression: "amount * 2.0", Enabled: true})
		if err == nil {
			t.Error("expected error for non-bool expression")
		}
	})

	t.Run("UnknownVariable", func(t *testing.T) {
		err := engine.LoadRule(&domain.RuleConfig{ID: "unknown", Expression: "currency == 'USD'", Enabled: true})
		if err == nil {
			t.Error("expected error for undeclared variable")
		}
	})

	if engine.RulesCount() != 0 {
		t.Errorf("failed rules must not be loaded, got %d", engine.RulesCount())
	}
}

func TestLoadRulesAllOrNothing(t *testing.T) {
	engine, _ := NewEngine(0)
	defer engine.Close()

	configs := append(BuiltinRules(), &domain.RuleConfig{ID: "broken", Expression: "amount >", Enabled: true})
	if err := engine.LoadRules(configs); err == nil {
		t.Fatal("expected error for invalid rule in batch")
	}
	if engine.RulesCount() != 0 {
		t.Errorf("expected no rules after a failed batch load, got %d", engine.RulesCount())
	}

	t.Run("DisabledRulesSkipped", func(t *testing.T) {
		configs := []*domain.RuleConfig{
			{ID: "on", Expression: "amount > 1.0", Enabled: true},
			{ID: "off", Expression: "amount >", Enabled: false},
		}
		if err := engine.LoadRules(configs); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if engine.RulesCount() != 1 {
			t.Errorf("expected 1 rule, got %d", engine.RulesCount())
		}
	})
}

func TestLoadRuleReplacesSameID(t *testing.T) {
	engine, _ := NewEngine(0)
	defer engine.Close()

	_ = engine.LoadRule(&domain.RuleConfig{ID: "big", Expression: "amount > 10.0", Enabled: true})
	_ = engine.LoadRule(&domain.RuleConfig{ID: "big", Expression: "amount > 1000.0", Enabled: true})

	if engine.RulesCount() != 1 {
		t.Fatalf("expected 1 rule, got %d", engine.RulesCount())
	}
	results, err := engine.Evaluate(context.Background(), []domain.Transaction{{OriginID: "C1", Amount: 500}})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if results[0].Score != 0 {
		t.Errorf("expected replaced rule not to fire, got score %f", results[0].Score)
	}
}

func TestAccountDrain(t *testing.T) {
	engine := newBuiltinEngine(t, 0)

	txs := []domain.Transaction{{
		Step:              1,
		Type:              domain.TxTypeTransfer,
		Amount:            600000,
		OriginID:          "C1",
		OrigBalanceBefore: 600000,
		OrigBalanceAfter:  0,
		DestID:            "C2",
	}}

	results, err := engine.Evaluate(context.Background(), txs)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	f := results[0].Flags
	if !f.AmountAnomaly {
		t.Error("expected amount anomaly")
	}
	if f.BalanceError {
		t.Error("balance is consistent, expected no balance error")
	}
	if !f.ZeroBalance {
		t.Error("expected zero balance drain")
	}
	if f.HighFrequency {
		t.Error("expected no high frequency")
	}
	if !f.RiskyType {
		t.Error("expected risky type")
	}
	if results[0].Score < 0.6 {
		t.Errorf("expected rule score >= 0.6, got %f", results[0].Score)
	}
	if results[0].Score != 0.6 {
		t.Errorf("expected rule score 0.6, got %f", results[0].Score)
	}
}

func TestAmountAnomalyUsesPeerStats(t *testing.T) {
	engine := newBuiltinEngine(t, 0)

	var txs []domain.Transaction
	for i := 0; i < 20; i++ {
		txs = append(txs, domain.Transaction{Step: i, Type: domain.TxTypePayment, Amount: 100, OriginID: "C1", OrigBalanceBefore: 1000, OrigBalanceAfter: 900})
	}
	txs = append(txs, domain.Transaction{Step: 30, Type: domain.TxTypePayment, Amount: 5000, OriginID: "C1", OrigBalanceBefore: 10000, OrigBalanceAfter: 5000})

	results, err := engine.Evaluate(context.Background(), txs)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if results[0].Flags.AmountAnomaly {
		t.Error("typical amount must not be flagged")
	}
	if !results[len(results)-1].Flags.AmountAnomaly {
		t.Error("outlier amount must be flagged")
	}
}

func TestHighFrequency(t *testing.T) {
	engine := newBuiltinEngine(t, 0)

	build := func(n int) []domain.Transaction {
		txs := make([]domain.Transaction, n)
		for i := range txs {
			txs[i] = domain.Transaction{Step: 7, Type: domain.TxTypePayment, Amount: 10, OriginID: "C9", OrigBalanceBefore: 100, OrigBalanceAfter: 90}
		}
		return txs
	}

	t.Run("FiveIsNotEnough", func(t *testing.T) {
		results, _ := engine.Evaluate(context.Background(), build(5))
		if results[0].Flags.HighFrequency {
			t.Error("5 transactions in one step must not be flagged")
		}
		if results[0].Flags.Frequency != 5 {
			t.Errorf("expected frequency 5, got %d", results[0].Flags.Frequency)
		}
	})

	t.Run("SixIsFlagged", func(t *testing.T) {
		results, _ := engine.Evaluate(context.Background(), build(6))
		for i, r := range results {
			if !r.Flags.HighFrequency {
				t.Errorf("row %d: expected high frequency", i)
			}
		}
	})
}

func TestBalanceEpsilon(t *testing.T) {
	txs := []domain.Transaction{{
		Type:              domain.TxTypePayment,
		Amount:            100,
		OriginID:          "C1",
		OrigBalanceBefore: 1000,
		OrigBalanceAfter:  900.005,
	}}

	t.Run("ExactByDefault", func(t *testing.T) {
		results, _ := newBuiltinEngine(t, 0).Evaluate(context.Background(), txs)
		if !results[0].Flags.BalanceError {
			t.Error("expected balance error with zero epsilon")
		}
	})

	t.Run("Tolerance", func(t *testing.T) {
		results, _ := newBuiltinEngine(t, 0.01).Evaluate(context.Background(), txs)
		if results[0].Flags.BalanceError {
			t.Error("expected no balance error within tolerance")
		}
	})
}

func TestRiskyType(t *testing.T) {
	engine := newBuiltinEngine(t, 0)

	types := map[string]bool{
		domain.TxTypePayment:  false,
		domain.TxTypeTransfer: true,
		domain.TxTypeCashOut:  true,
		domain.TxTypeDebit:    false,
		domain.TxTypeCashIn:   false,
	}
	for typ, want := range types {
		results, err := engine.Evaluate(context.Background(), []domain.Transaction{{Type: typ, OriginID: "C1"}})
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		if results[0].Flags.RiskyType != want {
			t.Errorf("%s: expected risky=%v", typ, want)
		}
	}
}

func TestEvaluateCancelled(t *testing.T) {
	engine := newBuiltinEngine(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Evaluate(ctx, []domain.Transaction{{OriginID: "C1"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEvaluateNoRules(t *testing.T) {
	engine, _ := NewEngine(0)
	defer engine.Close()

	results, err := engine.Evaluate(context.Background(), []domain.Transaction{{OriginID: "C1", Amount: 1e9}})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if results[0].Score != 0 || results[0].Flags.Count() != 0 {
		t.Errorf("expected empty result, got %+v", results[0])
	}
}
