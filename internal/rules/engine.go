// Package rules provides the CEL-Go based rule evaluation engine.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/velocity"
)

// Engine is the CEL-based rule evaluation engine.
// Rules are evaluated sequentially in load order.
type Engine struct {
	mu             sync.RWMutex
	env            *cel.Env
	rules          []*CompiledRule
	balanceEpsilon float64
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// Result is the rule engine output for one row.
type Result struct {
	Flags     domain.RuleFlags
	Triggered []string
	// Score is the fraction of loaded rules that fired.
	Score float64
}

// NewEngine creates a new rule evaluation engine.
func NewEngine(balanceEpsilon float64) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("step", cel.IntType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("origin_id", cel.StringType),
		cel.Variable("dest_id", cel.StringType),
		cel.Variable("orig_balance_before", cel.DoubleType),
		cel.Variable("orig_balance_after", cel.DoubleType),
		cel.Variable("dest_balance_before", cel.DoubleType),
		cel.Variable("dest_balance_after", cel.DoubleType),
		// Peer statistics of the origin account within the batch
		cel.Variable("origin_tx_count", cel.IntType),
		cel.Variable("origin_mean", cel.DoubleType),
		cel.Variable("origin_std", cel.DoubleType),
		cel.Variable("origin_max", cel.DoubleType),
		cel.Variable("origin_step_count", cel.IntType),
		cel.Variable("balance_epsilon", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:            env,
		balanceEpsilon: balanceEpsilon,
	}, nil
}

// NewDefaultEngine creates an engine with the builtin rules loaded.
func NewDefaultEngine(balanceEpsilon float64) (*Engine, error) {
	engine, err := NewEngine(balanceEpsilon)
	if err != nil {
		return nil, err
	}
	if err := engine.LoadRules(BuiltinRules()); err != nil {
		return nil, err
	}
	return engine, nil
}

// LoadRule compiles and appends a rule. A rule with an existing id is replaced in place.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}
	e.upsert(compiled)
	return nil
}

// upsert replaces a rule with the same id or appends it. Callers hold mu.
func (e *Engine) upsert(compiled *CompiledRule) {
	for i, r := range e.rules {
		if r.Config.ID == compiled.Config.ID {
			e.rules[i] = compiled
			return
		}
	}
	e.rules = append(e.rules, compiled)
}

// LoadRules compiles every enabled rule before loading any of them, so a
// single invalid rule leaves the engine unchanged.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled := make([]*CompiledRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		c, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	for _, c := range compiled {
		e.upsert(c)
	}
	return nil
}

// Evaluate runs every loaded rule against every row of the batch.
// Peer statistics are computed over the same batch.
func (e *Engine) Evaluate(ctx context.Context, txs []domain.Transaction) ([]Result, error) {
	return e.EvaluateWithIndex(ctx, txs, velocity.Build(txs))
}

// EvaluateWithIndex is Evaluate with precomputed peer statistics.
func (e *Engine) EvaluateWithIndex(ctx context.Context, txs []domain.Transaction, ix *velocity.Index) ([]Result, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	results := make([]Result, len(txs))
	activation := make(map[string]any, 15)

	for i := range txs {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		tx := &txs[i]
		stats := ix.Origin(tx.OriginID)
		stepCount := ix.StepCount(tx.OriginID, tx.Step)

		activation["step"] = int64(tx.Step)
		activation["tx_type"] = tx.Type
		activation["amount"] = tx.Amount
		activation["origin_id"] = tx.OriginID
		activation["dest_id"] = tx.DestID
		activation["orig_balance_before"] = tx.OrigBalanceBefore
		activation["orig_balance_after"] = tx.OrigBalanceAfter
		activation["dest_balance_before"] = tx.DestBalanceBefore
		activation["dest_balance_after"] = tx.DestBalanceAfter
		activation["origin_tx_count"] = int64(stats.Count)
		activation["origin_mean"] = stats.Mean
		activation["origin_std"] = stats.Std
		activation["origin_max"] = stats.Max
		activation["origin_step_count"] = int64(stepCount)
		activation["balance_epsilon"] = e.balanceEpsilon

		res := Result{Flags: domain.RuleFlags{Frequency: stepCount}}
		for _, rule := range rules {
			fired, err := evaluateRule(rule, activation)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			if fired {
				res.Triggered = append(res.Triggered, rule.Config.ID)
				setFlag(&res.Flags, rule.Config.ID)
			}
		}
		if len(rules) > 0 {
			res.Score = float64(len(res.Triggered)) / float64(len(rules))
		}
		results[i] = res
	}

	return results, nil
}

// evaluateRule evaluates a single rule against the current row.
func evaluateRule(rule *CompiledRule, activation map[string]any) (bool, error) {
	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rule %s: %w", rule.Config.ID, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("rule %s returned %v, want bool", rule.Config.ID, out.Type())
	}
	return bool(b), nil
}

func setFlag(flags *domain.RuleFlags, ruleID string) {
	switch ruleID {
	case domain.RuleAmountAnomaly:
		flags.AmountAnomaly = true
	case domain.RuleBalanceInconsistency:
		flags.BalanceError = true
	case domain.RuleZeroBalanceDrain:
		flags.ZeroBalance = true
	case domain.RuleHighFrequency:
		flags.HighFrequency = true
	case domain.RuleRiskyType:
		flags.RiskyType = true
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// GetLoadedRules returns the currently loaded rule configurations in evaluation order.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.rules))
	for _, compiled := range e.rules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nil
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
