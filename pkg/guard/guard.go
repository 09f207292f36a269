package guard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/covenantdao/covenant/pkg/engine"
)

var _ engine.Guard = (*Guard)(nil)

// Guard evaluates Rego rules against proposals and action batches. It implements engine.Guard.
type Guard struct {
	mu     sync.RWMutex
	rules  map[string]*compiledRule
	loader *Loader
	logger zerolog.Logger
}

// compiledRule is a rule with its prepared deny query.
type compiledRule struct {
	rule     *Rule
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// New creates a guard loaded with the built-in rules.
func New(logger zerolog.Logger) (*Guard, error) {
	g := &Guard{
		rules:  make(map[string]*compiledRule),
		logger: logger.With().Str("component", "guard").Logger(),
	}
	g.loader = NewLoader(g.logger)

	ctx := context.Background()
	builtin := BuiltinRules()
	for i := range builtin {
		cr, err := compile(ctx, &builtin[i])
		if err != nil {
			return nil, fmt.Errorf("failed to compile built-in rule %s: %w", builtin[i].Name, err)
		}
		g.rules[cr.rule.Name] = cr
	}

	g.logger.Debug().Int("count", len(builtin)).Msg("Built-in rules loaded")
	return g, nil
}

// Evaluate runs every enabled rule against input. A rule that fails to evaluate fails the
// whole evaluation.
func (g *Guard) Evaluate(ctx context.Context, input *engine.GuardInput) (*engine.GuardResult, error) {
	start := time.Now()
	doc := NewDocument(input)

	g.mu.RLock()
	defer g.mu.RUnlock()

	result := &engine.GuardResult{Allowed: true}
	for _, cr := range g.sortedRules() {
		if !cr.rule.Enabled {
			continue
		}

		violations, err := evaluateRule(ctx, cr, doc)
		if err != nil {
			g.logger.Error().Err(err).
				Str("rule", cr.rule.Name).
				Str("operation", input.Operation).
				Msg("Rule evaluation failed")
			return nil, fmt.Errorf("failed to evaluate rule %s: %w", cr.rule.Name, err)
		}

		for _, v := range violations {
			if Severity(v.Severity).Blocks() {
				result.Allowed = false
			}
		}
		result.Violations = append(result.Violations, violations...)
	}

	g.logger.Debug().
		Str("operation", input.Operation).
		Int("actions", len(input.Actions)).
		Int("violations", len(result.Violations)).
		Bool("allowed", result.Allowed).
		Dur("duration", time.Since(start)).
		Msg("Guard evaluation completed")

	return result, nil
}

func (g *Guard) sortedRules() []*compiledRule {
	out := make([]*compiledRule, 0, len(g.rules))
	for _, cr := range g.rules {
		out = append(out, cr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rule.Name < out[j].rule.Name })
	return out
}

// evaluateRule evaluates a single compiled rule's deny set.
func evaluateRule(ctx context.Context, cr *compiledRule, doc *Document) ([]engine.GuardViolation, error) {
	results, err := cr.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return nil, err
	}

	var violations []engine.GuardViolation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cr.rule, d))
		}
	}
	return violations, nil
}

// createViolation builds a violation from one element of a deny set.
func createViolation(rule *Rule, result interface{}) engine.GuardViolation {
	violation := engine.GuardViolation{
		Rule:     rule.Name,
		Severity: string(rule.Severity),
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = sev
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compile parses a rule and prepares the query for its deny set.
func compile(ctx context.Context, rule *Rule) (*compiledRule, error) {
	if rule.Name == "" {
		return nil, errors.New("rule name is required")
	}
	module, err := ast.ParseModule(rule.Name+".rego", rule.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule: %w", err)
	}
	if rule.Severity == "" {
		rule.Severity = SeverityWarning
	}

	query, err := rego.New(
		rego.Module(rule.Name+".rego", rule.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = time.Now()
	}
	return &compiledRule{
		rule:     rule,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// AddRule compiles and adds a custom rule, replacing any custom rule with the same name.
func (g *Guard) AddRule(ctx context.Context, rule Rule) error {
	rule.Builtin = false
	cr, err := compile(ctx, &rule)
	if err != nil {
		return fmt.Errorf("failed to compile rule %s: %w", rule.Name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.rules[rule.Name]; ok && existing.rule.Builtin {
		return fmt.Errorf("rule %s would replace a built-in rule", rule.Name)
	}
	g.rules[rule.Name] = cr

	g.logger.Debug().Str("rule", rule.Name).Msg("Rule compiled successfully")
	return nil
}

// LoadRules loads custom rules from files and directories and adds them.
func (g *Guard) LoadRules(ctx context.Context, paths []string) error {
	rules, err := g.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	for i := range rules {
		if err := g.AddRule(ctx, rules[i]); err != nil {
			return err
		}
	}

	g.logger.Info().Int("count", len(rules)).Msg("Rules loaded successfully")
	return nil
}

// ReplaceCustomRules swaps every non-built-in rule for rules. Nothing changes if any rule fails
// to compile.
func (g *Guard) ReplaceCustomRules(ctx context.Context, rules []Rule) error {
	compiled := make([]*compiledRule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.Builtin = false
		cr, err := compile(ctx, &rule)
		if err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.Name, err)
		}
		compiled = append(compiled, cr)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, cr := range compiled {
		if existing, ok := g.rules[cr.rule.Name]; ok && existing.rule.Builtin {
			return fmt.Errorf("rule %s would replace a built-in rule", cr.rule.Name)
		}
	}
	for name, cr := range g.rules {
		if !cr.rule.Builtin {
			delete(g.rules, name)
		}
	}
	for _, cr := range compiled {
		g.rules[cr.rule.Name] = cr
	}
	return nil
}

// Watch loads rules from paths and reloads them whenever a rule file changes.
func (g *Guard) Watch(ctx context.Context, paths []string) error {
	rules, err := g.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	if err := g.ReplaceCustomRules(ctx, rules); err != nil {
		return err
	}
	return g.loader.Watch(ctx, paths, func(rules []Rule) error {
		return g.ReplaceCustomRules(ctx, rules)
	})
}

// Close stops watching rule files.
func (g *Guard) Close() error {
	return g.loader.StopWatching()
}

// GetRule returns a rule by name.
func (g *Guard) GetRule(name string) (*Rule, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cr, exists := g.rules[name]
	if !exists {
		return nil, fmt.Errorf("rule not found: %s", name)
	}
	rule := *cr.rule
	return &rule, nil
}

// ListRules returns all loaded rules ordered by name.
func (g *Guard) ListRules() []Rule {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sorted := g.sortedRules()
	rules := make([]Rule, 0, len(sorted))
	for _, cr := range sorted {
		rules = append(rules, *cr.rule)
	}
	return rules
}

// EnableRule enables a rule by name.
func (g *Guard) EnableRule(name string) error {
	return g.setEnabled(name, true)
}

// DisableRule disables a rule by name.
func (g *Guard) DisableRule(name string) error {
	return g.setEnabled(name, false)
}

func (g *Guard) setEnabled(name string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cr, exists := g.rules[name]
	if !exists {
		return fmt.Errorf("rule not found: %s", name)
	}
	cr.rule.Enabled = enabled

	g.logger.Info().Str("rule", name).Bool("enabled", enabled).Msg("Rule toggled")
	return nil
}
