// Package detection classifies MazeRunner alerts with expression rules.
package detection

import (
	"fmt"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/invisible-tech/mazerunner-sdk/internal/types"
)

// Rule assigns a severity to alerts matching Expression. The expression sees
// id, alert_type, decoy_name, status and fields (the raw alert object).
type Rule struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Severity    string   `yaml:"severity"`
	Expression  string   `yaml:"expression"`
	Actions     []string `yaml:"actions"`

	program *vm.Program
}

// Validate checks the rule metadata. It does not compile the expression.
func (r *Rule) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.Severity, validation.Required, validation.In(
			types.SeverityInfo, types.SeverityLow, types.SeverityMedium,
			types.SeverityHigh, types.SeverityCritical,
		)),
		validation.Field(&r.Expression, validation.Required),
	)
}

// Info returns the API view of the rule.
func (r *Rule) Info() types.RuleInfo {
	return types.RuleInfo{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Severity:    r.Severity,
		Expression:  r.Expression,
		Actions:     r.Actions,
	}
}

func (r *Rule) compile() error {
	program, err := expr.Compile(r.Expression, expr.Env(env(&types.TrackedAlert{})), expr.AsBool())
	if err != nil {
		return fmt.Errorf("failed to compile rule %s: %w", r.ID, err)
	}
	r.program = program
	return nil
}

func (r *Rule) match(input map[string]any) bool {
	out, err := expr.Run(r.program, input)
	if err != nil {
		// Runtime errors, such as a missing key in fields, count as no match.
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func env(a *types.TrackedAlert) map[string]any {
	fields := a.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return map[string]any{
		"id":         a.ID,
		"alert_type": a.AlertType,
		"decoy_name": a.DecoyName,
		"status":     a.Status,
		"fields":     fields,
	}
}

// Engine evaluates alerts against rules.
type Engine struct {
	rules []*Rule
}

// NewEngine creates an engine with the default rule set.
func NewEngine() *Engine {
	e, err := NewEngineWithRules(defaultRules())
	if err != nil {
		panic(err)
	}
	return e
}

// NewEngineWithRules validates and compiles rules. Rule ids must be unique.
func NewEngineWithRules(rules []*Rule) (*Engine, error) {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule %q: %w", r.ID, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if err := r.compile(); err != nil {
			return nil, err
		}
	}
	return &Engine{rules: rules}, nil
}

type rulesFile struct {
	Rules []*Rule `yaml:"rules"`
}

// LoadEngine reads rules from a YAML file. An empty path yields the default
// rule set.
func LoadEngine(path string) (*Engine, error) {
	if path == "" {
		return NewEngine(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules %s: %w", path, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("no rules in %s", path)
	}
	return NewEngineWithRules(f.Rules)
}

// Evaluate returns the rules matching the alert, in load order.
func (e *Engine) Evaluate(a *types.TrackedAlert) []*Rule {
	input := env(a)
	var matched []*Rule
	for _, rule := range e.rules {
		if rule.match(input) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// Classify sets the alert's severity from the highest matching rule. The
// first rule wins a tie. Alerts matching nothing are INFO.
func (e *Engine) Classify(a *types.TrackedAlert) {
	var best *Rule
	for _, rule := range e.Evaluate(a) {
		if best == nil || types.SeverityRank(rule.Severity) > types.SeverityRank(best.Severity) {
			best = rule
		}
	}
	if best == nil {
		a.Severity = types.SeverityInfo
		return
	}
	a.Severity = best.Severity
	a.RuleID = best.ID
	a.RuleName = best.Name
	a.Description = best.Description
	a.Actions = best.Actions
}

// Rules returns the loaded rules (read-only).
func (e *Engine) Rules() []*Rule {
	return e.rules
}

// RuleInfos returns the API view of the loaded rules.
func (e *Engine) RuleInfos() []types.RuleInfo {
	out := make([]types.RuleInfo, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.Info())
	}
	return out
}

func defaultRules() []*Rule {
	return []*Rule{
		{
			ID:          "MR-001",
			Name:        "Code Execution on Decoy",
			Description: "An attacker executed code on a decoy",
			Severity:    types.SeverityCritical,
			Expression:  `alert_type == "code"`,
			Actions:     []string{"Isolate the source endpoint", "Download the memory dump", "Review the code image"},
		},
		{
			ID:          "MR-002",
			Name:        "Interactive Login to Decoy",
			Description: "A remote session was opened against a decoy service",
			Severity:    types.SeverityHigh,
			Expression:  `alert_type in ["ssh", "rdp"]`,
			Actions:     []string{"Identify the credentials used", "Trace the breadcrumb that led here"},
		},
		{
			ID:          "MR-003",
			Name:        "Decoy Share Accessed",
			Description: "A file share on a decoy was browsed",
			Severity:    types.SeverityMedium,
			Expression:  `alert_type == "share"`,
			Actions:     []string{"Check which endpoint held the share breadcrumb"},
		},
		{
			ID:          "MR-004",
			Name:        "Decoy Web Application Accessed",
			Description: "A decoy web application received a request",
			Severity:    types.SeverityMedium,
			Expression:  `alert_type == "http"`,
			Actions:     []string{"Review the network capture"},
		},
		{
			ID:          "MR-005",
			Name:        "Forensic Data Collected",
			Description: "The forensic puller returned data from an endpoint",
			Severity:    types.SeverityLow,
			Expression:  `alert_type == "forensic_puller"`,
			Actions:     []string{"Review the collected artifacts"},
		},
	}
}
