// Package guardrails gates agent output behind a moderation policy.
// A gate is built once per connection attempt and installed on the
// transport as an output filter; verdicts attach to recorded messages
// by item id after the fact.
package guardrails

import "context"

type Status string

const (
	// StatusPending marks a finalized message whose verdict has not
	// arrived yet. Pending is never treated as failure.
	StatusPending Status = "PENDING"
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
)

type Category string

const (
	CategoryNone      Category = "NONE"
	CategoryOffensive Category = "OFFENSIVE"
	CategoryOffBrand  Category = "OFF_BRAND"
	CategoryViolence  Category = "VIOLENCE"
)

// Result is a moderation verdict for one candidate agent message.
type Result struct {
	Status    Status
	Category  Category
	Rationale string
	// TestedText is the exact text the verdict applies to.
	TestedText string
}

func Pending() Result {
	return Result{Status: StatusPending, Category: CategoryNone}
}

func Pass(testedText string) Result {
	return Result{Status: StatusPass, Category: CategoryNone, TestedText: testedText}
}

func Fail(category Category, rationale, testedText string) Result {
	return Result{Status: StatusFail, Category: category, Rationale: rationale, TestedText: testedText}
}

// Evaluator classifies one finalized agent utterance against a
// moderation policy.
type Evaluator interface {
	Evaluate(ctx context.Context, text string) (Result, error)
}

// Gate binds an evaluator to the policy derived from the active
// configuration set. An evaluator error does not fail the turn; the
// message passes with the error left to the caller to log.
type Gate struct {
	policyName string
	evaluator  Evaluator
}

func NewGate(policyName string, evaluator Evaluator) *Gate {
	return &Gate{policyName: policyName, evaluator: evaluator}
}

func (g *Gate) PolicyName() string { return g.policyName }

func (g *Gate) Check(ctx context.Context, text string) (Result, error) {
	if g == nil || g.evaluator == nil {
		return Pass(text), nil
	}

	result, err := g.evaluator.Evaluate(ctx, text)
	if err != nil {
		return Pass(text), err
	}

	result.TestedText = text
	return result, nil
}
