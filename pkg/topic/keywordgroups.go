package topic

import (
	"context"

	"github.com/open-policy-agent/opa/v1/rego"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// groupPolicyModule evaluates a topic's optional keyword AND/OR group
// structure (spec §3) as a tiny Rego policy over the set of keywords
// actually matched in a mention's text, instead of hand-rolled boolean
// logic per group.
const groupPolicyModule = `
package govintel.topic

default satisfied := false

group_satisfied(group) if {
	group.operator == "AND"
	count({t | some t in group.terms; t in input.matched}) == count(group.terms)
}

group_satisfied(group) if {
	group.operator == "OR"
	some t in group.terms
	t in input.matched
}

satisfied if {
	some g in input.groups
	group_satisfied(g)
}
`

// KeywordGroupEvaluator evaluates keyword groups against the terms a
// mention's text actually matched. Construction compiles the policy once;
// Evaluate is safe for concurrent use across many mentions.
type KeywordGroupEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewKeywordGroupEvaluator compiles the keyword-group policy.
func NewKeywordGroupEvaluator(ctx context.Context) (*KeywordGroupEvaluator, error) {
	query, err := rego.New(
		rego.Query("data.govintel.topic.satisfied"),
		rego.Module("keywordgroups.rego", groupPolicyModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to compile keyword-group policy")
	}
	return &KeywordGroupEvaluator{query: query}, nil
}

// Evaluate reports whether any of groups is satisfied by matched, the set
// of lowercase keywords found in a mention's text. A topic with no groups
// is vacuously unsatisfied; callers should treat that as "no group
// boost", not as a rejection.
func (e *KeywordGroupEvaluator) Evaluate(ctx context.Context, groups []types.KeywordGroup, matched []string) (bool, error) {
	if len(groups) == 0 {
		return false, nil
	}

	input := map[string]interface{}{
		"groups":  toRegoGroups(groups),
		"matched": matched,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "keyword-group policy evaluation failed")
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	satisfied, _ := results[0].Expressions[0].Value.(bool)
	return satisfied, nil
}

func toRegoGroups(groups []types.KeywordGroup) []map[string]interface{} {
	out := make([]map[string]interface{}, len(groups))
	for i, g := range groups {
		out[i] = map[string]interface{}{
			"operator": g.Operator,
			"terms":    g.Terms,
		}
	}
	return out
}
