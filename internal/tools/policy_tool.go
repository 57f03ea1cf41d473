package tools

import (
	"context"
	"fmt"

	"github.com/replydesk/replydesk/internal/policy"
)

// PolicyToolName is the function name the drafting stage sees.
const PolicyToolName = "search_bank_policy"

// RegisterPolicyTool adds the bank-policy lookup to the registry. The
// handler is pure and deterministic: same query, same answer, no side
// effects. The model may invoke it any number of times while drafting.
func RegisterPolicyTool(r *Registry) {
	r.Register(&Tool{
		Name:        PolicyToolName,
		Description: "Search the bank policy manual. Returns the policy text matching the query, or a pointer to the general terms when nothing specific applies.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Topic to look up (e.g., fraud, refund, fee)",
				},
			},
			"required": []string{"query"},
		},
		Handler: handlePolicyLookup,
	})
}

func handlePolicyLookup(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	return policy.Lookup(query), nil
}
