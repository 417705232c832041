// Package strategy parses a deployment strategy expression ("sequential",
// "parallel", or a "+"-joined batch expression like "2+3+R") into an ordered
// batch plan consumed by the rollout coordinator.
package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

// Parse recognizes the three strategy forms:
// the literal "sequential", the literal "parallel", and a "+"-joined
// expression of positive-integer or R/rest tokens. Matching is
// case-insensitive and tolerant of surrounding whitespace.
func Parse(expr string) (types.Strategy, error) {
	raw := strings.TrimSpace(expr)
	lower := strings.ToLower(raw)

	switch lower {
	case "sequential":
		return types.Strategy{
			Expression: raw,
			Batches:    []types.Batch{{Size: types.BatchCount{Count: 1}}},
			IsCanary:   false,
		}, nil
	case "parallel":
		return types.Strategy{
			Expression: raw,
			Batches:    []types.Batch{{Size: types.BatchCount{Rest: true}}},
			IsCanary:   false,
		}, nil
	}

	tokens := strings.Split(raw, "+")
	batches := make([]types.Batch, 0, len(tokens))
	for i, tok := range tokens {
		tok = strings.TrimSpace(tok)
		count, isRest, err := parseToken(tok)
		if err != nil {
			return types.Strategy{}, fmt.Errorf("invalid strategy %q: %w", expr, err)
		}
		if isRest && i != len(tokens)-1 {
			return types.Strategy{}, fmt.Errorf("invalid strategy %q: rest/R may only be the final batch", expr)
		}
		batches = append(batches, types.Batch{Size: types.BatchCount{Rest: isRest, Count: count}})
	}

	return types.Strategy{
		Expression: raw,
		Batches:    batches,
		IsCanary:   len(batches) > 1,
	}, nil
}

func parseToken(tok string) (count int, isRest bool, err error) {
	lower := strings.ToLower(tok)
	if lower == "r" || lower == "rest" {
		return 0, true, nil
	}

	n, convErr := strconv.Atoi(tok)
	if convErr != nil {
		return 0, false, fmt.Errorf("token %q is neither a positive integer nor R/rest", tok)
	}
	if n <= 0 {
		return 0, false, fmt.Errorf("token %q must be a positive integer", tok)
	}
	return n, false, nil
}
