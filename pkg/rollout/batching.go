// Package rollout implements the staged multi-host rollout coordinator:
// splitting a host list into batches per the parsed strategy, deploying each
// batch, and aborting remaining batches on failure when the strategy is a
// canary.
package rollout

import "github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"

// PlanBatches splits hosts into ordered groups according to strategy.
//
// A canary strategy (len(strategy.Batches) > 1) walks its batch sizes
// linearly: the first N1 hosts form batch 1, the next N2 form batch 2, and
// so on. The final declared batch, whether it is an explicit "rest"/"R"
// token or just the last fixed count, always absorbs every host that
// remains once it is reached, so every host always lands in some batch even
// if the declared counts don't add up to len(hosts) exactly.
//
// A non-canary strategy (exactly one batch, e.g. "sequential" or
// "parallel") cycles that single batch size repeatedly (batchIdx %
// len(strategy.Batches)) until every host has been placed. Written as a
// modulo cycle rather than a single pass so the same logic would still be
// correct if a future non-canary strategy ever described more than one
// batch size.
func PlanBatches(hosts []types.HostDescriptor, strategy types.Strategy) [][]types.HostDescriptor {
	if len(hosts) == 0 || len(strategy.Batches) == 0 {
		return nil
	}

	remaining := append([]types.HostDescriptor(nil), hosts...)
	var batches [][]types.HostDescriptor

	if strategy.IsCanary {
		for i, b := range strategy.Batches {
			if len(remaining) == 0 {
				break
			}
			isLast := i == len(strategy.Batches)-1
			take := len(remaining)
			if !isLast && !b.Size.Rest && b.Size.Count < take {
				take = b.Size.Count
			}
			batches = append(batches, remaining[:take])
			remaining = remaining[take:]
		}
		return batches
	}

	batchIdx := 0
	for len(remaining) > 0 {
		b := strategy.Batches[batchIdx%len(strategy.Batches)]
		take := len(remaining)
		if !b.Size.Rest && b.Size.Count < take {
			take = b.Size.Count
		}
		batches = append(batches, remaining[:take])
		remaining = remaining[take:]
		batchIdx++
	}
	return batches
}
