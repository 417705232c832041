package rollout

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/log"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

// Coordinator runs a full fleet rollout: plan batches from the strategy,
// deploy each batch's hosts concurrently, and, for a canary strategy,
// abort every batch after the one that first saw a failure.
type Coordinator struct {
	Deployer  *HostDeployer
	BaseURLFn func(types.HostDescriptor) string
}

// Run executes the rollout against hosts using the given strategy and the
// preflight analyses already gathered for each host (keyed by
// HostDescriptor.Addr()).
func (c *Coordinator) Run(ctx context.Context, hosts []types.HostDescriptor, strategy types.Strategy, analyses map[string]types.HostAnalysis, opts types.RolloutOptions) types.RolloutSummary {
	batches := PlanBatches(hosts, strategy)
	summary := types.RolloutSummary{Results: make(map[string]types.HostResult, len(hosts))}

	logger := log.Logger.With().Str("strategy", strategy.DisplayName()).Int("batches", len(batches)).Logger()
	logger.Info().Msg("starting rollout")

	for batchIdx, batch := range batches {
		logger.Info().Int("batch", batchIdx).Int("hosts", len(batch)).Msg("deploying batch")

		var mu sync.Mutex
		batchFailed := false

		g, gctx := errgroup.WithContext(ctx)
		for _, h := range batch {
			h := h
			g.Go(func() error {
				analysis := analyses[h.Addr()]
				res := c.Deployer.DeployHost(gctx, h, c.BaseURLFn(h), analysis, opts)

				mu.Lock()
				summary.Results[h.Addr()] = res
				switch res.Outcome {
				case types.HostSucceeded:
					summary.Successful++
				case types.HostSkipped:
					summary.Skipped++
				default:
					summary.Failed++
					batchFailed = true
				}
				mu.Unlock()
				return nil // a single host's failure never cancels its batch siblings
			})
		}
		_ = g.Wait()

		if strategy.IsCanary && batchFailed {
			summary.Aborted = true
			summary.FailedBatch = batchIdx + 1
			logger.Warn().Int("batch", batchIdx).Msg("canary batch failed, aborting remaining batches")
			markRemainingSkipped(&summary, batches[batchIdx+1:])
			break
		}
	}

	logger.Info().Int("successful", summary.Successful).Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).Bool("aborted", summary.Aborted).Msg("rollout finished")
	return summary
}

func markRemainingSkipped(summary *types.RolloutSummary, remaining [][]types.HostDescriptor) {
	for _, batch := range remaining {
		for _, h := range batch {
			summary.Results[h.Addr()] = types.HostResult{Host: h, Outcome: types.HostSkipped}
			summary.Skipped++
		}
	}
}
