package rollout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/strategy"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

func hostList(n int) []types.HostDescriptor {
	var hosts []types.HostDescriptor
	for i := 0; i < n; i++ {
		hosts = append(hosts, types.HostDescriptor{Address: string(rune('a' + i))})
	}
	return hosts
}

func batchSizes(batches [][]types.HostDescriptor) []int {
	var sizes []int
	for _, b := range batches {
		sizes = append(sizes, len(b))
	}
	return sizes
}

func TestPlanBatchesSequentialCyclesSingleHostBatches(t *testing.T) {
	s, err := strategy.Parse("sequential")
	require.NoError(t, err)

	batches := PlanBatches(hostList(4), s)
	assert.Equal(t, []int{1, 1, 1, 1}, batchSizes(batches))
}

func TestPlanBatchesParallelIsOneBatch(t *testing.T) {
	s, err := strategy.Parse("parallel")
	require.NoError(t, err)

	batches := PlanBatches(hostList(5), s)
	assert.Equal(t, []int{5}, batchSizes(batches))
}

func TestPlanBatchesCanaryWalksLinearlyAndAbsorbsRest(t *testing.T) {
	s, err := strategy.Parse("1+R")
	require.NoError(t, err)

	batches := PlanBatches(hostList(7), s)
	assert.Equal(t, []int{1, 6}, batchSizes(batches))
}

func TestPlanBatchesCanaryMultiStageAbsorbsLeftoverInLastBatch(t *testing.T) {
	s, err := strategy.Parse("2+3")
	require.NoError(t, err)

	batches := PlanBatches(hostList(8), s)
	// 2 in the first batch, the remaining 6 all ride in the last declared
	// batch even though its token only said "3".
	assert.Equal(t, []int{2, 6}, batchSizes(batches))
}

func TestPlanBatchesCanaryFewerHostsThanBatches(t *testing.T) {
	s, err := strategy.Parse("2+3+R")
	require.NoError(t, err)

	batches := PlanBatches(hostList(1), s)
	assert.Equal(t, []int{1}, batchSizes(batches))
}

func TestPlanBatchesEmptyHostList(t *testing.T) {
	s, err := strategy.Parse("sequential")
	require.NoError(t, err)
	assert.Nil(t, PlanBatches(nil, s))
}
