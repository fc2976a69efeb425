package demo

import (
	"testing"
	"time"

	"github.com/klaytn/powsim/blockchain/types"
	"github.com/klaytn/powsim/common"
	"github.com/klaytn/powsim/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nullFabric struct{}

func (nullFabric) BroadcastBlock(types.Block, int, common.Address)            {}
func (nullFabric) BroadcastTransaction(types.BlockTransaction, common.Address) {}
func (nullFabric) QueryBlock(common.BlockHash, common.Address) (types.Block, bool) {
	return types.Block{}, false
}

func TestJitterStaysWithinHalfToOneAndAHalfX(t *testing.T) {
	interval := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := jitter(interval)
		assert.GreaterOrEqual(t, got, interval/2)
		assert.Less(t, got, interval+interval/2)
	}
}

func TestJitterNonPositiveFallsBackToOneSecond(t *testing.T) {
	assert.Equal(t, time.Second, jitter(0))
	assert.Equal(t, time.Second, jitter(-time.Minute))
}

func TestPickFundedSenderPrefersPositiveBalance(t *testing.T) {
	balances := map[common.Address]uint64{1: 0, 2: 500, 3: 0}
	got := pickFundedSender(balances, common.Address(1))
	assert.Equal(t, common.Address(2), got)
}

func TestPickFundedSenderFallsBackWhenAllZero(t *testing.T) {
	balances := map[common.Address]uint64{1: 0, 2: 0}
	got := pickFundedSender(balances, common.Address(9))
	assert.Equal(t, common.Address(9), got)
}

func TestTickWithNoNodesIsNoop(t *testing.T) {
	w := world.New()
	w.SetFabric(nullFabric{})
	assert.NotPanics(t, func() { tick(w) })
}

func TestTickSubmitsAgainstALiveNode(t *testing.T) {
	w := world.New()
	w.SetFabric(nullFabric{})
	addr := w.AddNode(48) // high difficulty: background mining won't race this check
	n, ok := w.GetNode(addr)
	require.True(t, ok)

	tick(w)
	// With a single node and no chain balances, the only candidate
	// sender is the node's own unfunded address, so the generated
	// transaction is rejected; the check here is only that tick does not
	// panic against a live node.
	_ = n.Status().MempoolLength
}
