package blockchain

import (
	"testing"

	"github.com/klaytn/powsim/blockchain/types"
	"github.com/klaytn/powsim/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromChainSnapshotsTipAndBalance(t *testing.T) {
	// Property 7.
	c := NewChain(testDifficulty)
	b1 := mine(t, c, 1, nil)
	require.NoError(t, c.Append(b1))

	m := NewFromChain(c)
	assert.Equal(t, c.LastHash(), m.Tip())
	assert.Equal(t, c.BalanceMap(), m.BalanceMap())
	assert.Equal(t, 0, m.Len())
}

func TestMempoolAddRejectsBadTip(t *testing.T) {
	c := NewChain(testDifficulty)
	m := NewFromChain(c)
	tx := types.BlockTransaction{Id: 1, PrefixHash: common.BlockHash{0x1}, Info: types.Transaction{Sender: 1, Receiver: 2, Amount: 1}}
	err := m.Add(tx)
	assert.ErrorIs(t, err, ErrMempoolBadTip)
}

func TestMempoolAddRejectsDuplicateId(t *testing.T) {
	c := NewChain(testDifficulty)
	b1 := mine(t, c, 1, nil)
	require.NoError(t, c.Append(b1))
	m := NewFromChain(c)

	tx := types.BlockTransaction{Id: 1, PrefixHash: c.LastHash(), Info: types.Transaction{Sender: 1, Receiver: 2, Amount: 1}}
	require.NoError(t, m.Add(tx))
	err := m.Add(tx)
	assert.ErrorIs(t, err, ErrMempoolDuplicate)
}

func TestMempoolAddRejectsInsufficientBalance(t *testing.T) {
	c := NewChain(testDifficulty)
	m := NewFromChain(c)
	tx := types.BlockTransaction{Id: 1, PrefixHash: c.LastHash(), Info: types.Transaction{Sender: 1, Receiver: 2, Amount: 1}}
	err := m.Add(tx)
	assert.ErrorIs(t, err, ErrMempoolInsufficientBalance)
}

func TestMempoolAddAppliesProvisionalBalance(t *testing.T) {
	// Property 8.
	c := NewChain(testDifficulty)
	b1 := mine(t, c, 1, nil)
	require.NoError(t, c.Append(b1))
	m := NewFromChain(c)

	tx := types.BlockTransaction{Id: 1, PrefixHash: c.LastHash(), Info: types.Transaction{Sender: 1, Receiver: 2, Amount: 400}}
	require.NoError(t, m.Add(tx))
	assert.Equal(t, uint64(600), m.BalanceOf(1))
	assert.Equal(t, uint64(400), m.BalanceOf(2))
	assert.Equal(t, 1, m.Len())
}

func TestMempoolResetDropsPendingAndRebindsTip(t *testing.T) {
	c := NewChain(testDifficulty)
	b1 := mine(t, c, 1, nil)
	require.NoError(t, c.Append(b1))
	m := NewFromChain(c)

	tx := types.BlockTransaction{Id: 1, PrefixHash: c.LastHash(), Info: types.Transaction{Sender: 1, Receiver: 2, Amount: 400}}
	require.NoError(t, m.Add(tx))

	b2 := mine(t, c, 3, nil)
	require.NoError(t, c.Append(b2))
	m.Reset(c)

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, c.LastHash(), m.Tip())
	assert.Equal(t, c.BalanceMap(), m.BalanceMap())

	// The stale-tip transaction can no longer be re-added as-is.
	err := m.Add(tx)
	assert.ErrorIs(t, err, ErrMempoolBadTip)
}
