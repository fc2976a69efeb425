package blockchain

import (
	"github.com/klaytn/powsim/blockchain/types"
	"github.com/klaytn/powsim/common"
	"github.com/klaytn/powsim/log"
	"github.com/pkg/errors"
	gset "gopkg.in/fatih/set.v0"
)

var mempoolLogger = log.NewModuleLogger(log.ModuleMempool)

// Mempool rejection errors.
var (
	ErrMempoolBadTip    = errors.New("transaction prefix_hash does not match mempool tip")
	ErrMempoolDuplicate = errors.New("transaction id already pooled")
	ErrMempoolInsufficientBalance = errors.New("projected sender balance insufficient")
)

// Mempool is a single-tip validity filter: pending transactions bound
// to one specific chain tip, with provisional balances layered over
// the chain's own balance snapshot. Transactions minted against a tip
// that stops being current are never migrated; they die on Reset.
type Mempool struct {
	tip          common.BlockHash
	ids          *gset.Set // set<TransactionId>
	transactions []types.BlockTransaction
	balance      map[common.Address]uint64
}

// NewFromChain snapshots chain's balance map and tip hash into a fresh,
// empty Mempool.
func NewFromChain(c *Chain) *Mempool {
	return &Mempool{
		tip:     c.LastHash(),
		ids:     gset.New(),
		balance: c.BalanceMap(),
	}
}

// Tip returns the chain tip this mempool is currently bound to.
func (m *Mempool) Tip() common.BlockHash { return m.tip }

// Len returns the number of pooled transactions.
func (m *Mempool) Len() int { return len(m.transactions) }

// BalanceOf returns the provisional balance of addr, layering pooled
// effects over the chain snapshot.
func (m *Mempool) BalanceOf(addr common.Address) uint64 { return m.balance[addr] }

// BalanceMap returns a copy of the full provisional balance index.
func (m *Mempool) BalanceMap() map[common.Address]uint64 {
	out := make(map[common.Address]uint64, len(m.balance))
	for a, v := range m.balance {
		out[a] = v
	}
	return out
}

// Snapshot returns a copy of the currently pooled transactions, in
// insertion order, suitable for handing to the miner as a candidate
// block body.
func (m *Mempool) Snapshot() []types.BlockTransaction {
	out := make([]types.BlockTransaction, len(m.transactions))
	copy(out, m.transactions)
	return out
}

// Add validates and pools tx. Rejects a tip mismatch, a duplicate id,
// or a projected sender balance below the amount; otherwise appends in
// insertion order and applies the provisional balance effect.
func (m *Mempool) Add(tx types.BlockTransaction) error {
	if tx.PrefixHash != m.tip {
		return errors.Wrapf(ErrMempoolBadTip, "tx %s prefix %s != tip %s", tx.Id, tx.PrefixHash, m.tip)
	}
	if m.ids.Has(tx.Id) {
		return errors.Wrapf(ErrMempoolDuplicate, "tx %s", tx.Id)
	}
	if m.balance[tx.Info.Sender] < tx.Info.Amount {
		return errors.Wrapf(ErrMempoolInsufficientBalance, "tx %s sender %s", tx.Id, tx.Info.Sender)
	}

	m.ids.Add(tx.Id)
	m.transactions = append(m.transactions, tx)
	m.balance[tx.Info.Sender] -= tx.Info.Amount
	m.balance[tx.Info.Receiver] += tx.Info.Amount
	mempoolLogger.Info("pooled transaction", "id", tx.Id, "sender", tx.Info.Sender, "receiver", tx.Info.Receiver, "amount", tx.Info.Amount)
	return nil
}

// Reset re-snapshots the mempool against chain's current tip and
// balance, dropping every pending transaction. Called whenever the
// node's chain tip changes, whether by locally mining a block or by
// adopting a peer's longer chain.
func (m *Mempool) Reset(c *Chain) {
	m.tip = c.LastHash()
	m.ids = gset.New()
	m.transactions = nil
	m.balance = c.BalanceMap()
	mempoolLogger.Info("mempool reset", "tip", m.tip)
}
