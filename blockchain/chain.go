// Package blockchain holds the Chain and Mempool: the append-only
// history of well-mined blocks and the tip-bound pool of transactions
// waiting to be mined into the next one. Both are plain, single-owner
// data structures — the concurrency discipline that protects them
// lives one layer up, in package node.
package blockchain

import (
	"github.com/klaytn/powsim/blockchain/types"
	"github.com/klaytn/powsim/common"
	"github.com/klaytn/powsim/log"
	"github.com/pkg/errors"
)

var logger = log.NewModuleLogger(log.ModuleChain)

// CoinsPerMinedBlock is credited to a block's miner on append.
const CoinsPerMinedBlock = 1000

// MiningDifficulty is the default number of required leading zero
// bits. NewChain takes the difficulty as an argument, so tests pass a
// small value instead and mining completes fast.
const MiningDifficulty = 20

// Sentinel append-rejection causes, wrapped with github.com/pkg/errors
// so callers can distinguish them with errors.Cause while still
// getting a human message for logs.
var (
	ErrBadPrefix      = errors.New("block does not extend the current tip")
	ErrNotWellMined   = errors.New("block hash does not meet the difficulty target")
	ErrBadTxPrefix    = errors.New("transaction prefix_hash does not match block prefix_hash")
	ErrDuplicateTxId  = errors.New("duplicate transaction id within block")
	ErrInsufficientBalance = errors.New("sender balance insufficient for transaction amount")
	ErrUnknownTarget  = errors.New("pop_until target hash not present in chain")
	ErrChainEmpty     = errors.New("chain has no blocks to pop below genesis")
)

// Chain is the node's local history: a sequence of block hashes rooted
// at a fixed genesis, together with the block bodies and the running
// balance index those blocks imply.
type Chain struct {
	difficulty int
	sequence   []common.BlockHash
	blocks     map[common.BlockHash]types.Block
	balance    map[common.Address]uint64
}

// NewChain creates a fresh chain containing only the genesis block.
func NewChain(difficulty int) *Chain {
	g := types.Genesis()
	h := g.Hash()
	return &Chain{
		difficulty: difficulty,
		sequence:   []common.BlockHash{h},
		blocks:     map[common.BlockHash]types.Block{h: g},
		balance:    map[common.Address]uint64{},
	}
}

// Len returns the number of blocks in the chain, including genesis.
func (c *Chain) Len() int { return len(c.sequence) }

// LastHash returns the hash of the current tip.
func (c *Chain) LastHash() common.BlockHash { return c.sequence[len(c.sequence)-1] }

// Contains reports whether hash names a block currently in the chain.
func (c *Chain) Contains(hash common.BlockHash) bool {
	_, ok := c.blocks[hash]
	return ok
}

// Get returns the block named by hash, if present.
func (c *Chain) Get(hash common.BlockHash) (types.Block, bool) {
	b, ok := c.blocks[hash]
	return b, ok
}

// BalanceOf returns the current balance of an address; unknown
// addresses have balance zero.
func (c *Chain) BalanceOf(addr common.Address) uint64 { return c.balance[addr] }

// BalanceMap returns a copy of the full balance index.
func (c *Chain) BalanceMap() map[common.Address]uint64 {
	out := make(map[common.Address]uint64, len(c.balance))
	for a, v := range c.balance {
		out[a] = v
	}
	return out
}

// Clone returns a deep copy of the chain, used by the consensus
// reorg path so candidate adoption is all-or-nothing: the clone is
// mutated and only swapped in on full success.
func (c *Chain) Clone() *Chain {
	seq := make([]common.BlockHash, len(c.sequence))
	copy(seq, c.sequence)
	blocks := make(map[common.BlockHash]types.Block, len(c.blocks))
	for h, b := range c.blocks {
		blocks[h] = b
	}
	return &Chain{
		difficulty: c.difficulty,
		sequence:   seq,
		blocks:     blocks,
		balance:    c.BalanceMap(),
	}
}

// Append validates and appends a single block. On rejection, no state
// is changed. Validation and application order: prefix match,
// well-mined, every transaction's prefix_hash matches, transaction ids
// distinct within the block, and every sender has sufficient balance
// at the moment its own transaction applies.
func (c *Chain) Append(b types.Block) error {
	if b.PrefixHash != c.LastHash() {
		return errors.Wrapf(ErrBadPrefix, "block prefix %s != tip %s", b.PrefixHash, c.LastHash())
	}
	if !b.WellMined(c.difficulty) {
		return errors.Wrapf(ErrNotWellMined, "hash %s", b.Hash())
	}

	seen := make(map[common.TransactionId]struct{}, len(b.Transactions))
	for _, tx := range b.Transactions {
		if tx.PrefixHash != b.PrefixHash {
			return errors.Wrapf(ErrBadTxPrefix, "tx %s", tx.Id)
		}
		if _, dup := seen[tx.Id]; dup {
			return errors.Wrapf(ErrDuplicateTxId, "tx %s", tx.Id)
		}
		seen[tx.Id] = struct{}{}
	}

	// Dry-run the balance effects before mutating anything: this keeps
	// the "no state change on err" guarantee even though transactions
	// are validated against each other in order.
	trial := c.BalanceMap()
	for _, tx := range b.Transactions {
		if trial[tx.Info.Sender] < tx.Info.Amount {
			return errors.Wrapf(ErrInsufficientBalance, "tx %s sender %s", tx.Id, tx.Info.Sender)
		}
		trial[tx.Info.Sender] -= tx.Info.Amount
		trial[tx.Info.Receiver] += tx.Info.Amount
	}
	trial[b.Miner] += CoinsPerMinedBlock

	hash := b.Hash()
	c.balance = trial
	c.sequence = append(c.sequence, hash)
	c.blocks[hash] = b
	logger.Info("appended block", "hash", hash, "miner", b.Miner, "txs", len(b.Transactions), "height", len(c.sequence)-1)
	return nil
}

// AppendMany appends blocks in order, atomically: on the first
// rejection none of the blocks are applied. Every caller (consensus
// reorg) wants all-or-nothing semantics, and a partial-advance footgun
// has no legitimate caller.
func (c *Chain) AppendMany(blocks []types.Block) error {
	trial := c.Clone()
	for i, b := range blocks {
		if err := trial.Append(b); err != nil {
			return errors.Wrapf(err, "append_many: block %d/%d", i, len(blocks))
		}
	}
	*c = *trial
	return nil
}

// Pop removes the last block unless it is genesis, exactly reversing
// its balance effects. Returns the removed block, or false if the
// chain is only genesis.
func (c *Chain) Pop() (types.Block, bool) {
	if len(c.sequence) <= 1 {
		return types.Block{}, false
	}
	hash := c.sequence[len(c.sequence)-1]
	b := c.blocks[hash]

	c.balance[b.Miner] -= CoinsPerMinedBlock
	for i := len(b.Transactions) - 1; i >= 0; i-- {
		tx := b.Transactions[i]
		c.balance[tx.Info.Receiver] -= tx.Info.Amount
		c.balance[tx.Info.Sender] += tx.Info.Amount
	}

	c.sequence = c.sequence[:len(c.sequence)-1]
	delete(c.blocks, hash)
	logger.Info("popped block", "hash", hash, "height", len(c.sequence))
	return b, true
}

// PopUntil pops repeatedly until the tip equals target. Precondition:
// target must already be present in the chain.
func (c *Chain) PopUntil(target common.BlockHash) error {
	if !c.Contains(target) {
		return errors.Wrapf(ErrUnknownTarget, "target %s", target)
	}
	for c.LastHash() != target {
		if _, ok := c.Pop(); !ok {
			return errors.Wrap(ErrChainEmpty, "pop_until ran past genesis")
		}
	}
	return nil
}
