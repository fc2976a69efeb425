// Package node implements the per-node consensus and mining engine: a
// Node owns a Chain and a Mempool exclusively and runs a cooperative
// loop that interleaves candidate-chain adoption with mining attempts,
// collapsed into a single self-contained loop per node rather than a
// separate worker-and-sealing-agent split.
package node

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/klaytn/powsim/blockchain"
	"github.com/klaytn/powsim/blockchain/types"
	"github.com/klaytn/powsim/common"
	"github.com/klaytn/powsim/log"
	"github.com/klaytn/powsim/metrics"
	lru "github.com/hashicorp/golang-lru"
)

// blockCacheSize bounds the number of fetched-block results a Node
// keeps on hand across achieveConsensus passes.
const blockCacheSize = 256

// NonceStep is the number of nonces a node searches per run-loop pass
// before giving up and trying again next pass.
const NonceStep = 1000

// Fabric is the network contract a Node needs: broadcast a mined
// block, broadcast a client transaction, and fetch one block from a
// specific peer. Defined here (the consumer) rather than in package
// network, so network can depend on node without a cycle.
type Fabric interface {
	BroadcastBlock(block types.Block, length int, source common.Address)
	BroadcastTransaction(tx types.BlockTransaction, source common.Address)
	QueryBlock(hash common.BlockHash, destination common.Address) (types.Block, bool)
}

// CandidateChain is a longer chain announced by a peer, buffered
// pending validation on the node's next cooperative pass. At most one
// is held at a time: the best (longest) seen since the last pass.
type CandidateChain struct {
	Length   int
	TipBlock types.Block
	Source   common.Address
}

// Node owns a Chain and a Mempool exclusively; the World registry
// holds only a shared pointer to it, guarded by Node's own lock. A
// Node is born when added to the World and exits its run loop the
// next time it observes alive == false.
type Node struct {
	address    common.Address
	difficulty int
	fabric     Fabric
	logger     *log.Logger

	alive int32 // atomic; 1 while the run loop should keep going

	mu         sync.RWMutex // guards everything below
	chain      *blockchain.Chain
	mempool    *blockchain.Mempool
	nextNonce  uint64
	candidate  *CandidateChain
	fetchCache *lru.Cache // hash -> types.Block, fetched via the fabric during fork walks
}

// New constructs a Node with a fresh genesis chain and an empty
// mempool bound to it. The World registry is responsible for picking
// the node's address and spawning Run as a goroutine.
func New(address common.Address, difficulty int, fabric Fabric) *Node {
	chain := blockchain.NewChain(difficulty)
	cache, err := lru.New(blockCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size, which is a bug here
	}
	n := &Node{
		address:    address,
		difficulty: difficulty,
		fabric:     fabric,
		logger:     log.NewModuleLogger(log.ModuleNode),
		alive:      1,
		chain:      chain,
		mempool:    blockchain.NewFromChain(chain),
		fetchCache: cache,
	}
	return n
}

// Address returns the node's address.
func (n *Node) Address() common.Address { return n.address }

// Alive reports whether the node's run loop is still supposed to run.
func (n *Node) Alive() bool { return atomic.LoadInt32(&n.alive) != 0 }

// Stop signals the run loop to exit on its next iteration. Already
// in-flight delivery tasks targeting this node harmlessly find it
// still alive or, once it has exited, simply mutate dead state that
// nothing reads again.
func (n *Node) Stop() { atomic.StoreInt32(&n.alive, 0) }

// Run is the node's cooperative loop: achieve consensus, attempt
// mining, release the lock, yield. It returns when the node is
// stopped.
func (n *Node) Run() {
	for n.Alive() {
		n.mu.Lock()
		n.achieveConsensus()
		n.mineStep()
		n.mu.Unlock()
		runtime.Gosched()
	}
}

// mineStep tries NonceStep nonces over a candidate block built from
// the current tip, miner and mempool snapshot. Called with n.mu held.
func (n *Node) mineStep() {
	txs := n.mempool.Snapshot()
	block, found := types.AttemptMining(n.chain.LastHash(), n.address, txs, n.nextNonce, NonceStep, n.difficulty)
	if !found {
		n.nextNonce += NonceStep
		return
	}

	if err := n.chain.Append(block); err != nil {
		// Our own mining loop produced a block that our own chain
		// rejects: this is a bug, not a recoverable condition.
		n.logger.Crit("mined block rejected by own chain", "err", err, "hash", block.Hash())
		return
	}
	n.nextNonce = 0
	n.mempool.Reset(n.chain)
	length := n.chain.Len()
	metrics.BlockMined(n.address)
	n.logger.Info("mined block", "hash", block.Hash(), "height", length-1)
	n.fabric.BroadcastBlock(block, length, n.address)
}

// achieveConsensus consumes the buffered candidate, if any, and tries
// to adopt it. Called with n.mu held.
func (n *Node) achieveConsensus() {
	cand := n.candidate
	n.candidate = nil
	if cand == nil {
		return
	}
	if cand.Length <= n.chain.Len() {
		n.logger.Info("ignoring candidate no longer longer than local chain", "candidateLength", cand.Length, "localLength", n.chain.Len())
		return
	}

	needle := cand.TipBlock.Hash()
	n.fetchCache.Add(needle, cand.TipBlock)
	var newBlocks []types.Block
	if n.chain.Contains(needle) {
		// Unreachable under the length-strictly-greater precondition
		// above (a longer chain can't share our tip), but kept as a
		// defensive no-fork-to-fill path.
	} else {
		newBlocks = append(newBlocks, cand.TipBlock)
		needle = cand.TipBlock.PrefixHash
		for !n.chain.Contains(needle) {
			block, ok := n.blockFor(needle, cand.Source)
			if !ok {
				n.logger.Warn("adoption aborted: peer gone or missing block", "needle", needle, "source", cand.Source)
				return
			}
			newBlocks = append(newBlocks, block)
			needle = block.PrefixHash
		}
	}
	commonAncestor := needle

	for _, b := range newBlocks {
		n.fetchCache.Add(b.Hash(), b)
	}

	clone := n.chain.Clone()
	if err := clone.PopUntil(commonAncestor); err != nil {
		n.logger.Warn("adoption aborted: common ancestor not reachable", "err", err)
		return
	}

	ordered := make([]types.Block, len(newBlocks))
	for i, b := range newBlocks {
		ordered[len(newBlocks)-1-i] = b // newBlocks was collected newest-first
	}
	if err := clone.AppendMany(ordered); err != nil {
		n.logger.Warn("adoption aborted: replay failed", "err", err)
		return
	}
	if clone.Len() != cand.Length {
		n.logger.Warn("adoption aborted: replayed length mismatch", "got", clone.Len(), "want", cand.Length)
		return
	}

	n.chain = clone
	n.nextNonce = 0
	n.mempool.Reset(n.chain)
	metrics.ReorgApplied()
	n.logger.Info("adopted longer chain", "length", clone.Len(), "source", cand.Source)
}

// blockFor returns the block for hash, preferring an already-fetched
// copy from fetchCache over a fresh fabric round trip.
func (n *Node) blockFor(hash common.BlockHash, source common.Address) (types.Block, bool) {
	if v, ok := n.fetchCache.Get(hash); ok {
		return v.(types.Block), true
	}
	block, ok := n.fabric.QueryBlock(hash, source)
	if ok {
		n.fetchCache.Add(hash, block)
	}
	return block, ok
}

// ReceiveBlock buffers a peer's announcement as a candidate, without
// validating it: validation happens on the node's own next
// achieveConsensus pass. Ignored if not longer than both the local
// chain and any already-buffered candidate.
func (n *Node) ReceiveBlock(block types.Block, length int, source common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if length <= n.chain.Len() {
		return
	}
	if n.candidate != nil && n.candidate.Length >= length {
		return
	}
	n.candidate = &CandidateChain{Length: length, TipBlock: block, Source: source}
	n.logger.Info("buffered candidate chain", "length", length, "source", source)
}

// AddTransaction pools a network-delivered transaction. Rejections are
// logged and otherwise swallowed: network handlers never propagate
// errors to callers.
func (n *Node) AddTransaction(tx types.BlockTransaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.mempool.Add(tx); err != nil {
		n.logger.Warn("rejected transaction from network", "id", tx.Id, "err", err)
		metrics.TxRejected()
		return
	}
	metrics.TxAccepted()
}

// AddClientTransaction wraps a raw transaction with a fresh id and the
// current tip, pools it, and — on success — broadcasts it to peers.
// Unlike AddTransaction, failures are reported to the caller: this is
// the client-submission path the admin surface uses.
func (n *Node) AddClientTransaction(raw types.Transaction) error {
	n.mu.Lock()
	tx := types.BlockTransaction{
		Id:         common.RandomTransactionId(),
		PrefixHash: n.chain.LastHash(),
		Info:       raw,
	}
	err := n.mempool.Add(tx)
	n.mu.Unlock()

	if err != nil {
		n.logger.Warn("client transaction rejected", "id", tx.Id, "err", err)
		metrics.TxRejected()
		return err
	}
	// Logged at Info, not Error: an accepted transaction is not a
	// failure.
	n.logger.Info("accepted client transaction", "id", tx.Id, "sender", raw.Sender, "receiver", raw.Receiver, "amount", raw.Amount)
	metrics.TxAccepted()
	n.fabric.BroadcastTransaction(tx, n.address)
	return nil
}

// Status is the read-only snapshot the admin surface and tests use.
type Status struct {
	ChainLength   int
	LastBlockHash common.BlockHash
	MempoolLength int
}

// Status returns a consistent read-only snapshot under the read lock.
func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Status{
		ChainLength:   n.chain.Len(),
		LastBlockHash: n.chain.LastHash(),
		MempoolLength: n.mempool.Len(),
	}
}

// GetBlock looks up a block by hash under the read lock. This is the
// only entry point the network fabric's QueryBlock may use: it never
// takes more than this node's read lock.
func (n *Node) GetBlock(hash common.BlockHash) (types.Block, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.chain.Get(hash)
}

// ChainBalanceMap returns a copy of the chain's balance index.
func (n *Node) ChainBalanceMap() map[common.Address]uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.chain.BalanceMap()
}

// MempoolBalanceMap returns a copy of the mempool's provisional
// balance index.
func (n *Node) MempoolBalanceMap() map[common.Address]uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.mempool.BalanceMap()
}
