// Package network implements the node.Fabric contract: broadcast a
// block, broadcast a transaction, and fetch one block from a specific
// peer. InProcessFabric is the bundled implementation — direct handle
// lookups through the World registry, no real sockets, one goroutine
// per delivery — since there is no wire protocol to speak here.
package network

import (
	"github.com/klaytn/powsim/blockchain/types"
	"github.com/klaytn/powsim/common"
	"github.com/klaytn/powsim/log"
	"github.com/klaytn/powsim/node"
	"github.com/klaytn/powsim/world"
)

var logger = log.NewModuleLogger(log.ModuleNetwork)

// InProcessFabric dispatches broadcasts and queries to peers it looks
// up in a World registry. Delivery is best-effort, unordered, and
// never suppresses duplicates.
type InProcessFabric struct {
	world *world.World
}

// NewInProcessFabric returns a fabric that resolves peers through w.
func NewInProcessFabric(w *world.World) *InProcessFabric {
	return &InProcessFabric{world: w}
}

var _ node.Fabric = (*InProcessFabric)(nil)

// BroadcastBlock enqueues an independent delivery task per peer
// address other than source. Each task resolves its target at run
// time, not at enqueue time, so a peer deleted in between is skipped
// rather than delivered-to-stale-state.
func (f *InProcessFabric) BroadcastBlock(block types.Block, length int, source common.Address) {
	for _, addr := range f.world.GetAddresses() {
		if addr == source {
			continue
		}
		addr := addr
		go func() {
			peer, ok := f.world.GetNode(addr)
			if !ok {
				logger.Warn("broadcast_block target gone", "addr", addr)
				return
			}
			peer.ReceiveBlock(block, length, source)
		}()
	}
}

// BroadcastTransaction is the same fan-out pattern as BroadcastBlock,
// calling AddTransaction on each peer.
func (f *InProcessFabric) BroadcastTransaction(tx types.BlockTransaction, source common.Address) {
	for _, addr := range f.world.GetAddresses() {
		if addr == source {
			continue
		}
		addr := addr
		go func() {
			peer, ok := f.world.GetNode(addr)
			if !ok {
				logger.Warn("broadcast_transaction target gone", "addr", addr)
				return
			}
			peer.AddTransaction(tx)
		}()
	}
}

// QueryBlock is a single, synchronous, read-only lookup: it takes only
// the destination node's read lock (via Node.GetBlock), never the
// caller's, so achieveConsensus can call it repeatedly while holding
// its own node's exclusive lock without risking deadlock.
func (f *InProcessFabric) QueryBlock(hash common.BlockHash, destination common.Address) (types.Block, bool) {
	peer, ok := f.world.GetNode(destination)
	if !ok {
		return types.Block{}, false
	}
	return peer.GetBlock(hash)
}
