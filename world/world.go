// Package world is the process-wide node registry. Node lifecycle is
// entirely governed here: a Node is born when AddNode registers it and
// spawns its run loop, and destroyed when DeleteNode removes the
// mapping and signals the loop to stop.
package world

import (
	"sync"

	"github.com/klaytn/powsim/common"
	"github.com/klaytn/powsim/log"
	"github.com/klaytn/powsim/node"
)

var logger = log.NewModuleLogger(log.ModuleWorld)

// World is the process-wide set of nodes. Reference-counting of node
// handles is handled for free by Go's garbage collector: a goroutine
// holding a *node.Node pointer keeps it reachable even after DeleteNode
// removes it from the map, so in-flight deliveries never
// use-after-free.
type World struct {
	mu     sync.RWMutex
	nodes  map[common.Address]*node.Node
	fabric node.Fabric
}

// New returns an empty World. Fabric must be attached with SetFabric
// before AddNode is called.
func New() *World {
	return &World{nodes: make(map[common.Address]*node.Node)}
}

var (
	instanceOnce sync.Once
	instance     *World
)

// Instance returns the single process-wide World, lazily constructing
// it on first use.
func Instance() *World {
	instanceOnce.Do(func() { instance = New() })
	return instance
}

// SetFabric attaches the network fabric new nodes will be wired to.
// Fabric implementations typically hold a reference back to this same
// World to resolve peer addresses, so the two are wired together after
// both exist rather than at construction time.
func (w *World) SetFabric(f node.Fabric) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fabric = f
}

// AddNode constructs a Node with a fresh random address, registers it,
// and spawns its run loop.
func (w *World) AddNode(difficulty int) common.Address {
	w.mu.Lock()
	fabric := w.fabric
	addr := common.RandomAddress()
	for _, exists := w.nodes[addr]; exists; _, exists = w.nodes[addr] {
		addr = common.RandomAddress() // practically never hit at 64 bits of entropy
	}
	n := node.New(addr, difficulty, fabric)
	w.nodes[addr] = n
	w.mu.Unlock()

	go n.Run()
	logger.Info("node added", "address", addr)
	return addr
}

// DeleteNode removes addr from the registry, so no new broadcast finds
// it, and signals its run loop to stop. Reports whether addr was
// present.
func (w *World) DeleteNode(addr common.Address) bool {
	w.mu.Lock()
	n, ok := w.nodes[addr]
	if ok {
		delete(w.nodes, addr)
	}
	w.mu.Unlock()
	if !ok {
		return false
	}
	n.Stop()
	logger.Info("node deleted", "address", addr)
	return true
}

// GetNode returns the node registered under addr, if any.
func (w *World) GetNode(addr common.Address) (*node.Node, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n, ok := w.nodes[addr]
	return n, ok
}

// GetAddresses returns every currently registered address, in no
// particular order.
func (w *World) GetAddresses() []common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]common.Address, 0, len(w.nodes))
	for a := range w.nodes {
		out = append(out, a)
	}
	return out
}
