// Package demo runs a background traffic generator: a goroutine that
// periodically submits a small random transaction to a random live
// node, exactly the way an external client would through the admin
// surface. It has no access to Node/Chain internals beyond the public
// operations the admin surface itself uses.
package demo

import (
	"context"
	"math/rand"
	"time"

	"github.com/klaytn/powsim/blockchain/types"
	"github.com/klaytn/powsim/common"
	"github.com/klaytn/powsim/log"
	"github.com/klaytn/powsim/world"
)

var logger = log.NewModuleLogger(log.ModuleDemo)

// defaultAmount bounds how large a generated transfer can be; kept
// small relative to the 1000-coin mining reward so early nodes can
// usually afford a few generated sends before any of their own blocks
// are mined.
const defaultAmount = 50

// Run submits random transactions at an average rate of one per
// interval until ctx is done. interval is jittered ±50% per tick so
// traffic isn't perfectly periodic.
func Run(ctx context.Context, w *world.World, interval time.Duration) {
	for {
		wait := jitter(interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		tick(w)
	}
}

func jitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return time.Second
	}
	half := interval / 2
	return half + time.Duration(rand.Int63n(int64(interval)))
}

func tick(w *world.World) {
	addrs := w.GetAddresses()
	if len(addrs) == 0 {
		return
	}
	source := addrs[rand.Intn(len(addrs))]
	n, ok := w.GetNode(source)
	if !ok {
		return
	}

	balances := n.ChainBalanceMap()
	sender := pickFundedSender(balances, source)
	receiver := addrs[rand.Intn(len(addrs))]
	amount := uint64(rand.Intn(defaultAmount) + 1)

	tx := types.Transaction{Sender: sender, Receiver: receiver, Amount: amount}
	if err := n.AddClientTransaction(tx); err != nil {
		logger.Debug("demo transaction rejected", "sender", sender, "receiver", receiver, "amount", amount, "err", err)
		return
	}
	logger.Info("demo transaction submitted", "node", source, "sender", sender, "receiver", receiver, "amount", amount)
}

// pickFundedSender returns an address with a positive chain balance if
// one exists, falling back to fallback (typically the node's own
// address, which accrues mining rewards over time even with zero
// transactions so far).
func pickFundedSender(balances map[common.Address]uint64, fallback common.Address) common.Address {
	for addr, bal := range balances {
		if bal > 0 {
			return addr
		}
	}
	return fallback
}
