// Package metrics exposes the process-wide counters the admin surface
// serves at GET /debug/metrics, via github.com/prometheus/client_golang
// and promhttp, rather than a sample/EWMA-based metrics package —
// nothing here needs that machinery.
package metrics

import (
	"net/http"

	"github.com/klaytn/powsim/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	blocksMined = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powsim_blocks_mined_total",
		Help: "Number of blocks mined, labeled by miner address.",
	}, []string{"miner"})

	reorgsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powsim_reorgs_total",
		Help: "Number of times a node adopted a longer candidate chain.",
	})

	txAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powsim_transactions_accepted_total",
		Help: "Number of transactions admitted into a mempool.",
	})

	txRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powsim_transactions_rejected_total",
		Help: "Number of transactions rejected by a mempool.",
	})
)

func init() {
	prometheus.MustRegister(blocksMined, reorgsApplied, txAccepted, txRejected)
}

// BlockMined records a successfully mined-and-appended block.
func BlockMined(miner common.Address) { blocksMined.WithLabelValues(miner.String()).Inc() }

// ReorgApplied records a successful candidate-chain adoption.
func ReorgApplied() { reorgsApplied.Inc() }

// TxAccepted records a transaction admitted into some mempool.
func TxAccepted() { txAccepted.Inc() }

// TxRejected records a transaction rejected by some mempool.
func TxRejected() { txRejected.Inc() }

// Handler returns the http.Handler that serves the registered metrics
// in the Prometheus text exposition format.
func Handler() http.Handler { return promhttp.Handler() }
