// Package api implements the admin HTTP surface: inspect, create and
// delete nodes, read balances, fetch blocks, and submit transactions.
// Routing is httprouter, wrapped in rs/cors so a browser-based demo UI
// can hit it cross-origin.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/klaytn/powsim/blockchain/types"
	"github.com/klaytn/powsim/common"
	"github.com/klaytn/powsim/log"
	"github.com/klaytn/powsim/metrics"
	"github.com/klaytn/powsim/node"
	"github.com/klaytn/powsim/world"
	"github.com/rs/cors"
)

var logger = log.NewModuleLogger(log.ModuleAdmin)

var (
	errNodeNotFound  = errors.New("no node at that address")
	errBlockNotFound = errors.New("no block with that hash")
)

// NewHandler returns the complete admin surface as an http.Handler,
// wired against w and wrapped with permissive CORS for local demo use.
func NewHandler(w *world.World) http.Handler {
	r := httprouter.New()

	r.GET("/", handleIndex)
	r.GET("/nodes", handleListNodes(w))
	r.POST("/node", handleCreateNode(w))
	r.GET("/node/:addr", handleNodeStatus(w))
	r.GET("/node/:addr/block/:hash", handleGetBlock(w))
	r.GET("/node/:addr/blockchain_balance", handleChainBalance(w))
	r.GET("/node/:addr/mempool_balance", handleMempoolBalance(w))
	r.POST("/node/:addr", handleDeleteNode(w))
	r.POST("/node/:addr/send/from/:from/to/:to/amount/:n", handleSend(w))
	r.GET("/debug/metrics", wrapHandler(metrics.Handler()))

	return cors.Default().Handler(r)
}

func wrapHandler(h http.Handler) httprouter.Handle {
	return func(rw http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		h.ServeHTTP(rw, req)
	}
}

func handleIndex(rw http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(rw, http.StatusOK, "Ok")
}

func handleListNodes(w *world.World) httprouter.Handle {
	return func(rw http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(rw, http.StatusOK, w.GetAddresses())
	}
}

func handleCreateNode(w *world.World) httprouter.Handle {
	return func(rw http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		addr := w.AddNode(defaultDifficulty)
		writeJSON(rw, http.StatusOK, addr)
	}
}

// defaultDifficulty is used for nodes created through the admin
// surface after process start, where the CLI-configured difficulty
// isn't otherwise reachable from an httprouter.Handle. Set by SetDefaultDifficulty
// once at startup.
var defaultDifficulty = 20

// SetDefaultDifficulty configures the mining difficulty nodes created
// via POST /node are given.
func SetDefaultDifficulty(d int) { defaultDifficulty = d }

type nodeStatusResponse struct {
	BlockchainLength string `json:"blockchain_length"`
	LastBlockHash    string `json:"last_block_hash"`
	MempoolLength    string `json:"mempool_length"`
}

func handleNodeStatus(w *world.World) httprouter.Handle {
	return func(rw http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		n, ok := lookupNode(w, rw, ps.ByName("addr"))
		if !ok {
			return
		}
		status := n.Status()
		writeJSON(rw, http.StatusOK, nodeStatusResponse{
			BlockchainLength: strconv.Itoa(status.ChainLength),
			LastBlockHash:    status.LastBlockHash.String(),
			MempoolLength:    strconv.Itoa(status.MempoolLength),
		})
	}
}

func handleGetBlock(w *world.World) httprouter.Handle {
	return func(rw http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		n, ok := lookupNode(w, rw, ps.ByName("addr"))
		if !ok {
			return
		}
		hash, err := common.BlockHashFromHex(ps.ByName("hash"))
		if err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}
		block, ok := n.GetBlock(hash)
		if !ok {
			writeError(rw, http.StatusBadRequest, errBlockNotFound)
			return
		}
		writeJSON(rw, http.StatusOK, block)
	}
}

func handleChainBalance(w *world.World) httprouter.Handle {
	return func(rw http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		n, ok := lookupNode(w, rw, ps.ByName("addr"))
		if !ok {
			return
		}
		writeJSON(rw, http.StatusOK, n.ChainBalanceMap())
	}
}

func handleMempoolBalance(w *world.World) httprouter.Handle {
	return func(rw http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		n, ok := lookupNode(w, rw, ps.ByName("addr"))
		if !ok {
			return
		}
		writeJSON(rw, http.StatusOK, n.MempoolBalanceMap())
	}
}

func handleDeleteNode(w *world.World) httprouter.Handle {
	return func(rw http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		addr, err := parseAddress(ps.ByName("addr"))
		if err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}
		w.DeleteNode(addr)
		writeJSON(rw, http.StatusOK, "Ok")
	}
}

func handleSend(w *world.World) httprouter.Handle {
	return func(rw http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		n, ok := lookupNode(w, rw, ps.ByName("addr"))
		if !ok {
			return
		}
		from, err := parseAddress(ps.ByName("from"))
		if err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}
		to, err := parseAddress(ps.ByName("to"))
		if err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}
		amount, err := strconv.ParseUint(ps.ByName("n"), 10, 64)
		if err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}

		tx := types.Transaction{Sender: from, Receiver: to, Amount: amount}
		if err := n.AddClientTransaction(tx); err != nil {
			logger.Warn("send rejected", "from", from, "to", to, "amount", amount, "err", err)
			writeError(rw, http.StatusForbidden, err)
			return
		}
		writeJSON(rw, http.StatusOK, "Ok")
	}
}

func lookupNode(w *world.World, rw http.ResponseWriter, raw string) (*node.Node, bool) {
	addr, err := parseAddress(raw)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return nil, false
	}
	n, ok := w.GetNode(addr)
	if !ok {
		writeError(rw, http.StatusBadRequest, errNodeNotFound)
		return nil, false
	}
	return n, true
}

func parseAddress(raw string) (common.Address, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return common.Address(v), nil
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		logger.Error("failed to encode response", "err", err)
	}
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]string{"error": err.Error()})
}
