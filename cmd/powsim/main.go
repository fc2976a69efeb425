// Command powsim runs a simulated proof-of-work network in a single
// process: a configurable number of mining nodes, an in-process
// broadcast/query fabric, an admin HTTP surface, and an optional
// background demo traffic generator.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"

	"github.com/klaytn/powsim/api"
	"github.com/klaytn/powsim/config"
	"github.com/klaytn/powsim/demo"
	"github.com/klaytn/powsim/log"
	"github.com/klaytn/powsim/network"
	"github.com/klaytn/powsim/world"
	"gopkg.in/urfave/cli.v1"
)

var logger = log.NewModuleLogger(log.ModuleCmd)

var app = cli.NewApp()

func init() {
	app.Name = "powsim"
	app.Usage = "simulate a proof-of-work network of mining nodes in one process"
	app.Flags = config.Flags
	app.Action = run
	sort.Sort(cli.FlagsByName(app.Flags))
}

func run(ctx *cli.Context) error {
	cfg := config.FromContext(ctx)

	if ctx.GlobalBool(config.DumpConfigFlag.Name) {
		out, err := config.DumpTOML(cfg)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	api.SetDefaultDifficulty(cfg.Difficulty)

	w := world.Instance()
	w.SetFabric(network.NewInProcessFabric(w))
	for i := 0; i < cfg.Nodes; i++ {
		addr := w.AddNode(cfg.Difficulty)
		logger.Info("started node", "address", addr)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Demo {
		go demo.Run(rootCtx, w, cfg.DemoInterval)
		logger.Info("demo traffic generator enabled", "interval", cfg.DemoInterval)
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("admin surface listen: %w", err)
	}
	logger.Info("admin surface listening", "addr", listener.Addr())
	return http.Serve(listener, api.NewHandler(w))
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
