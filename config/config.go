// Package config defines the process-wide configuration for powsim and
// the cli.v1 flags that populate it.
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"
)

// Config is the fully resolved set of knobs a powsim process runs
// with. Every field maps directly onto one CLI flag; there is no
// on-disk config file requirement, only an optional dump of this
// struct for operators.
type Config struct {
	Nodes        int
	Difficulty   int
	Addr         string
	Demo         bool
	DemoInterval time.Duration
}

// Default returns the configuration a bare `powsim` invocation runs
// with, before any flags are applied.
func Default() Config {
	return Config{
		Nodes:        3,
		Difficulty:   20,
		Addr:         "127.0.0.1:0",
		Demo:         true,
		DemoInterval: 2 * time.Second,
	}
}

var (
	NodesFlag = cli.IntFlag{
		Name:  "nodes",
		Usage: "Number of nodes to start mining immediately",
		Value: Default().Nodes,
	}
	DifficultyFlag = cli.IntFlag{
		Name:  "difficulty",
		Usage: "Leading zero bits a block hash must have to be accepted",
		Value: Default().Difficulty,
	}
	AddrFlag = cli.StringFlag{
		Name:  "addr",
		Usage: "Admin HTTP surface bind address",
		Value: Default().Addr,
	}
	DemoFlag = cli.BoolTFlag{
		Name:  "demo",
		Usage: "Run the background demo traffic generator (use --demo=false to disable)",
	}
	DemoIntervalFlag = cli.DurationFlag{
		Name:  "demo-interval",
		Usage: "Average delay between demo-generated transactions",
		Value: Default().DemoInterval,
	}
	DumpConfigFlag = cli.BoolFlag{
		Name:  "dump-config",
		Usage: "Print the effective configuration as TOML and exit",
	}
)

// Flags holds every CLI flag that maps onto a Config field.
var Flags = []cli.Flag{
	NodesFlag, DifficultyFlag, AddrFlag, DemoFlag, DemoIntervalFlag, DumpConfigFlag,
}

// FromContext resolves a Config from parsed CLI flags, starting from
// Default so unset flags keep their default values.
func FromContext(ctx *cli.Context) Config {
	cfg := Default()
	if ctx.GlobalIsSet(NodesFlag.Name) {
		cfg.Nodes = ctx.GlobalInt(NodesFlag.Name)
	}
	if ctx.GlobalIsSet(DifficultyFlag.Name) {
		cfg.Difficulty = ctx.GlobalInt(DifficultyFlag.Name)
	}
	if ctx.GlobalIsSet(AddrFlag.Name) {
		cfg.Addr = ctx.GlobalString(AddrFlag.Name)
	}
	cfg.Demo = ctx.GlobalBoolT(DemoFlag.Name)
	if ctx.GlobalIsSet(DemoIntervalFlag.Name) {
		cfg.DemoInterval = ctx.GlobalDuration(DemoIntervalFlag.Name)
	}
	return cfg
}

// tomlSettings keys TOML fields by their literal Go field name rather
// than toml's default lower-casing.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// DumpTOML renders cfg in the TOML format --dump-config prints.
func DumpTOML(cfg Config) (string, error) {
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
