package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"movefuzz/internal/cli"
	"movefuzz/pkg/analysis"
	"movefuzz/pkg/fuzzer"

	"github.com/ethereum/go-ethereum/log"
)

// callgraph 从模块IR输出调用图，或从链上状态输出类型生产/消费图
func main() {
	var (
		graph      = flag.String("graph", "call", "Graph to render: call or type")
		output     = flag.String("output", "", "Write DOT to this file (default: stdout)")
		configPath = flag.String("config", "./config/fuzzer.yaml", "Configuration file for the type graph")
		snapshot   = flag.String("snapshot", "", "State snapshot JSON (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()
	cli.SetupLogging(*verbose)

	var dot string
	switch *graph {
	case "call":
		if flag.NArg() == 0 {
			cli.Fatal("No module IR files given")
		}
		modules, _, err := cli.LoadModuleIR(flag.Args())
		if err != nil {
			cli.Fatal("Failed to load module IR", "err", err)
		}
		g := analysis.BuildCallGraph(modules)
		log.Info("Call graph built", "modules", len(modules), "functions", g.Len(), "edges", len(g.Edges()))
		dot = g.Dot()

	case "type":
		cfg, err := fuzzer.LoadConfig(*configPath)
		if err != nil {
			log.Warn("Config not loaded, using defaults", "path", *configPath, "err", err)
			cfg = fuzzer.DefaultConfig()
		}
		if *snapshot != "" {
			cfg.Target.SnapshotPath = *snapshot
		}
		ctx := context.Background()
		provider, fallback, err := cli.OpenProvider(ctx, cfg.Target.SnapshotPath, cfg.Target.StateRPC)
		if err != nil {
			cli.Fatal("Failed to open state", "err", err)
		}
		packages, err := cfg.PackageIDs()
		if err != nil {
			cli.Fatal("Invalid packages", "err", err)
		}
		opts, err := cfg.MetadataOptions()
		if err != nil {
			cli.Fatal("Invalid type filters", "err", err)
		}
		meta, err := cli.BuildMetadata(ctx, provider, packages, fallback, opts)
		if err != nil {
			cli.Fatal("Failed to build metadata", "err", err)
		}
		dot = meta.TypeGraph.Dot()

	default:
		cli.Fatal("Unknown graph", "graph", *graph)
	}

	if *output == "" {
		fmt.Print(dot)
		return
	}
	if err := os.WriteFile(*output, []byte(dot), 0o644); err != nil {
		cli.Fatal("Failed to write graph", "path", *output, "err", err)
	}
	log.Info("Graph written", "path", *output)
}
