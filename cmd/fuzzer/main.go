package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"movefuzz/internal/cli"
	"movefuzz/pkg/executor"
	"movefuzz/pkg/fuzzer"
	"movefuzz/pkg/oracle"
	"movefuzz/pkg/report"
	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/log"
)

// 命令行参数
var (
	configPath = flag.String("config", "./config/fuzzer.yaml", "Configuration file path")
	snapshot   = flag.String("snapshot", "", "State snapshot JSON (overrides config)")
	stateRPC   = flag.String("state-rpc", "", "State service URL (overrides config)")
	rpcURL     = flag.String("rpc", "", "Executor RPC URL (overrides config)")
	workers    = flag.Int("workers", 0, "Number of workers (overrides config)")
	seed       = flag.Int64("seed", 0, "PRNG seed (overrides config)")
	duration   = flag.Duration("duration", 0, "Stop after this long (overrides config)")
	cycles     = flag.Int64("cycles", 0, "Cycle limit per worker (overrides config)")
	timeout    = flag.Duration("timeout", 0, "Timeout per execution (overrides config)")
	resume     = flag.Bool("resume", false, "Replay the saved corpus before fuzzing")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	dryRun     = flag.Bool("dry-run", false, "Build metadata and print the configuration, then exit")
)

func main() {
	flag.Parse()
	cli.SetupLogging(*verbose)

	cfg, err := fuzzer.LoadConfig(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			cli.Fatal("Invalid configuration", "path", *configPath, "err", err)
		}
		log.Warn("Config file not found, using defaults", "path", *configPath)
		cfg = fuzzer.DefaultConfig()
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		cli.Fatal("Invalid configuration", "err", err)
	}
	printConfig(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, snapshotPackages, err := cli.OpenProvider(ctx, cfg.Target.SnapshotPath, cfg.Target.StateRPC)
	if err != nil {
		cli.Fatal("Failed to open state", "err", err)
	}
	packages, _ := cfg.PackageIDs()
	opts, _ := cfg.MetadataOptions()
	meta, err := cli.BuildMetadata(ctx, provider, packages, snapshotPackages, opts)
	if err != nil {
		cli.Fatal("Failed to build metadata", "err", err)
	}
	_, modules, err := cli.LoadModuleIR(cfg.Target.ModuleIR)
	if err != nil {
		cli.Fatal("Failed to load module IR", "err", err)
	}
	oracles, err := oracle.New(cfg.Oracles)
	if err != nil {
		cli.Fatal("Failed to configure oracles", "err", err)
	}

	if *dryRun {
		fmt.Printf("Dry run: %d callable functions, %d oracles\n", len(meta.Callable()), len(oracles))
		return
	}

	attacker, _ := cfg.AttackerAddress()
	exec, err := executor.DialRPCExecutor(ctx, attacker, cfg.Executor)
	if err != nil {
		cli.Fatal("Failed to connect to executor", "err", err)
	}
	defer exec.Close()

	var seeds []*types.MoveSequence
	if *resume && cfg.Output.CorpusDir != "" {
		if seeds, err = report.LoadCorpus(cfg.Output.CorpusDir); err != nil {
			cli.Fatal("Failed to load corpus", "dir", cfg.Output.CorpusDir, "err", err)
		}
	}

	writer, err := report.Open(cfg.Output)
	if err != nil {
		cli.Fatal("Failed to open output", "err", err)
	}
	defer writer.Close()

	f, err := fuzzer.New(cfg, fuzzer.Deps{
		Meta:     meta,
		Executor: exec,
		Bank:     oracle.NewBank(oracles...),
		Sink:     writer,
		Modules:  modules,
		Seeds:    seeds,
	})
	if err != nil {
		cli.Fatal("Failed to create fuzzer", "err", err)
	}

	// 设置信号处理
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received interrupt signal, stopping...")
		cancel()
	}()

	if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Fuzzing stopped with error", "err", err)
	}
	printStatistics(f.Stats(), writer)
}

// applyFlags 命令行参数覆盖配置值
func applyFlags(cfg *fuzzer.Config) {
	if *snapshot != "" {
		cfg.Target.SnapshotPath = *snapshot
	}
	if *stateRPC != "" {
		cfg.Target.StateRPC = *stateRPC
	}
	if *rpcURL != "" {
		cfg.Executor.RPCURL = *rpcURL
	}
	if *workers > 0 {
		cfg.Fuzzing.Workers = *workers
	}
	if *seed != 0 {
		cfg.Fuzzing.Seed = *seed
	}
	if *duration > 0 {
		cfg.Fuzzing.Duration = *duration
	}
	if *cycles > 0 {
		cfg.Fuzzing.MaxCycles = *cycles
	}
	if *timeout > 0 {
		cfg.Executor.Timeout = *timeout
	}
}

// printConfig 打印配置信息
func printConfig(cfg *fuzzer.Config) {
	if !*verbose {
		return
	}
	fmt.Println("\n=== Fuzzer Configuration ===")
	fmt.Printf("Snapshot: %s\n", cfg.Target.SnapshotPath)
	fmt.Printf("State RPC: %s\n", cfg.Target.StateRPC)
	fmt.Printf("Packages: %v\n", cfg.Target.Packages)
	fmt.Printf("Executor: %s (timeout %v)\n", cfg.Executor.RPCURL, cfg.Executor.Timeout)
	fmt.Printf("Workers: %d, seed %d\n", cfg.Fuzzing.Workers, cfg.Fuzzing.Seed)
	fmt.Printf("Sequence length: %d, corpus cap: %d\n", cfg.Fuzzing.SequenceLength, cfg.Fuzzing.CorpusCap)
	fmt.Printf("Oracles: %v\n", cfg.Oracles.Enabled)
	fmt.Printf("Findings: %s\n", cfg.Output.FindingsPath)
	fmt.Println("============================")
}

// printStatistics 打印统计信息
func printStatistics(st fuzzer.StatsSnapshot, w *report.Writer) {
	findings, solutions, corpus := w.Counts()
	fmt.Println("\n=== Fuzzing Results ===")
	fmt.Printf("Elapsed: %v\n", st.Elapsed.Round(time.Second))
	fmt.Printf("Cycles: %d (%.1f execs/s)\n", st.Cycles, st.ExecsPerSec())
	fmt.Printf("Generated: %d, mutated: %d\n", st.Generated, st.Mutated)
	fmt.Printf("Accepted: %d, rejected: %d, exec errors: %d\n", st.Accepted, st.Rejected, st.ExecErrors)
	fmt.Printf("Coverage: %d slots, comparison hints: %d\n", st.Coverage, st.Hints)
	fmt.Printf("Findings: %d (solutions %d), corpus files: %d\n", findings, solutions, corpus)
	fmt.Println("=======================")
}
