package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"movefuzz/internal/cli"
	"movefuzz/pkg/analysis"
	"movefuzz/pkg/report"
	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/log"
)

func main() {
	var (
		analyzers = flag.String("analyzers", "", "Comma separated analyzers to run (default: all)")
		output    = flag.String("output", "", "Append findings as JSON lines to this file")
		list      = flag.Bool("list", false, "List available analyzers and exit")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <module-ir.json>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	cli.SetupLogging(*verbose)

	if *list {
		for _, a := range analysis.Analyzers() {
			fmt.Println(a.Name)
		}
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	modules, _, err := cli.LoadModuleIR(flag.Args())
	if err != nil {
		cli.Fatal("Failed to load module IR", "err", err)
	}

	var names []string
	if *analyzers != "" {
		for _, n := range strings.Split(*analyzers, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	findings, err := analysis.RunAll(context.Background(), modules, names...)
	if err != nil {
		cli.Fatal("Static analysis failed", "err", err)
	}

	for _, f := range findings {
		fmt.Printf("[%s] %-28s %s %v\n", f.Severity, f.Oracle, f.Location, f.Detail["message"])
	}
	fmt.Printf("\n%d findings in %d modules\n", len(findings), len(modules))

	if *output != "" {
		if err := writeFindings(*output, findings); err != nil {
			cli.Fatal("Failed to write findings", "path", *output, "err", err)
		}
		log.Info("Findings written", "path", *output, "count", len(findings))
	}
}

// writeFindings 追加写入JSONL
func writeFindings(path string, findings []types.OracleFinding) error {
	w, err := report.Open(report.Config{FindingsPath: path})
	if err != nil {
		return err
	}
	defer w.Close()
	for _, f := range findings {
		if err := w.ReportFinding(f, nil); err != nil {
			return err
		}
	}
	return nil
}
