package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/distr1/hfscompress/internal/codec"
	"github.com/distr1/hfscompress/internal/pipeline"
)

func cmdCompress(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("compress", flag.ExitOnError)
	algo := fset.String("c", "LZFSE", "compression algorithm: LZFSE, LZVN, or ZLIB")
	level := fset.Int("l", 5, "ZLIB level 1-12 (ignored by LZFSE/LZVN)")
	threads := fset.Int("threads", 0, "worker pool size (default: number of CPUs)")
	verbose := fset.Bool("v", false, "print one line per processed file")
	fset.BoolVar(verbose, "verbose", *verbose, "alias for -v")
	dryRun := fset.Bool("n", false, "report what would happen without modifying any file")
	fset.BoolVar(dryRun, "dry-run", *dryRun, "alias for -n")
	fset.Parse(args)

	roots := fset.Args()
	if len(roots) == 0 {
		fmt.Fprintf(os.Stderr, "syntax: hfscompress compress [-c ALGO] [-l N] [--threads N] PATH...\n")
		os.Exit(2)
	}

	name := strings.ToLower(*algo)
	if name != "lzfse" && name != "lzvn" && name != "zlib" {
		fmt.Fprintf(os.Stderr, "compress: unknown algorithm %q, want LZFSE, LZVN, or ZLIB\n", *algo)
		os.Exit(2)
	}
	if name == "zlib" && (*level < 1 || *level > 12) {
		fmt.Fprintf(os.Stderr, "compress: -l %d out of range, want 1-12\n", *level)
		os.Exit(2)
	}

	// Fail fast on a bad algorithm/level combination before touching any
	// file: codec.New is cheap and the same constructor the pool will use.
	if _, err := codec.New(name, *level); err != nil {
		fmt.Fprintf(os.Stderr, "compress: %v\n", err)
		os.Exit(2)
	}

	return runPipeline(ctx, pipeline.OpCompress, name, *level, *threads, *dryRun, *verbose, roots)
}
