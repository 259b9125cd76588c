package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/distr1/hfscompress/internal/pipeline"
)

func cmdDecompress(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("decompress", flag.ExitOnError)
	threads := fset.Int("threads", 0, "worker pool size (default: number of CPUs)")
	verbose := fset.Bool("v", false, "print one line per processed file")
	fset.BoolVar(verbose, "verbose", *verbose, "alias for -v")
	dryRun := fset.Bool("n", false, "report what would happen without modifying any file")
	fset.BoolVar(dryRun, "dry-run", *dryRun, "alias for -n")
	fset.Parse(args)

	roots := fset.Args()
	if len(roots) == 0 {
		fmt.Fprintf(os.Stderr, "syntax: hfscompress decompress PATH...\n")
		os.Exit(2)
	}

	// NewCodec is never called on this path by name: decompressOne
	// resolves the algorithm per file from the decmpfs header via
	// codec.ForType, so the "" here is unused but kept explicit about
	// that rather than threading a *codec.Codec through Options.
	return runPipeline(ctx, pipeline.OpDecompress, "", 0, *threads, *dryRun, *verbose, roots)
}
