package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/distr1/hfscompress/internal/pipeline"
)

func cmdInfo(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("info", flag.ExitOnError)
	asJSON := fset.Bool("json", false, "emit one JSON object per line instead of the tabular default")
	fset.Parse(args)

	paths := fset.Args()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "syntax: hfscompress info PATH...\n")
		os.Exit(2)
	}

	failed := false
	enc := json.NewEncoder(os.Stdout)
	for _, path := range paths {
		result, present, err := pipeline.Info(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		if !present {
			fmt.Fprintf(os.Stderr, "%s: not compressed\n", path)
			continue
		}
		if *asJSON {
			enc.Encode(result)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s: %s uncompressed=%d on_disk=%d ratio=%.3f\n",
			result.Path, result.Algorithm, result.UncompressedSize, result.OnDiskSize, result.Ratio)
	}

	if failed {
		os.Exit(1)
	}
	return nil
}
