// Command hfscompress applies, removes, and reports on HFS+/APFS
// transparent file compression, in the shape of cmd/distri/distri.go's
// verb dispatcher: a small map of subcommands, each owning its own
// flag.FlagSet.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	hfscompress "github.com/distr1/hfscompress"
)

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

var verbs = map[string]cmd{
	"compress":   {cmdCompress},
	"decompress": {cmdDecompress},
	"info":       {cmdInfo},
}

func funcmain() error {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "syntax: hfscompress <command> [options] PATH...\n")
		fmt.Fprintf(os.Stderr, "commands: compress, decompress, info\n")
		os.Exit(2)
	}
	verb, args := args[0], args[1:]

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: hfscompress <command> [options] PATH...\n")
		os.Exit(2)
	}

	ctx, canc := hfscompress.InterruptibleContext()
	defer canc()

	if err := v.fn(ctx, args); err != nil {
		return fmt.Errorf("%s: %v", verb, err)
	}
	return hfscompress.RunCleanup()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
