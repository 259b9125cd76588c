package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/distr1/hfscompress/internal/codec"
	"github.com/distr1/hfscompress/internal/pipeline"
)

// runPipeline wires flags into pipeline.Options, drains the event channel
// into a Stats accumulator, leaves per-file failures to pipeline.Run's own
// log line (spec §7: "each failed file produces one line on stderr with
// path and short reason"), and prints the end-of-run summary (SPEC_FULL's supplemented
// verbose/summary feature). It exits the process directly with the code
// spec §6 assigns: 0 all succeeded/skipped, 1 some file failed.
func runPipeline(ctx context.Context, op pipeline.Operation, algo string, level int, threads int, dryRun, verbose bool, roots []string) error {
	if threads < 1 {
		threads = runtime.NumCPU()
	}

	newCodec := func() (codec.Codec, error) { return codec.New(algo, level) }

	var stats pipeline.Stats
	sink, events := pipeline.NewChanSink(4096)

	consume := func(e pipeline.Event) {
		stats.Emit(e)
		if e.Kind == pipeline.EventFileDone && e.Outcome != nil {
			o := e.Outcome
			// Failures are not printed here: pipeline.Run has already
			// logged each one to stderr as a single line.
			if o.Kind != pipeline.OutcomeFailed && verbose {
				fmt.Fprintln(os.Stdout, summarizeOutcome(o))
			}
		}
	}

	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case e := <-events:
				consume(e)
			case <-stop:
				// Run has returned: every Emit it can still make has
				// already landed in the buffered channel (chanSink's
				// buffer is generous; spec §5 "non-blocking, lossless").
				// Drain what's left without blocking further.
				for {
					select {
					case e := <-events:
						consume(e)
					default:
						return
					}
				}
			}
		}
	}()

	opts := pipeline.Options{
		Op:       op,
		NewCodec: newCodec,
		Threads:  threads,
		DryRun:   dryRun,
		InFlight: threads,
	}

	runErr := pipeline.Run(ctx, roots, opts, sink)

	close(stop)
	<-drained

	printSummary(&stats)

	if runErr != nil {
		return runErr
	}
	if stats.Failed > 0 {
		os.Exit(1)
	}
	return nil
}

func summarizeOutcome(o *pipeline.FileOutcome) string {
	switch o.Kind {
	case pipeline.OutcomeCompressed:
		return fmt.Sprintf("compressed %s (%d bytes)", o.Path, o.NewSize)
	case pipeline.OutcomeDecompressed:
		return fmt.Sprintf("decompressed %s (%d bytes)", o.Path, o.NewSize)
	case pipeline.OutcomeSkipped:
		return fmt.Sprintf("skipped %s (%s)", o.Path, o.Reason)
	default:
		return o.Path
	}
}

func printSummary(s *pipeline.Stats) {
	fmt.Fprintf(os.Stdout, "compressed=%d decompressed=%d failed=%d bytes_read=%d bytes_written=%d\n",
		s.Compressed, s.Decompressed, s.Failed, s.BytesRead, s.BytesWritten)
	skipped := s.SkippedWouldGrow + s.SkippedHardlink + s.SkippedHardlinkUnsafe +
		s.SkippedNonRegular + s.SkippedAlreadyCompressed + s.SkippedNotCompressed
	if skipped > 0 {
		fmt.Fprintf(os.Stdout, "skipped=%d (would_grow=%d hardlink=%d hardlink_unsafe=%d non_regular=%d already_compressed=%d not_compressed=%d)\n",
			skipped, s.SkippedWouldGrow, s.SkippedHardlink, s.SkippedHardlinkUnsafe,
			s.SkippedNonRegular, s.SkippedAlreadyCompressed, s.SkippedNotCompressed)
	}
}
