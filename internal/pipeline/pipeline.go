// Package pipeline implements the block-parallel compression/decompression
// pipeline described in spec §§2-6: Reader, shared Compressor pool, Writer,
// and the coordinator that ties one FileTask's stages together, scheduled
// across many files in flight.
package pipeline

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/distr1/hfscompress/internal/codec"
	"github.com/distr1/hfscompress/internal/fsmeta"
	"github.com/distr1/hfscompress/internal/walker"
)

// Run walks roots and drives every yielded file through the pipeline for
// opts.Op, emitting one Event per stage transition to sink. It returns the
// first walk-level error (not per-file errors, which become FileOutcomes
// instead); per spec §7, a single file's failure never aborts the run.
func Run(ctx context.Context, roots []string, opts Options, sink Sink) error {
	var validate func() (codec.Codec, error)
	if opts.Op == OpCompress {
		validate = opts.NewCodec
	}
	pool, err := NewPool(opts.Threads, validate)
	if err != nil {
		return xerrors.Errorf("starting compressor pool: %w", err)
	}
	defer pool.Close()

	inFlight := opts.InFlight
	if inFlight < 1 {
		inFlight = opts.Threads
	}
	sem := make(chan struct{}, inFlight)

	eg, egCtx := errgroup.WithContext(ctx)

	walkMode := walker.ModeOther
	if opts.Op == OpCompress {
		walkMode = walker.ModeCompress
	}

	err = walker.Walk(roots, walkMode, func(e walker.Entry) error {
		if e.Err != nil {
			sink.Emit(Event{Kind: EventFileDone, Path: e.Path, Outcome: &FileOutcome{
				Path: e.Path, Kind: OutcomeFailed, Err: e.Err,
			}})
			log.Printf("%s: %v", e.Path, e.Err)
			return nil
		}
		if e.Skipped() {
			sink.Emit(Event{Kind: EventFileDone, Path: e.Path, Outcome: &FileOutcome{
				Path: e.Path, Kind: OutcomeSkipped, Reason: e.Skip.String(),
			}})
			return nil
		}

		task := FileTask{Path: e.Path, Meta: e.Meta}

		select {
		case sem <- struct{}{}:
		case <-egCtx.Done():
			return egCtx.Err()
		}
		eg.Go(func() error {
			defer func() { <-sem }()
			outcome := processOne(egCtx, pool, opts, task, sink)
			sink.Emit(Event{Kind: EventFileDone, Path: task.Path, Outcome: &outcome})
			if outcome.Kind == OutcomeFailed {
				log.Printf("%s: %v", task.Path, outcome.Err)
			}
			return nil
		})
		return nil
	})
	if err != nil {
		_ = eg.Wait() // let in-flight coordinators finish before reporting the walk error
		return xerrors.Errorf("walking %v: %w", roots, err)
	}
	return eg.Wait()
}

// processOne drives a single FileTask through Reader -> Compressor pool ->
// Writer (or their decompression-path equivalents), converting any stage
// error into a FileOutcome rather than propagating it, so one file's
// failure never aborts the run (spec §7).
func processOne(ctx context.Context, pool *Pool, opts Options, task FileTask, sink Sink) FileOutcome {
	switch opts.Op {
	case OpCompress:
		return compressOne(ctx, pool, opts, task, sink)
	case OpDecompress:
		return decompressOne(ctx, pool, opts, task, sink)
	default:
		return FileOutcome{Path: task.Path, Kind: OutcomeFailed, Err: xerrors.Errorf("unsupported operation")}
	}
}

func compressOne(ctx context.Context, pool *Pool, opts Options, task FileTask, sink Sink) FileOutcome {
	if task.Meta.IsCompressed() {
		return FileOutcome{Path: task.Path, Kind: OutcomeSkipped, Reason: ReasonAlreadyCompressed}
	}

	c, err := opts.NewCodec()
	if err != nil {
		return FileOutcome{Path: task.Path, Kind: OutcomeFailed, Err: err}
	}

	blocks := NewCompressedBlocks()
	err = CompressFile(ctx, pool, task.Path, task.Meta.Size, opts.Threads, opts.NewCodec, c.Name(), sink, func(b EncodedBlock) error {
		blocks.Offer(b)
		return nil
	})
	if err != nil {
		return FileOutcome{Path: task.Path, Kind: OutcomeFailed, Err: err}
	}

	outcome, err := WriteCompressed(task, c, blocks, opts.DryRun, sink)
	if err != nil {
		return FileOutcome{Path: task.Path, Kind: OutcomeFailed, Err: err}
	}
	return outcome
}

func decompressOne(ctx context.Context, pool *Pool, opts Options, task FileTask, sink Sink) FileOutcome {
	if !task.Meta.IsCompressed() {
		return FileOutcome{Path: task.Path, Kind: OutcomeSkipped, Reason: ReasonNotCompressed}
	}

	state, present, err := ReadDecmpfsState(task.Path)
	if err != nil {
		return FileOutcome{Path: task.Path, Kind: OutcomeFailed, Err: err}
	}
	if !present {
		return FileOutcome{Path: task.Path, Kind: OutcomeSkipped, Reason: ReasonNotCompressed}
	}

	algoCodec, err := codec.ForType(state.Header.CompressionType)
	if err != nil {
		return FileOutcome{Path: task.Path, Kind: OutcomeFailed, Err: err}
	}

	reasm := newReassembler()
	var ordered [][]byte
	var total int64
	err = DecompressFile(ctx, pool, algoCodec.Name(), state, opts.Threads, sink, func(b RawBlock) error {
		reasm.Offer(EncodedBlock{Index: b.Index, Payload: b.Bytes})
		for _, ready := range reasm.Drain() {
			ordered = append(ordered, ready.Payload)
			total += int64(len(ready.Payload))
		}
		return nil
	})
	if err != nil {
		return FileOutcome{Path: task.Path, Kind: OutcomeFailed, Err: err}
	}

	if uint64(total) != state.Header.UncompressedSize {
		return FileOutcome{Path: task.Path, Kind: OutcomeFailed, Err: &ErrSizeMismatch{
			Want: state.Header.UncompressedSize, Got: uint64(total),
		}}
	}

	outcome, err := WriteDecompressed(task, ordered, total, opts.DryRun, sink)
	if err != nil {
		return FileOutcome{Path: task.Path, Kind: OutcomeFailed, Err: err}
	}
	return outcome
}

// InfoResult is the per-file report produced by the info path (spec §4.7).
type InfoResult struct {
	Path             string
	Algorithm        string
	UncompressedSize uint64
	OnDiskSize       int64
	Ratio            float64
}

// Info reads a file's decmpfs state without modifying it and reports its
// algorithm, logical size, on-disk encoded size, and compression ratio.
func Info(path string) (InfoResult, bool, error) {
	state, present, err := ReadDecmpfsState(path)
	if err != nil {
		return InfoResult{}, false, err
	}
	if !present {
		return InfoResult{}, false, nil
	}

	c, err := codec.ForType(state.Header.CompressionType)
	if err != nil {
		return InfoResult{}, true, err
	}

	onDisk, err := onDiskSize(path, state)
	if err != nil {
		return InfoResult{}, true, err
	}

	ratio := 0.0
	if state.Header.UncompressedSize > 0 {
		ratio = float64(onDisk) / float64(state.Header.UncompressedSize)
	}

	return InfoResult{
		Path:             path,
		Algorithm:        c.Name(),
		UncompressedSize: state.Header.UncompressedSize,
		OnDiskSize:       onDisk,
		Ratio:            ratio,
	}, true, nil
}

func onDiskSize(path string, state DecmpfsState) (int64, error) {
	xattr, err := fsmeta.GetXattr(path, fsmeta.DecmpfsAttr)
	if err != nil {
		return 0, &IOError{Op: OpXattrGet, Err: err}
	}
	total := int64(len(xattr))
	if state.Fork != nil {
		fork, err := fsmeta.GetXattr(path, fsmeta.ResourceForkAttr)
		if err != nil {
			return 0, &IOError{Op: OpXattrGet, Err: err}
		}
		total += int64(len(fork))
	}
	return total, nil
}
