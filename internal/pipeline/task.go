package pipeline

import (
	"github.com/distr1/hfscompress/internal/codec"
	"github.com/distr1/hfscompress/internal/fsmeta"
)

// Operation selects which direction the pipeline runs a file through.
type Operation int

const (
	OpCompress Operation = iota
	OpDecompress
	OpInfo
)

// Options is the immutable, read-only-after-construction configuration
// shared by every worker and coordinator for one invocation (spec §5
// "CompressionState is read-only after construction").
type Options struct {
	Op       Operation
	NewCodec func() (codec.Codec, error) // constructs one Codec per worker
	Threads  int                         // shared compressor pool size
	DryRun   bool
	InFlight int // bounded number of files processed concurrently
}

// FileTask is the unit of work flowing Walker -> Reader -> Compressor pool
// -> Writer. It is owned by exactly one stage at a time (spec §3
// Ownership).
type FileTask struct {
	Path string
	Meta fsmeta.Snapshot
}

// RawBlock is one 64 KiB (or shorter, only if final) logical slice read
// from the source file.
type RawBlock struct {
	Index int
	Bytes []byte
}

// EncodedBlock is the compressed (or verbatim-marked) form of one
// RawBlock, tagged with its index so the Writer can restore order.
type EncodedBlock struct {
	Index          int
	Payload        []byte
	StoredVerbatim bool
}

// OutcomeKind classifies how a FileTask's processing ended.
type OutcomeKind int

const (
	OutcomeCompressed OutcomeKind = iota
	OutcomeDecompressed
	OutcomeSkipped
	OutcomeFailed
)

// FileOutcome is emitted exactly once per FileTask (spec §3).
type FileOutcome struct {
	Path    string
	Kind    OutcomeKind
	NewSize int64 // OutcomeCompressed and OutcomeDecompressed only
	Reason  string
	Err     error
}
