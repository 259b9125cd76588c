package pipeline

import (
	"context"
	"sync"

	"github.com/distr1/hfscompress/internal/codec"
	"github.com/distr1/hfscompress/internal/decmpfs"
)

// Pool is the fixed-size worker pool shared by every file in flight (spec
// §4.3, §5). Each worker caches one Codec instance per algorithm it has
// been asked to run, keyed by algo, so "creating a compressor is amortized"
// holds even on the decompress path, where different files in the same run
// may have been compressed with different algorithms: a worker builds an
// algorithm's state once and reuses it for every later block of that
// algorithm, never sharing one Codec instance across two workers.
type Pool struct {
	jobs chan poolJob
	wg   sync.WaitGroup
}

type poolJob struct {
	algo    string
	factory func() (codec.Codec, error)
	run     func(c codec.Codec, err error)
}

// NewPool starts size workers. If validate is non-nil it is called once up
// front, purely to fail fast on a bad algorithm/level combination before
// any file is touched (the compress path supplies opts.NewCodec here; the
// decompress path has no single fixed algorithm to validate in advance, so
// it passes nil and lets each file's codec.ForType surface a bad
// compression_type as a per-file failure instead). Each worker builds its
// own codec instances lazily as jobs arrive.
func NewPool(size int, validate func() (codec.Codec, error)) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	if validate != nil {
		if _, err := validate(); err != nil {
			return nil, err
		}
	}
	p := &Pool{jobs: make(chan poolJob)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p, nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	cache := make(map[string]codec.Codec)
	for job := range p.jobs {
		c, ok := cache[job.algo]
		if !ok {
			built, err := job.factory()
			if err != nil {
				job.run(nil, err)
				continue
			}
			cache[job.algo] = built
			c = built
		}
		job.run(c, nil)
	}
}

// submit hands a job to the shared pool, blocking until a worker is free.
// algo keys the worker-local codec cache; factory builds a fresh instance
// on that worker's first job for this algo.
func (p *Pool) submit(algo string, factory func() (codec.Codec, error), run func(c codec.Codec, err error)) {
	p.jobs <- poolJob{algo: algo, factory: factory, run: run}
}

// Close stops accepting work and waits for every in-flight job to finish.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// CompressFile drives one file's raw blocks through the shared pool,
// calling emit with each resulting EncodedBlock as it completes (order not
// guaranteed; the caller's reassembler restores it). credit bounds how
// many of this file's blocks may be outstanding in the pool at once,
// capping memory at O(files_in_flight x pool_size x 64KiB) (spec §5).
func CompressFile(ctx context.Context, pool *Pool, path string, declaredSize int64, credit int, newCodec func() (codec.Codec, error), algo string, sink Sink, emit func(EncodedBlock) error) error {
	if credit < 1 {
		credit = 1
	}
	fileCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		block EncodedBlock
		err   error
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, credit)
	results := make(chan result)
	done := make(chan struct{})
	readErrCh := make(chan error, 1)

	go func() {
		defer close(done)
		err := ReadRawBlocks(path, declaredSize, sink, func(b RawBlock) error {
			if err := fileCtx.Err(); err != nil {
				return err
			}
			select {
			case sem <- struct{}{}:
			case <-fileCtx.Done():
				return fileCtx.Err()
			}
			wg.Add(1)
			// submit blocks until a worker accepts the job; the job
			// itself (run, below) executes on that worker's goroutine
			// and owns releasing sem/wg and delivering the result, since
			// the channel handshake in submit completes on handoff, not
			// on job completion.
			pool.submit(algo, newCodec, func(c codec.Codec, ferr error) {
				defer wg.Done()
				defer func() { <-sem }()
				var out result
				if ferr != nil {
					out = result{err: &CodecError{Algo: algo, Index: b.Index, Err: ferr}}
				} else {
					payload, verbatim := codec.EncodeBlock(c, b.Bytes)
					out = result{block: EncodedBlock{Index: b.Index, Payload: payload, StoredVerbatim: verbatim}}
				}
				select {
				case results <- out:
				case <-fileCtx.Done():
				}
			})
			return nil
		})
		wg.Wait()
		readErrCh <- err
	}()

	for {
		select {
		case r := <-results:
			if r.err != nil {
				cancel()
				<-done
				<-readErrCh
				return r.err
			}
			if err := emit(r.block); err != nil {
				cancel()
				<-done
				<-readErrCh
				return err
			}
		case <-done:
			if err := <-readErrCh; err != nil {
				return err
			}
			return nil
		}
	}
}

// DecompressFile mirrors CompressFile for the inverse direction: it feeds
// already-encoded blocks (from ReadEncodedBlocks) through the pool's
// DecodeBlock path and calls emit with each resulting RawBlock. A single
// block's codec failure cancels the remaining work for this file and is
// returned wrapped as *CodecError (spec §4.3).
func DecompressFile(ctx context.Context, pool *Pool, algo string, state DecmpfsState, credit int, sink Sink, emit func(RawBlock) error) error {
	if credit < 1 {
		credit = 1
	}
	fileCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	numBlocks := decmpfs.NumBlocks(state.Header.UncompressedSize)
	lastLen := decmpfs.LastBlockSize(state.Header.UncompressedSize)
	compressionType := state.Header.CompressionType
	factory := func() (codec.Codec, error) { return codec.ForType(compressionType) }

	type result struct {
		block RawBlock
		err   error
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, credit)
	results := make(chan result)
	done := make(chan struct{})
	readErrCh := make(chan error, 1)

	go func() {
		defer close(done)
		err := ReadEncodedBlocks(state, sink, func(b EncodedBlock) error {
			if err := fileCtx.Err(); err != nil {
				return err
			}
			wantLen := decmpfs.BlockSize
			if b.Index == numBlocks-1 {
				wantLen = lastLen
			}
			select {
			case sem <- struct{}{}:
			case <-fileCtx.Done():
				return fileCtx.Err()
			}
			wg.Add(1)
			pool.submit(algo, factory, func(c codec.Codec, ferr error) {
				defer wg.Done()
				defer func() { <-sem }()
				var out result
				if ferr != nil {
					out = result{err: &CodecError{Algo: algo, Index: b.Index, Err: ferr}}
				} else if raw, err := codec.DecodeBlock(c, b.Payload, wantLen); err != nil {
					out = result{err: &CodecError{Algo: algo, Index: b.Index, Err: err}}
				} else {
					out = result{block: RawBlock{Index: b.Index, Bytes: raw}}
				}
				select {
				case results <- out:
				case <-fileCtx.Done():
				}
			})
			return nil
		})
		wg.Wait()
		readErrCh <- err
	}()

	for {
		select {
		case r := <-results:
			if r.err != nil {
				cancel()
				<-done
				<-readErrCh
				return r.err
			}
			if err := emit(r.block); err != nil {
				cancel()
				<-done
				<-readErrCh
				return err
			}
		case <-done:
			if err := <-readErrCh; err != nil {
				return err
			}
			return nil
		}
	}
}
