package scenegraph

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/sync/errgroup"
)

// decodeRequest is one queued image-decode job.
type decodeRequest struct {
	id        uint64
	key       string
	bytes     []byte
	workerIdx int
}

// decodeResult is the outcome of one decodeRequest, delivered back to the
// main goroutine through ImageDecodePool.results.
type decodeResult struct {
	id        uint64
	key       string
	img       *ebiten.Image
	err       error
	workerIdx int
}

// imageWorker is one goroutine in the pool, tracking its own outstanding
// request count so the pool can route new work to the least-loaded worker
// (spec §4.7).
type imageWorker struct {
	jobs      chan decodeRequest
	inFlight  int
}

// ImageDecodePool decodes image bytes off the main goroutine so the frame
// tick never blocks on libpng/libjpeg work. Grounded on the teacher's
// single-threaded event-loop design (scene.go's gameShell.Update/Draw never
// spawn goroutines) — this is the one component of the system that
// deliberately steps outside that model, exactly where spec §4.7 calls for
// it, using golang.org/x/sync/errgroup (already an indirect dependency via
// Ebitengine) to manage worker lifecycle instead of a raw sync.WaitGroup.
type ImageDecodePool struct {
	cfg *Config

	mu       sync.Mutex
	workers  []*imageWorker
	nextID   uint64
	results  chan decodeResult

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewImageDecodePool starts cfg.NumImageWorkers goroutines (minimum 1) and
// returns a pool ready to accept Submit calls.
func NewImageDecodePool(cfg *Config) *ImageDecodePool {
	n := 2
	if cfg != nil && cfg.NumImageWorkers > 0 {
		n = cfg.NumImageWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	p := &ImageDecodePool{
		cfg:     cfg,
		workers: make([]*imageWorker, n),
		results: make(chan decodeResult, n*4),
		group:   g,
		cancel:  cancel,
	}
	for i := range p.workers {
		w := &imageWorker{jobs: make(chan decodeRequest, 8)}
		p.workers[i] = w
		g.Go(func() error {
			p.runWorker(gctx, w)
			return nil
		})
	}
	return p
}

func (p *ImageDecodePool) runWorker(ctx context.Context, w *imageWorker) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-w.jobs:
			if !ok {
				return
			}
			img, err := decodeImageBytes(req.bytes)
			select {
			case p.results <- decodeResult{id: req.id, key: req.key, img: img, err: err, workerIdx: req.workerIdx}:
			case <-ctx.Done():
			}
		}
	}
}

func decodeImageBytes(b []byte) (*ebiten.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return ebiten.NewImageFromImage(src), nil
}

// leastLoadedWorkerIndex returns the index of the worker with the fewest
// outstanding requests, breaking ties by lowest index for deterministic
// routing.
func (p *ImageDecodePool) leastLoadedWorkerIndex() int {
	best := 0
	for i, w := range p.workers {
		if w.inFlight < p.workers[best].inFlight {
			best = i
		}
	}
	return best
}

// Submit queues a decode request for key's bytes, returning a monotonic
// request ID the caller can correlate against Drain's results.
func (p *ImageDecodePool) Submit(key string, data []byte) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	idx := p.leastLoadedWorkerIndex()
	w := p.workers[idx]
	w.inFlight++
	w.jobs <- decodeRequest{id: id, key: key, bytes: data, workerIdx: idx}
	return id
}

// Drain empties the completion channel once, intended to be called exactly
// once per frame tick (spec §4.7 "completion channel drained once per tick
// by the main goroutine"). It does not block: it returns as soon as no more
// results are immediately available.
func (p *ImageDecodePool) Drain(fulfill func(key string, img *ebiten.Image, err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		select {
		case r := <-p.results:
			if r.workerIdx >= 0 && r.workerIdx < len(p.workers) && p.workers[r.workerIdx].inFlight > 0 {
				p.workers[r.workerIdx].inFlight--
			}
			fulfill(r.key, r.img, r.err)
		default:
			return
		}
	}
}

// Close stops every worker goroutine. The returned error is always nil
// since workers never fail the errgroup themselves (decode errors are
// reported per-request through Drain instead).
func (p *ImageDecodePool) Close() error {
	p.cancel()
	for _, w := range p.workers {
		close(w.jobs)
	}
	return p.group.Wait()
}
