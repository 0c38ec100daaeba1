// Package scansvc runs directory scans on a fixed pool of long-lived
// workers instead of one goroutine per request, following the
// teacher's WaitGroup-fenced goroutine-pool idiom generalized from
// one-shot batches to a standing service (spec §4.2).
package scansvc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/foldersync/syncengine/internal/queue"
	"github.com/foldersync/syncengine/internal/reconcile/model"
)

// Lister is the subset of fscap.Capability a scan needs. Kept as a
// narrow interface so scansvc doesn't import fscap directly, matching
// spec §9's small-capability-interface redesign.
type Lister interface {
	Iterate(dir string) ([]model.FsNode, error)
}

// Result is delivered on Service.Results() once a request finishes. A
// request released to zero references before a worker picks it up
// produces no Result.
type Result struct {
	Cookie   uint64
	Path     string
	Children []model.FsNode
	Err      error
}

// ErrCancelled names the cancellation of a request whose Handle was
// released to zero references before a worker picked it up. The
// service never delivers it: such a request is dropped without a
// Result.
var ErrCancelled = fmt.Errorf("scansvc: request cancelled")

type request struct {
	cookie   uint64
	path     string
	priority int
}

type inflight struct {
	refs int32
}

// Service is a bounded worker pool of directory-scan requests. Each
// request is reference-counted: multiple owners (e.g. a sync's normal
// scan pass and its notification-triggered rescan) can hold the same
// in-flight scan, and it is only dropped once the last owner releases
// it, following spec §4.2's "weak/cookie ownership, cancel-on-drop"
// requirement.
type Service struct {
	lister Lister
	queue  *queue.PriorityQueue[request]
	wake   chan struct{}
	result chan Result

	mu       sync.Mutex
	pending  map[uint64]*inflight
	nextID   uint64
	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// New builds a scan service backed by lister, with numWorkers
// long-lived goroutines. Call Start to launch the workers.
func New(lister Lister, numWorkers int) *Service {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Service{
		lister:  lister,
		queue:   queue.NewPriorityQueue[request](),
		wake:    make(chan struct{}, numWorkers),
		result:  make(chan Result, numWorkers*4),
		pending: make(map[uint64]*inflight),
	}
}

// Handle is a reference-counted token for one submitted scan request.
type Handle struct {
	svc    *Service
	cookie uint64
}

// Cookie identifies this handle's request; nodecache/reconciler use it
// to correlate a Result back to the SyncNode that requested the scan.
func (h *Handle) Cookie() uint64 { return h.cookie }

// Retain adds another owner to this in-flight request.
func (h *Handle) Retain() {
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	if in, ok := h.svc.pending[h.cookie]; ok {
		atomic.AddInt32(&in.refs, 1)
	}
}

// Release drops one owner. Once the last owner releases, the request
// is cancelled: if a worker hasn't started it yet, it is skipped
// entirely and no Result is ever produced for it.
func (h *Handle) Release() {
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	in, ok := h.svc.pending[h.cookie]
	if !ok {
		return
	}
	if atomic.AddInt32(&in.refs, -1) <= 0 {
		delete(h.svc.pending, h.cookie)
	}
}

// Start launches the worker pool. Stop must be called to release
// workers once the service is no longer needed.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	numWorkers := cap(s.wake)
	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
}

// Stop cancels outstanding work and waits for all workers to exit.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	s.wg.Wait()
}

// Submit enqueues a directory scan for path at the given priority
// (lower runs first) and returns a Handle with one reference already
// held on behalf of the caller.
func (s *Service) Submit(path string, priority int) *Handle {
	s.mu.Lock()
	s.nextID++
	cookie := s.nextID
	s.pending[cookie] = &inflight{refs: 1}
	s.mu.Unlock()

	s.queue.Enqueue(request{cookie: cookie, path: path, priority: priority}, priority)

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return &Handle{svc: s, cookie: cookie}
}

// Results returns the channel scan outcomes are delivered on.
func (s *Service) Results() <-chan Result { return s.result }

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		for {
			req, ok := s.queue.Dequeue()
			if !ok {
				break
			}

			s.mu.Lock()
			_, live := s.pending[req.cookie]
			s.mu.Unlock()
			if !live {
				continue // released to zero refs before a worker reached it
			}

			children, err := s.lister.Iterate(req.path)

			s.mu.Lock()
			delete(s.pending, req.cookie)
			s.mu.Unlock()

			select {
			case s.result <- Result{Cookie: req.cookie, Path: req.path, Children: children, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}
