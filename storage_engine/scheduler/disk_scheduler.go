// Package scheduler converts synchronous per-page I/O calls into
// asynchronous ones handled by a single background worker, giving the
// buffer pool manager one point of serialization for disk access.
package scheduler

import (
	"log"
	"sync"

	"daemoncore/storage_engine/diskmgr"
	"daemoncore/storage_engine/page"

	"github.com/google/uuid"
)

// DiskRequest is a single unit of disk work. Done is signaled exactly
// once, after the worker finishes (or fails) the underlying disk
// operation; callers block on it to turn the async request back into a
// synchronous call.
type DiskRequest struct {
	ID      string
	IsWrite bool
	Data    []byte // PageSize bytes; read target or write source
	PageID  page.PageID
	Done    chan error
}

// NewRequest builds a DiskRequest with a fresh correlation id and a
// ready-to-receive completion channel.
func NewRequest(isWrite bool, data []byte, id page.PageID) DiskRequest {
	return DiskRequest{
		ID:      uuid.NewString(),
		IsWrite: isWrite,
		Data:    data,
		PageID:  id,
		Done:    make(chan error, 1),
	}
}

// Scheduler owns one worker goroutine and an unbounded FIFO of pending
// requests, backed by a growable slice rather than a fixed-capacity
// channel so that Schedule can never block on queue depth. Construction
// spawns the worker; Close signals it to drain and exit.
type Scheduler struct {
	dm *diskmgr.DiskManager

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []DiskRequest
	closed bool

	done chan struct{}
}

// New spawns the background worker bound to dm and returns a Scheduler
// ready to accept requests.
func New(dm *diskmgr.DiskManager) *Scheduler {
	s := &Scheduler{
		dm:   dm,
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.work()
	return s
}

// Schedule appends request to the tail of the queue and returns
// immediately; it never blocks on the disk operation itself, or on
// queue depth. Requests are executed in enqueue order — there is no
// reordering, coalescing, or prioritization.
func (s *Scheduler) Schedule(req DiskRequest) {
	s.mu.Lock()
	s.queue = append(s.queue, req)
	s.mu.Unlock()
	s.cond.Signal()
}

// IncreaseDiskSpace ensures the backing store can hold id. It is
// idempotent and monotone, so it is dispatched directly rather than
// through the FIFO: there is nothing to serialize against a resize.
func (s *Scheduler) IncreaseDiskSpace(id page.PageID) {
	s.dm.IncreaseDiskSpace(id)
}

// DeallocatePage marks a page free on disk. Idempotent: safe to call
// any number of times for the same id.
func (s *Scheduler) DeallocatePage(id page.PageID) error {
	return s.dm.DeallocatePage(id)
}

// KnowsAbout reports whether id was ever grown into via
// IncreaseDiskSpace; a page that was only written through a Schedule'd
// write, never grown into, is reported false. It is dispatched
// directly, bypassing the FIFO, the same as IncreaseDiskSpace.
func (s *Scheduler) KnowsAbout(id page.PageID) bool {
	return s.dm.KnowsAbout(id)
}

// Close marks the scheduler closed and blocks until the worker has
// drained whatever is left in the queue and exited.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Signal()
	<-s.done
}

// work is the single background worker: pop, dispatch read/write,
// signal completion. It never terminates on an I/O error — the error is
// handed back to the caller through Done, and the worker moves on to
// the next request.
func (s *Scheduler) work() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		req := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		var err error
		if req.IsWrite {
			err = s.dm.WritePage(req.PageID, req.Data)
		} else {
			err = s.dm.ReadPage(req.PageID, req.Data)
		}
		if err != nil {
			log.Printf("[scheduler] request=%s page=%d failed: %v", req.ID, req.PageID, err)
		}
		req.Done <- err
	}
}
