// Package buffer implements the Buffer Pool Manager: the component that
// mediates all access to pages, backed by a fixed array of frames, a
// page table, a free-frame list, an LRU-K replacer and a disk
// scheduler. Every page is either resident in exactly one frame or only
// on disk; callers reach pages exclusively through ReadPageGuard and
// WritePageGuard.
package buffer

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"daemoncore/storage_engine/logmgr"
	"daemoncore/storage_engine/page"
	"daemoncore/storage_engine/replacer"
	"daemoncore/storage_engine/scheduler"
)

// BufferPoolManager owns the frame array, the page-table mapping, the
// free-frame list, the replacer and the scheduler.
type BufferPoolManager struct {
	// poolLatch is the short-critical-section lock guarding the page
	// table, the free list, replacer calls, and frame-metadata
	// mutations. It never spans both a disk I/O and a subsequent
	// frame-latch acquisition, except for flush, which is allowed to
	// hold it across the wait for simplicity.
	poolLatch sync.Mutex

	frames    []*FrameHeader
	pageTable map[page.PageID]page.FrameID
	freeList  []page.FrameID

	repl  *replacer.LRUKReplacer
	sched *scheduler.Scheduler

	// logManager is accepted but never called at this layer: a future
	// write-ahead log component would be wired in here without this
	// package needing to know anything about its internals.
	logManager logmgr.LogManager

	nextPageID atomic.Int64
}

// New constructs a pool of numFrames frames, backed by sched for I/O and
// an LRU-K replacer parameterized by k. lm may be nil-able via
// logmgr.Noop{} when the caller has no real log manager.
func New(numFrames int, k int, sched *scheduler.Scheduler, lm logmgr.LogManager) *BufferPoolManager {
	if numFrames <= 0 {
		panic("buffer: pool must have at least one frame")
	}

	frames := make([]*FrameHeader, numFrames)
	freeList := make([]page.FrameID, numFrames)
	for i := 0; i < numFrames; i++ {
		frames[i] = newFrameHeader(page.FrameID(i))
		freeList[i] = page.FrameID(i)
	}

	return &BufferPoolManager{
		frames:     frames,
		pageTable:  make(map[page.PageID]page.FrameID, numFrames),
		freeList:   freeList,
		repl:       replacer.New(numFrames, k),
		sched:      sched,
		logManager: lm,
	}
}

// Size returns the pool's fixed capacity in frames.
func (bp *BufferPoolManager) Size() int { return len(bp.frames) }

// syncIO schedules a request and blocks until the worker signals
// completion, returning any I/O error it reported.
func (bp *BufferPoolManager) syncIO(isWrite bool, data []byte, id page.PageID) error {
	req := scheduler.NewRequest(isWrite, data, id)
	bp.sched.Schedule(req)
	return <-req.Done
}

// acquireFrame brings id's frame into the pool, pinning it and marking
// it non-evictable, without taking the frame's own rw-latch (that
// happens outside the pool latch, in the caller). Returns false if no
// frame is available. The fault-in read is skipped when the scheduler
// reports (via KnowsAbout) that the disk manager has never grown into
// id: Reset has already zeroed the buffer, which is what that read
// would return.
func (bp *BufferPoolManager) acquireFrame(id page.PageID) (*FrameHeader, bool) {
	bp.poolLatch.Lock()
	defer bp.poolLatch.Unlock()

	if fid, ok := bp.pageTable[id]; ok {
		frame := bp.frames[fid]
		bp.repl.RecordAccess(fid, page.AccessGet)
		bp.repl.SetEvictable(fid, false)
		frame.pinCount.Add(1)
		return frame, true
	}

	var fid page.FrameID
	if n := len(bp.freeList); n > 0 {
		fid = bp.freeList[0]
		bp.freeList = bp.freeList[1:]
	} else {
		victim, ok := bp.repl.Evict()
		if !ok {
			return nil, false
		}
		fid = victim
	}

	frame := bp.frames[fid]
	oldPageID := frame.pageID

	if frame.isDirty {
		if err := bp.syncIO(true, frame.data, oldPageID); err != nil {
			log.Printf("[bufferpool] eviction flush of page %d failed: %v", oldPageID, err)
		}
		frame.isDirty = false
	}

	if oldPageID != page.InvalidPageID {
		delete(bp.pageTable, oldPageID)
	}

	frame.Reset()

	// A page id the disk manager has never grown into reads back as
	// all-zero regardless, and Reset already zeroed the buffer — skip
	// the round trip through the worker goroutine for that case.
	if bp.sched.KnowsAbout(id) {
		if err := bp.syncIO(false, frame.data, id); err != nil {
			log.Printf("[bufferpool] fault-in read of page %d failed: %v", id, err)
		}
	}

	frame.pageID = id
	bp.pageTable[id] = fid
	frame.pinCount.Store(1)
	bp.repl.RecordAccess(fid, page.AccessGet)
	bp.repl.SetEvictable(fid, false)

	return frame, true
}

// NewPage allocates a fresh page id from the monotone counter and grows
// the backing store to cover it. This cannot fail: disk space is
// assumed inexhaustible. It deliberately does not touch the frame array
// — bringing the id into a frame is deferred to its first
// CheckedReadPage/CheckedWritePage, the same lazy fault-in every other
// page id goes through. The alternative (eagerly grabbing a frame here)
// would make NewPage capable of the very "no frame available" failure
// it otherwise cannot have, the moment every frame is already pinned
// (see DESIGN.md).
func (bp *BufferPoolManager) NewPage() page.PageID {
	id := page.PageID(bp.nextPageID.Add(1) - 1)
	bp.sched.IncreaseDiskSpace(id)
	return id
}

// DeletePage removes page id from the pool if present and unpinned,
// returning the frame to the free list and erasing it from the
// replacer. Deleting an absent page id is a no-op success: callers may
// call it any number of times for the same id.
func (bp *BufferPoolManager) DeletePage(id page.PageID) bool {
	bp.poolLatch.Lock()

	fid, ok := bp.pageTable[id]
	if !ok {
		bp.poolLatch.Unlock()
		return true
	}

	frame := bp.frames[fid]
	if frame.PinCount() > 0 {
		bp.poolLatch.Unlock()
		return false
	}

	bp.repl.Remove(fid)
	delete(bp.pageTable, id)
	frame.Reset()
	bp.freeList = append(bp.freeList, fid)

	bp.poolLatch.Unlock()

	if err := bp.sched.DeallocatePage(id); err != nil {
		log.Printf("[bufferpool] deallocate page %d failed: %v", id, err)
	}
	return true
}

// CheckedReadPage brings id into a frame if needed and returns a
// ReadPageGuard holding the frame's shared latch. Returns false if no
// frame was available.
func (bp *BufferPoolManager) CheckedReadPage(id page.PageID) (*ReadPageGuard, bool) {
	frame, ok := bp.acquireFrame(id)
	if !ok {
		return nil, false
	}
	frame.rwLatch.RLock()
	return &ReadPageGuard{guardCore{
		frame:     frame,
		poolLatch: &bp.poolLatch,
		repl:      bp.repl,
		pageID:    id,
		valid:     true,
	}}, true
}

// CheckedWritePage brings id into a frame if needed and returns a
// WritePageGuard holding the frame's exclusive latch. Returns false if
// no frame was available.
func (bp *BufferPoolManager) CheckedWritePage(id page.PageID) (*WritePageGuard, bool) {
	frame, ok := bp.acquireFrame(id)
	if !ok {
		return nil, false
	}
	frame.rwLatch.Lock()
	return &WritePageGuard{guardCore{
		frame:     frame,
		poolLatch: &bp.poolLatch,
		repl:      bp.repl,
		pageID:    id,
		valid:     true,
	}}, true
}

// ReadPage is an infallible wrapper around CheckedReadPage, intended
// only for tests: it aborts the process if no frame is available.
func (bp *BufferPoolManager) ReadPage(id page.PageID) *ReadPageGuard {
	g, ok := bp.CheckedReadPage(id)
	if !ok {
		panic(fmt.Sprintf("buffer: ReadPage found no frame available for page %d", id))
	}
	return g
}

// WritePage is an infallible wrapper around CheckedWritePage, intended
// only for tests: it aborts the process if no frame is available.
func (bp *BufferPoolManager) WritePage(id page.PageID) *WritePageGuard {
	g, ok := bp.CheckedWritePage(id)
	if !ok {
		panic(fmt.Sprintf("buffer: WritePage found no frame available for page %d", id))
	}
	return g
}

// FlushPage submits a synchronous write for id's current contents and
// blocks on its completion, clearing the dirty bit. Returns false if id
// is not resident. The pool latch is held across the I/O wait, an
// accepted simplification — a throughput-oriented design would split
// this into two critical sections.
func (bp *BufferPoolManager) FlushPage(id page.PageID) bool {
	bp.poolLatch.Lock()
	defer bp.poolLatch.Unlock()

	fid, ok := bp.pageTable[id]
	if !ok {
		return false
	}

	frame := bp.frames[fid]
	if err := bp.syncIO(true, frame.data, id); err != nil {
		log.Printf("[bufferpool] flush of page %d failed: %v", id, err)
		return true
	}
	frame.isDirty = false
	return true
}

// FlushAllPages flushes every resident page, in the page table's map
// iteration order (unspecified).
func (bp *BufferPoolManager) FlushAllPages() {
	bp.poolLatch.Lock()
	defer bp.poolLatch.Unlock()

	for id, fid := range bp.pageTable {
		frame := bp.frames[fid]
		if err := bp.syncIO(true, frame.data, id); err != nil {
			log.Printf("[bufferpool] flush-all of page %d failed: %v", id, err)
			continue
		}
		frame.isDirty = false
	}
}

// GetPinCount atomically loads the pin counter for id. Used by tests.
func (bp *BufferPoolManager) GetPinCount(id page.PageID) (int32, bool) {
	bp.poolLatch.Lock()
	defer bp.poolLatch.Unlock()

	fid, ok := bp.pageTable[id]
	if !ok {
		return 0, false
	}
	return bp.frames[fid].PinCount(), true
}
