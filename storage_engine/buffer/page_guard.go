package buffer

import (
	"sync"

	"daemoncore/storage_engine/page"
	"daemoncore/storage_engine/replacer"
)

// noCopy lets `go vet`'s copylocks check flag accidental copies of a
// guard, the closest idiomatic-Go analogue to a deleted copy
// constructor. It is the same zero-size trick sync.WaitGroup uses.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// guardCore is the state shared by ReadPageGuard and WritePageGuard.
// Only the buffer pool manager may populate one with valid=true; the
// zero value is a default-constructed empty guard, usable only to
// occupy a not-yet-assigned variable.
type guardCore struct {
	_ noCopy

	frame     *FrameHeader
	poolLatch *sync.Mutex
	repl      *replacer.LRUKReplacer
	pageID    page.PageID
	valid     bool
}

func (g *guardCore) mustBeValid() {
	if !g.valid {
		panic("buffer: use of an invalid (default-constructed or already-dropped) page guard")
	}
}

// GetPageID returns the guarded page's id. Requires a valid guard.
func (g *guardCore) GetPageID() page.PageID {
	g.mustBeValid()
	return g.pageID
}

// release decrements the pin count and, if it reaches zero, marks the
// frame evictable again. It must run after the frame latch has already
// been released by the caller (ReadPageGuard.Drop / WritePageGuard.Drop).
func (g *guardCore) release() {
	if !g.valid {
		return
	}
	if g.frame.pinCount.Add(-1) == 0 {
		g.poolLatch.Lock()
		g.repl.SetEvictable(g.frame.id, true)
		g.poolLatch.Unlock()
	}
	g.valid = false
}

// ReadPageGuard is a move-only scoped handle granting shared access to
// one frame's data. Copy is forbidden (enforced via noCopy); pass by
// pointer, or reassign and let the old variable go out of scope.
type ReadPageGuard struct {
	guardCore
}

// GetPageID returns the guarded page's id.
func (g *ReadPageGuard) GetPageID() page.PageID { return g.guardCore.GetPageID() }

// GetData returns the page's bytes. Requires a valid guard.
func (g *ReadPageGuard) GetData() []byte {
	g.mustBeValid()
	return g.frame.GetData()
}

// IsDirty reports the frame's dirty bit. Requires a valid guard.
func (g *ReadPageGuard) IsDirty() bool {
	g.mustBeValid()
	return g.frame.IsDirty()
}

// Drop releases the shared latch, decrements the pin count, and — if
// this was the last pin — marks the frame evictable. Dropping an
// already-invalid guard is a no-op.
func (g *ReadPageGuard) Drop() {
	if !g.valid {
		return
	}
	g.frame.rwLatch.RUnlock()
	g.release()
}

// WritePageGuard is a move-only scoped handle granting exclusive access
// to one frame's data.
type WritePageGuard struct {
	guardCore
}

// GetPageID returns the guarded page's id.
func (g *WritePageGuard) GetPageID() page.PageID { return g.guardCore.GetPageID() }

// GetData returns the page's bytes (read-only view, even though the
// guard holds exclusive access). Requires a valid guard.
func (g *WritePageGuard) GetData() []byte {
	g.mustBeValid()
	return g.frame.GetData()
}

// GetDataMut returns a mutable view of the page's bytes. Any caller
// that takes this view is considered to have written to the buffer, so
// it marks the frame dirty immediately rather than waiting for Drop —
// a tighter policy than "always mark on drop", but one that still
// guarantees is_dirty==true before the frame can be observed as clean
// by the eviction path (see DESIGN.md Open Question (i)).
func (g *WritePageGuard) GetDataMut() []byte {
	g.mustBeValid()
	g.frame.isDirty = true
	return g.frame.GetDataMut()
}

// IsDirty reports the frame's dirty bit. Requires a valid guard.
func (g *WritePageGuard) IsDirty() bool {
	g.mustBeValid()
	return g.frame.IsDirty()
}

// Drop releases the exclusive latch, decrements the pin count, and —
// if this was the last pin — marks the frame evictable. Dropping an
// already-invalid guard is a no-op.
func (g *WritePageGuard) Drop() {
	if !g.valid {
		return
	}
	g.frame.rwLatch.Unlock()
	g.release()
}
