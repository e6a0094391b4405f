// Package diskmgr implements the Disk Manager contract consumed by the
// Disk Scheduler: fixed-size pages read and written by integer page id,
// with the backing store grown on demand. It owns the on-disk layout
// (a single flat file, page p at byte offset p*PageSize) and nothing
// above that layer.
package diskmgr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"daemoncore/storage_engine/page"

	boom "github.com/tylertreat/BoomFilters"
)

// DiskManager reads and writes fixed-size pages from a single backing
// file. It is the only component in the tree that knows about on-disk
// byte offsets.
type DiskManager struct {
	mu   sync.Mutex
	file *os.File

	// numPages tracks how far the backing file has been grown, in pages.
	// increaseDiskSpace is idempotent and monotone against this value.
	numPages int64

	// allocated is a probabilistic membership set of page ids this
	// manager has ever been asked to grow into. KnowsAbout uses it to
	// let the buffer pool skip a fault-in read for a page id that was
	// never allocated, rather than round-tripping through the backing
	// file only to read back zeros. False positives are possible (as
	// with any bloom filter), so a true result still falls back to the
	// authoritative numPages check; a false result is trusted outright.
	allocated *boom.BloomFilter
}

// New opens (creating if absent) the backing file at path.
func New(path string) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("diskmgr: open %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("diskmgr: stat %s: %w", path, err)
	}

	return &DiskManager{
		file:      f,
		numPages:  stat.Size() / page.PageSize,
		allocated: boom.NewBloomFilter(1<<20, 0.01),
	}, nil
}

func pageKey(id page.PageID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

// ReadPage fills buf (which must be PageSize bytes) with the on-disk
// contents of id. Reading a page past the current end of file is not a
// programmer error here — it yields a zeroed page, matching a
// freshly-grown, never-written slot.
func (d *DiskManager) ReadPage(id page.PageID, buf []byte) error {
	if len(buf) != page.PageSize {
		panic(fmt.Sprintf("diskmgr: ReadPage buffer must be %d bytes, got %d", page.PageSize, len(buf)))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(id) * page.PageSize
	n, err := d.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("diskmgr: read page %d: %w", id, err)
	}
	for i := n; i < page.PageSize; i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage persists buf (PageSize bytes) at id's offset.
func (d *DiskManager) WritePage(id page.PageID, buf []byte) error {
	if len(buf) != page.PageSize {
		panic(fmt.Sprintf("diskmgr: WritePage buffer must be %d bytes, got %d", page.PageSize, len(buf)))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(id) * page.PageSize
	if _, err := d.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("diskmgr: write page %d: %w", id, err)
	}

	local := offset/page.PageSize + 1
	if local > d.numPages {
		d.numPages = local
	}
	return nil
}

// IncreaseDiskSpace ensures the backing store can hold id. Idempotent
// and monotone: calling it with a smaller or already-covered id is a
// no-op.
func (d *DiskManager) IncreaseDiskSpace(id page.PageID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.allocated.Add(pageKey(id))

	if int64(id) < d.numPages {
		return
	}
	d.numPages = int64(id) + 1
}

// DeallocatePage marks a page as free on disk. This design never
// reclaims or compacts file space, so the contract is satisfied by
// doing nothing beyond being safely callable any number of times for
// any page id.
func (d *DiskManager) DeallocatePage(id page.PageID) error {
	return nil
}

// KnowsAbout reports whether id was ever passed to IncreaseDiskSpace. A
// false result is authoritative ("never seen"), letting a caller skip
// a fault-in read it already knows would return zeros. A true result
// is only a hint (bloom filter false positives), backstopped by the
// numPages check below.
func (d *DiskManager) KnowsAbout(id page.PageID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.allocated.Test(pageKey(id)) {
		return false
	}
	return int64(id) < d.numPages
}

// Close syncs and closes the backing file.
func (d *DiskManager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.file.Sync(); err != nil {
		return err
	}
	return d.file.Close()
}
