// Bufdemo program: exercises the buffer pool substrate end to end —
// allocate a page, write to it, flush it, force it out of the pool
// under eviction pressure, and fetch it back.
// Run: go run ./cmd/bufdemo
package main

import (
	"log"
	"os"

	"daemoncore/storage_engine/buffer"
	"daemoncore/storage_engine/diskmgr"
	"daemoncore/storage_engine/logmgr"
	"daemoncore/storage_engine/scheduler"
)

const dbFile = "bufdemo.db"

func main() {
	dm, err := diskmgr.New(dbFile)
	if err != nil {
		log.Fatalf("open disk manager: %v", err)
	}
	defer dm.Close()
	defer os.Remove(dbFile)

	sched := scheduler.New(dm)
	defer sched.Close()

	bp := buffer.New(4, 2, sched, logmgr.Noop{})

	p1 := bp.NewPage()
	log.Printf("allocated page %d", p1)

	w := bp.WritePage(p1)
	data := w.GetDataMut()
	copy(data, []byte("hello, buffer pool"))
	w.Drop()

	if ok := bp.FlushPage(p1); !ok {
		log.Fatalf("flush of page %d failed unexpectedly", p1)
	}
	log.Printf("flushed page %d", p1)

	// Allocate and touch (pin, then drop) more pages than the pool can
	// hold, to force p1 out under eviction pressure.
	for i := 0; i < 8; i++ {
		id := bp.NewPage()
		g := bp.WritePage(id)
		g.Drop()
	}

	r := bp.ReadPage(p1)
	log.Printf("re-fetched page %d: %q", p1, string(r.GetData()[:len("hello, buffer pool")]))
	r.Drop()

	bp.FlushAllPages()
	log.Println("bufdemo done")
}
