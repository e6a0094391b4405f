// Package replacer implements the LRU-K eviction policy: given a set of
// tracked frames and their per-frame access histories, it picks the
// frame with the largest backward k-distance as the next eviction
// victim. Frames with fewer than k recorded accesses have infinite
// backward distance and are preferred, ties broken by earliest
// first-access timestamp.
package replacer

import (
	"fmt"
	"sync"

	"daemoncore/storage_engine/page"
)

// node is one tracked frame's access history and evictability.
type node struct {
	// history holds up to k timestamps, oldest first.
	history     []uint64
	isEvictable bool
}

// LRUKReplacer tracks access history per frame and answers "which
// evictable frame should be evicted next?" using the backward-k-distance
// rule. All operations hold a single replacer-wide lock; the replacer is
// purely in-memory and performs no I/O.
type LRUKReplacer struct {
	mu sync.Mutex

	k         int
	nodes     map[page.FrameID]*node
	currSize  int
	timestamp uint64
}

// New returns a replacer over at most numFrames frames, with backward
// distance computed over the last k accesses.
func New(numFrames int, k int) *LRUKReplacer {
	if k <= 0 {
		panic("replacer: k must be positive")
	}
	return &LRUKReplacer{
		k:     k,
		nodes: make(map[page.FrameID]*node, numFrames),
	}
}

// RecordAccess appends the current timestamp to frameID's history,
// truncating from the front to keep length <= k. A SCAN access does not
// update history, so sequential scans do not displace hot pages. The
// node is created on first access. The global timestamp always
// advances, even for a SCAN, so later accesses remain ordered relative
// to it.
func (r *LRUKReplacer) RecordAccess(frameID page.FrameID, accessType page.AccessType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timestamp++

	n, ok := r.nodes[frameID]
	if !ok {
		n = &node{}
		r.nodes[frameID] = n
	}

	if accessType == page.AccessScan {
		return
	}

	n.history = append(n.history, r.timestamp)
	if len(n.history) > r.k {
		n.history = n.history[len(n.history)-r.k:]
	}
}

// SetEvictable toggles frameID's evictability, updating curr_size
// accordingly. Idempotent with respect to an already-set flag.
func (r *LRUKReplacer) SetEvictable(frameID page.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frameID]
	if !ok {
		panic(fmt.Sprintf("replacer: SetEvictable on untracked frame %d", frameID))
	}

	if n.isEvictable == evictable {
		return
	}
	n.isEvictable = evictable
	if evictable {
		r.currSize++
	} else {
		r.currSize--
	}
}

// Evict returns a victim chosen per the backward-k-distance rule,
// removing its node entirely on success. Returns false if curr_size == 0.
//
// Tie-break: among frames with history shorter than k ("infinite
// distance"), the frame whose oldest history timestamp is smallest
// wins. Among frames with a full k-length history, the frame with the
// largest now-minus-oldest distance wins. The infinite-distance group
// always beats the finite one.
func (r *LRUKReplacer) Evict() (page.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currSize == 0 {
		return 0, false
	}

	var (
		victim       page.FrameID
		found        bool
		victimInf    bool
		victimOldest uint64
		victimDist   uint64
	)

	for fid, n := range r.nodes {
		if !n.isEvictable {
			continue
		}

		if len(n.history) == 0 {
			// No access has ever been recorded for this node (its only
			// accesses, if any, were SCAN), so there is no history[0] to
			// read. Treat it as the max-priority infinite-distance
			// candidate and take it immediately, without comparing
			// against anything else.
			victim, found = fid, true
			break
		}

		inf := len(n.history) < r.k
		oldest := n.history[0]

		if !found {
			victim, found, victimInf, victimOldest = fid, true, inf, oldest
			if !inf {
				victimDist = r.timestamp - oldest
			}
			continue
		}

		switch {
		case inf && !victimInf:
			// infinite-distance group always wins over finite.
			victim, victimInf, victimOldest = fid, true, oldest
		case inf && victimInf:
			if oldest < victimOldest {
				victim, victimOldest = fid, oldest
			}
		case !inf && victimInf:
			// current victim already infinite-distance; keep it.
		default:
			dist := r.timestamp - oldest
			if dist > victimDist {
				victim, victimDist = fid, dist
			}
		}
	}

	delete(r.nodes, victim)
	r.currSize--
	return victim, true
}

// Remove forcibly erases a tracked node. Valid only when the node is
// evictable; removing a non-evictable (pinned) frame is a programmer
// error and panics.
func (r *LRUKReplacer) Remove(frameID page.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frameID]
	if !ok {
		return
	}
	if !n.isEvictable {
		panic(fmt.Sprintf("replacer: Remove on non-evictable frame %d", frameID))
	}

	delete(r.nodes, frameID)
	r.currSize--
}

// Size returns the number of currently-evictable nodes.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
