package trie

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
)

// ExportSnapshot serializes the trie currently published by the store
// into a snappy-compressed byte blob, for out-of-band persistence or
// debugging. This has no bearing on the on-disk page format owned by
// the disk manager — it is a standalone convenience, added because a
// real snapshot store would want some way to ship a snapshot
// off-process.
func (s *TrieStore) ExportSnapshot() []byte {
	snap, _ := s.snapshot()

	var raw []byte
	snap.All(func(key string, value []byte) {
		var lenBuf [8]byte
		binary.BigEndian.PutUint32(lenBuf[0:4], uint32(len(key)))
		binary.BigEndian.PutUint32(lenBuf[4:8], uint32(len(value)))
		raw = append(raw, lenBuf[:]...)
		raw = append(raw, key...)
		raw = append(raw, value...)
	})

	return snappy.Encode(nil, raw)
}

// ImportSnapshot decodes a blob produced by ExportSnapshot and installs
// it as a brand-new root, under the same writer serialization as Put
// and Remove.
func (s *TrieStore) ImportSnapshot(blob []byte) error {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return fmt.Errorf("trie: decoding snapshot: %w", err)
	}

	var next Trie
	for off := 0; off < len(raw); {
		if off+8 > len(raw) {
			return fmt.Errorf("trie: truncated snapshot header at offset %d", off)
		}
		keyLen := binary.BigEndian.Uint32(raw[off : off+4])
		valLen := binary.BigEndian.Uint32(raw[off+4 : off+8])
		off += 8

		if off+int(keyLen)+int(valLen) > len(raw) {
			return fmt.Errorf("trie: truncated snapshot entry at offset %d", off)
		}
		key := string(raw[off : off+int(keyLen)])
		off += int(keyLen)
		value := append([]byte(nil), raw[off:off+int(valLen)]...)
		off += int(valLen)

		next = next.Put(key, value)
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	s.rootLock.Lock()
	s.root = next
	s.version++
	s.rootLock.Unlock()

	return nil
}
