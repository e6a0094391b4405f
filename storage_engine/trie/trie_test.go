package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrie_PutGet(t *testing.T) {
	var tr Trie
	tr = tr.Put("go", []byte("red"))
	tr = tr.Put("gopher", []byte("blue"))

	v, ok := tr.Get("go")
	require.True(t, ok)
	assert.Equal(t, []byte("red"), v)

	v, ok = tr.Get("gopher")
	require.True(t, ok)
	assert.Equal(t, []byte("blue"), v)

	_, ok = tr.Get("gop")
	assert.False(t, ok, "a prefix with no value stored must report absent")
}

// Put returns a new root; the old root must keep observing its own
// values, unaffected by the mutation (structural sharing, not in-place
// mutation).
func TestTrie_PutIsStructurallyShared(t *testing.T) {
	var tr Trie
	v1 := tr.Put("a", []byte("1"))
	v2 := v1.Put("a", []byte("2"))

	got1, _ := v1.Get("a")
	got2, _ := v2.Get("a")
	assert.Equal(t, []byte("1"), got1)
	assert.Equal(t, []byte("2"), got2)
}

func TestTrie_RemovePrunesEmptyNodes(t *testing.T) {
	var tr Trie
	tr = tr.Put("cat", []byte("x"))
	tr = tr.Remove("cat")

	_, ok := tr.Get("cat")
	assert.False(t, ok)
	assert.Empty(t, tr.root.children, "the now-empty c-a-t path must be pruned from the root")
}

// A value-bearing leaf may still have children: removing the shorter
// key must not disturb the longer one.
func TestTrie_RemoveValueBearingLeafWithChildren(t *testing.T) {
	var tr Trie
	tr = tr.Put("go", []byte("red"))
	tr = tr.Put("gopher", []byte("blue"))

	tr = tr.Remove("go")

	_, ok := tr.Get("go")
	assert.False(t, ok)

	v, ok := tr.Get("gopher")
	require.True(t, ok)
	assert.Equal(t, []byte("blue"), v)
}

func TestTrie_AllWalksInLexicographicOrder(t *testing.T) {
	var tr Trie
	tr = tr.Put("b", []byte("2"))
	tr = tr.Put("a", []byte("1"))
	tr = tr.Put("c", []byte("3"))

	var keys []string
	tr.All(func(key string, value []byte) {
		keys = append(keys, key)
	})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestTrie_EmptyTrieGetMisses(t *testing.T) {
	var tr Trie
	_, ok := tr.Get("anything")
	assert.False(t, ok)
}
