package vmtree_test

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	vmtree "github.com/ubco-db/vmtree-go"
	"github.com/ubco-db/vmtree-go/interfaces"
	"github.com/ubco-db/vmtree-go/storage/device"
)

func newPlainTestTree(t *testing.T, mode vmtree.Mode) *vmtree.Tree {
	t.Helper()
	params := vmtree.Params{
		PageSize:          128,
		NumBufferPages:    8,
		EraseSizeInPages:  4,
		KeySize:           4,
		DataSize:          8,
		MappingBufferSize: 64,
		StorageSizePages:  256,
		MaxMappingTries:   4,
		Mode:              mode,
	}
	dev := device.NewMemDevice(params.StorageSizePages, params.PageSize)
	tree, err := vmtree.New(params, dev, interfaces.NopLogger{})
	require.NoError(t, err)
	return tree
}

func keyFor(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func dataFor(v uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestPlainPutGetRoundTrip(t *testing.T) {
	tree := newPlainTestTree(t, vmtree.ModeSequential)

	const n = 60
	order := rand.New(rand.NewSource(1)).Perm(n)
	for _, v := range order {
		key := uint32(v + 1)
		require.NoError(t, tree.Put(keyFor(key), dataFor(key)))
	}

	for v := uint32(1); v <= n; v++ {
		got, err := tree.Get(keyFor(v))
		require.NoError(t, err, "key %d should be present", v)
		require.Equal(t, dataFor(v), got)
	}

	_, err := tree.Get(keyFor(n + 1000))
	require.ErrorIs(t, err, vmtree.ErrNotFound)

	stats := tree.Stats()
	require.Greater(t, stats.Levels, uint32(1), "60 records in a 9-record-per-leaf tree must have split at least once")
	require.LessOrEqual(t, stats.MappingCount, uint32(8), "mapping table must stay within its configured capacity")
}

func TestPlainOrderedRangeIterator(t *testing.T) {
	tree := newPlainTestTree(t, vmtree.ModeSequential)

	const n = 50
	order := rand.New(rand.NewSource(2)).Perm(n)
	for _, v := range order {
		key := uint32(v + 1)
		require.NoError(t, tree.Put(keyFor(key), dataFor(key)))
	}

	it, err := tree.NewIterator(nil, nil)
	require.NoError(t, err)

	var seen []uint32
	for {
		k, d, err := it.Next()
		if err == vmtree.ErrNotFound {
			break
		}
		require.NoError(t, err)
		kv := binary.LittleEndian.Uint32(k)
		require.Equal(t, kv, binary.LittleEndian.Uint32(d))
		seen = append(seen, kv)
	}

	require.Len(t, seen, n)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i], "iterator must yield strictly ascending keys")
	}
}

func TestPlainRangeIteratorBounds(t *testing.T) {
	tree := newPlainTestTree(t, vmtree.ModeSequential)
	for v := uint32(1); v <= 30; v++ {
		require.NoError(t, tree.Put(keyFor(v), dataFor(v)))
	}

	it, err := tree.NewIterator(keyFor(10), keyFor(20))
	require.NoError(t, err)

	var seen []uint32
	for {
		k, _, err := it.Next()
		if err == vmtree.ErrNotFound {
			break
		}
		require.NoError(t, err)
		seen = append(seen, binary.LittleEndian.Uint32(k))
	}
	require.Equal(t, []uint32{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, seen)
}

func TestOverwriteModeRoundTrip(t *testing.T) {
	tree := newPlainTestTree(t, vmtree.ModeOverwrite)
	for v := uint32(1); v <= 40; v++ {
		require.NoError(t, tree.Put(keyFor(v), dataFor(v)))
	}
	for v := uint32(1); v <= 40; v++ {
		got, err := tree.Get(keyFor(v))
		require.NoError(t, err)
		require.Equal(t, dataFor(v), got)
	}
}
