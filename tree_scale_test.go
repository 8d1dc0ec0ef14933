package vmtree_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	vmtree "github.com/ubco-db/vmtree-go"
	"github.com/ubco-db/vmtree-go/interfaces"
	"github.com/ubco-db/vmtree-go/storage/device"
)

// TestAllocatorSurvivesBlockReclamation grows a tree past the size of its
// backing storage region, forcing EnsureSpace to repeatedly erase blocks
// and write their live pages back in place (the wear-aware allocator's
// reason to exist).
// Every key inserted must still be reachable afterward.
func TestAllocatorSurvivesBlockReclamation(t *testing.T) {
	params := vmtree.Params{
		PageSize:          128,
		NumBufferPages:    8,
		EraseSizeInPages:  4,
		KeySize:           4,
		DataSize:          8,
		MappingBufferSize: 64,
		StorageSizePages:  128,
		MaxMappingTries:   4,
		Mode:              vmtree.ModeSequential,
	}
	dev := device.NewMemDevice(params.StorageSizePages, params.PageSize)
	tree, err := vmtree.New(params, dev, interfaces.NopLogger{})
	require.NoError(t, err)

	const n = 300
	order := rand.New(rand.NewSource(5)).Perm(n)
	for _, v := range order {
		key := uint32(v + 1)
		require.NoError(t, tree.Put(keyFor(key), dataFor(key)), "put %d", key)
	}

	for v := uint32(1); v <= n; v++ {
		got, err := tree.Get(keyFor(v))
		require.NoError(t, err, "key %d must survive block reclamation", v)
		require.Equal(t, dataFor(v), got)
	}

	stats := tree.Stats()
	require.Greater(t, stats.Levels, uint32(2), "300 records in a 9-record leaf / 14-key interior tree must be at least 3 levels deep")
	require.Greater(t, stats.Moves, uint64(0), "storage region smaller than the working set must have triggered at least one page migration")
}

func TestEmptyIteratorIsImmediatelyExhausted(t *testing.T) {
	tree := newPlainTestTree(t, vmtree.ModeSequential)
	it, err := tree.NewIterator(nil, nil)
	require.NoError(t, err)
	_, _, err = it.Next()
	require.ErrorIs(t, err, vmtree.ErrNotFound)
}
