package vmtree_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	vmtree "github.com/ubco-db/vmtree-go"
	"github.com/ubco-db/vmtree-go/interfaces"
	"github.com/ubco-db/vmtree-go/storage/device"
)

func TestNewFromConfigDefaults(t *testing.T) {
	v := viper.New()
	v.Set("dataSize", uint32(8))
	dev := device.NewMemDevice(256, 512)

	tree, err := vmtree.NewFromConfig(v, dev, interfaces.NopLogger{})
	require.NoError(t, err)

	require.NoError(t, tree.Put(keyFor(1), dataFor(1)))
	got, err := tree.Get(keyFor(1))
	require.NoError(t, err)
	require.Equal(t, dataFor(1), got)
}

func TestNewFromConfigHonorsOverridesAndMode(t *testing.T) {
	v := viper.New()
	v.Set("pageSize", uint32(128))
	v.Set("keySize", uint32(4))
	v.Set("dataSize", uint32(8))
	v.Set("mode", "nor")
	dev := device.NewMemDevice(256, 128)

	tree, err := vmtree.NewFromConfig(v, dev, interfaces.NopLogger{})
	require.NoError(t, err)

	for val := uint32(1); val <= 5; val++ {
		require.NoError(t, tree.Put(keyFor(val), dataFor(val)))
	}
	stats := tree.Stats()
	require.Equal(t, uint64(5), stats.OverWrites, "mode=nor override should route puts through the bitmap-append path")
}
