package vmtree

import (
	"github.com/spf13/viper"

	"github.com/ubco-db/vmtree-go/interfaces"
)

// NewFromConfig reads Params fields (page size, buffer frame count, erase
// block size, key/data sizes, mapping buffer size, and storage mode) from a
// viper instance bound to a YAML file or the environment, and constructs a
// Tree with them. The programmatic Params struct remains the library's
// actual source of truth; New itself never reads viper.
func NewFromConfig(v *viper.Viper, dev interfaces.BlockDevice, logger interfaces.Logger) (*Tree, error) {
	v.SetDefault("pageSize", uint32(512))
	v.SetDefault("numBufferPages", uint32(4))
	v.SetDefault("eraseSizeInPages", uint32(8))
	v.SetDefault("keySize", uint32(4))
	v.SetDefault("dataSize", uint32(12))
	v.SetDefault("mappingBufferSize", uint32(64))
	v.SetDefault("storageSizePages", uint32(256))
	v.SetDefault("mode", "sequential")
	v.SetDefault("maxMappingTries", uint32(1))

	params := Params{
		PageSize:          v.GetUint32("pageSize"),
		NumBufferPages:    v.GetUint32("numBufferPages"),
		EraseSizeInPages:  v.GetUint32("eraseSizeInPages"),
		KeySize:           v.GetUint32("keySize"),
		DataSize:          v.GetUint32("dataSize"),
		MappingBufferSize: v.GetUint32("mappingBufferSize"),
		StorageSizePages:  v.GetUint32("storageSizePages"),
		MaxMappingTries:   v.GetUint32("maxMappingTries"),
		Mode:              parseMode(v.GetString("mode")),
		Comparator:        Uint32Comparator,
	}
	return New(params, dev, logger)
}

func parseMode(s string) Mode {
	switch s {
	case "overwrite":
		return ModeOverwrite
	case "nor", "nor_overwrite", "norOverwrite":
		return ModeNorOverwrite
	default:
		return ModeSequential
	}
}
