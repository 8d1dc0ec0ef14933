// Command vmtreebench drives a random or sequential put+get workload
// against a viper-configured vmtree engine and reports buffer pool and
// mapping table statistics via logrus. It is supplemental scaffolding
// exercising the config/logging wiring end to end, not part of the core
// engine.
package main

import (
	"encoding/binary"
	"flag"
	"math/rand"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	vmtree "github.com/ubco-db/vmtree-go"
	"github.com/ubco-db/vmtree-go/storage/device"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	numRecords := flag.Int("n", 10000, "number of records to insert")
	sequential := flag.Bool("sequential", false, "insert keys in ascending order instead of random")
	flag.Parse()

	log := logrus.New()

	v := viper.New()
	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			log.WithError(err).Fatal("reading config")
		}
	}
	v.SetEnvPrefix("VMTREE")
	v.AutomaticEnv()
	v.SetDefault("pageSize", uint32(512))
	v.SetDefault("storageSizePages", uint32(4096))
	v.SetDefault("dataSize", uint32(12))

	dev := device.NewMemDevice(v.GetUint32("storageSizePages"), v.GetUint32("pageSize"))

	tree, err := vmtree.NewFromConfig(v, dev, vmtree.NewLogrusLogger(log))
	if err != nil {
		log.WithError(err).Fatal("constructing tree")
	}
	defer tree.Close()

	keys := make([]uint32, *numRecords)
	for i := range keys {
		keys[i] = uint32(i + 1)
	}
	if !*sequential {
		rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	}

	data := make([]byte, v.GetUint32("dataSize"))
	var keyBuf [4]byte
	for _, k := range keys {
		binary.LittleEndian.PutUint32(keyBuf[:], k)
		if err := tree.Put(keyBuf[:], data); err != nil {
			log.WithError(err).WithField("key", k).Error("put failed")
		}
	}

	misses := 0
	for _, k := range keys {
		binary.LittleEndian.PutUint32(keyBuf[:], k)
		if _, err := tree.Get(keyBuf[:]); err != nil {
			misses++
		}
	}

	stats := tree.Stats()
	log.WithFields(logrus.Fields{
		"inserted":       len(keys),
		"misses":         misses,
		"reads":          stats.Reads,
		"writes":         stats.Writes,
		"overwrites":     stats.OverWrites,
		"moves":          stats.Moves,
		"bufferHits":     stats.BufferHits,
		"mappingCount":   stats.MappingCount,
		"levels":         stats.Levels,
		"numNodes":       stats.NumNodes,
		"mappingCompare": stats.NumMappingCompare,
	}).Info("bench run complete")

	if misses > 0 {
		os.Exit(1)
	}
}
