package vmtree_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	vmtree "github.com/ubco-db/vmtree-go"
)

func TestPrintNodeAndMappings(t *testing.T) {
	tree := newPlainTestTree(t, vmtree.ModeSequential)
	for v := uint32(1); v <= 31; v++ {
		require.NoError(t, tree.Put(keyFor(v), dataFor(v)))
	}

	var nodeOut bytes.Buffer
	require.NoError(t, tree.PrintNode(&nodeOut, 0))
	require.Contains(t, nodeOut.String(), "page ")

	var mapOut bytes.Buffer
	tree.PrintMappings(&mapOut)
	// The 30th put splits the rightmost leaf; the 31st rewrites the new
	// right leaf without touching its parent, which installs a mapping.
	require.NotEmpty(t, mapOut.String())
}

func TestRecoverIsUnimplemented(t *testing.T) {
	_, err := vmtree.Recover(nil, vmtree.Params{}, nil)
	require.Error(t, err)
}
