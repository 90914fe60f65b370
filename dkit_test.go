package dkit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkit/dkit/internal/structures"
	"github.com/dkit/dkit/pkg/config"
	"github.com/dkit/dkit/pkg/dkittypes"
)

func diskConfigWithZstd(dataDir string) *config.Config {
	cfg := config.DiskConfig(dataDir)
	cfg.CompressionKind = config.CompressionZstd
	return cfg
}

func TestOpenMemoryAndLogOp(t *testing.T) {
	eng, err := OpenMemory(structures.SequenceOps{}, structures.NewSequence())
	require.NoError(t, err)
	defer eng.Close()

	payload, err := structures.EncodePush(structures.IntValue(1))
	require.NoError(t, err)
	assert.NoError(t, eng.LogOp(dkittypes.OpPUSH_TAIL, payload))
}

func TestOpenDiskSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	eng, err := OpenDisk(dataDir, structures.SequenceOps{}, structures.NewSequence())
	require.NoError(t, err)

	payload, err := structures.EncodePush(structures.IntValue(7))
	require.NoError(t, err)
	require.NoError(t, eng.LogOp(dkittypes.OpPUSH_TAIL, payload))
	require.NoError(t, eng.Close())

	eng2, err := OpenDisk(dataDir, structures.SequenceOps{}, structures.NewSequence())
	require.NoError(t, err)
	defer eng2.Close()

	seq := eng2.Structure().(*structures.Sequence)
	assert.Equal(t, 1, seq.Len())
	assert.Equal(t, int64(7), seq.At(0).Int)
}

func TestOpenDiskWithCompressionRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := diskConfigWithZstd(filepath.Join(dir, "data"))

	eng, err := Open(cfg, structures.SequenceOps{}, structures.NewSequence())
	require.NoError(t, err)

	payload, err := structures.EncodeBulkInsert([]structures.Value{
		structures.IntValue(1), structures.IntValue(2), structures.StringValue("three"),
	})
	require.NoError(t, err)
	require.NoError(t, eng.LogOp(dkittypes.OpBULK_INSERT, payload))
	next, err := structures.SequenceOps{}.ApplyOp(eng.Structure(), dkittypes.OpBULK_INSERT, payload)
	require.NoError(t, err)
	eng.SetStructure(next)

	require.NoError(t, eng.Compact())
	require.NoError(t, eng.Close())

	eng2, err := Open(cfg, structures.SequenceOps{}, structures.NewSequence())
	require.NoError(t, err)
	defer eng2.Close()

	seq := eng2.Structure().(*structures.Sequence)
	assert.Equal(t, 3, seq.Len())
}
