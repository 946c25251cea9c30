package ops

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darrenldl/blockyarchive-sub000/rscodec"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

func TestSortRestoresCanonicalLayoutFromRescuedBlocks(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()

	payload := bytes.Repeat([]byte("sort me back into place"), 100)
	inPath := writeTempInput(t, dir, payload)
	containerPath := filepath.Join(dir, "out.sbx")

	p := Params{
		Version: sbxspecs.V17,
		UID:     [6]byte{7, 7, 7, 7, 7, 7},
		RS:      rscodec.Params{Data: 3, Parity: 2},
	}
	_, err := Encode(context.Background(), p, EncodeOptions{InputPath: inPath, OutputPath: containerPath})
	r.NoError(err)

	rescueDir := filepath.Join(dir, "rescued")
	_, err = Rescue(RescueOptions{InputPath: containerPath, OutputDir: rescueDir})
	r.NoError(err)

	entries, err := os.ReadDir(rescueDir)
	r.NoError(err)
	r.Len(entries, 1)
	rescuedPath := filepath.Join(rescueDir, entries[0].Name())

	sortedPath := filepath.Join(dir, "sorted.sbx")
	sortResult, err := Sort(rescuedPath, sortedPath)
	r.NoError(err)
	r.NotZero(sortResult.BlocksWritten)

	outPath := filepath.Join(dir, "restored.bin")
	_, err = Decode(context.Background(), sortedPath, outPath)
	r.NoError(err)

	got, err := os.ReadFile(outPath)
	r.NoError(err)
	r.Equal(payload, got)
}
