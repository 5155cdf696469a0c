package realtime

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMFileName(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	assert.Equal(t, "room1_7_20240309_070501.pcm", pcmFileName("room1_7", at))
}

func TestPCMWriter_FlushesAtThreshold(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "room1_7")
	w := NewPCMWriter(prefix, true, 8)
	assert.Regexp(t, regexp.MustCompile(`room1_7_\d{8}_\d{6}\.pcm$`), w.FileName())

	_, err := w.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	_, statErr := os.Stat(w.FileName())
	assert.True(t, os.IsNotExist(statErr), "nothing written below the threshold")

	_, err = w.Write([]byte{5, 6, 7, 8, 9})
	require.NoError(t, err)
	data, err := os.ReadFile(w.FileName())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, data)

	_, err = w.Write([]byte{10})
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	data, err = os.ReadFile(w.FileName())
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(data, []byte{9, 10}))
	assert.Len(t, data, 10)
}

func TestPCMWriter_Disabled(t *testing.T) {
	w := NewPCMWriter(filepath.Join(t.TempDir(), "x"), false, 0)
	n, err := w.Write(make([]byte, 1<<17))
	require.NoError(t, err)
	assert.Equal(t, 1<<17, n)
	assert.NoError(t, w.Flush())
	assert.Empty(t, w.FileName())
}
