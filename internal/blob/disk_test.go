package blob

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestSaveSniffsContentType(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "/uploads/", 0)
	require.NoError(t, err)

	st, err := d.Save("cat.png", "text/plain", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	require.Equal(t, "image/png", st.MimeType)
	require.Equal(t, "cat.png", st.OriginalName)
	require.True(t, strings.HasSuffix(st.StoredName, "-cat.png"))
	require.Equal(t, "/uploads/"+st.StoredName, st.URL)
	require.Equal(t, int64(len(pngHeader)), st.SizeBytes)

	data, err := os.ReadFile(filepath.Join(d.Dir(), st.StoredName))
	require.NoError(t, err)
	require.Equal(t, pngHeader, data)

	att := st.Attachment()
	require.Equal(t, st.URL, att.URL)
	require.Equal(t, st.SizeBytes, att.SizeBytes)
}

func TestSaveFallsBackToDeclaredType(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "/uploads", 0)
	require.NoError(t, err)

	st, err := d.Save("blob.bin", "application/x-custom", bytes.NewReader([]byte{0x00, 0x01, 0x02, 0xff}))
	require.NoError(t, err)
	require.Equal(t, "application/x-custom", st.MimeType)
}

func TestSaveRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir, "/uploads", 8)
	require.NoError(t, err)

	_, err = d.Save("big.txt", "", strings.NewReader("0123456789"))
	require.True(t, errors.Is(err, ErrTooLarge), "got %v", err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "partial file must be removed")
}

func TestSaveStripsPathFromName(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "/uploads", 0)
	require.NoError(t, err)

	for _, name := range []string{"../../etc/passwd", `..\..\evil.txt`, ""} {
		st, err := d.Save(name, "", strings.NewReader("hello"))
		require.NoError(t, err)
		require.NotContains(t, st.StoredName, "/")
		require.NotContains(t, st.StoredName, "..")
	}
}

func TestRemove(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "/uploads", 0)
	require.NoError(t, err)

	st, err := d.Save("a.txt", "", strings.NewReader("hello"))
	require.NoError(t, err)
	require.NoError(t, d.Remove(st.StoredName))
	require.NoError(t, d.Remove(st.StoredName))
	require.Error(t, d.Remove("../x"))
}
