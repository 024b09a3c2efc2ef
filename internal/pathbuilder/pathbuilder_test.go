package pathbuilder_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chim331u/mediabutler/internal/pathbuilder"
	"github.com/chim331u/mediabutler/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeReplacesInvalidCharsAndReservedNames(t *testing.T) {
	assert.Equal(t, "DOCTOR_ WHO_", pathbuilder.Sanitize("Doctor: Who?"))
	assert.Equal(t, "_CON", pathbuilder.Sanitize("CON"))
	assert.Equal(t, "unknown", pathbuilder.Sanitize("..."))
}

func TestBuildHappyPath(t *testing.T) {
	root := t.TempDir()
	res, err := pathbuilder.Build(vfs.OS{}, "deadbeef", "The.Walking.Dead.S11E24.mkv", "THE WALKING DEAD", pathbuilder.Options{
		LibraryRoot: root,
	})
	require.NoError(t, err)
	require.True(t, res.Report.OK())
	assert.Equal(t, filepath.Join(root, "THE WALKING DEAD", "The.Walking.Dead.S11E24.mkv"), res.TargetPath)
}

func TestBuildSanitizesInvalidCategoryCharacters(t *testing.T) {
	root := t.TempDir()
	res, err := pathbuilder.Build(vfs.OS{}, "h", "ep.mkv", "Doctor: Who?", pathbuilder.Options{LibraryRoot: root})
	require.NoError(t, err)
	assert.Contains(t, res.TargetPath, "DOCTOR_ WHO_")
}

func TestBuildConflictResolutionAppendsCounter(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "FRIENDS")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ep.mkv"), []byte("x"), 0o644))

	res, err := pathbuilder.Build(vfs.OS{}, "h", "ep.mkv", "FRIENDS", pathbuilder.Options{LibraryRoot: root})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ep (1).mkv"), res.TargetPath)
}

func TestBuildConflictResolutionExhaustsToTimestamp(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "FRIENDS")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ep.mkv"), []byte("x"), 0o644))
	for n := 1; n <= 10; n++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ep ("+itoa(n)+").mkv"), []byte("x"), 0o644))
	}

	res, err := pathbuilder.Build(vfs.OS{}, "h", "ep.mkv", "FRIENDS", pathbuilder.Options{LibraryRoot: root})
	require.NoError(t, err)
	assert.NotContains(t, res.TargetPath, "ep.mkv")
	assert.Contains(t, res.TargetPath, "ep_")
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var out []byte
	for n > 0 {
		out = append([]byte{digits[n%10]}, out...)
		n /= 10
	}
	return string(out)
}
