package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func Test_Put_And_Delete_Blob(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	store, err := NewDiskBlobStore(dir, logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(err)

	content := []byte("attachment bytes")
	locator, err := store.Put("../../etc/passwd", content)
	req.NoError(err)

	// The hostile name never reaches the filesystem; the blob lands under
	// the generated locator inside the store directory.
	written, err := os.ReadFile(filepath.Join(dir, locator))
	req.NoError(err)
	req.Equal(content, written)

	req.NoError(store.Delete(locator))
	_, err = os.Stat(filepath.Join(dir, locator))
	req.True(os.IsNotExist(err))

	// Deleting a missing blob is not an error.
	req.NoError(store.Delete(locator))
}
