package token

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileWriter_Persist(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "token")

	w := NewFileWriter(slog.Default())
	require.NoError(t, w.Persist(context.Background(), file, "T1"))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, "T1", string(data))

	info, err := os.Stat(file)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Overwrite leaves exactly the one file behind.
	require.NoError(t, w.Persist(context.Background(), file, "T2"))

	data, err = os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, "T2", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileWriter_MissingDirectory(t *testing.T) {
	w := NewFileWriter(slog.Default())

	err := w.Persist(context.Background(), filepath.Join(t.TempDir(), "missing", "token"), "T")
	require.Error(t, err)
}

func TestFileWriter_EmptyPath(t *testing.T) {
	require.Error(t, NewFileWriter(slog.Default()).Persist(context.Background(), "", "T"))
}

func TestFileWriter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFileWriter(slog.Default()).Persist(ctx, filepath.Join(t.TempDir(), "token"), "T")
	require.ErrorIs(t, err, context.Canceled)
}

func TestPersistFunc(t *testing.T) {
	var got [2]string

	var p Persister = PersistFunc(func(_ context.Context, file, token string) error {
		got = [2]string{file, token}

		return nil
	})

	require.NoError(t, p.Persist(context.Background(), "/tmp/f", "T"))
	require.Equal(t, [2]string{"/tmp/f", "T"}, got)
}
