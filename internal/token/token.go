// Package token persists the credential granted during the handshake.
//
// The host names a file in its external-authorization-response and reads the
// token back from that file before it answers request-authorization, so the
// write must be complete and visible by the time Persist returns.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Persister stores a token at the location the host named.
type Persister interface {
	Persist(ctx context.Context, file string, token string) error
}

// PersistFunc adapts a function to the Persister interface.
type PersistFunc func(ctx context.Context, file string, token string) error

// Persist calls f(ctx, file, token).
func (f PersistFunc) Persist(ctx context.Context, file string, token string) error {
	return f(ctx, file, token)
}

// FileWriter writes the token to the named file, replacing it atomically.
type FileWriter struct {
	log *slog.Logger

	// Mode is the permission of the written file. Defaults to 0o600.
	Mode os.FileMode
}

// NewFileWriter creates the default persister.
func NewFileWriter(log *slog.Logger) *FileWriter {
	return &FileWriter{
		log:  log.With("component", "token"),
		Mode: 0o600,
	}
}

// Persist writes token to a temp file next to file and renames it into place.
// The parent directory must already exist; it belongs to the host.
func (w *FileWriter) Persist(ctx context.Context, file string, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if file == "" {
		return fmt.Errorf("token file path is empty")
	}

	mode := w.Mode
	if mode == 0 {
		mode = 0o600
	}

	tmp, err := os.CreateTemp(filepath.Dir(file), "."+filepath.Base(file)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("write token: %w", err)
	}

	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("chmod token file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("close token file: %w", err)
	}

	if err := os.Rename(tmpName, file); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("rename token file: %w", err)
	}

	w.log.Debug("Token written", "file", file)

	return nil
}
