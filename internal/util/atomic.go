package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// beforeRename runs after the temporary file is durable and before it is
// renamed over the destination. Tests use it to simulate a crash.
var beforeRename func(tmpPath string) error

// AtomicWriteJSON writes v as 2-space indented JSON using write-then-rename.
func AtomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return AtomicWriteFile(path, data, 0644)
}

// AtomicWriteFile writes data to a sibling "<path>.tmp" file, syncs it and
// renames it over path. Readers observe either the previous content or the
// new content, never a partial write. The temporary file is removed when any
// step fails, so a failed write leaves the destination untouched.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if beforeRename != nil {
		if err := beforeRename(tmpPath); err != nil {
			return err
		}
	}

	if err := replaceFile(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	committed = true
	return nil
}
