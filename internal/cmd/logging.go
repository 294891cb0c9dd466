package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/steveyegge/authcap/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger returns a logger writing to stderr and, when configured, to
// the log file. The returned closer releases the file.
func newLogger(cfg *config.Config) (*log.Logger, io.Closer, error) {
	if cfg.Log.File == "" {
		return log.New(os.Stderr, "", log.LstdFlags), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return log.New(io.MultiWriter(os.Stderr, f), "", log.LstdFlags), f, nil
}
