package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogging sends the std logger and gin's writers to stdout and, when
// cfg.LogDir is set, to an append-only file in that directory as well.
// LogDir "-" keeps logs on stdout only. Close the returned io.Closer on shutdown.
func SetupLogging(cfg Config, filename string) (io.Closer, error) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if cfg.LogDir == "-" {
		setLogWriter(os.Stdout)
		return nopCloser{}, nil
	}

	dir := cfg.LogDir
	if dir == "" {
		dir = defaultConfig().LogDir
	}
	if filename == "" {
		filename = "api.log"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	setLogWriter(io.MultiWriter(os.Stdout, f))
	return f, nil
}

func setLogWriter(w io.Writer) {
	log.SetOutput(w)
	gin.DefaultWriter = w
	gin.DefaultErrorWriter = w
}
