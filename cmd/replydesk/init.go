package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/replydesk/replydesk/examples"
)

// runInit initializes a ReplyDesk working directory with a default
// config file. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing ReplyDesk workspace in %s\n", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(w, configPath, examples.ConfigYAML); err != nil {
		return err
	}

	fmt.Fprintln(w, "Done. Edit config.yaml, then start with: replydesk serve")
	return nil
}

// writeIfMissing writes data to path with 0600 permissions unless the
// file already exists, in which case it is left untouched.
func writeIfMissing(w io.Writer, path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  - %s exists, skipping\n", path)
		return nil
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
