// Package pidfile records the daemon's pid so bar scripts can signal it.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// Write creates dir if needed and stores the current pid in
// dir/<unix-seconds>.pid. It returns the file path.
func Write(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create pid directory: %w", err)
	}

	path := filepath.Join(dir, strconv.FormatInt(now.Unix(), 10)+".pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(unix.Getpid())), 0644); err != nil {
		return "", fmt.Errorf("failed to write pid file: %w", err)
	}
	return path, nil
}

// Remove deletes a pid file written by Write. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}
