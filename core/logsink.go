package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// divider is the framing line written before and after each invocation's
// output (spec.md §6: "80 dashes").
const divider = "--------------------------------------------------------------------------------"

// openLogFile ensures the job's log directory exists and opens its log
// file in append mode, writing the per-invocation header.
func openLogFile(path string, start time.Time) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%s\n%s\n", start.String(), divider); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write log header: %w", err)
	}

	return f, nil
}

// writeLogFooter appends the closing divider and exit status, matching the
// framing spec.md §6 pins exactly.
func writeLogFooter(f *os.File, statusCode int) error {
	_, err := fmt.Fprintf(f, "%s\nStatus: %d\n\n", divider, statusCode)
	return err
}
