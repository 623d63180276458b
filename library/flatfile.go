package library

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidField is returned when a value cannot be written to a flat file
// without corrupting the row layout. The format has no quoting or escaping.
var ErrInvalidField = errors.New("field contains a comma or line break")

// checkFields rejects values containing the field separator or a line break.
func checkFields(values ...string) error {
	for _, v := range values {
		if strings.ContainsAny(v, ",\r\n") {
			return fmt.Errorf("%q: %w", v, ErrInvalidField)
		}
	}
	return nil
}

// readRecords reads path and splits every non-blank line into exactly n
// comma-separated fields. Lines may be of any length. The last field keeps
// any remaining commas. Lines with fewer fields are skipped and logged. A missing or unreadable file
// yields an error wrapping ErrPersistenceUnavailable (and fs.ErrNotExist when
// the file is simply absent).
func readRecords(path string, n int, logger *zap.Logger) ([][]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrPersistenceUnavailable, path, err)
	}
	defer f.Close()

	var (
		records [][]string
		lineNo  int
	)
	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("%w: read %s: %w", ErrPersistenceUnavailable, path, readErr)
		}
		if readErr != nil && line == "" {
			break
		}
		lineNo++
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, ",", n)
		if len(fields) != n {
			logger.Warn("skipping malformed line",
				zap.String("file", path),
				zap.Int("line", lineNo),
				zap.Int("fields", len(fields)),
				zap.Int("want", n))
			continue
		}
		records = append(records, fields)
	}
	return records, nil
}

// isMissing reports whether a readRecords error means the file does not exist.
func isMissing(err error) bool { return errors.Is(err, fs.ErrNotExist) }

// writeRecords replaces the contents of path with one comma-joined line per
// record. It writes to a temporary file in the same directory and renames it
// over path, so a failed write leaves the previous file intact.
func writeRecords(path string, records [][]string) (err error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create dir %s: %w", ErrPersistenceUnavailable, dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %w", ErrPersistenceUnavailable, path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err = w.WriteString(strings.Join(rec, ",") + "\n"); err != nil {
			return fmt.Errorf("%w: write %s: %w", ErrPersistenceUnavailable, path, err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %w", ErrPersistenceUnavailable, path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrPersistenceUnavailable, path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrPersistenceUnavailable, path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrPersistenceUnavailable, path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrPersistenceUnavailable, path, err)
	}
	return nil
}
