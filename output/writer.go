package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/dhcgn/mailrow/model"
)

// Delimiter joins fields. Fields that contain it are written as-is, so such
// rows do not split back into the original fields.
const Delimiter = ", "

// Writer appends rows to one file per calendar month. Every call opens,
// writes and closes the file; no handle is kept between rows.
type Writer struct {
	fs     afero.Fs
	dir    string
	prefix string
}

func NewWriter(fs afero.Fs, dir, prefix string) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Writer{fs: fs, dir: dir, prefix: prefix}
}

// MonthKey returns the three-letter month abbreviation used in file names.
func MonthKey(t time.Time) string {
	return t.Format("Jan")
}

// FileName resolves the output path for monthKey.
func (w *Writer) FileName(monthKey string) string {
	name := fmt.Sprintf("%s %s.csv", w.prefix, monthKey)
	if w.dir == "" {
		return name
	}
	return filepath.Join(w.dir, name)
}

// Format joins fields into one record line without the trailing newline.
func Format(fields []string) string {
	return strings.Join(fields, Delimiter)
}

// Split is the inverse of Format for fields that do not contain Delimiter.
func Split(line string) []string {
	return strings.Split(strings.TrimSuffix(line, "\n"), Delimiter)
}

func (w *Writer) AppendRow(fields []string, monthKey string) error {
	return w.appendLine(Format(fields), monthKey)
}

// AppendHeader writes the column names. The caller decides when a header is due.
func (w *Writer) AppendHeader(columns []string, monthKey string) error {
	return w.appendLine(Format(columns), monthKey)
}

func (w *Writer) appendLine(line, monthKey string) error {
	path := w.FileName(monthKey)

	if w.dir != "" {
		if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %v: %w", w.dir, err, model.ErrIO)
		}
	}

	file, err := w.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %v: %w", path, err, model.ErrIO)
	}

	if _, err := file.WriteString(line + "\n"); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %s: %v: %w", path, err, model.ErrIO)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %v: %w", path, err, model.ErrIO)
	}

	return nil
}
