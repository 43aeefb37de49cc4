package timeseries

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// CSVSource reads a sensor log whose first line is a header row.
type CSVSource struct {
	Path string
	FS   afero.Fs
}

// NewCSVSource returns a source for path on fsys. A nil fsys means the OS filesystem.
func NewCSVSource(fsys afero.Fs, path string) *CSVSource {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &CSVSource{Path: path, FS: fsys}
}

func (s *CSVSource) Name() string {
	return "csv:" + s.Path
}

func (s *CSVSource) Each(ctx context.Context, fn func(row map[string]string) error) error {
	if s.Path == "" {
		return ErrSourceNotFound
	}

	f, err := s.FS.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, s.Path)
		}
		return fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	// Each physical line is parsed on its own so a stray quote costs one
	// bad row instead of swallowing the rest of the file as a quoted field.
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var cols []string
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if cols == nil {
			header, err := parseLine(strings.TrimPrefix(line, "\ufeff"))
			if err != nil {
				return fmt.Errorf("read header of %s: %w", s.Path, err)
			}
			cols = make([]string, len(header))
			for i, h := range header {
				cols[i] = strings.TrimSpace(h)
			}
			continue
		}

		var row map[string]string
		rec, err := parseLine(line)
		if err == nil {
			row = make(map[string]string, len(cols))
			for i, c := range cols {
				if c == "" {
					continue
				}
				if i < len(rec) {
					row[c] = strings.TrimSpace(rec[i])
				} else {
					row[c] = ""
				}
			}
		}

		if err := fn(row); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", s.Path, err)
	}
	return nil
}

// maxLineSize bounds a single sensor log line.
const maxLineSize = 1 << 20

// parseLine splits one CSV line. A malformed line is a *csv.ParseError.
func parseLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	return r.Read()
}
