package repository

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

var descriptionHeader = []string{"folder", "description"}

type Description struct {
	Folder      string `json:"folder"`
	Description string `json:"description"`
}

// descriptionTable is a two-column CSV file keyed by folder.
type descriptionTable struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// read returns the rows in file order. A missing file has no rows.
// Unquoted descriptions that contain commas are joined back together.
func (t *descriptionTable) read() ([]Description, error) {
	data, err := afero.ReadFile(t.fs, t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []Description
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t.path, err)
		}
		if first {
			first = false
			if len(rec) > 0 && strings.EqualFold(strings.TrimPrefix(rec[0], "\ufeff"), "folder") {
				continue
			}
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		desc := ""
		if len(rec) > 1 {
			desc = strings.Join(rec[1:], ",")
		}
		rows = append(rows, Description{Folder: rec[0], Description: desc})
	}
	return rows, nil
}

func (t *descriptionTable) write(rows []Description) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(descriptionHeader)
	for _, row := range rows {
		_ = w.Write([]string{row.Folder, row.Description})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return writeFileAtomic(t.fs, t.path, buf.Bytes())
}

// upsert replaces folder's row with desc, or drops it when desc is empty.
func (t *descriptionTable) upsert(folder, desc string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.read()
	if err != nil {
		return err
	}
	rows = slices.DeleteFunc(rows, func(d Description) bool { return d.Folder == folder })
	if desc != "" {
		rows = append(rows, Description{Folder: folder, Description: desc})
	}
	return t.write(rows)
}

func (t *descriptionTable) get(folder string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.read()
	if err != nil {
		return "", false, err
	}
	for _, row := range rows {
		if row.Folder == folder {
			return row.Description, row.Description != "", nil
		}
	}
	return "", false, nil
}

func (t *descriptionTable) all() ([]Description, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read()
}

// DescriptionRepository stores the final description of each reviewed
// cluster in descriptions.csv.
type DescriptionRepository struct {
	table descriptionTable
}

func NewDescriptionRepository(fsys afero.Fs, path string) *DescriptionRepository {
	return &DescriptionRepository{table: descriptionTable{fs: fsys, path: path}}
}

// Save sets folder's description, replacing any previous one.
func (r *DescriptionRepository) Save(folder, description string) error {
	return r.table.upsert(folder, strings.TrimSpace(description))
}

func (r *DescriptionRepository) Get(folder string) (string, bool, error) {
	return r.table.get(folder)
}

func (r *DescriptionRepository) All() ([]Description, error) {
	return r.table.all()
}

// Described returns the set of folders that have a description.
func (r *DescriptionRepository) Described() (map[string]struct{}, error) {
	rows, err := r.table.all()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		out[row.Folder] = struct{}{}
	}
	return out, nil
}

// Top returns the n most used descriptions, most frequent first. Ties keep
// the order in which descriptions first appear in the file.
func (r *DescriptionRepository) Top(n int) ([]string, error) {
	rows, err := r.table.all()
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	var order []string
	for _, row := range rows {
		d := strings.TrimSpace(row.Description)
		if d == "" {
			continue
		}
		if counts[d] == 0 {
			order = append(order, d)
		}
		counts[d]++
	}

	slices.SortStableFunc(order, func(a, b string) int {
		return counts[b] - counts[a]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order, nil
}

// QuickDescriptionRepository stores the short notes typed while browsing
// a cluster in quick_descriptions.csv.
type QuickDescriptionRepository struct {
	table descriptionTable
}

func NewQuickDescriptionRepository(fsys afero.Fs, path string) *QuickDescriptionRepository {
	return &QuickDescriptionRepository{table: descriptionTable{fs: fsys, path: path}}
}

// Save sets folder's quick description. An empty description removes it.
func (r *QuickDescriptionRepository) Save(folder, description string) error {
	return r.table.upsert(folder, strings.TrimSpace(description))
}

func (r *QuickDescriptionRepository) Get(folder string) (string, bool, error) {
	return r.table.get(folder)
}

func (r *QuickDescriptionRepository) All() ([]Description, error) {
	return r.table.all()
}
