package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Movement is one batch of moves. Keys and values are paths relative to
// the root directory, e.g. "clusters/cluster_3/img.jpg".
type Movement struct {
	Timestamp time.Time         `json:"timestamp"`
	Movements map[string]string `json:"movements"`
}

// MovementLog appends move batches to movement_log.json.
type MovementLog struct {
	fs   afero.Fs
	path string
	now  func() time.Time

	mu sync.Mutex
}

func NewMovementLog(fsys afero.Fs, path string) *MovementLog {
	return &MovementLog{fs: fsys, path: path, now: time.Now}
}

// Append records a batch. Empty batches are not written.
func (l *MovementLog) Append(movements map[string]string) error {
	if len(movements) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return err
	}

	entries = append(entries, Movement{
		Timestamp: l.now().UTC().Truncate(time.Millisecond),
		Movements: movements,
	})
	return writeJSON(l.fs, l.path, entries)
}

// Entries returns every recorded batch, oldest first.
func (l *MovementLog) Entries() ([]Movement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *MovementLog) read() ([]Movement, error) {
	entries := []Movement{}
	if _, err := readJSON(l.fs, l.path, &entries); err != nil {
		return nil, fmt.Errorf("movement log: %w", err)
	}
	return entries, nil
}
