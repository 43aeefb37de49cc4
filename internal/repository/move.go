package repository

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
)

// moveEntry moves a file or a whole directory. With overwrite, an existing
// dst is replaced; without it, an existing dst fails with fs.ErrExist.
func moveEntry(fsys afero.Fs, src, dst string, overwrite bool) error {
	info, err := fsys.Stat(src)
	if err != nil {
		return err
	}

	if err := clearDestination(fsys, dst, overwrite); err != nil {
		return err
	}

	if info.IsDir() {
		return moveDir(fsys, src, dst)
	}
	return moveFile(fsys, src, dst)
}

func clearDestination(fsys afero.Fs, dst string, overwrite bool) error {
	if _, err := fsys.Stat(dst); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !overwrite {
		return &fs.PathError{Op: "move", Path: dst, Err: fs.ErrExist}
	}
	return fsys.RemoveAll(dst)
}

func moveFile(fsys afero.Fs, src, dst string) error {
	if err := fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return fsys.Rename(src, dst)
}

// moveDir recreates the tree under dst file by file, then removes src.
// Directory renames are not portable across afero backends.
func moveDir(fsys afero.Fs, src, dst string) error {
	var dirs, files []string
	err := afero.Walk(fsys, src, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, rel)
		} else {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, rel := range dirs {
		if err := fsys.MkdirAll(filepath.Join(dst, rel), 0o755); err != nil {
			return err
		}
	}
	for _, rel := range files {
		if err := fsys.Rename(filepath.Join(src, rel), filepath.Join(dst, rel)); err != nil {
			return err
		}
	}

	return fsys.RemoveAll(src)
}

// removeEmptyDir removes dir only if it has no entries left.
func removeEmptyDir(fsys afero.Fs, dir string) error {
	f, err := fsys.Open(dir)
	if err != nil {
		return err
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	if err != nil {
		return err
	}
	if len(names) > 0 {
		slices.Sort(names)
		return fmt.Errorf("remove %s: directory not empty (%d entries, first %q)", dir, len(names), names[0])
	}
	return fsys.Remove(dir)
}
