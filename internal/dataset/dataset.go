// Package dataset enumerates a labeled image tree laid out as <root>/<person>/<image>.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
)

// Person is one immediate subdirectory of the dataset root. Its name is the label
// for every face found in its files.
type Person struct {
	Name  string
	Dir   string
	Files []string
}

// Scan lists the person directories under root and the files inside each of them.
// Non-directory entries at the root are skipped; symlinks count when their target
// is a directory. Entries come back sorted by name (os.ReadDir order).
func Scan(root string) ([]Person, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset root: %w", err)
	}

	var people []Person
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		if !isDir(dir, e) {
			continue
		}

		files, err := listFiles(dir)
		if err != nil {
			return nil, err
		}
		people = append(people, Person{Name: e.Name(), Dir: dir, Files: files})
	}
	return people, nil
}

// listFiles returns every entry of a person directory without descending into it.
// Nested directories are returned too; the loader rejects them as unreadable.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read person directory %s: %w", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func isDir(path string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CountFiles totals the files across people, for progress reporting.
func CountFiles(people []Person) int {
	n := 0
	for _, p := range people {
		n += len(p.Files)
	}
	return n
}
