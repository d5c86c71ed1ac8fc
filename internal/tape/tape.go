// Package tape locates installed evaluation tapes.
//
// Tapes live under a root directory, one directory per library and one
// sub-directory per sublibrary:
//
//	<root>/<library>/<sublibrary>/<key>.endf6
//
// The index is read-only; tapes are never written by ndforge.
package tape

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ndforge/internal/logging"
)

// Extension is the file extension of installed tapes.
const Extension = ".endf6"

// Tape is a handle on one installed evaluation file.
type Tape struct {
	Library    string
	Sublibrary string
	Key        string
	Path       string
}

func (t Tape) String() string {
	return fmt.Sprintf("%s/%s/%s", t.Library, t.Sublibrary, t.Key)
}

// Index looks tapes up by (library, sublibrary, key).
type Index interface {
	Lookup(library, sub, key string) (Tape, error)
	List(library, sub string) ([]Tape, error)
}

// ErrNotFound is the sentinel wrapped by NotFoundError.
var ErrNotFound = errors.New("tape not found")

// NotFoundError reports which part of a lookup missed.
// Sublibrary and Key are empty when the miss happened higher up.
type NotFoundError struct {
	Library    string
	Sublibrary string
	Key        string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Sublibrary == "":
		return fmt.Sprintf("library '%s' does not exist", e.Library)
	case e.Key == "":
		return fmt.Sprintf("no %s sublibrary available for '%s'", e.Sublibrary, e.Library)
	default:
		return fmt.Sprintf("no %s tape available for '%s', '%s'", e.Key, e.Library, e.Sublibrary)
	}
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DirIndex is an Index over the directory convention.
type DirIndex struct {
	Root string
}

// NewDirIndex returns an index rooted at root.
func NewDirIndex(root string) *DirIndex {
	return &DirIndex{Root: root}
}

func (d *DirIndex) subDir(library, sub string) (string, error) {
	libDir := filepath.Join(d.Root, library)
	if !isDir(libDir) {
		return "", &NotFoundError{Library: library}
	}
	subDir := filepath.Join(libDir, sub)
	if !isDir(subDir) {
		return "", &NotFoundError{Library: library, Sublibrary: sub}
	}
	return subDir, nil
}

// Lookup returns the tape for key. A trailing .endf6 on key is accepted.
func (d *DirIndex) Lookup(library, sub, key string) (Tape, error) {
	dir, err := d.subDir(library, sub)
	if err != nil {
		return Tape{}, err
	}
	key = strings.TrimSuffix(key, Extension)
	path := filepath.Join(dir, key+Extension)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Tape{}, &NotFoundError{Library: library, Sublibrary: sub, Key: key}
	}
	logging.IndexDebug("lookup %s/%s/%s -> %s", library, sub, key, path)
	return Tape{Library: library, Sublibrary: sub, Key: key, Path: path}, nil
}

// List returns every tape of (library, sub), sorted by key.
func (d *DirIndex) List(library, sub string) ([]Tape, error) {
	dir, err := d.subDir(library, sub)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	tapes := make([]Tape, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Extension {
			continue
		}
		key := strings.TrimSuffix(e.Name(), Extension)
		tapes = append(tapes, Tape{
			Library:    library,
			Sublibrary: sub,
			Key:        key,
			Path:       filepath.Join(dir, e.Name()),
		})
	}
	sort.Slice(tapes, func(i, j int) bool { return tapes[i].Key < tapes[j].Key })
	logging.IndexDebug("listed %d tapes in %s/%s", len(tapes), library, sub)
	return tapes, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
