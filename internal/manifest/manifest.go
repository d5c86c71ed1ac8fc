// Package manifest holds the typed catalog of a built library and its
// cross_sections.xml persistence.
package manifest

import (
	"fmt"
	"path/filepath"
	"sort"
)

// FileName is the manifest file inside a library root.
const FileName = "cross_sections.xml"

// Origin tells whether an entry was built by this run or borrowed from a
// prior library. It is never persisted.
type Origin int

const (
	OriginBuilt Origin = iota
	OriginReused
)

func (o Origin) String() string {
	if o == OriginReused {
		return "reused"
	}
	return "built"
}

// Entry is one artifact of a library.
type Entry struct {
	Kind     Kind
	Material string
	// Path is relative to the manifest directory unless absolute.
	Path string

	Origin Origin
	// Source names the library a reused entry was borrowed from.
	Source string
}

type entryKey struct {
	kind     Kind
	material string
}

// Manifest is an ordered list of entries with a (kind, material) index.
type Manifest struct {
	// Directory is an optional prefix shared by every relative entry path.
	Directory string

	entries []Entry
	index   map[entryKey]int
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{index: make(map[entryKey]int)}
}

// Add appends an entry. A second entry for the same (kind, material) is an
// error.
func (m *Manifest) Add(e Entry) error {
	if m.index == nil {
		m.index = make(map[entryKey]int)
	}
	k := entryKey{e.Kind, e.Material}
	if _, ok := m.index[k]; ok {
		return fmt.Errorf("duplicate %s entry for %s", e.Kind, e.Material)
	}
	m.index[k] = len(m.entries)
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of the entries in manifest order.
func (m *Manifest) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// OfKind returns the entries of one kind in manifest order.
func (m *Manifest) OfKind(kind Kind) []Entry {
	var out []Entry
	for _, e := range m.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Lookup finds the entry of (kind, material).
func (m *Manifest) Lookup(kind Kind, material string) (Entry, bool) {
	i, ok := m.index[entryKey{kind, material}]
	if !ok {
		return Entry{}, false
	}
	return m.entries[i], true
}

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.entries) }

// Count returns the number of entries per kind.
func (m *Manifest) Count() map[Kind]int {
	out := make(map[Kind]int, len(Kinds))
	for _, e := range m.entries {
		out[e.Kind]++
	}
	return out
}

// ResolvePath returns the filesystem path of e for a manifest stored in dir.
func (m *Manifest) ResolvePath(dir string, e Entry) string {
	if filepath.IsAbs(e.Path) {
		return e.Path
	}
	if m.Directory != "" {
		if filepath.IsAbs(m.Directory) {
			return filepath.Join(m.Directory, e.Path)
		}
		return filepath.Join(dir, m.Directory, e.Path)
	}
	return filepath.Join(dir, e.Path)
}

// Assemble builds the manifest of a finished build. Kinds come in manifest
// order; within a kind, reused entries keep their given order and precede
// built entries, which are sorted canonically.
func Assemble(directory string, reused, built []Entry) (*Manifest, error) {
	m := New()
	m.Directory = directory
	for _, kind := range Kinds {
		for _, e := range reused {
			if e.Kind != kind {
				continue
			}
			if err := m.Add(e); err != nil {
				return nil, err
			}
		}

		var fresh []Entry
		for _, e := range built {
			if e.Kind == kind {
				fresh = append(fresh, e)
			}
		}
		SortEntries(kind, fresh)
		for _, e := range fresh {
			if err := m.Add(e); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// SortEntries sorts entries of one kind canonically, in place.
func SortEntries(kind Kind, entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return kind.Less(entries[i].Material, entries[j].Material)
	})
}
