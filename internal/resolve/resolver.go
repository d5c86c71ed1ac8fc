// Package resolve turns sublibrary requests into material -> tape mappings
// and pairs thermal tapes with their companion neutron tapes.
package resolve

import (
	"errors"
	"path/filepath"
	"sort"

	"ndforge/internal/libspec"
	"ndforge/internal/logging"
	"ndforge/internal/manifest"
	"ndforge/internal/nuclide"
	"ndforge/internal/tape"
)

// Resolution is the outcome of resolving one sublibrary request.
type Resolution struct {
	Kind manifest.Kind
	Sub  string
	Base string

	// Tapes holds the materials to build.
	Tapes map[string]tape.Tape
	// Reused holds the entries borrowed from the reuse library, in their
	// recorded order, with paths resolved to absolute paths.
	Reused []manifest.Entry
}

// Keys returns the materials to build in canonical order.
func (r *Resolution) Keys() []string {
	keys := make([]string, 0, len(r.Tapes))
	for k := range r.Tapes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return r.Kind.Less(keys[i], keys[j]) })
	return keys
}

// IsReused reports whether material is carried over from the reuse library.
func (r *Resolution) IsReused(material string) bool {
	for _, e := range r.Reused {
		if e.Material == material {
			return true
		}
	}
	return false
}

// Resolver resolves requests against a tape index.
type Resolver struct {
	Index tape.Index
	// LibraryRoot is where reuse libraries are looked up.
	LibraryRoot string
	Coupling    CouplingTable
}

// New returns a resolver using the built-in coupling table.
func New(index tape.Index, libraryRoot string) (*Resolver, error) {
	table, err := DefaultCouplingTable()
	if err != nil {
		return nil, err
	}
	return &Resolver{Index: index, LibraryRoot: libraryRoot, Coupling: table}, nil
}

// Resolve computes the material -> tape mapping of one sublibrary:
// base tapes, minus placeholders, minus omitted keys, minus reused keys,
// then add entries inserted over the result. An added key is never reused.
//
// sub is normally kind.Sublibrary(). For a secondary sublibrary (photon
// "ard") missing tapes are skipped instead of reported.
func (r *Resolver) Resolve(kind manifest.Kind, sub string, req *libspec.Request) (*Resolution, error) {
	res := &Resolution{Kind: kind, Sub: sub, Tapes: make(map[string]tape.Tape)}
	if req == nil {
		return res, nil
	}
	res.Base = req.Base
	optional := sub != kind.Sublibrary()

	added := req.AddedKeys()
	for _, k := range req.Omit {
		if lib, ok := added[k]; ok {
			return nil, libspec.Errorf("%s: %s is omitted and added from %s", kind, k, lib)
		}
	}

	if req.Reuse != "" {
		reused, err := r.loadReuse(kind, req.Reuse)
		if err != nil {
			return nil, err
		}
		res.Reused = reused
	}
	reusedKeys := make(map[string]bool, len(res.Reused))
	for _, e := range res.Reused {
		reusedKeys[e.Material] = true
	}

	if req.Base != "" {
		tapes, err := r.Index.List(req.Base, sub)
		switch {
		case err != nil && optional && errors.Is(err, tape.ErrNotFound):
			logging.ResolveDebug("%s: %s has no %s sublibrary", kind, req.Base, sub)
		case err != nil:
			return nil, libspec.Wrap(err, "%s: base library", kind)
		}
		for _, t := range tapes {
			if kind == manifest.Neutron && nuclide.IsPlaceholder(t.Key) {
				continue
			}
			if reusedKeys[t.Key] {
				continue
			}
			res.Tapes[t.Key] = t
		}
	}

	for _, k := range req.Omit {
		delete(res.Tapes, k)
	}

	for _, lib := range req.AddLibraries() {
		for _, e := range req.Add[lib] {
			if kind == manifest.Neutron && nuclide.IsPlaceholder(e.Key) {
				logging.ResolveWarn("%s: ignoring placeholder %s added from %s", kind, e.Key, lib)
				continue
			}
			t, err := r.Index.Lookup(lib, sub, e.Key)
			if err != nil {
				if optional && errors.Is(err, tape.ErrNotFound) {
					continue
				}
				return nil, &MissingMaterialError{Library: lib, Kind: kind, Key: e.Key, Err: err}
			}
			if prev, ok := res.Tapes[e.Key]; ok {
				logging.ResolveDebug("%s: %s from %s overrides %s", kind, e.Key, lib, prev.Library)
			}
			res.Tapes[e.Key] = t
			res.dropReused(e.Key)
		}
	}

	logging.Resolve("%s/%s: %d tapes to build, %d reused", kind, sub, len(res.Tapes), len(res.Reused))
	return res, nil
}

func (r *Resolution) dropReused(material string) {
	for i, e := range r.Reused {
		if e.Material == material {
			r.Reused = append(r.Reused[:i:i], r.Reused[i+1:]...)
			return
		}
	}
}

// loadReuse reads the manifest of a complete prior library and returns its
// entries of kind.
func (r *Resolver) loadReuse(kind manifest.Kind, library string) ([]manifest.Entry, error) {
	dir := filepath.Join(r.LibraryRoot, library)
	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return nil, libspec.Wrap(err, "%s: reuse library %s is not a complete library", kind, library)
	}
	var out []manifest.Entry
	for _, e := range m.OfKind(kind) {
		e.Path = m.ResolvePath(dir, e)
		e.Origin = manifest.OriginReused
		e.Source = library
		out = append(out, e)
	}
	return out, nil
}
