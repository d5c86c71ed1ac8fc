// Package libspec parses library specifications: the YAML file describing
// which tapes a derived library is built from.
package libspec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec is a parsed library specification. It is not modified after Load
// except through WithTemperatures, which returns a copy.
type Spec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Summary     string   `yaml:"summary"`
	Neutron     *Request `yaml:"neutron"`
	Photon      *Request `yaml:"photon"`
	TSL         *Request `yaml:"tsl"`

	// Path is the file the spec was read from.
	Path string `yaml:"-"`
}

// AddEntry is one key taken from a guest library. Target is the companion
// material of a thermal tape and is empty for the other kinds.
type AddEntry struct {
	Key    string
	Target string
}

// Request is the block of one sublibrary kind.
type Request struct {
	Base  string
	Omit  []string
	Add   map[string][]AddEntry
	Reuse string

	// Substitute remaps companion materials of thermal tapes.
	Substitute map[string]string

	// Temperatures applies to every tape of the kind.
	Temperatures []int
	// TapeTemperatures overrides Temperatures per thermal tape.
	TapeTemperatures map[string][]int
}

var requestKeys = map[string]bool{
	"base": true, "omit": true, "ommit": true, "add": true,
	"reuse": true, "temperatures": true, "substitute": true,
}

func (r *Request) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if !requestKeys[key.Value] {
			return fmt.Errorf("line %d: unknown option %q", key.Line, key.Value)
		}
		var err error
		switch key.Value {
		case "base":
			err = val.Decode(&r.Base)
		case "reuse":
			err = val.Decode(&r.Reuse)
		case "omit", "ommit":
			var ws []string
			ws, err = words(val)
			r.Omit = append(r.Omit, ws...)
		case "add":
			r.Add, err = parseAdd(val)
		case "substitute":
			err = val.Decode(&r.Substitute)
		case "temperatures":
			err = r.parseTemperatures(val)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key.Value, err)
		}
	}
	return nil
}

func (r *Request) parseTemperatures(val *yaml.Node) error {
	if val.Kind != yaml.MappingNode {
		temps, err := parseTemperatures(val)
		if err != nil {
			return err
		}
		r.Temperatures = temps
		return nil
	}
	r.TapeTemperatures = make(map[string][]int)
	for i := 0; i+1 < len(val.Content); i += 2 {
		temps, err := parseTemperatures(val.Content[i+1])
		if err != nil {
			return fmt.Errorf("%s: %w", val.Content[i].Value, err)
		}
		r.TapeTemperatures[val.Content[i].Value] = temps
	}
	return nil
}

// parseAdd reads library -> keys, where keys is a word list or, for thermal
// tapes, an ordered tape -> material mapping.
func parseAdd(val *yaml.Node) (map[string][]AddEntry, error) {
	if val.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected library -> materials mapping", val.Line)
	}
	out := make(map[string][]AddEntry)
	for i := 0; i+1 < len(val.Content); i += 2 {
		lib, keys := val.Content[i].Value, val.Content[i+1]
		if keys.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(keys.Content); j += 2 {
				out[lib] = append(out[lib], AddEntry{
					Key:    keys.Content[j].Value,
					Target: strings.TrimSpace(keys.Content[j+1].Value),
				})
			}
			continue
		}
		ws, err := words(keys)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", lib, err)
		}
		for _, w := range ws {
			out[lib] = append(out[lib], AddEntry{Key: w})
		}
	}
	return out, nil
}

// AddLibraries returns the guest libraries of Add in sorted order.
func (r *Request) AddLibraries() []string {
	libs := make([]string, 0, len(r.Add))
	for lib := range r.Add {
		libs = append(libs, lib)
	}
	sort.Strings(libs)
	return libs
}

// AddedKeys maps every key of Add to the library it is taken from.
// Libraries are visited in sorted order, so a key added from several
// libraries comes from the last one.
func (r *Request) AddedKeys() map[string]string {
	out := make(map[string]string)
	for _, lib := range r.AddLibraries() {
		for _, e := range r.Add[lib] {
			out[e.Key] = lib
		}
	}
	return out
}

// TemperaturesFor returns the temperatures of one thermal tape, falling back
// to the global list.
func (r *Request) TemperaturesFor(tape string) []int {
	if t, ok := r.TapeTemperatures[tape]; ok {
		return t
	}
	return r.Temperatures
}

// Load reads and validates a spec file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Wrap(err, "cannot read library specification %s", path)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s.Path = path
	return s, nil
}

// Parse decodes and validates a spec document.
func Parse(data []byte) (*Spec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Spec
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, Errorf("library specification is empty")
		}
		return nil, Wrap(err, "malformed library specification")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the rules that must hold before resolution.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\`) || s.Name == "." || s.Name == ".." {
		return Errorf("name %q must be a plain directory name", s.Name)
	}
	if s.Neutron == nil && s.Photon == nil && s.TSL == nil {
		return Errorf("%s: no neutron, photon or tsl block", s.Name)
	}

	blocks := []struct {
		name    string
		req     *Request
		coupled bool
	}{
		{"neutron", s.Neutron, false},
		{"photon", s.Photon, false},
		{"tsl", s.TSL, true},
	}
	for _, b := range blocks {
		if b.req == nil {
			continue
		}
		if err := b.req.validate(b.coupled); err != nil {
			return Errorf("%s: %v", b.name, err)
		}
	}
	if s.TSL != nil && s.Neutron == nil {
		return Errorf("tsl: a neutron block is required to couple thermal tapes")
	}
	return nil
}

func (r *Request) validate(coupled bool) error {
	if r.Reuse != "" && (strings.ContainsAny(r.Reuse, `/\`) || r.Reuse == "." || r.Reuse == "..") {
		return fmt.Errorf("reuse %q must be a library name", r.Reuse)
	}

	added := r.AddedKeys()
	var conflicts []string
	for _, k := range r.Omit {
		if _, ok := added[k]; ok {
			conflicts = append(conflicts, k)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return fmt.Errorf("%s both omitted and added", strings.Join(conflicts, ", "))
	}

	for lib, entries := range r.Add {
		seen := make(map[string]bool)
		for _, e := range entries {
			if seen[e.Key] {
				return fmt.Errorf("%s added twice from %s", e.Key, lib)
			}
			seen[e.Key] = true
			if coupled && e.Target == "" {
				return fmt.Errorf("added tape %s from %s needs a companion material", e.Key, lib)
			}
			if !coupled && e.Target != "" {
				return fmt.Errorf("add %s: expected a material list", lib)
			}
		}
	}
	if !coupled {
		if len(r.Substitute) > 0 {
			return fmt.Errorf("substitute only applies to tsl")
		}
		if r.TapeTemperatures != nil {
			return fmt.Errorf("per-tape temperatures only apply to tsl")
		}
	}
	return nil
}

// WithTemperatures returns a copy of s whose neutron temperatures are temps.
func (s *Spec) WithTemperatures(temps []int) *Spec {
	out := *s
	if s.Neutron != nil {
		n := *s.Neutron
		n.Temperatures = append([]int(nil), temps...)
		out.Neutron = &n
	}
	return &out
}
