package manifest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ndforge/internal/logging"
)

type xmlManifest struct {
	XMLName   xml.Name     `xml:"cross_sections"`
	Directory string       `xml:"directory,omitempty"`
	Libraries []xmlLibrary `xml:"library"`
}

type xmlLibrary struct {
	Materials string `xml:"materials,attr"`
	Path      string `xml:"path,attr"`
	Type      string `xml:"type,attr"`
}

// Load reads a manifest file. Every entry is tagged OriginBuilt.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	logging.ManifestDebug("loaded %d entries from %s", m.Len(), path)
	return m, nil
}

// Decode parses manifest XML.
func Decode(data []byte) (*Manifest, error) {
	var doc xmlManifest
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	m := New()
	m.Directory = doc.Directory
	for _, lib := range doc.Libraries {
		kind, err := ParseKind(lib.Type)
		if err != nil {
			return nil, err
		}
		if lib.Materials == "" || lib.Path == "" {
			return nil, errors.New("library node without materials or path")
		}
		if err := m.Add(Entry{Kind: kind, Material: lib.Materials, Path: lib.Path}); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Encode renders the manifest. The output depends only on the entries and
// their order.
func (m *Manifest) Encode() ([]byte, error) {
	doc := xmlManifest{Directory: m.Directory}
	for _, e := range m.entries {
		doc.Libraries = append(doc.Libraries, xmlLibrary{
			Materials: e.Material,
			Path:      filepath.ToSlash(e.Path),
			Type:      string(e.Kind),
		})
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	// encoding/xml never self-closes; library nodes carry no content.
	body = bytes.ReplaceAll(body, []byte("></library>"), []byte("/>"))

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Save writes the manifest atomically: a temp file in the same directory is
// renamed over path.
func (m *Manifest) Save(path string) error {
	data, err := m.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	logging.ManifestDebug("wrote %d entries to %s", m.Len(), path)
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
