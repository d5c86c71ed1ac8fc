// Package artifact stores processed data files (.ndf).
//
// An artifact is a SQLite database holding one material. Data is keyed by
// temperature in kelvin: an energy grid, the kT value, and one value table
// per reaction channel, each table carrying string attributes.
package artifact

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	_ "modernc.org/sqlite"
)

// Extension is the file extension of artifacts.
const Extension = ".ndf"

// ThresholdAttr is the table attribute holding the index of the first grid
// point a table's values apply to.
const ThresholdAttr = "threshold_idx"

const schema = `
CREATE TABLE IF NOT EXISTS material (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS temperature (
	kelvin INTEGER PRIMARY KEY,
	kt REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS grid (
	kelvin INTEGER PRIMARY KEY,
	energy BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS xs (
	channel INTEGER NOT NULL,
	kelvin INTEGER NOT NULL,
	vals BLOB NOT NULL,
	PRIMARY KEY (channel, kelvin)
);
CREATE TABLE IF NOT EXISTS xs_attr (
	channel INTEGER NOT NULL,
	kelvin INTEGER NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (channel, kelvin, key)
);
`

// Table is the value table of one channel at one temperature.
type Table struct {
	Values []float64
	Attrs  map[string]string
}

// ThresholdIdx returns the threshold_idx attribute, 0 when absent.
func (t Table) ThresholdIdx() int {
	v, ok := t.Attrs[ThresholdAttr]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Slice is everything an artifact stores for one temperature.
type Slice struct {
	Kelvin int
	KT     float64
	Grid   []float64
	Tables map[int]Table
}

// Artifact is an open artifact file.
type Artifact struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// Create makes a new artifact for material at path, replacing any file
// already there.
func Create(path, material string) (*Artifact, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	a, err := open(path, false)
	if err != nil {
		return nil, err
	}
	if _, err := a.db.Exec(schema); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := a.db.Exec(`INSERT INTO material (name) VALUES (?)`, material); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to record material: %w", err)
	}
	return a, nil
}

// Open opens an existing artifact for reading and writing.
func Open(path string) (*Artifact, error) {
	return openExisting(path, false)
}

// OpenReadOnly opens an existing artifact without write access; the file is
// left byte-identical.
func OpenReadOnly(path string) (*Artifact, error) {
	return openExisting(path, true)
}

func openExisting(path string, readOnly bool) (*Artifact, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return open(path, readOnly)
}

func open(path string, readOnly bool) (*Artifact, error) {
	dsn := path
	if readOnly {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open artifact: %w", err)
		}
		dsn = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}).String()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	return &Artifact{db: db, path: path, readOnly: readOnly}, nil
}

// Close closes the database connection.
func (a *Artifact) Close() error {
	return a.db.Close()
}

// Path returns the artifact file path.
func (a *Artifact) Path() string { return a.path }

// Materials returns every material recorded in the artifact.
func (a *Artifact) Materials() ([]string, error) {
	rows, err := a.db.Query(`SELECT name FROM material ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to read materials: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Temperatures returns the temperatures present, ascending.
func (a *Artifact) Temperatures() ([]int, error) {
	rows, err := a.db.Query(`SELECT kelvin FROM temperature ORDER BY kelvin`)
	if err != nil {
		return nil, fmt.Errorf("failed to read temperatures: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var k int
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// KT returns the kT value recorded for a temperature.
func (a *Artifact) KT(kelvin int) (float64, error) {
	var kt float64
	err := a.db.QueryRow(`SELECT kt FROM temperature WHERE kelvin = ?`, kelvin).Scan(&kt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: no %dK data", a.path, kelvin)
	}
	return kt, err
}

// Grid returns the energy grid of a temperature.
func (a *Artifact) Grid(kelvin int) ([]float64, error) {
	var blob []byte
	err := a.db.QueryRow(`SELECT energy FROM grid WHERE kelvin = ?`, kelvin).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: no %dK energy grid", a.path, kelvin)
	}
	if err != nil {
		return nil, err
	}
	return decodeFloats(blob)
}

// Channels returns the channels with a table at kelvin, ascending.
func (a *Artifact) Channels(kelvin int) ([]int, error) {
	rows, err := a.db.Query(`SELECT channel FROM xs WHERE kelvin = ? ORDER BY channel`, kelvin)
	if err != nil {
		return nil, fmt.Errorf("failed to read channels: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var c int
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HasTable reports whether channel has a table at kelvin.
func (a *Artifact) HasTable(channel, kelvin int) (bool, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM xs WHERE channel = ? AND kelvin = ?`, channel, kelvin).Scan(&n)
	return n > 0, err
}

// Table returns the table of channel at kelvin.
func (a *Artifact) Table(channel, kelvin int) (Table, error) {
	var blob []byte
	err := a.db.QueryRow(`SELECT vals FROM xs WHERE channel = ? AND kelvin = ?`, channel, kelvin).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Table{}, fmt.Errorf("%s: no MT%d table at %dK", a.path, channel, kelvin)
	}
	if err != nil {
		return Table{}, err
	}
	vals, err := decodeFloats(blob)
	if err != nil {
		return Table{}, err
	}

	rows, err := a.db.Query(`SELECT key, value FROM xs_attr WHERE channel = ? AND kelvin = ?`, channel, kelvin)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read table attributes: %w", err)
	}
	defer rows.Close()

	attrs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Table{}, err
		}
		attrs[k] = v
	}
	return Table{Values: vals, Attrs: attrs}, rows.Err()
}

// ReadSlice returns everything stored for kelvin.
func (a *Artifact) ReadSlice(kelvin int) (Slice, error) {
	kt, err := a.KT(kelvin)
	if err != nil {
		return Slice{}, err
	}
	grid, err := a.Grid(kelvin)
	if err != nil {
		return Slice{}, err
	}
	channels, err := a.Channels(kelvin)
	if err != nil {
		return Slice{}, err
	}
	s := Slice{Kelvin: kelvin, KT: kt, Grid: grid, Tables: make(map[int]Table, len(channels))}
	for _, c := range channels {
		t, err := a.Table(c, kelvin)
		if err != nil {
			return Slice{}, err
		}
		s.Tables[c] = t
	}
	return s, nil
}

// WriteSlices stores slices in one transaction. A temperature already
// present is an error.
func (a *Artifact) WriteSlices(slices ...Slice) error {
	if a.readOnly {
		return fmt.Errorf("%s is open read-only", a.path)
	}
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, s := range slices {
		if _, err := tx.Exec(`INSERT INTO temperature (kelvin, kt) VALUES (?, ?)`, s.Kelvin, s.KT); err != nil {
			return fmt.Errorf("failed to add %dK: %w", s.Kelvin, err)
		}
		if _, err := tx.Exec(`INSERT INTO grid (kelvin, energy) VALUES (?, ?)`, s.Kelvin, encodeFloats(s.Grid)); err != nil {
			return fmt.Errorf("failed to add %dK grid: %w", s.Kelvin, err)
		}
		channels := make([]int, 0, len(s.Tables))
		for c := range s.Tables {
			channels = append(channels, c)
		}
		sort.Ints(channels)
		for _, c := range channels {
			if err := putTable(tx, c, s.Kelvin, s.Tables[c]); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// SetTable replaces the table of channel at kelvin, values and attributes.
func (a *Artifact) SetTable(channel, kelvin int, t Table) error {
	return a.SetTables(kelvin, map[int]Table{channel: t})
}

// SetTables replaces several tables at kelvin in one transaction.
func (a *Artifact) SetTables(kelvin int, tables map[int]Table) error {
	if a.readOnly {
		return fmt.Errorf("%s is open read-only", a.path)
	}
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for c, t := range tables {
		if err := putTable(tx, c, kelvin, t); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func putTable(tx *sql.Tx, channel, kelvin int, t Table) error {
	if _, err := tx.Exec(`INSERT OR REPLACE INTO xs (channel, kelvin, vals) VALUES (?, ?, ?)`,
		channel, kelvin, encodeFloats(t.Values)); err != nil {
		return fmt.Errorf("failed to write MT%d at %dK: %w", channel, kelvin, err)
	}
	if _, err := tx.Exec(`DELETE FROM xs_attr WHERE channel = ? AND kelvin = ?`, channel, kelvin); err != nil {
		return fmt.Errorf("failed to clear MT%d attributes: %w", channel, err)
	}
	keys := make([]string, 0, len(t.Attrs))
	for k := range t.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.Exec(`INSERT INTO xs_attr (channel, kelvin, key, value) VALUES (?, ?, ?, ?)`,
			channel, kelvin, k, t.Attrs[k]); err != nil {
			return fmt.Errorf("failed to write MT%d attribute %s: %w", channel, k, err)
		}
	}
	return nil
}
