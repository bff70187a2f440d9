// Package sqlite provides durable implementations of the boundary and
// session stores on a single sqlite database file.
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/vector"
)

const schema = `
CREATE TABLE IF NOT EXISTS boundaries (
	tenant_id  TEXT NOT NULL,
	id         TEXT NOT NULL,
	payload    TEXT NOT NULL,
	status     TEXT NOT NULL,
	priority   INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS boundary_anchors (
	tenant_id   TEXT NOT NULL,
	boundary_id TEXT NOT NULL,
	anchors     BLOB NOT NULL,
	PRIMARY KEY (tenant_id, boundary_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	agent_id         TEXT PRIMARY KEY,
	action_history   TEXT NOT NULL DEFAULT '[]',
	call_count       INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	last_seen_at     INTEGER NOT NULL,
	baseline         BLOB,
	last_vector      BLOB,
	cumulative_drift REAL NOT NULL DEFAULT 0
);
`

// Open opens (creating if needed) the database at path, enables WAL
// and applies the schema. The returned handle is shared by the
// boundary and session stores.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// encodeIntentVector serialises a 128-d vector as little-endian float32.
func encodeIntentVector(v *vector.Intent) []byte {
	out := make([]byte, 4*vector.IntentDim)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

func decodeIntentVector(raw []byte) (*vector.Intent, error) {
	if len(raw) != 4*vector.IntentDim {
		return nil, fmt.Errorf("intent vector blob: %d bytes, want %d", len(raw), 4*vector.IntentDim)
	}
	var v vector.Intent
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return &v, nil
}

// encodeRuleVector serialises the anchor payload: per slice a uint32
// row count followed by the full 16x32 float32 matrix, little-endian.
func encodeRuleVector(rv *boundary.RuleVector) []byte {
	const sliceBytes = 4 + 4*vector.MaxAnchors*vector.SlotDim
	out := make([]byte, boundary.NumSlices*sliceBytes)
	off := 0
	for s := range rv.Slices {
		binary.LittleEndian.PutUint32(out[off:], uint32(rv.Slices[s].Count))
		off += 4
		for row := range rv.Slices[s].Matrix {
			for _, x := range rv.Slices[s].Matrix[row] {
				binary.LittleEndian.PutUint32(out[off:], math.Float32bits(x))
				off += 4
			}
		}
	}
	return out
}

func decodeRuleVector(raw []byte) (*boundary.RuleVector, error) {
	const sliceBytes = 4 + 4*vector.MaxAnchors*vector.SlotDim
	if len(raw) != boundary.NumSlices*sliceBytes {
		return nil, fmt.Errorf("anchor blob: %d bytes, want %d", len(raw), boundary.NumSlices*sliceBytes)
	}
	rv := &boundary.RuleVector{}
	off := 0
	for s := range rv.Slices {
		count := int(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
		if count < 0 || count > vector.MaxAnchors {
			return nil, fmt.Errorf("anchor blob: slice %d count %d out of range", s, count)
		}
		rv.Slices[s].Count = count
		for row := range rv.Slices[s].Matrix {
			for col := range rv.Slices[s].Matrix[row] {
				rv.Slices[s].Matrix[row][col] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
				off += 4
			}
		}
	}
	return rv, nil
}
