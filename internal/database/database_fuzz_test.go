//go:build go1.18

package database

import (
	"database/sql"
	"testing"
)

// FuzzDecodeMetadata fuzzes the metadata column decoder for stability.
func FuzzDecodeMetadata(f *testing.F) {
	f.Add(`{"run_id":"x","rule":"domain"}`)
	f.Add(``)
	f.Add(`[1,2]`)
	f.Add(`{"nested":{"a":true}}`)
	f.Fuzz(func(t *testing.T, raw string) {
		md, err := decodeMetadata(sql.NullString{String: raw, Valid: true})
		if err != nil {
			return
		}
		// anything that decodes must encode again
		if _, err := encodeMetadata(md); err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
	})
}

// FuzzNormalizePair checks that pair normalization is order independent.
func FuzzNormalizePair(f *testing.F) {
	f.Add(int64(1), int64(2))
	f.Add(int64(9), int64(3))
	f.Fuzz(func(t *testing.T, a, b int64) {
		x1, y1 := normalizePair(a, b)
		x2, y2 := normalizePair(b, a)
		if x1 != x2 || y1 != y2 || x1 > y1 {
			t.Fatalf("normalizePair(%d,%d) not canonical", a, b)
		}
	})
}
