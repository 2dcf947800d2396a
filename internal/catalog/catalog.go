// Package catalog holds labeled face encodings in arrival order and answers
// "is this face already known?" with a first-match tolerance query.
package catalog

import (
	"math"
)

// DefaultTolerance is the face_recognition distance under which two encodings
// are considered the same person. Lower is stricter.
const DefaultTolerance = 0.55

// Entry is one known face. Label is the source filename.
type Entry struct {
	Label string
	Vec   []float64
}

// Catalog is an append-only, ordered list of entries. It is not safe for
// concurrent use; the ingestion loop is its only mutator.
type Catalog struct {
	name    string
	entries []Entry
}

// New returns an empty catalog. name is only used in logs ("main", "blacklist").
func New(name string) *Catalog {
	return &Catalog{name: name}
}

// Name is the label given to New.
func (c *Catalog) Name() string { return c.name }

// Len is the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Entries returns a copy of the entries in insertion order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Append adds an entry at the end. It does not check for duplicates;
// callers run Matches first.
func (c *Catalog) Append(label string, vec []float64) {
	v := make([]float64, len(vec))
	copy(v, vec)
	c.entries = append(c.entries, Entry{Label: label, Vec: v})
}

// Matches returns the label of the first entry, in insertion order, whose
// distance to vec is <= tolerance. It is not a nearest-neighbour search: a
// later entry that is closer never wins over an earlier one within tolerance.
func (c *Catalog) Matches(vec []float64, tolerance float64) (string, bool) {
	for _, e := range c.entries {
		if Distance(e.Vec, vec) <= tolerance {
			return e.Label, true
		}
	}
	return "", false
}

// Distance is the Euclidean distance used by face_recognition.face_distance.
// Vectors of different length are infinitely far apart.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
