// Package ids generates client-side identifiers for orders, lines and queue
// entries.
package ids

import "github.com/google/uuid"

// Generator produces unique opaque ids.
// Implemented by UUIDv7 (production) and testutil.SeqIDs (tests).
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 ids, so ids created on one device
// sort by creation time.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a new hyphenated UUIDv7. Panics if the random source
// fails.
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Func adapts a Generator to the func() string shape used by merge.
func Func(g Generator) func() string {
	if g == nil {
		return nil
	}
	return g.Generate
}
