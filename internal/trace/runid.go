package trace

import (
	"sync"

	"github.com/google/uuid"
)

// RunIDGenerator produces the identifier a Recorder stamps on its records.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs, so listing runs
// by ID lists them by start time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined run IDs in order.
//
// Thread-safety: FixedGenerator is safe for concurrent use.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("run-1", "run-2")
//	gen.Generate() // "run-1"
//	gen.Generate() // "run-2"
//	gen.Generate() // panic: all run IDs exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID. It panics once every ID has
// been used, which surfaces a test that starts more runs than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all run IDs exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
