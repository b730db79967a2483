package ports

import "math/rand"

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream returns an independent generator for the i-th draw of a named
	// operation. The same (name, seed, index) always yields the same sequence.
	Stream(name string, seed int64, index int) *rand.Rand
}
