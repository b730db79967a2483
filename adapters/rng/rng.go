package rng

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"

	"github.com/AllenThomasDev/causal-webapp/ports"
)

// Adapter implements ports.RNGPort with per-draw seeds derived from (name, seed, index)
type Adapter struct{}

// New returns the seeded stream adapter
func New() *Adapter { return &Adapter{} }

var _ ports.RNGPort = (*Adapter)(nil)

// Stream creates a deterministic generator for the index-th draw of a named operation.
// Streams for different indices are independent, so draws may run in any order.
func (a *Adapter) Stream(name string, seed int64, index int) *rand.Rand {
	return rand.New(rand.NewSource(DeriveSeed(name, seed, index)))
}

// DeriveSeed hashes the stream coordinates into a single source seed
func DeriveSeed(name string, seed int64, index int) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(seed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(index))
	_, _ = h.Write(buf[:])

	return int64(mix64(h.Sum64()))
}

// splitmix64 finalizer; spreads nearby hashes across the seed space
func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
