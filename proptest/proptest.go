// Package proptest provides seeded random generation for
// property-based tests. Failures log the seed so a run can be
// reproduced by passing it to New.
package proptest

import (
	"math/rand"
	"time"
)

// Generator wraps a seeded random source. The seed is retained so it
// can be logged when a property fails.
type Generator struct {
	rng  *rand.Rand
	seed int64
}

// New creates a Generator. A zero seed means seed from the clock.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed returns the seed this generator was created with.
func (g *Generator) Seed() int64 { return g.seed }

// Intn returns a random int in [0, n). Panics if n <= 0.
func (g *Generator) Intn(n int) int { return g.rng.Intn(n) }

// IntRange returns a random int in [lo, hi].
func (g *Generator) IntRange(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

// Float64 returns a random float64 in [0.0, 1.0).
func (g *Generator) Float64() float64 { return g.rng.Float64() }

// Bool returns true or false with equal probability.
func (g *Generator) Bool() bool { return g.rng.Intn(2) == 1 }

const identChars = "abcdefghijklmnopqrstuvwxyz_"

// Identifier returns a random lowercase identifier of 1..maxLen bytes.
func (g *Generator) Identifier(maxLen int) string {
	n := g.IntRange(1, maxLen)
	b := make([]byte, n)
	// First byte is a letter so the result is always a legal name.
	b[0] = identChars[g.Intn(26)]
	for i := 1; i < n; i++ {
		b[i] = identChars[g.Intn(len(identChars))]
	}
	return string(b)
}

// OneOf returns a random element from values.
func OneOf[T any](g *Generator, values ...T) T {
	return values[g.Intn(len(values))]
}

// Pick returns a random element from slice. Panics on an empty slice.
func Pick[T any](g *Generator, slice []T) T {
	return slice[g.Intn(len(slice))]
}

// PickN returns n distinct elements from slice, in random order.
// Panics if n > len(slice).
func PickN[T any](g *Generator, slice []T, n int) []T {
	if n > len(slice) {
		panic("proptest: PickN n > len(slice)")
	}
	idx := g.rng.Perm(len(slice))
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = slice[idx[i]]
	}
	return out
}

// Shuffle returns a shuffled copy of slice.
func Shuffle[T any](g *Generator, slice []T) []T {
	out := make([]T, len(slice))
	copy(out, slice)
	g.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Slice generates a slice of 0..maxLen elements.
func Slice[T any](g *Generator, maxLen int, gen func(*Generator) T) []T {
	return SliceN(g, 0, maxLen, gen)
}

// SliceN generates a slice of minLen..maxLen elements.
func SliceN[T any](g *Generator, minLen, maxLen int, gen func(*Generator) T) []T {
	n := g.IntRange(minLen, maxLen)
	out := make([]T, n)
	for i := range out {
		out[i] = gen(g)
	}
	return out
}

// UniqueIdentifiers returns up to n distinct random identifiers.
func UniqueIdentifiers(g *Generator, n, maxLen int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, n)
	for i := 0; i < n*10 && len(out) < n; i++ {
		s := g.Identifier(maxLen)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
