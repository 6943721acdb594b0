package dbstrings

import (
	"strings"
	"testing"

	"github.com/rowmap/rowmap/proptest"
)

func lowerWord(g *proptest.Generator, maxLen int) string {
	n := g.IntRange(1, maxLen)
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + g.Intn(26))
	}
	return string(b)
}

// Snake names built from single-underscore-joined fragments survive a
// trip through PascalCase and back.
func TestProperty_CaseRoundTrip(t *testing.T) {
	gen := proptest.New(4242)

	for i := 0; i < 200; i++ {
		parts := proptest.SliceN(gen, 1, 4, func(g *proptest.Generator) string {
			return lowerWord(g, 8)
		})
		name := strings.Join(parts, "_")
		if got := ToSnakeCase(ToPascalCase(name)); got != name {
			t.Errorf("seed %d iteration %d: %q -> %q -> %q", gen.Seed(), i, name, ToPascalCase(name), got)
		}
	}
}

// Pluralizing then singularizing is stable for words whose final
// letter the regular rules handle unambiguously.
func TestProperty_PluralRoundTrip(t *testing.T) {
	gen := proptest.New(4343)

	for i := 0; i < 200; i++ {
		w := lowerWord(gen, 10)
		if strings.HasSuffix(w, "e") || strings.HasSuffix(w, "s") {
			continue
		}
		if got := ToSingular(ToPlural(w)); got != w {
			t.Errorf("seed %d iteration %d: %q -> %q -> %q", gen.Seed(), i, w, ToPlural(w), got)
		}
	}
}
