package deposits

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fixedRandom(code string) func(int) string {
	return func(n int) string { return strings.Repeat(code, n)[:n] }
}

func TestReferenceGenerator_Next(t *testing.T) {
	g := NewReferenceGenerator("")
	g.random = fixedRandom("K")

	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"international", "+27 82 123 4567", "PC234567-KKKK"},
		{"national format", "082 123 4567", "PC234567-KKKK"},
		{"empty phone", "", "PCKKKKKKKK"},
		{"garbage", "not a phone", "PCKKKKKKKK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Next(tt.phone))
		})
	}
}

func TestReferenceGenerator_DefaultAlphabet(t *testing.T) {
	g := NewReferenceGenerator("za")
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		ref := g.Next("+27821234567")
		assert.True(t, strings.HasPrefix(ref, "PC234567-"))
		suffix := strings.TrimPrefix(ref, "PC234567-")
		assert.Len(t, suffix, suffixLength)
		for _, c := range suffix {
			assert.Contains(t, referenceAlphabet, string(c))
		}
		seen[ref] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestNormalizeReference(t *testing.T) {
	assert.Equal(t, "PC234567-ABCD", NormalizeReference(" pc234567-abcd "))
	assert.Equal(t, "PC234567-ABCD", NormalizeReference("PC 234567 -ABCD"))
}
