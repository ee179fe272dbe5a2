package nonce

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomGenerate(t *testing.T) {
	gen := NewRandom()
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		v, err := gen.Generate()
		require.NoError(t, err)
		raw, err := base64.RawURLEncoding.DecodeString(v)
		require.NoError(t, err)
		require.Len(t, raw, 32)
		_, dup := seen[v]
		require.False(t, dup, "duplicate nonce %s", v)
		seen[v] = struct{}{}
	}
}

func TestSequenceGenerate(t *testing.T) {
	gen := NewSequence("n", "first", "second")

	for _, want := range []string{"first", "second", "n3", "n4"} {
		got, err := gen.Generate()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
