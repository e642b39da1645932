package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleNormalizesWhitespaceAndTrailingSpace(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{" hello", "world.", "\nfrom", "murmur"}, Options{TrailingSpace: true})
	require.Equal(t, "hello world. from murmur ", got)
}

func TestAssembleWithoutTrailingSpace(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"hello", "world"}, Options{TrailingSpace: false})
	require.Equal(t, "hello world", got)
}

func TestAssembleEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, Assemble(nil, Options{TrailingSpace: true}))
	require.Empty(t, Assemble([]string{"  ", "\n\t"}, Options{TrailingSpace: true}))
}

func TestAssembleIdempotentForNormalizedOutput(t *testing.T) {
	t.Parallel()

	first := Assemble([]string{"hello world. this is murmur"}, Options{})
	second := Assemble([]string{first}, Options{})
	require.Equal(t, first, second)
}

func TestAppendFinalInsertsSingleBoundary(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello", AppendFinal("", "hello"))
	require.Equal(t, "hello", AppendFinal("hello", ""))
	require.Equal(t, "hello world", AppendFinal("hello", "world"))
	require.Equal(t, "hello world", AppendFinal("hello ", "world"))
	require.Equal(t, "hello world", AppendFinal("hello", " world"))
}

func TestAppendFinalKeepsPrefix(t *testing.T) {
	t.Parallel()

	acc := ""
	for _, chunk := range []string{"one", " two", "three ", "four"} {
		next := AppendFinal(acc, chunk)
		require.True(t, strings.HasPrefix(next, acc))
		acc = next
	}
	require.Equal(t, "one two three four", acc)
}

func TestConcat(t *testing.T) {
	t.Parallel()

	require.Empty(t, Concat(nil))
	require.Equal(t, "good morning", Concat([]string{"good", "morning"}))
}
