package exec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitShellArgs_HandlesQuotedSpaces(t *testing.T) {
	out := splitShellArgs(`input text "hello%sworld"`)
	require.Equal(t, []string{"input", "text", "hello%sworld"}, out)
}

func TestEscapeAndroidText_ReplacesSpacesAndStripsQuotes(t *testing.T) {
	require.Equal(t, "a%sb", escapeAndroidText("a b"))
	require.Equal(t, "ab", escapeAndroidText(`a"b"`))
}

func TestAndroidKeyEvent_KnownNames(t *testing.T) {
	require.Equal(t, 4, AndroidKeyEvent["back"])
	require.Equal(t, 3, AndroidKeyEvent["home"])
	require.Equal(t, 66, AndroidKeyEvent["enter"])
}
