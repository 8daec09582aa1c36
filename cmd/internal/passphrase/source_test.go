package passphrase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("KIOSK_TEST_PASS", "hunter22")
	src := NewSource("KIOSK_TEST_PASS", "owner key")
	got, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "hunter22", got)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("KIOSK_TEST_PASS", "   ")
	_, err := NewSource("KIOSK_TEST_PASS", "").Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestSourcePromptsOnTerminal(t *testing.T) {
	origTerm, origRead := isTerminal, readPassword
	t.Cleanup(func() { isTerminal, readPassword = origTerm, origRead })

	calls := 0
	isTerminal = func() bool { return true }
	readPassword = func() ([]byte, error) {
		calls++
		return []byte("typed-secret"), nil
	}
	src := NewSource("", "owner key")
	for i := 0; i < 2; i++ {
		got, err := src.Get()
		require.NoError(t, err)
		require.Equal(t, "typed-secret", got)
	}
	require.Equal(t, 1, calls)

	isTerminal = func() bool { return false }
	_, err := NewSource("", "owner key").Get()
	require.ErrorContains(t, err, "no terminal")
}
