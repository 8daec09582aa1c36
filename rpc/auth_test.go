package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCapabilityTokenRoundTrip(t *testing.T) {
	tokens, err := NewCapabilityTokens([]byte(testSecret), time.Hour)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	capID := [32]byte{1, 2, 3}
	kioskID := [32]byte{4, 5, 6}

	token, expires, err := tokens.Issue(capID, kioskID, now)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), expires)

	claims, err := tokens.Verify(token, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, capID, claims.CapID)
	require.Equal(t, hexID(kioskID), claims.Kiosk)
	require.NotEmpty(t, claims.ID)

	_, err = tokens.Verify(token, now.Add(2*time.Hour))
	require.Error(t, err)

	other, err := NewCapabilityTokens([]byte("a-different-secret-value"), time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(token, now)
	require.Error(t, err)
}

func TestCapabilityTokenConfig(t *testing.T) {
	_, err := NewCapabilityTokens([]byte("short"), time.Hour)
	require.Error(t, err)
	_, err = NewCapabilityTokens([]byte(testSecret), 0)
	require.Error(t, err)
}
