package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccountID(t *testing.T) {
	id := AccountIDFromName("alice")
	hexID := id.String()
	require.Len(t, hexID, 64)

	got, err := ParseAccountID(hexID)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	got, err = ParseAccountID("0x" + hexID)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	got, err = ParseAccountID(strings.ToUpper(hexID))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"", "abc", hexID[:62], hexID + "00", strings.Repeat("zz", 32)} {
		_, err := ParseAccountID(bad)
		assert.ErrorIs(t, err, ErrInvalidAccountID, bad)
	}
}

func TestAccountIDFromNameIsStable(t *testing.T) {
	assert.Equal(t, AccountIDFromName("bob"), AccountIDFromName("bob"))
	assert.NotEqual(t, AccountIDFromName("bob"), AccountIDFromName("alice"))
	assert.Equal(t, AccountIDFromName("bob").String()[:8], AccountIDFromName("bob").Short())
}

func TestAccountIDText(t *testing.T) {
	id := AccountIDFromName("carol")
	text, err := id.MarshalText()
	require.NoError(t, err)

	var back AccountID
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, id, back)
	assert.False(t, back.IsZero())
	assert.True(t, AccountID{}.IsZero())
}
