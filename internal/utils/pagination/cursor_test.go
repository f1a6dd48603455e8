package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	token, err := Encode(Cursor{MessageID: 42, CreatedUnix: 1700000000123})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	c, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), c.MessageID)
	assert.Equal(t, int64(1700000000123), c.CreatedUnix)
}

func TestDecodeEmptyTokenIsFirstPage(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.Zero(t, c.MessageID)
	assert.Zero(t, c.CreatedUnix)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("!!not base64!!")
	assert.Error(t, err)

	// valid base64 but not a cursor payload
	_, err = Decode("bm90LWpzb24=")
	assert.Error(t, err)
}
