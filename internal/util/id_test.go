package util

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsUUID(t *testing.T) {
	id := NewID()
	assert.True(t, IsUUID(id))
	assert.NotEqual(t, id, NewID())
}

func TestNewTokenIs32BytesBase64URL(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, token, 43)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestIsUUIDRejectsGarbage(t *testing.T) {
	assert.False(t, IsUUID("not-a-uuid"))
	assert.False(t, IsUUID(""))
}
