package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "supersecretkeyyoushouldnotcommit"

func TestIssueAndVerify(t *testing.T) {
	codec, err := NewCodec(testKey, time.Hour)
	require.NoError(t, err)

	want := Identity{UserID: "u1", DisplayName: "Ann", AvatarURL: "https://cdn.example/ann.png"}
	token, err := codec.Issue(want)
	require.NoError(t, err)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "Ann", got.Profile().DisplayName)
}

func TestVerifyRejectsGarbageAndForeignKey(t *testing.T) {
	codec, err := NewCodec(testKey, time.Hour)
	require.NoError(t, err)

	_, err = codec.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewCodec("anothersecretkeythatis32byteslon", time.Hour)
	require.NoError(t, err)
	token, err := other.Issue(Identity{UserID: "u1"})
	require.NoError(t, err)
	_, err = codec.Verify(token)
	assert.Error(t, err)
}

func TestNewCodecKeyLength(t *testing.T) {
	_, err := NewCodec("short", time.Hour)
	assert.Error(t, err)
}

func TestTokenFromHeader(t *testing.T) {
	token, ok := TokenFromHeader("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = TokenFromHeader("Basic abc")
	assert.False(t, ok)
	_, ok = TokenFromHeader("Bearer")
	assert.False(t, ok)
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithIdentity(context.Background(), Identity{UserID: "u9"})
	identity, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u9", identity.UserID)
}
